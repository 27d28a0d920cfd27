// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"strconv"
	"strings"
)

// Node is a formula syntax tree node. Trees are immutable once built and
// may be shared between cells.
type Node interface {
	node()
}

// CellRef addresses one cell. A relative component holds the offset from
// the cell that owns the formula, an absolute component holds the 1-based
// coordinate itself.
type CellRef struct {
	Row    int
	Col    int
	RowAbs bool
	ColAbs bool
}

// Addr resolves the reference against the formula's home cell.
func (r CellRef) Addr(home CellAddr) CellAddr {
	a := CellAddr{Row: r.Row, Col: r.Col}
	if !r.RowAbs {
		a.Row = home.Row + r.Row
	}
	if !r.ColAbs {
		a.Col = home.Col + r.Col
	}
	return a
}

// SheetPrefix qualifies a reference with a worksheet, a 3-D sheet span or
// another workbook. A nil prefix means the formula's own sheet.
type SheetPrefix struct {
	Workbook string
	Sheet    string
	SheetEnd string
}

// RangeKind distinguishes cell blocks from whole columns and whole rows.
type RangeKind uint8

// Range kinds.
const (
	RangeCells RangeKind = iota
	RangeColumns
	RangeRows
)

type (
	// NumberNode is a numeric literal. Raw keeps the source spelling with a
	// "." decimal point.
	NumberNode struct {
		Value float64
		Raw   string
	}
	// StringNode is a text literal.
	StringNode struct {
		Value string
	}
	// BoolNode is TRUE or FALSE.
	BoolNode struct {
		Value bool
	}
	// ErrorNode is an error literal such as #N/A.
	ErrorNode struct {
		Kind   ErrorKind
		Prefix *SheetPrefix
	}
	// CellRefNode references a single cell.
	CellRefNode struct {
		Prefix *SheetPrefix
		Ref    CellRef
	}
	// RangeRefNode references a rectangular block, whole columns or whole
	// rows. For RangeColumns only the column components are meaningful, for
	// RangeRows only the row components.
	RangeRefNode struct {
		Prefix *SheetPrefix
		From   CellRef
		To     CellRef
		Kind   RangeKind
	}
	// NameNode references a defined name, optionally sheet-scoped.
	NameNode struct {
		Prefix *SheetPrefix
		Name   string
	}
	// StructuredRefNode references part of a table. Items holds the special
	// item specifiers (#All, #Data, #Headers, #Totals, #This Row).
	StructuredRefNode struct {
		Workbook    string
		Table       string
		Items       []string
		ColumnStart string
		ColumnEnd   string
		Raw         string
	}
	// UnaryNode applies a prefix (-, +, @) or postfix (%, #) operator.
	UnaryNode struct {
		Op      string
		Operand Node
	}
	// BinaryNode applies an infix operator. Reference operators are ":",
	// " " (intersection) and "," (union).
	BinaryNode struct {
		Op    string
		Left  Node
		Right Node
	}
	// FunctionNode calls a function. Name is upper case without the
	// _xlfn. style prefixes, Spelling is the text as written and Legacy
	// records whether such a prefix was present.
	FunctionNode struct {
		Name     string
		Spelling string
		Legacy   bool
		Args     []Node
	}
	// ArrayNode is an array constant; elements are literals.
	ArrayNode struct {
		Rows [][]Node
	}
	// ParenNode keeps explicit parentheses for faithful serialization.
	ParenNode struct {
		Inner Node
	}
	// MissingArgNode is an omitted function argument.
	MissingArgNode struct{}
)

func (*NumberNode) node()        {}
func (*StringNode) node()        {}
func (*BoolNode) node()          {}
func (*ErrorNode) node()         {}
func (*CellRefNode) node()       {}
func (*RangeRefNode) node()      {}
func (*NameNode) node()          {}
func (*StructuredRefNode) node() {}
func (*UnaryNode) node()         {}
func (*BinaryNode) node()        {}
func (*FunctionNode) node()      {}
func (*ArrayNode) node()         {}
func (*ParenNode) node()         {}
func (*MissingArgNode) node()    {}

// WalkNodes visits n and its descendants depth-first. Returning false from
// fn skips the children of the node just visited.
func WalkNodes(n Node, fn func(Node) bool) {
	stack := []Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == nil || !fn(cur) {
			continue
		}
		switch t := cur.(type) {
		case *UnaryNode:
			stack = append(stack, t.Operand)
		case *BinaryNode:
			stack = append(stack, t.Right, t.Left)
		case *FunctionNode:
			for i := len(t.Args) - 1; i >= 0; i-- {
				stack = append(stack, t.Args[i])
			}
		case *ParenNode:
			stack = append(stack, t.Inner)
		case *ArrayNode:
			for r := len(t.Rows) - 1; r >= 0; r-- {
				for c := len(t.Rows[r]) - 1; c >= 0; c-- {
					stack = append(stack, t.Rows[r][c])
				}
			}
		}
	}
}

// NodeKey renders a canonical structural key for a tree. Two trees have the
// same key exactly when they are structurally equal, which is what lets
// relative formulas filled down a column share one tree.
func NodeKey(n Node) string {
	var b strings.Builder
	writeKey(&b, n)
	return b.String()
}

// NodesEqual reports whether two trees are structurally equal.
func NodesEqual(a, b Node) bool {
	return NodeKey(a) == NodeKey(b)
}

func writePrefixKey(b *strings.Builder, p *SheetPrefix) {
	if p == nil {
		return
	}
	b.WriteString("{")
	b.WriteString(strconv.Quote(p.Workbook))
	b.WriteString(strconv.Quote(strings.ToUpper(p.Sheet)))
	b.WriteString(strconv.Quote(strings.ToUpper(p.SheetEnd)))
	b.WriteString("}")
}

func writeCellRefKey(b *strings.Builder, r CellRef) {
	writeAxisKey(b, 'R', r.Row, r.RowAbs)
	writeAxisKey(b, 'C', r.Col, r.ColAbs)
}

func writeAxisKey(b *strings.Builder, axis byte, v int, abs bool) {
	b.WriteByte(axis)
	if abs {
		b.WriteString(strconv.Itoa(v))
		return
	}
	b.WriteByte('[')
	b.WriteString(strconv.Itoa(v))
	b.WriteByte(']')
}

func writeKey(b *strings.Builder, n Node) {
	switch t := n.(type) {
	case *NumberNode:
		b.WriteString("n")
		b.WriteString(strconv.FormatFloat(t.Value, 'g', -1, 64))
	case *StringNode:
		b.WriteString("s")
		b.WriteString(strconv.Quote(t.Value))
	case *BoolNode:
		if t.Value {
			b.WriteString("bT")
		} else {
			b.WriteString("bF")
		}
	case *ErrorNode:
		writePrefixKey(b, t.Prefix)
		b.WriteString("e")
		b.WriteString(t.Kind.String())
	case *CellRefNode:
		writePrefixKey(b, t.Prefix)
		b.WriteString("c")
		writeCellRefKey(b, t.Ref)
	case *RangeRefNode:
		writePrefixKey(b, t.Prefix)
		b.WriteString("r")
		b.WriteString(strconv.Itoa(int(t.Kind)))
		writeCellRefKey(b, t.From)
		b.WriteString(":")
		writeCellRefKey(b, t.To)
	case *NameNode:
		writePrefixKey(b, t.Prefix)
		b.WriteString("N")
		b.WriteString(strconv.Quote(strings.ToUpper(t.Name)))
	case *StructuredRefNode:
		b.WriteString("t")
		b.WriteString(strconv.Quote(t.Workbook))
		b.WriteString(strconv.Quote(strings.ToUpper(t.Table)))
		for _, item := range t.Items {
			b.WriteString(strconv.Quote(strings.ToUpper(item)))
		}
		b.WriteString("|")
		b.WriteString(strconv.Quote(strings.ToUpper(t.ColumnStart)))
		b.WriteString(strconv.Quote(strings.ToUpper(t.ColumnEnd)))
	case *UnaryNode:
		b.WriteString("u")
		b.WriteString(t.Op)
		b.WriteString("(")
		writeKey(b, t.Operand)
		b.WriteString(")")
	case *BinaryNode:
		b.WriteString("(")
		writeKey(b, t.Left)
		b.WriteString(")")
		b.WriteString(strconv.Quote(t.Op))
		b.WriteString("(")
		writeKey(b, t.Right)
		b.WriteString(")")
	case *FunctionNode:
		b.WriteString("f")
		b.WriteString(t.Name)
		b.WriteString("(")
		for i, arg := range t.Args {
			if i > 0 {
				b.WriteString(",")
			}
			writeKey(b, arg)
		}
		b.WriteString(")")
	case *ArrayNode:
		b.WriteString("{")
		for r, row := range t.Rows {
			if r > 0 {
				b.WriteString(";")
			}
			for c, el := range row {
				if c > 0 {
					b.WriteString(",")
				}
				writeKey(b, el)
			}
		}
		b.WriteString("}")
	case *ParenNode:
		b.WriteString("p(")
		writeKey(b, t.Inner)
		b.WriteString(")")
	case *MissingArgNode:
		b.WriteString("_")
	}
}
