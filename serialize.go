// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"strconv"
	"strings"
	"unicode"
)

// SerializeContext selects how a tree is rendered back to text.
type SerializeContext struct {
	Home   CellAddr
	Locale LocaleConfig
	Mode   RefMode
}

// Serialize renders a formula tree as formula text, without the leading
// "=". Insignificant whitespace is not reproduced; the intersection
// operator renders as one space and separators follow the locale.
func Serialize(n Node, ctx SerializeContext) string {
	if ctx.Locale.ArgumentSeparator == 0 {
		ctx.Locale = LocaleEnUS
	}
	if ctx.Home.Row == 0 && ctx.Home.Col == 0 {
		ctx.Home = CellAddr{Row: 1, Col: 1}
	}
	var b strings.Builder
	s := serializer{ctx: ctx, b: &b}
	s.write(n)
	return b.String()
}

// SerializeFormula is Serialize with the leading "=".
func SerializeFormula(n Node, ctx SerializeContext) string {
	return "=" + Serialize(n, ctx)
}

type serializer struct {
	ctx SerializeContext
	b   *strings.Builder
}

func (s serializer) write(n Node) {
	b := s.b
	switch t := n.(type) {
	case *NumberNode:
		text := t.Raw
		if text == "" {
			text = formatNumber(t.Value)
		}
		if s.ctx.Locale.DecimalSeparator != '.' {
			text = strings.ReplaceAll(text, ".", string(s.ctx.Locale.DecimalSeparator))
		}
		b.WriteString(text)
	case *StringNode:
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(t.Value, `"`, `""`))
		b.WriteByte('"')
	case *BoolNode:
		if t.Value {
			b.WriteString("TRUE")
		} else {
			b.WriteString("FALSE")
		}
	case *ErrorNode:
		s.prefix(t.Prefix)
		b.WriteString(t.Kind.String())
	case *CellRefNode:
		s.prefix(t.Prefix)
		b.WriteString(s.cell(t.Ref))
	case *RangeRefNode:
		s.prefix(t.Prefix)
		s.rangeRef(t)
	case *NameNode:
		s.prefix(t.Prefix)
		b.WriteString(t.Name)
	case *StructuredRefNode:
		if t.Workbook != "" {
			b.WriteString(t.Workbook)
			b.WriteByte('!')
		}
		if t.Raw != "" {
			b.WriteString(t.Raw)
			return
		}
		b.WriteString(structuredText(t, s.ctx.Locale.ArgumentSeparator))
	case *UnaryNode:
		if t.Op == "%" || t.Op == "#" {
			s.write(t.Operand)
			b.WriteString(t.Op)
			return
		}
		b.WriteString(t.Op)
		s.write(t.Operand)
	case *BinaryNode:
		s.write(t.Left)
		if t.Op == "," {
			b.WriteRune(s.ctx.Locale.ArgumentSeparator)
		} else {
			b.WriteString(t.Op)
		}
		s.write(t.Right)
	case *FunctionNode:
		if t.Legacy && len(t.Spelling) > len(t.Name) {
			b.WriteString(t.Spelling[:len(t.Spelling)-len(t.Name)])
		}
		b.WriteString(t.Name)
		b.WriteByte('(')
		for i, arg := range t.Args {
			if i > 0 {
				b.WriteRune(s.ctx.Locale.ArgumentSeparator)
			}
			s.write(arg)
		}
		b.WriteByte(')')
	case *ArrayNode:
		b.WriteByte('{')
		for r, row := range t.Rows {
			if r > 0 {
				b.WriteRune(s.ctx.Locale.ArrayRowSeparator)
			}
			for c, el := range row {
				if c > 0 {
					b.WriteRune(s.ctx.Locale.ArrayColumnSeparator)
				}
				s.write(el)
			}
		}
		b.WriteByte('}')
	case *ParenNode:
		b.WriteByte('(')
		s.write(t.Inner)
		b.WriteByte(')')
	case *MissingArgNode:
	}
}

func (s serializer) prefix(p *SheetPrefix) {
	if p == nil {
		return
	}
	s.b.WriteString(formatSheetPrefix(p))
	s.b.WriteByte('!')
}

// formatSheetPrefix renders Sheet, 'My Sheet', Sheet1:Sheet3 or
// [Book.xlsx]Sheet1, quoting when any part needs it.
func formatSheetPrefix(p *SheetPrefix) string {
	sheets := p.Sheet
	if p.SheetEnd != "" {
		sheets += ":" + p.SheetEnd
	}
	quote := sheetNeedsQuotes(p.Sheet) || (p.SheetEnd != "" && sheetNeedsQuotes(p.SheetEnd))
	text := sheets
	if p.Workbook != "" {
		dir, book := "", p.Workbook
		if i := strings.LastIndexAny(p.Workbook, `\/`); i >= 0 {
			dir, book = p.Workbook[:i+1], p.Workbook[i+1:]
			quote = true
		}
		if strings.ContainsAny(book, " '-+()&,;") {
			quote = true
		}
		text = dir + "[" + book + "]" + sheets
	}
	if quote {
		return "'" + strings.ReplaceAll(text, "'", "''") + "'"
	}
	return text
}

// sheetNeedsQuotes reports whether a sheet name must be quoted inside a
// reference.
func sheetNeedsQuotes(name string) bool {
	if name == "" {
		return false
	}
	if r := []rune(name)[0]; unicode.IsDigit(r) || r == '.' {
		return true
	}
	for _, r := range name {
		if !(r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return true
		}
	}
	if matchA1Cell(name) == len(name) || matchR1C1Cell(name) == len(name) ||
		matchR1C1Row(name) == len(name) || matchR1C1Col(name) == len(name) {
		return true
	}
	upper := strings.ToUpper(name)
	return upper == "TRUE" || upper == "FALSE"
}

func (s serializer) cell(r CellRef) string {
	if s.ctx.Mode == RefModeR1C1 {
		return r1c1Axis('R', r.Row, r.RowAbs) + r1c1Axis('C', r.Col, r.ColAbs)
	}
	a := r.Addr(s.ctx.Home)
	if !a.Valid() {
		return ErrorREF.String()
	}
	col, _ := ColumnNumberToName(a.Col)
	out := ""
	if r.ColAbs {
		out += "$"
	}
	out += col
	if r.RowAbs {
		out += "$"
	}
	return out + strconv.Itoa(a.Row)
}

func r1c1Axis(axis byte, v int, abs bool) string {
	if abs {
		return string(axis) + strconv.Itoa(v)
	}
	if v == 0 {
		return string(axis)
	}
	return string(axis) + "[" + strconv.Itoa(v) + "]"
}

func (s serializer) rangeRef(t *RangeRefNode) {
	b := s.b
	switch t.Kind {
	case RangeColumns:
		b.WriteString(s.axis(t.From.Col, t.From.ColAbs, true))
		b.WriteByte(':')
		b.WriteString(s.axis(t.To.Col, t.To.ColAbs, true))
	case RangeRows:
		b.WriteString(s.axis(t.From.Row, t.From.RowAbs, false))
		b.WriteByte(':')
		b.WriteString(s.axis(t.To.Row, t.To.RowAbs, false))
	default:
		b.WriteString(s.cell(t.From))
		b.WriteByte(':')
		b.WriteString(s.cell(t.To))
	}
}

func (s serializer) axis(v int, abs, column bool) string {
	if s.ctx.Mode == RefModeR1C1 {
		if column {
			return r1c1Axis('C', v, abs)
		}
		return r1c1Axis('R', v, abs)
	}
	home := s.ctx.Home.Row
	if column {
		home = s.ctx.Home.Col
	}
	if !abs {
		v += home
	}
	out := ""
	if abs {
		out = "$"
	}
	if column {
		name, err := ColumnNumberToName(v)
		if err != nil {
			return ErrorREF.String()
		}
		return out + name
	}
	if v < 1 || v > MaxRows {
		return ErrorREF.String()
	}
	return out + strconv.Itoa(v)
}

// structuredText renders a structured reference from its parts.
func structuredText(t *StructuredRefNode, sep rune) string {
	escape := func(col string) string {
		r := strings.NewReplacer("'", "''", "[", "'[", "]", "']", "#", "'#")
		return "[" + r.Replace(col) + "]"
	}
	var parts []string
	for _, item := range t.Items {
		parts = append(parts, "["+item+"]")
	}
	switch {
	case t.ColumnEnd != "":
		parts = append(parts, escape(t.ColumnStart)+":"+escape(t.ColumnEnd))
	case t.ColumnStart != "":
		parts = append(parts, escape(t.ColumnStart))
	}
	if len(parts) == 1 {
		return t.Table + parts[0]
	}
	return t.Table + "[" + strings.Join(parts, string(sep)) + "]"
}
