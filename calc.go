// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"fmt"
	"math"
	"slices"
)

// maxEvalDepth bounds nested sub-program evaluation: defined names that
// refer to each other and arguments of short-circuit functions.
const maxEvalDepth = 512

// maxExternalCells caps how many cells of an external area are read when
// the provider cannot report the sheet's extent.
const maxExternalCells = 1 << 16

// vm evaluates compiled programs for one calling cell. It is cheap to
// create and is never shared between goroutines.
type vm struct {
	e     *Engine
	sheet int
	home  CellAddr
	depth int
}

// evaluate runs a formula tree in the context of a cell and returns the
// value to store. A panicking handler yields #VALUE! for that cell only.
func (e *Engine) evaluate(sheet int, home CellAddr, key string, n Node) (out Value) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("formula evaluation panicked", "cell", e.cellLabel(sheet, home), "panic", fmt.Sprint(r))
			out = NewErrorValue(ErrorVALUE, "evaluation failed")
		}
	}()
	v := &vm{e: e, sheet: sheet, home: home}
	return v.result(v.run(e.program(key, n)))
}

func (v *vm) sub(p *program) Arg {
	child := &vm{e: v.e, sheet: v.sheet, home: v.home, depth: v.depth + 1}
	return child.run(p)
}

func (v *vm) run(p *program) Arg {
	if v.depth > maxEvalDepth {
		return valueArg(NewErrorValue(ErrorCALC, "formula nests too deeply"))
	}
	stack := make([]Arg, 0, 8)
	pop := func() Arg {
		a := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return a
	}
	for i := range p.code {
		in := &p.code[i]
		switch in.op {
		case opValue:
			stack = append(stack, valueArg(in.val))
		case opMissing:
			stack = append(stack, Arg{Missing: true})
		case opRef:
			ref, kind := v.e.resolver.Resolve(in.node, v.sheet, v.home)
			if kind != ErrorNone {
				stack = append(stack, valueArg(NewErrorValue(kind)))
				continue
			}
			stack = append(stack, refArg(ref))
		case opName:
			stack = append(stack, v.name(in.node.(*NameNode)))
		case opUnary:
			stack = append(stack, v.unary(in.text, pop()))
		case opBinary:
			b := pop()
			a := pop()
			stack = append(stack, v.binary(in.text, a, b))
		case opCall:
			args := slices.Clone(stack[len(stack)-in.argc:])
			stack = stack[:len(stack)-in.argc]
			stack = append(stack, v.call(in.fn, args))
		case opLazy:
			thunks := make([]Thunk, in.argc)
			for j := range thunks {
				thunks[j] = Thunk{vm: v, prog: in.subs[j], missing: in.subs[j] == nil}
			}
			if in.argc < in.fn.MinArgs || (in.fn.MaxArgs >= 0 && in.argc > in.fn.MaxArgs) {
				stack = append(stack, valueArg(NewErrorValue(ErrorVALUE, in.fn.Name+": wrong number of arguments")))
				continue
			}
			stack = append(stack, in.fn.Lazy(&CallContext{vm: v, fn: in.fn}, thunks))
		}
	}
	if len(stack) != 1 {
		return valueArg(NewErrorValue(ErrorVALUE))
	}
	return stack[0]
}

// name evaluates a defined name in the caller's context. A table name
// used bare stands for the table's data rows.
func (v *vm) name(n *NameNode) Arg {
	wb := v.e.wb
	scope := v.sheet
	if n.Prefix != nil {
		if n.Prefix.Workbook != "" {
			return valueArg(NewErrorValue(ErrorREF))
		}
		id, ok := wb.sheetID(n.Prefix.Sheet)
		if !ok {
			return valueArg(NewErrorValue(ErrorREF))
		}
		scope = id
	}
	dn := wb.lookupName(n.Name, scope)
	if dn == nil || dn.node == nil {
		if t := wb.table(n.Name); t != nil && n.Prefix == nil {
			area, kind := tableSlice(t.area, t.columns, t.header, t.totals, &StructuredRefNode{Table: t.name}, v.home)
			if kind != ErrorNone {
				return valueArg(NewErrorValue(kind))
			}
			return refArg(Reference{Areas: []Area{area}})
		}
		return valueArg(NewErrorValue(ErrorNAME, "unknown name "+n.Name))
	}
	return v.sub(v.e.program(dn.key, dn.node))
}

// cellValue reads a local cell.
func (v *vm) cellValue(sheet int, addr CellAddr) Value {
	return v.e.store.Value(sheet, addr)
}

// externalValue reads a cell of another workbook. An unreachable cell is a
// broken link.
func (v *vm) externalValue(x ExternalArea, addr CellAddr) Value {
	p := v.e.resolver.provider
	if p == nil {
		return NewErrorValue(ErrorREF)
	}
	val, ok := p.Get(x.SheetKey(), addr)
	if !ok {
		return NewErrorValue(ErrorREF, "broken link to "+x.SheetKey())
	}
	return val
}

// refGrid materialises a single-area reference. Local areas go through the
// range cache; whole rows and columns are clipped to the used extent.
func (v *vm) refGrid(ref Reference) Grid {
	if len(ref.Areas) == 1 {
		area := ref.Areas[0]
		if area.Size() == 1 {
			return &denseGrid{rows: 1, cols: 1, data: [][]Value{{v.cellValue(area.Sheet, area.From)}}}
		}
		return &denseGrid{rows: area.Rows(), cols: area.Cols(), data: v.e.ranges.matrix(area)}
	}
	x := ref.External[0]
	rows, cols := x.Rows(), x.Cols()
	readRows, readCols := rows, cols
	if ext, ok := v.e.resolver.provider.(ExternalExtent); ok {
		if maxRow, maxCol, ok := ext.Extent(x.SheetKey()); ok {
			readRows = max(0, min(rows, maxRow-x.From.Row+1))
			readCols = max(0, min(cols, maxCol-x.From.Col+1))
		}
	} else if readRows*readCols > maxExternalCells {
		readRows = max(1, maxExternalCells/readCols)
	}
	data := make([][]Value, readRows)
	for r := range data {
		data[r] = make([]Value, readCols)
		for c := range data[r] {
			data[r][c] = v.externalValue(x, CellAddr{Row: x.From.Row + r, Col: x.From.Col + c})
		}
	}
	return &denseGrid{rows: rows, cols: cols, data: data}
}

// materialize turns a reference into a value: the cell's value for a
// single cell, an array otherwise.
func (v *vm) materialize(ref Reference) Value {
	if !ref.single() {
		return NewErrorValue(ErrorVALUE)
	}
	if ref.isCell() {
		if len(ref.Areas) == 1 {
			return v.cellValue(ref.Areas[0].Sheet, ref.Areas[0].From)
		}
		return v.externalValue(ref.External[0], ref.External[0].From)
	}
	return gridValue(v.refGrid(ref))
}

// intersect reduces a reference to one value by implicit intersection with
// the calling cell's row or column.
func (v *vm) intersect(ref Reference) Value {
	if !ref.single() {
		return NewErrorValue(ErrorVALUE)
	}
	var from, to CellAddr
	if len(ref.Areas) == 1 {
		from, to = ref.Areas[0].From, ref.Areas[0].To
	} else {
		from, to = ref.External[0].From, ref.External[0].To
	}
	addr, ok := implicitCell(from, to, v.home)
	if !ok {
		return NewErrorValue(ErrorVALUE)
	}
	if len(ref.Areas) == 1 {
		return v.cellValue(ref.Areas[0].Sheet, addr)
	}
	return v.externalValue(ref.External[0], addr)
}

func implicitCell(from, to, home CellAddr) (CellAddr, bool) {
	switch {
	case from == to:
		return from, true
	case from.Row == to.Row && home.Col >= from.Col && home.Col <= to.Col:
		return CellAddr{Row: from.Row, Col: home.Col}, true
	case from.Col == to.Col && home.Row >= from.Row && home.Row <= to.Row:
		return CellAddr{Row: home.Row, Col: from.Col}, true
	}
	return CellAddr{}, false
}

// deref turns a reference into what an operator sees: an array with
// dynamic arrays on, the intersected value otherwise.
func (v *vm) deref(ref Reference) Value {
	if v.e.opts.DynamicArrays {
		return v.materialize(ref)
	}
	return v.intersect(ref)
}

func (v *vm) operand(a Arg) Value {
	switch {
	case a.Missing:
		return EmptyValue()
	case a.Ref != nil:
		return v.deref(*a.Ref)
	}
	return a.Value
}

// result converts the final stack value into what the cell stores.
func (v *vm) result(a Arg) Value {
	out := v.operand(a)
	switch out.Type {
	case ValueEmpty:
		return NewNumberValue(0)
	case ValueNumber:
		if math.IsNaN(out.Number) || math.IsInf(out.Number, 0) {
			return NewErrorValue(ErrorNUM)
		}
	case ValueArray:
		rows, cols := out.Dims()
		if rows == 0 || cols == 0 {
			return NewErrorValue(ErrorCALC, "empty array")
		}
		if !v.e.opts.DynamicArrays {
			return v.result(valueArg(out.scalar()))
		}
		return newMatrix(rows, cols, func(r, c int) Value {
			el := out.Array[r][c]
			if el.Type == ValueEmpty {
				return NewNumberValue(0)
			}
			return el
		})
	}
	return out
}

func (v *vm) unary(op string, a Arg) Arg {
	switch op {
	case "#":
		return v.spillRef(a)
	case "@":
		if a.Ref != nil {
			return valueArg(v.intersect(*a.Ref))
		}
		return valueArg(a.Value.scalar())
	case "+":
		return valueArg(v.operand(a))
	}
	return valueArg(mapValue(v.operand(a), func(x Value) Value {
		n := x.ToNumber()
		if n.Type == ValueError {
			return n
		}
		if op == "%" {
			return NewNumberValue(n.Number / 100)
		}
		return NewNumberValue(-n.Number)
	}))
}

// spillRef resolves A1#: the block the cell spilled, the cell itself for a
// formula with a scalar result, #REF! otherwise.
func (v *vm) spillRef(a Arg) Arg {
	if a.Ref == nil {
		if a.Value.Type == ValueError {
			return a
		}
		return valueArg(NewErrorValue(ErrorREF))
	}
	if len(a.Ref.Areas) != 1 || len(a.Ref.External) != 0 || a.Ref.Areas[0].Size() != 1 {
		return valueArg(NewErrorValue(ErrorREF))
	}
	area := a.Ref.Areas[0]
	rec, _ := v.e.store.Get(area.Sheet, area.From)
	switch {
	case rec.spill != nil:
		return refArg(Reference{Areas: []Area{rec.spill.area}})
	case rec.formula != nil:
		if rec.value.Type == ValueError && rec.value.Err == ErrorSPILL {
			return valueArg(rec.value)
		}
		return a
	}
	return valueArg(NewErrorValue(ErrorREF))
}

func (v *vm) binary(op string, a, b Arg) Arg {
	switch op {
	case ":", " ", ",":
		return v.refOp(op, a, b)
	}
	return valueArg(v.binaryValue(op, v.operand(a), v.operand(b)))
}

// refOp applies the reference operators: range, intersection and union.
func (v *vm) refOp(op string, a, b Arg) Arg {
	if a.Ref == nil && a.Value.Type == ValueError {
		return a
	}
	if b.Ref == nil && b.Value.Type == ValueError {
		return b
	}
	if a.Ref == nil || b.Ref == nil {
		return valueArg(NewErrorValue(ErrorVALUE))
	}
	switch op {
	case ":":
		span, ok := boundingRef(*a.Ref, *b.Ref)
		if !ok {
			return valueArg(NewErrorValue(ErrorREF))
		}
		return refArg(span)
	case " ":
		var out Reference
		for _, x := range a.Ref.Areas {
			for _, y := range b.Ref.Areas {
				if area, ok := x.Intersect(y); ok {
					out.Areas = append(out.Areas, area)
				}
			}
		}
		if len(out.Areas) == 0 {
			return valueArg(NewErrorValue(ErrorNULL))
		}
		return refArg(out)
	}
	out := Reference{
		Areas:    append(slices.Clone(a.Ref.Areas), b.Ref.Areas...),
		External: append(slices.Clone(a.Ref.External), b.Ref.External...),
	}
	return refArg(out)
}
