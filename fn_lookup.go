// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"slices"
	"strconv"
	"strings"
)

// maxSequenceCells bounds the arrays SEQUENCE may build.
const maxSequenceCells = 1 << 20

var lookupFunctions = []FunctionDescriptor{
	{Name: "VLOOKUP", MinArgs: 3, MaxArgs: 4, ArgTypes: []ArgType{ArgAny, ArgArray, ArgNumber, ArgBool}, Returns: ReturnAny, Handler: tableLookup(false)},
	{Name: "HLOOKUP", MinArgs: 3, MaxArgs: 4, ArgTypes: []ArgType{ArgAny, ArgArray, ArgNumber, ArgBool}, Returns: ReturnAny, Handler: tableLookup(true)},
	{Name: "MATCH", MinArgs: 2, MaxArgs: 3, ArgTypes: []ArgType{ArgAny, ArgArray, ArgNumber}, Returns: ReturnNumber, Handler: fnMATCH},
	{Name: "XLOOKUP", MinArgs: 3, MaxArgs: 6, ArgTypes: []ArgType{ArgAny, ArgArray, ArgArray, ArgErrorOK, ArgNumber, ArgNumber}, Returns: ReturnAny, RefHandler: fnXLOOKUP},
	{Name: "XMATCH", MinArgs: 2, MaxArgs: 4, ArgTypes: []ArgType{ArgAny, ArgArray, ArgNumber, ArgNumber}, Returns: ReturnNumber, Handler: fnXMATCH},
	{Name: "INDEX", MinArgs: 2, MaxArgs: 4, ArgTypes: []ArgType{ArgRaw, ArgNumber, ArgNumber, ArgNumber}, Returns: ReturnRef, RefHandler: fnINDEX},
	{Name: "OFFSET", MinArgs: 3, MaxArgs: 5, ArgTypes: []ArgType{ArgRef, ArgNumber, ArgNumber, ArgNumber, ArgNumber}, Returns: ReturnRef, Volatile: true, RefHandler: fnOFFSET},
	{Name: "INDIRECT", MinArgs: 1, MaxArgs: 2, ArgTypes: []ArgType{ArgText, ArgBool}, Returns: ReturnRef, Volatile: true, RefHandler: fnINDIRECT},
	{Name: "ROW", MinArgs: 0, MaxArgs: 1, ArgTypes: []ArgType{ArgRef}, Returns: ReturnNumber, Handler: position(false)},
	{Name: "COLUMN", MinArgs: 0, MaxArgs: 1, ArgTypes: []ArgType{ArgRef}, Returns: ReturnNumber, Handler: position(true)},
	{Name: "ROWS", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgArray}, Returns: ReturnNumber, Handler: extentOf(false)},
	{Name: "COLUMNS", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgArray}, Returns: ReturnNumber, Handler: extentOf(true)},
	{Name: "TRANSPOSE", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgArray}, Returns: ReturnArray, Handler: fnTRANSPOSE},
	{Name: "SORT", MinArgs: 1, MaxArgs: 4, ArgTypes: []ArgType{ArgArray, ArgNumber, ArgNumber, ArgBool}, Returns: ReturnArray, Handler: fnSORT},
	{Name: "UNIQUE", MinArgs: 1, MaxArgs: 3, ArgTypes: []ArgType{ArgArray, ArgBool, ArgBool}, Returns: ReturnArray, Handler: fnUNIQUE},
	{Name: "FILTER", MinArgs: 2, MaxArgs: 3, ArgTypes: []ArgType{ArgArray, ArgArray, ArgErrorOK}, Returns: ReturnArray, Handler: fnFILTER},
	{Name: "SEQUENCE", MinArgs: 1, MaxArgs: 4, ArgTypes: []ArgType{ArgNumber, ArgNumber, ArgNumber, ArgNumber}, Returns: ReturnArray, Handler: fnSEQUENCE},
	{Name: "VSTACK", MinArgs: 1, MaxArgs: 254, ArgTypes: []ArgType{ArgArray}, Returns: ReturnArray, Handler: stack(false)},
	{Name: "HSTACK", MinArgs: 1, MaxArgs: 254, ArgTypes: []ArgType{ArgArray}, Returns: ReturnArray, Handler: stack(true)},
}

// usedDims returns the part of a grid worth scanning.
func usedDims(g Grid) (int, int) {
	rows, cols := g.Dims()
	er, ec := g.Extent()
	return min(rows, er), min(cols, ec)
}

// line is a one-dimensional view over a row or column of a grid.
type line struct {
	g      Grid
	fixed  int
	across bool
	n      int
}

func (l line) at(i int) Value {
	if l.across {
		return l.g.At(l.fixed, i)
	}
	return l.g.At(i, l.fixed)
}

// vectorOf views a single row or column grid as a line; anything wider is
// rejected.
func vectorOf(g Grid) (line, bool) {
	rows, cols := g.Dims()
	ur, uc := usedDims(g)
	switch {
	case cols == 1:
		return line{g: g, n: ur}, true
	case rows == 1:
		return line{g: g, across: true, n: uc}, true
	}
	return line{}, false
}

// lookupEqual is exact-match equality for lookups: types must agree, text
// ignores case and may hold wildcards.
func lookupEqual(key, v Value, text *textRules, wildcard bool) bool {
	if key.Type != v.Type {
		return false
	}
	switch key.Type {
	case ValueNumber:
		return key.Number == v.Number
	case ValueString:
		if wildcard && strings.ContainsAny(key.Text, "*?~") {
			return wildcardMatch(text.lower(key.Text), text.lower(v.Text))
		}
		return text.equal(key.Text, v.Text)
	case ValueBool:
		return key.Bool == v.Bool
	}
	return false
}

// exactIndex returns the first position equal to key, or -1.
func exactIndex(l line, key Value, text *textRules, wildcard bool) int {
	for i := 0; i < l.n; i++ {
		if lookupEqual(key, l.at(i), text, wildcard) {
			return i
		}
	}
	return -1
}

// sortedIndex returns the last position not past key in a line sorted in
// the given direction, or -1. Values of another type are skipped.
func sortedIndex(l line, key Value, text *textRules, descending bool) int {
	found := -1
	for i := 0; i < l.n; i++ {
		v := l.at(i)
		if v.Type != key.Type {
			continue
		}
		c := compareValues(v, key, text)
		if descending {
			c = -c
		}
		if c > 0 {
			break
		}
		found = i
	}
	return found
}

// tableLookup builds VLOOKUP and HLOOKUP.
func tableLookup(horizontal bool) func(*CallContext, []Arg) Value {
	return func(ctx *CallContext, args []Arg) Value {
		key := args[0].Value
		if key.Type == ValueEmpty {
			return NewErrorValue(ErrorNA)
		}
		g, kind := ctx.Grid(args[1])
		if kind != ErrorNone {
			return NewErrorValue(kind)
		}
		idx := int(args[2].Value.Number)
		rows, cols := g.Dims()
		ur, uc := usedDims(g)
		width, keys := cols, line{g: g, n: ur}
		if horizontal {
			width, keys = rows, line{g: g, across: true, n: uc}
		}
		if idx < 1 {
			return NewErrorValue(ErrorVALUE)
		}
		if idx > width {
			return NewErrorValue(ErrorREF)
		}
		text := ctx.vm.e.text
		var pos int
		if flag(args, 3, true) {
			pos = sortedIndex(keys, key, text, false)
		} else {
			pos = exactIndex(keys, key, text, true)
		}
		if pos < 0 {
			return NewErrorValue(ErrorNA, "no match for "+key.String())
		}
		if horizontal {
			return g.At(idx-1, pos)
		}
		return g.At(pos, idx-1)
	}
}

func fnMATCH(ctx *CallContext, args []Arg) Value {
	key := args[0].Value
	if key.Type == ValueEmpty {
		return NewErrorValue(ErrorNA)
	}
	g, kind := ctx.Grid(args[1])
	if kind != ErrorNone {
		return NewErrorValue(kind)
	}
	l, ok := vectorOf(g)
	if !ok {
		return NewErrorValue(ErrorNA)
	}
	text := ctx.vm.e.text
	pos := -1
	switch mode := num(args, 2, 1); {
	case mode == 0:
		pos = exactIndex(l, key, text, true)
	case mode > 0:
		pos = sortedIndex(l, key, text, false)
	default:
		pos = sortedIndex(l, key, text, true)
	}
	if pos < 0 {
		return NewErrorValue(ErrorNA)
	}
	return NewNumberValue(float64(pos + 1))
}

// searchLine implements the XLOOKUP and XMATCH match modes: 0 exact, -1
// exact or next smaller, 1 exact or next larger, 2 wildcard. A negative
// search mode scans from the end.
func searchLine(l line, key Value, text *textRules, matchMode, searchMode int) int {
	best := -1
	var bestValue Value
	for k := 0; k < l.n; k++ {
		i := k
		if searchMode < 0 {
			i = l.n - 1 - k
		}
		v := l.at(i)
		if lookupEqual(key, v, text, matchMode == 2) {
			return i
		}
		if matchMode != -1 && matchMode != 1 || v.Type != key.Type {
			continue
		}
		c := compareValues(v, key, text)
		if c*matchMode <= 0 {
			continue
		}
		if best < 0 || compareValues(v, bestValue, text)*matchMode < 0 {
			best, bestValue = i, v
		}
	}
	return best
}

func fnXLOOKUP(ctx *CallContext, args []Arg) Arg {
	key := args[0].Value
	lg, kind := ctx.Grid(args[1])
	if kind != ErrorNone {
		return valueArg(NewErrorValue(kind))
	}
	l, ok := vectorOf(lg)
	if !ok {
		return valueArg(NewErrorValue(ErrorVALUE))
	}
	matchMode, searchMode := int(num(args, 4, 0)), int(num(args, 5, 1))
	if matchMode < -1 || matchMode > 2 || searchMode == 0 || searchMode < -2 || searchMode > 2 {
		return valueArg(NewErrorValue(ErrorVALUE))
	}
	pos := searchLine(l, key, ctx.vm.e.text, matchMode, searchMode)
	if pos < 0 {
		if len(args) > 3 && !args[3].Missing {
			return args[3]
		}
		return valueArg(NewErrorValue(ErrorNA))
	}
	ret := args[2]
	rows, cols := lg.Dims()
	if ret.Ref != nil && len(ret.Ref.Areas) == 1 {
		area := ret.Ref.Areas[0]
		if l.across {
			if area.Cols() != cols {
				return valueArg(NewErrorValue(ErrorVALUE))
			}
			area.From.Col += pos
			area.To.Col = area.From.Col
		} else {
			if area.Rows() != rows {
				return valueArg(NewErrorValue(ErrorVALUE))
			}
			area.From.Row += pos
			area.To.Row = area.From.Row
		}
		return refArg(Reference{Areas: []Area{area}})
	}
	rg, kind := ctx.Grid(ret)
	if kind != ErrorNone {
		return valueArg(NewErrorValue(kind))
	}
	rr, rc := rg.Dims()
	if l.across {
		if rc != cols {
			return valueArg(NewErrorValue(ErrorVALUE))
		}
		return valueArg(newMatrix(rr, 1, func(r, _ int) Value { return rg.At(r, pos) }).reduce())
	}
	if rr != rows {
		return valueArg(NewErrorValue(ErrorVALUE))
	}
	return valueArg(newMatrix(1, rc, func(_, c int) Value { return rg.At(pos, c) }).reduce())
}

// reduce turns a 1×1 array into its element.
func (v Value) reduce() Value {
	if rows, cols := v.Dims(); v.Type == ValueArray && rows == 1 && cols == 1 {
		return v.Array[0][0]
	}
	return v
}

func fnXMATCH(ctx *CallContext, args []Arg) Value {
	g, kind := ctx.Grid(args[1])
	if kind != ErrorNone {
		return NewErrorValue(kind)
	}
	l, ok := vectorOf(g)
	if !ok {
		return NewErrorValue(ErrorVALUE)
	}
	matchMode, searchMode := int(num(args, 2, 0)), int(num(args, 3, 1))
	if matchMode < -1 || matchMode > 2 || searchMode == 0 || searchMode < -2 || searchMode > 2 {
		return NewErrorValue(ErrorVALUE)
	}
	pos := searchLine(l, args[0].Value, ctx.vm.e.text, matchMode, searchMode)
	if pos < 0 {
		return NewErrorValue(ErrorNA)
	}
	return NewNumberValue(float64(pos + 1))
}

// indexPick resolves INDEX's row and column arguments against a shape. A
// zero selects the whole column or row; a single index into a one-row
// shape selects a column.
func indexPick(args []Arg, rows, cols int) (r0, r1, c0, c1 int, ok bool) {
	row, col := int(num(args, 1, 0)), int(num(args, 2, 0))
	if (len(args) < 3 || args[2].Missing) && rows == 1 && cols > 1 {
		row, col = 0, row
	}
	if row < 0 || col < 0 || row > rows || col > cols {
		return 0, 0, 0, 0, false
	}
	r0, r1, c0, c1 = 0, rows-1, 0, cols-1
	if row > 0 {
		r0, r1 = row-1, row-1
	}
	if col > 0 {
		c0, c1 = col-1, col-1
	}
	return r0, r1, c0, c1, true
}

// fnINDEX returns a reference into a reference, so INDEX(...):INDEX(...)
// builds ranges, and a slice of an array otherwise.
func fnINDEX(ctx *CallContext, args []Arg) Arg {
	src := args[0]
	if src.Ref != nil && len(src.Ref.Areas) > 0 && len(src.Ref.External) == 0 {
		n := int(num(args, 3, 1))
		if n < 1 || n > len(src.Ref.Areas) {
			return valueArg(NewErrorValue(ErrorREF))
		}
		area := src.Ref.Areas[n-1]
		r0, r1, c0, c1, ok := indexPick(args, area.Rows(), area.Cols())
		if !ok {
			return valueArg(NewErrorValue(ErrorREF))
		}
		from := CellAddr{Row: area.From.Row + r0, Col: area.From.Col + c0}
		to := CellAddr{Row: area.From.Row + r1, Col: area.From.Col + c1}
		return refArg(Reference{Areas: []Area{{Sheet: area.Sheet, From: from, To: to}}})
	}
	if src.Ref == nil && src.Value.Type == ValueError {
		return src
	}
	g, kind := ctx.Grid(src)
	if kind != ErrorNone {
		return valueArg(NewErrorValue(kind))
	}
	if num(args, 3, 1) != 1 {
		return valueArg(NewErrorValue(ErrorREF))
	}
	rows, cols := g.Dims()
	r0, r1, c0, c1, ok := indexPick(args, rows, cols)
	if !ok {
		return valueArg(NewErrorValue(ErrorREF))
	}
	return valueArg(newMatrix(r1-r0+1, c1-c0+1, func(r, c int) Value { return g.At(r0+r, c0+c) }).reduce())
}

// fnOFFSET shifts and resizes a reference.
func fnOFFSET(_ *CallContext, args []Arg) Arg {
	ref := args[0].Ref
	if len(ref.Areas) != 1 || len(ref.External) != 0 {
		return valueArg(NewErrorValue(ErrorVALUE))
	}
	base := ref.Areas[0]
	height, width := int(num(args, 3, float64(base.Rows()))), int(num(args, 4, float64(base.Cols())))
	if height < 1 || width < 1 {
		return valueArg(NewErrorValue(ErrorREF))
	}
	from := CellAddr{Row: base.From.Row + int(args[1].Value.Number), Col: base.From.Col + int(args[2].Value.Number)}
	to := CellAddr{Row: from.Row + height - 1, Col: from.Col + width - 1}
	if !from.Valid() || !to.Valid() {
		return valueArg(NewErrorValue(ErrorREF))
	}
	return refArg(Reference{Areas: []Area{{Sheet: base.Sheet, From: from, To: to}}})
}

// fnINDIRECT parses reference text in the calling cell's context. Names
// and range expressions work; anything that is not a reference is #REF!.
func fnINDIRECT(ctx *CallContext, args []Arg) Arg {
	text := strings.TrimSpace(strings.TrimPrefix(args[0].Value.Text, "="))
	if text == "" {
		return valueArg(NewErrorValue(ErrorREF))
	}
	e := ctx.vm.e
	mode := RefModeA1
	if !flag(args, 1, true) {
		mode = RefModeR1C1
	}
	n, err := ParseFormula(text, ParseContext{Home: ctx.vm.home, Locale: e.opts.Locale, Mode: mode})
	if err != nil {
		return valueArg(NewErrorValue(ErrorREF, "invalid reference "+strconv.Quote(text)))
	}
	out := ctx.vm.sub(e.program("", n))
	if out.Ref == nil {
		return valueArg(NewErrorValue(ErrorREF, strconv.Quote(text)+" is not a reference"))
	}
	return out
}

// position builds ROW and COLUMN. With dynamic arrays a multi-cell
// reference gives all its row or column numbers.
func position(column bool) func(*CallContext, []Arg) Value {
	return func(ctx *CallContext, args []Arg) Value {
		if len(args) == 0 || args[0].Missing {
			if column {
				return NewNumberValue(float64(ctx.Home().Col))
			}
			return NewNumberValue(float64(ctx.Home().Row))
		}
		ref := args[0].Ref
		if !ref.single() {
			return NewErrorValue(ErrorREF)
		}
		var from, to CellAddr
		if len(ref.Areas) == 1 {
			from, to = ref.Areas[0].From, ref.Areas[0].To
		} else {
			from, to = ref.External[0].From, ref.External[0].To
		}
		if column {
			if ctx.DynamicArrays() && to.Col > from.Col {
				return newMatrix(1, to.Col-from.Col+1, func(_, c int) Value { return NewNumberValue(float64(from.Col + c)) })
			}
			return NewNumberValue(float64(from.Col))
		}
		if ctx.DynamicArrays() && to.Row > from.Row {
			return newMatrix(to.Row-from.Row+1, 1, func(r, _ int) Value { return NewNumberValue(float64(from.Row + r)) })
		}
		return NewNumberValue(float64(from.Row))
	}
}

func extentOf(column bool) func(*CallContext, []Arg) Value {
	return func(ctx *CallContext, args []Arg) Value {
		var rows, cols int
		if args[0].Ref != nil {
			if !args[0].Ref.single() {
				return NewErrorValue(ErrorREF)
			}
			rows, cols = args[0].Ref.dims()
		} else {
			rows, cols = args[0].Value.Dims()
		}
		if column {
			return NewNumberValue(float64(cols))
		}
		return NewNumberValue(float64(rows))
	}
}

// matrixOf materialises an array argument, whole columns and rows capped
// at the used extent.
func matrixOf(ctx *CallContext, a Arg) ([][]Value, Value) {
	g, kind := ctx.Grid(a)
	if kind != ErrorNone {
		return nil, NewErrorValue(kind)
	}
	v := gridValue(g)
	if v.Type != ValueArray {
		return [][]Value{{v}}, EmptyValue()
	}
	return v.Array, EmptyValue()
}

func transposed(m [][]Value) [][]Value {
	if len(m) == 0 {
		return m
	}
	out := make([][]Value, len(m[0]))
	for c := range out {
		out[c] = make([]Value, len(m))
		for r := range m {
			out[c][r] = m[r][c]
		}
	}
	return out
}

func fnTRANSPOSE(ctx *CallContext, args []Arg) Value {
	m, failed := matrixOf(ctx, args[0])
	if failed.IsError() {
		return failed
	}
	return Value{Type: ValueArray, Array: transposed(m)}
}

// fnSORT sorts rows (or columns) by one key, stable, blanks last.
func fnSORT(ctx *CallContext, args []Arg) Value {
	m, failed := matrixOf(ctx, args[0])
	if failed.IsError() {
		return failed
	}
	byCol := flag(args, 3, false)
	if byCol {
		m = transposed(m)
	}
	key, order := int(num(args, 1, 1)), num(args, 2, 1)
	if len(m) == 0 || key < 1 || key > len(m[0]) || (order != 1 && order != -1) {
		return NewErrorValue(ErrorVALUE)
	}
	text := ctx.vm.e.text
	sorted := slices.Clone(m)
	slices.SortStableFunc(sorted, func(a, b []Value) int {
		x, y := a[key-1], b[key-1]
		if x.Type == ValueEmpty || y.Type == ValueEmpty {
			return orderValues(x, y, text)
		}
		return orderValues(x, y, text) * int(order)
	})
	if byCol {
		sorted = transposed(sorted)
	}
	return Value{Type: ValueArray, Array: sorted}
}

// rowKey identifies a row for UNIQUE; text compares without case.
func rowKey(row []Value, text *textRules) string {
	var b strings.Builder
	for _, v := range row {
		b.WriteByte(byte('0' + v.Type))
		switch v.Type {
		case ValueString:
			b.WriteString(text.lower(v.Text))
		case ValueError:
			b.WriteString(v.Err.String())
		default:
			b.WriteString(v.String())
		}
		b.WriteByte(0)
	}
	return b.String()
}

func fnUNIQUE(ctx *CallContext, args []Arg) Value {
	m, failed := matrixOf(ctx, args[0])
	if failed.IsError() {
		return failed
	}
	byCol, once := flag(args, 1, false), flag(args, 2, false)
	if byCol {
		m = transposed(m)
	}
	text := ctx.vm.e.text
	counts := make(map[string]int, len(m))
	var order []string
	first := make(map[string][]Value, len(m))
	for _, row := range m {
		k := rowKey(row, text)
		if counts[k] == 0 {
			order = append(order, k)
			first[k] = row
		}
		counts[k]++
	}
	var out [][]Value
	for _, k := range order {
		if once && counts[k] > 1 {
			continue
		}
		out = append(out, first[k])
	}
	if len(out) == 0 {
		return NewErrorValue(ErrorCALC, "no unique values")
	}
	if byCol {
		out = transposed(out)
	}
	return Value{Type: ValueArray, Array: out}
}

// fnFILTER keeps the rows (or columns) whose include entry is true.
func fnFILTER(ctx *CallContext, args []Arg) Value {
	m, failed := matrixOf(ctx, args[0])
	if failed.IsError() {
		return failed
	}
	inc, failed := matrixOf(ctx, args[1])
	if failed.IsError() {
		return failed
	}
	rows := len(m)
	cols := 0
	if rows > 0 {
		cols = len(m[0])
	}
	var keep func(i int) Value
	var horizontal bool
	switch {
	case len(inc) == rows && len(inc[0]) == 1:
		keep = func(i int) Value { return inc[i][0].ToBool() }
	case len(inc) == 1 && len(inc[0]) == cols:
		horizontal = true
		keep = func(i int) Value { return inc[0][i].ToBool() }
	default:
		return NewErrorValue(ErrorVALUE)
	}
	src := m
	if horizontal {
		src = transposed(m)
	}
	var out [][]Value
	for i, row := range src {
		b := keep(i)
		if b.Type == ValueError {
			return b
		}
		if b.Bool {
			out = append(out, row)
		}
	}
	if len(out) == 0 {
		if len(args) > 2 && !args[2].Missing {
			return args[2].Value
		}
		return NewErrorValue(ErrorCALC, "empty filter result")
	}
	if horizontal {
		out = transposed(out)
	}
	return Value{Type: ValueArray, Array: out}
}

func fnSEQUENCE(_ *CallContext, args []Arg) Value {
	rows, cols := int(args[0].Value.Number), int(num(args, 1, 1))
	start, step := num(args, 2, 1), num(args, 3, 1)
	if rows < 1 || cols < 1 {
		return NewErrorValue(ErrorCALC)
	}
	if rows*cols > maxSequenceCells {
		return NewErrorValue(ErrorNUM)
	}
	return newMatrix(rows, cols, func(r, c int) Value {
		return NewNumberValue(start + float64(r*cols+c)*step)
	})
}

// stack builds VSTACK and HSTACK; short pieces are padded with #N/A.
func stack(horizontal bool) func(*CallContext, []Arg) Value {
	return func(ctx *CallContext, args []Arg) Value {
		var out [][]Value
		for _, a := range args {
			if a.Missing {
				continue
			}
			m, failed := matrixOf(ctx, a)
			if failed.IsError() {
				return failed
			}
			if horizontal {
				m = transposed(m)
			}
			out = append(out, m...)
		}
		v := NewArrayValue(out)
		if horizontal {
			v.Array = transposed(v.Array)
		}
		return v
	}
}
