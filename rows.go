// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"fmt"
	"slices"

	"github.com/hashicorp/go-multierror"
)

// shift describes rows or columns inserted (n > 0) or deleted (n < 0) at
// a position of one sheet.
type shift struct {
	sheet int
	rows  bool
	at    int
	n     int
}

func (s shift) limit() int {
	if s.rows {
		return MaxRows
	}
	return MaxColumns
}

// point moves one coordinate. It reports false when the coordinate was
// deleted or pushed off the sheet.
func (s shift) point(x int) (int, bool) {
	switch {
	case x < s.at:
		return x, true
	case s.n > 0:
		return x + s.n, x+s.n <= s.limit()
	case x < s.at-s.n:
		return 0, false
	}
	return x + s.n, true
}

// span moves an interval. Insertions inside it stretch it; deletions
// shrink it. It reports false when nothing of it is left.
func (s shift) span(a, b int) (int, int, bool) {
	if s.n > 0 {
		if a >= s.at {
			a += s.n
		}
		if b >= s.at {
			b += s.n
		}
		return a, min(b, s.limit()), a <= s.limit()
	}
	end := s.at - s.n - 1
	na, nb := a, b
	if a > end {
		na = a + s.n
	} else if a >= s.at {
		na = s.at
	}
	if b > end {
		nb = b + s.n
	} else if b >= s.at {
		nb = s.at - 1
	}
	return na, nb, na <= nb
}

// addr moves a cell of the shifted sheet.
func (s shift) addr(a CellAddr) (CellAddr, bool) {
	var ok bool
	if s.rows {
		a.Row, ok = s.point(a.Row)
	} else {
		a.Col, ok = s.point(a.Col)
	}
	return a, ok
}

// InsertRows provides a function to insert n empty rows before row.
// Cells below move down and every formula, defined name and table that
// refers to them follows.
func (e *Engine) InsertRows(sheet string, row, n int) error {
	if row < 1 || row > MaxRows {
		return ErrMaxRows
	}
	if n <= 0 {
		return ErrRowCount
	}
	return e.moveCells(sheet, shift{rows: true, at: row, n: n})
}

// DeleteRows provides a function to delete n rows starting at row.
// References to deleted cells become #REF!.
func (e *Engine) DeleteRows(sheet string, row, n int) error {
	if row < 1 || row > MaxRows {
		return ErrMaxRows
	}
	if n <= 0 {
		return ErrRowCount
	}
	return e.moveCells(sheet, shift{rows: true, at: row, n: -n})
}

// InsertCols provides a function to insert n empty columns before the
// named column.
func (e *Engine) InsertCols(sheet, col string, n int) error {
	num, err := ColumnNameToNumber(col)
	if err != nil {
		return err
	}
	if n <= 0 {
		return ErrRowCount
	}
	return e.moveCells(sheet, shift{at: num, n: n})
}

// DeleteCols provides a function to delete n columns starting at the
// named column.
func (e *Engine) DeleteCols(sheet, col string, n int) error {
	num, err := ColumnNameToNumber(col)
	if err != nil {
		return err
	}
	if n <= 0 {
		return ErrRowCount
	}
	return e.moveCells(sheet, shift{at: num, n: -n})
}

type relocatedFormula struct {
	sheet int
	home  CellAddr
	node  Node
}

// moveCells applies a shift: formulas are relocated and taken out of the
// graph, the sheet's cells move, names and tables follow, and the
// formulas are assigned again, which leaves all of them dirty.
func (e *Engine) moveCells(sheet string, s shift) error {
	if s.n == 0 {
		return ErrRowCount
	}
	if s.n < 0 && -s.n > s.limit() {
		s.n = -s.limit()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.wb.sheetID(sheet)
	if !ok {
		return ErrSheetNotExist{SheetName: sheet}
	}
	s.sheet = id
	cells := make([]*formulaCell, 0, len(e.graph.formulas))
	for _, fc := range e.graph.formulas {
		cells = append(cells, fc)
	}
	slices.SortFunc(cells, func(a, b *formulaCell) int {
		if e.graph.arena.less(a.id, b.id) {
			return -1
		}
		return 1
	})
	var pending []relocatedFormula
	for _, fc := range cells {
		home := fc.addr
		if fc.sheet == id {
			if home, ok = s.addr(fc.addr); !ok {
				continue
			}
		}
		pending = append(pending, relocatedFormula{
			sheet: fc.sheet,
			home:  home,
			node:  e.relocate(fc.node, fc.sheet, fc.addr, home, s),
		})
	}
	for _, fc := range cells {
		e.dropFormula(fc.sheet, fc.addr)
	}
	moved := make(map[CellAddr]cellRecord)
	for addr, rec := range e.store.Cells(id) {
		if rec.origin != nil {
			continue
		}
		rec.formula, rec.spill = nil, nil
		if rec.value.Type == ValueEmpty {
			continue
		}
		if to, ok := s.addr(addr); ok {
			moved[to] = rec
		}
	}
	e.store.ReplaceSheet(id, moved)
	e.relocateNames(s)
	e.relocateTables(s)
	e.ranges.Clear()
	var result *multierror.Error
	for _, p := range pending {
		text := SerializeFormula(p.node, SerializeContext{Home: p.home, Locale: e.opts.Locale, Mode: e.opts.RefMode})
		if err := e.setFormula(p.sheet, p.home, text); err != nil {
			e.store.SetValue(p.sheet, p.home, NewErrorValue(ErrorREF))
			result = multierror.Append(result, fmt.Errorf("%s: %w", e.cellLabel(p.sheet, p.home), err))
		}
	}
	e.log.Debug("cells moved", "sheet", sheet, "rows", s.rows, "at", s.at, "count", s.n, "formulas", len(pending))
	return result.ErrorOrNil()
}

// shifted reports whether references with this prefix, written on sheet,
// point at the shifted sheet. 3-D spans and other workbooks never move.
func (e *Engine) shifted(p *SheetPrefix, sheet int, s shift) bool {
	if p == nil {
		return sheet == s.sheet
	}
	if p.Workbook != "" || p.SheetEnd != "" {
		return false
	}
	id, ok := e.wb.sheetID(p.Sheet)
	return ok && id == s.sheet
}

// relocate returns a copy of a tree written at home, moved to newHome,
// with references into the shifted area adjusted. Shared subtrees are
// never modified.
func (e *Engine) relocate(n Node, sheet int, home, newHome CellAddr, s shift) Node {
	switch t := n.(type) {
	case *CellRefNode:
		a := t.Ref.Addr(home)
		if e.shifted(t.Prefix, sheet, s) {
			var ok bool
			if a, ok = s.addr(a); !ok {
				return &ErrorNode{Kind: ErrorREF, Prefix: t.Prefix}
			}
		}
		return &CellRefNode{Prefix: t.Prefix, Ref: rebaseRef(t.Ref, a, newHome, true, true)}
	case *RangeRefNode:
		from, to := t.From.Addr(home), t.To.Addr(home)
		if e.shifted(t.Prefix, sheet, s) {
			ok := true
			switch {
			case s.rows && t.Kind != RangeColumns:
				from.Row, to.Row, ok = s.span(min(from.Row, to.Row), max(from.Row, to.Row))
			case !s.rows && t.Kind != RangeRows:
				from.Col, to.Col, ok = s.span(min(from.Col, to.Col), max(from.Col, to.Col))
			}
			if !ok {
				return &ErrorNode{Kind: ErrorREF, Prefix: t.Prefix}
			}
		}
		rows, cols := t.Kind != RangeColumns, t.Kind != RangeRows
		return &RangeRefNode{
			Prefix: t.Prefix,
			From:   rebaseRef(t.From, from, newHome, rows, cols),
			To:     rebaseRef(t.To, to, newHome, rows, cols),
			Kind:   t.Kind,
		}
	case *UnaryNode:
		return &UnaryNode{Op: t.Op, Operand: e.relocate(t.Operand, sheet, home, newHome, s)}
	case *BinaryNode:
		return &BinaryNode{
			Op:    t.Op,
			Left:  e.relocate(t.Left, sheet, home, newHome, s),
			Right: e.relocate(t.Right, sheet, home, newHome, s),
		}
	case *FunctionNode:
		args := make([]Node, len(t.Args))
		for i, arg := range t.Args {
			args[i] = e.relocate(arg, sheet, home, newHome, s)
		}
		return &FunctionNode{Name: t.Name, Spelling: t.Spelling, Legacy: t.Legacy, Args: args}
	case *ParenNode:
		return &ParenNode{Inner: e.relocate(t.Inner, sheet, home, newHome, s)}
	}
	return n
}

// rebaseRef encodes an absolute address as a reference component written
// at newHome, keeping each component's absolute or relative form. Only the
// selected axes are touched.
func rebaseRef(r CellRef, a, newHome CellAddr, rows, cols bool) CellRef {
	out := r
	if rows {
		out.Row = a.Row
		if !r.RowAbs {
			out.Row = a.Row - newHome.Row
		}
	}
	if cols {
		out.Col = a.Col
		if !r.ColAbs {
			out.Col = a.Col - newHome.Col
		}
	}
	return out
}

// relocateNames adjusts the defined names that point into the shifted
// sheet. Unqualified references in names follow the caller's sheet and do
// not move.
func (e *Engine) relocateNames(s shift) {
	for _, dn := range e.wb.names {
		if dn.node == nil {
			continue
		}
		n := e.relocate(dn.node, -1, CellAddr{Row: 1, Col: 1}, CellAddr{Row: 1, Col: 1}, s)
		key := NodeKey(n)
		if key == dn.key {
			continue
		}
		dn.node, dn.key = n, key
		dn.refersTo = SerializeFormula(n, SerializeContext{Home: CellAddr{Row: 1, Col: 1}, Locale: e.opts.Locale, Mode: e.opts.RefMode})
	}
}

// relocateTables moves and resizes the tables of the shifted sheet. A
// table whose rows or columns are all deleted is removed.
func (e *Engine) relocateTables(s shift) {
	for key, t := range e.wb.tables {
		if t.sheet != s.sheet {
			continue
		}
		if s.rows {
			from, to, ok := s.span(t.area.From.Row, t.area.To.Row)
			if !ok {
				delete(e.wb.tables, key)
				continue
			}
			t.area.From.Row, t.area.To.Row = from, to
			continue
		}
		from, to, ok := s.span(t.area.From.Col, t.area.To.Col)
		if !ok {
			delete(e.wb.tables, key)
			continue
		}
		t.columns = shiftColumns(t.columns, t.area.From.Col, s)
		t.area.From.Col, t.area.To.Col = from, to
	}
}

// shiftColumns updates a table's column names for inserted or deleted
// sheet columns. Inserted columns get unused ColumnN names.
func shiftColumns(columns []string, first int, s shift) []string {
	var out []string
	if s.n < 0 {
		for i, name := range columns {
			if col := first + i; col < s.at || col >= s.at-s.n {
				out = append(out, name)
			}
		}
		return out
	}
	idx := s.at - first
	if idx <= 0 || idx >= len(columns) {
		return columns
	}
	out = append(out, columns[:idx]...)
	next := 1
	for i := 0; i < s.n; i++ {
		for {
			name := fmt.Sprintf("Column%d", next)
			next++
			if inStrSlice(columns, name) < 0 {
				out = append(out, name)
				break
			}
		}
	}
	out = append(out, columns[idx:]...)
	return out
}
