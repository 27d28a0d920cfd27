// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"sync"
)

// cellRecord is what the store keeps for one cell. A formula cell carries
// its formula and last result; a spill origin also carries the block it
// spilled; a cell covered by someone else's spill records the origin.
type cellRecord struct {
	value   Value
	formula *formulaCell
	spill   *spillBlock
	origin  *CellAddr
}

// occupied reports whether the cell holds content of its own.
func (r cellRecord) occupied() bool {
	return r.formula != nil || (r.origin == nil && r.value.Type != ValueEmpty)
}

type sheetCells struct {
	cells  map[CellAddr]cellRecord
	maxRow int
	maxCol int
	gen    uint64
}

// CellStore is the engine's cell storage, organised by sheet. Reads are
// shared; during a recalculation each cell is written by exactly one worker.
type CellStore struct {
	mu     sync.RWMutex
	sheets map[int]*sheetCells
}

// NewCellStore creates an empty cell store.
func NewCellStore() *CellStore {
	return &CellStore{sheets: make(map[int]*sheetCells)}
}

func (cs *CellStore) sheetLocked(sheet int) *sheetCells {
	sc, ok := cs.sheets[sheet]
	if !ok {
		sc = &sheetCells{cells: make(map[CellAddr]cellRecord)}
		cs.sheets[sheet] = sc
	}
	return sc
}

// Get returns the record of a cell and whether one exists.
func (cs *CellStore) Get(sheet int, addr CellAddr) (cellRecord, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if sc, ok := cs.sheets[sheet]; ok {
		rec, exists := sc.cells[addr]
		return rec, exists
	}
	return cellRecord{}, false
}

// Value returns the value of a cell, blank when it is absent.
func (cs *CellStore) Value(sheet int, addr CellAddr) Value {
	rec, _ := cs.Get(sheet, addr)
	return rec.value
}

// update applies fn to a cell record under the write lock. A record that
// ends up empty is removed.
func (cs *CellStore) update(sheet int, addr CellAddr, fn func(rec *cellRecord)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.updateLocked(sheet, addr, fn)
}

func (cs *CellStore) updateLocked(sheet int, addr CellAddr, fn func(rec *cellRecord)) {
	sc := cs.sheetLocked(sheet)
	rec := sc.cells[addr]
	fn(&rec)
	sc.gen++
	if rec.formula == nil && rec.spill == nil && rec.origin == nil && rec.value.Type == ValueEmpty {
		delete(sc.cells, addr)
		return
	}
	sc.cells[addr] = rec
	sc.maxRow = max(sc.maxRow, addr.Row)
	sc.maxCol = max(sc.maxCol, addr.Col)
}

// SetValue stores a constant, dropping any formula the cell had and any
// spill marker covering it.
func (cs *CellStore) SetValue(sheet int, addr CellAddr, v Value) {
	cs.update(sheet, addr, func(rec *cellRecord) {
		rec.value = v
		rec.formula = nil
		rec.spill = nil
		rec.origin = nil
	})
}

// SetFormula attaches a formula to a cell.
func (cs *CellStore) SetFormula(sheet int, addr CellAddr, fc *formulaCell) {
	cs.update(sheet, addr, func(rec *cellRecord) {
		rec.formula = fc
		rec.origin = nil
	})
}

// SetResult stores the evaluated result of a formula cell.
func (cs *CellStore) SetResult(sheet int, addr CellAddr, v Value) {
	cs.update(sheet, addr, func(rec *cellRecord) {
		rec.value = v
	})
}

// Delete removes a cell entirely.
func (cs *CellStore) Delete(sheet int, addr CellAddr) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if sc, ok := cs.sheets[sheet]; ok {
		delete(sc.cells, addr)
		sc.gen++
	}
}

// Extent returns the largest row and column holding content on a sheet.
func (cs *CellStore) Extent(sheet int) (int, int) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if sc, ok := cs.sheets[sheet]; ok {
		return sc.maxRow, sc.maxCol
	}
	return 0, 0
}

// Generation returns a counter that changes whenever the sheet is written.
func (cs *CellStore) Generation(sheet int) uint64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if sc, ok := cs.sheets[sheet]; ok {
		return sc.gen
	}
	return 0
}

// Range calls fn for every stored cell inside the area. Iteration order is
// unspecified. fn must not call back into the store.
func (cs *CellStore) Range(area Area, fn func(addr CellAddr, rec cellRecord) bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	sc, ok := cs.sheets[area.Sheet]
	if !ok {
		return
	}
	if area.Size() <= len(sc.cells) {
		for r := area.From.Row; r <= min(area.To.Row, sc.maxRow); r++ {
			for c := area.From.Col; c <= min(area.To.Col, sc.maxCol); c++ {
				addr := CellAddr{Row: r, Col: c}
				if rec, ok := sc.cells[addr]; ok && !fn(addr, rec) {
					return
				}
			}
		}
		return
	}
	for addr, rec := range sc.cells {
		if area.Contains(area.Sheet, addr) && !fn(addr, rec) {
			return
		}
	}
}

// Matrix materialises the values of an area as rows of values. The area
// is clipped to the sheet's used extent first.
func (cs *CellStore) Matrix(area Area) [][]Value {
	maxRow, maxCol := cs.Extent(area.Sheet)
	area = clipArea(area, maxRow, maxCol)
	if area.To.Row < area.From.Row || area.To.Col < area.From.Col {
		return nil
	}
	out := make([][]Value, area.Rows())
	for r := range out {
		out[r] = make([]Value, area.Cols())
	}
	cs.Range(area, func(addr CellAddr, rec cellRecord) bool {
		out[addr.Row-area.From.Row][addr.Col-area.From.Col] = rec.value
		return true
	})
	return out
}

// clipArea trims whole-row and whole-column areas to the used extent.
func clipArea(area Area, maxRow, maxCol int) Area {
	if area.To.Row > maxRow && area.To.Row-area.From.Row+1 > 1 {
		area.To.Row = max(maxRow, area.From.Row)
	}
	if area.To.Col > maxCol && area.To.Col-area.From.Col+1 > 1 {
		area.To.Col = max(maxCol, area.From.Col)
	}
	return area
}

// Cells returns a copy of a sheet's records.
func (cs *CellStore) Cells(sheet int) map[CellAddr]cellRecord {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	sc, ok := cs.sheets[sheet]
	if !ok {
		return map[CellAddr]cellRecord{}
	}
	out := make(map[CellAddr]cellRecord, len(sc.cells))
	for k, v := range sc.cells {
		out[k] = v
	}
	return out
}

// ReplaceSheet swaps in a new set of records for a sheet.
func (cs *CellStore) ReplaceSheet(sheet int, cells map[CellAddr]cellRecord) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	sc := &sheetCells{cells: cells}
	if old, ok := cs.sheets[sheet]; ok {
		sc.gen = old.gen + 1
	}
	for addr := range cells {
		sc.maxRow = max(sc.maxRow, addr.Row)
		sc.maxCol = max(sc.maxCol, addr.Col)
	}
	cs.sheets[sheet] = sc
}

// ClearSheet drops every cell of a sheet.
func (cs *CellStore) ClearSheet(sheet int) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.sheets, sheet)
}

// Len returns the number of stored cells across all sheets.
func (cs *CellStore) Len() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	total := 0
	for _, sc := range cs.sheets {
		total += len(sc.cells)
	}
	return total
}

// SheetLen returns the number of stored cells on a sheet.
func (cs *CellStore) SheetLen(sheet int) int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if sc, ok := cs.sheets[sheet]; ok {
		return len(sc.cells)
	}
	return 0
}
