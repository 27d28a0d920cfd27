// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

// spillBlock is the array an origin cell spilled and where it landed.
type spillBlock struct {
	area   Area
	values [][]Value
}

// spillChange reports that a formula's spill layout differs from what the
// graph knows: a new or resized block, a blocked block, or a block that
// went away.
type spillChange struct {
	origin  CellID
	area    Area
	spilled bool
	blocked bool
}

// spillObstructed reports whether a cell would stop an origin's array from
// spilling over it.
func spillObstructed(rec cellRecord, origin CellAddr) bool {
	if rec.formula != nil {
		return true
	}
	if rec.origin == nil {
		return rec.value.Type != ValueEmpty
	}
	return *rec.origin != origin
}

// clearSpillLocked empties the members an origin left in an area.
func (cs *CellStore) clearSpillLocked(sheet int, origin CellAddr, area Area, keep *Area) {
	sc, ok := cs.sheets[sheet]
	if !ok {
		return
	}
	for r := area.From.Row; r <= area.To.Row; r++ {
		for c := area.From.Col; c <= area.To.Col; c++ {
			addr := CellAddr{Row: r, Col: c}
			if addr == origin || (keep != nil && keep.Contains(sheet, addr)) {
				continue
			}
			if rec, ok := sc.cells[addr]; ok && rec.origin != nil && *rec.origin == origin {
				cs.updateLocked(sheet, addr, func(rec *cellRecord) {
					rec.origin = nil
					rec.value = EmptyValue()
				})
			}
		}
	}
}

// writeResult stores a scalar formula result, removing any block the cell
// spilled before.
func (cs *CellStore) writeResult(sheet int, origin CellAddr, v Value) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if sc, ok := cs.sheets[sheet]; ok {
		if rec, ok := sc.cells[origin]; ok && rec.spill != nil {
			cs.clearSpillLocked(sheet, origin, rec.spill.area, nil)
		}
	}
	cs.updateLocked(sheet, origin, func(rec *cellRecord) {
		rec.value = v
		rec.spill = nil
	})
}

// writeSpill checks the target area and writes an array result across it
// in one step, so two origins racing for the same cells cannot both win.
// It reports false, leaving #SPILL! in the origin, when the area is
// obstructed.
func (cs *CellStore) writeSpill(area Area, origin CellAddr, values [][]Value) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	sheet := area.Sheet
	sc := cs.sheetLocked(sheet)
	var prev *spillBlock
	if rec, ok := sc.cells[origin]; ok {
		prev = rec.spill
	}
	for r := area.From.Row; r <= area.To.Row; r++ {
		for c := area.From.Col; c <= area.To.Col; c++ {
			addr := CellAddr{Row: r, Col: c}
			if addr == origin {
				continue
			}
			if rec, ok := sc.cells[addr]; ok && spillObstructed(rec, origin) {
				if prev != nil {
					cs.clearSpillLocked(sheet, origin, prev.area, nil)
				}
				cs.updateLocked(sheet, origin, func(rec *cellRecord) {
					rec.value = NewErrorValue(ErrorSPILL, "spill range isn't blank")
					rec.spill = nil
				})
				return false
			}
		}
	}
	if prev != nil {
		cs.clearSpillLocked(sheet, origin, prev.area, &area)
	}
	owner := origin
	for r, row := range values {
		for c, v := range row {
			addr := CellAddr{Row: area.From.Row + r, Col: area.From.Col + c}
			if addr == origin {
				continue
			}
			cs.updateLocked(sheet, addr, func(rec *cellRecord) {
				rec.value = v
				rec.origin = &owner
			})
		}
	}
	cs.updateLocked(sheet, origin, func(rec *cellRecord) {
		rec.value = values[0][0]
		rec.spill = &spillBlock{area: area, values: values}
	})
	return true
}

// dropSpill clears the members of an origin and replaces its value, used
// when the graph refuses a block the store accepted.
func (cs *CellStore) dropSpill(sheet int, origin CellAddr, v Value) {
	cs.writeResult(sheet, origin, v)
}

// commitResult writes a formula's result to the store and reports whether
// its spill layout changed. It runs on the workers, so it only reads the
// graph.
func (e *Engine) commitResult(fc *formulaCell, v Value) *spillChange {
	g := e.graph
	prevArea, hadSpill := g.spills[fc.id]
	blockedArea, wasBlocked := g.blocked[fc.id]
	rows, cols := v.Dims()
	if v.Type != ValueArray || (rows == 1 && cols == 1) || !e.opts.DynamicArrays {
		e.store.writeResult(fc.sheet, fc.addr, v.scalar())
		if hadSpill || wasBlocked {
			return &spillChange{origin: fc.id}
		}
		return nil
	}
	area := Area{Sheet: fc.sheet, From: fc.addr, To: CellAddr{Row: fc.addr.Row + rows - 1, Col: fc.addr.Col + cols - 1}}
	if !area.To.Valid() {
		e.store.writeResult(fc.sheet, fc.addr, NewErrorValue(ErrorSPILL, "spill range extends beyond the sheet"))
		if wasBlocked && blockedArea == area && !hadSpill {
			return nil
		}
		return &spillChange{origin: fc.id, area: area, blocked: true}
	}
	if !e.store.writeSpill(area, fc.addr, v.Array) {
		if wasBlocked && blockedArea == area && !hadSpill {
			return nil
		}
		return &spillChange{origin: fc.id, area: area, blocked: true}
	}
	if hadSpill && prevArea == area {
		return nil
	}
	return &spillChange{origin: fc.id, area: area, spilled: true}
}

// applySpills folds the layout changes of a pass into the graph and marks
// the readers of every cell that gained or lost a spilled value. Removals
// go first so a block can move into cells another block just gave up.
func (e *Engine) applySpills(changes []*spillChange) {
	g := e.graph
	touched := make([]Area, 0, 2*len(changes))
	for _, ch := range changes {
		if old, ok := g.spills[ch.origin]; ok {
			touched = append(touched, old)
		}
		g.clearSpill(ch.origin, nil)
		g.unblock(ch.origin)
	}
	for _, ch := range changes {
		sheet, addr := g.arena.key(ch.origin)
		switch {
		case ch.spilled:
			touched = append(touched, ch.area)
			if !g.setSpill(ch.origin, ch.area) {
				e.log.Debug("spill refused", "cell", e.cellLabel(sheet, addr), "area", ch.area.String())
				e.store.dropSpill(sheet, addr, NewErrorValue(ErrorSPILL, "spill range isn't blank"))
				g.setBlocked(ch.origin, ch.area)
				g.markReaders(cellKey{sheet: sheet, addr: addr})
			}
		case ch.blocked:
			g.setBlocked(ch.origin, ch.area)
		}
	}
	for _, area := range touched {
		g.markAreaReaders(area)
	}
}
