// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

// CellID is a compact, stable handle for one worksheet cell that takes part
// in the dependency graph. IDs are reused after the cell leaves the graph.
type CellID uint32

type cellKey struct {
	sheet int
	addr  CellAddr
}

// cellArena interns (sheet, row, column) triples as CellIDs. Slot zero is
// never handed out so the zero CellID can mean "none".
type cellArena struct {
	ids  map[cellKey]CellID
	keys []cellKey
	live []bool
	free []CellID
}

func newCellArena() *cellArena {
	return &cellArena{
		ids:  make(map[cellKey]CellID),
		keys: []cellKey{{}},
		live: []bool{false},
	}
}

// intern returns the id of a cell, allocating one if needed.
func (a *cellArena) intern(sheet int, addr CellAddr) CellID {
	k := cellKey{sheet: sheet, addr: addr}
	if id, ok := a.ids[k]; ok {
		return id
	}
	var id CellID
	if n := len(a.free); n > 0 {
		id = a.free[n-1]
		a.free = a.free[:n-1]
		a.keys[id] = k
		a.live[id] = true
	} else {
		id = CellID(len(a.keys))
		a.keys = append(a.keys, k)
		a.live = append(a.live, true)
	}
	a.ids[k] = id
	return id
}

// lookup returns the id of a cell without allocating.
func (a *cellArena) lookup(sheet int, addr CellAddr) (CellID, bool) {
	id, ok := a.ids[cellKey{sheet: sheet, addr: addr}]
	return id, ok
}

// key returns the sheet and address an id stands for.
func (a *cellArena) key(id CellID) (int, CellAddr) {
	k := a.keys[id]
	return k.sheet, k.addr
}

// release returns an id to the free list.
func (a *cellArena) release(id CellID) {
	if id == 0 || int(id) >= len(a.live) || !a.live[id] {
		return
	}
	delete(a.ids, a.keys[id])
	a.live[id] = false
	a.keys[id] = cellKey{}
	a.free = append(a.free, id)
}

// len returns the number of live ids.
func (a *cellArena) len() int { return len(a.ids) }

// less orders ids by sheet, row, then column.
func (a *cellArena) less(x, y CellID) bool {
	kx, ky := a.keys[x], a.keys[y]
	if kx.sheet != ky.sheet {
		return kx.sheet < ky.sheet
	}
	if kx.addr.Row != ky.addr.Row {
		return kx.addr.Row < ky.addr.Row
	}
	return kx.addr.Col < ky.addr.Col
}
