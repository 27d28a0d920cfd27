// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"sort"
)

// RangeID identifies a RangeNode.
type RangeID uint32

// RangeNode stands for a multi-cell reference shared by every formula that
// reads the same block, so a formula gets one edge per range rather than
// one edge per cell. A cumulative range such as $A$1:A10 that extends an
// existing $A$1:A9 is stored as that parent plus the owned delta A10.
type RangeNode struct {
	ID         RangeID
	Area       Area
	Owned      Area
	Parent     RangeID
	children   map[RangeID]struct{}
	dependents map[CellID]struct{}
}

func (n *RangeNode) refs() int { return len(n.children) + len(n.dependents) }

const (
	tileRows     = 256
	tileCols     = 16
	maxTileSpan  = 64
	anchorRowDir = 0
	anchorColDir = 1
)

type tileKey struct {
	sheet int
	row   int
	col   int
}

// anchorKey groups ranges that share a top-left corner and extend in the
// same direction, which is where cumulative ranges come from.
type anchorKey struct {
	sheet int
	from  CellAddr
	span  int
	dir   int
}

// rangeIndex owns all RangeNodes and answers "which ranges directly own
// this cell" through a coarse tile grid.
type rangeIndex struct {
	nodes   map[RangeID]*RangeNode
	byArea  map[Area]RangeID
	tiles   map[tileKey][]RangeID
	large   map[int][]RangeID
	anchors map[anchorKey][]RangeID
	nextID  RangeID
	merge   bool
}

func newRangeIndex(merge bool) *rangeIndex {
	return &rangeIndex{
		nodes:   make(map[RangeID]*RangeNode),
		byArea:  make(map[Area]RangeID),
		tiles:   make(map[tileKey][]RangeID),
		large:   make(map[int][]RangeID),
		anchors: make(map[anchorKey][]RangeID),
		merge:   merge,
	}
}

func (ri *rangeIndex) get(id RangeID) *RangeNode { return ri.nodes[id] }

func (ri *rangeIndex) len() int { return len(ri.nodes) }

// acquire returns the node for an area, creating it (and wiring it onto a
// cumulative parent) when none exists yet.
func (ri *rangeIndex) acquire(area Area) *RangeNode {
	if id, ok := ri.byArea[area]; ok {
		return ri.nodes[id]
	}
	ri.nextID++
	n := &RangeNode{
		ID:         ri.nextID,
		Area:       area,
		Owned:      area,
		children:   make(map[RangeID]struct{}),
		dependents: make(map[CellID]struct{}),
	}
	if ri.merge {
		if parent := ri.cumulativeParent(area); parent != nil {
			n.Parent = parent.ID
			n.Owned = deltaArea(parent.Area, area)
			parent.children[n.ID] = struct{}{}
		}
	}
	ri.nodes[n.ID] = n
	ri.byArea[area] = n.ID
	ri.indexOwned(n)
	for _, k := range anchorKeys(area) {
		ids := ri.anchors[k]
		i := sort.Search(len(ids), func(i int) bool { return ri.extent(ri.nodes[ids[i]].Area, k.dir) >= ri.extent(area, k.dir) })
		ids = append(ids, 0)
		copy(ids[i+1:], ids[i:])
		ids[i] = n.ID
		ri.anchors[k] = ids
	}
	return n
}

// release destroys a node once nothing depends on it, and walks up to a
// parent that became unused as a result.
func (ri *rangeIndex) release(id RangeID) {
	for id != 0 {
		n, ok := ri.nodes[id]
		if !ok || n.refs() > 0 {
			return
		}
		ri.unindexOwned(n)
		delete(ri.nodes, id)
		delete(ri.byArea, n.Area)
		for _, k := range anchorKeys(n.Area) {
			ids := ri.anchors[k]
			for i, v := range ids {
				if v == id {
					ids = append(ids[:i], ids[i+1:]...)
					break
				}
			}
			if len(ids) == 0 {
				delete(ri.anchors, k)
			} else {
				ri.anchors[k] = ids
			}
		}
		parent := n.Parent
		if p, ok := ri.nodes[parent]; ok {
			delete(p.children, id)
		}
		id = parent
	}
}

func (ri *rangeIndex) extent(a Area, dir int) int {
	if dir == anchorRowDir {
		return a.To.Row
	}
	return a.To.Col
}

func anchorKeys(a Area) []anchorKey {
	return []anchorKey{
		{sheet: a.Sheet, from: a.From, span: a.To.Col, dir: anchorRowDir},
		{sheet: a.Sheet, from: a.From, span: a.To.Row, dir: anchorColDir},
	}
}

// cumulativeParent finds the largest existing range with the same anchor
// and width that the new area extends downward (or rightward).
func (ri *rangeIndex) cumulativeParent(area Area) *RangeNode {
	var best *RangeNode
	for _, k := range anchorKeys(area) {
		ids := ri.anchors[k]
		target := ri.extent(area, k.dir)
		i := sort.Search(len(ids), func(i int) bool { return ri.extent(ri.nodes[ids[i]].Area, k.dir) >= target })
		if i == 0 {
			continue
		}
		cand := ri.nodes[ids[i-1]]
		if best == nil || cand.Area.Size() > best.Area.Size() {
			best = cand
		}
	}
	return best
}

// deltaArea returns the part of child not covered by parent, given that
// child extends parent along one axis.
func deltaArea(parent, child Area) Area {
	d := child
	if parent.To.Col == child.To.Col {
		d.From.Row = parent.To.Row + 1
	} else {
		d.From.Col = parent.To.Col + 1
	}
	return d
}

func tilesOf(a Area) (r0, r1, c0, c1 int) {
	return (a.From.Row - 1) / tileRows, (a.To.Row - 1) / tileRows, (a.From.Col - 1) / tileCols, (a.To.Col - 1) / tileCols
}

func (ri *rangeIndex) isLarge(a Area) bool {
	r0, r1, c0, c1 := tilesOf(a)
	return (r1-r0+1)*(c1-c0+1) > maxTileSpan
}

func (ri *rangeIndex) indexOwned(n *RangeNode) {
	if ri.isLarge(n.Owned) {
		ri.large[n.Owned.Sheet] = append(ri.large[n.Owned.Sheet], n.ID)
		return
	}
	r0, r1, c0, c1 := tilesOf(n.Owned)
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			k := tileKey{sheet: n.Owned.Sheet, row: r, col: c}
			ri.tiles[k] = append(ri.tiles[k], n.ID)
		}
	}
}

func removeRangeID(ids []RangeID, id RangeID) []RangeID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func (ri *rangeIndex) unindexOwned(n *RangeNode) {
	if ri.isLarge(n.Owned) {
		ri.large[n.Owned.Sheet] = removeRangeID(ri.large[n.Owned.Sheet], n.ID)
		return
	}
	r0, r1, c0, c1 := tilesOf(n.Owned)
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			k := tileKey{sheet: n.Owned.Sheet, row: r, col: c}
			if ids := removeRangeID(ri.tiles[k], n.ID); len(ids) > 0 {
				ri.tiles[k] = ids
			} else {
				delete(ri.tiles, k)
			}
		}
	}
}

// owning calls fn for the ranges whose owned part contains the cell.
// Ranges that see the cell through a parent are reached via children.
func (ri *rangeIndex) owning(sheet int, addr CellAddr, fn func(*RangeNode) bool) {
	k := tileKey{sheet: sheet, row: (addr.Row - 1) / tileRows, col: (addr.Col - 1) / tileCols}
	for _, id := range ri.tiles[k] {
		if n := ri.nodes[id]; n != nil && n.Owned.Contains(sheet, addr) && !fn(n) {
			return
		}
	}
	for _, id := range ri.large[sheet] {
		if n := ri.nodes[id]; n != nil && n.Owned.Contains(sheet, addr) && !fn(n) {
			return
		}
	}
}

// containing calls fn for every range whose full area contains the cell,
// until fn returns false.
func (ri *rangeIndex) containing(sheet int, addr CellAddr, fn func(*RangeNode) bool) {
	seen := make(map[RangeID]struct{})
	var stack []*RangeNode
	ri.owning(sheet, addr, func(n *RangeNode) bool {
		stack = append(stack, n)
		return true
	})
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[n.ID]; ok {
			continue
		}
		seen[n.ID] = struct{}{}
		if !fn(n) {
			return
		}
		for child := range n.children {
			if c := ri.nodes[child]; c != nil {
				stack = append(stack, c)
			}
		}
	}
}
