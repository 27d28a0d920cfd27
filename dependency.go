// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"slices"
	"time"

	"github.com/hashicorp/go-hclog"
)

// formulaCell is one formula assigned to a cell. The tree may be shared
// with other cells holding the same relative formula.
type formulaCell struct {
	id       CellID
	sheet    int
	addr     CellAddr
	text     string
	node     Node
	key      string
	volatile bool
	serial   bool
	external bool
	names    []string
	tables   []string
	sheets   []string
}

// formulaDeps is what a formula reads, as collected from its tree.
type formulaDeps struct {
	cells    []cellKey
	areas    []Area
	volatile bool
	serial   bool
	external bool
	names    []string
	tables   []string
	sheets   []string
}

type cellSet map[CellID]struct{}

// DependencyGraph holds the live dependency edges between formula cells,
// the cells and ranges they read, the volatile set, the dirty set and the
// cached calculation chain. It is mutated only from the edit path.
type DependencyGraph struct {
	arena      *cellArena
	ranges     *rangeIndex
	formulas   map[CellID]*formulaCell
	dependents map[CellID]cellSet
	precedents map[CellID]cellSet
	rangeDeps  map[CellID][]RangeID
	spills     map[CellID]Area
	spillOf    map[CellID]CellID
	blocked    map[CellID]Area
	volatile   cellSet
	dirty      cellSet
	chain      []CellID
	chainIndex map[CellID]int
	chainValid bool
	label      func(sheet int, addr CellAddr) string
	logger     hclog.Logger
}

// newDependencyGraph creates an empty graph. mergeRanges enables the
// cumulative range decomposition.
func newDependencyGraph(logger hclog.Logger, mergeRanges bool) *DependencyGraph {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &DependencyGraph{
		arena:      newCellArena(),
		ranges:     newRangeIndex(mergeRanges),
		formulas:   make(map[CellID]*formulaCell),
		dependents: make(map[CellID]cellSet),
		precedents: make(map[CellID]cellSet),
		rangeDeps:  make(map[CellID][]RangeID),
		spills:     make(map[CellID]Area),
		spillOf:    make(map[CellID]CellID),
		blocked:    make(map[CellID]Area),
		volatile:   make(cellSet),
		dirty:      make(cellSet),
		chainIndex: make(map[CellID]int),
		label: func(_ int, addr CellAddr) string {
			return addr.String()
		},
		logger: logger,
	}
}

// formulaAt returns the formula assigned to a cell, if any.
func (g *DependencyGraph) formulaAt(sheet int, addr CellAddr) *formulaCell {
	if id, ok := g.arena.lookup(sheet, addr); ok {
		return g.formulas[id]
	}
	return nil
}

func (g *DependencyGraph) isNode(id CellID) bool {
	if _, ok := g.formulas[id]; ok {
		return true
	}
	_, ok := g.spillOf[id]
	return ok
}

func (g *DependencyGraph) addEdge(from, to CellID) {
	set, ok := g.dependents[from]
	if !ok {
		set = make(cellSet)
		g.dependents[from] = set
	}
	set[to] = struct{}{}
	set, ok = g.precedents[to]
	if !ok {
		set = make(cellSet)
		g.precedents[to] = set
	}
	set[from] = struct{}{}
}

func (g *DependencyGraph) removeEdge(from, to CellID) {
	if set, ok := g.dependents[from]; ok {
		delete(set, to)
		if len(set) == 0 {
			delete(g.dependents, from)
		}
	}
	if set, ok := g.precedents[to]; ok {
		delete(set, from)
		if len(set) == 0 {
			delete(g.precedents, to)
		}
	}
}

// maybeRelease frees the id of a cell that no longer takes part in the
// graph.
func (g *DependencyGraph) maybeRelease(id CellID) {
	if id == 0 || g.isNode(id) {
		return
	}
	if _, ok := g.dependents[id]; ok {
		return
	}
	if _, ok := g.precedents[id]; ok {
		return
	}
	if _, ok := g.spills[id]; ok {
		return
	}
	if _, ok := g.blocked[id]; ok {
		return
	}
	g.arena.release(id)
}

// SetFormula replaces the outgoing edges of a formula cell. When the new
// edges would close a cycle the graph is left untouched and a
// *CircularReferenceError is returned.
func (g *DependencyGraph) SetFormula(fc *formulaCell, deps formulaDeps) error {
	id := g.arena.intern(fc.sheet, fc.addr)
	if cycle := g.checkCycle(id, fc.sheet, fc.addr, deps); cycle != nil {
		err := g.cycleError(cycle)
		g.maybeRelease(id)
		return err
	}
	g.detach(id)
	fc.id = id
	fc.volatile = deps.volatile
	fc.serial = deps.serial
	fc.external = deps.external
	fc.names = deps.names
	fc.tables = deps.tables
	fc.sheets = deps.sheets
	g.formulas[id] = fc
	for _, c := range deps.cells {
		g.addEdge(g.arena.intern(c.sheet, c.addr), id)
	}
	for _, area := range deps.areas {
		n := g.ranges.acquire(area)
		if _, ok := n.dependents[id]; ok {
			continue
		}
		n.dependents[id] = struct{}{}
		g.rangeDeps[id] = append(g.rangeDeps[id], n.ID)
	}
	if deps.volatile {
		g.volatile[id] = struct{}{}
	}
	g.chainValid = false
	g.dirty[id] = struct{}{}
	return nil
}

// detach removes the outgoing edges of a formula cell and returns the
// ranges it used to the index.
func (g *DependencyGraph) detach(id CellID) {
	for p := range g.precedents[id] {
		if _, member := g.spillOf[id]; member && g.spillOf[id] == p {
			continue
		}
		g.removeEdge(p, id)
		g.maybeRelease(p)
	}
	for _, rid := range g.rangeDeps[id] {
		if n := g.ranges.get(rid); n != nil {
			delete(n.dependents, id)
			g.ranges.release(rid)
		}
	}
	delete(g.rangeDeps, id)
	delete(g.volatile, id)
}

// ClearFormula removes a formula cell from the graph.
func (g *DependencyGraph) ClearFormula(sheet int, addr CellAddr) {
	id, ok := g.arena.lookup(sheet, addr)
	if !ok {
		return
	}
	if _, ok := g.formulas[id]; !ok {
		return
	}
	g.detach(id)
	delete(g.formulas, id)
	delete(g.dirty, id)
	delete(g.blocked, id)
	g.chainValid = false
	g.maybeRelease(id)
}

// successors calls fn for every cell that reads id directly, either
// through a cell edge or through a range containing it.
func (g *DependencyGraph) successors(id CellID, fn func(CellID) bool) {
	for d := range g.dependents[id] {
		if !fn(d) {
			return
		}
	}
	sheet, addr := g.arena.key(id)
	g.ranges.containing(sheet, addr, func(n *RangeNode) bool {
		for d := range n.dependents {
			if !fn(d) {
				return false
			}
		}
		return true
	})
}

// checkCycle searches forward from a formula cell for one of the cells its
// new formula would read. It returns the cycle in "depends on" order, or
// nil.
func (g *DependencyGraph) checkCycle(id CellID, sheet int, addr CellAddr, deps formulaDeps) []CellID {
	targets := make(map[cellKey]struct{}, len(deps.cells))
	for _, c := range deps.cells {
		targets[c] = struct{}{}
	}
	hit := func(k cellKey) bool {
		if _, ok := targets[k]; ok {
			return true
		}
		for _, a := range deps.areas {
			if a.Contains(k.sheet, k.addr) {
				return true
			}
		}
		return false
	}
	if hit(cellKey{sheet: sheet, addr: addr}) {
		return []CellID{id}
	}
	parent := map[CellID]CellID{id: 0}
	queue := []CellID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		var found CellID
		g.successors(cur, func(next CellID) bool {
			if _, seen := parent[next]; seen {
				return true
			}
			parent[next] = cur
			s, a := g.arena.key(next)
			if hit(cellKey{sheet: s, addr: a}) {
				found = next
				return false
			}
			queue = append(queue, next)
			return true
		})
		if found == 0 {
			continue
		}
		var path []CellID
		for n := found; n != 0; n = parent[n] {
			path = append(path, n)
		}
		return append([]CellID{id}, path[:len(path)-1]...)
	}
	return nil
}

// cycleError renders a cycle, rotated to start at its lowest address.
// Cells are sheet-qualified only when the cycle crosses sheets.
func (g *DependencyGraph) cycleError(cycle []CellID) error {
	if len(cycle) == 0 {
		return &CircularReferenceError{}
	}
	low := 0
	for i := range cycle {
		if g.arena.less(cycle[i], cycle[low]) {
			low = i
		}
	}
	first, _ := g.arena.key(cycle[0])
	oneSheet := true
	for _, id := range cycle {
		if sheet, _ := g.arena.key(id); sheet != first {
			oneSheet = false
		}
	}
	err := &CircularReferenceError{}
	for i := range cycle {
		sheet, addr := g.arena.key(cycle[(low+i)%len(cycle)])
		if oneSheet {
			err.Cycle = append(err.Cycle, addr.String())
			continue
		}
		err.Cycle = append(err.Cycle, g.label(sheet, addr))
	}
	return err
}

// MarkDirty records an edit of a cell: the cell itself when it holds a
// formula, the origin of a spill covering it, any origin whose blocked
// spill area contains it, and everything reading it directly or through
// ranges.
func (g *DependencyGraph) MarkDirty(sheet int, addr CellAddr) {
	work := []cellKey{{sheet: sheet, addr: addr}}
	if id, ok := g.arena.lookup(sheet, addr); ok {
		if _, isFormula := g.formulas[id]; isFormula {
			g.dirty[id] = struct{}{}
		}
		if origin, member := g.spillOf[id]; member {
			if _, done := g.dirty[origin]; !done {
				g.dirty[origin] = struct{}{}
				s, a := g.arena.key(origin)
				work = append(work, cellKey{sheet: s, addr: a})
			}
		}
	}
	for origin, area := range g.blocked {
		if _, done := g.dirty[origin]; !done && area.Contains(sheet, addr) {
			g.dirty[origin] = struct{}{}
			s, a := g.arena.key(origin)
			work = append(work, cellKey{sheet: s, addr: a})
		}
	}
	g.markReaders(work...)
}

// markReaders marks every formula reading the given cells, transitively.
// Cells already dirty stop the walk.
func (g *DependencyGraph) markReaders(start ...cellKey) {
	seen := make(cellSet)
	work := slices.Clone(start)
	for _, k := range start {
		if id, ok := g.arena.lookup(k.sheet, k.addr); ok {
			seen[id] = struct{}{}
		}
	}
	visit := func(d CellID) bool {
		if _, done := g.dirty[d]; done {
			return true
		}
		if _, done := seen[d]; done {
			return true
		}
		seen[d] = struct{}{}
		if _, isFormula := g.formulas[d]; isFormula {
			g.dirty[d] = struct{}{}
		}
		s, a := g.arena.key(d)
		work = append(work, cellKey{sheet: s, addr: a})
		return true
	}
	for len(work) > 0 {
		k := work[len(work)-1]
		work = work[:len(work)-1]
		if id, ok := g.arena.lookup(k.sheet, k.addr); ok {
			for d := range g.dependents[id] {
				visit(d)
			}
		}
		g.ranges.containing(k.sheet, k.addr, func(n *RangeNode) bool {
			for d := range n.dependents {
				visit(d)
			}
			return true
		})
	}
}

// markAreaReaders marks the readers of every cell of an area.
func (g *DependencyGraph) markAreaReaders(area Area) {
	var keys []cellKey
	for r := area.From.Row; r <= area.To.Row; r++ {
		for c := area.From.Col; c <= area.To.Col; c++ {
			keys = append(keys, cellKey{sheet: area.Sheet, addr: CellAddr{Row: r, Col: c}})
		}
	}
	g.markReaders(keys...)
}

// markVolatile marks every volatile formula and its readers dirty.
func (g *DependencyGraph) markVolatile() {
	for id := range g.volatile {
		sheet, addr := g.arena.key(id)
		g.MarkDirty(sheet, addr)
	}
}

// DirtyLen returns the size of the dirty set.
func (g *DependencyGraph) DirtyLen() int { return len(g.dirty) }

// IsDirty reports whether a cell is waiting for recalculation.
func (g *DependencyGraph) IsDirty(sheet int, addr CellAddr) bool {
	id, ok := g.arena.lookup(sheet, addr)
	if !ok {
		return false
	}
	_, dirty := g.dirty[id]
	return dirty
}

// dirtyInChainOrder returns the dirty formulas sorted by calc chain
// position.
func (g *DependencyGraph) dirtyInChainOrder() []CellID {
	out := make([]CellID, 0, len(g.dirty))
	for id := range g.dirty {
		if _, ok := g.formulas[id]; ok {
			out = append(out, id)
		}
	}
	slices.SortFunc(out, func(a, b CellID) int { return g.chainIndex[a] - g.chainIndex[b] })
	return out
}

func (g *DependencyGraph) clearDirty(ids []CellID) {
	for _, id := range ids {
		delete(g.dirty, id)
	}
}

// CalcChain returns the current calculation chain, rebuilding it when an
// edit invalidated the cached order.
func (g *DependencyGraph) CalcChain() ([]CellID, error) {
	if !g.chainValid {
		if err := g.rebuildChain(); err != nil {
			return nil, err
		}
	}
	return g.chain, nil
}

// rebuildChain orders formula and spill cells with Kahn's algorithm over
// the mixed cell and range graph. Cells left with a non-zero in-degree sit
// on a cycle.
func (g *DependencyGraph) rebuildChain() error {
	start := time.Now()
	cellDeg := make(map[CellID]int)
	rangeDeg := make(map[RangeID]int)
	var cells []CellID
	for id := range g.formulas {
		cells = append(cells, id)
	}
	for id := range g.spillOf {
		if _, ok := g.formulas[id]; !ok {
			cells = append(cells, id)
		}
	}
	for _, id := range cells {
		cellDeg[id] += 0
		for d := range g.dependents[id] {
			if g.isNode(d) {
				cellDeg[d]++
			}
		}
		sheet, addr := g.arena.key(id)
		g.ranges.owning(sheet, addr, func(n *RangeNode) bool {
			rangeDeg[n.ID]++
			return true
		})
	}
	for rid, n := range g.ranges.nodes {
		rangeDeg[rid] += 0
		for child := range n.children {
			rangeDeg[child]++
		}
		for d := range n.dependents {
			cellDeg[d]++
		}
	}
	type item struct {
		cell CellID
		rng  RangeID
	}
	var queue []item
	var ready []CellID
	for _, id := range cells {
		if cellDeg[id] == 0 {
			ready = append(ready, id)
		}
	}
	slices.SortFunc(ready, func(a, b CellID) int {
		if g.arena.less(a, b) {
			return -1
		}
		return 1
	})
	for _, id := range ready {
		queue = append(queue, item{cell: id})
	}
	var readyRanges []RangeID
	for rid, deg := range rangeDeg {
		if deg == 0 {
			readyRanges = append(readyRanges, rid)
		}
	}
	slices.Sort(readyRanges)
	for _, rid := range readyRanges {
		queue = append(queue, item{rng: rid})
	}
	chain := make([]CellID, 0, len(cells))
	releaseCell := func(d CellID) {
		if cellDeg[d]--; cellDeg[d] == 0 {
			queue = append(queue, item{cell: d})
		}
	}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		if it.cell != 0 {
			chain = append(chain, it.cell)
			for d := range g.dependents[it.cell] {
				if g.isNode(d) {
					releaseCell(d)
				}
			}
			sheet, addr := g.arena.key(it.cell)
			g.ranges.owning(sheet, addr, func(n *RangeNode) bool {
				if rangeDeg[n.ID]--; rangeDeg[n.ID] == 0 {
					queue = append(queue, item{rng: n.ID})
				}
				return true
			})
			continue
		}
		n := g.ranges.get(it.rng)
		for child := range n.children {
			if rangeDeg[child]--; rangeDeg[child] == 0 {
				queue = append(queue, item{rng: child})
			}
		}
		for d := range n.dependents {
			releaseCell(d)
		}
	}
	if len(chain) < len(cells) {
		stuck := make(cellSet)
		for _, id := range cells {
			if cellDeg[id] > 0 {
				stuck[id] = struct{}{}
			}
		}
		cycle := g.findCycle(stuck)
		g.logger.Warn("calc chain has a cycle", "cells", len(stuck))
		return g.cycleError(cycle)
	}
	g.chain = chain
	clear(g.chainIndex)
	for i, id := range chain {
		g.chainIndex[id] = i
	}
	g.chainValid = true
	g.logger.Debug("calc chain rebuilt", "cells", len(chain), "ranges", g.ranges.len(), "duration", time.Since(start))
	return nil
}

// dependsOn lists the stuck cells a stuck cell reads.
func (g *DependencyGraph) dependsOn(id CellID, stuck cellSet) []CellID {
	var out []CellID
	for p := range g.precedents[id] {
		if _, ok := stuck[p]; ok {
			out = append(out, p)
		}
	}
	for _, rid := range g.rangeDeps[id] {
		n := g.ranges.get(rid)
		if n == nil {
			continue
		}
		for s := range stuck {
			sheet, addr := g.arena.key(s)
			if n.Area.Contains(sheet, addr) {
				out = append(out, s)
			}
		}
	}
	slices.SortFunc(out, func(a, b CellID) int {
		if g.arena.less(a, b) {
			return -1
		}
		return 1
	})
	return out
}

// findCycle extracts one cycle from the cells Kahn's algorithm could not
// order.
func (g *DependencyGraph) findCycle(stuck cellSet) []CellID {
	const (
		white = iota
		grey
		black
	)
	color := make(map[CellID]int, len(stuck))
	roots := make([]CellID, 0, len(stuck))
	for id := range stuck {
		roots = append(roots, id)
	}
	slices.SortFunc(roots, func(a, b CellID) int {
		if g.arena.less(a, b) {
			return -1
		}
		return 1
	})
	type frame struct {
		id   CellID
		next []CellID
	}
	for _, root := range roots {
		if color[root] != white {
			continue
		}
		stack := []frame{{id: root, next: g.dependsOn(root, stuck)}}
		color[root] = grey
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if len(top.next) == 0 {
				color[top.id] = black
				stack = stack[:len(stack)-1]
				continue
			}
			n := top.next[0]
			top.next = top.next[1:]
			switch color[n] {
			case grey:
				var cycle []CellID
				for i := len(stack) - 1; i >= 0; i-- {
					cycle = append([]CellID{stack[i].id}, cycle...)
					if stack[i].id == n {
						break
					}
				}
				return cycle
			case white:
				color[n] = grey
				stack = append(stack, frame{id: n, next: g.dependsOn(n, stuck)})
			}
		}
	}
	return roots
}

// setSpill records the cells an origin's array result occupies, making
// each of them depend on the origin. It reports false, without changing
// anything, when the new layout would make the origin read its own output
// or collide with another origin's spill.
func (g *DependencyGraph) setSpill(origin CellID, area Area) bool {
	osheet, oaddr := g.arena.key(origin)
	members := make(map[CellID]struct{})
	var fresh []CellID
	for r := area.From.Row; r <= area.To.Row; r++ {
		for c := area.From.Col; c <= area.To.Col; c++ {
			addr := CellAddr{Row: r, Col: c}
			if addr == oaddr {
				continue
			}
			id := g.arena.intern(osheet, addr)
			if owner, ok := g.spillOf[id]; ok && owner != origin {
				for _, f := range fresh {
					g.maybeRelease(f)
				}
				return false
			}
			members[id] = struct{}{}
			if _, ok := g.spillOf[id]; !ok {
				fresh = append(fresh, id)
			}
		}
	}
	if g.reaches(fresh, origin) {
		for _, f := range fresh {
			g.maybeRelease(f)
		}
		return false
	}
	g.clearSpill(origin, members)
	for id := range members {
		g.spillOf[id] = origin
		g.addEdge(origin, id)
	}
	g.spills[origin] = area
	delete(g.blocked, origin)
	g.chainValid = false
	return true
}

// reaches reports whether any of the cells feeds target.
func (g *DependencyGraph) reaches(from []CellID, target CellID) bool {
	seen := make(cellSet)
	queue := slices.Clone(from)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		found := false
		g.successors(cur, func(next CellID) bool {
			if next == target {
				found = true
				return false
			}
			if _, ok := seen[next]; !ok {
				seen[next] = struct{}{}
				queue = append(queue, next)
			}
			return true
		})
		if found {
			return true
		}
	}
	return false
}

// clearSpill drops the spill members of an origin except those in keep.
func (g *DependencyGraph) clearSpill(origin CellID, keep map[CellID]struct{}) {
	area, ok := g.spills[origin]
	if !ok {
		return
	}
	osheet, _ := g.arena.key(origin)
	for r := area.From.Row; r <= area.To.Row; r++ {
		for c := area.From.Col; c <= area.To.Col; c++ {
			id, ok := g.arena.lookup(osheet, CellAddr{Row: r, Col: c})
			if !ok || g.spillOf[id] != origin {
				continue
			}
			if _, kept := keep[id]; kept {
				continue
			}
			delete(g.spillOf, id)
			g.removeEdge(origin, id)
			g.maybeRelease(id)
		}
	}
	delete(g.spills, origin)
	g.chainValid = false
}

// setBlocked remembers the area an origin failed to spill into, so an
// edit inside it re-evaluates the origin.
func (g *DependencyGraph) setBlocked(origin CellID, area Area) {
	g.clearSpill(origin, nil)
	g.blocked[origin] = area
}

// unblock forgets a blocked spill area.
func (g *DependencyGraph) unblock(origin CellID) {
	delete(g.blocked, origin)
}

// directDependents lists the formulas that read a cell directly.
func (g *DependencyGraph) directDependents(sheet int, addr CellAddr) []CellID {
	seen := make(cellSet)
	var out []CellID
	collect := func(d CellID) bool {
		if _, ok := seen[d]; !ok {
			seen[d] = struct{}{}
			if _, isFormula := g.formulas[d]; isFormula {
				out = append(out, d)
			}
		}
		return true
	}
	if id, ok := g.arena.lookup(sheet, addr); ok {
		for d := range g.dependents[id] {
			collect(d)
		}
	}
	g.ranges.containing(sheet, addr, func(n *RangeNode) bool {
		for d := range n.dependents {
			collect(d)
		}
		return true
	})
	slices.SortFunc(out, func(a, b CellID) int {
		if g.arena.less(a, b) {
			return -1
		}
		return 1
	})
	return out
}

// edgeCount returns the number of cell edges and range nodes, which is
// what the range sharing keeps small.
func (g *DependencyGraph) edgeCount() (int, int) {
	edges := 0
	for _, set := range g.dependents {
		edges += len(set)
	}
	for _, ids := range g.rangeDeps {
		edges += len(ids)
	}
	return edges, g.ranges.len()
}
