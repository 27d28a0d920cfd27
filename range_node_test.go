// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustArea(t *testing.T, ref string) Area {
	t.Helper()
	a, err := parseAreaRef(0, ref)
	require.NoError(t, err)
	return a
}

func containingIDs(ri *rangeIndex, cell CellAddr) []RangeID {
	var ids []RangeID
	ri.containing(0, cell, func(n *RangeNode) bool {
		ids = append(ids, n.ID)
		return true
	})
	slices.Sort(ids)
	return ids
}

func TestRangeIndexCumulativeRanges(t *testing.T) {
	ri := newRangeIndex(true)
	head := ri.acquire(mustArea(t, "A1:A3"))
	grown := ri.acquire(mustArea(t, "A1:A5"))
	assert.Same(t, head, ri.acquire(mustArea(t, "A1:A3")))
	assert.Equal(t, head.ID, grown.Parent)
	assert.Equal(t, "A4:A5", grown.Owned.String())

	wide := ri.acquire(mustArea(t, "A1:C5"))
	assert.Equal(t, grown.ID, wide.Parent)
	assert.Equal(t, "B1:C5", wide.Owned.String())

	assert.Equal(t, []RangeID{head.ID, grown.ID, wide.ID}, containingIDs(ri, CellAddr{Row: 2, Col: 1}))
	assert.Equal(t, []RangeID{grown.ID, wide.ID}, containingIDs(ri, CellAddr{Row: 5, Col: 1}))
	assert.Equal(t, []RangeID{wide.ID}, containingIDs(ri, CellAddr{Row: 1, Col: 3}))
	assert.Empty(t, containingIDs(ri, CellAddr{Row: 6, Col: 1}))

	ri.release(head.ID)
	assert.Equal(t, 3, ri.len())
	ri.release(wide.ID)
	assert.Equal(t, 0, ri.len())
}

func TestRangeIndexWithoutMerging(t *testing.T) {
	ri := newRangeIndex(false)
	ri.acquire(mustArea(t, "A1:A3"))
	n := ri.acquire(mustArea(t, "A1:A5"))
	assert.Zero(t, n.Parent)
	assert.Equal(t, n.Area, n.Owned)
}

func TestRangeIndexLargeAreas(t *testing.T) {
	ri := newRangeIndex(true)
	col := ri.acquire(mustArea(t, "B:B"))
	assert.Equal(t, []RangeID{col.ID}, containingIDs(ri, CellAddr{Row: 900000, Col: 2}))
	assert.Empty(t, containingIDs(ri, CellAddr{Row: 900000, Col: 3}))
	ri.release(col.ID)
	assert.Empty(t, ri.large[0])
}

func TestEngineSharesRunningTotals(t *testing.T) {
	e := NewEngine()
	var updates []FormulaUpdate
	for row := 1; row <= 20; row++ {
		require.NoError(t, e.SetCellValue("Sheet1", fmt.Sprintf("A%d", row), row))
		updates = append(updates, FormulaUpdate{Sheet: "Sheet1", Cell: fmt.Sprintf("B%d", row), Formula: fmt.Sprintf("=SUM(A$1:A%d)", row)})
	}
	require.NoError(t, e.SetCellFormulas(updates))
	recalc(t, e)
	assert.Equal(t, "210", textOf(t, e, "Sheet1", "B20"))
	assert.Equal(t, "55", textOf(t, e, "Sheet1", "B10"))

	require.NoError(t, e.SetCellValue("Sheet1", "A10", 0))
	recalc(t, e)
	assert.Equal(t, "45", textOf(t, e, "Sheet1", "B9"))
	assert.Equal(t, "45", textOf(t, e, "Sheet1", "B10"))
	assert.Equal(t, "200", textOf(t, e, "Sheet1", "B20"))
}

func TestRangeReadersShareOneNode(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.SetCellFormula("Sheet1", "B1", "=SUM(A1:A1000)"))
	require.NoError(t, e.SetCellFormula("Sheet1", "B2", "=SUM(A1:A1000)*2"))
	require.NoError(t, e.SetCellFormula("Sheet1", "B3", "=A1+A2"))
	edges, ranges := e.graph.edgeCount()
	assert.Equal(t, 4, edges)
	assert.Equal(t, 1, ranges)

	require.NoError(t, e.ClearCell("Sheet1", "B1"))
	require.NoError(t, e.ClearCell("Sheet1", "B2"))
	edges, ranges = e.graph.edgeCount()
	assert.Equal(t, 2, edges)
	assert.Equal(t, 0, ranges)
}
