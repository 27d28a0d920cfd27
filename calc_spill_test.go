// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpillArrayResult(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.SetCellFormula("Sheet1", "C5", "={1;2}"))
	require.NoError(t, e.SetCellFormula("Sheet1", "D6", "=C6*10"))
	require.NoError(t, e.SetCellFormula("Sheet1", "E1", "=SUM(C5#)"))
	recalc(t, e)

	assert.Equal(t, "1", textOf(t, e, "Sheet1", "C5"))
	assert.Equal(t, "2", textOf(t, e, "Sheet1", "C6"))
	assert.Equal(t, "20", textOf(t, e, "Sheet1", "D6"))
	assert.Equal(t, "3", textOf(t, e, "Sheet1", "E1"))

	data, err := e.GetRangeData("Sheet1", "C5:C6")
	require.NoError(t, err)
	require.Len(t, data, 2)
	assert.Equal(t, "={1;2}", data[0][0].Formula)
	assert.Empty(t, data[0][0].SpilledFrom)
	assert.Equal(t, "C5", data[1][0].SpilledFrom)
	assert.Empty(t, data[1][0].Formula)
}

func TestSpillBlocked(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.SetCellValue("Sheet1", "C6", 9))
	require.NoError(t, e.SetCellFormula("Sheet1", "C5", "={1;2}"))
	recalc(t, e)

	v := valueOf(t, e, "Sheet1", "C5")
	assert.Equal(t, ErrorSPILL, v.Err)
	assert.Equal(t, "9", textOf(t, e, "Sheet1", "C6"))

	t.Run("unblocked by clearing", func(t *testing.T) {
		require.NoError(t, e.ClearCell("Sheet1", "C6"))
		recalc(t, e)
		assert.Equal(t, "1", textOf(t, e, "Sheet1", "C5"))
		assert.Equal(t, "2", textOf(t, e, "Sheet1", "C6"))
	})
}

func TestSpillShrinksAndClears(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.SetCellValue("Sheet1", "A1", 3))
	require.NoError(t, e.SetCellFormula("Sheet1", "B1", "=SEQUENCE(A1)"))
	recalc(t, e)
	assert.Equal(t, "3", textOf(t, e, "Sheet1", "B3"))

	require.NoError(t, e.SetCellValue("Sheet1", "A1", 1))
	recalc(t, e)
	assert.Equal(t, "1", textOf(t, e, "Sheet1", "B1"))
	assert.True(t, valueOf(t, e, "Sheet1", "B2").IsEmpty())
	assert.True(t, valueOf(t, e, "Sheet1", "B3").IsEmpty())
}

func TestSpillDisabled(t *testing.T) {
	e := NewEngine(Options{DynamicArrays: false})
	require.NoError(t, e.SetCellFormula("Sheet1", "C5", "={4;5}"))
	recalc(t, e)
	assert.Equal(t, "4", textOf(t, e, "Sheet1", "C5"))
	assert.True(t, valueOf(t, e, "Sheet1", "C6").IsEmpty())
}

func TestSpillEvictedByFormula(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.SetCellFormula("Sheet1", "A1", "={1;2}"))
	require.NoError(t, e.SetCellFormula("Sheet1", "B1", "=SUM(A1:A2)"))
	recalc(t, e)
	assert.Equal(t, "3", textOf(t, e, "Sheet1", "B1"))

	var cycleErr *CircularReferenceError
	require.ErrorAs(t, e.SetCellFormula("Sheet1", "A2", "=A2+1"), &cycleErr)
	assert.Equal(t, "1", textOf(t, e, "Sheet1", "A1"))
	assert.Equal(t, "2", textOf(t, e, "Sheet1", "A2"))
	assert.Zero(t, e.PendingCount())

	require.NoError(t, e.SetCellFormula("Sheet1", "A2", "=5"))
	assert.Equal(t, ErrorSPILL, valueOf(t, e, "Sheet1", "A1").Err)
	recalc(t, e)
	assert.Equal(t, ErrorSPILL, valueOf(t, e, "Sheet1", "A1").Err)
	assert.Equal(t, "5", textOf(t, e, "Sheet1", "A2"))
	assert.Equal(t, ErrorSPILL, valueOf(t, e, "Sheet1", "B1").Err)

	require.NoError(t, e.ClearCell("Sheet1", "A2"))
	recalc(t, e)
	assert.Equal(t, "1", textOf(t, e, "Sheet1", "A1"))
	assert.Equal(t, "2", textOf(t, e, "Sheet1", "A2"))
	assert.Equal(t, "3", textOf(t, e, "Sheet1", "B1"))
}

func TestSpillReferenceToScalarFormula(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.SetCellFormula("Sheet1", "B1", "=2+3"))
	require.NoError(t, e.SetCellFormula("Sheet1", "C1", "=B1#*2"))
	require.NoError(t, e.SetCellFormula("Sheet1", "C2", "=SUM(A9#)"))
	recalc(t, e)
	assert.Equal(t, "10", textOf(t, e, "Sheet1", "C1"))
	assert.Equal(t, ErrorREF, valueOf(t, e, "Sheet1", "C2").Err)
}
