// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func formulaOf(t *testing.T, e *Engine, sheet, cell string) string {
	t.Helper()
	f, err := e.GetCellFormula(sheet, cell)
	require.NoError(t, err)
	return f
}

func TestShiftPoint(t *testing.T) {
	ins := shift{rows: true, at: 3, n: 2}
	for _, c := range []struct {
		in, want int
		ok       bool
	}{{1, 1, true}, {3, 5, true}, {MaxRows, 0, false}} {
		got, ok := ins.point(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		if c.ok {
			assert.Equal(t, c.want, got, c.in)
		}
	}
	del := shift{rows: true, at: 3, n: -2}
	got, ok := del.point(5)
	assert.True(t, ok)
	assert.Equal(t, 3, got)
	_, ok = del.point(4)
	assert.False(t, ok)

	a, b, ok := del.span(2, 6)
	assert.True(t, ok)
	assert.Equal(t, []int{2, 4}, []int{a, b})
	_, _, ok = del.span(3, 4)
	assert.False(t, ok)
}

func TestInsertAndDeleteRows(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.SetCellValues([]CellUpdate{
		{Sheet: "Sheet1", Cell: "A1", Value: 1},
		{Sheet: "Sheet1", Cell: "A2", Value: 2},
		{Sheet: "Sheet1", Cell: "A3", Value: 3},
	}))
	require.NoError(t, e.SetCellFormula("Sheet1", "B1", "=SUM(A1:A3)"))
	require.NoError(t, e.SetCellFormula("Sheet1", "C1", "=A3*2"))
	require.NoError(t, e.SetDefinedName(&DefinedName{Name: "Last", RefersTo: "=Sheet1!$A$3"}))
	recalc(t, e)

	require.NoError(t, e.InsertRows("Sheet1", 2, 1))
	assert.Equal(t, "=SUM(A1:A4)", formulaOf(t, e, "Sheet1", "B1"))
	assert.Equal(t, "=A4*2", formulaOf(t, e, "Sheet1", "C1"))
	assert.True(t, valueOf(t, e, "Sheet1", "A2").IsEmpty())
	assert.Equal(t, "3", textOf(t, e, "Sheet1", "A4"))
	assert.Equal(t, []DefinedName{{Name: "Last", RefersTo: "=Sheet1!$A$4"}}, e.GetDefinedName())
	recalc(t, e)
	assert.Equal(t, "6", textOf(t, e, "Sheet1", "B1"))
	assert.Equal(t, "6", textOf(t, e, "Sheet1", "C1"))

	require.NoError(t, e.DeleteRows("Sheet1", 4, 1))
	assert.Equal(t, "=SUM(A1:A3)", formulaOf(t, e, "Sheet1", "B1"))
	assert.Equal(t, "=#REF!*2", formulaOf(t, e, "Sheet1", "C1"))
	recalc(t, e)
	assert.Equal(t, "3", textOf(t, e, "Sheet1", "B1"))
	assert.Equal(t, ErrorREF, valueOf(t, e, "Sheet1", "C1").Err)
}

func TestInsertAndDeleteCols(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.SetCellValue("Sheet1", "A1", 4))
	require.NoError(t, e.SetCellFormula("Sheet1", "B1", "=A1+1"))
	require.NoError(t, e.SetCellFormula("Sheet1", "C1", "=$B$1*10"))

	require.NoError(t, e.InsertCols("Sheet1", "B", 2))
	assert.Equal(t, "=A1+1", formulaOf(t, e, "Sheet1", "D1"))
	assert.Equal(t, "=$D$1*10", formulaOf(t, e, "Sheet1", "E1"))
	recalc(t, e)
	assert.Equal(t, "50", textOf(t, e, "Sheet1", "E1"))

	require.NoError(t, e.DeleteCols("Sheet1", "A", 1))
	assert.Equal(t, "=#REF!+1", formulaOf(t, e, "Sheet1", "C1"))
	assert.Equal(t, "=$C$1*10", formulaOf(t, e, "Sheet1", "D1"))
	recalc(t, e)
	assert.Equal(t, ErrorREF, valueOf(t, e, "Sheet1", "D1").Err)
}

func TestShiftOtherSheetReferences(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.AddSheet("Data"))
	require.NoError(t, e.SetCellValue("Data", "A2", 7))
	require.NoError(t, e.SetCellFormula("Sheet1", "A2", "=Data!A2"))

	require.NoError(t, e.InsertRows("Data", 1, 3))
	assert.Equal(t, "=Data!A5", formulaOf(t, e, "Sheet1", "A2"))
	recalc(t, e)
	assert.Equal(t, "7", textOf(t, e, "Sheet1", "A2"))
}

func TestShiftErrors(t *testing.T) {
	e := NewEngine()
	assert.ErrorIs(t, e.InsertRows("Sheet1", 1, 0), ErrRowCount)
	assert.ErrorIs(t, e.DeleteRows("Sheet1", 0, 1), ErrMaxRows)
	assert.ErrorIs(t, e.InsertCols("Sheet1", "A", -1), ErrRowCount)
	assert.Equal(t, ErrSheetNotExist{SheetName: "Nope"}, e.InsertRows("Nope", 1, 1))
	assert.Error(t, e.DeleteCols("Sheet1", "1A", 1))
}
