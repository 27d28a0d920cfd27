// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRangeValues(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.SetCellValues([]CellUpdate{
		{Sheet: "Sheet1", Cell: "A1", Value: "name"},
		{Sheet: "Sheet1", Cell: "B1", Value: 1},
		{Sheet: "Sheet1", Cell: "B3", Value: true},
	}))
	require.NoError(t, e.SetCellFormula("Sheet1", "A3", "=B1*4"))
	recalc(t, e)

	values, err := e.GetRangeValues("Sheet1", "A1:B3")
	require.NoError(t, err)
	require.Len(t, values, 3)
	var got [][]string
	for _, row := range values {
		var line []string
		for _, v := range row {
			line = append(line, v.String())
		}
		got = append(got, line)
	}
	assert.Equal(t, [][]string{{"name", "1"}, {"", ""}, {"4", "TRUE"}}, got)

	t.Run("whole columns are clipped", func(t *testing.T) {
		values, err := e.GetRangeValues("Sheet1", "A:B")
		require.NoError(t, err)
		assert.Len(t, values, 3)
		assert.Len(t, values[0], 2)
	})
	t.Run("errors", func(t *testing.T) {
		_, err := e.GetRangeValues("Nope", "A1:B2")
		assert.Equal(t, ErrSheetNotExist{SheetName: "Nope"}, err)
		_, err = e.GetRangeValues("Sheet1", "A1:?")
		assert.Error(t, err)
	})
}

func TestGetRangeValuesInChunks(t *testing.T) {
	e := NewEngine(Options{Workers: 4, DynamicArrays: true})
	updates := make([]CellUpdate, 0, 1000)
	for row := 1; row <= 1000; row++ {
		updates = append(updates, CellUpdate{Sheet: "Sheet1", Cell: fmt.Sprintf("A%d", row), Value: row})
	}
	require.NoError(t, e.SetCellValues(updates))
	values, err := e.GetRangeValues("Sheet1", "A1:A1000")
	require.NoError(t, err)
	require.Len(t, values, 1000)
	for row, v := range values {
		require.Equal(t, float64(row+1), v[0].Number)
	}
}

func TestGetRangeData(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.SetCellValue("Sheet1", "A1", 2))
	require.NoError(t, e.SetCellFormula("Sheet1", "B1", "=a1*3"))
	recalc(t, e)
	data, err := e.GetRangeData("Sheet1", "A1:B1")
	require.NoError(t, err)
	require.Len(t, data, 1)
	assert.Equal(t, "", data[0][0].Formula)
	assert.Equal(t, "=A1*3", data[0][1].Formula)
	assert.Equal(t, "6", data[0][1].Value.String())
}
