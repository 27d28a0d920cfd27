// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnNames(t *testing.T) {
	for name, num := range map[string]int{"A": 1, "Z": 26, "AA": 27, "AK": 37, "XFD": MaxColumns} {
		got, err := ColumnNameToNumber(name)
		require.NoError(t, err)
		assert.Equal(t, num, got)
		back, err := ColumnNumberToName(num)
		require.NoError(t, err)
		assert.Equal(t, name, back)
	}
	got, err := ColumnNameToNumber("ak")
	assert.NoError(t, err)
	assert.Equal(t, 37, got)

	for _, bad := range []string{"", "A1", "XFE", "AAAAA"} {
		_, err := ColumnNameToNumber(bad)
		assert.Error(t, err, bad)
	}
	_, err = ColumnNumberToName(0)
	assert.ErrorIs(t, err, ErrColumnNumber)
}

func TestCellNames(t *testing.T) {
	col, row, err := CellNameToCoordinates("$B$12")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 12}, []int{col, row})

	name, err := CoordinatesToCellName(28, 3, true)
	require.NoError(t, err)
	assert.Equal(t, "$AB$3", name)

	for _, bad := range []string{"", "A", "1", "A0", "A+1", "1A"} {
		_, _, err := CellNameToCoordinates(bad)
		assert.Error(t, err, bad)
	}
	_, _, err = CellNameToCoordinates("A1048577")
	assert.ErrorIs(t, err, ErrMaxRows)
	_, err = CoordinatesToCellName(0, 1)
	assert.Error(t, err)
}

func TestAreas(t *testing.T) {
	a, err := parseAreaRef(0, "B2:$D$5")
	require.NoError(t, err)
	assert.Equal(t, "B2:D5", a.String())
	assert.Equal(t, 4, a.Rows())
	assert.Equal(t, 3, a.Cols())
	assert.Equal(t, 12, a.Size())
	assert.True(t, a.Contains(0, CellAddr{Row: 3, Col: 3}))
	assert.False(t, a.Contains(1, CellAddr{Row: 3, Col: 3}))

	b, err := parseAreaRef(0, "D5:F9")
	require.NoError(t, err)
	x, ok := a.Intersect(b)
	assert.True(t, ok)
	assert.Equal(t, "D5", x.String())

	c, err := parseAreaRef(0, "A:A")
	require.NoError(t, err)
	assert.Equal(t, MaxRows, c.Rows())
	_, ok = c.Intersect(b)
	assert.False(t, ok)

	r, err := parseAreaRef(0, "3:4")
	require.NoError(t, err)
	assert.Equal(t, MaxColumns, r.Cols())

	rev, err := parseAreaRef(0, "C3:A1")
	require.NoError(t, err)
	assert.Equal(t, "A1:C3", rev.String())
}
