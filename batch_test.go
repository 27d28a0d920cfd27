// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"context"
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderFormulaUpdates(t *testing.T) {
	updates := []FormulaUpdate{
		{Sheet: "Sheet1", Cell: "C1", Formula: "=B1+A1"},
		{Sheet: "Sheet1", Cell: "B1", Formula: "=A1*2"},
		{Sheet: "Sheet1", Cell: "A1", Formula: "=Data!A1"},
		{Sheet: "Data", Cell: "A1", Formula: "=1"},
		{Sheet: "Sheet1", Cell: "X1", Formula: "=Y1"},
		{Sheet: "Sheet1", Cell: "Y1", Formula: "=X1"},
	}
	var got []string
	for _, u := range orderFormulaUpdates(updates) {
		got = append(got, u.Sheet+"!"+u.Cell)
	}
	assert.Equal(t, []string{"Data!A1", "Sheet1!A1", "Sheet1!B1", "Sheet1!C1", "Sheet1!X1", "Sheet1!Y1"}, got)
}

func TestSetCellFormulasReportsEveryFailure(t *testing.T) {
	e := NewEngine()
	err := e.SetCellFormulas([]FormulaUpdate{
		{Sheet: "Sheet1", Cell: "B1", Formula: "=A1+1"},
		{Sheet: "Sheet1", Cell: "A1", Formula: "=B1"},
		{Sheet: "Nope", Cell: "A1", Formula: "=1"},
		{Sheet: "Sheet1", Cell: "C1", Formula: "=SUM("},
		{Sheet: "Sheet1", Cell: "D1", Formula: "=2*2"},
	})
	require.Error(t, err)
	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 3)
	assert.ErrorContains(t, err, "Sheet1!A1")
	assert.ErrorContains(t, err, "Nope!A1")
	assert.ErrorContains(t, err, "Sheet1!C1")

	var cycle *CircularReferenceError
	assert.True(t, errors.As(err, &cycle))
	var parseErr *ParseError
	assert.True(t, errors.As(err, &parseErr))

	recalc(t, e)
	assert.Equal(t, "4", textOf(t, e, "Sheet1", "D1"))
	assert.Equal(t, "1", textOf(t, e, "Sheet1", "B1"))
}

func TestSetCellValuesReportsEveryFailure(t *testing.T) {
	e := NewEngine()
	err := e.SetCellValues([]CellUpdate{
		{Sheet: "Sheet1", Cell: "A1", Value: 1},
		{Sheet: "Sheet1", Cell: "ZZZZ1", Value: 2},
		{Sheet: "Other", Cell: "A1", Value: 3},
	})
	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 2)
	assert.Equal(t, "1", textOf(t, e, "Sheet1", "A1"))
	assert.NoError(t, e.SetCellValues(nil))
}

func TestUpdateAndRecalculate(t *testing.T) {
	e := NewEngine()
	calls := countingFunction(t, e, "PROBE", false)
	require.NoError(t, e.SetCellFormula("Sheet1", "C1", "=PROBE(A1+B1)"))
	recalc(t, e)
	assert.EqualValues(t, 1, calls.Load())

	require.NoError(t, e.UpdateAndRecalculate(context.Background(), []CellUpdate{
		{Sheet: "Sheet1", Cell: "A1", Value: 2},
		{Sheet: "Sheet1", Cell: "B1", Value: 3},
	}))
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, "5", textOf(t, e, "Sheet1", "C1"))

	err := e.UpdateAndRecalculate(context.Background(), []CellUpdate{{Sheet: "Nope", Cell: "A1", Value: 1}})
	assert.ErrorContains(t, err, "Nope!A1")
}
