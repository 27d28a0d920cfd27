// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package duckdb

import (
	"context"
	"math"
	"testing"

	"github.com/OmniMCP-AI/xlcalc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := NewProvider(nil)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func loadBudget(t *testing.T, p *Provider) {
	t.Helper()
	require.NoError(t, p.LoadSheet("Budget.xlsx", "Q1", [][]any{
		{"Region", "Amount", "Approved"},
		{"East", 120, true},
		{"West", 80.5, false},
		{"North", nil, xlcalc.NewErrorValue(xlcalc.ErrorNA)},
	}))
	require.NoError(t, p.LoadSheet("Budget.xlsx", "Q2", [][]any{
		{"Region", "Amount"},
		{"East", 30},
	}))
}

func TestNewProviderWithConfig(t *testing.T) {
	p, err := NewProvider(&Config{MemoryLimit: "512MB", Threads: 2})
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestProviderGet(t *testing.T) {
	p := newTestProvider(t)
	loadBudget(t, p)

	v, ok := p.Get("[Budget.xlsx]Q1", xlcalc.CellAddr{Row: 2, Col: 2})
	require.True(t, ok)
	assert.Equal(t, xlcalc.NewNumberValue(120), v)

	v, ok = p.Get("[BUDGET.XLSX]q1", xlcalc.CellAddr{Row: 3, Col: 1})
	require.True(t, ok)
	assert.Equal(t, xlcalc.NewStringValue("West"), v)

	v, ok = p.Get("[Budget.xlsx]Q1", xlcalc.CellAddr{Row: 2, Col: 3})
	require.True(t, ok)
	assert.Equal(t, xlcalc.NewBoolValue(true), v)

	v, ok = p.Get("[Budget.xlsx]Q1", xlcalc.CellAddr{Row: 4, Col: 3})
	require.True(t, ok)
	assert.Equal(t, xlcalc.ErrorNA, v.Err)

	v, ok = p.Get("[Budget.xlsx]Q1", xlcalc.CellAddr{Row: 4, Col: 2})
	require.True(t, ok)
	assert.True(t, v.IsEmpty())

	_, ok = p.Get("[Budget.xlsx]Q9", xlcalc.CellAddr{Row: 1, Col: 1})
	assert.False(t, ok)
	_, ok = p.Get("[Missing.xlsx]Q1", xlcalc.CellAddr{Row: 1, Col: 1})
	assert.False(t, ok)
}

func TestProviderReloadSheet(t *testing.T) {
	p := newTestProvider(t)
	loadBudget(t, p)
	_, ok := p.Get("[Budget.xlsx]Q1", xlcalc.CellAddr{Row: 2, Col: 2})
	require.True(t, ok)

	require.NoError(t, p.LoadSheet("Budget.xlsx", "Q1", [][]any{{"Region", "Amount"}, {"East", 999}}))
	v, ok := p.Get("[Budget.xlsx]Q1", xlcalc.CellAddr{Row: 2, Col: 2})
	require.True(t, ok)
	assert.Equal(t, 999.0, v.Number)
	rows, cols, ok := p.Extent("[Budget.xlsx]Q1")
	require.True(t, ok)
	assert.Equal(t, []int{2, 2}, []int{rows, cols})

	require.NoError(t, p.LoadSheet("Budget.xlsx", "Q1", [][]any{{"Region", "Amount"}, {"East", 1000}}))
	v, ok = p.Get("[Budget.xlsx]Q1", xlcalc.CellAddr{Row: 2, Col: 2})
	require.True(t, ok)
	assert.Equal(t, 1000.0, v.Number)

	order, ok := p.SheetOrder("Budget.xlsx")
	require.True(t, ok)
	assert.Equal(t, []string{"Q1", "Q2"}, order)
}

func TestProviderExtent(t *testing.T) {
	p := newTestProvider(t)
	loadBudget(t, p)
	rows, cols, ok := p.Extent("[Budget.xlsx]Q1")
	require.True(t, ok)
	assert.Equal(t, 4, rows)
	assert.Equal(t, 3, cols)

	_, _, ok = p.Extent("[Budget.xlsx]Nope")
	assert.False(t, ok)
}

func TestProviderSheetOrder(t *testing.T) {
	p := newTestProvider(t)
	_, ok := p.SheetOrder("Budget.xlsx")
	assert.False(t, ok)

	loadBudget(t, p)
	order, ok := p.SheetOrder("budget.xlsx")
	require.True(t, ok)
	assert.Equal(t, []string{"Q1", "Q2"}, order)
}

func TestProviderWorkbookTable(t *testing.T) {
	p := newTestProvider(t)
	loadBudget(t, p)
	require.NoError(t, p.AddTable("Budget.xlsx", "Spend", "Q1", xlcalc.TableMetadata{
		Range:     "A1:C4",
		Columns:   []string{"Region", "Amount", "Approved"},
		HeaderRow: true,
	}))

	sheet, meta, ok := p.WorkbookTable("Budget.xlsx", "spend")
	require.True(t, ok)
	assert.Equal(t, "Q1", sheet)
	assert.Equal(t, "A1:C4", meta.Range)
	assert.Equal(t, []string{"Region", "Amount", "Approved"}, meta.Columns)
	assert.True(t, meta.HeaderRow)
	assert.False(t, meta.TotalsRow)

	_, _, ok = p.WorkbookTable("Budget.xlsx", "Other")
	assert.False(t, ok)

	t.Run("replaced", func(t *testing.T) {
		require.NoError(t, p.AddTable("Budget.xlsx", "SPEND", "Q2", xlcalc.TableMetadata{
			Range:   "A1:B2",
			Columns: []string{"Region", "Amount"},
		}))
		sheet, meta, ok := p.WorkbookTable("Budget.xlsx", "Spend")
		require.True(t, ok)
		assert.Equal(t, "Q2", sheet)
		assert.Equal(t, "A1:B2", meta.Range)
		assert.Equal(t, []string{"Region", "Amount"}, meta.Columns)
	})
}

func TestProviderDropWorkbook(t *testing.T) {
	p := newTestProvider(t)
	loadBudget(t, p)
	require.NoError(t, p.DropWorkbook("Budget.xlsx"))

	_, ok := p.Get("[Budget.xlsx]Q1", xlcalc.CellAddr{Row: 2, Col: 2})
	assert.False(t, ok)
	_, ok = p.SheetOrder("Budget.xlsx")
	assert.False(t, ok)
	assert.ErrorIs(t, p.DropWorkbook("Budget.xlsx"), ErrWorkbookNotLoaded)
}

func TestEncodeValue(t *testing.T) {
	kind, num, txt, ok := encodeValue(math.Inf(1))
	require.True(t, ok)
	assert.Equal(t, "e", kind)
	assert.Nil(t, num)
	assert.Equal(t, "#NUM!", txt)

	_, _, _, ok = encodeValue(xlcalc.EmptyValue())
	assert.False(t, ok)

	kind, _, txt, ok = encodeValue([]byte("raw"))
	require.True(t, ok)
	assert.Equal(t, "s", kind)
	assert.Equal(t, "raw", txt)

	assert.Equal(t, xlcalc.NewErrorValue(xlcalc.ErrorUNKNOWN), decodeValue("e", 0, "#BOGUS"))
}

func TestEngineExternalReferences(t *testing.T) {
	p := newTestProvider(t)
	loadBudget(t, p)

	e := xlcalc.NewEngine()
	require.NoError(t, e.SetExternalProvider(p))
	require.NoError(t, e.SetCellFormula("Sheet1", "A1", "=[Budget.xlsx]Q1!B2*2"))
	require.NoError(t, e.SetCellFormula("Sheet1", "A2", "=SUM([Budget.xlsx]Q1!B:B)"))
	require.NoError(t, e.SetCellFormula("Sheet1", "A3", "=SUM([Budget.xlsx]Q1:Q2!B2)"))
	require.NoError(t, e.SetCellFormula("Sheet1", "A4", "=[Budget.xlsx]Q7!A1"))
	require.NoError(t, e.Recalculate(context.Background()))

	for cell, expected := range map[string]float64{"A1": 240, "A2": 200.5, "A3": 150} {
		v, err := e.GetCellValue("Sheet1", cell)
		require.NoError(t, err)
		assert.Equal(t, xlcalc.NewNumberValue(expected), v, cell)
	}
	v, err := e.GetCellValue("Sheet1", "A4")
	require.NoError(t, err)
	assert.Equal(t, xlcalc.ErrorREF, v.Err)

	require.NoError(t, p.LoadSheet("Budget.xlsx", "Q1", [][]any{{"Region", "Amount"}, {"East", 10}}))
	e.RefreshExternal()
	require.NoError(t, e.Recalculate(context.Background()))
	v, err = e.GetCellValue("Sheet1", "A1")
	require.NoError(t, err)
	assert.Equal(t, xlcalc.NewNumberValue(20), v)
}
