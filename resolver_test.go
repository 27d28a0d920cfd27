// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapProvider serves external workbooks from memory.
type mapProvider struct {
	mu     sync.Mutex
	order  map[string][]string
	cells  map[string]map[CellAddr]Value
}

func newMapProvider() *mapProvider {
	return &mapProvider{
		order:  map[string][]string{"Book.xlsx": {"Jan", "Feb", "Mar"}},
		cells:  make(map[string]map[CellAddr]Value),
	}
}

func (p *mapProvider) set(sheetKey, cell string, v Value) {
	p.mu.Lock()
	defer p.mu.Unlock()
	addr, _ := parseCellAddr(cell)
	if p.cells[sheetKey] == nil {
		p.cells[sheetKey] = make(map[CellAddr]Value)
	}
	p.cells[sheetKey][addr] = v
}

func (p *mapProvider) Get(sheetKey string, addr CellAddr) (Value, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for book, sheets := range p.order {
		for _, sheet := range sheets {
			if externalSheetKey(book, sheet) == sheetKey {
				return p.cells[sheetKey][addr], true
			}
		}
	}
	return Value{}, false
}

func (p *mapProvider) SheetOrder(workbook string) ([]string, bool) {
	order, ok := p.order[workbook]
	return order, ok
}

func (p *mapProvider) WorkbookTable(string, string) (string, TableMetadata, bool) {
	return "", TableMetadata{}, false
}

func (p *mapProvider) Extent(sheetKey string) (int, int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rows, cols := 0, 0
	for addr := range p.cells[sheetKey] {
		rows, cols = max(rows, addr.Row), max(cols, addr.Col)
	}
	return rows, cols, true
}

func TestExternalReferences(t *testing.T) {
	p := newMapProvider()
	p.set("[Book.xlsx]Jan", "A1", NewNumberValue(10))
	p.set("[Book.xlsx]Feb", "A1", NewNumberValue(20))
	p.set("[Book.xlsx]Mar", "A1", NewNumberValue(30))
	p.set("[Book.xlsx]Jan", "B1", NewStringValue("x"))
	p.set("[Book.xlsx]Jan", "B2", NewStringValue("y"))

	e := NewEngine()
	require.NoError(t, e.SetCellFormulas([]FormulaUpdate{
		{Sheet: "Sheet1", Cell: "A1", Formula: "=[Book.xlsx]Jan!A1*2"},
		{Sheet: "Sheet1", Cell: "A2", Formula: "=SUM([Book.xlsx]Jan:Mar!A1)"},
		{Sheet: "Sheet1", Cell: "A3", Formula: "=COUNTA([Book.xlsx]Jan!B:B)"},
		{Sheet: "Sheet1", Cell: "A4", Formula: "=[Other.xlsx]Jan!A1"},
	}))
	recalc(t, e)
	assert.Equal(t, ErrorREF, valueOf(t, e, "Sheet1", "A1").Err)

	require.NoError(t, e.SetExternalProvider(p))
	recalc(t, e)
	assert.Equal(t, "20", textOf(t, e, "Sheet1", "A1"))
	assert.Equal(t, "60", textOf(t, e, "Sheet1", "A2"))
	assert.Equal(t, "2", textOf(t, e, "Sheet1", "A3"))
	assert.Equal(t, ErrorREF, valueOf(t, e, "Sheet1", "A4").Err)

	t.Run("refresh", func(t *testing.T) {
		p.set("[Book.xlsx]Jan", "A1", NewNumberValue(1))
		recalc(t, e)
		assert.Equal(t, "20", textOf(t, e, "Sheet1", "A1"))
		e.RefreshExternal()
		recalc(t, e)
		assert.Equal(t, "2", textOf(t, e, "Sheet1", "A1"))
		assert.Equal(t, "51", textOf(t, e, "Sheet1", "A2"))
	})
}

type fakeRTD struct {
	calls int
	err   error
}

func (s *fakeRTD) RealTimeData(progID, server string, topics []string) (Value, error) {
	s.calls++
	if s.err != nil {
		return Value{}, s.err
	}
	return NewStringValue(progID + "/" + server + "/" + strings.Join(topics, ",")), nil
}

func TestRealTimeData(t *testing.T) {
	srv := &fakeRTD{}
	e := NewEngine(Options{RTD: srv, Workers: 4, DynamicArrays: true})
	require.NoError(t, e.SetCellFormula("Sheet1", "A1", `=RTD("quotes","","MSFT","last")`))
	recalc(t, e)
	assert.Equal(t, "quotes//MSFT,last", textOf(t, e, "Sheet1", "A1"))
	recalc(t, e)
	assert.Equal(t, 2, srv.calls)

	srv.err = errors.New("server down")
	recalc(t, e)
	assert.Equal(t, ErrorNA, valueOf(t, e, "Sheet1", "A1").Err)

	bare := NewEngine()
	v, err := bare.EvalFormula("Sheet1", "A1", `=RTD("quotes","","MSFT")`)
	require.NoError(t, err)
	assert.Equal(t, ErrorNA, v.Err)
}
