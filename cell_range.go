// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"golang.org/x/sync/errgroup"
)

// CellData contains the value and formula of a cell, and the origin of the
// spilled block it belongs to, if any.
type CellData struct {
	Value       Value
	Formula     string
	SpilledFrom string
}

// minRowsPerWorker keeps small ranges on one goroutine.
const minRowsPerWorker = 256

// GetRangeValues provides a function to get the values of a range such as
// "A1:Z1000". Whole-row and whole-column ranges are clipped to the used
// part of the sheet. Large ranges are read by several goroutines, each
// taking a chunk of rows.
//
//	values, err := e.GetRangeValues("Sheet1", "A1:Z10000")
//	if err != nil {
//	    fmt.Println(err)
//	    return
//	}
//	for rowIdx, row := range values {
//	    for colIdx, value := range row {
//	        fmt.Printf("Cell [%d,%d]: %s\n", rowIdx, colIdx, value)
//	    }
//	}
func (e *Engine) GetRangeValues(sheet, rangeAddr string) ([][]Value, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	area, err := e.rangeArea(sheet, rangeAddr)
	if err != nil {
		return nil, err
	}
	results := make([][]Value, area.Rows())
	e.readChunks(area, func(r int) {
		row := make([]Value, area.Cols())
		for c := range row {
			row[c] = e.store.Value(area.Sheet, CellAddr{Row: area.From.Row + r, Col: area.From.Col + c}).Clone()
		}
		results[r] = row
	})
	return results, nil
}

// GetRangeData provides a function to get the values, formulas and spill
// origins of a range, read the same way as GetRangeValues.
func (e *Engine) GetRangeData(sheet, rangeAddr string) ([][]CellData, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	area, err := e.rangeArea(sheet, rangeAddr)
	if err != nil {
		return nil, err
	}
	results := make([][]CellData, area.Rows())
	e.readChunks(area, func(r int) {
		row := make([]CellData, area.Cols())
		for c := range row {
			addr := CellAddr{Row: area.From.Row + r, Col: area.From.Col + c}
			rec, _ := e.store.Get(area.Sheet, addr)
			row[c].Value = rec.value.Clone()
			if rec.formula != nil {
				row[c].Formula = SerializeFormula(rec.formula.node, SerializeContext{Home: addr, Locale: e.opts.Locale, Mode: e.opts.RefMode})
			}
			if rec.origin != nil {
				row[c].SpilledFrom = rec.origin.String()
			}
		}
		results[r] = row
	})
	return results, nil
}

// rangeArea parses a range of a sheet and clips it to the used extent.
func (e *Engine) rangeArea(sheet, rangeAddr string) (Area, error) {
	id, ok := e.wb.sheetID(sheet)
	if !ok {
		return Area{}, ErrSheetNotExist{SheetName: sheet}
	}
	area, err := parseAreaRef(id, rangeAddr)
	if err != nil {
		return Area{}, err
	}
	maxRow, maxCol := e.store.Extent(id)
	return clipArea(area, maxRow, maxCol), nil
}

// readChunks calls fn for every row offset of an area, splitting the rows
// into contiguous chunks across the engine's workers.
func (e *Engine) readChunks(area Area, fn func(r int)) {
	numRows := area.Rows()
	numWorkers := min(e.opts.Workers, max(1, numRows/minRowsPerWorker))
	if numWorkers <= 1 {
		for r := 0; r < numRows; r++ {
			fn(r)
		}
		return
	}
	rowsPerWorker := (numRows + numWorkers - 1) / numWorkers
	var eg errgroup.Group
	for i := 0; i < numWorkers; i++ {
		start := i * rowsPerWorker
		end := min(start+rowsPerWorker, numRows)
		if start >= end {
			break
		}
		eg.Go(func() error {
			for r := start; r < end; r++ {
				fn(r)
			}
			return nil
		})
	}
	_ = eg.Wait()
}
