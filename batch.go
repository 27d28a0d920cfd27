// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// CellUpdate is one constant to store with SetCellValues.
type CellUpdate struct {
	Sheet string
	Cell  string
	Value any
}

// FormulaUpdate is one formula to store with SetCellFormulas.
type FormulaUpdate struct {
	Sheet   string
	Cell    string
	Formula string
}

// SetCellValues provides a function to store many constants under one
// lock. Every update is attempted; the failures are returned together.
// Dependent formulas are recalculated by the next Recalculate.
//
//	err := e.SetCellValues([]xlcalc.CellUpdate{
//	    {Sheet: "Sheet1", Cell: "A1", Value: 100},
//	    {Sheet: "Sheet1", Cell: "A2", Value: 200},
//	})
func (e *Engine) SetCellValues(updates []CellUpdate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var result *multierror.Error
	for _, u := range updates {
		sheet, addr, err := e.locate(u.Sheet, u.Cell)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s!%s: %w", u.Sheet, u.Cell, err))
			continue
		}
		e.setValue(sheet, addr, toValue(u.Value))
	}
	return result.ErrorOrNil()
}

// SetCellFormulas provides a function to store many formulas under one
// lock. Formulas are assigned precedents first, as far as a reference scan
// of their text can tell, so that of two formulas forming a cycle the one
// closing it is the one rejected. Every update is attempted; the failures
// are returned together.
func (e *Engine) SetCellFormulas(updates []FormulaUpdate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var result *multierror.Error
	for _, u := range orderFormulaUpdates(updates) {
		sheet, addr, err := e.locate(u.Sheet, u.Cell)
		if err == nil {
			err = e.setFormula(sheet, addr, u.Formula)
		}
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s!%s: %w", u.Sheet, u.Cell, err))
		}
	}
	return result.ErrorOrNil()
}

// UpdateAndRecalculate stores many constants and recalculates once, so a
// formula affected by several of them is evaluated a single time.
func (e *Engine) UpdateAndRecalculate(ctx context.Context, updates []CellUpdate) error {
	var result *multierror.Error
	if err := e.SetCellValues(updates); err != nil {
		result = multierror.Append(result, err)
	}
	if err := e.Recalculate(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// orderFormulaUpdates sorts a batch so that a formula comes after the
// formulas of the batch it references. Updates on a cycle, or whose
// references cannot be scanned, keep their relative order at the end.
func orderFormulaUpdates(updates []FormulaUpdate) []FormulaUpdate {
	type target struct {
		index int
		addr  CellAddr
	}
	bySheet := make(map[string][]target)
	for i, u := range updates {
		addr, err := parseCellAddr(strings.ReplaceAll(u.Cell, "$", ""))
		if err != nil {
			continue
		}
		key := strings.ToUpper(u.Sheet)
		bySheet[key] = append(bySheet[key], target{index: i, addr: addr})
	}
	indegree := make([]int, len(updates))
	readers := make([][]int, len(updates))
	for i, u := range updates {
		seen := make(map[int]struct{})
		for _, ref := range ScanReferences(u.Formula) {
			if ref.Workbook != "" {
				continue
			}
			sheet := u.Sheet
			if ref.Sheet != "" {
				sheet = ref.Sheet
			}
			area, err := parseAreaRef(0, ref.Range)
			if err != nil {
				continue
			}
			for _, t := range bySheet[strings.ToUpper(sheet)] {
				if _, dup := seen[t.index]; dup || t.index == i || !area.Contains(0, t.addr) {
					continue
				}
				seen[t.index] = struct{}{}
				readers[t.index] = append(readers[t.index], i)
				indegree[i]++
			}
		}
	}
	out := make([]FormulaUpdate, 0, len(updates))
	done := make([]bool, len(updates))
	var ready []int
	for i := range updates {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	for len(ready) > 0 {
		var next []int
		for _, i := range ready {
			out = append(out, updates[i])
			done[i] = true
			for _, r := range readers[i] {
				if indegree[r]--; indegree[r] == 0 {
					next = append(next, r)
				}
			}
		}
		slices.Sort(next)
		ready = next
	}
	for i, u := range updates {
		if !done[i] {
			out = append(out, u)
		}
	}
	return out
}
