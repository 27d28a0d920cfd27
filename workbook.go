// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"strings"
	"unicode/utf8"
)

// MaxSheetNameLength is the longest sheet name Excel accepts.
const MaxSheetNameLength = 31

// Table describes a table to add with Engine.AddTable. Columns may be left
// empty when the table has a header row: the header cells name them.
type Table struct {
	Name          string
	Range         string
	Columns       []string
	ShowHeaderRow *bool
	ShowTotalsRow bool
}

// TableMetadata is the stored layout of a table as seen through an
// ExternalValueProvider.
type TableMetadata struct {
	Range     string
	Columns   []string
	HeaderRow bool
	TotalsRow bool
}

type tableEntry struct {
	name    string
	sheet   int
	area    Area
	columns []string
	header  bool
	totals  bool
}

// definedName is a workbook- or sheet-scoped name. Scope zero is the
// workbook.
type definedName struct {
	name     string
	scope    int
	refersTo string
	node     Node
	key      string
}

type nameKey struct {
	scope int
	name  string
}

// workbook is the engine's index of sheets, defined names and tables.
type workbook struct {
	order  []int
	sheets map[int]string
	byName map[string]int
	names  map[nameKey]*definedName
	tables map[string]*tableEntry
	nextID int
}

func newWorkbook() *workbook {
	return &workbook{
		sheets: make(map[int]string),
		byName: make(map[string]int),
		names:  make(map[nameKey]*definedName),
		tables: make(map[string]*tableEntry),
	}
}

// checkSheetName validates a sheet name the way Excel does.
func checkSheetName(name string) error {
	if name == "" {
		return ErrSheetNameBlank
	}
	if utf8.RuneCountInString(name) > MaxSheetNameLength {
		return ErrSheetNameInvalid
	}
	if strings.ContainsAny(name, ":\\/?*[]") || strings.HasPrefix(name, "'") || strings.HasSuffix(name, "'") {
		return ErrSheetNameInvalid
	}
	return nil
}

func (wb *workbook) addSheet(name string) (int, error) {
	if err := checkSheetName(name); err != nil {
		return 0, err
	}
	key := strings.ToUpper(name)
	if _, ok := wb.byName[key]; ok {
		return 0, ErrSheetExists{SheetName: name}
	}
	wb.nextID++
	id := wb.nextID
	wb.order = append(wb.order, id)
	wb.sheets[id] = name
	wb.byName[key] = id
	return id, nil
}

func (wb *workbook) deleteSheet(name string) (int, error) {
	id, ok := wb.sheetID(name)
	if !ok {
		return 0, ErrSheetNotExist{SheetName: name}
	}
	delete(wb.byName, strings.ToUpper(wb.sheets[id]))
	delete(wb.sheets, id)
	for i, v := range wb.order {
		if v == id {
			wb.order = append(wb.order[:i], wb.order[i+1:]...)
			break
		}
	}
	for k := range wb.names {
		if k.scope == id {
			delete(wb.names, k)
		}
	}
	for k, t := range wb.tables {
		if t.sheet == id {
			delete(wb.tables, k)
		}
	}
	return id, nil
}

func (wb *workbook) sheetID(name string) (int, bool) {
	id, ok := wb.byName[strings.ToUpper(name)]
	return id, ok
}

func (wb *workbook) sheetName(id int) string { return wb.sheets[id] }

func (wb *workbook) sheetList() []string {
	out := make([]string, 0, len(wb.order))
	for _, id := range wb.order {
		out = append(out, wb.sheets[id])
	}
	return out
}

// sheetSpan expands Sheet1:Sheet3 into sheet ids in workbook order. The
// endpoints may be given in either order.
func (wb *workbook) sheetSpan(start, end string) ([]int, bool) {
	a, ok := wb.sheetID(start)
	if !ok {
		return nil, false
	}
	b, ok := wb.sheetID(end)
	if !ok {
		return nil, false
	}
	ia, ib := -1, -1
	for i, id := range wb.order {
		if id == a {
			ia = i
		}
		if id == b {
			ib = i
		}
	}
	if ia > ib {
		ia, ib = ib, ia
	}
	return append([]int(nil), wb.order[ia:ib+1]...), true
}

// validDefinedName reports whether a name can be defined: it must start
// with a letter, underscore or backslash, hold only name characters and
// not read as a cell reference or a logical constant.
func validDefinedName(name string) bool {
	if name == "" {
		return false
	}
	r, _ := utf8.DecodeRuneInString(name)
	if !(r == '_' || r == '\\' || isLetterRune(r)) {
		return false
	}
	for _, r := range name {
		if !(r == '_' || r == '\\' || r == '.' || r == '?' || isLetterRune(r) || (r >= '0' && r <= '9')) {
			return false
		}
	}
	upper := strings.ToUpper(name)
	if upper == "TRUE" || upper == "FALSE" || upper == "R" || upper == "C" {
		return false
	}
	return matchA1Cell(name) != len(name) && matchR1C1Cell(upper) != len(name)
}

func isLetterRune(r rune) bool {
	return ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || r > utf8.RuneSelf
}

// lookupName finds a name, preferring the sheet scope over the workbook.
func (wb *workbook) lookupName(name string, sheet int) *definedName {
	key := strings.ToUpper(name)
	if dn, ok := wb.names[nameKey{scope: sheet, name: key}]; ok {
		return dn
	}
	return wb.names[nameKey{scope: 0, name: key}]
}

func (wb *workbook) table(name string) *tableEntry {
	return wb.tables[strings.ToUpper(name)]
}

// tableAt returns the table covering a cell, for unqualified [@Col]
// references written inside a table.
func (wb *workbook) tableAt(sheet int, addr CellAddr) *tableEntry {
	for _, t := range wb.tables {
		if t.area.Contains(sheet, addr) {
			return t
		}
	}
	return nil
}

// metadata renders the stored layout of a local table.
func (t *tableEntry) metadata() TableMetadata {
	return TableMetadata{
		Range:     t.area.String(),
		Columns:   append([]string(nil), t.columns...),
		HeaderRow: t.header,
		TotalsRow: t.totals,
	}
}
