// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"strconv"
	"strings"
	"unicode"
)

const (
	// MaxRows is the largest row number a worksheet can address.
	MaxRows = 1048576
	// MaxColumns is the largest column number a worksheet can address.
	MaxColumns = 16384
	// MaxColumnNameLength is the number of letters in the widest column name.
	MaxColumnNameLength = 3
)

// CellAddr is a 1-based worksheet coordinate.
type CellAddr struct {
	Row int
	Col int
}

// String returns the A1 form of the address.
func (a CellAddr) String() string {
	name, err := CoordinatesToCellName(a.Col, a.Row)
	if err != nil {
		return "R" + strconv.Itoa(a.Row) + "C" + strconv.Itoa(a.Col)
	}
	return name
}

// Valid reports whether the address lies inside the worksheet grid.
func (a CellAddr) Valid() bool {
	return a.Row >= 1 && a.Row <= MaxRows && a.Col >= 1 && a.Col <= MaxColumns
}

// Area is a rectangular block of cells on one worksheet. From is always the
// top-left corner and To the bottom-right one.
type Area struct {
	Sheet int
	From  CellAddr
	To    CellAddr
}

// newArea builds a normalised area from two arbitrary corners.
func newArea(sheet int, a, b CellAddr) Area {
	if a.Row > b.Row {
		a.Row, b.Row = b.Row, a.Row
	}
	if a.Col > b.Col {
		a.Col, b.Col = b.Col, a.Col
	}
	return Area{Sheet: sheet, From: a, To: b}
}

// Rows returns the number of rows the area spans.
func (a Area) Rows() int { return a.To.Row - a.From.Row + 1 }

// Cols returns the number of columns the area spans.
func (a Area) Cols() int { return a.To.Col - a.From.Col + 1 }

// Size returns the number of cells covered by the area.
func (a Area) Size() int { return a.Rows() * a.Cols() }

// Contains reports whether the cell lies inside the area.
func (a Area) Contains(sheet int, c CellAddr) bool {
	return sheet == a.Sheet && c.Row >= a.From.Row && c.Row <= a.To.Row &&
		c.Col >= a.From.Col && c.Col <= a.To.Col
}

// Intersect returns the overlap of two areas and whether they overlap.
func (a Area) Intersect(b Area) (Area, bool) {
	if a.Sheet != b.Sheet {
		return Area{}, false
	}
	out := Area{Sheet: a.Sheet,
		From: CellAddr{Row: max(a.From.Row, b.From.Row), Col: max(a.From.Col, b.From.Col)},
		To:   CellAddr{Row: min(a.To.Row, b.To.Row), Col: min(a.To.Col, b.To.Col)},
	}
	if out.From.Row > out.To.Row || out.From.Col > out.To.Col {
		return Area{}, false
	}
	return out, true
}

// String renders the area in A1 form without a sheet prefix.
func (a Area) String() string {
	if a.From == a.To {
		return a.From.String()
	}
	return a.From.String() + ":" + a.To.String()
}

// ColumnNameToNumber provides a function to convert Excel sheet column name
// (case-insensitive) to int. The function returns an error if column name
// is invalid. For example, convert column name AK to number:
//
//	col, err := xlcalc.ColumnNameToNumber("AK") // returns 37
func ColumnNameToNumber(name string) (int, error) {
	if name == "" {
		return -1, ErrColumnNumber
	}
	col := 0
	multi := 1
	for i := len(name) - 1; i >= 0; i-- {
		r := name[i]
		switch {
		case r >= 'A' && r <= 'Z':
			col += int(r-'A'+1) * multi
		case r >= 'a' && r <= 'z':
			col += int(r-'a'+1) * multi
		default:
			return -1, newInvalidColumnNameError(name)
		}
		multi *= 26
		if multi > 26*26*26*26 {
			return -1, ErrColumnNumber
		}
	}
	if col > MaxColumns {
		return -1, ErrColumnNumber
	}
	return col, nil
}

// ColumnNumberToName provides a function to convert the integer to Excel
// sheet column title. For example, convert 37 to column name AK:
//
//	name, err := xlcalc.ColumnNumberToName(37) // returns "AK"
func ColumnNumberToName(num int) (string, error) {
	if num < 1 || num > MaxColumns {
		return "", ErrColumnNumber
	}
	var buf [MaxColumnNameLength]byte
	i := len(buf)
	for num > 0 {
		i--
		buf[i] = byte('A' + (num-1)%26)
		num = (num - 1) / 26
	}
	return string(buf[i:]), nil
}

// SplitCellName splits cell name to column name and row number. For
// example, "AK74" is split into "AK" and 74.
func SplitCellName(cell string) (string, int, error) {
	alpha := func(r rune) bool {
		return ('A' <= r && r <= 'Z') || ('a' <= r && r <= 'z')
	}
	if strings.IndexFunc(cell, alpha) == 0 {
		i := strings.LastIndexFunc(cell, alpha)
		if i >= 0 && i < len(cell)-1 {
			col, rowStr := cell[:i+1], cell[i+1:]
			if row, err := strconv.Atoi(rowStr); err == nil && row > 0 && rowStr[0] != '+' {
				return col, row, nil
			}
		}
	}
	return "", -1, newInvalidCellNameError(cell)
}

// CellNameToCoordinates converts alphanumeric cell name to [X, Y]
// coordinates or returns an error. Absolute markers are accepted:
//
//	col, row, err := xlcalc.CellNameToCoordinates("$A$1") // returns 1, 1, nil
func CellNameToCoordinates(cell string) (int, int, error) {
	colName, row, err := SplitCellName(strings.ReplaceAll(cell, "$", ""))
	if err != nil {
		return -1, -1, newCellNameToCoordinatesError(cell, err)
	}
	if row > MaxRows {
		return -1, -1, ErrMaxRows
	}
	col, err := ColumnNameToNumber(colName)
	if err != nil {
		return -1, -1, newCellNameToCoordinatesError(cell, err)
	}
	return col, row, nil
}

// CoordinatesToCellName converts [X, Y] coordinates to alpha-numeric cell
// name or returns an error. Set abs to true to get an absolute reference:
//
//	name, err := xlcalc.CoordinatesToCellName(1, 1, true) // returns "$A$1"
func CoordinatesToCellName(col, row int, abs ...bool) (string, error) {
	if col < 1 || row < 1 {
		return "", newCoordinatesToCellNameError(col, row)
	}
	if row > MaxRows {
		return "", ErrMaxRows
	}
	colName, err := ColumnNumberToName(col)
	if err != nil {
		return "", err
	}
	if len(abs) > 0 && abs[0] {
		return "$" + colName + "$" + strconv.Itoa(row), nil
	}
	return colName + strconv.Itoa(row), nil
}

// parseCellAddr converts a cell name into a CellAddr.
func parseCellAddr(cell string) (CellAddr, error) {
	col, row, err := CellNameToCoordinates(cell)
	if err != nil {
		return CellAddr{}, err
	}
	return CellAddr{Row: row, Col: col}, nil
}

// parseAreaRef converts "A1", "A1:B2", "A:C" or "1:3" into an area on the
// given sheet.
func parseAreaRef(sheet int, ref string) (Area, error) {
	ref = strings.ReplaceAll(ref, "$", "")
	from, to, found := strings.Cut(ref, ":")
	if !found {
		c, err := parseCellAddr(from)
		if err != nil {
			return Area{}, err
		}
		return Area{Sheet: sheet, From: c, To: c}, nil
	}
	if isAllDigits(from) && isAllDigits(to) {
		r1, _ := strconv.Atoi(from)
		r2, _ := strconv.Atoi(to)
		if r1 < 1 || r2 < 1 || r1 > MaxRows || r2 > MaxRows {
			return Area{}, newInvalidCellNameError(ref)
		}
		return newArea(sheet, CellAddr{Row: r1, Col: 1}, CellAddr{Row: r2, Col: MaxColumns}), nil
	}
	if isAllLetters(from) && isAllLetters(to) {
		c1, err := ColumnNameToNumber(from)
		if err != nil {
			return Area{}, err
		}
		c2, err := ColumnNameToNumber(to)
		if err != nil {
			return Area{}, err
		}
		return newArea(sheet, CellAddr{Row: 1, Col: c1}, CellAddr{Row: MaxRows, Col: c2}), nil
	}
	a, err := parseCellAddr(from)
	if err != nil {
		return Area{}, err
	}
	b, err := parseCellAddr(to)
	if err != nil {
		return Area{}, err
	}
	return newArea(sheet, a, b), nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isAllLetters(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// inStrSlice returns the index of the first case-insensitive match of k in
// a, or -1.
func inStrSlice(a []string, k string) int {
	for i, v := range a {
		if strings.EqualFold(v, k) {
			return i
		}
	}
	return -1
}
