// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrColumnNumber defined the error message on receive an invalid column
	// number.
	ErrColumnNumber = fmt.Errorf("the column number must be greater than or equal to %d and less than or equal to %d", 1, MaxColumns)
	// ErrMaxRows defined the error message on receive a row number exceeds
	// maximum limit.
	ErrMaxRows = errors.New("row number exceeds maximum limit")
	// ErrSheetNameBlank defined the error message on receive the blank sheet
	// name.
	ErrSheetNameBlank = errors.New("the sheet name can not be blank")
	// ErrSheetNameInvalid defined the error message on receive the sheet name
	// contains invalid characters.
	ErrSheetNameInvalid = errors.New("the sheet can not contain any of the characters :\\/?*[or]")
	// ErrDefinedNameEmpty defined the error message on receive an empty name.
	ErrDefinedNameEmpty = errors.New("the defined name can not be empty")
	// ErrDefinedNameInvalid defined the error message on receive a defined
	// name that collides with a cell reference or contains invalid
	// characters.
	ErrDefinedNameInvalid = errors.New("invalid defined name")
	// ErrFunctionName defined the error message on registering a function
	// without a name or handler.
	ErrFunctionName = errors.New("function descriptor requires a name and a handler")
	// ErrFunctionArity defined the error message on registering a function
	// whose argument bounds are inconsistent.
	ErrFunctionArity = errors.New("function descriptor has an invalid argument range")
	// ErrTableRange defined the error message on adding a table whose range
	// cannot hold its columns.
	ErrTableRange = errors.New("table range does not match the column list")
	// ErrEmptyFormula defined the error message on assigning an empty
	// formula.
	ErrEmptyFormula = errors.New("formula text is empty")
	// ErrRowCount defined the error message on insert or delete with a
	// non-positive count.
	ErrRowCount = errors.New("count must be greater than zero")
)

// ErrSheetNotExist defined an error of sheet that does not exist.
type ErrSheetNotExist struct {
	SheetName string
}

// Error returns the error message on receiving the non existing sheet name.
func (err ErrSheetNotExist) Error() string {
	return fmt.Sprintf("sheet %s does not exist", err.SheetName)
}

// ErrSheetExists defined an error of adding a sheet whose name is taken.
type ErrSheetExists struct {
	SheetName string
}

func (err ErrSheetExists) Error() string {
	return fmt.Sprintf("sheet %s already exists", err.SheetName)
}

// ErrNameNotExist defined an error of a defined name that does not exist.
type ErrNameNotExist struct {
	Name string
}

func (err ErrNameNotExist) Error() string {
	return fmt.Sprintf("defined name %s does not exist", err.Name)
}

// ErrTableExists defined an error of adding a table whose name is taken.
type ErrTableExists struct {
	Name string
}

func (err ErrTableExists) Error() string {
	return fmt.Sprintf("table %s already exists", err.Name)
}

// ErrFunctionExists defined an error of registering a function over a
// built-in one.
type ErrFunctionExists struct {
	Name string
}

func (err ErrFunctionExists) Error() string {
	return fmt.Sprintf("function %s is already registered", err.Name)
}

// newInvalidColumnNameError defined the error message on receiving the
// invalid column name.
func newInvalidColumnNameError(col string) error {
	return fmt.Errorf("invalid column name %q", col)
}

// newInvalidCellNameError defined the error message on receiving the invalid
// cell name.
func newInvalidCellNameError(cell string) error {
	return fmt.Errorf("invalid cell name %q", cell)
}

// newCellNameToCoordinatesError defined the error message on converts
// alphanumeric cell name to coordinates.
func newCellNameToCoordinatesError(cell string, err error) error {
	return fmt.Errorf("cannot convert cell %q to coordinates: %v", cell, err)
}

// newCoordinatesToCellNameError defined the error message on converts [X, Y]
// coordinates to alpha-numeric cell name.
func newCoordinatesToCellNameError(col, row int) error {
	return fmt.Errorf("invalid cell reference [%d, %d]", col, row)
}

// LexError reports text the lexer could not turn into a token.
type LexError struct {
	Offset  int
	Message string
}

func (err *LexError) Error() string {
	return fmt.Sprintf("lex error at offset %d: %s", err.Offset, err.Message)
}

// ParseError reports a token sequence the parser could not turn into a
// formula tree. Offset is the byte offset of the offending token.
type ParseError struct {
	TokenIndex int
	Offset     int
	Message    string
}

func (err *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d (token %d): %s", err.Offset, err.TokenIndex, err.Message)
}

// CircularReferenceError is returned when an assignment or a calc chain
// rebuild would close a dependency cycle. Cycle lists the cells on the
// cycle in "depends on" order, starting at the lowest address.
type CircularReferenceError struct {
	Cycle []string
}

func (err *CircularReferenceError) Error() string {
	return "circular reference: " + strings.Join(err.Cycle, " -> ")
}
