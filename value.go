// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"math"
	"strconv"
	"strings"

	"github.com/tiendc/go-deepcopy"
)

// ErrorKind enumerates the error values a formula can produce.
type ErrorKind uint8

// Error kinds, in the order ERROR.TYPE numbers them.
const (
	ErrorNone ErrorKind = iota
	ErrorNULL
	ErrorDIV0
	ErrorVALUE
	ErrorREF
	ErrorNAME
	ErrorNUM
	ErrorNA
	ErrorGETTINGDATA
	ErrorSPILL
	ErrorCONNECT
	ErrorBLOCKED
	ErrorUNKNOWN
	ErrorFIELD
	ErrorCALC
)

var errorLiterals = [...]string{
	ErrorNone:        "",
	ErrorNULL:        "#NULL!",
	ErrorDIV0:        "#DIV/0!",
	ErrorVALUE:       "#VALUE!",
	ErrorREF:         "#REF!",
	ErrorNAME:        "#NAME?",
	ErrorNUM:         "#NUM!",
	ErrorNA:          "#N/A",
	ErrorGETTINGDATA: "#GETTING_DATA",
	ErrorSPILL:       "#SPILL!",
	ErrorCONNECT:     "#CONNECT!",
	ErrorBLOCKED:     "#BLOCKED!",
	ErrorUNKNOWN:     "#UNKNOWN!",
	ErrorFIELD:       "#FIELD!",
	ErrorCALC:        "#CALC!",
}

// String returns the literal spelling of the error.
func (k ErrorKind) String() string {
	if int(k) < len(errorLiterals) {
		return errorLiterals[k]
	}
	return "#UNKNOWN!"
}

// ParseErrorLiteral maps an error literal such as "#N/A" to its kind.
func ParseErrorLiteral(s string) (ErrorKind, bool) {
	for k, lit := range errorLiterals {
		if k != 0 && strings.EqualFold(lit, s) {
			return ErrorKind(k), true
		}
	}
	return ErrorNone, false
}

// ValueType is the tag of a Value.
type ValueType uint8

// Value types.
const (
	ValueEmpty ValueType = iota
	ValueNumber
	ValueString
	ValueBool
	ValueError
	ValueArray
)

// Value is the result of evaluating a formula or the content of a cell.
// Exactly one payload field is meaningful for a given Type. Text carries a
// diagnostic message for errors. Array rows are never themselves arrays.
type Value struct {
	Type   ValueType
	Number float64
	Text   string
	Bool   bool
	Err    ErrorKind
	Array  [][]Value
}

// EmptyValue returns a blank value.
func EmptyValue() Value { return Value{} }

// NewNumberValue returns a numeric value.
func NewNumberValue(n float64) Value { return Value{Type: ValueNumber, Number: n} }

// NewStringValue returns a text value.
func NewStringValue(s string) Value { return Value{Type: ValueString, Text: s} }

// NewBoolValue returns a logical value.
func NewBoolValue(b bool) Value { return Value{Type: ValueBool, Bool: b} }

// NewErrorValue returns an error value with an optional diagnostic message.
func NewErrorValue(kind ErrorKind, msg ...string) Value {
	v := Value{Type: ValueError, Err: kind}
	if len(msg) > 0 {
		v.Text = msg[0]
	}
	return v
}

// NewArrayValue returns an array value. Nested arrays are replaced by their
// top-left element and ragged rows are padded with #N/A.
func NewArrayValue(rows [][]Value) Value {
	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}
	out := make([][]Value, len(rows))
	for r, row := range rows {
		out[r] = make([]Value, width)
		for c := range out[r] {
			if c >= len(row) {
				out[r][c] = NewErrorValue(ErrorNA)
				continue
			}
			out[r][c] = row[c].scalar()
		}
	}
	return Value{Type: ValueArray, Array: out}
}

// newMatrix builds a rows×cols array from a generator.
func newMatrix(rows, cols int, fn func(r, c int) Value) Value {
	out := make([][]Value, rows)
	for r := range out {
		out[r] = make([]Value, cols)
		for c := range out[r] {
			out[r][c] = fn(r, c)
		}
	}
	return Value{Type: ValueArray, Array: out}
}

// scalar returns the top-left element of an array, or the value itself.
func (v Value) scalar() Value {
	if v.Type != ValueArray {
		return v
	}
	if len(v.Array) == 0 || len(v.Array[0]) == 0 {
		return EmptyValue()
	}
	return v.Array[0][0]
}

// Dims returns the number of rows and columns of the value; scalars are 1×1.
func (v Value) Dims() (int, int) {
	if v.Type != ValueArray {
		return 1, 1
	}
	if len(v.Array) == 0 {
		return 0, 0
	}
	return len(v.Array), len(v.Array[0])
}

// at returns the element at r, c, broadcasting scalars and single rows or
// columns, and #N/A outside the array.
func (v Value) at(r, c int) Value {
	if v.Type != ValueArray {
		return v
	}
	rows, cols := v.Dims()
	if rows == 1 {
		r = 0
	}
	if cols == 1 {
		c = 0
	}
	if r >= rows || c >= cols {
		return NewErrorValue(ErrorNA)
	}
	return v.Array[r][c]
}

// IsError reports whether the value is an error.
func (v Value) IsError() bool { return v.Type == ValueError }

// IsEmpty reports whether the value is blank.
func (v Value) IsEmpty() bool { return v.Type == ValueEmpty }

// Equal reports whether two values are identical, ignoring error messages.
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case ValueNumber:
		return v.Number == o.Number
	case ValueString:
		return v.Text == o.Text
	case ValueBool:
		return v.Bool == o.Bool
	case ValueError:
		return v.Err == o.Err
	case ValueArray:
		if len(v.Array) != len(o.Array) {
			return false
		}
		for r := range v.Array {
			if len(v.Array[r]) != len(o.Array[r]) {
				return false
			}
			for c := range v.Array[r] {
				if !v.Array[r][c].Equal(o.Array[r][c]) {
					return false
				}
			}
		}
	}
	return true
}

// Clone returns a deep copy of the value so callers cannot alias array
// storage owned by the engine.
func (v Value) Clone() Value {
	if v.Type != ValueArray {
		return v
	}
	var out Value
	if err := deepcopy.Copy(&out, &v); err != nil {
		return NewArrayValue(v.Array)
	}
	return out
}

// String renders the value the way a cell would display it in general
// format.
func (v Value) String() string {
	switch v.Type {
	case ValueNumber:
		return formatNumber(v.Number)
	case ValueString:
		return v.Text
	case ValueBool:
		if v.Bool {
			return "TRUE"
		}
		return "FALSE"
	case ValueError:
		return v.Err.String()
	case ValueArray:
		return v.scalar().String()
	}
	return ""
}

// formatNumber renders a number with at most 15 significant digits, the
// way general format does.
func formatNumber(n float64) string {
	if n == 0 {
		return "0"
	}
	if math.IsInf(n, 0) || math.IsNaN(n) {
		return ErrorNUM.String()
	}
	abs := math.Abs(n)
	if abs >= 1e15 || abs < 1e-9 {
		s := strconv.FormatFloat(n, 'E', 14, 64)
		mant, exp, _ := strings.Cut(s, "E")
		if strings.Contains(mant, ".") {
			mant = strings.TrimRight(strings.TrimRight(mant, "0"), ".")
		}
		return mant + "E" + exp
	}
	rounded, _ := strconv.ParseFloat(strconv.FormatFloat(n, 'G', 15, 64), 64)
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}

// ToNumber coerces a scalar to a number. Text is parsed, logical values
// become 1 or 0, blank becomes 0. An error value is returned unchanged.
func (v Value) ToNumber() Value {
	switch v.Type {
	case ValueNumber:
		return v
	case ValueEmpty:
		return NewNumberValue(0)
	case ValueBool:
		if v.Bool {
			return NewNumberValue(1)
		}
		return NewNumberValue(0)
	case ValueString:
		if n, ok := parseNumberText(v.Text); ok {
			return NewNumberValue(n)
		}
		return NewErrorValue(ErrorVALUE, "cannot convert "+strconv.Quote(v.Text)+" to a number")
	case ValueError:
		return v
	case ValueArray:
		return v.scalar().ToNumber()
	}
	return NewErrorValue(ErrorVALUE)
}

// ToBool coerces a scalar to a logical value.
func (v Value) ToBool() Value {
	switch v.Type {
	case ValueBool:
		return v
	case ValueEmpty:
		return NewBoolValue(false)
	case ValueNumber:
		return NewBoolValue(v.Number != 0)
	case ValueString:
		switch strings.ToUpper(strings.TrimSpace(v.Text)) {
		case "TRUE":
			return NewBoolValue(true)
		case "FALSE":
			return NewBoolValue(false)
		}
		return NewErrorValue(ErrorVALUE, "cannot convert "+strconv.Quote(v.Text)+" to a logical value")
	case ValueError:
		return v
	case ValueArray:
		return v.scalar().ToBool()
	}
	return NewErrorValue(ErrorVALUE)
}

// ToText coerces a scalar to text.
func (v Value) ToText() Value {
	switch v.Type {
	case ValueString:
		return v
	case ValueError:
		return v
	case ValueArray:
		return v.scalar().ToText()
	}
	return NewStringValue(v.String())
}

// parseNumberText parses text the way Excel does when it expects a number:
// surrounding spaces, thousands separators, a trailing percent sign and a
// currency sign are tolerated, and date-like text becomes a serial.
func parseNumberText(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	percent := false
	if strings.HasSuffix(s, "%") {
		percent = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.TrimPrefix(s, "$")
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ",", "")
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
		if percent || neg {
			return 0, false
		}
		if serial, ok := parseDateText(s); ok {
			return serial, true
		}
		return 0, false
	}
	if lower := strings.ToLower(s); strings.Contains(lower, "inf") || strings.Contains(lower, "nan") || strings.HasPrefix(lower, "0x") {
		return 0, false
	}
	if neg {
		n = -n
	}
	if percent {
		n /= 100
	}
	return n, true
}
