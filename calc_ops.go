// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"math"
	"strings"
)

// mapValue applies fn to a scalar or to every element of an array.
func mapValue(v Value, fn func(Value) Value) Value {
	if v.Type != ValueArray {
		return fn(v)
	}
	rows, cols := v.Dims()
	return newMatrix(rows, cols, func(r, c int) Value { return fn(v.Array[r][c]) })
}

// binaryValue applies an arithmetic, concatenation or comparison operator,
// broadcasting over arrays. Mismatched shapes yield #N/A where one operand
// has no element.
func (v *vm) binaryValue(op string, a, b Value) Value {
	if a.Type != ValueArray && b.Type != ValueArray {
		return scalarOp(op, a, b, v.e.text)
	}
	ra, ca := a.Dims()
	rb, cb := b.Dims()
	return newMatrix(max(ra, rb), max(ca, cb), func(r, c int) Value {
		return scalarOp(op, a.at(r, c), b.at(r, c), v.e.text)
	})
}

func scalarOp(op string, a, b Value, text *textRules) Value {
	if a.Type == ValueError {
		return a
	}
	if b.Type == ValueError {
		return b
	}
	switch op {
	case "&":
		return NewStringValue(a.ToText().Text + b.ToText().Text)
	case "=", "<>", "<", "<=", ">", ">=":
		cmp := compareValues(a, b, text)
		switch op {
		case "=":
			return NewBoolValue(cmp == 0)
		case "<>":
			return NewBoolValue(cmp != 0)
		case "<":
			return NewBoolValue(cmp < 0)
		case "<=":
			return NewBoolValue(cmp <= 0)
		case ">":
			return NewBoolValue(cmp > 0)
		}
		return NewBoolValue(cmp >= 0)
	}
	return arith(op, a, b)
}

func arith(op string, a, b Value) Value {
	x := a.ToNumber()
	if x.Type == ValueError {
		return x
	}
	y := b.ToNumber()
	if y.Type == ValueError {
		return y
	}
	var n float64
	switch op {
	case "+":
		n = x.Number + y.Number
	case "-":
		n = x.Number - y.Number
	case "*":
		n = x.Number * y.Number
	case "/":
		if y.Number == 0 {
			return NewErrorValue(ErrorDIV0)
		}
		n = x.Number / y.Number
	case "^":
		return power(x.Number, y.Number)
	default:
		return NewErrorValue(ErrorVALUE)
	}
	return numberResult(n)
}

// power follows Excel: 0^0 and fractional powers of negatives are #NUM!,
// negative powers of zero are #DIV/0!.
func power(x, y float64) Value {
	switch {
	case x == 0 && y == 0:
		return NewErrorValue(ErrorNUM)
	case x == 0 && y < 0:
		return NewErrorValue(ErrorDIV0)
	case x < 0 && y != math.Trunc(y):
		return NewErrorValue(ErrorNUM)
	}
	return numberResult(math.Pow(x, y))
}

func numberResult(n float64) Value {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return NewErrorValue(ErrorNUM)
	}
	return NewNumberValue(n)
}

// typeRank orders scalar types for comparison: numbers before text before
// logical values.
func typeRank(t ValueType) int {
	switch t {
	case ValueNumber:
		return 0
	case ValueString:
		return 1
	case ValueBool:
		return 2
	}
	return 3
}

// compareValues compares two non-error scalars the way the comparison
// operators do. A blank operand takes the zero value of the other
// operand's type; different types order by typeRank; text compares
// case-insensitively under the locale collation.
func compareValues(a, b Value, text *textRules) int {
	if a.Type == ValueEmpty {
		a = zeroOf(b.Type)
	}
	if b.Type == ValueEmpty {
		b = zeroOf(a.Type)
	}
	if ra, rb := typeRank(a.Type), typeRank(b.Type); ra != rb {
		return cmpInt(ra, rb)
	}
	switch a.Type {
	case ValueNumber:
		return cmpFloat(a.Number, b.Number)
	case ValueString:
		if text == nil {
			return cmpInt(strings.Compare(strings.ToLower(a.Text), strings.ToLower(b.Text)), 0)
		}
		if text.equal(a.Text, b.Text) {
			return 0
		}
		return text.compare(a.Text, b.Text)
	case ValueBool:
		return cmpInt(boolInt(a.Bool), boolInt(b.Bool))
	}
	return 0
}

// orderValues is the sort order of SORT, MATCH and the lookups: numbers,
// text, logical values, errors, then blanks.
func orderValues(a, b Value, text *textRules) int {
	rank := func(v Value) int {
		switch v.Type {
		case ValueError:
			return 3
		case ValueEmpty:
			return 4
		}
		return typeRank(v.Type)
	}
	if ra, rb := rank(a), rank(b); ra != rb {
		return cmpInt(ra, rb)
	}
	if a.Type == ValueError {
		return cmpInt(int(a.Err), int(b.Err))
	}
	if a.Type == ValueEmpty {
		return 0
	}
	return compareValues(a, b, text)
}

func zeroOf(t ValueType) Value {
	switch t {
	case ValueString:
		return NewStringValue("")
	case ValueBool:
		return NewBoolValue(false)
	case ValueEmpty:
		return EmptyValue()
	}
	return NewNumberValue(0)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
