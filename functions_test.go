// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSeededEngine returns an engine holding a mixed column in A1:A5 and a
// small lookup table in D1:E3.
func newSeededEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine()
	require.NoError(t, e.SetCellValues([]CellUpdate{
		{Sheet: "Sheet1", Cell: "A1", Value: "apple"},
		{Sheet: "Sheet1", Cell: "A2", Value: 5},
		{Sheet: "Sheet1", Cell: "A3", Value: 10},
		{Sheet: "Sheet1", Cell: "A4", Value: true},
		{Sheet: "Sheet1", Cell: "A5", Value: "7"},
		{Sheet: "Sheet1", Cell: "D1", Value: 1},
		{Sheet: "Sheet1", Cell: "E1", Value: "one"},
		{Sheet: "Sheet1", Cell: "D2", Value: 2},
		{Sheet: "Sheet1", Cell: "E2", Value: "two"},
		{Sheet: "Sheet1", Cell: "D3", Value: 3},
		{Sheet: "Sheet1", Cell: "E3", Value: "three"},
	}))
	recalc(t, e)
	return e
}

func runFormulaCases(t *testing.T, e *Engine, cases [][2]string) {
	t.Helper()
	for _, c := range cases {
		t.Run(c[0], func(t *testing.T) {
			v, err := e.EvalFormula("Sheet1", "H1", c[0])
			require.NoError(t, err)
			assert.Equal(t, c[1], v.String())
		})
	}
}

func TestOperators(t *testing.T) {
	runFormulaCases(t, newSeededEngine(t), [][2]string{
		{"=1/0", "#DIV/0!"},
		{`="a"+1`, "#VALUE!"},
		{`="3"+1`, "4"},
		{"=0.1+0.2", "0.3"},
		{"=-2^2", "4"},
		{"=2^3^2", "512"},
		{"=50%", "0.5"},
		{`="a"&1&TRUE`, "a1TRUE"},
		{`="abc"="ABC"`, "TRUE"},
		{`="a"<"b"`, "TRUE"},
		{`=1<"a"`, "TRUE"},
		{"=TRUE>1", "TRUE"},
		{"=A2*2", "10"},
		{"=A1+1", "#VALUE!"},
		{"=Z99+1", "1"},
		{"=SUM(A2:A3 A3:B3)", "10"},
		{"=SUM(D1:D2 E1:E2)", "#NULL!"},
		{"=SUM((A2,A3,D1))", "16"},
		{"=A2:A3", "5"},
	})
}

func TestLogicalFunctions(t *testing.T) {
	runFormulaCases(t, newSeededEngine(t), [][2]string{
		{"=IF(TRUE,1,1/0)", "1"},
		{"=IF(FALSE,1)", "FALSE"},
		{"=IF(A2>4,\"big\",\"small\")", "big"},
		{`=IFERROR(1/0,"x")`, "x"},
		{"=IFERROR(2,1/0)", "2"},
		{`=IFNA(NA(),"z")`, "z"},
		{"=IFNA(1/0,0)", "#DIV/0!"},
		{"=IFS(FALSE,1,TRUE,2)", "2"},
		{"=IFS(FALSE,1)", "#N/A"},
		{"=AND(TRUE,1)", "TRUE"},
		{"=AND(TRUE,0)", "FALSE"},
		{"=OR(FALSE,0)", "FALSE"},
		{"=OR(A4)", "TRUE"},
		{"=XOR(TRUE,TRUE)", "FALSE"},
		{"=NOT(0)", "TRUE"},
		{`=SWITCH(2,1,"a",2,"b")`, "b"},
		{`=SWITCH(9,1,"a","none")`, "none"},
		{"=SWITCH(9,1,2)", "#N/A"},
		{`=CHOOSE(2,"x","y")`, "y"},
		{"=CHOOSE(3,1,2)", "#VALUE!"},
	})
}

func TestAggregateFunctions(t *testing.T) {
	runFormulaCases(t, newSeededEngine(t), [][2]string{
		{"=SUM(A1:A3)", "15"},
		{"=SUM(A1:A5)", "15"},
		{`=SUM("5",TRUE,3)`, "9"},
		{`=SUM("x")`, "#VALUE!"},
		{"=SUMSQ(D1:D3)", "14"},
		{"=PRODUCT(2,3,4)", "24"},
		{"=SUMPRODUCT(D1:D3,D1:D3)", "14"},
		{"=COUNT(A1:A5)", "2"},
		{"=COUNTA(A1:A5)", "5"},
		{"=COUNTBLANK(A1:A6)", "1"},
		{`=COUNTIF(A1:A5,">4")`, "2"},
		{`=COUNTIF(A1:A5,"app*")`, "1"},
		{`=COUNTIF(A1:A5,"7")`, "1"},
		{`=COUNTIFS(D1:D3,">1",E1:E3,"t*")`, "2"},
		{`=SUMIF(A1:A5,">5")`, "10"},
		{`=SUMIF(E1:E3,"t*",D1:D3)`, "5"},
		{`=SUMIFS(D1:D3,E1:E3,"<>two")`, "4"},
		{`=AVERAGEIF(D1:D3,">1")`, "2.5"},
		{`=AVERAGEIFS(D1:D3,E1:E3,"o*")`, "1"},
		{"=AVERAGE(D1:D3)", "2"},
		{"=AVERAGE(A1)", "#DIV/0!"},
		{"=AVERAGEA(A1:A4)", "4"},
		{"=MAX(D1:D3)", "3"},
		{"=MIN(D1:D3,-1)", "-1"},
		{"=MAX(A1)", "0"},
		{"=MEDIAN(1,3,2,4)", "2.5"},
		{"=MEDIAN(A1)", "#NUM!"},
		{"=LARGE(D1:D3,1)", "3"},
		{"=SMALL(D1:D3,1)", "1"},
		{"=SMALL(D1:D3,4)", "#NUM!"},
		{"=VAR.P(2,4,4,4,5,5,7,9)", "4"},
		{"=STDEV.P(2,4,4,4,5,5,7,9)", "2"},
		{"=VAR(1)", "#DIV/0!"},
	})
}

func TestMathFunctions(t *testing.T) {
	runFormulaCases(t, newSeededEngine(t), [][2]string{
		{"=ABS(-3)", "3"},
		{"=SIGN(-0.5)", "-1"},
		{"=INT(-2.5)", "-3"},
		{"=TRUNC(-2.7)", "-2"},
		{"=SQRT(16)", "4"},
		{"=SQRT(-1)", "#NUM!"},
		{"=POWER(2,10)", "1024"},
		{"=MOD(-3,2)", "1"},
		{"=MOD(3,-2)", "-1"},
		{"=MOD(1,0)", "#DIV/0!"},
		{"=QUOTIENT(7,2)", "3"},
		{"=ROUND(2.5,0)", "3"},
		{"=ROUND(-2.5,0)", "-3"},
		{"=ROUND(1234.567,-2)", "1200"},
		{"=ROUNDDOWN(2.99,1)", "2.9"},
		{"=ROUNDUP(2.01,0)", "3"},
		{"=CEILING(2.1,1)", "3"},
		{"=FLOOR(2.9,1)", "2"},
		{"=FLOOR(2,0)", "#DIV/0!"},
		{"=LOG10(1000)", "3"},
		{"=LOG(8,2)", "3"},
		{"=LN(1)", "0"},
		{"=EXP(0)", "1"},
		{"=LN(0)", "#NUM!"},
		{"=ROUND(PI(),4)", "3.1416"},
	})
}

func TestTextFunctions(t *testing.T) {
	runFormulaCases(t, newSeededEngine(t), [][2]string{
		{`=LEFT("hello",2)`, "he"},
		{`=LEFT("hello")`, "h"},
		{`=RIGHT("hello",3)`, "llo"},
		{`=MID("hello",2,3)`, "ell"},
		{`=MID("hello",9,3)`, ""},
		{`=LEN("héllo")`, "5"},
		{`=UPPER("abc")`, "ABC"},
		{`=LOWER("ABC")`, "abc"},
		{`=PROPER("hello wORLD")`, "Hello World"},
		{`=TRIM("  a   b  ")`, "a b"},
		{`=SUBSTITUTE("a-b-c","-","+")`, "a+b+c"},
		{`=SUBSTITUTE("a-b-c","-","+",2)`, "a-b+c"},
		{`=REPLACE("abcdef",2,3,"X")`, "aXef"},
		{`=FIND("l","hello")`, "3"},
		{`=FIND("L","hello")`, "#VALUE!"},
		{`=SEARCH("L*o","hello")`, "3"},
		{`=REPT("ab",3)`, "ababab"},
		{`=EXACT("a","A")`, "FALSE"},
		{"=CONCAT(D1:E1)", "1one"},
		{`=CONCATENATE("a",1,TRUE)`, "a1TRUE"},
		{`=TEXTJOIN("-",TRUE,"a","","b")`, "a-b"},
		{`=TEXTJOIN("-",FALSE,"a","","b")`, "a--b"},
		{`=TEXT(1234.567,"0.00")`, "1234.57"},
		{`=TEXT(0.25,"0%")`, "25%"},
		{`=VALUE("12")`, "12"},
		{`=VALUE("abc")`, "#VALUE!"},
		{"=CHAR(65)", "A"},
		{`=CODE("A")`, "65"},
		{"=UNICHAR(8364)", "€"},
		{`=UNICODE("€")`, "8364"},
		{"=T(1)", ""},
		{`=T("x")`, "x"},
	})
}

func TestDateFunctions(t *testing.T) {
	runFormulaCases(t, newSeededEngine(t), [][2]string{
		{"=DATE(2024,1,1)", "45292"},
		{"=DATE(2024,13,1)", "45658"},
		{"=YEAR(45292)", "2024"},
		{"=MONTH(DATE(2024,2,29))", "2"},
		{"=DAY(DATE(2024,3,0))", "29"},
		{"=WEEKDAY(45292)", "2"},
		{"=TIME(12,0,0)", "0.5"},
		{"=HOUR(0.75)", "18"},
		{"=EDATE(DATE(2024,1,31),1)=DATE(2024,2,29)", "TRUE"},
		{"=EOMONTH(DATE(2024,1,15),1)", "45351"},
		{"=DAYS(DATE(2024,3,1),DATE(2024,2,1))", "29"},
		{`=DATEDIF(DATE(2020,1,1),DATE(2024,6,1),"Y")`, "4"},
		{`=DATEDIF(DATE(2024,6,1),DATE(2020,1,1),"Y")`, "#NUM!"},
	})
}

func TestLookupFunctions(t *testing.T) {
	runFormulaCases(t, newSeededEngine(t), [][2]string{
		{"=VLOOKUP(2,D1:E3,2,FALSE)", "two"},
		{"=VLOOKUP(5,D1:E3,2,FALSE)", "#N/A"},
		{"=VLOOKUP(2.5,D1:E3,2)", "two"},
		{"=VLOOKUP(2,D1:E3,3,FALSE)", "#REF!"},
		{`=HLOOKUP("one",E1:E3,2,FALSE)`, "two"},
		{"=MATCH(3,D1:D3,0)", "3"},
		{`=MATCH("t*",E1:E3,0)`, "2"},
		{"=INDEX(E1:E3,2)", "two"},
		{"=INDEX(D1:E3,3,2)", "three"},
		{"=INDEX(D1:E3,4,1)", "#REF!"},
		{"=XLOOKUP(3,D1:D3,E1:E3)", "three"},
		{`=XLOOKUP(9,D1:D3,E1:E3,"none")`, "none"},
		{"=XMATCH(2,D1:D3)", "2"},
		{"=ROW(D2)", "2"},
		{"=COLUMN(E1)", "5"},
		{"=ROWS(D1:E3)", "3"},
		{"=COLUMNS(D1:E3)", "2"},
		{"=SUM(OFFSET(D1,1,0,2,1))", "5"},
		{`=INDIRECT("E"&2)`, "two"},
		{`=INDIRECT("nowhere")`, "#REF!"},
	})
}

func TestArrayFunctions(t *testing.T) {
	runFormulaCases(t, newSeededEngine(t), [][2]string{
		{"=SUM(SEQUENCE(3))", "6"},
		{"=ROWS(SEQUENCE(4,2))", "4"},
		{"=INDEX(SORT({3;1;2}),1)", "1"},
		{"=INDEX(SORT({3;1;2},1,-1),1)", "3"},
		{"=COUNTA(UNIQUE({1;1;2}))", "2"},
		{"=SUM(FILTER(D1:D3,D1:D3>1))", "5"},
		{"=COLUMNS(TRANSPOSE(D1:D3))", "3"},
		{"=ROWS(VSTACK(D1:D3,D1:D2))", "5"},
		{"=COLUMNS(HSTACK(D1:D3,E1:E3))", "2"},
		{"=SUM(D1:D3*2)", "12"},
	})
}

func TestInfoFunctions(t *testing.T) {
	runFormulaCases(t, newSeededEngine(t), [][2]string{
		{"=ISBLANK(Z1)", "TRUE"},
		{"=ISNUMBER(A2)", "TRUE"},
		{"=ISNUMBER(A5)", "FALSE"},
		{"=ISTEXT(A5)", "TRUE"},
		{"=ISLOGICAL(A4)", "TRUE"},
		{"=ISERROR(1/0)", "TRUE"},
		{"=ISERR(NA())", "FALSE"},
		{"=ISNA(NA())", "TRUE"},
		{"=ISEVEN(4)", "TRUE"},
		{"=ISODD(4)", "FALSE"},
		{"=ISREF(A1)", "TRUE"},
		{"=ISREF(1)", "FALSE"},
		{"=ERROR.TYPE(1/0)", "2"},
		{"=ERROR.TYPE(1)", "#N/A"},
		{`=TYPE("a")`, "2"},
		{"=TYPE(1)", "1"},
		{"=N(TRUE)", "1"},
		{`=N("x")`, "0"},
		{"=SHEETS()", "1"},
	})
}

func TestFunctionCallErrors(t *testing.T) {
	runFormulaCases(t, newSeededEngine(t), [][2]string{
		{"=NOSUCHFN(1)", "#NAME?"},
		{"=SUM()", "#VALUE!"},
		{"=ABS(1,2)", "#VALUE!"},
		{"=ABS(#REF!)", "#REF!"},
		{"=SUM(1,NA())", "#N/A"},
	})
}

func TestFunctionSpellings(t *testing.T) {
	e := newSeededEngine(t)
	require.NoError(t, e.SetCellFormula("Sheet1", "H1", "=_xlfn.XLOOKUP(2,D1:D3,E1:E3)"))
	require.NoError(t, e.SetCellFormula("Sheet1", "H2", "=sum(d1:d3)"))
	recalc(t, e)
	assert.Equal(t, "two", textOf(t, e, "Sheet1", "H1"))
	assert.Equal(t, "6", textOf(t, e, "Sheet1", "H2"))
	formula, err := e.GetCellFormula("Sheet1", "H1")
	require.NoError(t, err)
	assert.Equal(t, "=_xlfn.XLOOKUP(2,D1:D3,E1:E3)", formula)
	formula, err = e.GetCellFormula("Sheet1", "H2")
	require.NoError(t, err)
	assert.Equal(t, "=SUM(D1:D3)", formula)
}
