// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numNode(v float64, raw string) *NumberNode { return &NumberNode{Value: v, Raw: raw} }

func TestParseFormulaTree(t *testing.T) {
	home := CellAddr{Row: 1, Col: 3}
	for _, c := range []struct {
		formula string
		want    Node
	}{
		{"=A1+B1", &BinaryNode{
			Op:    "+",
			Left:  &CellRefNode{Ref: CellRef{Row: 0, Col: -2}},
			Right: &CellRefNode{Ref: CellRef{Row: 0, Col: -1}},
		}},
		{"=1+2*3^2", &BinaryNode{
			Op:   "+",
			Left: numNode(1, "1"),
			Right: &BinaryNode{
				Op:    "*",
				Left:  numNode(2, "2"),
				Right: &BinaryNode{Op: "^", Left: numNode(3, "3"), Right: numNode(2, "2")},
			},
		}},
		{"=2^3^2", &BinaryNode{
			Op:    "^",
			Left:  numNode(2, "2"),
			Right: &BinaryNode{Op: "^", Left: numNode(3, "3"), Right: numNode(2, "2")},
		}},
		{"=-2^2", &BinaryNode{
			Op:    "^",
			Left:  &UnaryNode{Op: "-", Operand: numNode(2, "2")},
			Right: numNode(2, "2"),
		}},
		{"=1&2=\"12\"", &BinaryNode{
			Op:    "=",
			Left:  &BinaryNode{Op: "&", Left: numNode(1, "1"), Right: numNode(2, "2")},
			Right: &StringNode{Value: "12"},
		}},
		{"=50%", &UnaryNode{Op: "%", Operand: numNode(50, "50")}},
		{"=Sheet2!$A$1:B2", &RangeRefNode{
			Prefix: &SheetPrefix{Sheet: "Sheet2"},
			From:   CellRef{Row: 1, Col: 1, RowAbs: true, ColAbs: true},
			To:     CellRef{Row: 1, Col: -1},
		}},
		{"=IF(,1)", &FunctionNode{Name: "IF", Spelling: "IF", Args: []Node{&MissingArgNode{}, numNode(1, "1")}}},
		{"=_xlfn.XLOOKUP(1,{1;2},#N/A)", &FunctionNode{
			Name: "XLOOKUP", Spelling: "_xlfn.XLOOKUP", Legacy: true,
			Args: []Node{
				numNode(1, "1"),
				&ArrayNode{Rows: [][]Node{{numNode(1, "1")}, {numNode(2, "2")}}},
				&ErrorNode{Kind: ErrorNA},
			},
		}},
		{"=A1#", &UnaryNode{Op: "#", Operand: &CellRefNode{Ref: CellRef{Row: 0, Col: -2}}}},
	} {
		t.Run(c.formula, func(t *testing.T) {
			got, err := ParseFormula(c.formula, ParseContext{Home: home})
			require.NoError(t, err)
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Errorf("tree mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseFormulaSharesRelativeShape(t *testing.T) {
	c1, err := ParseFormula("=A1+B1", ParseContext{Home: CellAddr{Row: 1, Col: 3}})
	require.NoError(t, err)
	c2, err := ParseFormula("=A2+B2", ParseContext{Home: CellAddr{Row: 2, Col: 3}})
	require.NoError(t, err)
	assert.True(t, NodesEqual(c1, c2))
	assert.Empty(t, cmp.Diff(c1, c2))

	c3, err := ParseFormula("=A1+B1", ParseContext{Home: CellAddr{Row: 2, Col: 3}})
	require.NoError(t, err)
	assert.False(t, NodesEqual(c1, c3))

	abs1, err := ParseFormula("=$A$1*2", ParseContext{Home: CellAddr{Row: 1, Col: 2}})
	require.NoError(t, err)
	abs2, err := ParseFormula("=$A$1*2", ParseContext{Home: CellAddr{Row: 9, Col: 2}})
	require.NoError(t, err)
	assert.Equal(t, NodeKey(abs1), NodeKey(abs2))
}

func TestSerializeRoundTrip(t *testing.T) {
	for _, formula := range []string{
		"=SUM(A1:B2,3)",
		`=IF(A1>0,"yes","no")`,
		`="say ""hi"""`,
		"=Sheet2!$A$1*-2^2",
		"='My Sheet'!A1:B3",
		"='2024'!B$4",
		"={1,2;3,-4}",
		"=SUM(A1:A3 A2:B2)",
		"=SUM((A1,B1))",
		"=_xlfn.XLOOKUP(1,A:A,B:B)",
		"=SUM(2:2)",
		"=50%",
		"=#N/A",
		"=[Book.xlsx]Sheet1!A1",
		"=SUM([Book.xlsx]Jan:Feb!B2)",
		"=Sheet1:Sheet3!A1",
		"=SUM(Sales[Qty])",
		"=Sales[[#Totals],[Qty]]",
		"=IF(,1)",
		"=A1#",
		"=1.50E+3",
		"=TaxRate*A1",
		"=(A1+B1)*C1",
	} {
		t.Run(formula, func(t *testing.T) {
			home := CellAddr{Row: 5, Col: 5}
			n, err := ParseFormula(formula, ParseContext{Home: home})
			require.NoError(t, err)
			assert.Equal(t, formula, SerializeFormula(n, SerializeContext{Home: home}))
		})
	}
}

func TestSerializeNormalisesWhitespace(t *testing.T) {
	n, err := ParseFormula("= SUM( A1 , 2 )  +  1", ParseContext{})
	require.NoError(t, err)
	assert.Equal(t, "=SUM(A1,2)+1", SerializeFormula(n, SerializeContext{}))
}

func TestSerializeModesAndLocales(t *testing.T) {
	home := CellAddr{Row: 2, Col: 2}
	n, err := ParseFormula("=A1+$C$3", ParseContext{Home: home})
	require.NoError(t, err)
	assert.Equal(t, "=R[-1]C[-1]+R3C3", SerializeFormula(n, SerializeContext{Home: home, Mode: RefModeR1C1}))

	n, err = ParseFormula("=R[-1]C+R1C1", ParseContext{Home: home, Mode: RefModeR1C1})
	require.NoError(t, err)
	assert.Equal(t, "=R[-1]C+R1C1", SerializeFormula(n, SerializeContext{Home: home, Mode: RefModeR1C1}))
	assert.Equal(t, "=B1+$A$1", SerializeFormula(n, SerializeContext{Home: home}))

	n, err = ParseFormula("=ROUND(1,5;0)", ParseContext{Locale: LocaleDeDE})
	require.NoError(t, err)
	assert.Equal(t, "=ROUND(1,5;0)", SerializeFormula(n, SerializeContext{Locale: LocaleDeDE}))
	assert.Equal(t, "=ROUND(1.5,0)", SerializeFormula(n, SerializeContext{Locale: LocaleEnUS}))

	n, err = ParseFormula(`=SUM({1\2;3\4,5})`, ParseContext{Locale: LocaleDeDE})
	require.NoError(t, err)
	assert.Equal(t, `=SUM({1\2;3\4,5})`, SerializeFormula(n, SerializeContext{Locale: LocaleDeDE}))
	assert.Equal(t, "=SUM({1,2;3,4.5})", SerializeFormula(n, SerializeContext{Locale: LocaleEnUS}))

	_, err = ParseFormula(`=SUM({1\2;3})`, ParseContext{Locale: LocaleDeDE})
	assert.ErrorContains(t, err, "same length")
}

func TestParseErrors(t *testing.T) {
	for _, formula := range []string{
		"=1+",
		"=(1",
		"=SUM(1",
		"=1 2",
		"={1,2;3}",
		"={A1}",
		"=" + strings.Repeat("(", MaxNestingDepth+1) + "1" + strings.Repeat(")", MaxNestingDepth+1),
		"=",
	} {
		t.Run(formula[:min(len(formula), 12)], func(t *testing.T) {
			_, err := ParseFormula(formula, ParseContext{})
			var parseErr *ParseError
			assert.ErrorAs(t, err, &parseErr)
		})
	}

	_, err := ParseFormula("=1+", ParseContext{})
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, 2, parseErr.TokenIndex)
	assert.Equal(t, 3, parseErr.Offset)
}
