// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenKinds(tokens []Token) []TokenKind {
	kinds := make([]TokenKind, len(tokens))
	for i, tok := range tokens {
		kinds[i] = tok.Kind
	}
	return kinds
}

func TestLex(t *testing.T) {
	tokens, err := Lex("=SUM(A1:B2,3)", LocaleEnUS, RefModeA1)
	require.NoError(t, err)
	assert.Equal(t, []TokenKind{
		TokenFunction, TokenOpenParen, TokenRangeRef, TokenArgSep, TokenNumber, TokenCloseParen,
	}, tokenKinds(tokens))
	assert.Equal(t, "SUM", tokens[0].Text)
	assert.Equal(t, 1, tokens[0].Offset)
	require.NotNil(t, tokens[2].Ref)
	assert.Equal(t, "A1:B2", tokens[2].Ref.Area)
	assert.True(t, tokens[2].Ref.IsRange)

	t.Run("literals", func(t *testing.T) {
		tokens, err := Lex(`="a""b"&TRUE&#N/A&1.5E+3`, LocaleEnUS, RefModeA1)
		require.NoError(t, err)
		assert.Equal(t, []TokenKind{
			TokenString, TokenOperator, TokenBool, TokenOperator, TokenError, TokenOperator, TokenNumber,
		}, tokenKinds(tokens))
		assert.Equal(t, `"a""b"`, tokens[0].Text)
		assert.Equal(t, "#N/A", tokens[4].Text)
		assert.Equal(t, "1.5E+3", tokens[6].Text)
	})

	t.Run("sheet and external prefixes", func(t *testing.T) {
		tokens, err := Lex(`='My Sheet'!A1+[Book.xlsx]Q1:Q2!B2+Sheet2!$C$3`, LocaleEnUS, RefModeA1)
		require.NoError(t, err)
		require.Len(t, tokens, 5)
		assert.Equal(t, TokenSheetRef, tokens[0].Kind)
		assert.Equal(t, &RefParts{Sheet: "My Sheet", Area: "A1"}, tokens[0].Ref)
		assert.Equal(t, TokenExternalRef, tokens[2].Kind)
		assert.Equal(t, &RefParts{Workbook: "Book.xlsx", Sheet: "Q1", SheetEnd: "Q2", Area: "B2"}, tokens[2].Ref)
		assert.Equal(t, TokenSheetRef, tokens[4].Kind)
		assert.Equal(t, "$C$3", tokens[4].Ref.Area)
	})

	t.Run("array constant", func(t *testing.T) {
		tokens, err := Lex("={1,2;3,4}", LocaleEnUS, RefModeA1)
		require.NoError(t, err)
		assert.Equal(t, []TokenKind{
			TokenArrayOpen, TokenNumber, TokenArrayColSep, TokenNumber, TokenArrayRowSep,
			TokenNumber, TokenArrayColSep, TokenNumber, TokenArrayClose,
		}, tokenKinds(tokens))
	})

	t.Run("reference operators", func(t *testing.T) {
		tokens, err := Lex("=SUM(A1:A3 A2:B2,(A1,B1))", LocaleEnUS, RefModeA1)
		require.NoError(t, err)
		assert.Equal(t, []TokenKind{
			TokenFunction, TokenOpenParen, TokenRangeRef, TokenIntersect, TokenRangeRef, TokenArgSep,
			TokenOpenParen, TokenCellRef, TokenUnion, TokenCellRef, TokenCloseParen, TokenCloseParen,
		}, tokenKinds(tokens))
	})

	t.Run("locale separators", func(t *testing.T) {
		tokens, err := Lex("=SUMME(1,5;2)", LocaleDeDE, RefModeA1)
		require.NoError(t, err)
		assert.Equal(t, []TokenKind{
			TokenFunction, TokenOpenParen, TokenNumber, TokenArgSep, TokenNumber, TokenCloseParen,
		}, tokenKinds(tokens))
		assert.Equal(t, "1,5", tokens[2].Text)
	})

	t.Run("locale array separators", func(t *testing.T) {
		tokens, err := Lex(`={1,5\2;3}`, LocaleDeDE, RefModeA1)
		require.NoError(t, err)
		assert.Equal(t, []TokenKind{
			TokenArrayOpen, TokenNumber, TokenArrayColSep, TokenNumber, TokenArrayRowSep,
			TokenNumber, TokenArrayClose,
		}, tokenKinds(tokens))
		assert.Equal(t, "1,5", tokens[1].Text)
	})
}

func TestTokenizeKeepsWhitespace(t *testing.T) {
	var kinds []TokenKind
	for tok, err := range Tokenize("=1 + 2", LocaleEnUS, RefModeA1) {
		require.NoError(t, err)
		kinds = append(kinds, tok.Kind)
	}
	assert.Equal(t, []TokenKind{TokenNumber, TokenWhitespace, TokenOperator, TokenWhitespace, TokenNumber}, kinds)
}

func TestLexerReset(t *testing.T) {
	l := NewLexer("=A1", LocaleEnUS, RefModeA1)
	tok, err := l.Next()
	require.NoError(t, err)
	assert.Equal(t, TokenCellRef, tok.Kind)
	tok, err = l.Next()
	require.NoError(t, err)
	assert.Equal(t, TokenEOF, tok.Kind)

	l.Reset()
	tok, err = l.Next()
	require.NoError(t, err)
	assert.Equal(t, "A1", tok.Text)
}

func TestLexErrors(t *testing.T) {
	for _, formula := range []string{
		`="abc`,
		"=#BOGUS",
		"='Sheet1",
		"=1.2.3",
		"=A1 ? 2",
	} {
		t.Run(formula, func(t *testing.T) {
			_, err := Lex(formula, LocaleEnUS, RefModeA1)
			var lexErr *LexError
			assert.ErrorAs(t, err, &lexErr)
		})
	}

	_, err := Lex(`=1+"abc`, LocaleEnUS, RefModeA1)
	var lexErr *LexError
	require.ErrorAs(t, err, &lexErr)
	assert.Equal(t, 3, lexErr.Offset)
}
