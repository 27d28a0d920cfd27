// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenKind classifies a lexical token of formula text.
type TokenKind uint8

// Token kinds.
const (
	TokenEOF TokenKind = iota
	TokenNumber
	TokenString
	TokenBool
	TokenError
	TokenCellRef
	TokenRangeRef
	TokenSheetRef
	TokenExternalRef
	TokenStructuredRef
	TokenName
	TokenFunction
	TokenOpenParen
	TokenCloseParen
	TokenArgSep
	TokenArrayOpen
	TokenArrayClose
	TokenArrayColSep
	TokenArrayRowSep
	TokenOperator
	TokenIntersect
	TokenUnion
	TokenWhitespace
)

var tokenKindNames = [...]string{
	TokenEOF:           "EOF",
	TokenNumber:        "Number",
	TokenString:        "String",
	TokenBool:          "Bool",
	TokenError:         "Error",
	TokenCellRef:       "CellRef",
	TokenRangeRef:      "RangeRef",
	TokenSheetRef:      "SheetRef",
	TokenExternalRef:   "ExternalRef",
	TokenStructuredRef: "StructuredRef",
	TokenName:          "Name",
	TokenFunction:      "Function",
	TokenOpenParen:     "OpenParen",
	TokenCloseParen:    "CloseParen",
	TokenArgSep:        "ArgSep",
	TokenArrayOpen:     "ArrayOpen",
	TokenArrayClose:    "ArrayClose",
	TokenArrayColSep:   "ArrayColSep",
	TokenArrayRowSep:   "ArrayRowSep",
	TokenOperator:      "Operator",
	TokenIntersect:     "Intersect",
	TokenUnion:         "Union",
	TokenWhitespace:    "Whitespace",
}

func (k TokenKind) String() string {
	if int(k) < len(tokenKindNames) {
		return tokenKindNames[k]
	}
	return "Unknown"
}

// RefParts is the decoded shape of a reference token. Area holds the
// address text after any prefix, for example "$A$1:B2", "A:A" or "R[-1]C".
type RefParts struct {
	Workbook string
	Sheet    string
	SheetEnd string
	Area     string
	IsRange  bool
}

// Token is one lexical unit of formula text. Text is the source spelling
// and Offset its byte offset in the formula.
type Token struct {
	Kind   TokenKind
	Text   string
	Offset int
	Ref    *RefParts
}

// Lexer turns formula text into tokens on demand.
type Lexer struct {
	text   string
	locale LocaleConfig
	mode   RefMode
	pos    int
	stack  []byte
	prev   TokenKind
	fn     bool
	done   bool
}

// NewLexer returns a lexer over formula text. A leading "=" is skipped.
func NewLexer(text string, locale LocaleConfig, mode RefMode) *Lexer {
	l := &Lexer{text: text, locale: locale, mode: mode}
	l.Reset()
	return l
}

// Reset restarts the lexer at the beginning of its text.
func (l *Lexer) Reset() {
	l.pos = 0
	if strings.HasPrefix(l.text, "=") {
		l.pos = 1
	}
	l.stack = l.stack[:0]
	l.prev = TokenEOF
	l.fn = false
	l.done = false
}

// Tokenize returns a lazy, restartable token sequence. Iteration stops after
// the first error, which is yielded with a zero token.
func Tokenize(text string, locale LocaleConfig, mode RefMode) iter.Seq2[Token, error] {
	return func(yield func(Token, error) bool) {
		l := NewLexer(text, locale, mode)
		for {
			tok, err := l.Next()
			if err != nil {
				yield(Token{}, err)
				return
			}
			if tok.Kind == TokenEOF {
				return
			}
			if !yield(tok, nil) {
				return
			}
		}
	}
}

// Lex collects all tokens of text, dropping insignificant whitespace.
func Lex(text string, locale LocaleConfig, mode RefMode) ([]Token, error) {
	var tokens []Token
	for tok, err := range Tokenize(text, locale, mode) {
		if err != nil {
			return nil, err
		}
		if tok.Kind != TokenWhitespace {
			tokens = append(tokens, tok)
		}
	}
	return tokens, nil
}

// Next returns the next token, TokenEOF at the end of input, or a *LexError.
func (l *Lexer) Next() (Token, error) {
	if l.done || l.pos >= len(l.text) {
		l.done = true
		return Token{Kind: TokenEOF, Offset: len(l.text)}, nil
	}
	tok, err := l.scan()
	if err != nil {
		l.done = true
		return Token{}, err
	}
	if tok.Kind != TokenWhitespace {
		l.prev = tok.Kind
	}
	return tok, nil
}

func (l *Lexer) top() byte {
	if len(l.stack) == 0 {
		return 0
	}
	return l.stack[len(l.stack)-1]
}

func (l *Lexer) pop() {
	if len(l.stack) > 0 {
		l.stack = l.stack[:len(l.stack)-1]
	}
}

func (l *Lexer) errorf(offset int, msg string) error {
	return &LexError{Offset: offset, Message: msg}
}

func (l *Lexer) emit(kind TokenKind, start int) Token {
	return Token{Kind: kind, Text: l.text[start:l.pos], Offset: start}
}

// endsReference reports whether the previous significant token can be
// the left side of a reference operator.
func (l *Lexer) endsReference() bool {
	switch l.prev {
	case TokenCellRef, TokenRangeRef, TokenSheetRef, TokenExternalRef,
		TokenStructuredRef, TokenName, TokenCloseParen:
		return true
	}
	return false
}

func (l *Lexer) scan() (Token, error) {
	start := l.pos
	r, size := utf8.DecodeRuneInString(l.text[l.pos:])
	switch {
	case unicode.IsSpace(r):
		return l.scanSpace(start), nil
	case r == '"':
		return l.scanString(start)
	case r == '#' && l.endsReference():
		l.pos++
		return l.emit(TokenOperator, start), nil
	case r == '#':
		return l.scanErrorLiteral(start)
	case r == '{':
		l.pos++
		l.stack = append(l.stack, 'a')
		return l.emit(TokenArrayOpen, start), nil
	case r == '}':
		l.pos++
		l.pop()
		return l.emit(TokenArrayClose, start), nil
	case r == '(':
		l.pos++
		if l.fn {
			l.stack = append(l.stack, 'f')
		} else {
			l.stack = append(l.stack, 'g')
		}
		l.fn = false
		return l.emit(TokenOpenParen, start), nil
	case r == ')':
		l.pos++
		l.pop()
		return l.emit(TokenCloseParen, start), nil
	}
	if l.top() == 'a' {
		switch r {
		case l.locale.ArrayRowSeparator:
			l.pos += size
			return l.emit(TokenArrayRowSep, start), nil
		case l.locale.ArrayColumnSeparator:
			l.pos += size
			return l.emit(TokenArrayColSep, start), nil
		}
	}
	if r == l.locale.ArgumentSeparator {
		l.pos += size
		if l.top() == 'f' {
			return l.emit(TokenArgSep, start), nil
		}
		return l.emit(TokenUnion, start), nil
	}
	if (r < utf8.RuneSelf && isDigit(byte(r))) || (r == l.locale.DecimalSeparator && l.pos+size < len(l.text) && isDigit(l.text[l.pos+size])) {
		if l.top() != 'a' {
			if n := matchRowRange(l.text[l.pos:]); n > 0 {
				l.pos += n
				return l.refToken(TokenRangeRef, start, &RefParts{Area: l.text[start:l.pos], IsRange: true}), nil
			}
		}
		return l.scanNumber(start)
	}
	switch r {
	case '+', '-', '*', '/', '^', '&', '=', '%', '@', ':':
		l.pos++
		return l.emit(TokenOperator, start), nil
	case '<':
		l.pos++
		if l.pos < len(l.text) && (l.text[l.pos] == '>' || l.text[l.pos] == '=') {
			l.pos++
		}
		return l.emit(TokenOperator, start), nil
	case '>':
		l.pos++
		if l.pos < len(l.text) && l.text[l.pos] == '=' {
			l.pos++
		}
		return l.emit(TokenOperator, start), nil
	case '\'':
		return l.scanQuotedPrefix(start)
	case '[':
		return l.scanBracket(start)
	}
	if r == '$' || r == '_' || r == '\\' || unicode.IsLetter(r) {
		return l.scanWord(start)
	}
	return Token{}, l.errorf(start, "unexpected character "+string(r))
}

func (l *Lexer) scanSpace(start int) Token {
	for l.pos < len(l.text) {
		r, size := utf8.DecodeRuneInString(l.text[l.pos:])
		if !unicode.IsSpace(r) {
			break
		}
		l.pos += size
	}
	if l.top() != 'a' && l.endsReference() && l.pos < len(l.text) {
		r, _ := utf8.DecodeRuneInString(l.text[l.pos:])
		if r == '$' || r == '\'' || r == '[' || r == '(' || r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			return l.emit(TokenIntersect, start)
		}
	}
	return l.emit(TokenWhitespace, start)
}

func (l *Lexer) scanString(start int) (Token, error) {
	l.pos++
	for l.pos < len(l.text) {
		if l.text[l.pos] == '"' {
			if l.pos+1 < len(l.text) && l.text[l.pos+1] == '"' {
				l.pos += 2
				continue
			}
			l.pos++
			return l.emit(TokenString, start), nil
		}
		l.pos++
	}
	return Token{}, l.errorf(start, "unterminated string literal")
}

func (l *Lexer) scanErrorLiteral(start int) (Token, error) {
	rest := l.text[l.pos:]
	best := ""
	for _, lit := range errorLiterals[1:] {
		if len(lit) > len(best) && len(rest) >= len(lit) && strings.EqualFold(rest[:len(lit)], lit) {
			best = lit
		}
	}
	if best == "" {
		return Token{}, l.errorf(start, "unknown error literal")
	}
	l.pos += len(best)
	return l.emit(TokenError, start), nil
}

func (l *Lexer) scanNumber(start int) (Token, error) {
	dec := l.locale.DecimalSeparator
	digits := func() int {
		n := 0
		for l.pos < len(l.text) && isDigit(l.text[l.pos]) {
			l.pos++
			n++
		}
		return n
	}
	intDigits := digits()
	fracDigits := 0
	if r, size := utf8.DecodeRuneInString(l.text[l.pos:]); l.pos < len(l.text) && r == dec && (l.top() != 'a' || dec != l.locale.ArrayColumnSeparator) {
		l.pos += size
		fracDigits = digits()
	}
	if intDigits+fracDigits == 0 {
		return Token{}, l.errorf(start, "malformed number")
	}
	if l.pos < len(l.text) && (l.text[l.pos] == 'e' || l.text[l.pos] == 'E') {
		l.pos++
		if l.pos < len(l.text) && (l.text[l.pos] == '+' || l.text[l.pos] == '-') {
			l.pos++
		}
		if digits() == 0 {
			return Token{}, l.errorf(start, "malformed number exponent")
		}
	}
	if l.pos < len(l.text) {
		r, _ := utf8.DecodeRuneInString(l.text[l.pos:])
		if (r == dec && (l.top() != 'a' || dec != l.locale.ArrayColumnSeparator)) || unicode.IsLetter(r) || r == '_' {
			return Token{}, l.errorf(start, "malformed number")
		}
	}
	return l.emit(TokenNumber, start), nil
}

// scanQuotedPrefix reads 'Sheet name'!ref, '[Book]Sheet'!ref and
// 'path\[Book]Sheet1:Sheet3'!ref forms.
func (l *Lexer) scanQuotedPrefix(start int) (Token, error) {
	l.pos++
	var b strings.Builder
	closed := false
	for l.pos < len(l.text) {
		c := l.text[l.pos]
		if c == '\'' {
			if l.pos+1 < len(l.text) && l.text[l.pos+1] == '\'' {
				b.WriteByte('\'')
				l.pos += 2
				continue
			}
			l.pos++
			closed = true
			break
		}
		b.WriteByte(c)
		l.pos++
	}
	if !closed {
		return Token{}, l.errorf(start, "unterminated quoted sheet name")
	}
	if l.pos >= len(l.text) || l.text[l.pos] != '!' {
		return Token{}, l.errorf(start, "quoted sheet name must be followed by '!'")
	}
	l.pos++
	parts := &RefParts{}
	inner := b.String()
	if i := strings.IndexByte(inner, '['); i >= 0 {
		j := strings.IndexByte(inner[i:], ']')
		if j < 0 {
			return Token{}, l.errorf(start, "unterminated workbook name")
		}
		parts.Workbook = inner[:i] + inner[i+1:i+j]
		inner = inner[i+j+1:]
	}
	parts.Sheet, parts.SheetEnd = splitSheetSpan(inner)
	return l.scanArea(start, parts)
}

// scanBracket handles [Book]Sheet!ref external references and table-less
// structured references such as [@Qty].
func (l *Lexer) scanBracket(start int) (Token, error) {
	end := matchBrackets(l.text, l.pos)
	if end < 0 {
		return Token{}, l.errorf(start, "unbalanced '['")
	}
	book := l.text[l.pos+1 : end-1]
	after := end
	if after < len(l.text) && !strings.HasPrefix(book, "@") && !strings.HasPrefix(book, "[") && !strings.HasPrefix(book, "#") {
		if n := scanIdent(l.text[after:]); n > 0 {
			sheet := l.text[after : after+n]
			next := after + n
			sheetEnd := ""
			if next < len(l.text) && l.text[next] == ':' {
				if m := scanIdent(l.text[next+1:]); m > 0 && next+1+m < len(l.text) && l.text[next+1+m] == '!' {
					sheetEnd = l.text[next+1 : next+1+m]
					next += 1 + m
				}
			}
			if next < len(l.text) && l.text[next] == '!' {
				l.pos = next + 1
				return l.scanArea(start, &RefParts{Workbook: book, Sheet: sheet, SheetEnd: sheetEnd})
			}
		}
	}
	l.pos = end
	return l.emit(TokenStructuredRef, start), nil
}

// scanArea reads the address part after a sheet prefix.
func (l *Lexer) scanArea(start int, parts *RefParts) (Token, error) {
	kind := TokenSheetRef
	if parts.Workbook != "" {
		kind = TokenExternalRef
	}
	rest := l.text[l.pos:]
	if strings.HasPrefix(strings.ToUpper(rest), "#REF!") {
		l.pos += len("#REF!")
		parts.Area = "#REF!"
		return l.refToken(kind, start, parts), nil
	}
	if n, isRange := matchArea(rest, l.mode); n > 0 {
		l.pos += n
		parts.Area = rest[:n]
		parts.IsRange = isRange
		return l.refToken(kind, start, parts), nil
	}
	if n := scanIdent(rest); n > 0 {
		l.pos += n
		parts.Area = rest[:n]
		if l.pos < len(l.text) && l.text[l.pos] == '[' {
			end := matchBrackets(l.text, l.pos)
			if end < 0 {
				return Token{}, l.errorf(l.pos, "unbalanced '['")
			}
			l.pos = end
			return l.refToken(TokenStructuredRef, start, parts), nil
		}
		return l.refToken(TokenName, start, parts), nil
	}
	return Token{}, l.errorf(l.pos, "expected a reference after '!'")
}

func (l *Lexer) refToken(kind TokenKind, start int, parts *RefParts) Token {
	tok := l.emit(kind, start)
	tok.Ref = parts
	return tok
}

func (l *Lexer) scanWord(start int) (Token, error) {
	rest := l.text[l.pos:]
	if n, isRange := matchArea(rest, l.mode); n > 0 {
		l.pos += n
		kind := TokenCellRef
		if isRange {
			kind = TokenRangeRef
		}
		return l.refToken(kind, start, &RefParts{Area: rest[:n], IsRange: isRange}), nil
	}
	n := scanIdent(rest)
	if n == 0 {
		return Token{}, l.errorf(start, "unexpected character")
	}
	word := rest[:n]
	l.pos += n
	if l.pos < len(l.text) {
		switch l.text[l.pos] {
		case '(':
			l.fn = true
			return l.emit(TokenFunction, start), nil
		case '!':
			l.pos++
			return l.scanArea(start, &RefParts{Sheet: word})
		case '[':
			end := matchBrackets(l.text, l.pos)
			if end < 0 {
				return Token{}, l.errorf(l.pos, "unbalanced '['")
			}
			l.pos = end
			return l.emit(TokenStructuredRef, start), nil
		case ':':
			if m := scanIdent(l.text[l.pos+1:]); m > 0 {
				next := l.pos + 1 + m
				if next < len(l.text) && l.text[next] == '!' {
					sheetEnd := l.text[l.pos+1 : next]
					l.pos = next + 1
					return l.scanArea(start, &RefParts{Sheet: word, SheetEnd: sheetEnd})
				}
			}
		}
	}
	if strings.EqualFold(word, "TRUE") || strings.EqualFold(word, "FALSE") {
		return l.emit(TokenBool, start), nil
	}
	return l.emit(TokenName, start), nil
}

func splitSheetSpan(s string) (string, string) {
	if a, b, ok := strings.Cut(s, ":"); ok {
		return a, b
	}
	return s, ""
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentRune(r rune) bool {
	return r == '_' || r == '.' || r == '\\' || r == '?' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// scanIdent returns the byte length of the identifier at the start of s.
func scanIdent(s string) int {
	n := 0
	for n < len(s) {
		r, size := utf8.DecodeRuneInString(s[n:])
		if !isIdentRune(r) {
			break
		}
		n += size
	}
	return n
}

// matchBrackets returns the index just past the bracket group opening at
// s[i], honouring nesting and the ' escape used inside structured
// references, or -1 when unbalanced.
func matchBrackets(s string, i int) int {
	depth := 0
	for j := i; j < len(s); j++ {
		switch s[j] {
		case '\'':
			j++
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return j + 1
			}
		}
	}
	return -1
}

// refBoundary reports whether a reference match ending at s[n] is complete.
func refBoundary(s string, n int) bool {
	if n >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[n:])
	return !isIdentRune(r) && r != '(' && r != '[' && r != '!'
}

// matchArea matches a cell, range, column range or row range at the start
// of s and returns its length and whether it spans more than one cell
// syntactically.
func matchArea(s string, mode RefMode) (int, bool) {
	cell := matchA1Cell
	col, row := matchA1Col, matchA1Row
	if mode == RefModeR1C1 {
		cell, col, row = matchR1C1Cell, matchR1C1Col, matchR1C1Row
	}
	if n := cell(s); n > 0 {
		if n < len(s) && s[n] == ':' {
			if m := cell(s[n+1:]); m > 0 && refBoundary(s, n+1+m) {
				return n + 1 + m, true
			}
		}
		if refBoundary(s, n) {
			return n, false
		}
	}
	for _, part := range []func(string) int{col, row} {
		if n := part(s); n > 0 && n < len(s) && s[n] == ':' {
			if m := part(s[n+1:]); m > 0 && refBoundary(s, n+1+m) {
				return n + 1 + m, true
			}
		}
	}
	if mode == RefModeR1C1 {
		for _, part := range []func(string) int{col, row} {
			if n := part(s); n > 0 && refBoundary(s, n) {
				return n, true
			}
		}
	}
	return 0, false
}

func matchRowRange(s string) int {
	n, isRange := matchArea(s, RefModeA1)
	if n > 0 && isRange && matchA1Row(s) > 0 {
		return n
	}
	return 0
}

func matchA1Col(s string) int {
	i := 0
	if i < len(s) && s[i] == '$' {
		i++
	}
	j := i
	for j < len(s) && j-i < MaxColumnNameLength+1 && ((s[j] >= 'A' && s[j] <= 'Z') || (s[j] >= 'a' && s[j] <= 'z')) {
		j++
	}
	if j == i || j-i > MaxColumnNameLength {
		return 0
	}
	if n, err := ColumnNameToNumber(s[i:j]); err != nil || n < 1 {
		return 0
	}
	return j
}

func matchA1Row(s string) int {
	i := 0
	if i < len(s) && s[i] == '$' {
		i++
	}
	j := i
	for j < len(s) && isDigit(s[j]) {
		j++
	}
	if j == i || s[i] == '0' || j-i > 7 {
		return 0
	}
	row := 0
	for _, c := range s[i:j] {
		row = row*10 + int(c-'0')
	}
	if row > MaxRows {
		return 0
	}
	return j
}

func matchA1Cell(s string) int {
	c := matchA1Col(s)
	if c == 0 {
		return 0
	}
	r := matchA1Row(s[c:])
	if r == 0 {
		return 0
	}
	return c + r
}

// matchR1C1Part matches an R or C designator with an optional absolute
// number or bracketed offset.
func matchR1C1Part(s string, letter byte) int {
	if len(s) == 0 || (s[0] != letter && s[0] != letter+'a'-'A') {
		return 0
	}
	i := 1
	if i < len(s) && s[i] == '[' {
		j := i + 1
		if j < len(s) && s[j] == '-' {
			j++
		}
		k := j
		for k < len(s) && isDigit(s[k]) {
			k++
		}
		if k == j || k >= len(s) || s[k] != ']' {
			return 0
		}
		return k + 1
	}
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return i
}

func matchR1C1Row(s string) int { return matchR1C1Part(s, 'R') }

func matchR1C1Col(s string) int { return matchR1C1Part(s, 'C') }

func matchR1C1Cell(s string) int {
	r := matchR1C1Row(s)
	if r == 0 {
		return 0
	}
	c := matchR1C1Col(s[r:])
	if c == 0 {
		return 0
	}
	return r + c
}
