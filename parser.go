// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxNestingDepth bounds how deeply parentheses, function calls and prefix
// operators may nest in one formula.
const MaxNestingDepth = 256

// ParseContext carries what the parser needs besides tokens: the cell the
// formula lives in, so relative references can be stored as offsets, and
// the notation of the source text.
type ParseContext struct {
	Home   CellAddr
	Locale LocaleConfig
	Mode   RefMode
}

// Parser builds a formula tree from a token sequence.
type Parser struct {
	tokens []Token
	pos    int
	ctx    ParseContext
	depth  int
}

// NewParser returns a parser over tokens. Whitespace tokens are ignored.
func NewParser(tokens []Token, ctx ParseContext) *Parser {
	significant := make([]Token, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Kind != TokenWhitespace {
			significant = append(significant, tok)
		}
	}
	if ctx.Locale.ArgumentSeparator == 0 {
		ctx.Locale = LocaleEnUS
	}
	if ctx.Home.Row == 0 && ctx.Home.Col == 0 {
		ctx.Home = CellAddr{Row: 1, Col: 1}
	}
	return &Parser{tokens: significant, ctx: ctx}
}

// ParseFormula lexes and parses formula text.
func ParseFormula(text string, ctx ParseContext) (Node, error) {
	if ctx.Locale.ArgumentSeparator == 0 {
		ctx.Locale = LocaleEnUS
	}
	tokens, err := Lex(text, ctx.Locale, ctx.Mode)
	if err != nil {
		return nil, err
	}
	return NewParser(tokens, ctx).Parse()
}

// Parse returns the formula tree or a *ParseError.
func (p *Parser) Parse() (Node, error) {
	if len(p.tokens) == 0 {
		return nil, &ParseError{Message: "empty formula"}
	}
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, p.errorf("unexpected %s %q", p.peek().Kind, p.peek().Text)
	}
	return n, nil
}

func (p *Parser) peek() Token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	end := 0
	if n := len(p.tokens); n > 0 {
		end = p.tokens[n-1].Offset + len(p.tokens[n-1].Text)
	}
	return Token{Kind: TokenEOF, Offset: end}
}

func (p *Parser) next() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) isOp(ops ...string) (string, bool) {
	tok := p.peek()
	if tok.Kind != TokenOperator {
		return "", false
	}
	for _, op := range ops {
		if tok.Text == op {
			return op, true
		}
	}
	return "", false
}

func (p *Parser) errorf(format string, args ...any) error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &ParseError{TokenIndex: p.pos, Offset: p.peek().Offset, Message: msg}
}

func (p *Parser) enter() error {
	p.depth++
	if p.depth > MaxNestingDepth {
		return p.errorf("formula nests deeper than %d levels", MaxNestingDepth)
	}
	return nil
}

func (p *Parser) leave() { p.depth-- }

func (p *Parser) parseExpr() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	return p.parseComparison()
}

// binaryLevel parses a left-associative chain of operators at one level.
func (p *Parser) binaryLevel(operand func() (Node, error), ops ...string) (Node, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.isOp(ops...)
		if !ok {
			return left, nil
		}
		p.next()
		right, err := operand()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseComparison() (Node, error) {
	return p.binaryLevel(p.parseConcat, "=", "<>", "<", "<=", ">", ">=")
}

func (p *Parser) parseConcat() (Node, error) {
	return p.binaryLevel(p.parseAdditive, "&")
}

func (p *Parser) parseAdditive() (Node, error) {
	return p.binaryLevel(p.parseMultiplicative, "+", "-")
}

func (p *Parser) parseMultiplicative() (Node, error) {
	return p.binaryLevel(p.parsePower, "*", "/")
}

// parsePower is right-associative.
func (p *Parser) parsePower() (Node, error) {
	left, err := p.parsePercent()
	if err != nil {
		return nil, err
	}
	if _, ok := p.isOp("^"); !ok {
		return left, nil
	}
	p.next()
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	right, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	return &BinaryNode{Op: "^", Left: left, Right: right}, nil
}

func (p *Parser) parsePercent() (Node, error) {
	n, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.isOp("%"); !ok {
			return n, nil
		}
		p.next()
		n = &UnaryNode{Op: "%", Operand: n}
	}
}

func (p *Parser) parseUnary() (Node, error) {
	op, ok := p.isOp("-", "+", "@")
	if !ok {
		return p.parseUnion()
	}
	p.next()
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &UnaryNode{Op: op, Operand: operand}, nil
}

func (p *Parser) parseUnion() (Node, error) {
	left, err := p.parseIntersect()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == TokenUnion {
		p.next()
		right, err := p.parseIntersect()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: ",", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseIntersect() (Node, error) {
	left, err := p.parseRange()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == TokenIntersect {
		p.next()
		right, err := p.parseRange()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: " ", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseRange() (Node, error) {
	return p.binaryLevel(p.parseSpill, ":")
}

func (p *Parser) parseSpill() (Node, error) {
	n, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.isOp("#"); !ok {
			return n, nil
		}
		p.next()
		n = &UnaryNode{Op: "#", Operand: n}
	}
}

func (p *Parser) parsePrimary() (Node, error) {
	tok := p.peek()
	switch tok.Kind {
	case TokenNumber:
		p.next()
		return p.number(tok.Text, tok)
	case TokenString:
		p.next()
		return &StringNode{Value: unquoteString(tok.Text)}, nil
	case TokenBool:
		p.next()
		return &BoolNode{Value: strings.EqualFold(tok.Text, "TRUE")}, nil
	case TokenError:
		p.next()
		kind, ok := ParseErrorLiteral(tok.Text)
		if !ok {
			return nil, p.errorf("unknown error literal %q", tok.Text)
		}
		return &ErrorNode{Kind: kind}, nil
	case TokenCellRef, TokenRangeRef, TokenSheetRef, TokenExternalRef:
		p.next()
		return p.reference(tok)
	case TokenName:
		p.next()
		n := &NameNode{Name: tok.Text}
		if tok.Ref != nil {
			n.Name = tok.Ref.Area
			n.Prefix = prefixOf(tok.Ref)
		}
		return n, nil
	case TokenStructuredRef:
		p.next()
		return p.structured(tok)
	case TokenFunction:
		p.next()
		return p.function(tok)
	case TokenOpenParen:
		p.next()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.peek().Kind != TokenCloseParen {
			return nil, p.errorf("expected ')'")
		}
		p.next()
		return &ParenNode{Inner: inner}, nil
	case TokenArrayOpen:
		p.next()
		return p.array()
	case TokenEOF:
		return nil, p.errorf("unexpected end of formula")
	}
	return nil, p.errorf("unexpected %s %q", tok.Kind, tok.Text)
}

func (p *Parser) number(text string, tok Token) (Node, error) {
	norm := text
	if p.ctx.Locale.DecimalSeparator != '.' {
		norm = strings.ReplaceAll(text, string(p.ctx.Locale.DecimalSeparator), ".")
	}
	v, err := strconv.ParseFloat(norm, 64)
	if err != nil {
		return nil, &ParseError{TokenIndex: p.pos - 1, Offset: tok.Offset, Message: "malformed number " + strconv.Quote(text)}
	}
	return &NumberNode{Value: v, Raw: norm}, nil
}

func (p *Parser) function(tok Token) (Node, error) {
	if p.peek().Kind != TokenOpenParen {
		return nil, p.errorf("expected '(' after function name")
	}
	p.next()
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	fn := &FunctionNode{Name: normalizeFunctionName(tok.Text), Spelling: tok.Text}
	fn.Legacy = len(fn.Name) != len(tok.Text)
	if p.peek().Kind == TokenCloseParen {
		p.next()
		return fn, nil
	}
	for {
		switch p.peek().Kind {
		case TokenArgSep, TokenCloseParen:
			fn.Args = append(fn.Args, &MissingArgNode{})
		default:
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			fn.Args = append(fn.Args, arg)
		}
		switch p.peek().Kind {
		case TokenArgSep:
			p.next()
		case TokenCloseParen:
			p.next()
			return fn, nil
		default:
			return nil, p.errorf("expected argument separator or ')' in call to %s", fn.Spelling)
		}
	}
}

func (p *Parser) array() (Node, error) {
	arr := &ArrayNode{}
	row := []Node{}
	for {
		el, err := p.arrayElement()
		if err != nil {
			return nil, err
		}
		row = append(row, el)
		switch p.peek().Kind {
		case TokenArrayColSep:
			p.next()
		case TokenArrayRowSep:
			p.next()
			arr.Rows = append(arr.Rows, row)
			row = []Node{}
		case TokenArrayClose:
			p.next()
			arr.Rows = append(arr.Rows, row)
			for _, r := range arr.Rows {
				if len(r) != len(arr.Rows[0]) {
					return nil, p.errorf("array constant rows must have the same length")
				}
			}
			return arr, nil
		default:
			return nil, p.errorf("expected array separator or '}'")
		}
	}
}

func (p *Parser) arrayElement() (Node, error) {
	sign := ""
	if op, ok := p.isOp("-", "+"); ok {
		sign = op
		p.next()
		if p.peek().Kind != TokenNumber {
			return nil, p.errorf("array constant sign must precede a number")
		}
	}
	tok := p.peek()
	switch tok.Kind {
	case TokenNumber, TokenString, TokenBool, TokenError:
		p.next()
	case TokenArrayOpen:
		return nil, p.errorf("array constants cannot nest")
	default:
		return nil, p.errorf("array constants may only hold literals")
	}
	switch tok.Kind {
	case TokenNumber:
		n, err := p.number(tok.Text, tok)
		if err != nil {
			return nil, err
		}
		num := n.(*NumberNode)
		if sign == "-" {
			return &NumberNode{Value: -num.Value, Raw: "-" + num.Raw}, nil
		}
		if sign == "+" {
			return &NumberNode{Value: num.Value, Raw: "+" + num.Raw}, nil
		}
		return num, nil
	case TokenString:
		return &StringNode{Value: unquoteString(tok.Text)}, nil
	case TokenBool:
		return &BoolNode{Value: strings.EqualFold(tok.Text, "TRUE")}, nil
	}
	kind, _ := ParseErrorLiteral(tok.Text)
	return &ErrorNode{Kind: kind}, nil
}

func prefixOf(parts *RefParts) *SheetPrefix {
	if parts == nil || (parts.Sheet == "" && parts.Workbook == "") {
		return nil
	}
	return &SheetPrefix{Workbook: parts.Workbook, Sheet: parts.Sheet, SheetEnd: parts.SheetEnd}
}

// reference converts a reference token into a cell or range node,
// normalising relative components to offsets from the home cell.
func (p *Parser) reference(tok Token) (Node, error) {
	parts := tok.Ref
	if parts == nil {
		parts = &RefParts{Area: tok.Text}
	}
	prefix := prefixOf(parts)
	if strings.EqualFold(parts.Area, "#REF!") {
		return &ErrorNode{Kind: ErrorREF, Prefix: prefix}, nil
	}
	var (
		n   Node
		err error
	)
	if p.ctx.Mode == RefModeR1C1 {
		n, err = parseR1C1Area(parts.Area, p.ctx.Home)
	} else {
		n, err = parseA1Area(parts.Area, p.ctx.Home)
	}
	if err != nil {
		return nil, &ParseError{TokenIndex: p.pos - 1, Offset: tok.Offset, Message: err.Error()}
	}
	switch t := n.(type) {
	case *CellRefNode:
		t.Prefix = prefix
	case *RangeRefNode:
		t.Prefix = prefix
	}
	return n, nil
}

// parseA1Area converts "A1", "$A$1:B2", "A:C" or "$1:3" into a node.
func parseA1Area(area string, home CellAddr) (Node, error) {
	from, to, isRange := strings.Cut(area, ":")
	if !isRange {
		ref, err := parseA1Cell(from, home)
		if err != nil {
			return nil, err
		}
		return &CellRefNode{Ref: ref}, nil
	}
	if matchA1Cell(from) == len(from) && matchA1Cell(to) == len(to) {
		a, err := parseA1Cell(from, home)
		if err != nil {
			return nil, err
		}
		b, err := parseA1Cell(to, home)
		if err != nil {
			return nil, err
		}
		return &RangeRefNode{From: a, To: b, Kind: RangeCells}, nil
	}
	if matchA1Col(from) == len(from) && matchA1Col(to) == len(to) {
		a, err := parseA1Axis(from, home.Col, true)
		if err != nil {
			return nil, err
		}
		b, err := parseA1Axis(to, home.Col, true)
		if err != nil {
			return nil, err
		}
		return &RangeRefNode{
			From: CellRef{Row: 1, RowAbs: true, Col: a.Col, ColAbs: a.ColAbs},
			To:   CellRef{Row: MaxRows, RowAbs: true, Col: b.Col, ColAbs: b.ColAbs},
			Kind: RangeColumns,
		}, nil
	}
	a, err := parseA1Axis(from, home.Row, false)
	if err != nil {
		return nil, err
	}
	b, err := parseA1Axis(to, home.Row, false)
	if err != nil {
		return nil, err
	}
	return &RangeRefNode{
		From: CellRef{Row: a.Row, RowAbs: a.RowAbs, Col: 1, ColAbs: true},
		To:   CellRef{Row: b.Row, RowAbs: b.RowAbs, Col: MaxColumns, ColAbs: true},
		Kind: RangeRows,
	}, nil
}

func parseA1Cell(s string, home CellAddr) (CellRef, error) {
	n := matchA1Col(s)
	if n == 0 || matchA1Row(s[n:]) != len(s)-n {
		return CellRef{}, newInvalidCellNameError(s)
	}
	c, err := parseA1Axis(s[:n], home.Col, true)
	if err != nil {
		return CellRef{}, err
	}
	r, err := parseA1Axis(s[n:], home.Row, false)
	if err != nil {
		return CellRef{}, err
	}
	return CellRef{Row: r.Row, RowAbs: r.RowAbs, Col: c.Col, ColAbs: c.ColAbs}, nil
}

// parseA1Axis parses "$C", "C", "$5" or "5" and stores it relative to the
// home coordinate unless marked absolute.
func parseA1Axis(s string, home int, column bool) (CellRef, error) {
	abs := strings.HasPrefix(s, "$")
	s = strings.TrimPrefix(s, "$")
	var (
		v   int
		err error
	)
	if column {
		v, err = ColumnNameToNumber(s)
	} else {
		v, err = strconv.Atoi(s)
		if err == nil && (v < 1 || v > MaxRows) {
			err = ErrMaxRows
		}
	}
	if err != nil {
		return CellRef{}, err
	}
	if !abs {
		v -= home
	}
	if column {
		return CellRef{Col: v, ColAbs: abs}, nil
	}
	return CellRef{Row: v, RowAbs: abs}, nil
}

// parseR1C1Area converts "R1C1", "R[-1]C", "R2:R4" or "C[1]" into a node.
// Offsets in brackets are relative, bare numbers are absolute.
func parseR1C1Area(area string, home CellAddr) (Node, error) {
	from, to, isRange := strings.Cut(area, ":")
	if !isRange {
		if matchR1C1Cell(from) == len(from) {
			ref, err := parseR1C1Cell(from)
			if err != nil {
				return nil, err
			}
			return &CellRefNode{Ref: ref}, nil
		}
		to = from
	}
	if matchR1C1Cell(from) == len(from) && matchR1C1Cell(to) == len(to) {
		a, err := parseR1C1Cell(from)
		if err != nil {
			return nil, err
		}
		b, err := parseR1C1Cell(to)
		if err != nil {
			return nil, err
		}
		return &RangeRefNode{From: a, To: b, Kind: RangeCells}, nil
	}
	if matchR1C1Row(from) == len(from) && matchR1C1Row(to) == len(to) {
		a, aAbs, err := parseR1C1Part(from)
		if err != nil {
			return nil, err
		}
		b, bAbs, err := parseR1C1Part(to)
		if err != nil {
			return nil, err
		}
		return &RangeRefNode{
			From: CellRef{Row: a, RowAbs: aAbs, Col: 1, ColAbs: true},
			To:   CellRef{Row: b, RowAbs: bAbs, Col: MaxColumns, ColAbs: true},
			Kind: RangeRows,
		}, nil
	}
	if matchR1C1Col(from) == len(from) && matchR1C1Col(to) == len(to) {
		a, aAbs, err := parseR1C1Part(from)
		if err != nil {
			return nil, err
		}
		b, bAbs, err := parseR1C1Part(to)
		if err != nil {
			return nil, err
		}
		return &RangeRefNode{
			From: CellRef{Row: 1, RowAbs: true, Col: a, ColAbs: aAbs},
			To:   CellRef{Row: MaxRows, RowAbs: true, Col: b, ColAbs: bAbs},
			Kind: RangeColumns,
		}, nil
	}
	return nil, newInvalidCellNameError(area)
}

func parseR1C1Cell(s string) (CellRef, error) {
	n := matchR1C1Row(s)
	row, rowAbs, err := parseR1C1Part(s[:n])
	if err != nil {
		return CellRef{}, err
	}
	col, colAbs, err := parseR1C1Part(s[n:])
	if err != nil {
		return CellRef{}, err
	}
	return CellRef{Row: row, RowAbs: rowAbs, Col: col, ColAbs: colAbs}, nil
}

// parseR1C1Part parses "R", "R5", "R[-2]" (or the C forms) into a value and
// an absolute flag.
func parseR1C1Part(s string) (int, bool, error) {
	body := s[1:]
	if body == "" {
		return 0, false, nil
	}
	if strings.HasPrefix(body, "[") {
		v, err := strconv.Atoi(strings.Trim(body, "[]"))
		return v, false, err
	}
	v, err := strconv.Atoi(body)
	if err != nil || v < 1 {
		return 0, false, newInvalidCellNameError(s)
	}
	return v, true, nil
}

func (p *Parser) structured(tok Token) (Node, error) {
	text := tok.Text
	n := &StructuredRefNode{Raw: text}
	if tok.Ref != nil {
		n.Workbook = tok.Ref.Workbook
		if n.Workbook == "" {
			n.Workbook = tok.Ref.Sheet
		}
		n.Raw = tok.Ref.Area + text[strings.IndexByte(text, '['):]
		text = n.Raw
	}
	open := strings.IndexByte(text, '[')
	if open < 0 || !strings.HasSuffix(text, "]") {
		return nil, &ParseError{TokenIndex: p.pos - 1, Offset: tok.Offset, Message: "malformed structured reference"}
	}
	n.Table = text[:open]
	if err := parseTableSpecifier(text[open+1:len(text)-1], p.ctx.Locale.ArgumentSeparator, n); err != nil {
		return nil, &ParseError{TokenIndex: p.pos - 1, Offset: tok.Offset, Message: err.Error()}
	}
	return n, nil
}

// parseTableSpecifier fills items and columns from the text between the
// outer brackets of a structured reference.
func parseTableSpecifier(inner string, sep rune, n *StructuredRefNode) error {
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return nil
	}
	if strings.HasPrefix(inner, "@") {
		n.Items = append(n.Items, "#This Row")
		inner = strings.TrimSpace(inner[1:])
		if inner == "" {
			return nil
		}
		if !strings.HasPrefix(inner, "[") {
			n.ColumnStart = unescapeColumn(inner)
			return nil
		}
	}
	if !strings.HasPrefix(inner, "[") {
		if strings.HasPrefix(inner, "#") {
			n.Items = append(n.Items, canonicalItem(inner))
			return nil
		}
		n.ColumnStart = unescapeColumn(inner)
		return nil
	}
	for _, seg := range splitSpecifiers(inner, sep) {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if a, b, ok := cutColumnSpan(seg); ok {
			n.ColumnStart, n.ColumnEnd = a, b
			continue
		}
		body := strings.TrimSuffix(strings.TrimPrefix(seg, "["), "]")
		if strings.HasPrefix(body, "#") {
			n.Items = append(n.Items, canonicalItem(body))
			continue
		}
		if n.ColumnStart != "" {
			return errStructured
		}
		n.ColumnStart = unescapeColumn(body)
	}
	return nil
}

var errStructured = errors.New("structured reference names more than one column without ':'")

// splitSpecifiers splits "[#Headers],[A]:[B]" at top-level separators.
func splitSpecifiers(s string, sep rune) []string {
	var (
		out   []string
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\'':
			i++
		case c == '[':
			depth++
		case c == ']':
			depth--
		case depth == 0 && (rune(c) == sep || c == ','):
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

func cutColumnSpan(seg string) (string, string, bool) {
	depth := 0
	for i := 0; i < len(seg); i++ {
		switch seg[i] {
		case '\'':
			i++
		case '[':
			depth++
		case ']':
			depth--
		case ':':
			if depth == 0 {
				a := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(seg[:i]), "["), "]")
				b := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(seg[i+1:]), "["), "]")
				return unescapeColumn(a), unescapeColumn(b), true
			}
		}
	}
	return "", "", false
}

func canonicalItem(s string) string {
	for _, item := range []string{"#All", "#Data", "#Headers", "#Totals", "#This Row"} {
		if strings.EqualFold(strings.TrimSpace(s), item) {
			return item
		}
	}
	return s
}

// unescapeColumn removes the ' escapes structured references use for
// brackets, pound signs and quotes inside column names.
func unescapeColumn(s string) string {
	if !strings.Contains(s, "'") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func unquoteString(s string) string {
	if len(s) >= 2 {
		s = s[1 : len(s)-1]
	}
	return strings.ReplaceAll(s, `""`, `"`)
}

// normalizeFunctionName upper-cases a function name and strips the
// compatibility prefixes newer functions are stored with.
func normalizeFunctionName(name string) string {
	upper := strings.ToUpper(name)
	for {
		trimmed := upper
		for _, prefix := range []string{"_XLFN.", "_XLWS.", "_XLUDF."} {
			trimmed = strings.TrimPrefix(trimmed, prefix)
		}
		if trimmed == upper {
			return upper
		}
		upper = trimmed
	}
}
