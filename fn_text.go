// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// maxTextLength is the longest text a cell can hold.
const maxTextLength = 32767

var textFunctions = []FunctionDescriptor{
	{Name: "CONCAT", MinArgs: 1, MaxArgs: 253, ArgTypes: []ArgType{ArgArray}, Returns: ReturnText, Handler: fnCONCAT},
	{Name: "CONCATENATE", MinArgs: 1, MaxArgs: 255, ArgTypes: []ArgType{ArgText}, Returns: ReturnText, Handler: fnCONCATENATE},
	{Name: "TEXTJOIN", MinArgs: 3, MaxArgs: 252, ArgTypes: []ArgType{ArgText, ArgBool, ArgArray}, Returns: ReturnText, Handler: fnTEXTJOIN},
	{Name: "LEFT", MinArgs: 1, MaxArgs: 2, ArgTypes: []ArgType{ArgText, ArgNumber}, Returns: ReturnText, Handler: fnLEFT},
	{Name: "RIGHT", MinArgs: 1, MaxArgs: 2, ArgTypes: []ArgType{ArgText, ArgNumber}, Returns: ReturnText, Handler: fnRIGHT},
	{Name: "MID", MinArgs: 3, MaxArgs: 3, ArgTypes: []ArgType{ArgText, ArgNumber, ArgNumber}, Returns: ReturnText, Handler: fnMID},
	{Name: "LEN", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgText}, Returns: ReturnNumber, Handler: func(_ *CallContext, args []Arg) Value {
		return NewNumberValue(float64(utf8.RuneCountInString(args[0].Value.Text)))
	}},
	{Name: "UPPER", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgText}, Returns: ReturnText, Handler: func(ctx *CallContext, args []Arg) Value {
		return NewStringValue(ctx.vm.e.text.upper(args[0].Value.Text))
	}},
	{Name: "LOWER", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgText}, Returns: ReturnText, Handler: func(ctx *CallContext, args []Arg) Value {
		return NewStringValue(ctx.vm.e.text.lower(args[0].Value.Text))
	}},
	{Name: "PROPER", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgText}, Returns: ReturnText, Handler: fnPROPER},
	{Name: "TRIM", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgText}, Returns: ReturnText, Handler: func(_ *CallContext, args []Arg) Value {
		return NewStringValue(strings.Join(strings.FieldsFunc(args[0].Value.Text, func(r rune) bool { return r == ' ' }), " "))
	}},
	{Name: "CLEAN", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgText}, Returns: ReturnText, Handler: func(_ *CallContext, args []Arg) Value {
		return NewStringValue(strings.Map(func(r rune) rune {
			if r < 32 {
				return -1
			}
			return r
		}, args[0].Value.Text))
	}},
	{Name: "SUBSTITUTE", MinArgs: 3, MaxArgs: 4, ArgTypes: []ArgType{ArgText, ArgText, ArgText, ArgNumber}, Returns: ReturnText, Handler: fnSUBSTITUTE},
	{Name: "REPLACE", MinArgs: 4, MaxArgs: 4, ArgTypes: []ArgType{ArgText, ArgNumber, ArgNumber, ArgText}, Returns: ReturnText, Handler: fnREPLACE},
	{Name: "FIND", MinArgs: 2, MaxArgs: 3, ArgTypes: []ArgType{ArgText, ArgText, ArgNumber}, Returns: ReturnNumber, Handler: fnFIND},
	{Name: "SEARCH", MinArgs: 2, MaxArgs: 3, ArgTypes: []ArgType{ArgText, ArgText, ArgNumber}, Returns: ReturnNumber, Handler: fnSEARCH},
	{Name: "TEXT", MinArgs: 2, MaxArgs: 2, ArgTypes: []ArgType{ArgAny, ArgText}, Returns: ReturnText, Handler: fnTEXT},
	{Name: "VALUE", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgAny}, Returns: ReturnNumber, Handler: fnVALUE},
	{Name: "REPT", MinArgs: 2, MaxArgs: 2, ArgTypes: []ArgType{ArgText, ArgNumber}, Returns: ReturnText, Handler: fnREPT},
	{Name: "EXACT", MinArgs: 2, MaxArgs: 2, ArgTypes: []ArgType{ArgText, ArgText}, Returns: ReturnBool, Handler: func(_ *CallContext, args []Arg) Value {
		return NewBoolValue(args[0].Value.Text == args[1].Value.Text)
	}},
	{Name: "T", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgAny}, Returns: ReturnText, Handler: func(_ *CallContext, args []Arg) Value {
		if args[0].Value.Type == ValueString {
			return args[0].Value
		}
		return NewStringValue("")
	}},
	{Name: "CHAR", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgNumber}, Returns: ReturnText, Handler: fnCHAR},
	{Name: "CODE", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgText}, Returns: ReturnNumber, Handler: fnCODE},
	{Name: "UNICHAR", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgNumber}, Returns: ReturnText, Handler: fnUNICHAR},
	{Name: "UNICODE", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgText}, Returns: ReturnNumber, Handler: fnUNICODE},
}

// textResult rejects text longer than a cell can hold.
func textResult(s string) Value {
	if utf8.RuneCountInString(s) > maxTextLength {
		return NewErrorValue(ErrorVALUE, "text result too long")
	}
	return NewStringValue(s)
}

// joinGrids appends the text of every element of the arguments to parts.
// Blank cells give "" and are dropped when skipEmpty is set.
func joinGrids(ctx *CallContext, args []Arg, skipEmpty bool) ([]string, Value) {
	var parts []string
	for _, a := range args {
		if a.Missing {
			continue
		}
		for _, g := range ctx.Grids(a) {
			var failed Value
			rows, cols := g.Dims()
			er, ec := g.Extent()
			if a.Ref == nil {
				er, ec = rows, cols
			}
			for r := 0; r < min(rows, er) && !failed.IsError(); r++ {
				for c := 0; c < min(cols, ec); c++ {
					v := g.At(r, c)
					if v.Type == ValueError {
						failed = v
						break
					}
					s := v.String()
					if s == "" && skipEmpty {
						continue
					}
					parts = append(parts, s)
				}
			}
			if failed.IsError() {
				return nil, failed
			}
		}
	}
	return parts, EmptyValue()
}

func fnCONCAT(ctx *CallContext, args []Arg) Value {
	parts, failed := joinGrids(ctx, args, true)
	if failed.IsError() {
		return failed
	}
	return textResult(strings.Join(parts, ""))
}

func fnCONCATENATE(_ *CallContext, args []Arg) Value {
	var b strings.Builder
	for _, a := range args {
		b.WriteString(a.Value.Text)
	}
	return textResult(b.String())
}

func fnTEXTJOIN(ctx *CallContext, args []Arg) Value {
	parts, failed := joinGrids(ctx, args[2:], args[1].Value.Bool)
	if failed.IsError() {
		return failed
	}
	return textResult(strings.Join(parts, args[0].Value.Text))
}

func fnLEFT(_ *CallContext, args []Arg) Value {
	n := num(args, 1, 1)
	if n < 0 {
		return NewErrorValue(ErrorVALUE)
	}
	rs := []rune(args[0].Value.Text)
	return NewStringValue(string(rs[:min(int(n), len(rs))]))
}

func fnRIGHT(_ *CallContext, args []Arg) Value {
	n := num(args, 1, 1)
	if n < 0 {
		return NewErrorValue(ErrorVALUE)
	}
	rs := []rune(args[0].Value.Text)
	return NewStringValue(string(rs[len(rs)-min(int(n), len(rs)):]))
}

func fnMID(_ *CallContext, args []Arg) Value {
	start, n := int(args[1].Value.Number), int(args[2].Value.Number)
	if start < 1 || n < 0 {
		return NewErrorValue(ErrorVALUE)
	}
	rs := []rune(args[0].Value.Text)
	if start > len(rs) {
		return NewStringValue("")
	}
	return NewStringValue(string(rs[start-1 : min(start-1+n, len(rs))]))
}

// fnPROPER capitalises every letter that follows a non-letter.
func fnPROPER(ctx *CallContext, args []Arg) Value {
	var b strings.Builder
	prevLetter := false
	for _, r := range args[0].Value.Text {
		letter := unicode.IsLetter(r)
		switch {
		case letter && !prevLetter:
			b.WriteString(ctx.vm.e.text.upper(string(r)))
		case letter:
			b.WriteString(ctx.vm.e.text.lower(string(r)))
		default:
			b.WriteRune(r)
		}
		prevLetter = letter
	}
	return NewStringValue(b.String())
}

func fnSUBSTITUTE(_ *CallContext, args []Arg) Value {
	text, old, repl := args[0].Value.Text, args[1].Value.Text, args[2].Value.Text
	if old == "" {
		return NewStringValue(text)
	}
	if len(args) < 4 || args[3].Missing {
		return textResult(strings.ReplaceAll(text, old, repl))
	}
	nth := int(args[3].Value.Number)
	if nth < 1 {
		return NewErrorValue(ErrorVALUE)
	}
	idx := 0
	for i := 1; ; i++ {
		j := strings.Index(text[idx:], old)
		if j < 0 {
			return NewStringValue(text)
		}
		idx += j
		if i == nth {
			return textResult(text[:idx] + repl + text[idx+len(old):])
		}
		idx += len(old)
	}
}

func fnREPLACE(_ *CallContext, args []Arg) Value {
	start, n := int(args[1].Value.Number), int(args[2].Value.Number)
	if start < 1 || n < 0 {
		return NewErrorValue(ErrorVALUE)
	}
	rs := []rune(args[0].Value.Text)
	from := min(start-1, len(rs))
	to := min(from+n, len(rs))
	return textResult(string(rs[:from]) + args[3].Value.Text + string(rs[to:]))
}

// startIndex converts a 1-based character position to a rune offset into
// rs, checking it lies inside the text.
func startIndex(args []Arg, rs []rune) (int, bool) {
	start := int(num(args, 2, 1))
	if start < 1 || start > len(rs)+1 {
		return 0, false
	}
	return start - 1, true
}

func fnFIND(_ *CallContext, args []Arg) Value {
	needle, within := []rune(args[0].Value.Text), []rune(args[1].Value.Text)
	start, ok := startIndex(args, within)
	if !ok {
		return NewErrorValue(ErrorVALUE)
	}
	if i := strings.Index(string(within[start:]), string(needle)); i >= 0 {
		return NewNumberValue(float64(start + utf8.RuneCountInString(string(within[start:])[:i]) + 1))
	}
	return NewErrorValue(ErrorVALUE, "text not found")
}

// fnSEARCH is FIND without case and with the wildcards ?, * and ~.
func fnSEARCH(ctx *CallContext, args []Arg) Value {
	rules := ctx.vm.e.text
	pattern := rules.lower(args[0].Value.Text)
	within := []rune(rules.lower(args[1].Value.Text))
	start, ok := startIndex(args, within)
	if !ok {
		return NewErrorValue(ErrorVALUE)
	}
	if pattern == "" {
		return NewNumberValue(float64(start + 1))
	}
	for i := start; i < len(within); i++ {
		if wildcardMatch(pattern+"*", string(within[i:])) {
			return NewNumberValue(float64(i + 1))
		}
	}
	return NewErrorValue(ErrorVALUE, "text not found")
}

// fnTEXT formats a number with a number format. Text that does not read as
// a number goes through the format's text section.
func fnTEXT(_ *CallContext, args []Arg) Value {
	v, code := args[0].Value, args[1].Value.Text
	nf := parseNumberFormat(code)
	switch v.Type {
	case ValueString:
		n, ok := parseNumberText(v.Text)
		if !ok {
			return NewStringValue(nf.formatText(v.Text))
		}
		return NewStringValue(nf.formatNumber(n))
	case ValueBool:
		return NewStringValue(nf.formatText(v.String()))
	case ValueEmpty:
		return NewStringValue(nf.formatNumber(0))
	}
	return NewStringValue(nf.formatNumber(v.Number))
}

func fnVALUE(_ *CallContext, args []Arg) Value {
	v := args[0].Value
	switch v.Type {
	case ValueNumber:
		return v
	case ValueEmpty:
		return NewNumberValue(0)
	case ValueString:
		if n, ok := parseNumberText(v.Text); ok {
			return NewNumberValue(n)
		}
	}
	return NewErrorValue(ErrorVALUE, "not a number")
}

func fnREPT(_ *CallContext, args []Arg) Value {
	n := int(args[1].Value.Number)
	if n < 0 || utf8.RuneCountInString(args[0].Value.Text)*n > maxTextLength {
		return NewErrorValue(ErrorVALUE)
	}
	return NewStringValue(strings.Repeat(args[0].Value.Text, n))
}

// fnCHAR maps a code in 1..255 through the Windows-1252 code page.
func fnCHAR(_ *CallContext, args []Arg) Value {
	n := int(args[0].Value.Number)
	if n < 1 || n > 255 {
		return NewErrorValue(ErrorVALUE)
	}
	return NewStringValue(string(charmap.Windows1252.DecodeByte(byte(n))))
}

func fnCODE(_ *CallContext, args []Arg) Value {
	r, size := utf8.DecodeRuneInString(args[0].Value.Text)
	if size == 0 {
		return NewErrorValue(ErrorVALUE)
	}
	if b, ok := charmap.Windows1252.EncodeRune(r); ok {
		return NewNumberValue(float64(b))
	}
	return NewNumberValue(63)
}

func fnUNICHAR(_ *CallContext, args []Arg) Value {
	n := int(args[0].Value.Number)
	if n < 1 || n > unicode.MaxRune || !utf8.ValidRune(rune(n)) {
		return NewErrorValue(ErrorVALUE)
	}
	return NewStringValue(string(rune(n)))
}

func fnUNICODE(_ *CallContext, args []Arg) Value {
	r, size := utf8.DecodeRuneInString(args[0].Value.Text)
	if size == 0 {
		return NewErrorValue(ErrorVALUE)
	}
	return NewNumberValue(float64(r))
}
