// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"math"
	"slices"
	"strings"
)

var statFunctions = []FunctionDescriptor{
	{Name: "AVERAGE", MinArgs: 1, MaxArgs: 255, ArgTypes: []ArgType{ArgArray}, Returns: ReturnNumber, Handler: fnAVERAGE},
	{Name: "AVERAGEA", MinArgs: 1, MaxArgs: 255, ArgTypes: []ArgType{ArgArray}, Returns: ReturnNumber, Handler: fnAVERAGEA},
	{Name: "AVERAGEIF", MinArgs: 2, MaxArgs: 3, ArgTypes: []ArgType{ArgArray, ArgErrorOK, ArgArray}, Returns: ReturnNumber, Handler: fnAVERAGEIF},
	{Name: "AVERAGEIFS", MinArgs: 3, MaxArgs: 255, ArgTypes: []ArgType{ArgArray, ArgArray, ArgErrorOK}, Repeat: 2, Returns: ReturnNumber, Handler: fnAVERAGEIFS},
	{Name: "COUNT", MinArgs: 1, MaxArgs: 255, ArgTypes: []ArgType{ArgRaw}, Returns: ReturnNumber, Handler: fnCOUNT},
	{Name: "COUNTA", MinArgs: 1, MaxArgs: 255, ArgTypes: []ArgType{ArgRaw}, Returns: ReturnNumber, Handler: fnCOUNTA},
	{Name: "COUNTBLANK", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgArray}, Returns: ReturnNumber, Handler: fnCOUNTBLANK},
	{Name: "COUNTIF", MinArgs: 2, MaxArgs: 2, ArgTypes: []ArgType{ArgArray, ArgErrorOK}, Returns: ReturnNumber, Handler: fnCOUNTIFS},
	{Name: "COUNTIFS", MinArgs: 2, MaxArgs: 254, ArgTypes: []ArgType{ArgArray, ArgErrorOK}, Repeat: 2, Returns: ReturnNumber, Handler: fnCOUNTIFS},
	{Name: "MAX", MinArgs: 1, MaxArgs: 255, ArgTypes: []ArgType{ArgArray}, Returns: ReturnNumber, Handler: extremum(1)},
	{Name: "MIN", MinArgs: 1, MaxArgs: 255, ArgTypes: []ArgType{ArgArray}, Returns: ReturnNumber, Handler: extremum(-1)},
	{Name: "MEDIAN", MinArgs: 1, MaxArgs: 255, ArgTypes: []ArgType{ArgArray}, Returns: ReturnNumber, Handler: fnMEDIAN},
	{Name: "STDEV", MinArgs: 1, MaxArgs: 255, ArgTypes: []ArgType{ArgArray}, Returns: ReturnNumber, Handler: variance(true, true)},
	{Name: "STDEV.S", MinArgs: 1, MaxArgs: 255, ArgTypes: []ArgType{ArgArray}, Returns: ReturnNumber, Handler: variance(true, true)},
	{Name: "STDEV.P", MinArgs: 1, MaxArgs: 255, ArgTypes: []ArgType{ArgArray}, Returns: ReturnNumber, Handler: variance(false, true)},
	{Name: "VAR", MinArgs: 1, MaxArgs: 255, ArgTypes: []ArgType{ArgArray}, Returns: ReturnNumber, Handler: variance(true, false)},
	{Name: "VAR.S", MinArgs: 1, MaxArgs: 255, ArgTypes: []ArgType{ArgArray}, Returns: ReturnNumber, Handler: variance(true, false)},
	{Name: "VAR.P", MinArgs: 1, MaxArgs: 255, ArgTypes: []ArgType{ArgArray}, Returns: ReturnNumber, Handler: variance(false, false)},
	{Name: "LARGE", MinArgs: 2, MaxArgs: 2, ArgTypes: []ArgType{ArgArray, ArgNumber}, Returns: ReturnNumber, Handler: kth(true)},
	{Name: "SMALL", MinArgs: 2, MaxArgs: 2, ArgTypes: []ArgType{ArgArray, ArgNumber}, Returns: ReturnNumber, Handler: kth(false)},
}

// numbersOf collects the numbers an aggregate sees.
func numbersOf(ctx *CallContext, args []Arg, countAll bool) ([]float64, Value) {
	var out []float64
	err := aggregate(ctx, args, countAll, func(n float64) { out = append(out, n) })
	return out, err
}

func mean(ns []float64) float64 {
	sum := 0.0
	for _, n := range ns {
		sum += n
	}
	return sum / float64(len(ns))
}

func fnAVERAGE(ctx *CallContext, args []Arg) Value {
	ns, err := numbersOf(ctx, args, false)
	if err.IsError() {
		return err
	}
	if len(ns) == 0 {
		return NewErrorValue(ErrorDIV0)
	}
	return numberResult(mean(ns))
}

func fnAVERAGEA(ctx *CallContext, args []Arg) Value {
	ns, err := numbersOf(ctx, args, true)
	if err.IsError() {
		return err
	}
	if len(ns) == 0 {
		return NewErrorValue(ErrorDIV0)
	}
	return numberResult(mean(ns))
}

func fnAVERAGEIF(ctx *CallContext, args []Arg) Value {
	rng, kind := ctx.Grid(args[0])
	if kind != ErrorNone {
		return NewErrorValue(kind)
	}
	crit := parseCriteria(args[1].Value)
	values := rng
	if len(args) > 2 && !args[2].Missing {
		rows, cols := rng.Dims()
		if values, kind = resized(ctx, args[2], rows, cols); kind != ErrorNone {
			return NewErrorValue(kind)
		}
	}
	sum, count := 0.0, 0
	var failed Value
	each(rng, func(r, c int, v Value) bool {
		if !crit.match(v, ctx.vm.e.text) {
			return true
		}
		switch x := values.At(r, c); x.Type {
		case ValueNumber:
			sum += x.Number
			count++
		case ValueError:
			failed = x
			return false
		}
		return true
	})
	if failed.IsError() {
		return failed
	}
	if count == 0 {
		return NewErrorValue(ErrorDIV0)
	}
	return numberResult(sum / float64(count))
}

func fnAVERAGEIFS(ctx *CallContext, args []Arg) Value {
	values, kind := ctx.Grid(args[0])
	if kind != ErrorNone {
		return NewErrorValue(kind)
	}
	rows, cols := values.Dims()
	mask, _, failed := criteriaMask(ctx, args[1:], rows, cols)
	if failed.IsError() {
		return failed
	}
	sum, count := 0.0, 0
	for r, row := range mask {
		for c, ok := range row {
			if !ok {
				continue
			}
			switch x := values.At(r, c); x.Type {
			case ValueNumber:
				sum += x.Number
				count++
			case ValueError:
				return x
			}
		}
	}
	if count == 0 {
		return NewErrorValue(ErrorDIV0)
	}
	return numberResult(sum / float64(count))
}

// countWith counts the values of raw arguments accepted by keep. Direct
// scalars are judged after coercion to a number when numeric is set.
func countWith(ctx *CallContext, args []Arg, numeric bool, keep func(Value) bool) Value {
	count := 0
	for _, a := range args {
		if a.Missing {
			if !numeric {
				count++
			}
			continue
		}
		if a.Ref == nil && a.Value.Type != ValueArray {
			v := a.Value
			if numeric && v.Type != ValueError && v.Type != ValueEmpty {
				v = v.ToNumber()
			}
			if keep(v) {
				count++
			}
			continue
		}
		for _, g := range ctx.Grids(a) {
			each(g, func(_, _ int, v Value) bool {
				if keep(v) {
					count++
				}
				return true
			})
		}
	}
	return NewNumberValue(float64(count))
}

func fnCOUNT(ctx *CallContext, args []Arg) Value {
	return countWith(ctx, args, true, func(v Value) bool { return v.Type == ValueNumber })
}

func fnCOUNTA(ctx *CallContext, args []Arg) Value {
	return countWith(ctx, args, false, func(v Value) bool { return v.Type != ValueEmpty })
}

func fnCOUNTBLANK(ctx *CallContext, args []Arg) Value {
	g, kind := ctx.Grid(args[0])
	if kind != ErrorNone {
		return NewErrorValue(kind)
	}
	rows, cols := g.Dims()
	filled := 0
	each(g, func(_, _ int, v Value) bool {
		if !(v.Type == ValueEmpty || (v.Type == ValueString && v.Text == "")) {
			filled++
		}
		return true
	})
	return NewNumberValue(float64(rows*cols - filled))
}

func fnCOUNTIFS(ctx *CallContext, args []Arg) Value {
	first, kind := ctx.Grid(args[0])
	if kind != ErrorNone {
		return NewErrorValue(kind)
	}
	rows, cols := first.Dims()
	mask, blank, failed := criteriaMask(ctx, args, rows, cols)
	if failed.IsError() {
		return failed
	}
	count, covered := 0, 0
	for _, row := range mask {
		covered += len(row)
		for _, ok := range row {
			if ok {
				count++
			}
		}
	}
	if blank {
		count += rows*cols - covered
	}
	return NewNumberValue(float64(count))
}

func extremum(sign float64) func(*CallContext, []Arg) Value {
	return func(ctx *CallContext, args []Arg) Value {
		best, seen := 0.0, false
		err := aggregate(ctx, args, false, func(n float64) {
			if !seen || (n-best)*sign > 0 {
				best, seen = n, true
			}
		})
		if err.IsError() {
			return err
		}
		return NewNumberValue(best)
	}
}

func fnMEDIAN(ctx *CallContext, args []Arg) Value {
	ns, err := numbersOf(ctx, args, false)
	if err.IsError() {
		return err
	}
	if len(ns) == 0 {
		return NewErrorValue(ErrorNUM)
	}
	slices.Sort(ns)
	mid := len(ns) / 2
	if len(ns)%2 == 1 {
		return NewNumberValue(ns[mid])
	}
	return NewNumberValue((ns[mid-1] + ns[mid]) / 2)
}

func variance(sample, root bool) func(*CallContext, []Arg) Value {
	return func(ctx *CallContext, args []Arg) Value {
		ns, err := numbersOf(ctx, args, false)
		if err.IsError() {
			return err
		}
		n := len(ns)
		if n == 0 || (sample && n < 2) {
			return NewErrorValue(ErrorDIV0)
		}
		m := mean(ns)
		ss := 0.0
		for _, x := range ns {
			ss += (x - m) * (x - m)
		}
		d := float64(n)
		if sample {
			d--
		}
		if root {
			return numberResult(math.Sqrt(ss / d))
		}
		return numberResult(ss / d)
	}
}

func kth(largest bool) func(*CallContext, []Arg) Value {
	return func(ctx *CallContext, args []Arg) Value {
		ns, err := numbersOf(ctx, args[:1], false)
		if err.IsError() {
			return err
		}
		k := int(math.Ceil(args[1].Value.Number))
		if k < 1 || k > len(ns) {
			return NewErrorValue(ErrorNUM)
		}
		slices.Sort(ns)
		if largest {
			return NewNumberValue(ns[len(ns)-k])
		}
		return NewNumberValue(ns[k-1])
	}
}

// criteria is a parsed condition of the *IF family: an operator and an
// operand, with wildcard matching for text equality.
type criteria struct {
	op       string
	value    Value
	wildcard bool
}

// parseCriteria reads a condition such as 5, ">=10", "<>", "a*" or
// "=TRUE".
func parseCriteria(v Value) criteria {
	if v.Type != ValueString {
		if v.Type == ValueEmpty {
			return criteria{op: "=", value: NewNumberValue(0)}
		}
		return criteria{op: "=", value: v}
	}
	s, op := v.Text, "="
	for _, candidate := range []string{">=", "<=", "<>", ">", "<", "="} {
		if strings.HasPrefix(s, candidate) {
			op, s = candidate, s[len(candidate):]
			break
		}
	}
	switch {
	case s == "":
		return criteria{op: op, value: EmptyValue()}
	case strings.EqualFold(s, "TRUE"):
		return criteria{op: op, value: NewBoolValue(true)}
	case strings.EqualFold(s, "FALSE"):
		return criteria{op: op, value: NewBoolValue(false)}
	}
	if kind, ok := ParseErrorLiteral(s); ok {
		return criteria{op: op, value: NewErrorValue(kind)}
	}
	if n, ok := parseNumberText(s); ok {
		return criteria{op: op, value: NewNumberValue(n)}
	}
	return criteria{op: op, value: NewStringValue(s), wildcard: (op == "=" || op == "<>") && strings.ContainsAny(s, "*?~")}
}

func (cr criteria) match(v Value, text *textRules) bool {
	switch cr.op {
	case "=":
		return cr.equal(v, text)
	case "<>":
		return !cr.equal(v, text)
	}
	if v.Type != cr.value.Type || v.Type == ValueError || v.Type == ValueEmpty {
		return false
	}
	cmp := compareValues(v, cr.value, text)
	switch cr.op {
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	}
	return cmp >= 0
}

func (cr criteria) equal(v Value, text *textRules) bool {
	switch cr.value.Type {
	case ValueEmpty:
		return v.Type == ValueEmpty || (v.Type == ValueString && v.Text == "")
	case ValueNumber:
		switch v.Type {
		case ValueNumber:
			return v.Number == cr.value.Number
		case ValueString:
			n, ok := parseNumberText(v.Text)
			return ok && n == cr.value.Number
		}
		return false
	case ValueString:
		if v.Type != ValueString {
			return false
		}
		if cr.wildcard {
			return wildcardMatch(strings.ToLower(cr.value.Text), strings.ToLower(v.Text))
		}
		return text.equal(v.Text, cr.value.Text)
	case ValueBool:
		return v.Type == ValueBool && v.Bool == cr.value.Bool
	case ValueError:
		return v.Type == ValueError && v.Err == cr.value.Err
	}
	return false
}

// wildcardMatch matches text against a pattern where * is any run, ? is
// any one character and ~ escapes the next character.
func wildcardMatch(pattern, s string) bool {
	p, t := []rune(pattern), []rune(s)
	pi, ti := 0, 0
	star, mark := -1, 0
	for ti < len(t) {
		if pi < len(p) {
			switch {
			case p[pi] == '*':
				star, mark = pi, ti
				pi++
				continue
			case p[pi] == '~' && pi+1 < len(p):
				if p[pi+1] == t[ti] {
					pi, ti = pi+2, ti+1
					continue
				}
			case p[pi] == '?' || p[pi] == t[ti]:
				pi++
				ti++
				continue
			}
		}
		if star < 0 {
			return false
		}
		pi = star + 1
		mark++
		ti = mark
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}
