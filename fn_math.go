// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"math"
	"strconv"
)

var mathFunctions = []FunctionDescriptor{
	{Name: "SUM", MinArgs: 1, MaxArgs: 255, ArgTypes: []ArgType{ArgArray}, Returns: ReturnNumber, Handler: fnSUM},
	{Name: "SUMSQ", MinArgs: 1, MaxArgs: 255, ArgTypes: []ArgType{ArgArray}, Returns: ReturnNumber, Handler: fnSUMSQ},
	{Name: "PRODUCT", MinArgs: 1, MaxArgs: 255, ArgTypes: []ArgType{ArgArray}, Returns: ReturnNumber, Handler: fnPRODUCT},
	{Name: "SUMIF", MinArgs: 2, MaxArgs: 3, ArgTypes: []ArgType{ArgArray, ArgErrorOK, ArgArray}, Returns: ReturnNumber, Handler: fnSUMIF},
	{Name: "SUMIFS", MinArgs: 3, MaxArgs: 255, ArgTypes: []ArgType{ArgArray, ArgArray, ArgErrorOK}, Repeat: 2, Returns: ReturnNumber, Handler: fnSUMIFS},
	{Name: "SUMPRODUCT", MinArgs: 1, MaxArgs: 255, ArgTypes: []ArgType{ArgArray}, Returns: ReturnNumber, SupportsArrays: true, Handler: fnSUMPRODUCT},
	{Name: "ABS", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgNumber}, Returns: ReturnNumber, Handler: unaryMath(math.Abs)},
	{Name: "SIGN", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgNumber}, Returns: ReturnNumber, Handler: fnSIGN},
	{Name: "INT", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgNumber}, Returns: ReturnNumber, Handler: unaryMath(math.Floor)},
	{Name: "EXP", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgNumber}, Returns: ReturnNumber, Handler: unaryMath(math.Exp)},
	{Name: "SQRT", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgNumber}, Returns: ReturnNumber, Handler: fnSQRT},
	{Name: "LN", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgNumber}, Returns: ReturnNumber, Handler: fnLN},
	{Name: "LOG10", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgNumber}, Returns: ReturnNumber, Handler: fnLOG10},
	{Name: "LOG", MinArgs: 1, MaxArgs: 2, ArgTypes: []ArgType{ArgNumber, ArgNumber}, Returns: ReturnNumber, Handler: fnLOG},
	{Name: "POWER", MinArgs: 2, MaxArgs: 2, ArgTypes: []ArgType{ArgNumber, ArgNumber}, Returns: ReturnNumber, Handler: fnPOWER},
	{Name: "MOD", MinArgs: 2, MaxArgs: 2, ArgTypes: []ArgType{ArgNumber, ArgNumber}, Returns: ReturnNumber, Handler: fnMOD},
	{Name: "QUOTIENT", MinArgs: 2, MaxArgs: 2, ArgTypes: []ArgType{ArgNumber, ArgNumber}, Returns: ReturnNumber, Handler: fnQUOTIENT},
	{Name: "PI", MinArgs: 0, MaxArgs: 0, Returns: ReturnNumber, Handler: func(*CallContext, []Arg) Value { return NewNumberValue(math.Pi) }},
	{Name: "ROUND", MinArgs: 2, MaxArgs: 2, ArgTypes: []ArgType{ArgNumber, ArgNumber}, Returns: ReturnNumber, Handler: roundWith(roundHalfAway)},
	{Name: "ROUNDUP", MinArgs: 2, MaxArgs: 2, ArgTypes: []ArgType{ArgNumber, ArgNumber}, Returns: ReturnNumber, Handler: roundWith(roundAway)},
	{Name: "ROUNDDOWN", MinArgs: 2, MaxArgs: 2, ArgTypes: []ArgType{ArgNumber, ArgNumber}, Returns: ReturnNumber, Handler: roundWith(math.Trunc)},
	{Name: "TRUNC", MinArgs: 1, MaxArgs: 2, ArgTypes: []ArgType{ArgNumber, ArgNumber}, Returns: ReturnNumber, Handler: roundWith(math.Trunc)},
	{Name: "CEILING", MinArgs: 1, MaxArgs: 2, ArgTypes: []ArgType{ArgNumber, ArgNumber}, Returns: ReturnNumber, Handler: fnCEILING},
	{Name: "FLOOR", MinArgs: 1, MaxArgs: 2, ArgTypes: []ArgType{ArgNumber, ArgNumber}, Returns: ReturnNumber, Handler: fnFLOOR},
	{Name: "RAND", MinArgs: 0, MaxArgs: 0, Returns: ReturnNumber, Volatile: true, Handler: fnRAND},
	{Name: "RANDBETWEEN", MinArgs: 2, MaxArgs: 2, ArgTypes: []ArgType{ArgNumber, ArgNumber}, Returns: ReturnNumber, Volatile: true, Handler: fnRANDBETWEEN},
}

// num returns a coerced numeric argument, or def when it was omitted.
func num(args []Arg, i int, def float64) float64 {
	if i >= len(args) || args[i].Missing {
		return def
	}
	return args[i].Value.Number
}

// str returns a coerced text argument, or def when it was omitted.
func str(args []Arg, i int, def string) string {
	if i >= len(args) || args[i].Missing {
		return def
	}
	return args[i].Value.Text
}

// flag returns a coerced logical argument, or def when it was omitted.
func flag(args []Arg, i int, def bool) bool {
	if i >= len(args) || args[i].Missing {
		return def
	}
	return args[i].Value.Bool
}

func unaryMath(fn func(float64) float64) func(*CallContext, []Arg) Value {
	return func(_ *CallContext, args []Arg) Value {
		return numberResult(fn(args[0].Value.Number))
	}
}

// aggregate feeds the numbers of an aggregate's arguments to fn. Scalars
// typed directly into the call are coerced, so "5" and TRUE count; inside
// references and arrays only numbers count unless countAll is set, in
// which case text counts as zero and logical values as 0 or 1. The first
// error met is returned.
func aggregate(ctx *CallContext, args []Arg, countAll bool, fn func(n float64)) Value {
	for _, a := range args {
		if a.Missing {
			continue
		}
		if a.Ref == nil && a.Value.Type != ValueArray {
			v := a.Value
			if v.Type == ValueEmpty {
				continue
			}
			n := v.ToNumber()
			if n.Type == ValueError {
				return n
			}
			fn(n.Number)
			continue
		}
		for _, g := range ctx.Grids(a) {
			var failed Value
			each(g, func(_, _ int, v Value) bool {
				switch v.Type {
				case ValueNumber:
					fn(v.Number)
				case ValueError:
					failed = v
					return false
				case ValueBool:
					if countAll {
						fn(float64(boolInt(v.Bool)))
					}
				case ValueString:
					if countAll {
						fn(0)
					}
				}
				return true
			})
			if failed.Type == ValueError {
				return failed
			}
		}
	}
	return EmptyValue()
}

func fnSUM(ctx *CallContext, args []Arg) Value {
	sum := 0.0
	if err := aggregate(ctx, args, false, func(n float64) { sum += n }); err.IsError() {
		return err
	}
	return numberResult(sum)
}

func fnSUMSQ(ctx *CallContext, args []Arg) Value {
	sum := 0.0
	if err := aggregate(ctx, args, false, func(n float64) { sum += n * n }); err.IsError() {
		return err
	}
	return numberResult(sum)
}

func fnPRODUCT(ctx *CallContext, args []Arg) Value {
	product, seen := 1.0, false
	if err := aggregate(ctx, args, false, func(n float64) { product *= n; seen = true }); err.IsError() {
		return err
	}
	if !seen {
		return NewNumberValue(0)
	}
	return numberResult(product)
}

// resized returns a grid of the given shape anchored at the top-left of a
// reference or array, as SUMIF does with its sum range.
func resized(ctx *CallContext, a Arg, rows, cols int) (Grid, ErrorKind) {
	if a.Ref != nil && len(a.Ref.Areas) == 1 {
		from := a.Ref.Areas[0].From
		to := CellAddr{Row: min(from.Row+rows-1, MaxRows), Col: min(from.Col+cols-1, MaxColumns)}
		return ctx.Grid(refArg(Reference{Areas: []Area{{Sheet: a.Ref.Areas[0].Sheet, From: from, To: to}}}))
	}
	return ctx.Grid(a)
}

func fnSUMIF(ctx *CallContext, args []Arg) Value {
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
	sum := 0.0
	var failed Value
	each(rng, func(r, c int, v Value) bool {
		if !crit.match(v, ctx.vm.e.text) {
			return true
		}
		switch x := values.At(r, c); x.Type {
		case ValueNumber:
			sum += x.Number
		case ValueError:
			failed = x
			return false
		}
		return true
	})
	if failed.IsError() {
		return failed
	}
	return numberResult(sum)
}

// criteriaMask evaluates (range, criteria) pairs into a mask of matching
// positions. All ranges must have the logical shape rows×cols; the mask
// only covers the part of it that holds data. blank reports whether a
// blank cell satisfies every criterion, which is how the cells outside
// the mask behave.
func criteriaMask(ctx *CallContext, pairs []Arg, rows, cols int) (mask [][]bool, blank bool, failed Value) {
	if len(pairs) == 0 || len(pairs)%2 != 0 {
		return nil, false, NewErrorValue(ErrorVALUE)
	}
	grids := make([]Grid, 0, len(pairs)/2)
	crits := make([]criteria, 0, len(pairs)/2)
	lr, lc := 0, 0
	for i := 0; i < len(pairs); i += 2 {
		g, kind := ctx.Grid(pairs[i])
		if kind != ErrorNone {
			return nil, false, NewErrorValue(kind)
		}
		if gr, gc := g.Dims(); gr != rows || gc != cols {
			return nil, false, NewErrorValue(ErrorVALUE, "criteria ranges differ in shape")
		}
		if pairs[i+1].Value.IsError() {
			return nil, false, pairs[i+1].Value
		}
		er, ec := g.Extent()
		lr, lc = max(lr, er), max(lc, ec)
		grids = append(grids, g)
		crits = append(crits, parseCriteria(pairs[i+1].Value))
	}
	lr, lc = min(lr, rows), min(lc, cols)
	blank = true
	for _, crit := range crits {
		blank = blank && crit.match(EmptyValue(), ctx.vm.e.text)
	}
	mask = make([][]bool, lr)
	for r := range mask {
		mask[r] = make([]bool, lc)
		for c := range mask[r] {
			ok := true
			for i, g := range grids {
				if ok = crits[i].match(g.At(r, c), ctx.vm.e.text); !ok {
					break
				}
			}
			mask[r][c] = ok
		}
	}
	return mask, blank, EmptyValue()
}

func fnSUMIFS(ctx *CallContext, args []Arg) Value {
	values, kind := ctx.Grid(args[0])
	if kind != ErrorNone {
		return NewErrorValue(kind)
	}
	rows, cols := values.Dims()
	mask, _, failed := criteriaMask(ctx, args[1:], rows, cols)
	if failed.IsError() {
		return failed
	}
	sum := 0.0
	for r, row := range mask {
		for c, ok := range row {
			if !ok {
				continue
			}
			switch x := values.At(r, c); x.Type {
			case ValueNumber:
				sum += x.Number
			case ValueError:
				return x
			}
		}
	}
	return numberResult(sum)
}

func fnSUMPRODUCT(ctx *CallContext, args []Arg) Value {
	var grids []Grid
	rows, cols := -1, -1
	for _, a := range args {
		g, kind := ctx.Grid(a)
		if kind != ErrorNone {
			return NewErrorValue(kind)
		}
		r, c := g.Dims()
		if rows >= 0 && (r != rows || c != cols) {
			return NewErrorValue(ErrorVALUE, "SUMPRODUCT arrays differ in shape")
		}
		rows, cols = r, c
		grids = append(grids, g)
	}
	er, ec := 0, 0
	for _, g := range grids {
		r, c := g.Extent()
		er, ec = max(er, r), max(ec, c)
	}
	sum := 0.0
	for r := 0; r < min(rows, er); r++ {
		for c := 0; c < min(cols, ec); c++ {
			product := 1.0
			for _, g := range grids {
				v := g.At(r, c)
				switch v.Type {
				case ValueError:
					return v
				case ValueNumber:
					product *= v.Number
				default:
					product = 0
				}
			}
			sum += product
		}
	}
	return numberResult(sum)
}

func fnSIGN(_ *CallContext, args []Arg) Value {
	n := args[0].Value.Number
	switch {
	case n > 0:
		return NewNumberValue(1)
	case n < 0:
		return NewNumberValue(-1)
	}
	return NewNumberValue(0)
}

func fnSQRT(_ *CallContext, args []Arg) Value {
	if n := args[0].Value.Number; n < 0 {
		return NewErrorValue(ErrorNUM)
	}
	return numberResult(math.Sqrt(args[0].Value.Number))
}

func fnLN(_ *CallContext, args []Arg) Value {
	if args[0].Value.Number <= 0 {
		return NewErrorValue(ErrorNUM)
	}
	return numberResult(math.Log(args[0].Value.Number))
}

func fnLOG10(_ *CallContext, args []Arg) Value {
	if args[0].Value.Number <= 0 {
		return NewErrorValue(ErrorNUM)
	}
	return numberResult(math.Log10(args[0].Value.Number))
}

func fnLOG(_ *CallContext, args []Arg) Value {
	x, base := args[0].Value.Number, num(args, 1, 10)
	if x <= 0 || base <= 0 {
		return NewErrorValue(ErrorNUM)
	}
	if base == 1 {
		return NewErrorValue(ErrorDIV0)
	}
	return numberResult(math.Log(x) / math.Log(base))
}

func fnPOWER(_ *CallContext, args []Arg) Value {
	return power(args[0].Value.Number, args[1].Value.Number)
}

func fnMOD(_ *CallContext, args []Arg) Value {
	n, d := args[0].Value.Number, args[1].Value.Number
	if d == 0 {
		return NewErrorValue(ErrorDIV0)
	}
	return numberResult(n - d*math.Floor(n/d))
}

func fnQUOTIENT(_ *CallContext, args []Arg) Value {
	n, d := args[0].Value.Number, args[1].Value.Number
	if d == 0 {
		return NewErrorValue(ErrorDIV0)
	}
	return numberResult(math.Trunc(n / d))
}

// sig15 rounds to 15 significant digits, the precision Excel keeps, so
// that 1.005*100 is treated as 100.5 rather than 100.49999999999999.
func sig15(x float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(x, 'g', 15, 64), 64)
	if err != nil {
		return x
	}
	return r
}

func roundHalfAway(x float64) float64 { return math.Round(x) }

func roundAway(x float64) float64 {
	if x < 0 {
		return -math.Ceil(-x)
	}
	return math.Ceil(x)
}

func roundWith(mode func(float64) float64) func(*CallContext, []Arg) Value {
	return func(_ *CallContext, args []Arg) Value {
		return NewNumberValue(roundDigits(args[0].Value.Number, int(num(args, 1, 0)), mode))
	}
}

func roundDigits(x float64, digits int, mode func(float64) float64) float64 {
	p := math.Pow(10, float64(digits))
	r := mode(sig15(x*p)) / p
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return x
	}
	return r
}

func fnCEILING(_ *CallContext, args []Arg) Value {
	x, sig := args[0].Value.Number, num(args, 1, 1)
	if x > 0 && sig < 0 {
		return NewErrorValue(ErrorNUM)
	}
	if sig == 0 {
		return NewNumberValue(0)
	}
	return numberResult(math.Ceil(sig15(x/sig)) * sig)
}

func fnFLOOR(_ *CallContext, args []Arg) Value {
	x, sig := args[0].Value.Number, num(args, 1, 1)
	if x > 0 && sig < 0 {
		return NewErrorValue(ErrorNUM)
	}
	if sig == 0 {
		return NewErrorValue(ErrorDIV0)
	}
	return numberResult(math.Floor(sig15(x/sig)) * sig)
}

func fnRAND(ctx *CallContext, _ []Arg) Value {
	return NewNumberValue(ctx.Rand())
}

func fnRANDBETWEEN(ctx *CallContext, args []Arg) Value {
	lo, hi := math.Ceil(args[0].Value.Number), math.Floor(args[1].Value.Number)
	if lo > hi {
		return NewErrorValue(ErrorNUM)
	}
	return NewNumberValue(lo + math.Floor(ctx.Rand()*(hi-lo+1)))
}
