// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

var logicalFunctions = []FunctionDescriptor{
	{Name: "IF", MinArgs: 1, MaxArgs: 3, Returns: ReturnAny, Lazy: fnIF},
	{Name: "IFS", MinArgs: 2, MaxArgs: 254, Returns: ReturnAny, Lazy: fnIFS},
	{Name: "IFERROR", MinArgs: 2, MaxArgs: 2, Returns: ReturnAny, Lazy: errorFallback(func(v Value) bool { return v.Type == ValueError })},
	{Name: "IFNA", MinArgs: 2, MaxArgs: 2, Returns: ReturnAny, Lazy: errorFallback(func(v Value) bool { return v.Type == ValueError && v.Err == ErrorNA })},
	{Name: "AND", MinArgs: 1, MaxArgs: 255, Returns: ReturnBool, Lazy: junction(false)},
	{Name: "OR", MinArgs: 1, MaxArgs: 255, Returns: ReturnBool, Lazy: junction(true)},
	{Name: "SWITCH", MinArgs: 3, MaxArgs: 254, Returns: ReturnAny, Lazy: fnSWITCH},
	{Name: "CHOOSE", MinArgs: 2, MaxArgs: 255, Returns: ReturnAny, Lazy: fnCHOOSE},
	{Name: "XOR", MinArgs: 1, MaxArgs: 254, ArgTypes: []ArgType{ArgArray}, Returns: ReturnBool, Handler: fnXOR},
	{Name: "NOT", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgBool}, Returns: ReturnBool, Handler: func(_ *CallContext, args []Arg) Value {
		return NewBoolValue(!args[0].Value.Bool)
	}},
	{Name: "TRUE", MinArgs: 0, MaxArgs: 0, Returns: ReturnBool, Handler: func(*CallContext, []Arg) Value { return NewBoolValue(true) }},
	{Name: "FALSE", MinArgs: 0, MaxArgs: 0, Returns: ReturnBool, Handler: func(*CallContext, []Arg) Value { return NewBoolValue(false) }},
}

// branch evaluates an optional result argument; an omitted one is the
// value def.
func branch(t Thunk, def Value) Arg {
	if t.Missing() {
		return valueArg(def)
	}
	return t.Eval()
}

// fnIF evaluates only the branch it takes. An array condition selects
// element-wise, evaluating both branches once.
func fnIF(ctx *CallContext, args []Thunk) Arg {
	cond := args[0].Value()
	if cond.Type == ValueArray {
		yes := ctx.Value(branch(thunkAt(args, 1), NewBoolValue(true)))
		no := ctx.Value(branch(thunkAt(args, 2), NewBoolValue(false)))
		rows, cols := cond.Dims()
		yr, yc := yes.Dims()
		nr, nc := no.Dims()
		rows, cols = max(rows, yr, nr), max(cols, yc, nc)
		return valueArg(newMatrix(rows, cols, func(r, c int) Value {
			b := cond.at(r, c).ToBool()
			switch {
			case b.Type == ValueError:
				return b
			case b.Bool:
				return yes.at(r, c)
			}
			return no.at(r, c)
		}))
	}
	b := cond.ToBool()
	if b.Type == ValueError {
		return valueArg(b)
	}
	if b.Bool {
		return branch(thunkAt(args, 1), NewBoolValue(true))
	}
	if len(args) < 3 {
		return valueArg(NewBoolValue(false))
	}
	return branch(args[2], NewNumberValue(0))
}

func thunkAt(args []Thunk, i int) Thunk {
	if i < len(args) {
		return args[i]
	}
	return Thunk{missing: true}
}

func fnIFS(_ *CallContext, args []Thunk) Arg {
	if len(args)%2 != 0 {
		return valueArg(NewErrorValue(ErrorVALUE))
	}
	for i := 0; i < len(args); i += 2 {
		b := args[i].Value().scalar().ToBool()
		if b.Type == ValueError {
			return valueArg(b)
		}
		if b.Bool {
			return branch(args[i+1], NewNumberValue(0))
		}
	}
	return valueArg(NewErrorValue(ErrorNA))
}

// errorFallback builds IFERROR and IFNA: the fallback is evaluated only
// when some element of the value is caught.
func errorFallback(caught func(Value) bool) func(*CallContext, []Thunk) Arg {
	return func(ctx *CallContext, args []Thunk) Arg {
		first := args[0].Eval()
		v := ctx.Value(first)
		if v.Type != ValueArray {
			if caught(v) {
				return branch(args[1], NewNumberValue(0))
			}
			return first
		}
		var alt *Value
		rows, cols := v.Dims()
		return valueArg(newMatrix(rows, cols, func(r, c int) Value {
			el := v.Array[r][c]
			if !caught(el) {
				return el
			}
			if alt == nil {
				fallback := ctx.Value(branch(args[1], NewNumberValue(0)))
				alt = &fallback
			}
			return alt.at(r, c)
		}))
	}
}

// junction builds AND (stop at the first FALSE) and OR (stop at the first
// TRUE). Text and blanks inside references are skipped; no logical value
// at all is #VALUE!.
func junction(or bool) func(*CallContext, []Thunk) Arg {
	return func(ctx *CallContext, args []Thunk) Arg {
		seen := false
		for _, t := range args {
			if t.Missing() {
				continue
			}
			a := t.Eval()
			if a.Ref == nil && a.Value.Type != ValueArray {
				b := a.Value.ToBool()
				if b.Type == ValueError {
					return valueArg(b)
				}
				seen = true
				if b.Bool == or {
					return valueArg(NewBoolValue(or))
				}
				continue
			}
			for _, g := range ctx.Grids(a) {
				var failed Value
				decided := false
				each(g, func(_, _ int, v Value) bool {
					switch v.Type {
					case ValueError:
						failed = v
						return false
					case ValueNumber, ValueBool:
						seen = true
						if v.ToBool().Bool == or {
							decided = true
							return false
						}
					}
					return true
				})
				if failed.IsError() {
					return valueArg(failed)
				}
				if decided {
					return valueArg(NewBoolValue(or))
				}
			}
		}
		if !seen {
			return valueArg(NewErrorValue(ErrorVALUE))
		}
		return valueArg(NewBoolValue(!or))
	}
}

func fnXOR(ctx *CallContext, args []Arg) Value {
	trues, seen := 0, false
	for _, a := range args {
		if a.Missing {
			continue
		}
		if a.Ref == nil && a.Value.Type != ValueArray {
			b := a.Value.ToBool()
			if b.Type == ValueError {
				return b
			}
			seen = true
			trues += boolInt(b.Bool)
			continue
		}
		for _, g := range ctx.Grids(a) {
			var failed Value
			each(g, func(_, _ int, v Value) bool {
				switch v.Type {
				case ValueError:
					failed = v
					return false
				case ValueNumber, ValueBool:
					seen = true
					trues += boolInt(v.ToBool().Bool)
				}
				return true
			})
			if failed.IsError() {
				return failed
			}
		}
	}
	if !seen {
		return NewErrorValue(ErrorVALUE)
	}
	return NewBoolValue(trues%2 == 1)
}

func fnSWITCH(ctx *CallContext, args []Thunk) Arg {
	subject := args[0].Value().scalar()
	if subject.Type == ValueError {
		return valueArg(subject)
	}
	rest := args[1:]
	for len(rest) >= 2 {
		candidate := rest[0].Value().scalar()
		if candidate.Type == ValueError {
			return valueArg(candidate)
		}
		if subject.Type == candidate.Type || subject.Type == ValueEmpty || candidate.Type == ValueEmpty {
			if compareValues(subject, candidate, ctx.vm.e.text) == 0 {
				return branch(rest[1], NewNumberValue(0))
			}
		}
		rest = rest[2:]
	}
	if len(rest) == 1 {
		return branch(rest[0], NewNumberValue(0))
	}
	return valueArg(NewErrorValue(ErrorNA))
}

func fnCHOOSE(ctx *CallContext, args []Thunk) Arg {
	idx := args[0].Value()
	if idx.Type == ValueArray {
		rows, cols := idx.Dims()
		return valueArg(newMatrix(rows, cols, func(r, c int) Value {
			return ctx.Scalar(choose(idx.Array[r][c], args))
		}))
	}
	return choose(idx, args)
}

func choose(idx Value, args []Thunk) Arg {
	n := idx.ToNumber()
	if n.Type == ValueError {
		return valueArg(n)
	}
	i := int(n.Number)
	if i < 1 || i >= len(args) {
		return valueArg(NewErrorValue(ErrorVALUE))
	}
	return branch(args[i], NewNumberValue(0))
}
