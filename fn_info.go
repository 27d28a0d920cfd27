// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"strings"
)

var infoFunctions = []FunctionDescriptor{
	{Name: "ISBLANK", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgErrorOK}, Returns: ReturnBool, Handler: is(func(v Value) bool { return v.Type == ValueEmpty })},
	{Name: "ISERROR", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgErrorOK}, Returns: ReturnBool, Handler: is(func(v Value) bool { return v.Type == ValueError })},
	{Name: "ISERR", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgErrorOK}, Returns: ReturnBool, Handler: is(func(v Value) bool { return v.Type == ValueError && v.Err != ErrorNA })},
	{Name: "ISNA", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgErrorOK}, Returns: ReturnBool, Handler: is(func(v Value) bool { return v.Type == ValueError && v.Err == ErrorNA })},
	{Name: "ISNUMBER", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgErrorOK}, Returns: ReturnBool, Handler: is(func(v Value) bool { return v.Type == ValueNumber })},
	{Name: "ISTEXT", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgErrorOK}, Returns: ReturnBool, Handler: is(func(v Value) bool { return v.Type == ValueString })},
	{Name: "ISNONTEXT", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgErrorOK}, Returns: ReturnBool, Handler: is(func(v Value) bool { return v.Type != ValueString })},
	{Name: "ISLOGICAL", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgErrorOK}, Returns: ReturnBool, Handler: is(func(v Value) bool { return v.Type == ValueBool })},
	{Name: "ISEVEN", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgNumber}, Returns: ReturnBool, Handler: func(_ *CallContext, args []Arg) Value {
		return NewBoolValue(int64(args[0].Value.Number)%2 == 0)
	}},
	{Name: "ISODD", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgNumber}, Returns: ReturnBool, Handler: func(_ *CallContext, args []Arg) Value {
		return NewBoolValue(int64(args[0].Value.Number)%2 != 0)
	}},
	{Name: "ISREF", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgRaw}, Returns: ReturnBool, Handler: func(_ *CallContext, args []Arg) Value {
		return NewBoolValue(args[0].Ref != nil)
	}},
	{Name: "ISFORMULA", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgRef}, Returns: ReturnBool, Handler: fnISFORMULA},
	{Name: "NA", MinArgs: 0, MaxArgs: 0, Returns: ReturnAny, Handler: func(*CallContext, []Arg) Value { return NewErrorValue(ErrorNA) }},
	{Name: "ERROR.TYPE", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgErrorOK}, Returns: ReturnNumber, Handler: func(_ *CallContext, args []Arg) Value {
		if v := args[0].Value; v.Type == ValueError {
			return NewNumberValue(float64(v.Err))
		}
		return NewErrorValue(ErrorNA)
	}},
	{Name: "TYPE", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgRaw}, Returns: ReturnNumber, Handler: fnTYPE},
	{Name: "N", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgAny}, Returns: ReturnNumber, Handler: func(_ *CallContext, args []Arg) Value {
		switch v := args[0].Value; v.Type {
		case ValueNumber:
			return v
		case ValueBool:
			return NewNumberValue(float64(boolInt(v.Bool)))
		}
		return NewNumberValue(0)
	}},
	{Name: "SHEETS", MinArgs: 0, MaxArgs: 0, Returns: ReturnNumber, Handler: func(ctx *CallContext, _ []Arg) Value {
		return NewNumberValue(float64(len(ctx.vm.e.wb.sheetList())))
	}},
	{Name: "INFO", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgText}, Returns: ReturnAny, Volatile: true, Handler: fnINFO},
	{Name: "CELL", MinArgs: 1, MaxArgs: 2, ArgTypes: []ArgType{ArgText, ArgRef}, Returns: ReturnAny, Volatile: true, Handler: fnCELL},
}

// serialFunctions talk to the host and are never run on the parallel
// workers.
var serialFunctions = []FunctionDescriptor{
	{Name: "RTD", MinArgs: 3, MaxArgs: 255, ArgTypes: []ArgType{ArgText}, Returns: ReturnAny, Volatile: true, Handler: fnRTD},
}

func is(pred func(Value) bool) func(*CallContext, []Arg) Value {
	return func(_ *CallContext, args []Arg) Value {
		return NewBoolValue(pred(args[0].Value))
	}
}

func fnISFORMULA(ctx *CallContext, args []Arg) Value {
	ref := args[0].Ref
	if len(ref.Areas) == 0 {
		return NewBoolValue(false)
	}
	area := ref.Areas[0]
	rec, _ := ctx.vm.e.store.Get(area.Sheet, area.From)
	return NewBoolValue(rec.formula != nil)
}

func fnTYPE(ctx *CallContext, args []Arg) Value {
	v := args[0].Value
	if args[0].Ref != nil {
		if !args[0].Ref.isCell() {
			return NewNumberValue(64)
		}
		v = ctx.Value(args[0])
	}
	switch v.Type {
	case ValueString:
		return NewNumberValue(2)
	case ValueBool:
		return NewNumberValue(4)
	case ValueError:
		return NewNumberValue(16)
	case ValueArray:
		return NewNumberValue(64)
	}
	return NewNumberValue(1)
}

func fnINFO(ctx *CallContext, args []Arg) Value {
	switch strings.ToLower(args[0].Value.Text) {
	case "recalc":
		return NewStringValue("Automatic")
	case "numfile":
		return NewNumberValue(float64(len(ctx.vm.e.wb.sheetList())))
	case "system":
		return NewStringValue("pcdos")
	case "release":
		return NewStringValue("16.0")
	case "origin":
		return NewStringValue("$A:$A$1")
	}
	return NewErrorValue(ErrorVALUE)
}

// fnCELL reports on the top-left cell of a reference, the calling cell by
// default.
func fnCELL(ctx *CallContext, args []Arg) Value {
	sheet, addr := ctx.vm.sheet, ctx.Home()
	if len(args) > 1 && !args[1].Missing {
		ref := args[1].Ref
		if len(ref.Areas) == 0 {
			return NewErrorValue(ErrorVALUE)
		}
		sheet, addr = ref.Areas[0].Sheet, ref.Areas[0].From
	}
	v := ctx.vm.e.store.Value(sheet, addr)
	switch strings.ToLower(args[0].Value.Text) {
	case "address":
		name, _ := CoordinatesToCellName(addr.Col, addr.Row, true)
		if sheet != ctx.vm.sheet {
			return NewStringValue(formatSheetPrefix(&SheetPrefix{Sheet: ctx.vm.e.wb.sheetName(sheet)}) + "!" + name)
		}
		return NewStringValue(name)
	case "row":
		return NewNumberValue(float64(addr.Row))
	case "col":
		return NewNumberValue(float64(addr.Col))
	case "contents":
		if v.Type == ValueEmpty {
			return NewNumberValue(0)
		}
		return v
	case "type":
		switch v.Type {
		case ValueEmpty:
			return NewStringValue("b")
		case ValueString:
			return NewStringValue("l")
		}
		return NewStringValue("v")
	case "sheet":
		return NewNumberValue(float64(inStrSlice(ctx.vm.e.wb.sheetList(), ctx.vm.e.wb.sheetName(sheet)) + 1))
	}
	return NewErrorValue(ErrorVALUE)
}

// fnRTD fetches a real-time value from the host. Without a host, or when
// the host fails, the value is #N/A.
func fnRTD(ctx *CallContext, args []Arg) Value {
	host := ctx.vm.e.opts.RTD
	if host == nil {
		return NewErrorValue(ErrorNA, "no real-time data server")
	}
	topics := make([]string, 0, len(args)-2)
	for _, a := range args[2:] {
		topics = append(topics, a.Value.Text)
	}
	v, err := host.RealTimeData(args[0].Value.Text, args[1].Value.Text, topics)
	if err != nil {
		ctx.vm.e.log.Warn("real-time data request failed", "progID", args[0].Value.Text, "error", err)
		return NewErrorValue(ErrorNA, err.Error())
	}
	return v.scalar()
}
