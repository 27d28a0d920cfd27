// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"fmt"
	"strings"
)

// RegisterFunction provides a function to add a host function to the
// engine. Built-in functions cannot be replaced. Compiled formulas are
// dropped and formulas calling the function are rebound, so cells that
// showed #NAME? pick it up on the next Recalculate.
//
// Host functions run on the serial worker unless ThreadSafe is set.
//
//	err := e.RegisterFunction(xlcalc.FunctionDescriptor{
//	    Name:    "DOUBLE",
//	    MinArgs: 1, MaxArgs: 1,
//	    ArgTypes: []xlcalc.ArgType{xlcalc.ArgNumber},
//	    Handler: func(_ *xlcalc.CallContext, args []xlcalc.Arg) xlcalc.Value {
//	        return xlcalc.NewNumberValue(2 * args[0].Value.Number)
//	    },
//	})
func (e *Engine) RegisterFunction(fd FunctionDescriptor) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.registry.Register(fd); err != nil {
		return err
	}
	e.evictPrograms(strings.ToUpper(fd.Name))
	return e.rebind(func(fc *formulaCell) bool {
		return len(fc.names) > 0 || callsFunction(fc.node, fd.Name)
	})
}

// evictPrograms drops the cached programs that calling name could change.
func (e *Engine) evictPrograms(name string) {
	var stale []string
	e.programs.Range(func(key string, p *program) bool {
		if p.dependsOnFunction(name) {
			stale = append(stale, key)
		}
		return true
	})
	for _, key := range stale {
		e.programs.Delete(key)
	}
}

// callsFunction reports whether a tree calls the named function.
func callsFunction(n Node, name string) bool {
	found := false
	WalkNodes(n, func(n Node) bool {
		if f, ok := n.(*FunctionNode); ok && strings.EqualFold(f.Name, name) {
			found = true
		}
		return !found
	})
	return found
}

// WorkflowVariable is one named input of a workflow run.
type WorkflowVariable struct {
	Name  string
	Value string
}

// WorkflowRunner starts a remote workflow and returns its textual result.
type WorkflowRunner interface {
	RunWorkflow(workflowID string, variables []WorkflowVariable) (string, error)
}

// WorkflowFunction returns a host function that hands worksheet data to a
// workflow runner:
//
//	NAME(workflow_id, [value_range], [key_range])
//
// Each non-blank value becomes a variable named by the key above it. The
// keys come from key_range when given; otherwise from the first row of
// value_range when it starts on row 1, and from row 1 of the sheet in the
// same columns when it does not. key_range without value_range is
// #VALUE!. A failing run is #VALUE! and is logged.
func WorkflowFunction(name string, runner WorkflowRunner) FunctionDescriptor {
	return FunctionDescriptor{
		Name:     name,
		MinArgs:  1,
		MaxArgs:  3,
		ArgTypes: []ArgType{ArgText, ArgRef, ArgRef},
		Returns:  ReturnText,
		Handler: func(ctx *CallContext, args []Arg) Value {
			return runWorkflow(ctx, runner, args)
		},
	}
}

func runWorkflow(ctx *CallContext, runner WorkflowRunner, args []Arg) Value {
	workflowID := args[0].Value.Text
	hasValues := len(args) > 1 && !args[1].Missing
	hasKeys := len(args) > 2 && !args[2].Missing
	if hasKeys && !hasValues {
		return NewErrorValue(ErrorVALUE, "key range requires a value range")
	}
	var variables []WorkflowVariable
	if hasValues {
		keys, rows, kind := workflowTable(ctx, args[1], args, hasKeys)
		if kind != ErrorNone {
			return NewErrorValue(kind)
		}
		for _, row := range rows {
			for i, v := range row {
				if i >= len(keys) || keys[i] == "" || v.Type == ValueEmpty {
					continue
				}
				variables = append(variables, WorkflowVariable{Name: keys[i], Value: v.String()})
			}
		}
	}
	result, err := runner.RunWorkflow(workflowID, variables)
	if err != nil {
		ctx.vm.e.log.Warn("workflow run failed", "workflow", workflowID, "cell", ctx.vm.e.cellLabel(ctx.vm.sheet, ctx.vm.home), "error", err)
		return NewErrorValue(ErrorVALUE, fmt.Sprintf("%s: %v", ctx.fn.Name, err))
	}
	return NewStringValue(result)
}

// workflowTable splits the value range into keys and data rows.
func workflowTable(ctx *CallContext, values Arg, args []Arg, hasKeys bool) ([]string, [][]Value, ErrorKind) {
	g, kind := ctx.Grid(values)
	if kind != ErrorNone {
		return nil, nil, kind
	}
	matrix := gridRows(g)
	rowText := func(row []Value) []string {
		out := make([]string, len(row))
		for i, v := range row {
			out[i] = v.String()
		}
		return out
	}
	if hasKeys {
		kg, kind := ctx.Grid(args[2])
		if kind != ErrorNone {
			return nil, nil, kind
		}
		keyRows := gridRows(kg)
		if len(keyRows) == 0 {
			return nil, matrix, ErrorNone
		}
		return rowText(keyRows[0]), matrix, ErrorNone
	}
	area := values.Ref.Areas
	if len(area) == 1 && area[0].From.Row > 1 {
		keys := make([]string, 0, area[0].Cols())
		for c := area[0].From.Col; c <= area[0].To.Col; c++ {
			keys = append(keys, ctx.vm.cellValue(area[0].Sheet, CellAddr{Row: 1, Col: c}).String())
		}
		return keys, matrix, ErrorNone
	}
	if len(matrix) == 0 {
		return nil, nil, ErrorNone
	}
	return rowText(matrix[0]), matrix[1:], ErrorNone
}

// gridRows reads a grid up to its stored extent.
func gridRows(g Grid) [][]Value {
	rows, cols := g.Extent()
	out := make([][]Value, rows)
	for r := range out {
		out[r] = make([]Value, cols)
		for c := range out[r] {
			out[r][c] = g.At(r, c)
		}
	}
	return out
}
