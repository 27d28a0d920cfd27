// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls map[string][]WorkflowVariable
	err   error
}

func (r *fakeRunner) RunWorkflow(workflowID string, variables []WorkflowVariable) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	if r.calls == nil {
		r.calls = make(map[string][]WorkflowVariable)
	}
	r.calls[workflowID] = variables
	return "done:" + workflowID, nil
}

func TestRegisterFunction(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.SetCellValue("Sheet1", "A1", 21))
	require.NoError(t, e.SetCellFormula("Sheet1", "B1", "=DOUBLE(A1)"))
	recalc(t, e)
	assert.Equal(t, ErrorNAME, valueOf(t, e, "Sheet1", "B1").Err)

	require.NoError(t, e.RegisterFunction(FunctionDescriptor{
		Name:       "double",
		MinArgs:    1,
		MaxArgs:    1,
		ArgTypes:   []ArgType{ArgNumber},
		Returns:    ReturnNumber,
		ThreadSafe: true,
		Handler: func(_ *CallContext, args []Arg) Value {
			return NewNumberValue(2 * args[0].Value.Number)
		},
	}))
	assert.Equal(t, 1, e.PendingCount())
	recalc(t, e)
	assert.Equal(t, "42", textOf(t, e, "Sheet1", "B1"))

	t.Run("array arguments are lifted", func(t *testing.T) {
		v, err := e.EvalFormula("Sheet1", "H1", "=SUM(DOUBLE({1,2,3}))")
		require.NoError(t, err)
		assert.Equal(t, "12", v.String())
	})
	t.Run("arity is checked", func(t *testing.T) {
		v, err := e.EvalFormula("Sheet1", "H1", "=DOUBLE(1,2)")
		require.NoError(t, err)
		assert.Equal(t, ErrorVALUE, v.Err)
	})
	t.Run("invalid descriptors", func(t *testing.T) {
		handler := func(*CallContext, []Arg) Value { return EmptyValue() }
		assert.Equal(t, ErrFunctionExists{Name: "SUM"}, e.RegisterFunction(FunctionDescriptor{Name: "sum", Handler: handler}))
		assert.ErrorIs(t, e.RegisterFunction(FunctionDescriptor{Name: "BAD NAME", Handler: handler}), ErrFunctionName)
		assert.ErrorIs(t, e.RegisterFunction(FunctionDescriptor{Name: "NOHANDLER"}), ErrFunctionName)
		assert.ErrorIs(t, e.RegisterFunction(FunctionDescriptor{Name: "SKEWED", MinArgs: 2, MaxArgs: 1, Handler: handler}), ErrFunctionArity)
	})
	t.Run("host functions can be replaced", func(t *testing.T) {
		require.NoError(t, e.RegisterFunction(FunctionDescriptor{
			Name: "DOUBLE", MinArgs: 1, MaxArgs: 1, ArgTypes: []ArgType{ArgNumber},
			Handler: func(_ *CallContext, args []Arg) Value {
				return NewNumberValue(-args[0].Value.Number)
			},
		}))
		recalc(t, e)
		assert.Equal(t, "-21", textOf(t, e, "Sheet1", "B1"))
	})
}

func TestWorkflowFunction(t *testing.T) {
	runner := &fakeRunner{}
	e := NewEngine()
	require.NoError(t, e.RegisterFunction(WorkflowFunction("RUNFLOW", runner)))
	require.NoError(t, e.SetCellValues([]CellUpdate{
		{Sheet: "Sheet1", Cell: "A1", Value: "city"},
		{Sheet: "Sheet1", Cell: "B1", Value: "temp"},
		{Sheet: "Sheet1", Cell: "A2", Value: "Paris"},
		{Sheet: "Sheet1", Cell: "B2", Value: 21},
		{Sheet: "Sheet1", Cell: "D1", Value: "k1"},
		{Sheet: "Sheet1", Cell: "E1", Value: "k2"},
	}))
	require.NoError(t, e.SetCellFormulas([]FormulaUpdate{
		{Sheet: "Sheet1", Cell: "G1", Formula: `=RUNFLOW("with-header",A1:B2)`},
		{Sheet: "Sheet1", Cell: "G2", Formula: `=RUNFLOW("below-header",A2:B2)`},
		{Sheet: "Sheet1", Cell: "G3", Formula: `=RUNFLOW("keyed",A2:B2,D1:E1)`},
		{Sheet: "Sheet1", Cell: "G4", Formula: `=RUNFLOW("bare")`},
		{Sheet: "Sheet1", Cell: "G5", Formula: `=RUNFLOW("keys-only",,D1:E1)`},
	}))
	recalc(t, e)

	assert.Equal(t, "done:with-header", textOf(t, e, "Sheet1", "G1"))
	assert.Equal(t, "done:bare", textOf(t, e, "Sheet1", "G4"))
	assert.Equal(t, ErrorVALUE, valueOf(t, e, "Sheet1", "G5").Err)

	want := []WorkflowVariable{{Name: "city", Value: "Paris"}, {Name: "temp", Value: "21"}}
	assert.Equal(t, want, runner.calls["with-header"])
	assert.Equal(t, want, runner.calls["below-header"])
	assert.Equal(t, []WorkflowVariable{{Name: "k1", Value: "Paris"}, {Name: "k2", Value: "21"}}, runner.calls["keyed"])
	assert.Empty(t, runner.calls["bare"])
	assert.NotContains(t, runner.calls, "keys-only")

	t.Run("failing run", func(t *testing.T) {
		runner.err = errors.New("workflow unavailable")
		require.NoError(t, e.SetCellValue("Sheet1", "B2", 22))
		recalc(t, e)
		assert.Equal(t, ErrorVALUE, valueOf(t, e, "Sheet1", "G1").Err)
		assert.Equal(t, "done:bare", textOf(t, e, "Sheet1", "G4"))
	})
}

func TestRegisterFunctionEvictsDependentPrograms(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.SetCellFormula("Sheet1", "A1", "=1+1"))
	require.NoError(t, e.SetCellFormula("Sheet1", "A2", "=ABS(-3)"))
	require.NoError(t, e.SetCellFormula("Sheet1", "B1", "=TRIPLE(2)"))
	recalc(t, e)
	assert.Equal(t, 3, e.programs.Len())

	require.NoError(t, e.RegisterFunction(FunctionDescriptor{
		Name:     "TRIPLE",
		MinArgs:  1,
		MaxArgs:  1,
		ArgTypes: []ArgType{ArgNumber},
		Returns:  ReturnNumber,
		Handler: func(_ *CallContext, args []Arg) Value {
			return NewNumberValue(3 * args[0].Value.Number)
		},
	}))
	assert.Equal(t, 2, e.programs.Len())
	recalc(t, e)
	assert.Equal(t, "6", textOf(t, e, "Sheet1", "B1"))
	assert.Equal(t, 3, e.programs.Len())

	require.NoError(t, e.ClearCell("Sheet1", "A2"))
	assert.Equal(t, 2, e.programs.Len())
	_, misses := e.programs.Stats()
	assert.EqualValues(t, 4, misses)
}
