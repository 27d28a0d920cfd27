// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// countingFunction registers a one-argument host function that returns its
// argument and counts its calls.
func countingFunction(t *testing.T, e *Engine, name string, threadSafe bool) *atomic.Int64 {
	t.Helper()
	var calls atomic.Int64
	require.NoError(t, e.RegisterFunction(FunctionDescriptor{
		Name:       name,
		MinArgs:    1,
		MaxArgs:    1,
		ArgTypes:   []ArgType{ArgNumber},
		Returns:    ReturnNumber,
		ThreadSafe: threadSafe,
		Handler: func(_ *CallContext, args []Arg) Value {
			calls.Add(1)
			return NewNumberValue(args[0].Value.Number)
		},
	}))
	return &calls
}

func isDirty(t *testing.T, e *Engine, sheet, cell string) bool {
	t.Helper()
	id, addr, err := e.locate(sheet, cell)
	require.NoError(t, err)
	return e.graph.IsDirty(id, addr)
}

func TestVolatileFunctionsFollowTheClock(t *testing.T) {
	clk := &fakeClock{now: time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)}
	e := NewEngine(Options{Clock: clk, DynamicArrays: true})
	require.NoError(t, e.SetCellFormula("Sheet1", "A1", "=YEAR(NOW())"))
	require.NoError(t, e.SetCellFormula("Sheet1", "A2", "=A1+1"))
	recalc(t, e)
	assert.Equal(t, "2024", textOf(t, e, "Sheet1", "A1"))
	assert.Equal(t, "2025", textOf(t, e, "Sheet1", "A2"))

	clk.set(time.Date(2030, 6, 15, 12, 0, 0, 0, time.UTC))
	recalc(t, e)
	assert.Equal(t, "2030", textOf(t, e, "Sheet1", "A1"))
	assert.Equal(t, "2031", textOf(t, e, "Sheet1", "A2"))
}

func TestRecalculateOnlyDirtyFormulas(t *testing.T) {
	e := NewEngine()
	calls := countingFunction(t, e, "PROBE", true)
	require.NoError(t, e.SetCellValue("Sheet1", "A1", 1))
	require.NoError(t, e.SetCellValue("Sheet1", "C1", 5))
	require.NoError(t, e.SetCellFormula("Sheet1", "B1", "=PROBE(A1)"))
	require.NoError(t, e.SetCellFormula("Sheet1", "D1", "=C1*2"))
	recalc(t, e)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, "10", textOf(t, e, "Sheet1", "D1"))

	require.NoError(t, e.SetCellValue("Sheet1", "C1", 6))
	assert.Equal(t, 1, e.PendingCount())
	assert.True(t, isDirty(t, e, "Sheet1", "D1"))
	assert.False(t, isDirty(t, e, "Sheet1", "B1"))
	assert.False(t, isDirty(t, e, "Sheet1", "Z99"))
	recalc(t, e)
	assert.False(t, isDirty(t, e, "Sheet1", "D1"))
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, "12", textOf(t, e, "Sheet1", "D1"))
	assert.Equal(t, 0, e.PendingCount())

	require.NoError(t, e.SetCellValue("Sheet1", "A1", 2))
	recalc(t, e)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, "2", textOf(t, e, "Sheet1", "B1"))
}

func TestRecalculateDiamondEvaluatesOnce(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			e := NewEngine(Options{Workers: workers, DynamicArrays: true})
			calls := countingFunction(t, e, "PROBE", true)
			require.NoError(t, e.SetCellValue("Sheet1", "A1", 1))
			require.NoError(t, e.SetCellFormulas([]FormulaUpdate{
				{Sheet: "Sheet1", Cell: "E1", Formula: "=PROBE(C1+D1)"},
				{Sheet: "Sheet1", Cell: "B1", Formula: "=A1*10"},
				{Sheet: "Sheet1", Cell: "C1", Formula: "=B1+1"},
				{Sheet: "Sheet1", Cell: "D1", Formula: "=B1+2"},
			}))
			recalc(t, e)
			assert.EqualValues(t, 1, calls.Load())
			assert.Equal(t, "23", textOf(t, e, "Sheet1", "E1"))

			require.NoError(t, e.SetCellValue("Sheet1", "A1", 2))
			recalc(t, e)
			assert.EqualValues(t, 2, calls.Load())
			assert.Equal(t, "43", textOf(t, e, "Sheet1", "E1"))
		})
	}
}

func TestRecalculateLongChain(t *testing.T) {
	e := NewEngine(Options{Workers: 4, DynamicArrays: true})
	require.NoError(t, e.SetCellValue("Sheet1", "A1", 1))
	updates := make([]FormulaUpdate, 0, 199)
	for row := 2; row <= 200; row++ {
		updates = append(updates, FormulaUpdate{Sheet: "Sheet1", Cell: fmt.Sprintf("A%d", row), Formula: fmt.Sprintf("=A%d+1", row-1)})
	}
	require.NoError(t, e.SetCellFormulas(updates))
	recalc(t, e)
	assert.Equal(t, "200", textOf(t, e, "Sheet1", "A200"))

	require.NoError(t, e.SetCellValue("Sheet1", "A1", 101))
	recalc(t, e)
	assert.Equal(t, "300", textOf(t, e, "Sheet1", "A200"))
}

func TestRecalculateParallelIndependentFormulas(t *testing.T) {
	e := NewEngine(Options{Workers: 8, DynamicArrays: true})
	var updates []FormulaUpdate
	for row := 1; row <= 100; row++ {
		require.NoError(t, e.SetCellValue("Sheet1", fmt.Sprintf("A%d", row), row))
		updates = append(updates, FormulaUpdate{Sheet: "Sheet1", Cell: fmt.Sprintf("B%d", row), Formula: fmt.Sprintf("=A%d*A%d", row, row)})
	}
	require.NoError(t, e.SetCellFormulas(updates))
	require.NoError(t, e.SetCellFormula("Sheet1", "C1", "=SUM(B1:B100)"))
	recalc(t, e)
	assert.Equal(t, "338350", textOf(t, e, "Sheet1", "C1"))
	for _, row := range []int{1, 37, 100} {
		assert.Equal(t, fmt.Sprint(row*row), textOf(t, e, "Sheet1", fmt.Sprintf("B%d", row)))
	}
}

func TestHostFunctionsRunSerially(t *testing.T) {
	e := NewEngine(Options{Workers: 8, DynamicArrays: true})
	var active, peak atomic.Int64
	require.NoError(t, e.RegisterFunction(FunctionDescriptor{
		Name:     "SLOWLY",
		MinArgs:  1,
		MaxArgs:  1,
		ArgTypes: []ArgType{ArgNumber},
		Returns:  ReturnNumber,
		Handler: func(_ *CallContext, args []Arg) Value {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
			return NewNumberValue(args[0].Value.Number + 1)
		},
	}))
	var updates []FormulaUpdate
	for row := 1; row <= 40; row++ {
		updates = append(updates,
			FormulaUpdate{Sheet: "Sheet1", Cell: fmt.Sprintf("A%d", row), Formula: fmt.Sprintf("=SLOWLY(%d)", row)},
			FormulaUpdate{Sheet: "Sheet1", Cell: fmt.Sprintf("B%d", row), Formula: fmt.Sprintf("=A%d*2", row)},
		)
	}
	require.NoError(t, e.SetCellFormulas(updates))
	recalc(t, e)
	assert.EqualValues(t, 1, peak.Load())
	assert.Equal(t, "82", textOf(t, e, "Sheet1", "B40"))
	assert.Equal(t, "4", textOf(t, e, "Sheet1", "B1"))
}

// randomEdits drives an engine through a seeded mix of constants, formulas
// and clears over A1:D8, recalculating now and then. Formulas that would
// close a cycle are rejected and skipped.
func randomEdits(t *testing.T, e *Engine, seed int64, steps int) {
	t.Helper()
	rnd := rand.New(rand.NewSource(seed))
	cell := func() string { return fmt.Sprintf("%c%d", 'A'+rnd.Intn(4), 1+rnd.Intn(8)) }
	area := func() string {
		c1, c2 := rnd.Intn(4), rnd.Intn(4)
		r1, r2 := 1+rnd.Intn(8), 1+rnd.Intn(8)
		return fmt.Sprintf("%c%d:%c%d", 'A'+min(c1, c2), min(r1, r2), 'A'+max(c1, c2), max(r1, r2))
	}
	for i := 0; i < steps; i++ {
		target := cell()
		switch rnd.Intn(6) {
		case 0:
			require.NoError(t, e.SetCellValue("Sheet1", target, rnd.Intn(10)))
		case 1:
			require.NoError(t, e.ClearCell("Sheet1", target))
		default:
			formula := []string{
				fmt.Sprintf("=%s+%d", cell(), rnd.Intn(5)),
				fmt.Sprintf("=%s*2-%s", cell(), cell()),
				fmt.Sprintf("=SUM(%s)", area()),
				fmt.Sprintf("=MAX(%s,%s)+1", area(), cell()),
			}[rnd.Intn(4)]
			err := e.SetCellFormula("Sheet1", target, formula)
			var cycleErr *CircularReferenceError
			if err != nil && !errors.As(err, &cycleErr) {
				require.NoError(t, err, "%s %s", target, formula)
			}
		}
		if rnd.Intn(5) == 0 {
			recalc(t, e)
		}
	}
}

// assertChainSound checks that every formula comes after each formula or
// spilled cell it reads, directly or through a range.
func assertChainSound(t *testing.T, e *Engine) {
	t.Helper()
	g := e.graph
	chain, err := g.CalcChain()
	require.NoError(t, err)
	pos := make(map[CellID]int, len(chain))
	for i, id := range chain {
		pos[id] = i
	}
	for id := range g.formulas {
		at, ok := pos[id]
		require.True(t, ok, "formula missing from the chain")
		for p := range g.precedents[id] {
			if g.isNode(p) {
				assert.Less(t, pos[p], at)
			}
		}
		for _, rid := range g.rangeDeps[id] {
			n := g.ranges.get(rid)
			require.NotNil(t, n)
			for other := range g.formulas {
				if sheet, addr := g.arena.key(other); n.Area.Contains(sheet, addr) {
					assert.Less(t, pos[other], at)
				}
			}
		}
	}
}

func TestCalcChainStaysTopological(t *testing.T) {
	for _, seed := range []int64{1, 7, 42} {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			e := NewEngine()
			for round := 0; round < 5; round++ {
				randomEdits(t, e, seed*10+int64(round), 40)
				assertChainSound(t, e)
			}
		})
	}
}

func TestIncrementalRecalculationMatchesFreshEngine(t *testing.T) {
	for _, workers := range []int{1, 4} {
		for _, seed := range []int64{3, 11, 2024} {
			t.Run(fmt.Sprintf("workers=%d/seed=%d", workers, seed), func(t *testing.T) {
				e := NewEngine(Options{Workers: workers, DynamicArrays: true})
				randomEdits(t, e, seed, 150)
				recalc(t, e)
				assert.Zero(t, e.PendingCount())

				fresh := NewEngine(Options{Workers: workers, DynamicArrays: true})
				var formulas []FormulaUpdate
				for col := 'A'; col <= 'D'; col++ {
					for row := 1; row <= 8; row++ {
						ref := fmt.Sprintf("%c%d", col, row)
						if f := formulaOf(t, e, "Sheet1", ref); f != "" {
							formulas = append(formulas, FormulaUpdate{Sheet: "Sheet1", Cell: ref, Formula: f})
							continue
						}
						require.NoError(t, fresh.SetCellValue("Sheet1", ref, valueOf(t, e, "Sheet1", ref)))
					}
				}
				require.NoError(t, fresh.SetCellFormulas(formulas))
				recalc(t, fresh)

				for col := 'A'; col <= 'D'; col++ {
					for row := 1; row <= 8; row++ {
						ref := fmt.Sprintf("%c%d", col, row)
						assert.Equal(t, valueOf(t, fresh, "Sheet1", ref), valueOf(t, e, "Sheet1", ref), ref)
					}
				}
			})
		}
	}
}
