// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
)

// slowFormulaInfo records a formula that took longer than the threshold.
type slowFormulaInfo struct {
	cell     string
	duration time.Duration
	formula  string
}

// scheduler executes one pass over the dirty formulas. A formula becomes
// ready once every dirty formula it reads has finished; ready formulas are
// handed to the worker pool, except those that call a function which is
// not thread-safe, or read such a formula, which all go to one serial
// worker.
type scheduler struct {
	e               *Engine
	g               *DependencyGraph
	order           []CellID
	readyQueue      chan CellID
	serialQueue     chan CellID
	dependencyCount map[CellID]int
	dependents      map[CellID][]CellID
	serial          map[CellID]bool
	mu              sync.Mutex
	completedCount  atomic.Int64
	queueClosed     atomic.Bool
	numWorkers      int
	log             hclog.Logger

	changes   []*spillChange
	changesMu sync.Mutex

	slowFormulas  []slowFormulaInfo
	slowFormulaMu sync.Mutex
}

// newScheduler builds the dependency counts of a pass. order holds the
// dirty formulas in calc chain order.
func newScheduler(e *Engine, order []CellID) *scheduler {
	s := &scheduler{
		e:               e,
		g:               e.graph,
		order:           order,
		dependencyCount: make(map[CellID]int, len(order)),
		dependents:      make(map[CellID][]CellID, len(order)),
		serial:          make(map[CellID]bool),
		numWorkers:      e.opts.Workers,
		log:             e.log.Named("scheduler"),
	}
	dirty := make(cellSet, len(order))
	for _, id := range order {
		dirty[id] = struct{}{}
	}
	for _, id := range order {
		for _, d := range s.dirtySuccessors(id, dirty) {
			s.dependents[id] = append(s.dependents[id], d)
			s.dependencyCount[d]++
		}
	}
	for _, id := range order {
		if s.g.formulas[id].serial {
			s.serial[id] = true
		}
		if s.serial[id] {
			for _, d := range s.dependents[id] {
				s.serial[d] = true
			}
		}
	}
	return s
}

// dirtySuccessors lists the dirty formulas reading id. Spill members that
// hold no formula are looked through, since their values arrive with
// their origin.
func (s *scheduler) dirtySuccessors(id CellID, dirty cellSet) []CellID {
	var out []CellID
	seen := cellSet{id: {}}
	work := []CellID{id}
	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]
		s.g.successors(cur, func(next CellID) bool {
			if _, ok := seen[next]; ok {
				return true
			}
			seen[next] = struct{}{}
			if _, ok := dirty[next]; ok {
				out = append(out, next)
				return true
			}
			if _, isFormula := s.g.formulas[next]; !isFormula {
				if _, member := s.g.spillOf[next]; member {
					work = append(work, next)
				}
			}
			return true
		})
	}
	return out
}

// Run executes the pass and returns the spill layout changes it found, in
// calc chain order.
func (s *scheduler) Run() []*spillChange {
	startTime := time.Now()
	total := len(s.order)
	s.log.Debug("recalculation pass started", "formulas", total, "workers", s.numWorkers, "serial", len(s.serial))
	if s.numWorkers <= 1 || total == 1 {
		for _, id := range s.order {
			s.executeFormula(id)
		}
	} else {
		s.readyQueue = make(chan CellID, total)
		s.serialQueue = make(chan CellID, total)
		for _, id := range s.order {
			if s.dependencyCount[id] == 0 {
				s.enqueue(id)
			}
		}
		var eg errgroup.Group
		for i := 0; i < s.numWorkers; i++ {
			eg.Go(func() error {
				for id := range s.readyQueue {
					s.executeFormula(id)
				}
				return nil
			})
		}
		eg.Go(func() error {
			for id := range s.serialQueue {
				s.executeFormula(id)
			}
			return nil
		})
		_ = eg.Wait()
	}
	hits, misses := s.e.programs.Stats()
	s.log.Debug("recalculation pass finished", "formulas", total, "duration", time.Since(startTime),
		"program_cache_hits", hits, "program_cache_misses", misses)
	s.reportSlowFormulas()
	slices.SortFunc(s.changes, func(a, b *spillChange) int {
		return s.g.chainIndex[a.origin] - s.g.chainIndex[b.origin]
	})
	return s.changes
}

func (s *scheduler) enqueue(id CellID) {
	if s.serial[id] {
		s.serialQueue <- id
		return
	}
	s.readyQueue <- id
}

// executeFormula evaluates one formula, stores its result and releases
// the formulas waiting on it.
func (s *scheduler) executeFormula(id CellID) {
	fc := s.g.formulas[id]
	calcStart := time.Now()
	value := s.e.evaluate(fc.sheet, fc.addr, fc.key, fc.node)
	if change := s.e.commitResult(fc, value); change != nil {
		s.changesMu.Lock()
		s.changes = append(s.changes, change)
		s.changesMu.Unlock()
	}
	if d := time.Since(calcStart); s.e.opts.SlowFormulaThreshold > 0 && d > s.e.opts.SlowFormulaThreshold {
		s.slowFormulaMu.Lock()
		s.slowFormulas = append(s.slowFormulas, slowFormulaInfo{
			cell:     s.e.cellLabel(fc.sheet, fc.addr),
			duration: d,
			formula:  fc.text,
		})
		s.slowFormulaMu.Unlock()
	}
	if s.readyQueue == nil {
		return
	}
	s.notifyDependents(id)
	s.markFormulaDone()
}

// notifyDependents decrements the counts of the formulas reading id and
// enqueues those that became ready.
func (s *scheduler) notifyDependents(id CellID) {
	dependents := s.dependents[id]
	if len(dependents) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range dependents {
		s.dependencyCount[d]--
		if s.dependencyCount[d] == 0 {
			s.enqueue(d)
		}
	}
}

func (s *scheduler) markFormulaDone() {
	if s.completedCount.Add(1) == int64(len(s.order)) {
		s.closeQueues()
	}
}

func (s *scheduler) closeQueues() {
	if s.queueClosed.CompareAndSwap(false, true) {
		close(s.readyQueue)
		close(s.serialQueue)
	}
}

func (s *scheduler) reportSlowFormulas() {
	if len(s.slowFormulas) == 0 {
		return
	}
	sorted := slices.Clone(s.slowFormulas)
	slices.SortFunc(sorted, func(a, b slowFormulaInfo) int {
		return int(b.duration - a.duration)
	})
	topN := min(20, len(sorted))
	s.log.Warn("slow formulas", "count", len(sorted), "threshold", s.e.opts.SlowFormulaThreshold, "shown", topN)
	for i, info := range sorted[:topN] {
		formula := info.formula
		if len(formula) > 100 {
			formula = formula[:100] + "..."
		}
		s.log.Warn("slow formula", "rank", i+1, "cell", info.cell, "duration", info.duration, "formula", formula)
	}
}
