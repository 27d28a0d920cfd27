// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"sync"
)

type rangeMatrix struct {
	gen    uint64
	values [][]Value
}

// rangeCache keeps the materialised values of ranges read by lookup and
// aggregate functions. An entry is valid as long as its sheet has not been
// written since it was filled, so reference tables on data-only sheets are
// read once per recalculation no matter how many formulas scan them.
type rangeCache struct {
	mu    sync.RWMutex
	store *CellStore
	cache map[Area]rangeMatrix
}

func newRangeCache(store *CellStore) *rangeCache {
	return &rangeCache{store: store, cache: make(map[Area]rangeMatrix)}
}

// matrix returns the values of an area clipped to the sheet's used extent.
func (c *rangeCache) matrix(area Area) [][]Value {
	gen := c.store.Generation(area.Sheet)
	c.mu.RLock()
	if m, ok := c.cache[area]; ok && m.gen == gen {
		c.mu.RUnlock()
		return m.values
	}
	c.mu.RUnlock()

	values := c.store.Matrix(area)

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.cache[area]; ok && existing.gen == gen {
		return existing.values
	}
	if c.store.Generation(area.Sheet) == gen {
		c.cache[area] = rangeMatrix{gen: gen, values: values}
	}
	return values
}

// Clear drops every entry.
func (c *rangeCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[Area]rangeMatrix)
}

// Len returns the number of cached ranges.
func (c *rangeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
