// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRUCache(t *testing.T) {
	c := newLRUCache[string, int](2)
	assert.False(t, c.Store("a", 1))
	assert.False(t, c.Store("b", 2))
	v, ok := c.Load("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	// "b" is now the least recently used entry.
	assert.True(t, c.Store("c", 3))
	_, ok = c.Load("b")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())

	var keys []string
	c.Range(func(key string, _ int) bool {
		keys = append(keys, key)
		return true
	})
	assert.Equal(t, []string{"c", "a"}, keys)

	hits, misses := c.Stats()
	assert.EqualValues(t, 1, hits)
	assert.EqualValues(t, 1, misses)

	assert.False(t, c.Store("a", 10))
	v, _ = c.Load("a")
	assert.Equal(t, 10, v)

	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestLRUCacheLoadOrStore(t *testing.T) {
	c := newLRUCache[int, string](0)
	calls := 0
	fn := func() string {
		calls++
		return "x"
	}
	assert.Equal(t, "x", c.LoadOrStore(1, fn))
	assert.Equal(t, "x", c.LoadOrStore(1, fn))
	assert.Equal(t, 1, calls)

	for i := 0; i < 100; i++ {
		c.Store(i, fmt.Sprint(i))
	}
	assert.Equal(t, 100, c.Len())
}

func TestLRUCacheConcurrent(t *testing.T) {
	c := newLRUCache[int, int](16)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.LoadOrStore((g*i)%32, func() int { return i })
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 16)
}

func TestRangeCacheFollowsWrites(t *testing.T) {
	store := NewCellStore()
	store.SetValue(0, CellAddr{Row: 1, Col: 1}, NewNumberValue(1))
	store.SetValue(0, CellAddr{Row: 2, Col: 1}, NewNumberValue(2))
	rc := newRangeCache(store)
	area := Area{Sheet: 0, From: CellAddr{Row: 1, Col: 1}, To: CellAddr{Row: 2, Col: 1}}

	m := rc.matrix(area)
	assert.Equal(t, [][]Value{{NewNumberValue(1)}, {NewNumberValue(2)}}, m)
	assert.Equal(t, 1, rc.Len())

	store.SetValue(0, CellAddr{Row: 2, Col: 1}, NewNumberValue(5))
	m = rc.matrix(area)
	assert.Equal(t, 5.0, m[1][0].Number)

	rc.Clear()
	assert.Equal(t, 0, rc.Len())
}
