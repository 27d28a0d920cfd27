// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package xlcalc

import (
	"container/list"
	"sync"
)

// lruCache is a thread-safe least recently used cache with a fixed
// capacity. It holds compiled formula programs keyed by tree shape.
type lruCache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	cache    map[K]*list.Element
	lruList  *list.List
	hits     uint64
	misses   uint64
}

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

// newLRUCache creates a cache holding at most capacity entries. A
// non-positive capacity disables eviction.
func newLRUCache[K comparable, V any](capacity int) *lruCache[K, V] {
	return &lruCache[K, V]{
		capacity: capacity,
		cache:    make(map[K]*list.Element),
		lruList:  list.New(),
	}
}

// Load returns the cached value for key and marks it most recently used.
func (c *lruCache[K, V]) Load(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cache[key]; ok {
		c.lruList.MoveToFront(elem)
		c.hits++
		return elem.Value.(*lruEntry[K, V]).value, true
	}
	c.misses++
	var zero V
	return zero, false
}

// Store adds or replaces a value. It reports whether an entry was evicted
// to make room.
func (c *lruCache[K, V]) Store(key K, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cache[key]; ok {
		c.lruList.MoveToFront(elem)
		elem.Value.(*lruEntry[K, V]).value = value
		return false
	}
	evicted := false
	if c.capacity > 0 && c.lruList.Len() >= c.capacity {
		if oldest := c.lruList.Back(); oldest != nil {
			c.lruList.Remove(oldest)
			delete(c.cache, oldest.Value.(*lruEntry[K, V]).key)
			evicted = true
		}
	}
	c.cache[key] = c.lruList.PushFront(&lruEntry[K, V]{key: key, value: value})
	return evicted
}

// LoadOrStore returns the cached value for key, computing and storing it
// with fn on a miss. fn runs without the lock held.
func (c *lruCache[K, V]) LoadOrStore(key K, fn func() V) V {
	if v, ok := c.Load(key); ok {
		return v
	}
	v := fn()
	c.Store(key, v)
	return v
}

// Clear removes all entries.
func (c *lruCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[K]*list.Element)
	c.lruList = list.New()
}

// Len returns the number of entries.
func (c *lruCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

// Stats returns the hit and miss counters.
func (c *lruCache[K, V]) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Range calls f for each entry from most to least recently used, until f
// returns false.
func (c *lruCache[K, V]) Range(f func(key K, value V) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for elem := c.lruList.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(*lruEntry[K, V])
		if !f(entry.key, entry.value) {
			break
		}
	}
}

// Delete removes a key and reports whether it was present.
func (c *lruCache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cache[key]; ok {
		c.lruList.Remove(elem)
		delete(c.cache, key)
		return true
	}
	return false
}
