// Package cache provides a small fixed-size LRU cache.
package cache

import (
	"container/list"
	"expvar"
	"sync"
)

type entry[K comparable, V any] struct {
	key   K
	value V
}

// LRU is a fixed-size least-recently-used cache. It is safe for concurrent
// use. A capacity of zero or less disables it: Put is a no-op and Get always
// misses without touching the metrics.
type LRU[K comparable, V any] struct {
	mu        sync.Mutex
	capacity  int
	order     *list.List
	items     map[K]*list.Element
	onEvicted func(key K, value V)

	hits   *expvar.Int
	misses *expvar.Int
}

// New creates an LRU. onEvicted, if set, is called for every entry that is
// evicted or cleared.
func New[K comparable, V any](capacity int, onEvicted func(key K, value V)) *LRU[K, V] {
	if capacity < 0 {
		capacity = 0
	}
	return &LRU[K, V]{
		capacity:  capacity,
		order:     list.New(),
		items:     make(map[K]*list.Element),
		onEvicted: onEvicted,
	}
}

// SetMetrics attaches hit and miss counters. Either may be nil.
func (c *LRU[K, V]) SetMetrics(hits, misses *expvar.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits = hits
	c.misses = misses
}

func (c *LRU[K, V]) Get(key K) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capacity == 0 {
		return value, false
	}
	if elem, found := c.items[key]; found {
		if c.hits != nil {
			c.hits.Add(1)
		}
		c.order.MoveToFront(elem)
		return elem.Value.(*entry[K, V]).value, true
	}
	if c.misses != nil {
		c.misses.Add(1)
	}
	return value, false
}

func (c *LRU[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capacity == 0 {
		return
	}
	if elem, found := c.items[key]; found {
		c.order.MoveToFront(elem)
		elem.Value.(*entry[K, V]).value = value
		return
	}
	if c.order.Len() >= c.capacity {
		c.evict()
	}
	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value})
}

func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// evict must be called with c.mu held.
func (c *LRU[K, V]) evict() {
	elem := c.order.Back()
	if elem == nil {
		return
	}
	e := c.order.Remove(elem).(*entry[K, V])
	delete(c.items, e.key)
	if c.onEvicted != nil {
		c.onEvicted(e.key, e.value)
	}
}

// Clear removes every entry. Metrics are left alone.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.onEvicted != nil {
		for elem := c.order.Back(); elem != nil; elem = elem.Prev() {
			e := elem.Value.(*entry[K, V])
			c.onEvicted(e.key, e.value)
		}
	}
	c.order.Init()
	c.items = make(map[K]*list.Element)
}

// HitRate is hits / (hits + misses), or 0 before any lookup or without metrics.
func (c *LRU[K, V]) HitRate() float64 {
	c.mu.Lock()
	hits, misses := c.hits, c.misses
	c.mu.Unlock()
	if hits == nil || misses == nil {
		return 0
	}
	total := hits.Value() + misses.Value()
	if total == 0 {
		return 0
	}
	return float64(hits.Value()) / float64(total)
}
