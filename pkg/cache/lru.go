// Package cache provides a generic in-memory LRU cache.
package cache

import (
	"container/list"
	"sync"
)

type entry[K comparable, V any] struct {
	key   K
	value V
}

// LRUCache is a fixed-capacity cache that evicts the least recently used
// entry on overflow. Safe for concurrent use.
type LRUCache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List
	onEvict  func(key K, value V)
}

// NewLRUCache panics if capacity is not positive.
func NewLRUCache[K comparable, V any](capacity int) *LRUCache[K, V] {
	if capacity <= 0 {
		panic("LRU cache capacity must be positive")
	}
	return &LRUCache[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element),
		order:    list.New(),
	}
}

// SetEvictCallback registers fn to run for every entry that leaves the cache
// through eviction, Remove or Clear. fn runs with the cache lock held and must
// not call back into the cache.
func (c *LRUCache[K, V]) SetEvictCallback(fn func(key K, value V)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

// Get returns the value for key and marks it recently used.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*entry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// GetOrCreate returns the cached value for key, or stores and returns create().
// The lookup and insert happen under one lock.
func (c *LRUCache[K, V]) GetOrCreate(key K, create func() V) V {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*entry[K, V]).value
	}

	v := create()
	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: v})
	if c.order.Len() > c.capacity {
		c.remove(c.order.Back())
	}
	return v
}

// Put stores value under key, evicting the oldest entry when full.
func (c *LRUCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		el.Value.(*entry[K, V]).value = value
		return
	}

	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value})
	if c.order.Len() > c.capacity {
		c.remove(c.order.Back())
	}
}

// Remove deletes key and reports whether it was present.
func (c *LRUCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if ok {
		c.remove(el)
	}
	return ok
}

func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear removes every entry.
func (c *LRUCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.order.Len() > 0 {
		c.remove(c.order.Back())
	}
}

// remove must be called with the lock held.
func (c *LRUCache[K, V]) remove(el *list.Element) {
	if el == nil {
		return
	}
	c.order.Remove(el)
	e := el.Value.(*entry[K, V])
	delete(c.items, e.key)
	if c.onEvict != nil {
		c.onEvict(e.key, e.value)
	}
}
