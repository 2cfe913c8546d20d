package cache

import "sync"

type node[K comparable, V any] struct {
	key        K
	value      V
	prev, next *node[K, V]
}

// LRUCache is a bounded map that drops its least recently used entry once
// it grows past capacity. The evict callback runs under the cache lock for
// every entry that leaves the cache, whatever the reason.
type LRUCache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*node[K, V]
	root     node[K, V] // root.next is the most recent entry, root.prev the oldest
	onEvict  func(key K, value V)
}

// NewLRUCache panics unless capacity is positive.
func NewLRUCache[K comparable, V any](capacity int) *LRUCache[K, V] {
	if capacity <= 0 {
		panic("cache: capacity must be positive")
	}
	c := &LRUCache[K, V]{
		capacity: capacity,
		items:    make(map[K]*node[K, V], capacity),
	}
	c.root.next, c.root.prev = &c.root, &c.root
	return c
}

func (c *LRUCache[K, V]) SetEvictCallback(fn func(key K, value V)) {
	c.mu.Lock()
	c.onEvict = fn
	c.mu.Unlock()
}

// Get returns the value for key and marks it as most recently used.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.touch(n)
	return n.value, true
}

// Peek returns the value for key without touching its recency.
func (c *LRUCache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.items[key]; ok {
		return n.value, true
	}
	var zero V
	return zero, false
}

// Put stores value under key and returns the value it replaced, if any.
func (c *LRUCache[K, V]) Put(key K, value V) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.items[key]; ok {
		old := n.value
		n.value = value
		c.touch(n)
		return old, true
	}
	c.insert(key, value)
	var zero V
	return zero, false
}

// GetOrPut returns the value stored under key, or stores the result of
// create. loaded reports whether the value was already there. create runs
// under the cache lock and must not use the cache.
func (c *LRUCache[K, V]) GetOrPut(key K, create func() V) (value V, loaded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.items[key]; ok {
		c.touch(n)
		return n.value, true
	}
	value = create()
	c.insert(key, value)
	return value, false
}

func (c *LRUCache[K, V]) Remove(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.drop(n)
	return n.value, true
}

// RemoveIf drops every entry matching pred, oldest first, and returns the
// number dropped.
func (c *LRUCache[K, V]) RemoveIf(pred func(key K, value V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for n := c.root.prev; n != &c.root; {
		prev := n.prev
		if pred(n.key, n.value) {
			c.drop(n)
			removed++
		}
		n = prev
	}
	return removed
}

// Range visits entries from most to least recently used until fn returns
// false. fn must not use the cache.
func (c *LRUCache[K, V]) Range(fn func(key K, value V) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for n := c.root.next; n != &c.root; n = n.next {
		if !fn(n.key, n.value) {
			return
		}
	}
}

func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Clear drops every entry, running the evict callback for each.
func (c *LRUCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for n := c.root.prev; n != &c.root; n = c.root.prev {
		c.drop(n)
	}
}

// The helpers below expect c.mu to be held.

func (c *LRUCache[K, V]) insert(key K, value V) {
	n := &node[K, V]{key: key, value: value}
	c.items[key] = n
	c.link(n)
	if len(c.items) > c.capacity {
		c.drop(c.root.prev)
	}
}

func (c *LRUCache[K, V]) touch(n *node[K, V]) {
	if c.root.next == n {
		return
	}
	c.unlink(n)
	c.link(n)
}

func (c *LRUCache[K, V]) link(n *node[K, V]) {
	n.prev, n.next = &c.root, c.root.next
	c.root.next.prev = n
	c.root.next = n
}

func (c *LRUCache[K, V]) unlink(n *node[K, V]) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev, n.next = nil, nil
}

func (c *LRUCache[K, V]) drop(n *node[K, V]) {
	c.unlink(n)
	delete(c.items, n.key)
	if c.onEvict != nil {
		c.onEvict(n.key, n.value)
	}
}
