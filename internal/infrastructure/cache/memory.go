package cache

import (
	"container/list"
	"sync"
	"time"
)

// Clock returns the current time. Overridable for tests.
type Clock func() time.Time

// CopyFunc returns an independent copy of a cached value.
type CopyFunc[V any] func(V) V

// entry is a single cached value with its creation timestamp
type entry[K comparable, V any] struct {
	key       K
	value     V
	createdAt time.Time
}

// Options configures a TimedCache
type Options[V any] struct {
	// TTL is the maximum age of an entry. Zero disables expiry.
	TTL time.Duration
	// Capacity bounds the number of entries. Zero or less means unbounded.
	Capacity int
	// Copy, when set, is applied to values on both Put and Get.
	Copy CopyFunc[V]
	// Clock defaults to time.Now.
	Clock Clock
}

// TimedCache is a thread-safe in-memory cache with TTL expiry and
// least-recently-used eviction once capacity is reached.
type TimedCache[K comparable, V any] struct {
	ttl      time.Duration
	capacity int
	copy     CopyFunc[V]
	now      Clock

	mutex sync.Mutex
	items map[K]*list.Element
	order *list.List // front = most recently inserted or read
}

// NewTimedCache creates a new cache. It starts no goroutines; call Sweep
// periodically to reclaim entries that are never read again.
func NewTimedCache[K comparable, V any](opts Options[V]) *TimedCache[K, V] {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	return &TimedCache[K, V]{
		ttl:      opts.TTL,
		capacity: opts.Capacity,
		copy:     opts.Copy,
		now:      now,
		items:    make(map[K]*list.Element),
		order:    list.New(),
	}
}

// Get returns the value for key if it is present and not expired.
// An expired entry is removed as a side effect.
func (c *TimedCache[K, V]) Get(key K) (V, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var zero V
	elem, exists := c.items[key]
	if !exists {
		return zero, false
	}

	e := elem.Value.(*entry[K, V])
	if c.expired(e, c.now()) {
		c.removeElement(elem)
		return zero, false
	}

	c.order.MoveToFront(elem)
	return c.clone(e.value), true
}

// Put inserts or overwrites the value for key. When the cache is full the
// least recently inserted or read entry is evicted first.
func (c *TimedCache[K, V]) Put(key K, value V) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	if elem, exists := c.items[key]; exists {
		e := elem.Value.(*entry[K, V])
		e.value = c.clone(value)
		e.createdAt = now
		c.order.MoveToFront(elem)
		return
	}

	if c.capacity > 0 && len(c.items) >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}

	c.items[key] = c.order.PushFront(&entry[K, V]{
		key:       key,
		value:     c.clone(value),
		createdAt: now,
	})
}

// Delete removes the value for key
func (c *TimedCache[K, V]) Delete(key K) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if elem, exists := c.items[key]; exists {
		c.removeElement(elem)
	}
}

// Sweep removes every expired entry and returns how many were removed
func (c *TimedCache[K, V]) Sweep() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	removed := 0
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if c.expired(elem.Value.(*entry[K, V]), now) {
			c.removeElement(elem)
			removed++
		}
		elem = prev
	}
	return removed
}

// Len returns the current number of entries, expired ones included until swept
func (c *TimedCache[K, V]) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.items)
}

// Clear removes all entries
func (c *TimedCache[K, V]) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.items = make(map[K]*list.Element)
	c.order.Init()
}

func (c *TimedCache[K, V]) expired(e *entry[K, V], now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.createdAt) >= c.ttl
}

func (c *TimedCache[K, V]) removeElement(elem *list.Element) {
	e := c.order.Remove(elem).(*entry[K, V])
	delete(c.items, e.key)
}

func (c *TimedCache[K, V]) clone(v V) V {
	if c.copy == nil {
		return v
	}
	return c.copy(v)
}
