package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// entry is a cache entry stored in the doubly-linked list.
type entry struct {
	key     string
	value   interface{}
	expires time.Time // zero when the entry never expires
}

// Memory is a thread-safe LRU (Least Recently Used) result cache with an
// optional time-to-live. Once the capacity is reached, the least recently
// accessed entry is evicted.
//
// Safe for concurrent use by multiple goroutines.
type Memory struct {
	mu         sync.RWMutex
	capacity   int
	ttl        time.Duration
	ll         *list.List
	items      map[string]*list.Element
	generation uint64
	now        func() time.Time
}

// NewMemory creates a new LRU cache with the given capacity and TTL.
// capacity must be > 0; if <= 0, a default of 256 is used. A ttl <= 0
// keeps entries until they are evicted or invalidated.
func NewMemory(capacity int, ttl time.Duration) *Memory {
	if capacity <= 0 {
		capacity = 256
	}
	return &Memory{
		capacity: capacity,
		ttl:      ttl,
		ll:       list.New(),
		items:    make(map[string]*list.Element, capacity),
		now:      time.Now,
	}
}

// Get retrieves a value from the cache.
// Returns (value, true, nil) if found and fresh and moves the entry to front (MRU).
// Expired entries are removed and reported as a miss.
func (c *Memory) Get(_ context.Context, key string) (interface{}, bool, error) {
	c.mu.RLock()
	el, ok := c.items[key]
	// If the element is already at the front and fresh, skip the write lock entirely.
	alreadyFront := ok && c.ll.Front() == el && !c.expiredLocked(el.Value.(*entry))
	var value interface{}
	if alreadyFront {
		value = el.Value.(*entry).value
	}
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if alreadyFront {
		return value, true, nil
	}

	// Promote to front under write lock; re-check in case of concurrent eviction.
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok = c.items[key]
	if !ok {
		return nil, false, nil
	}
	ent := el.Value.(*entry)
	if c.expiredLocked(ent) {
		c.removeLocked(el)
		return nil, false, nil
	}
	c.ll.MoveToFront(el)
	return ent.value, true, nil
}

// Set inserts or replaces a value in the cache.
// If at capacity, the least recently used entry is evicted first.
func (c *Memory) Set(_ context.Context, key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
	return nil
}

// SetIfGeneration stores value only if no InvalidateAll happened since
// generation gen was read.
func (c *Memory) SetIfGeneration(_ context.Context, key string, value interface{}, gen uint64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return false, nil
	}
	c.setLocked(key, value)
	return true, nil
}

func (c *Memory) setLocked(key string, value interface{}) {
	var expires time.Time
	if c.ttl > 0 {
		expires = c.now().Add(c.ttl)
	}

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry)
		ent.value = value
		ent.expires = expires
		c.ll.MoveToFront(el)
		return
	}

	if c.ll.Len() >= c.capacity {
		c.evictLocked()
	}

	el := c.ll.PushFront(&entry{key: key, value: value, expires: expires})
	c.items[key] = el
}

// InvalidateAll removes all entries and advances the generation.
func (c *Memory) InvalidateAll(context.Context) error {
	c.Clear()
	return nil
}

// Generation returns the number of InvalidateAll calls so far.
func (c *Memory) Generation(context.Context) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation, nil
}

// Len returns the number of entries currently in the cache.
func (c *Memory) Len() int {
	c.mu.RLock()
	n := len(c.items)
	c.mu.RUnlock()
	return n
}

// Capacity returns the maximum number of entries the cache can hold.
func (c *Memory) Capacity() int {
	return c.capacity
}

// Invalidate removes a single entry from the cache.
func (c *Memory) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
}

// Clear removes all entries from the cache.
func (c *Memory) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element, c.capacity)
	c.generation++
}

func (c *Memory) expiredLocked(e *entry) bool {
	return !e.expires.IsZero() && !c.now().Before(e.expires)
}

func (c *Memory) removeLocked(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}

// evictLocked removes the least recently used entry.
// Must be called with c.mu held for writing.
func (c *Memory) evictLocked() {
	el := c.ll.Back()
	if el == nil {
		return
	}
	c.removeLocked(el)
}
