// Package cache provides a thread-safe LRU cache for prepared expressions.
//
// Parsing and binding are cheap, but native compilation is not, and hosts
// commonly evaluate the same expression source against many variable
// environments. The cache keys on source text plus the construction
// parameters that change compilation output, so distinct desired return
// types or strategies never collide.
//
// Evicted expressions are closed to release any backend resources they
// hold, so the cache must own the expressions it stores.
//
// # Example
//
//	c := cache.New(1024)
//	e, err := c.GetOrBuild(cache.Key(src, desired, strategy), build)
package cache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/sandrolain/vexpr/pkg/expr"
	"github.com/sandrolain/vexpr/pkg/types"
)

// Key derives the cache key for an expression source compiled with the
// given desired return type and strategy.
func Key(source string, desired types.TypeDescriptor, strategy expr.Strategy) string {
	return fmt.Sprintf("%s|%s|%s", desired.String(), strategy.String(), source)
}

// entry is a cache entry stored in the doubly-linked list.
type entry struct {
	key string
	ex  *expr.Expression
}

// Cache is a thread-safe LRU cache for prepared expressions. Once the
// capacity is reached, the least recently accessed entry is evicted and
// closed.
//
// Safe for concurrent use by multiple goroutines. The cached expressions
// themselves are not; hosts evaluating a shared expression concurrently
// must serialize the evaluations.
type Cache struct {
	mu       sync.RWMutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

// New creates an LRU cache with the given capacity.
// capacity must be > 0; if <= 0, a default of 256 is used.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 256
	}
	return &Cache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

// Get retrieves an expression from the cache.
// Returns (ex, true) if found and moves the entry to front (MRU).
// Returns (nil, false) if not present.
func (c *Cache) Get(key string) (*expr.Expression, bool) {
	c.mu.RLock()
	el, ok := c.items[key]
	// If the element is already at the front, skip the write lock entirely.
	alreadyFront := ok && c.ll.Front() == el
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if !alreadyFront {
		// Promote to front under write lock; re-check in case of concurrent
		// eviction.
		c.mu.Lock()
		el, ok = c.items[key]
		if ok {
			c.ll.MoveToFront(el)
		}
		c.mu.Unlock()

		if !ok {
			return nil, false
		}
	}
	return el.Value.(*entry).ex, true
}

// Set inserts or replaces an expression in the cache. If at capacity, the
// least recently used entry is evicted and closed first.
func (c *Cache) Set(key string, ex *expr.Expression) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		old := el.Value.(*entry)
		if old.ex != ex {
			_ = old.ex.Close()
		}
		old.ex = ex
		c.ll.MoveToFront(el)
		return
	}

	if c.ll.Len() >= c.capacity {
		c.evictLocked()
	}

	el := c.ll.PushFront(&entry{key: key, ex: ex})
	c.items[key] = el
}

// GetOrBuild retrieves the expression for key from cache, or calls build()
// to create it, caches the result, and returns it.
// build is called at most once per miss (no negative caching of errors).
func (c *Cache) GetOrBuild(key string, build func() (*expr.Expression, error)) (*expr.Expression, error) {
	if ex, ok := c.Get(key); ok {
		return ex, nil
	}
	ex, err := build()
	if err != nil {
		return nil, err
	}
	c.Set(key, ex)
	return ex, nil
}

// Len returns the number of entries currently in the cache.
func (c *Cache) Len() int {
	c.mu.RLock()
	n := len(c.items)
	c.mu.RUnlock()
	return n
}

// Capacity returns the maximum number of entries the cache can hold.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Invalidate removes and closes a single entry.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.ll.Remove(el)
		delete(c.items, key)
		_ = el.Value.(*entry).ex.Close()
	}
}

// Clear removes and closes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, el := range c.items {
		_ = el.Value.(*entry).ex.Close()
	}
	c.ll.Init()
	c.items = make(map[string]*list.Element, c.capacity)
}

// evictLocked removes and closes the least recently used entry.
// Must be called with c.mu held for writing.
func (c *Cache) evictLocked() {
	el := c.ll.Back()
	if el == nil {
		return
	}
	c.ll.Remove(el)
	en := el.Value.(*entry)
	delete(c.items, en.key)
	_ = en.ex.Close()
}
