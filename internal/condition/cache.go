// Package condition evaluates router/switch/filter rules and edge
// conditions against execution state, compiling expr-lang programs once and
// caching them by source text.
package condition

import (
	"container/list"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Cache is a thread-safe LRU cache of compiled expr-lang programs.
type Cache struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List
	mu       sync.RWMutex
}

type cacheEntry struct {
	key     string
	program *vm.Program
}

// NewCache returns a Cache bounded to capacity entries (100 if <= 0).
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 100
	}
	return &Cache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lruList:  list.New(),
	}
}

// Get retrieves a compiled program by its source text.
func (c *Cache) Get(source string) (*vm.Program, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.cache[source]; ok {
		c.lruList.MoveToFront(el)
		return el.Value.(*cacheEntry).program, true
	}
	return nil, false
}

// Put stores a compiled program, evicting the least-recently-used entry if
// the cache is at capacity.
func (c *Cache) Put(source string, program *vm.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.cache[source]; ok {
		c.lruList.MoveToFront(el)
		el.Value.(*cacheEntry).program = program
		return
	}
	el := c.lruList.PushFront(&cacheEntry{key: source, program: program})
	c.cache[source] = el
	if c.lruList.Len() > c.capacity {
		oldest := c.lruList.Back()
		c.lruList.Remove(oldest)
		delete(c.cache, oldest.Value.(*cacheEntry).key)
	}
}

// Len reports the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lruList.Len()
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*list.Element)
	c.lruList = list.New()
}

// CompileAndCache compiles source against env, caching the result keyed by
// source text alone (env shape is assumed stable across calls for one key).
func (c *Cache) CompileAndCache(source string, env interface{}, opts ...expr.Option) (*vm.Program, error) {
	if program, ok := c.Get(source); ok {
		return program, nil
	}
	allOpts := append([]expr.Option{expr.Env(env)}, opts...)
	program, err := expr.Compile(source, allOpts...)
	if err != nil {
		return nil, err
	}
	c.Put(source, program)
	return program, nil
}
