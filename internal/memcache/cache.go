// Package memcache provides a capacity-bounded LRU cache whose entries are
// pinned while in use. All of the bundle caches (connections, documents,
// result chunks) share this implementation.
package memcache

import (
	"container/list"
	"sync"
)

// FactoryFunc creates the value for a key on a cache miss. The returned size
// is the entry's contribution toward the cache capacity.
type FactoryFunc func() (value interface{}, size int, err error)

// UserFunc consumes a cache entry while it is pinned.
type UserFunc func(value interface{}) error

// EvictFunc is called with an entry after it has been removed from the
// cache. It is never called while the entry is pinned, and never called
// with the cache mutex held.
type EvictFunc func(key string, value interface{})

// Cache is an LRU cache with sized entries and pin counts. A pinned entry
// is not evictable; eviction scans from the least recently used end and
// skips pinned entries, so the cache may temporarily exceed its capacity
// while everything resident is in use.
type Cache struct {
	mu       sync.Mutex
	capacity int
	size     int
	entries  map[string]*list.Element
	lru      *list.List // front = most recently used
	onEvict  EvictFunc
}

type cacheEntry struct {
	key   string
	value interface{}
	size  int
	pins  int
}

// New creates a cache bounded by the given capacity.
func New(capacity int) *Cache {
	return NewWithEvict(capacity, nil)
}

// NewWithEvict creates a cache that calls onEvict for each evicted entry.
func NewWithEvict(capacity int, onEvict EvictFunc) *Cache {
	return &Cache{
		capacity: capacity,
		entries:  map[string]*list.Element{},
		lru:      list.New(),
		onEvict:  onEvict,
	}
}

// WithEntry fetches the value for key, invoking factory to create it if it
// is not resident. The entry is pinned for the duration of the user
// callback and released afterwards regardless of the outcome. The factory
// runs under the cache mutex, so concurrent misses on the same key collapse
// into a single factory call.
func (c *Cache) WithEntry(key string, factory FactoryFunc, user UserFunc) error {
	value, err := c.acquire(key, factory)
	if err != nil {
		return err
	}
	defer c.release(key)

	return user(value)
}

func (c *Cache) acquire(key string, factory FactoryFunc) (interface{}, error) {
	c.mu.Lock()

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.pins++
		c.lru.MoveToFront(el)
		c.mu.Unlock()
		return entry.value, nil
	}

	value, size, err := factory()
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	entry := &cacheEntry{key: key, value: value, size: size, pins: 1}
	c.entries[key] = c.lru.PushFront(entry)
	c.size += size
	evicted := c.evictExcess()
	c.mu.Unlock()

	c.runEvictions(evicted)
	return value, nil
}

func (c *Cache) release(key string) {
	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).pins--
	}
	evicted := c.evictExcess()
	c.mu.Unlock()

	c.runEvictions(evicted)
}

// evictExcess removes unpinned entries in LRU order until the cache fits
// its capacity. The caller must hold the mutex; the removed entries are
// returned so their callbacks can run outside of it.
func (c *Cache) evictExcess() []*cacheEntry {
	if c.size <= c.capacity {
		return nil
	}

	var evicted []*cacheEntry
	for el := c.lru.Back(); el != nil && c.size > c.capacity; {
		prev := el.Prev()
		if entry := el.Value.(*cacheEntry); entry.pins == 0 {
			c.lru.Remove(el)
			delete(c.entries, entry.key)
			c.size -= entry.size
			evicted = append(evicted, entry)
		}
		el = prev
	}

	return evicted
}

func (c *Cache) runEvictions(evicted []*cacheEntry) {
	if c.onEvict == nil {
		return
	}

	for _, entry := range evicted {
		c.onEvict(entry.key, entry.value)
	}
}
