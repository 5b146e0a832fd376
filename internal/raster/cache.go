package raster

import (
	"path/filepath"
	"sync"
)

// CachedStore wraps a Store with an in-memory LRU of recently opened or
// written bands. Writes and removals through the wrapper keep the cache
// coherent; changes made behind its back are not seen.
type CachedStore struct {
	inner Store
	cache *lruCache
}

// NewCachedStore creates a cache decorator holding at most maxEntries bands.
func NewCachedStore(inner Store, maxEntries int) *CachedStore {
	return &CachedStore{
		inner: inner,
		cache: newLRUCache(maxEntries),
	}
}

func (c *CachedStore) Open(path string) (*Band, error) {
	key := filepath.Clean(path)
	if b, ok := c.cache.get(key); ok {
		return cloneBand(b), nil
	}
	b, err := c.inner.Open(path)
	if err != nil {
		return nil, err
	}
	c.cache.put(key, cloneBand(b))
	return b, nil
}

func (c *CachedStore) Write(path string, b *Band) error {
	key := filepath.Clean(path)
	c.cache.drop(key)
	if err := c.inner.Write(path, b); err != nil {
		return err
	}
	c.cache.put(key, cloneBand(b))
	return nil
}

func (c *CachedStore) Exists(path string) bool {
	return c.inner.Exists(path)
}

func (c *CachedStore) Remove(path string) error {
	c.cache.drop(filepath.Clean(path))
	return c.inner.Remove(path)
}

// lruCache is a simple thread-safe LRU cache of bands keyed by path.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value *Band
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (*Band, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value *Band) {
	if c.maxEntries <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) drop(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.remove(e)
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
