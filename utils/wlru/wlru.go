// Package wlru puts a lock around simplewlru, for weight-bounded caches
// shared between the progress context and application threads.
package wlru

import (
	"sync"

	"github.com/unifabric/fabric-base/utils/simplewlru"
)

// Cache is a thread-safe LRU bounded by total entry weight and entry count.
type Cache struct {
	mu  sync.RWMutex
	lru *simplewlru.Cache
}

// New creates a cache bounded by total weight and entry count.
func New(maxWeight uint, maxSize int) (*Cache, error) {
	return NewWithEvict(maxWeight, maxSize, nil)
}

// NewWithEvict creates a bounded cache with an eviction callback. The
// callback runs under the cache lock and must not call back into the cache.
func NewWithEvict(maxWeight uint, maxSize int, onEvict simplewlru.EvictCallback) (*Cache, error) {
	lru, err := simplewlru.NewWithEvict(maxWeight, maxSize, onEvict)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: lru}, nil
}

// Add inserts or refreshes an entry and returns the number of entries
// evicted to satisfy the bounds.
func (c *Cache) Add(key, value interface{}, weight uint) (evicted int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Add(key, value, weight)
}

// Get returns the value stored under key and marks it most recently used.
func (c *Cache) Get(key interface{}) (value interface{}, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(key)
}

// Peek returns the value stored under key without touching its recency.
func (c *Cache) Peek(key interface{}) (value interface{}, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Peek(key)
}

// Contains reports whether key is cached, without touching its recency.
func (c *Cache) Contains(key interface{}) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Contains(key)
}

// Remove drops the entry stored under key, reporting whether it was cached.
func (c *Cache) Remove(key interface{}) (present bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(key)
}

// RemoveOldest drops and returns the least recently used entry.
func (c *Cache) RemoveOldest() (key, value interface{}, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.RemoveOldest()
}

// GetOldest returns the least recently used entry without dropping it.
func (c *Cache) GetOldest() (key, value interface{}, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.GetOldest()
}

// Keys lists the cached keys from least to most recently used.
func (c *Cache) Keys() []interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Keys()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}

// Weight returns the total weight of cached entries.
func (c *Cache) Weight() uint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Weight()
}

// Total returns the total weight and the number of cached entries.
func (c *Cache) Total() (weight uint, num int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Total()
}

// Resize changes the bounds, evicting as needed to satisfy them.
func (c *Cache) Resize(maxWeight uint, maxSize int) (evicted int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Resize(maxWeight, maxSize)
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}
