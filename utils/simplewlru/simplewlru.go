// Package simplewlru implements an LRU cache bounded by total entry weight as
// well as entry count. Weights are supplied by the caller; the remote key
// cache, for example, weighs each entry by its packed key size, so the bound
// tracks bytes held rather than entries. Not safe for concurrent use, wlru
// adds locking.
package simplewlru

import (
	"container/list"
	"errors"
)

// EvictCallback is invoked for every entry dropped from the cache, whether by
// eviction, Remove or Purge.
type EvictCallback func(key, value interface{})

type item struct {
	key    interface{}
	value  interface{}
	weight uint
}

// Cache is a weight- and count-bounded LRU.
type Cache struct {
	maxWeight uint
	maxSize   int
	weight    uint
	order     *list.List // front is the most recently used
	index     map[interface{}]*list.Element
	onEvict   EvictCallback
}

// New creates a cache bounded by total weight and entry count.
func New(maxWeight uint, maxSize int) (*Cache, error) {
	return NewWithEvict(maxWeight, maxSize, nil)
}

// NewWithEvict creates a bounded cache with an eviction callback.
func NewWithEvict(maxWeight uint, maxSize int, onEvict EvictCallback) (*Cache, error) {
	if maxSize < 0 {
		return nil, errors.New("must provide a non-negative size")
	}
	return &Cache{
		maxWeight: maxWeight,
		maxSize:   maxSize,
		order:     list.New(),
		index:     make(map[interface{}]*list.Element),
		onEvict:   onEvict,
	}, nil
}

// Add inserts or refreshes an entry and returns the number of entries evicted
// to satisfy the bounds. Refreshing replaces both the value and the weight.
func (c *Cache) Add(key, value interface{}, weight uint) (evicted int) {
	if el, ok := c.index[key]; ok {
		c.order.MoveToFront(el)
		it := el.Value.(*item)
		c.weight -= it.weight
		c.weight += weight
		it.value = value
		it.weight = weight
		return c.shrink()
	}

	c.index[key] = c.order.PushFront(&item{key, value, weight})
	c.weight += weight
	return c.shrink()
}

// Get returns the value stored under key and marks it most recently used.
func (c *Cache) Get(key interface{}) (value interface{}, ok bool) {
	el, ok := c.index[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*item).value, true
}

// Peek returns the value stored under key without touching its recency.
func (c *Cache) Peek(key interface{}) (value interface{}, ok bool) {
	el, ok := c.index[key]
	if !ok {
		return nil, false
	}
	return el.Value.(*item).value, true
}

// Contains reports whether key is cached, without touching its recency.
func (c *Cache) Contains(key interface{}) bool {
	_, ok := c.index[key]
	return ok
}

// Remove drops the entry stored under key, reporting whether it was cached.
func (c *Cache) Remove(key interface{}) (present bool) {
	el, ok := c.index[key]
	if ok {
		c.drop(el)
	}
	return ok
}

// RemoveOldest drops and returns the least recently used entry.
func (c *Cache) RemoveOldest() (key, value interface{}, ok bool) {
	el := c.order.Back()
	if el == nil {
		return nil, nil, false
	}
	it := el.Value.(*item)
	c.drop(el)
	return it.key, it.value, true
}

// GetOldest returns the least recently used entry without dropping it.
func (c *Cache) GetOldest() (key, value interface{}, ok bool) {
	el := c.order.Back()
	if el == nil {
		return nil, nil, false
	}
	it := el.Value.(*item)
	return it.key, it.value, true
}

// Keys lists the cached keys from least to most recently used.
func (c *Cache) Keys() []interface{} {
	keys := make([]interface{}, 0, len(c.index))
	for el := c.order.Back(); el != nil; el = el.Prev() {
		keys = append(keys, el.Value.(*item).key)
	}
	return keys
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.order.Len()
}

// Weight returns the total weight of cached entries.
func (c *Cache) Weight() uint {
	return c.weight
}

// Total returns the total weight and the number of cached entries.
func (c *Cache) Total() (weight uint, num int) {
	return c.weight, c.order.Len()
}

// Resize changes the bounds, evicting as needed to satisfy them.
func (c *Cache) Resize(maxWeight uint, maxSize int) (evicted int) {
	c.maxWeight = maxWeight
	c.maxSize = maxSize
	return c.shrink()
}

// Purge drops every entry.
func (c *Cache) Purge() {
	for el := c.order.Back(); el != nil; el = c.order.Back() {
		c.drop(el)
	}
}

func (c *Cache) shrink() (evicted int) {
	for c.weight > c.maxWeight || c.order.Len() > c.maxSize {
		c.drop(c.order.Back())
		evicted++
	}
	return evicted
}

func (c *Cache) drop(el *list.Element) {
	it := el.Value.(*item)
	c.order.Remove(el)
	delete(c.index, it.key)
	c.weight -= it.weight
	if c.onEvict != nil {
		c.onEvict(it.key, it.value)
	}
}
