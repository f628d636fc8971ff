// Package cache provides a small in-memory TTL cache for hot store lookups.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Config controls cache behavior.
type Config struct {
	// DefaultTTL is the lifetime of an entry set with Set.
	DefaultTTL time.Duration
	// CleanupInterval is how often expired entries are swept.
	CleanupInterval time.Duration
	// MaxItems bounds the cache size; the least recently used entry is
	// evicted when the bound is exceeded. Zero means unbounded.
	MaxItems int
	// OnEviction, if set, is called for each evicted or expired entry.
	OnEviction func(key string, value any)
}

type entry struct {
	key       string
	value     any
	expiresAt time.Time
	element   *list.Element
}

// Cache is a thread-safe TTL cache with LRU eviction.
type Cache struct {
	config Config

	mu      sync.Mutex
	items   map[string]*entry
	order   *list.List // front = most recently used
	done    chan struct{}
	closed  bool
	nowFunc func() time.Time
}

// New creates a cache and starts its background sweeper.
func New(config Config) *Cache {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 10 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	c := &Cache{
		config:  config,
		items:   make(map[string]*entry),
		order:   list.New(),
		done:    make(chan struct{}),
		nowFunc: time.Now,
	}
	go c.sweep()
	return c
}

// Get returns the cached value for key, if present and unexpired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.nowFunc().After(e.expiresAt) {
		c.removeLocked(e)
		return nil, false
	}
	c.order.MoveToFront(e.element)
	return e.value, true
}

// Set stores value under key with the default TTL.
func (c *Cache) Set(key string, value any) {
	c.SetWithTTL(key, value, c.config.DefaultTTL)
}

// SetWithTTL stores value under key with an explicit TTL.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		e.value = value
		e.expiresAt = c.nowFunc().Add(ttl)
		c.order.MoveToFront(e.element)
		return
	}

	e := &entry{
		key:       key,
		value:     value,
		expiresAt: c.nowFunc().Add(ttl),
	}
	e.element = c.order.PushFront(e)
	c.items[key] = e

	if c.config.MaxItems > 0 && len(c.items) > c.config.MaxItems {
		if back := c.order.Back(); back != nil {
			c.removeLocked(back.Value.(*entry))
		}
	}
}

// Delete removes key from the cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		c.removeLocked(e)
	}
}

// Close stops the background sweeper.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

func (c *Cache) removeLocked(e *entry) {
	delete(c.items, e.key)
	c.order.Remove(e.element)
	if c.config.OnEviction != nil {
		c.config.OnEviction(e.key, e.value)
	}
}

func (c *Cache) sweep() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := c.nowFunc()
			for _, e := range c.items {
				if now.After(e.expiresAt) {
					c.removeLocked(e)
				}
			}
			c.mu.Unlock()
		}
	}
}
