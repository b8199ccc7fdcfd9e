package cache

import (
	"container/list"
	"sync"
	"time"
)

// TTLCache is the in-process tier: a capacity-bounded, time-expiring LRU
// cache. Expiry and recency are tracked as two separate invariants — a lazy
// sweep drops expired entries on every access, and a doubly-linked recency
// list drives capacity eviction.
type TTLCache[V any] struct {
	mu         sync.Mutex
	capacity   int
	defaultTTL time.Duration
	items      map[string]*list.Element
	order      *list.List // front = most recently used
	now        func() time.Time
}

type memEntry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// NewTTLCache creates a TTLCache holding at most capacity entries, each
// expiring defaultTTL after its last Set.
func NewTTLCache[V any](capacity int, defaultTTL time.Duration) *TTLCache[V] {
	return &TTLCache[V]{
		capacity:   capacity,
		defaultTTL: defaultTTL,
		items:      make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// Get returns the value for key if present and unexpired, marking it as most
// recently used.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	c.purge()

	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	entry := el.Value.(*memEntry[V])
	if entry.expiresAt.Before(c.now()) {
		c.removeElement(el)
		return zero, false
	}
	c.order.MoveToFront(el)
	return entry.value, true
}

// Set stores value under key with the default TTL.
func (c *TTLCache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores value under key, expiring after ttl.
func (c *TTLCache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if el, ok := c.items[key]; ok {
		entry := el.Value.(*memEntry[V])
		entry.value = value
		entry.expiresAt = expiresAt
		c.order.MoveToFront(el)
	} else {
		el := c.order.PushFront(&memEntry[V]{key: key, value: value, expiresAt: expiresAt})
		c.items[key] = el
	}

	c.purge()
}

// Delete removes key from the cache.
func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// Len returns the number of live entries, sweeping expired ones first.
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purge()
	return len(c.items)
}

// purge drops expired entries, then evicts from the least-recently-used end
// until capacity is restored. Callers must hold c.mu.
func (c *TTLCache[V]) purge() {
	now := c.now()
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*memEntry[V]).expiresAt.Before(now) {
			c.removeElement(el)
		}
		el = prev
	}
	for len(c.items) > c.capacity {
		if el := c.order.Back(); el != nil {
			c.removeElement(el)
		} else {
			break
		}
	}
}

func (c *TTLCache[V]) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*memEntry[V]).key)
}
