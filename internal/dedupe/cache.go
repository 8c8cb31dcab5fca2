// ABOUTME: Thread-safe TTL claim set used to act on each mention trigger once
// ABOUTME: Size-bounded with O(1) oldest-first eviction and a background sweep

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	claimedAt time.Time
	element   *list.Element
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithSweepInterval sets how often expired claims are swept. Zero disables the sweeper.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Cache) { c.sweepEvery = d }
}

// Cache is a set of claimed keys that expire after a TTL. When full, the oldest claim is
// dropped to make room.
type Cache struct {
	mu         sync.Mutex
	claims     map[string]*entry
	order      *list.List // oldest at front
	ttl        time.Duration
	maxSize    int
	now        func() time.Time
	sweepEvery time.Duration
	done       chan struct{}
	closeOnce  sync.Once
}

// New creates a cache. A background goroutine sweeps expired claims until Close.
func New(ttl time.Duration, maxSize int, opts ...Option) *Cache {
	c := &Cache{
		claims:     make(map[string]*entry),
		order:      list.New(),
		ttl:        ttl,
		maxSize:    maxSize,
		now:        time.Now,
		sweepEvery: time.Minute,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sweepEvery > 0 {
		go c.sweeper()
	}
	return c
}

// Claim marks key and reports whether this call claimed it. It returns false while an
// unexpired claim on key exists. The check and the mark are one atomic step.
func (c *Cache) Claim(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.claims[key]; ok {
		if now.Sub(e.claimedAt) < c.ttl {
			return false
		}
		c.order.Remove(e.element)
		delete(c.claims, key)
	}

	if c.maxSize > 0 && len(c.claims) >= c.maxSize {
		c.evictOldest()
	}
	c.claims[key] = &entry{claimedAt: now, element: c.order.PushBack(key)}
	return true
}

// Seen reports whether key holds an unexpired claim.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.claims[key]
	return ok && c.now().Sub(e.claimedAt) < c.ttl
}

// Release drops the claim on key so it can be claimed again, for example after the
// work it guarded failed to start.
func (c *Cache) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.claims[key]; ok {
		c.order.Remove(e.element)
		delete(c.claims, key)
	}
}

// Len returns the number of claims held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.claims)
}

// evictOldest drops the front of the order list. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.claims, key)
}

func (c *Cache) sweeper() {
	ticker := time.NewTicker(c.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep removes expired claims. Claims are ordered by claim time, so it stops at the
// first live one.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for el := c.order.Front(); el != nil; {
		key, _ := el.Value.(string)
		e := c.claims[key]
		if now.Sub(e.claimedAt) < c.ttl {
			return
		}
		next := el.Next()
		c.order.Remove(el)
		delete(c.claims, key)
		el = next
	}
}

// Close stops the sweeper. It is safe to call more than once.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
