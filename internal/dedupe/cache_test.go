// ABOUTME: Tests for the TTL claim set
// ABOUTME: Covers claim expiry, release, eviction order, sweeping and contention

package dedupe

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(ttl time.Duration, size int) (*Cache, *testClock) {
	clock := &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(ttl, size, WithClock(clock.Now), WithSweepInterval(0)), clock
}

func TestCache_Claim(t *testing.T) {
	cache, _ := newTestCache(time.Minute, 100)
	defer cache.Close()

	assert.False(t, cache.Seen("m1:ai"))
	assert.True(t, cache.Claim("m1:ai"))
	assert.True(t, cache.Seen("m1:ai"))
	assert.False(t, cache.Claim("m1:ai"), "second claim must fail")
	assert.True(t, cache.Claim("m1:scribe"))
}

func TestCache_ClaimExpires(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 100)
	defer cache.Close()

	assert.True(t, cache.Claim("k"))
	clock.Advance(59 * time.Second)
	assert.False(t, cache.Claim("k"))

	clock.Advance(2 * time.Second)
	assert.False(t, cache.Seen("k"))
	assert.True(t, cache.Claim("k"), "expired claims can be retaken")
}

func TestCache_Release(t *testing.T) {
	cache, _ := newTestCache(time.Minute, 100)
	defer cache.Close()

	assert.True(t, cache.Claim("k"))
	cache.Release("k")
	assert.False(t, cache.Seen("k"))
	assert.True(t, cache.Claim("k"))

	cache.Release("never-claimed")
}

func TestCache_EvictsOldest(t *testing.T) {
	cache, clock := newTestCache(time.Hour, 3)
	defer cache.Close()

	for _, k := range []string{"first", "second", "third"} {
		assert.True(t, cache.Claim(k))
		clock.Advance(time.Millisecond)
	}
	assert.True(t, cache.Claim("fourth"))

	assert.False(t, cache.Seen("first"), "oldest claim should be evicted")
	assert.True(t, cache.Seen("second"))
	assert.True(t, cache.Seen("third"))
	assert.True(t, cache.Seen("fourth"))
	assert.Equal(t, 3, cache.Len())
}

func TestCache_Sweep(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 100)
	defer cache.Close()

	cache.Claim("old-1")
	cache.Claim("old-2")
	clock.Advance(30 * time.Second)
	cache.Claim("young")
	clock.Advance(45 * time.Second)

	cache.sweep()

	assert.Equal(t, 1, cache.Len())
	assert.True(t, cache.Seen("young"))
}

func TestCache_ClaimUnderContention(t *testing.T) {
	cache := New(time.Minute, 100)
	defer cache.Close()

	const goroutines = 100
	var wins atomic.Int32
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			if cache.Claim("contested") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestCache_CloseTwice(t *testing.T) {
	cache := New(time.Minute, 10)
	cache.Close()
	cache.Close()
}
