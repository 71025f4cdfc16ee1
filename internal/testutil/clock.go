package testutil

import (
	"sync"
	"time"
)

// Clock provides a thread-safe pinned wall clock for tests.
//
// Unlike time.Now, a Clock only moves when the test tells it to, so cache
// expiry and freshness ages come out identical on every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock creates a clock pinned at start.
func NewClock(start time.Time) *Clock {
	return &Clock{t: start}
}

// Now returns the pinned instant. Pass the method value wherever a
// time source is expected:
//
//	cache.NewMemory(cache.WithMemoryClock(clock.Now))
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d. A negative d moves it back.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Set re-pins the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}
