package testutil

import (
	"sync"
	"time"
)

// Clock is a manually advanced clock for cache expiry tests.
type Clock struct {
	now time.Time
	mu  sync.Mutex
}

// NewClock creates a Clock starting at now.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
