package testutil

import "sync"

// Clock is a manually driven epoch-seconds clock for tests.
//
// Now never moves on its own; tests call Advance or Set so every timestamp
// in a scenario is predictable.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu  sync.Mutex
	now int64
}

// NewClock creates a clock reading start.
func NewClock(start int64) *Clock {
	return &Clock{now: start}
}

// Now returns the current time in epoch seconds.
func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by secs and returns the new time.
func (c *Clock) Advance(secs int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += secs
	return c.now
}

// Set jumps the clock to t.
func (c *Clock) Set(t int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
