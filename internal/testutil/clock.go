package testutil

import (
	"sync"
	"time"
)

// DeterministicClock is a wall clock for tests that advances by a fixed step
// on every call to Now.
//
// With step 0 it is frozen, which lets tests force id collisions. With a
// non-zero step every reading is distinct, which makes durations and timeouts
// exact: two consecutive readings are always step apart.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewDeterministicClock creates a clock starting at start that advances by
// step after each reading.
//
// The first call to Now() returns start.
func NewDeterministicClock(start time.Time, step time.Duration) *DeterministicClock {
	return &DeterministicClock{now: start.UTC(), step: step}
}

// NewFrozenClock creates a clock that always returns t.
func NewFrozenClock(t time.Time) *DeterministicClock {
	return NewDeterministicClock(t, 0)
}

// Now returns the current reading and advances the clock by its step.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Peek returns the next reading without advancing.
func (c *DeterministicClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d without producing a reading.
func (c *DeterministicClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SetStep changes the amount the clock advances per reading.
func (c *DeterministicClock) SetStep(step time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = step
}
