package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant a StepClock reports.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// StepClock is a deterministic wall clock for tests: every call to Now
// advances it by a fixed step, so timestamps and profile durations come out
// identical on every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	ticks int64
}

// NewStepClock creates a clock starting at Epoch that advances by step.
//
// The first call to Now() returns Epoch.
func NewStepClock(step time.Duration) *StepClock {
	return &StepClock{start: Epoch, step: step}
}

// Now returns the current instant and advances the clock.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.ticks) * c.step)
	c.ticks++
	return t
}

// Ticks returns how many times Now has been called.
func (c *StepClock) Ticks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Reset rewinds the clock to Epoch.
//
// Used for test reuse. After Reset(), the next call to Now() returns Epoch.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}
