package testutil

import (
	"sync"
	"time"
)

// Epoch is the first time returned by a new DeterministicClock.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a thread-safe wall clock for tests that advances by
// a fixed step on every read.
//
// Records written under the same scenario get identical timestamps across
// runs, so golden traces stay byte-stable.
type DeterministicClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewDeterministicClock creates a clock starting at Epoch that advances by
// one second per call to Now.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{next: Epoch, step: time.Second}
}

// Now returns the current time and advances the clock by one step.
//
// Implements ledger.Clock.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}

// Peek returns the time the next call to Now will return.
func (c *DeterministicClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Reset rewinds the clock to Epoch.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = Epoch
}
