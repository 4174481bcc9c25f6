package testutil

import "sync"

// DeterministicClock is a resettable logical clock for tests. It satisfies
// remote.Clock, so a test can predict every change token an in-memory
// database hands out.
//
// All methods are safe for concurrent use.
type DeterministicClock struct {
	mu    sync.Mutex
	start int64
	seq   int64
}

// ClockOption configures a DeterministicClock.
type ClockOption func(*DeterministicClock)

// StartAt makes the clock begin at seq instead of 0, as a server with
// history would. Reset returns to seq.
func StartAt(seq int64) ClockOption {
	return func(c *DeterministicClock) {
		c.start = seq
		c.seq = seq
	}
}

// NewDeterministicClock creates a clock at 0, or at the StartAt value.
// The first Next returns one more than that.
func NewDeterministicClock(opts ...ClockOption) *DeterministicClock {
	c := &DeterministicClock{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Next increments and returns the sequence number.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the sequence number without incrementing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Skip advances the clock by n without handing the values out, the way
// writes from clients outside the test would.
func (c *DeterministicClock) Skip(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq += n
}

// Reset puts the clock back to its start.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = c.start
}
