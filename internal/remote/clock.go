package remote

import "sync/atomic"

// Clock stamps server-side changes. Change tokens are clock values.
type Clock interface {
	Next() int64
	Current() int64
}

// logicalClock is a monotonic counter.
//
// Thread-safety: safe for concurrent use (atomic operations).
type logicalClock struct {
	seq atomic.Int64
}

// Next returns the next value. Each call returns a unique, increasing value.
func (c *logicalClock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out, or 0.
func (c *logicalClock) Current() int64 {
	return c.seq.Load()
}
