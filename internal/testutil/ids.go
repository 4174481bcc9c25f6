package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDGenerator mints predictable item ids: prefix-0001, prefix-0002
// and so on. It satisfies record.IDGenerator.
//
// The same scenario run with a fresh generator produces byte-identical
// outlines, which is what golden snapshots need.
//
// Thread-safety: safe for concurrent use.
type SequenceIDGenerator struct {
	prefix string

	mu sync.Mutex
	n  int
}

// NewSequenceIDGenerator creates a generator. An empty prefix means "item".
func NewSequenceIDGenerator(prefix string) *SequenceIDGenerator {
	if prefix == "" {
		prefix = "item"
	}
	return &SequenceIDGenerator{prefix: prefix}
}

// NewID returns the next id.
func (g *SequenceIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
