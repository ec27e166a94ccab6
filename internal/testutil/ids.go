package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs generates predictable event ids: "<prefix>-0001",
// "<prefix>-0002", ...
//
// The same scenario with a fresh SequenceIDs produces byte-identical
// collections, which golden tests rely on.
//
// Thread-safety: SequenceIDs is safe for concurrent use via internal mutex.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDs creates a generator. An empty prefix defaults to "evt".
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "evt"
	}
	return &SequenceIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequenceIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Reset restarts the sequence at 1.
func (g *SequenceIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
