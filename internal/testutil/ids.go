package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs hands out predictable event IDs for tests.
//
// IDs have the form "<prefix>-0001", "<prefix>-0002", ... so golden output
// and stored records are byte-identical across runs. Reset restarts the
// sequence for test reuse.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	seq    int
}

// NewSequentialIDs creates a generator. An empty prefix uses "evt".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "evt"
	}
	return &SequentialIDs{prefix: prefix}
}

// NewID returns the next ID in the sequence.
//
// Implements filter.IDGenerator.
func (g *SequentialIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%04d", g.prefix, g.seq)
}

// Issued returns how many IDs have been handed out.
func (g *SequentialIDs) Issued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset restarts the sequence; the next ID ends in 0001.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
