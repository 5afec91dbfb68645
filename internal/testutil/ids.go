package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDGenerator generates predictable text primary keys.
//
// IDs are "<prefix>-000001", "<prefix>-000002", ... which sort in creation
// order, like the UUID v7 keys generated in production.
//
// Thread-safety: Generate is safe for concurrent use via internal mutex.
type SequenceIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDGenerator creates a generator. An empty prefix becomes "id".
func NewSequenceIDGenerator(prefix string) *SequenceIDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &SequenceIDGenerator{prefix: prefix}
}

// Generate returns the next ID.
func (g *SequenceIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%06d", g.prefix, g.n)
}
