package testutil

import (
	"fmt"
	"sync"
)

// SequenceGenerator returns "<prefix>-0001", "<prefix>-0002", ...
//
// It never runs out, unlike ledger.FixedGenerator, so it suits tests whose
// number of generated ids depends on retries or concurrency.
//
// Thread-safety: all methods are safe for concurrent use.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator for prefix. An empty prefix
// defaults to "id".
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id. Implements ledger.IDGenerator.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Next returns the next id. Implements provision.NumberGenerator.
func (g *SequenceGenerator) Next() string {
	return g.Generate()
}

// Count returns how many ids have been handed out.
func (g *SequenceGenerator) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}
