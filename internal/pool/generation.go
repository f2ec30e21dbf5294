package pool

import (
	"sync"

	"github.com/google/uuid"
)

// GenerationSource produces the identifier stamped on every row a process
// inserts. The prune pass removes unvalidated rows of other generations.
type GenerationSource interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 generations, so the
// generations of successive processes sort by start time.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined generations in order, for tests that
// simulate a sequence of processes.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order.
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined token.
//
// Panics if all tokens have been consumed: a test opened more pools than
// it declared generations for.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("FixedGenerator: all generations exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}
