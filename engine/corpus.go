package engine

import (
	"math/rand"
	"sync"

	"github.com/googleprojectzero/fuzzilli-sub008/il"
)

// Corpus stores interesting programs. The engine hands new programs to it;
// tagging and eviction are the corpus's own policy.
type Corpus interface {
	// RandomElement returns one corpus program, or nil when empty.
	RandomElement() *il.Program

	// RandomElementForSplicing returns a program suited as a splice source,
	// or nil when empty.
	RandomElementForSplicing() *il.Program

	// Add hands a newly produced program to the corpus.
	Add(p *il.Program)

	// Size returns the number of stored programs.
	Size() int
}

// MemoryCorpus is a minimal in-memory corpus used by tests and the
// inspector. It keeps everything and evicts nothing.
type MemoryCorpus struct {
	mu       sync.Mutex
	rng      *rand.Rand
	programs []*il.Program
}

// NewMemoryCorpus creates an empty in-memory corpus.
func NewMemoryCorpus(rng *rand.Rand) *MemoryCorpus {
	return &MemoryCorpus{rng: rng}
}

// Add stores a program.
func (c *MemoryCorpus) Add(p *il.Program) {
	if p == nil || p.Size() == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.programs = append(c.programs, p)
}

// Size returns the number of stored programs.
func (c *MemoryCorpus) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.programs)
}

// RandomElement returns a uniformly chosen program.
func (c *MemoryCorpus) RandomElement() *il.Program {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.programs) == 0 {
		return nil
	}
	return c.programs[c.rng.Intn(len(c.programs))]
}

// RandomElementForSplicing returns a uniformly chosen program; a memory
// corpus applies no special splice policy.
func (c *MemoryCorpus) RandomElementForSplicing() *il.Program {
	return c.RandomElement()
}

// Programs returns a snapshot of the stored programs.
func (c *MemoryCorpus) Programs() []*il.Program {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*il.Program, len(c.programs))
	copy(out, c.programs)
	return out
}
