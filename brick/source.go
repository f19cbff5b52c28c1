package brick

import (
	"math/rand/v2"
	"sync"
)

// Source is the source of all randomness in a game.
// Its methods are safe to call concurrently.
type Source struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewSource creates a deterministic source from a seed.
func NewSource(seed uint64) *Source {
	return &Source{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Between returns a uniformly distributed integer in [lo, hi].
// If hi <= lo, the result is lo.
func (s *Source) Between(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + s.r.IntN(hi-lo+1)
}

// Chance returns true with probability pct percent.
// Chance(0) is always false and Chance(100) is always true.
func (s *Source) Chance(pct float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()*100 < pct
}

// Index returns a uniformly distributed index into a slice of length n.
// Panics if n <= 0.
func (s *Source) Index(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}
