package entropy

import (
	"math/rand"
	"sync"
	"time"
)

// Seeded is a reproducible pseudo-random source guarded by a mutex.
type Seeded struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeeded returns a source seeded with seed. A zero seed draws one from the clock.
func NewSeeded(seed int64) *Seeded {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Seeded{rng: rand.New(rand.NewSource(seed))}
}

// Float64 returns a value in [0, 1).
func (s *Seeded) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Intn returns a value in [0, n).
func (s *Seeded) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

// Fixed always returns the same value. Used to pin a decision in tests.
type Fixed float64

// Float64 returns f.
func (f Fixed) Float64() float64 { return float64(f) }

// Intn scales f into [0, n).
func (f Fixed) Intn(n int) int {
	v := int(float64(f) * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}

// Range returns a value in [lo, hi) drawn from src.
func Range(src Source, lo, hi float64) float64 {
	return lo + src.Float64()*(hi-lo)
}

// Choose returns a uniformly chosen element of items.
func Choose[T any](src Source, items []T) T {
	return items[src.Intn(len(items))]
}
