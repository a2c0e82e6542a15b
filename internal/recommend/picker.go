package recommend

import (
	"math/rand/v2"
	"sync"
)

// Picker draws a random sample of distinct locations.
type Picker struct {
	size int
	mu   sync.Mutex
	rng  *rand.Rand
}

// NewPicker returns a picker drawing up to size locations. A zero seed draws
// from a randomly seeded source.
func NewPicker(size int, seed int64) *Picker {
	var src rand.Source
	if seed == 0 {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	} else {
		src = rand.NewPCG(uint64(seed), uint64(seed))
	}
	if size < 1 {
		size = 1
	}
	return &Picker{size: size, rng: rand.New(src)}
}

// Pick returns min(size, len(locations)) distinct entries in random order.
// The input slice is not modified.
func (p *Picker) Pick(locations []string) []string {
	if len(locations) == 0 {
		return nil
	}
	pool := append([]string(nil), locations...)

	p.mu.Lock()
	p.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	p.mu.Unlock()

	if len(pool) > p.size {
		pool = pool[:p.size]
	}
	return pool
}
