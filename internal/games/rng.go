// internal/games/rng.go
package games

import (
	"math/rand"
	"time"
)

// Shuffler is the single randomness primitive engines may use for shuffles
// and deals. Tests inject a seeded instance so deals are replayable.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

type mathShuffler struct {
	r *rand.Rand
}

func (m *mathShuffler) Shuffle(n int, swap func(i, j int)) {
	m.r.Shuffle(n, swap)
}

// NewShuffler returns the production shuffler, seeded from the clock.
func NewShuffler() Shuffler {
	return &mathShuffler{r: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NewSeededShuffler returns a deterministic shuffler for replays and tests.
func NewSeededShuffler(seed int64) Shuffler {
	return &mathShuffler{r: rand.New(rand.NewSource(seed))}
}
