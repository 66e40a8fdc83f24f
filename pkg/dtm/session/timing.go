package session

import (
	"time"

	"github.com/modulexcite/cex/pkg/primitive"
)

// timing derives the randomized transmit delay and padding length for
// post-exchange Message frames (spec.md §4.6 "Timing defenses": a
// post-exchange message waits uniformly in [0, max]; padding is uniform
// in [0, bound]). This mirrors pkg/dtm/kex's timing helper but is kept
// separate since Session owns its own Prng instance independent of the
// (by-then-discarded) kex.Machine.
type timing struct {
	rng primitive.Prng
}

func newTiming(kind primitive.PrngKind) (*timing, error) {
	rng, err := primitive.NewPrng(kind)
	if err != nil {
		return nil, err
	}
	return &timing{rng: rng}, nil
}

func (t *timing) uniform(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	v, err := t.rng.NextUint32()
	if err != nil {
		return 0, err
	}
	return int(v % uint32(n+1)), nil
}

func (t *timing) delayZeroToFull(maxMs int) (time.Duration, error) {
	ms, err := t.uniform(maxMs)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func (t *timing) pad(bound int) ([]byte, error) {
	n, err := t.uniform(bound)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if n > 0 {
		if err := t.rng.Fill(buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}
