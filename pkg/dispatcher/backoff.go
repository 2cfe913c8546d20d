package dispatcher

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes exponential retry delays with jitter:
// min(Initial * Multiplier^(attempt-1) * (1 ± Jitter), Max).
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// DefaultBackoff starts at one second, doubles, and caps at thirty seconds
// with 10% jitter.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    time.Second,
		Max:        30 * time.Second,
		Multiplier: 2,
		Jitter:     0.1,
	}
}

// Next returns the delay after the given failed attempt (1-based).
func (b Backoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	initial := b.Initial
	if initial <= 0 {
		initial = time.Second
	}
	ceiling := b.Max
	if ceiling <= 0 {
		ceiling = 30 * time.Second
	}
	multiplier := b.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}

	interval := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if b.Jitter > 0 {
		interval *= 1 + (rand.Float64()*2-1)*b.Jitter
	}
	if interval > float64(ceiling) {
		interval = float64(ceiling)
	}
	return time.Duration(interval)
}

// Cap limits d to the backoff ceiling.
func (b Backoff) Cap(d time.Duration) time.Duration {
	ceiling := b.Max
	if ceiling <= 0 {
		ceiling = 30 * time.Second
	}
	return min(d, ceiling)
}
