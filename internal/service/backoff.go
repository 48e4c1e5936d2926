package service

import (
	"math"
	"time"
)

// Backoff computes capped exponential delays between dispatch attempts.
type Backoff struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
}

var DefaultBackoff = Backoff{Base: 2 * time.Second, Max: 5 * time.Minute, Multiplier: 2}

// Delay returns the wait after the given number of failed attempts (1-based).
func (b Backoff) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(b.Base) * math.Pow(mult, float64(attempts-1))
	if b.Max > 0 && d > float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}
