// Package backoff provides retry delay strategies for step attempts and the
// Timer seam used to wait them out. All strategies are stateless and safe for
// concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// DefaultInterval is the fixed delay used between step retries when no
// strategy is configured.
const DefaultInterval = time.Second

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry n (1-indexed). Retry 1 is
	// the first retry after the initial failure.
	Delay(retry int) time.Duration
}

// Constant always returns the same delay.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Linear grows the delay linearly: min(Initial * retry, Max).
type Linear struct {
	Initial time.Duration
	Max     time.Duration
}

// NewLinear creates a linear backoff strategy.
func NewLinear(initial, maxDelay time.Duration) *Linear {
	return &Linear{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * retry, capped at Max.
func (l *Linear) Delay(retry int) time.Duration {
	base := float64(l.Initial) * float64(retry)
	if l.Max > 0 && base > float64(l.Max) {
		return l.Max
	}
	if base >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(base)
}

// Exponential doubles the delay every retry: min(Initial * 2^(retry-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(retry-1), capped at Max. Without a Max the
// delay saturates at the largest representable duration.
func (e *Exponential) Delay(retry int) time.Duration {
	base := float64(e.Initial) * math.Pow(2, float64(retry-1))
	if e.Max > 0 && base > float64(e.Max) {
		return e.Max
	}
	if base >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	d := time.Duration(base)
	if d < 0 {
		return e.Max
	}
	return d
}

// ExponentialWithJitter applies full jitter to an exponential base:
// a random value in [0, min(Initial * 2^(retry-1), Max)].
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Initial * 2^(retry-1), Max)].
func (e *ExponentialWithJitter) Delay(retry int) time.Duration {
	base := float64(e.Initial) * math.Pow(2, float64(retry-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	return time.Duration(rand.Float64() * base) //nolint:gosec // jitter does not need crypto rand
}

// DefaultStrategy returns the constant DefaultInterval strategy.
func DefaultStrategy() Strategy {
	return NewConstant(DefaultInterval)
}
