// Package backoff provides retry delay strategies as pure functions of the
// attempt count. All strategies are safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// Func adapts a plain function to Strategy.
type Func func(attempt int) time.Duration

// Delay calls f.
func (f Func) Delay(attempt int) time.Duration { return f(attempt) }

// Constant always returns the same delay regardless of attempt number.
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

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	base, _ := exponentialBase(e.Initial, e.Max, attempt)
	return base
}

// ExponentialWithJitter applies equal jitter to an exponential base:
// the delay is drawn from [base/2, base] where base = Initial * 2^(attempt-1).
// Once base reaches Max the delay is exactly Max.
//
// The lower half of one attempt's range starts where the previous range
// ends, so successive delays never shrink while concurrent retries still
// spread out.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with equal jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [base/2, base], or Max once capped.
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	base, capped := exponentialBase(e.Initial, e.Max, attempt)
	if capped || base <= 0 {
		return base
	}
	half := base / 2
	return half + time.Duration(rand.Int64N(int64(base-half)+1)) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// exponentialBase returns Initial * 2^(attempt-1) and whether it hit the
// limit, which is Max or, without a Max, math.MaxInt64. The comparison runs
// in float64 but the limit is returned as a Duration: float64(MaxInt64)
// rounds up to 2^63, which does not fit.
func exponentialBase(initial, maxDelay time.Duration, attempt int) (time.Duration, bool) {
	if attempt < 1 {
		attempt = 1
	}
	limit := time.Duration(math.MaxInt64)
	if maxDelay > 0 {
		limit = maxDelay
	}
	base := float64(initial) * math.Pow(2, float64(attempt-1))
	if base >= float64(limit) {
		return limit, true
	}
	return time.Duration(base), false
}

// DefaultStrategy returns the default backoff used by the engine:
// ExponentialWithJitter with 2s initial and 5m max.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(2*time.Second, 5*time.Minute)
}
