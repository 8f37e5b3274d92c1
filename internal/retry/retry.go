// Package retry implements the Retry/Backoff state machine (C10).
//
// Grounded on the teacher's Executor.computeDelay/shouldRetry
// (runtime/executor.go): an attempt loop with a strategy-driven delay
// formula and jitter, generalized to the spec's fixed/linear/exponential
// strategies and its `retryOn`/`stopOn` classification (replacing the
// teacher's single NonRetryable list and `when` expression).
package retry

import (
	"context"
	"math"
	"time"

	"github.com/sisyphus-test/sisyphus/internal/errs"
)

// Strategy names the backoff formula.
type Strategy string

const (
	Fixed       Strategy = "fixed"
	Linear      Strategy = "linear"
	Exponential Strategy = "exponential"
)

// Policy is the resolved retry configuration for one step attempt loop.
type Policy struct {
	MaxAttempts int
	Strategy    Strategy
	BaseDelayMs int
	MaxDelayMs  int
	Multiplier  float64
	Jitter      bool
	RetryOn     map[errs.Code]bool
	StopOn      map[errs.Code]bool
}

// RandFunc returns a uniform float64 in [0,1), injectable for deterministic
// jitter in tests.
type RandFunc func() float64

// Sleeper abstracts the delay itself, injectable so tests don't wait in
// real time.
type Sleeper func(ctx context.Context, d time.Duration) error

// Delay computes the backoff duration for 0-based attempt k per spec §4.10.
func Delay(p Policy, attempt int, rnd RandFunc) time.Duration {
	base := float64(p.BaseDelayMs)
	max := float64(p.MaxDelayMs)
	if max <= 0 {
		max = math.MaxFloat64
	}

	var d float64
	switch p.Strategy {
	case Linear:
		d = base * float64(attempt+1)
	case Exponential:
		mult := p.Multiplier
		if mult <= 0 {
			mult = 2
		}
		d = base * math.Pow(mult, float64(attempt))
	default: // Fixed
		d = base
	}
	if d > max {
		d = max
	}

	if p.Jitter && d > 0 {
		u := 0.5 + rnd()
		d = d * u
		if d < 0 {
			d = 0
		}
		if d > max {
			d = max
		}
	}
	return time.Duration(d) * time.Millisecond
}

// ShouldRetry reports whether code is retryable under p: in RetryOn (or
// RetryOn empty meaning "any code's intrinsic Retryable()") and not in
// StopOn.
func ShouldRetry(p Policy, code errs.Code) bool {
	if p.StopOn[code] {
		return false
	}
	if len(p.RetryOn) > 0 {
		return p.RetryOn[code]
	}
	return code.Retryable()
}

// Attempt is one outcome returned by the caller's op for a single try.
type Attempt struct {
	Err  *errs.CaseError
	Done bool // true on success
}

// Run drives the attempt loop: it calls op up to p.MaxAttempts times,
// sleeping between retryable failures per Delay, and returns the final
// attempt's error (nil on success) plus the number of attempts made.
func Run(ctx context.Context, p Policy, rnd RandFunc, sleep Sleeper, op func(attempt int) Attempt) (*errs.CaseError, int) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr *errs.CaseError
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errs.New(errs.ClassStep, errs.CodeTimeout, err.Error()), attempt + 1
		}

		result := op(attempt)
		if result.Done {
			return nil, attempt + 1
		}
		lastErr = result.Err

		if attempt+1 >= maxAttempts || lastErr == nil || !ShouldRetry(p, lastErr.Code) {
			return lastErr, attempt + 1
		}

		d := Delay(p, attempt, rnd)
		if sleep != nil {
			if err := sleep(ctx, d); err != nil {
				return errs.New(errs.ClassStep, errs.CodeTimeout, err.Error()), attempt + 1
			}
		}
	}
	return lastErr, maxAttempts
}
