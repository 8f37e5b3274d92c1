package retry

import (
	"context"
	"testing"
	"time"

	"github.com/sisyphus-test/sisyphus/internal/errs"
)

func noJitterRand() float64 { return 0 }

func TestDelayFixed(t *testing.T) {
	p := Policy{Strategy: Fixed, BaseDelayMs: 100}
	d := Delay(p, 3, noJitterRand)
	if d != 100*time.Millisecond {
		t.Fatalf("got %v", d)
	}
}

func TestDelayLinear(t *testing.T) {
	p := Policy{Strategy: Linear, BaseDelayMs: 100, MaxDelayMs: 1000}
	if d := Delay(p, 0, noJitterRand); d != 100*time.Millisecond {
		t.Fatalf("attempt 0: got %v", d)
	}
	if d := Delay(p, 2, noJitterRand); d != 300*time.Millisecond {
		t.Fatalf("attempt 2: got %v", d)
	}
}

func TestDelayExponentialClampsToMax(t *testing.T) {
	p := Policy{Strategy: Exponential, BaseDelayMs: 100, MaxDelayMs: 500, Multiplier: 2}
	d := Delay(p, 10, noJitterRand)
	if d != 500*time.Millisecond {
		t.Fatalf("expected clamp to max, got %v", d)
	}
}

func TestDelayJitterRange(t *testing.T) {
	p := Policy{Strategy: Fixed, BaseDelayMs: 100, Jitter: true, MaxDelayMs: 1000}
	dmin := Delay(p, 0, func() float64 { return 0 })
	dmax := Delay(p, 0, func() float64 { return 0.999999 })
	if dmin < 50*time.Millisecond || dmin > 51*time.Millisecond {
		t.Fatalf("min bound: got %v", dmin)
	}
	if dmax < 149*time.Millisecond || dmax > 150*time.Millisecond {
		t.Fatalf("max bound: got %v", dmax)
	}
}

func TestShouldRetryRespectsStopOn(t *testing.T) {
	p := Policy{
		RetryOn: map[errs.Code]bool{errs.CodeRequestConnection: true},
		StopOn:  map[errs.Code]bool{errs.CodeRequestConnection: true},
	}
	if ShouldRetry(p, errs.CodeRequestConnection) {
		t.Fatal("stopOn should take precedence over retryOn")
	}
}

func TestRunSucceedsOnThirdAttempt(t *testing.T) {
	p := Policy{MaxAttempts: 3, Strategy: Fixed, BaseDelayMs: 1, RetryOn: map[errs.Code]bool{errs.CodeRequestConnection: true}}
	calls := 0
	var slept []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	err, attempts := Run(context.Background(), p, noJitterRand, sleep, func(attempt int) Attempt {
		calls++
		if attempt < 2 {
			return Attempt{Err: errs.New(errs.ClassStep, errs.CodeRequestConnection, "refused")}
		}
		return Attempt{Done: true}
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 || calls != 3 {
		t.Fatalf("attempts=%d calls=%d", attempts, calls)
	}
	if len(slept) != 2 {
		t.Fatalf("expected 2 sleeps, got %d", len(slept))
	}
}

func TestRunStopsOnNonRetryableError(t *testing.T) {
	p := Policy{MaxAttempts: 5, Strategy: Fixed, BaseDelayMs: 1}
	calls := 0
	err, attempts := Run(context.Background(), p, noJitterRand, nil, func(attempt int) Attempt {
		calls++
		return Attempt{Err: errs.New(errs.ClassStep, errs.CodeAssertionFailed, "nope")}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 || calls != 1 {
		t.Fatalf("expected single attempt for non-retryable code, got attempts=%d calls=%d", attempts, calls)
	}
}
