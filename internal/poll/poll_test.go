package poll

import (
	"context"
	"testing"
	"time"

	"github.com/sisyphus-test/sisyphus/internal/model"
)

func zeroRand() float64 { return 0 }

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func TestPollSucceedsOnThirdAttempt(t *testing.T) {
	cfg := model.PollConfig{
		Condition:   model.PollCondition{Kind: "jsonpath", Path: "$.status", Operator: "eq", Expected: "ACTIVE"},
		MaxAttempts: 5,
		IntervalMs:  1,
	}
	statuses := []string{"PENDING", "PENDING", "ACTIVE"}
	calls := 0
	attempter := func(ctx context.Context, attempt int) (Response, error) {
		s := statuses[calls]
		calls++
		return Response{Body: map[string]any{"status": s}}, nil
	}
	out := Run(context.Background(), cfg, zeroRand, noSleep, attempter)
	if out.Status != model.StatusPassed || out.Attempts != 3 {
		t.Fatalf("got %+v", out)
	}
}

func TestPollMaxAttemptsOneEvaluatesOnce(t *testing.T) {
	cfg := model.PollConfig{
		Condition:   model.PollCondition{Kind: "statusCode", Operator: "eq", Expected: 200},
		MaxAttempts: 1,
	}
	calls := 0
	attempter := func(ctx context.Context, attempt int) (Response, error) {
		calls++
		return Response{StatusCode: 500}, nil
	}
	out := Run(context.Background(), cfg, zeroRand, nil, attempter)
	if calls != 1 {
		t.Fatalf("expected exactly one evaluation, got %d", calls)
	}
	if out.Status != model.StatusFailed {
		t.Fatalf("expected failed on timeout, got %+v", out)
	}
}

func TestPollOnTimeoutContinue(t *testing.T) {
	cfg := model.PollConfig{
		Condition:         model.PollCondition{Kind: "statusCode", Operator: "eq", Expected: 200},
		MaxAttempts:       1,
		OnTimeoutBehavior: "continue",
	}
	attempter := func(ctx context.Context, attempt int) (Response, error) {
		return Response{StatusCode: 500}, nil
	}
	out := Run(context.Background(), cfg, zeroRand, nil, attempter)
	if out.Status != model.StatusPassed || !out.TimedOut {
		t.Fatalf("got %+v", out)
	}
}
