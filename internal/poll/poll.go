// Package poll implements the Poll Controller (C11): repeating an attempt
// until a condition holds or a deadline elapses, reusing the Retry/Backoff
// delay formula for the interval schedule.
//
// Grounded on the teacher's executeStepWithRetries attempt loop
// (runtime/executor.go), adapted from "retry until success" to "poll until
// condition", per spec §4.11.
package poll

import (
	"context"
	"time"

	"github.com/sisyphus-test/sisyphus/internal/compare"
	"github.com/sisyphus-test/sisyphus/internal/errs"
	"github.com/sisyphus-test/sisyphus/internal/jsonpath"
	"github.com/sisyphus-test/sisyphus/internal/model"
	"github.com/sisyphus-test/sisyphus/internal/retry"
)

// Response is the minimal view of an attempt's outcome the condition needs.
type Response struct {
	Body       any
	StatusCode int
}

// Outcome is the result of one Run call.
type Outcome struct {
	Status   model.Status
	Attempts int
	Message  string
	TimedOut bool
}

// Attempter performs one request/poll try.
type Attempter func(ctx context.Context, attempt int) (Response, error)

// Run polls attempter until cfg.Condition holds, onTimeoutBehavior is
// applied, or ctx is cancelled.
func Run(ctx context.Context, cfg model.PollConfig, rnd retry.RandFunc, sleep retry.Sleeper, attempter Attempter) Outcome {
	maxAttempts := cfg.EffectiveMaxAttempts()
	policy := retry.Policy{
		Strategy:    retry.Strategy(cfg.Backoff),
		BaseDelayMs: cfg.EffectiveIntervalMs(),
		MaxDelayMs:  cfg.EffectiveTimeoutMs(),
	}
	if policy.Strategy == "" {
		policy.Strategy = retry.Fixed
	}

	deadline := time.Now().Add(time.Duration(cfg.EffectiveTimeoutMs()) * time.Millisecond)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return timeoutOutcome(cfg, attempt)
		}
		if attempt > 0 && time.Now().After(deadline) {
			return timeoutOutcome(cfg, attempt)
		}

		resp, err := attempter(ctx, attempt)
		if err == nil {
			holds, condErr := evaluateCondition(cfg.Condition, resp)
			if condErr == nil && holds {
				return Outcome{Status: model.StatusPassed, Attempts: attempt + 1}
			}
		}

		if attempt+1 >= maxAttempts {
			break
		}
		if sleep != nil {
			d := retry.Delay(policy, attempt, rnd)
			if serr := sleep(ctx, d); serr != nil {
				return timeoutOutcome(cfg, attempt+1)
			}
		}
	}
	return timeoutOutcome(cfg, maxAttempts)
}

func timeoutOutcome(cfg model.PollConfig, attempts int) Outcome {
	msg := cfg.OnTimeoutMessage
	if msg == "" {
		msg = "poll condition not met before deadline"
	}
	if cfg.OnTimeoutBehavior == "continue" {
		return Outcome{Status: model.StatusPassed, Attempts: attempts, Message: msg, TimedOut: true}
	}
	return Outcome{Status: model.StatusFailed, Attempts: attempts, Message: msg, TimedOut: true}
}

func evaluateCondition(cond model.PollCondition, resp Response) (bool, error) {
	switch cond.Kind {
	case "statusCode":
		ok, err := compare.Compare(operatorOrEq(cond.Operator), resp.StatusCode, cond.Expected)
		return ok, err
	case "jsonpath":
		if cond.Operator == "exists" {
			_, err := jsonpath.Evaluate(resp.Body, cond.Path)
			return err == nil, nil
		}
		actual, err := jsonpath.Evaluate(resp.Body, cond.Path)
		if err != nil {
			return false, err
		}
		return compare.Compare(operatorOrEq(cond.Operator), actual, cond.Expected)
	default:
		return false, errs.New(errs.ClassStep, errs.CodeEngineInternal, "unknown poll condition kind "+cond.Kind)
	}
}

func operatorOrEq(op string) string {
	if op == "" {
		return "eq"
	}
	return op
}
