// Package result implements the Result Aggregator (C15): turning a
// scheduler run's step results into the deterministic CaseResult document
// (§4.15), including the Summary statistics.
//
// Grounded on the teacher's runtime/app.go response assembly, generalized
// from a single HTTP response payload into the spec's full case report
// shape, with google/uuid supplying the execution ID the teacher's request
// ID middleware generates the same way.
package result

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/sisyphus-test/sisyphus/internal/model"
)

// NewExecutionID mints a UUID execution identifier.
func NewExecutionID() string {
	return uuid.NewString()
}

// Build assembles a CaseResult from a completed run. variables is the
// layer-2/5/1 snapshot (global ∪ environment ∪ row) the store exposes via
// Store.Snapshot; logs and dataDriven may be nil.
func Build(executionID string, cfg model.Config, env *model.Environment, status model.Status, start, end time.Time, steps []model.StepResult, dataDriven *model.DataDrivenResult, variables map[string]any, logs []model.LogEntry, caseErr *model.StepError) model.CaseResult {
	return model.CaseResult{
		ExecutionID:  executionID,
		ScenarioID:   cfg.ScenarioID,
		ScenarioName: cfg.Name,
		ProjectID:    cfg.ProjectID,
		Status:       status,
		StartTime:    start,
		EndTime:      end,
		DurationMs:   end.Sub(start).Milliseconds(),
		Summary:      Summarize(steps, dataDriven),
		Environment:  env,
		Steps:        steps,
		DataDriven:   dataDriven,
		Variables:    variables,
		Logs:         logs,
		Error:        caseErr,
	}
}

// Summarize computes the Summary stats over a step-result slice: counts by
// outcome, assertion counts, passRate rounded to one decimal, and
// avg/min/max response time restricted to request-keyword steps (the
// durationMs recorded on a request step is its HTTP round-trip time).
func Summarize(steps []model.StepResult, dataDriven *model.DataDrivenResult) model.Summary {
	s := model.Summary{}
	var responseTimes []int64
	var passedAssertions, totalAssertions int

	for _, step := range steps {
		s.TotalSteps++
		switch step.Status {
		case model.StatusPassed:
			s.Passed++
		case model.StatusFailed:
			s.Failed++
		case model.StatusError:
			s.Error++
		case model.StatusSkipped:
			s.Skipped++
		}

		for _, a := range step.AssertionResults {
			totalAssertions++
			if a.Status == model.StatusPassed {
				passedAssertions++
			}
		}
		s.TotalExtractions += len(step.ExtractResults)

		switch step.KeywordType {
		case model.KeywordRequest:
			s.TotalRequests++
			responseTimes = append(responseTimes, step.DurationMs)
		case model.KeywordDB:
			s.TotalDBOperations++
		}
	}

	s.TotalAssertions = totalAssertions
	s.PassedAssertions = passedAssertions
	s.FailedAssertions = totalAssertions - passedAssertions
	s.PassRate = roundTo1Decimal(float64(passedAssertions) / float64(maxInt(1, totalAssertions)) * 100)

	if len(responseTimes) > 0 {
		var sum, min, max int64
		min = responseTimes[0]
		for _, t := range responseTimes {
			sum += t
			if t < min {
				min = t
			}
			if t > max {
				max = t
			}
		}
		s.AvgResponseTimeMs = roundTo1Decimal(float64(sum) / float64(len(responseTimes)))
		s.MinResponseTimeMs = min
		s.MaxResponseTimeMs = max
	}

	if dataDriven != nil {
		s.TotalDataDrivenRuns = dataDriven.TotalRuns
	}

	return s
}

func roundTo1Decimal(v float64) float64 {
	return math.Round(v*10) / 10
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
