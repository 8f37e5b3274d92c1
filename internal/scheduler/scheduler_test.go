package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sisyphus-test/sisyphus/internal/custom"
	"github.com/sisyphus-test/sisyphus/internal/httpexec"
	"github.com/sisyphus-test/sisyphus/internal/model"
	"github.com/sisyphus-test/sisyphus/internal/store"
	"github.com/sisyphus-test/sisyphus/internal/template"
)

func newFakeCustomRegistry() *custom.Registry {
	r := custom.NewRegistry()
	r.Register("greet", func(ctx context.Context, params map[string]any, st *store.Store) (map[string]any, error) {
		return map[string]any{"message": fmt.Sprintf("hello %v", params["name"])}, nil
	})
	return r
}

func newSched(baseURL string) *Scheduler {
	return New(Deps{
		Renderer: template.New(),
		HTTP:     httpexec.New(),
		BaseURL:  baseURL,
		Now:      time.Now,
	})
}

func TestRunStepsRequestPassesValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	st := store.New()
	s := newSched(srv.URL)
	steps := []model.Step{
		{
			Name:        "ping",
			KeywordType: model.KeywordRequest,
			Request: &model.RequestStep{
				Method: "GET", URL: "/health",
				Validate: []model.ValidateRule{
					{Target: "status_code", Comparator: "eq", Expected: float64(200)},
					{Target: "json", Expression: "$.status", Comparator: "eq", Expected: "ok"},
				},
			},
		},
	}

	results, overall := s.RunSteps(context.Background(), st, steps)
	if overall != model.StatusPassed {
		t.Fatalf("expected passed, got %v (%+v)", overall, results)
	}
	if len(results) != 1 || len(results[0].AssertionResults) != 2 {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestRunStepsSkipIfTrue(t *testing.T) {
	st := store.New()
	st.SetGlobal("flag", true)
	s := newSched("")
	steps := []model.Step{
		{Name: "skippable", KeywordType: model.KeywordAssertion, SkipIf: "flag == true",
			Assertion: &model.AssertionStep{Rule: model.ValidateRule{Target: "env_variable", Expression: "flag", Comparator: "eq", Expected: true}}},
	}
	results, overall := s.RunSteps(context.Background(), st, steps)
	if overall != model.StatusPassed || results[0].Status != model.StatusSkipped {
		t.Fatalf("expected skipped step, got %+v", results)
	}
}

func TestRunStepsDependsOnCascadeSkip(t *testing.T) {
	st := store.New()
	s := newSched("")
	steps := []model.Step{
		{Name: "first", KeywordType: model.KeywordAssertion,
			Assertion: &model.AssertionStep{Rule: model.ValidateRule{Target: "status_code", Comparator: "eq", Expected: float64(999)}}},
		{Name: "second", KeywordType: model.KeywordAssertion, DependsOn: []string{"first"},
			Assertion: &model.AssertionStep{Rule: model.ValidateRule{Target: "status_code", Comparator: "eq", Expected: float64(0)}}},
	}
	results, overall := s.RunSteps(context.Background(), st, steps)
	if overall != model.StatusFailed {
		t.Fatalf("expected failed, got %v", overall)
	}
	if results[1].Status != model.StatusSkipped {
		t.Fatalf("expected dependent step skipped, got %+v", results[1])
	}
}

func TestRunStepsCustomKeyword(t *testing.T) {
	st := store.New()
	s := newSched("")
	s.deps.Custom = newFakeCustomRegistry()
	steps := []model.Step{
		{Name: "greet", KeywordType: model.KeywordCustom,
			Custom: &model.CustomStep{KeywordName: "greet", Parameters: map[string]any{"name": "alice"},
				Extract: []model.ExtractRule{{Name: "greeting", SourceKind: "json", Expression: "$.message"}}}},
	}
	_, overall := s.RunSteps(context.Background(), st, steps)
	if overall != model.StatusPassed {
		t.Fatalf("expected passed, got %v", overall)
	}
	v, ok := st.Get("greeting")
	if !ok || v != "hello alice" {
		t.Fatalf("expected extracted greeting, got %v", v)
	}
}
