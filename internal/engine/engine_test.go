package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sisyphus-test/sisyphus/internal/dbexec"
	"github.com/sisyphus-test/sisyphus/internal/model"
)

// fakeAdapter is an in-memory dbexec.Adapter that fails queries matching
// failOn, used to exercise pre_sql/post_sql without a real Postgres.
type fakeAdapter struct {
	failOn string
}

func (f *fakeAdapter) Query(ctx context.Context, sql string) (dbexec.Result, error) {
	if f.failOn != "" && sql == f.failOn {
		return dbexec.Result{}, fmt.Errorf("fake: statement rejected")
	}
	return dbexec.Result{Columns: []string{"ok"}, Rows: []map[string]any{{"ok": true}}}, nil
}

func (f *fakeAdapter) Close() error { return nil }

func writeCase(t *testing.T, dir, baseURL string) string {
	t.Helper()
	path := filepath.Join(dir, "case.yaml")
	content := `
config:
  name: ping case
  scenarioId: s1
  environment:
    name: test
    baseUrl: ` + baseURL + `
teststeps:
  - name: ping
    keywordType: request
    request:
      method: GET
      url: /health
      validate:
        - target: status_code
          comparator: eq
          expected: 200
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunCasePassesOnHealthyServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer srv.Close()

	e, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	path := writeCase(t, t.TempDir(), srv.URL)

	cr := e.RunCase(context.Background(), path, Options{})
	if cr.Status != model.StatusPassed {
		t.Fatalf("expected passed, got %+v", cr)
	}
	if cr.ExecutionID == "" {
		t.Fatal("expected execution id")
	}
}

func TestRunCaseMissingFileProducesErrorResult(t *testing.T) {
	e, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	cr := e.RunCase(context.Background(), "/nonexistent/case.yaml", Options{})
	if cr.Status != model.StatusError || cr.Error == nil {
		t.Fatalf("expected error result, got %+v", cr)
	}
}

func writeCaseWithSQL(t *testing.T, dir, baseURL, preStatement string) string {
	t.Helper()
	path := filepath.Join(dir, "case.yaml")
	content := `
config:
  name: sql case
  scenarioId: s2
  preSql:
    datasource: main
    statements:
      - "` + preStatement + `"
  environment:
    name: test
    baseUrl: ` + baseURL + `
teststeps:
  - name: ping
    keywordType: request
    request:
      method: GET
      url: /health
      validate:
        - target: status_code
          comparator: eq
          expected: 200
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunCasePreSQLFailureAbortsWithErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer srv.Close()

	e, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	e.DB.Register("main", &fakeAdapter{failOn: "DELETE FROM seed_data"})

	path := writeCaseWithSQL(t, t.TempDir(), srv.URL, "DELETE FROM seed_data")
	cr := e.RunCase(context.Background(), path, Options{})
	if cr.Status != model.StatusError {
		t.Fatalf("expected pre_sql failure to abort with status=error, got %+v", cr)
	}
	if len(cr.Steps) != 0 {
		t.Fatalf("expected no teststeps to run after pre_sql aborts, got %+v", cr.Steps)
	}
}

func TestRunCasePreSQLSuccessRunsStepsAndCapturesLogs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer srv.Close()

	e, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	e.DB.Register("main", &fakeAdapter{})

	path := writeCaseWithSQL(t, t.TempDir(), srv.URL, "DELETE FROM seed_data")
	cr := e.RunCase(context.Background(), path, Options{})
	if cr.Status != model.StatusPassed {
		t.Fatalf("expected passed, got %+v", cr)
	}
	if len(cr.Logs) == 0 {
		t.Fatal("expected captured log entries")
	}
}
