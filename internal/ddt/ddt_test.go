package ddt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sisyphus-test/sisyphus/internal/model"
)

func TestLoadRowsInline(t *testing.T) {
	c := model.Case{Ddts: &model.Ddts{Parameters: []map[string]any{{"email": "a@x"}, {"email": "b@x"}}}}
	rows, err := LoadRows(c)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %v", rows)
	}
}

func TestLoadRowsCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rows.csv")
	if err := os.WriteFile(path, []byte("email,pw,code\na@x,1,0\nb@x,,40001\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := model.Case{Config: model.Config{CSVDatasource: path}}
	rows, err := LoadRows(c)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0]["email"] != "a@x" || rows[1]["code"] != "40001" {
		t.Fatalf("got %+v", rows)
	}
}

func TestLoadRowsCSVFileNotFound(t *testing.T) {
	c := model.Case{Config: model.Config{CSVDatasource: "/nope/missing.csv"}}
	_, err := LoadRows(c)
	if err == nil {
		t.Fatal("expected file-not-found error")
	}
}

func TestRunPreservesRowOrderRegardlessOfCompletion(t *testing.T) {
	rows := []map[string]any{{"n": 0}, {"n": 1}, {"n": 2}, {"n": 3}}
	result, err := Run(context.Background(), rows, 2, func(ctx context.Context, row map[string]any, rowIndex int) *model.CaseResult {
		status := model.StatusPassed
		if rowIndex == 2 {
			status = model.StatusFailed
		}
		return &model.CaseResult{Status: status}
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalRuns != 4 || result.PassedRuns != 3 || result.Status != model.StatusFailed {
		t.Fatalf("got %+v", result)
	}
	for i, run := range result.Runs {
		if run.RowIndex != i {
			t.Fatalf("expected run order to match row index, got %+v", result.Runs)
		}
	}
}
