// Package ddt implements the Data-Driven Driver (C14): re-running a case
// once per parameter row, each against an isolated variable store seeded
// from that row, aggregating into a data_driven sub-report whose runs[]
// preserves logical row order regardless of completion order.
//
// Grounded on loopdrv.RunConcurrent for the isolated-overlay/bounded-pool
// pattern, reused here at the whole-case granularity instead of the
// single-step granularity.
package ddt

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/sisyphus-test/sisyphus/internal/errs"
	"github.com/sisyphus-test/sisyphus/internal/model"
)

// defaultConcurrency bounds parallel row execution absent an explicit value.
const defaultConcurrency = 4

// RowRunner runs one full case against an isolated store seeded with the
// row's parameters (layer 1), returning that row's case result.
type RowRunner func(ctx context.Context, row map[string]any, rowIndex int) *model.CaseResult

// LoadRows resolves a Case's data-driven parameter set, from ddts.parameters
// (inline) or config.csvDatasource / ddts.csvFile (CSV, first row header).
func LoadRows(c model.Case) ([]map[string]any, *errs.CaseError) {
	switch {
	case c.Ddts != nil && len(c.Ddts.Parameters) > 0:
		return c.Ddts.Parameters, nil
	case c.Ddts != nil && c.Ddts.CSVFile != "":
		return loadCSV(c.Ddts.CSVFile)
	case c.Config.CSVDatasource != "":
		return loadCSV(c.Config.CSVDatasource)
	default:
		return nil, nil
	}
}

func loadCSV(path string) ([]map[string]any, *errs.CaseError) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.New(errs.ClassEngine, errs.CodeCSVFileNotFound, err.Error()).WithPath(path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, errs.New(errs.ClassEngine, errs.CodeCSVParse, err.Error()).WithPath(path)
	}
	if len(records) < 1 {
		return nil, errs.New(errs.ClassEngine, errs.CodeCSVParse, "csv file has no header row").WithPath(path)
	}

	header := records[0]
	rows := make([]map[string]any, 0, len(records)-1)
	for i, record := range records[1:] {
		if len(record) != len(header) {
			return nil, errs.New(errs.ClassEngine, errs.CodeCSVParse,
				fmt.Sprintf("row %d has %d fields, header has %d", i, len(record), len(header))).WithPath(path)
		}
		row := make(map[string]any, len(header))
		for j, col := range header {
			row[col] = record[j]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Run executes one RowRunner invocation per row, up to concurrency rows at
// once (defaultConcurrency when concurrency<=0), and assembles a
// DataDrivenResult whose Runs are ordered by RowIndex regardless of which
// goroutine finished first.
func Run(ctx context.Context, rows []map[string]any, concurrency int, run RowRunner) (*model.DataDrivenResult, error) {
	n := len(rows)
	if n == 0 {
		return nil, nil
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if concurrency > n {
		concurrency = n
	}

	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, fmt.Errorf("ddt: creating worker pool: %w", err)
	}
	defer pool.Release()

	results := make([]model.RunResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		idx := i
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			caseResult := run(ctx, rows[idx], idx)
			results[idx] = model.RunResult{RowIndex: idx, Parameters: rows[idx], Result: caseResult}
		})
		if submitErr != nil {
			wg.Done()
			results[idx] = model.RunResult{RowIndex: idx, Parameters: rows[idx], Result: &model.CaseResult{Status: model.StatusError}}
		}
	}
	wg.Wait()

	passed := 0
	overall := model.StatusPassed
	for _, r := range results {
		if r.Result != nil && r.Result.Status == model.StatusPassed {
			passed++
		} else {
			overall = model.StatusFailed
		}
	}

	return &model.DataDrivenResult{
		TotalRuns:  n,
		PassedRuns: passed,
		Status:     overall,
		Runs:       results,
	}, nil
}
