// Package loopdrv implements the Loop/Concurrent Driver (C12): the for,
// while, and concurrent forms of step repetition, each publishing ephemeral
// variables and, for concurrent, isolating the store per worker.
//
// Grounded on shwoo03-Project's internal/requester/worker_pool.go (a
// wait-group-tracked ants.Pool wrapper) for the bounded fan-out, and on the
// teacher's single-threaded ExecuteSteps for the sequential for/while forms.
package loopdrv

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/sisyphus-test/sisyphus/internal/errs"
	"github.com/sisyphus-test/sisyphus/internal/model"
	"github.com/sisyphus-test/sisyphus/internal/store"
)

// defaultWhileCeiling bounds "while" loops absent an explicit maxCycles, per
// spec §4.12's "cap at an implementation-defined ceiling".
const defaultWhileCeiling = 10000

// Runner executes one inner step sequence against st and reports its
// aggregate outcome. Supplied by the scheduler, which owns step execution.
type Runner func(ctx context.Context, st *store.Store) (model.Status, error)

// RunFor executes run once per element of items, publishing `item`/`index`
// as layer-3 ephemeral variables.
func RunFor(ctx context.Context, st *store.Store, items []any, run Runner) (model.Status, error) {
	overall := model.StatusPassed
	for idx, item := range items {
		pop := st.PushEphemeral(map[string]any{"item": item, "index": idx})
		status, err := run(ctx, st)
		pop()
		if err != nil {
			return model.StatusError, err
		}
		if status != model.StatusPassed && overall == model.StatusPassed {
			overall = status
		}
	}
	return overall, nil
}

// Condition re-evaluates a while predicate against the live store before
// each iteration.
type Condition func(st *store.Store) (bool, error)

// RunWhile executes run while cond holds, capped at maxCycles (or
// defaultWhileCeiling when maxCycles<=0).
func RunWhile(ctx context.Context, st *store.Store, maxCycles int, cond Condition, run Runner) (model.Status, error) {
	ceiling := maxCycles
	if ceiling <= 0 {
		ceiling = defaultWhileCeiling
	}

	overall := model.StatusPassed
	for i := 0; i < ceiling; i++ {
		ok, err := cond(st)
		if err != nil {
			return model.StatusError, err
		}
		if !ok {
			return overall, nil
		}
		pop := st.PushEphemeral(map[string]any{"index": i})
		status, err := run(ctx, st)
		pop()
		if err != nil {
			return model.StatusError, err
		}
		if status != model.StatusPassed && overall == model.StatusPassed {
			overall = status
		}
	}
	return model.StatusError, errs.New(errs.ClassStep, errs.CodeEngineInternal, fmt.Sprintf("while loop exceeded %d cycles without condition becoming false", ceiling))
}

// ConcurrentRunner executes one iteration against its own isolated store
// overlay (already seeded with `item`/`index` on layer 3).
type ConcurrentRunner func(ctx context.Context, overlay *store.Store, item any, index int) (model.Status, error)

// RunConcurrent fans items out across a bounded worker pool (size
// concurrency), each on an isolated store.Clone(), then merges global/
// environment writes back into st in index order (deterministic
// last-writer-wins per §4.12/§5).
func RunConcurrent(ctx context.Context, st *store.Store, concurrency int, items []any, run ConcurrentRunner) (model.Status, []model.Status, error) {
	n := len(items)
	if n == 0 {
		return model.StatusPassed, nil, nil
	}
	if concurrency <= 0 || concurrency > n {
		concurrency = n
	}

	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return model.StatusError, nil, fmt.Errorf("loopdrv: creating worker pool: %w", err)
	}
	defer pool.Release()

	overlays := make([]*store.Store, n)
	statuses := make([]model.Status, n)
	errs_ := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		idx := i
		overlay := st.Clone()
		overlay.SetEphemeral("item", items[idx])
		overlay.SetEphemeral("index", idx)
		overlays[idx] = overlay

		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			status, runErr := run(ctx, overlay, items[idx], idx)
			statuses[idx] = status
			errs_[idx] = runErr
		})
		if submitErr != nil {
			wg.Done()
			statuses[idx] = model.StatusError
			errs_[idx] = submitErr
		}
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		st.MergeGlobal(overlays[i])
	}

	overall := model.StatusPassed
	for i := 0; i < n; i++ {
		if errs_[i] != nil {
			return model.StatusError, statuses, errs_[i]
		}
		if statuses[i] != model.StatusPassed {
			overall = model.StatusFailed
		}
	}
	return overall, statuses, nil
}
