// Package engine ties the loader, variable store, scheduler, data-driven
// driver, and result aggregator into the single RunCase entry point the CLI
// drives.
//
// Grounded on the teacher's runtime/app.go, which wires config, plugins,
// and the executor behind one request-handling entry point; RunCase plays
// the same role for one scenario file.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/sisyphus-test/sisyphus/internal/config"
	"github.com/sisyphus-test/sisyphus/internal/custom"
	"github.com/sisyphus-test/sisyphus/internal/dbexec"
	"github.com/sisyphus-test/sisyphus/internal/ddt"
	"github.com/sisyphus-test/sisyphus/internal/errs"
	"github.com/sisyphus-test/sisyphus/internal/httpexec"
	"github.com/sisyphus-test/sisyphus/internal/loader"
	"github.com/sisyphus-test/sisyphus/internal/logging"
	"github.com/sisyphus-test/sisyphus/internal/model"
	"github.com/sisyphus-test/sisyphus/internal/result"
	"github.com/sisyphus-test/sisyphus/internal/scheduler"
	"github.com/sisyphus-test/sisyphus/internal/store"
	"github.com/sisyphus-test/sisyphus/internal/template"
)

// DeadlineMs bounds the whole case's wall-clock execution; zero means no
// deadline beyond context cancellation the caller already applies.
type Options struct {
	ProfileOverride string
	DeadlineMs      int
	Custom          *custom.Registry
}

// Engine bundles the sidecar config and db registry shared across case runs
// (e.g. a CLI invocation covering --cases with many files).
type Engine struct {
	SidecarConfig *config.Config
	DB            *dbexec.Registry
}

// New builds an Engine, opening a dbexec adapter per configured datasource.
func New(cfg *config.Config) (*Engine, error) {
	registry := dbexec.NewRegistry()
	if cfg != nil {
		for name, ds := range cfg.Datasources {
			if ds.Driver != "postgres" {
				continue
			}
			adapter, err := dbexec.NewPostgresAdapter(ds.Postgres)
			if err != nil {
				return nil, err
			}
			registry.Register(name, adapter)
		}
	}
	return &Engine{SidecarConfig: cfg, DB: registry}, nil
}

// RunCase loads path, runs it (wrapping in the Data-Driven Driver when the
// case declares ddts/csvDatasource), and returns the aggregate CaseResult.
// A loader failure still yields a valid CaseResult with status=error, per
// spec §6.
func (e *Engine) RunCase(ctx context.Context, path string, opts Options) *model.CaseResult {
	executionID := result.NewExecutionID()
	start := time.Now()

	c, lerr := loader.LoadFile(path)
	if lerr != nil {
		return engineErrorResult(executionID, lerr, start)
	}

	if opts.ProfileOverride != "" && e.SidecarConfig != nil {
		if perr := e.SidecarConfig.ActiveProfileOverride(opts.ProfileOverride); perr != nil {
			return engineErrorResult(executionID, perr, start)
		}
	}

	if opts.DeadlineMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.DeadlineMs)*time.Millisecond)
		defer cancel()
	}

	rows, rerr := ddt.LoadRows(*c)
	if rerr != nil {
		return engineErrorResult(executionID, rerr, start)
	}

	if len(rows) == 0 {
		st, env := e.seedStore(*c, nil, opts)
		steps, status, logs := e.runOnce(ctx, *c, st, env, opts)
		return finish(executionID, *c, env, status, start, steps, nil, st, logs)
	}

	dd, err := ddt.Run(ctx, rows, 0, func(ctx context.Context, row map[string]any, rowIndex int) *model.CaseResult {
		rowID := result.NewExecutionID()
		rowStart := time.Now()
		st, env := e.seedStore(*c, row, opts)
		steps, status, logs := e.runOnce(ctx, *c, st, env, opts)
		cr := finish(rowID, *c, env, status, rowStart, steps, nil, st, logs)
		return &cr
	})
	if err != nil {
		return engineErrorResult(executionID, errs.New(errs.ClassEngine, errs.CodeEngineInternal, err.Error()), start)
	}

	overall := model.StatusPassed
	if dd.Status != model.StatusPassed {
		overall = model.StatusFailed
	}
	cr := finish(executionID, *c, nil, overall, start, nil, dd, store.New(), nil)
	return &cr
}

// runOnce runs one pass of a case's pre_sql -> teststeps -> post_sql against
// st (§4.13: pre_sql aborts the case with status=error per the resolved
// Open Question; post_sql always runs, even after an error, as a named
// pseudo-step that never appears in steps[]). It returns the step results,
// aggregate status, and every log line captured during the pass.
func (e *Engine) runOnce(ctx context.Context, c model.Case, st *store.Store, env *model.Environment, opts Options) ([]model.StepResult, model.Status, []model.LogEntry) {
	sink := &logging.Sink{}
	logger := logging.New(sink)
	renderer := template.New()

	if ce := runSQLBlock(ctx, c.Config.PreSQL, st, renderer, e.DB, logger, "pre_sql"); ce != nil {
		logger.ErrorContext(ctx, fmt.Sprintf("pre_sql aborted the case: %s", ce.Message))
		return nil, model.StatusError, sink.Entries()
	}

	steps, status := e.newScheduler(c, env, opts, renderer, logger).RunSteps(ctx, st, c.Steps)

	if ce := runSQLBlock(ctx, c.Config.PostSQL, st, renderer, e.DB, logger, "post_sql"); ce != nil {
		logger.ErrorContext(ctx, fmt.Sprintf("post_sql failed: %s", ce.Message))
		status = model.StatusError
	}

	return steps, status, sink.Entries()
}

// runSQLBlock renders and executes each statement of block in order against
// datasource, returning the first failure. A nil block is a no-op.
func runSQLBlock(ctx context.Context, block *model.SqlBlock, st *store.Store, renderer *template.Renderer, db *dbexec.Registry, logger *slog.Logger, label string) *errs.CaseError {
	if block == nil {
		return nil
	}
	if db == nil {
		return errs.New(errs.ClassEngine, errs.CodeDBDatasourceMiss, fmt.Sprintf("%s: no db registry configured", label))
	}
	for i, stmt := range block.Statements {
		rendered, err := renderer.Render(stmt, st)
		if err != nil {
			return errs.New(errs.ClassEngine, errs.CodeVariableRender, err.Error())
		}
		renderedSQL := fmt.Sprintf("%v", rendered)
		logger.InfoContext(ctx, fmt.Sprintf("Running %s statement %d/%d", label, i+1, len(block.Statements)))
		if _, ce := dbexec.Execute(ctx, db, block.Datasource, renderedSQL); ce != nil {
			logger.ErrorContext(ctx, fmt.Sprintf("%s statement %d failed: %s", label, i+1, ce.Message))
			return ce
		}
	}
	return nil
}

func (e *Engine) seedStore(c model.Case, row map[string]any, opts Options) (*store.Store, *model.Environment) {
	st := store.New()
	st.SeedConfig(c.Config.Variables)

	env := c.Config.Environment
	if env == nil && e.SidecarConfig != nil {
		active := e.SidecarConfig.Active()
		if active.BaseURL != "" || len(active.Variables) > 0 {
			env = &model.Environment{BaseURL: active.BaseURL, Variables: active.Variables}
		}
	}
	if env != nil {
		st.SeedEnvironment(env.Variables)
	}
	if row != nil {
		st.SeedRow(row)
	}
	return st, env
}

func (e *Engine) newScheduler(c model.Case, env *model.Environment, opts Options, renderer *template.Renderer, logger *slog.Logger) *scheduler.Scheduler {
	baseURL := ""
	if env != nil {
		baseURL = env.BaseURL
	}
	custRegistry := opts.Custom
	if custRegistry == nil {
		custRegistry = custom.NewRegistry()
	}
	return scheduler.New(scheduler.Deps{
		Renderer: renderer,
		HTTP:     httpexec.New(),
		DB:       e.DB,
		Custom:   custRegistry,
		RandFunc: func() float64 { return rand.Float64() },
		Sleep:    sleeper,
		Now:      time.Now,
		BaseURL:  baseURL,
		Logger:   logger,
	})
}

func sleeper(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func finish(executionID string, c model.Case, env *model.Environment, status model.Status, start time.Time, steps []model.StepResult, dd *model.DataDrivenResult, st *store.Store, logs []model.LogEntry) model.CaseResult {
	return result.Build(executionID, c.Config, env, status, start, time.Now(), steps, dd, st.Snapshot(), logs, nil)
}

func engineErrorResult(executionID string, ce *errs.CaseError, start time.Time) *model.CaseResult {
	cr := result.Build(executionID, model.Config{}, nil, model.StatusError, start, time.Now(), nil, nil, map[string]any{}, nil,
		&model.StepError{Code: string(ce.Code), Message: ce.Message, Detail: ce.Detail})
	return &cr
}

// Close releases all datasource connections.
func (e *Engine) Close() {
	if e.DB != nil {
		e.DB.CloseAll()
	}
}
