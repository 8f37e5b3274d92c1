// Package scheduler implements the Step Scheduler (C13): walking a case's
// teststeps in index order, applying enabled/skip_if/only_if/dependsOn
// gating, running setup/teardown, executing each step under its retry
// policy, then applying extractors and validators.
//
// Grounded on the teacher's Executor.ExecuteSteps (runtime/executor.go): the
// index-order walk, the per-step retry wrapper, and the "record and
// continue unless dependency cascade" failure handling, generalized from
// the teacher's single Body-script step to the spec's five-keyword tagged
// variant.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sisyphus-test/sisyphus/internal/assertion"
	"github.com/sisyphus-test/sisyphus/internal/custom"
	"github.com/sisyphus-test/sisyphus/internal/dbexec"
	"github.com/sisyphus-test/sisyphus/internal/errs"
	"github.com/sisyphus-test/sisyphus/internal/extract"
	"github.com/sisyphus-test/sisyphus/internal/httpexec"
	"github.com/sisyphus-test/sisyphus/internal/logging"
	"github.com/sisyphus-test/sisyphus/internal/loopdrv"
	"github.com/sisyphus-test/sisyphus/internal/model"
	"github.com/sisyphus-test/sisyphus/internal/poll"
	"github.com/sisyphus-test/sisyphus/internal/retry"
	"github.com/sisyphus-test/sisyphus/internal/store"
	"github.com/sisyphus-test/sisyphus/internal/template"
)

// Deps bundles the components a Scheduler drives. Custom and DB may be nil
// when a case never references custom/db steps; New fills in Now, RandFunc
// (a constant 0.5) and Logger (slog.Default) when they are unset.
type Deps struct {
	Renderer *template.Renderer
	HTTP     *httpexec.Executor
	DB       *dbexec.Registry
	Custom   *custom.Registry
	RandFunc retry.RandFunc
	Sleep    retry.Sleeper
	Now      func() time.Time
	BaseURL  string
	Logger   *slog.Logger
}

// Scheduler walks a step list against a shared Deps set.
type Scheduler struct {
	deps Deps
}

// New creates a Scheduler.
func New(deps Deps) *Scheduler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.RandFunc == nil {
		deps.RandFunc = func() float64 { return 0.5 }
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Scheduler{deps: deps}
}

// lastResult is threaded through a single RunSteps call so request/db
// steps can be referenced by later assertion/extract steps via
// sourceVariable: last_response, alongside the store write of the same name
// (§9 Open Question: sourceVariable takes precedence when both are set, see
// DESIGN.md).
type lastResult struct {
	body       any
	statusCode int
	durationMs int64
	headers    map[string][]string
	cookies    map[string]string
	dbRows     []any
}

// RunSteps executes steps in index order against st, returning per-step
// results and the aggregate status (passed/failed/error).
func (s *Scheduler) RunSteps(ctx context.Context, st *store.Store, steps []model.Step) ([]model.StepResult, model.Status) {
	results := make([]model.StepResult, 0, len(steps))
	statusByName := make(map[string]model.Status, len(steps))
	var last lastResult
	overall := model.StatusPassed

	for i, step := range steps {
		if ctx.Err() != nil {
			res := model.StepResult{Index: i, Name: step.Name, KeywordType: step.KeywordType, Status: model.StatusError,
				Error: &model.StepError{Code: string(errs.CodeTimeout), Message: ctx.Err().Error()}}
			results = append(results, res)
			overall = model.StatusError
			continue
		}

		res := s.runOne(ctx, st, i, step, statusByName, &last)
		results = append(results, res)
		if step.Name != "" {
			statusByName[step.Name] = res.Status
		}
		overall = worsen(overall, res.Status)
	}
	return results, overall
}

func worsen(overall, step model.Status) model.Status {
	switch {
	case overall == model.StatusError || step == model.StatusError:
		return model.StatusError
	case overall == model.StatusFailed || step == model.StatusFailed:
		return model.StatusFailed
	default:
		return overall
	}
}

func (s *Scheduler) runOne(ctx context.Context, st *store.Store, index int, step model.Step, statusByName map[string]model.Status, last *lastResult) model.StepResult {
	start := s.deps.Now()
	res := model.StepResult{Index: index, Name: step.Name, KeywordType: step.KeywordType, KeywordName: step.KeywordName, StartTime: start}

	finish := func(status model.Status) model.StepResult {
		res.Status = status
		res.EndTime = s.deps.Now()
		res.DurationMs = res.EndTime.Sub(res.StartTime).Milliseconds()
		return res
	}

	if !step.IsEnabled() {
		return finish(model.StatusSkipped)
	}

	if step.SkipIf != "" {
		skip, err := evalPredicate(step.SkipIf, st)
		if err != nil {
			res.Error = &model.StepError{Code: string(errs.CodeEngineInternal), Message: err.Error()}
			return finish(model.StatusError)
		}
		if skip {
			s.deps.Logger.InfoContext(ctx, fmt.Sprintf("Skipping step (skip_if true): %s", step.Name), logging.WithStep(index)...)
			return finish(model.StatusSkipped)
		}
	}
	if step.OnlyIf != "" {
		ok, err := evalPredicate(step.OnlyIf, st)
		if err != nil {
			res.Error = &model.StepError{Code: string(errs.CodeEngineInternal), Message: err.Error()}
			return finish(model.StatusError)
		}
		if !ok {
			s.deps.Logger.InfoContext(ctx, fmt.Sprintf("Skipping step (only_if false): %s", step.Name), logging.WithStep(index)...)
			return finish(model.StatusSkipped)
		}
	}

	for _, dep := range step.DependsOn {
		if depStatus, ok := statusByName[dep]; ok && (depStatus == model.StatusFailed || depStatus == model.StatusError) {
			res.Detail = map[string]any{"reason": "dependency_failed", "dependency": dep}
			s.deps.Logger.InfoContext(ctx, fmt.Sprintf("Skipping step %s: dependency %s did not pass", step.Name, dep), logging.WithStep(index)...)
			return finish(model.StatusSkipped)
		}
	}

	s.deps.Logger.InfoContext(ctx, fmt.Sprintf("Running step: %s", step.Name), logging.WithStep(index)...)

	setupFailed := false
	if len(step.Setup) > 0 {
		setupResults, setupStatus := s.RunSteps(ctx, st, step.Setup)
		res.Detail = map[string]any{"setup": setupResults}
		if setupStatus != model.StatusPassed {
			setupFailed = true
		}
	}

	switch {
	case setupFailed:
		res.Error = &model.StepError{Code: string(errs.CodeKeywordExecution), Message: "setup failed"}
		res.Status = model.StatusError
		s.deps.Logger.ErrorContext(ctx, fmt.Sprintf("Step %s errored: setup failed", step.Name), logging.WithStep(index)...)
	case step.Loop != nil:
		s.executeLoop(ctx, st, &res, step)
	case step.Concurrent != nil:
		s.executeConcurrent(ctx, st, &res, step)
	case step.PollConfig != nil && step.KeywordType == model.KeywordRequest:
		s.executePoll(ctx, st, &res, step, last)
	default:
		s.executeBody(ctx, st, &res, step, last)
	}

	if len(step.Teardown) > 0 {
		teardownResults, _ := s.RunSteps(ctx, st, step.Teardown)
		if res.Detail == nil {
			res.Detail = map[string]any{}
		}
		if detail, ok := res.Detail.(map[string]any); ok {
			detail["teardown"] = teardownResults
		}
	}

	res.EndTime = s.deps.Now()
	res.DurationMs = res.EndTime.Sub(res.StartTime).Milliseconds()
	return res
}

// executeBody runs the step's keyword-specific action under its retry
// policy, then applies extract/validate in declared order. It sets
// res.Status directly since the outcome depends on assertion results, not
// just executor success.
func (s *Scheduler) executeBody(ctx context.Context, st *store.Store, res *model.StepResult, step model.Step, last *lastResult) {
	policy := toPolicy(step.RetryPolicy)

	var assertionResults []model.AssertionResult
	var extractResults []model.ExtractResult
	var stepErr *errs.CaseError

	attemptFn := func(attempt int) retry.Attempt {
		assertionResults = nil
		extractResults = nil

		switch step.KeywordType {
		case model.KeywordRequest:
			stepErr = s.runRequest(ctx, st, step.Request, res, last, &assertionResults, &extractResults)
		case model.KeywordAssertion:
			stepErr = s.runAssertion(st, step.Assertion, last, &assertionResults)
		case model.KeywordExtract:
			stepErr = s.runExtract(st, step.Extract, last, &extractResults)
		case model.KeywordDB:
			stepErr = s.runDB(ctx, st, step.DB, last, &assertionResults, &extractResults)
		case model.KeywordCustom:
			stepErr = s.runCustom(ctx, st, step.Custom, &extractResults)
		default:
			stepErr = errs.New(errs.ClassStep, errs.CodeKeywordNotFound, fmt.Sprintf("unknown keywordType %q", step.KeywordType))
		}

		if stepErr != nil {
			s.deps.Logger.ErrorContext(ctx, fmt.Sprintf("Step %s failed (attempt %d/%d)", step.Name, attempt+1, policy.MaxAttempts),
				append(logging.WithStep(res.Index), "error", stepErr.Message)...)
			return retry.Attempt{Err: stepErr}
		}
		return retry.Attempt{Done: true}
	}

	finalErr, attempts := retry.Run(ctx, policy, s.deps.RandFunc, s.deps.Sleep, attemptFn)
	if res.Detail == nil {
		res.Detail = map[string]any{}
	}
	if detail, ok := res.Detail.(map[string]any); ok {
		detail["attempts"] = attempts
	}
	if attempts > 1 {
		s.deps.Logger.InfoContext(ctx, fmt.Sprintf("Step %s ran %d attempts before settling", step.Name, attempts), logging.WithStep(res.Index)...)
	}

	res.AssertionResults = assertionResults
	res.ExtractResults = extractResults

	switch {
	case finalErr != nil:
		res.Status = model.StatusError
		res.Error = &model.StepError{Code: string(finalErr.Code), Message: finalErr.Message, Detail: finalErr.Detail}
		s.deps.Logger.ErrorContext(ctx, fmt.Sprintf("Step %s errored: %s", step.Name, finalErr.Message), logging.WithStep(res.Index)...)
	case anyFailed(assertionResults):
		res.Status = model.StatusFailed
		s.deps.Logger.InfoContext(ctx, fmt.Sprintf("Step %s failed an assertion", step.Name), logging.WithStep(res.Index)...)
	default:
		res.Status = model.StatusPassed
	}
}

// executeLoop drives a step carrying loopConfig: its own keyword body is
// never executed, only the nested steps (run) once per "for" item or while
// "while"'s condition holds.
func (s *Scheduler) executeLoop(ctx context.Context, st *store.Store, res *model.StepResult, step model.Step) {
	cfg := step.Loop
	run := func(ctx context.Context, inner *store.Store) (model.Status, error) {
		results, status := s.RunSteps(ctx, inner, cfg.Steps)
		if res.Detail == nil {
			res.Detail = map[string]any{}
		}
		if detail, ok := res.Detail.(map[string]any); ok {
			iterations, _ := detail["iterations"].([]any)
			detail["iterations"] = append(iterations, results)
		}
		return status, nil
	}
	res.Detail = map[string]any{"iterations": []any{}}

	var status model.Status
	var err error
	switch cfg.Kind {
	case "while":
		cond := func(st *store.Store) (bool, error) { return evalPredicate(cfg.Condition, st) }
		status, err = loopdrv.RunWhile(ctx, st, cfg.MaxCycles, cond, run)
	default:
		items := itemsFromStore(st, cfg.Over)
		status, err = loopdrv.RunFor(ctx, st, items, run)
	}

	if err != nil {
		ce := errs.AsCaseError(err)
		res.Status = model.StatusError
		res.Error = &model.StepError{Code: string(ce.Code), Message: ce.Message}
		s.deps.Logger.ErrorContext(ctx, fmt.Sprintf("Loop step %s failed: %s", step.Name, ce.Message), logging.WithStep(res.Index)...)
		return
	}
	res.Status = status
}

// executeConcurrent fans a step's nested steps out across concurrent
// isolated store overlays, merging writes back deterministically by index.
func (s *Scheduler) executeConcurrent(ctx context.Context, st *store.Store, res *model.StepResult, step model.Step) {
	cfg := step.Concurrent
	items := itemsFromStore(st, cfg.Over)

	run := func(ctx context.Context, overlay *store.Store, item any, index int) (model.Status, error) {
		results, status := s.RunSteps(ctx, overlay, cfg.Steps)
		overlay.SetEphemeral("iteration_results", results)
		return status, nil
	}

	status, statuses, err := loopdrv.RunConcurrent(ctx, st, cfg.Concurrency, items, run)
	if err != nil {
		ce := errs.AsCaseError(err)
		res.Status = model.StatusError
		res.Error = &model.StepError{Code: string(ce.Code), Message: ce.Message}
		s.deps.Logger.ErrorContext(ctx, fmt.Sprintf("Concurrent step %s failed: %s", step.Name, ce.Message), logging.WithStep(res.Index)...)
		return
	}
	res.Detail = map[string]any{"itemStatuses": statuses}
	res.Status = status
}

// executePoll wraps a request step's execution in the Poll Controller,
// re-issuing the request until its condition holds, times out, or fails.
// Extract/validate rules on the request run once, against the final
// attempt's response.
func (s *Scheduler) executePoll(ctx context.Context, st *store.Store, res *model.StepResult, step model.Step, last *lastResult) {
	req := step.Request
	var finalResp *httpexec.Response
	var execErr *errs.CaseError

	attempter := func(ctx context.Context, attempt int) (poll.Response, error) {
		rendered, err := s.deps.Renderer.Render(requestToAny(*req), st)
		if err != nil {
			execErr = errs.New(errs.ClassStep, errs.CodeVariableRender, err.Error())
			return poll.Response{}, execErr
		}
		renderedReq := anyToRequest(*req, rendered)
		resp, ce := s.deps.HTTP.Execute(ctx, renderedReq, s.deps.BaseURL)
		if ce != nil {
			execErr = ce
			return poll.Response{}, ce
		}
		finalResp = resp
		return poll.Response{Body: resp.Body, StatusCode: resp.StatusCode}, nil
	}

	outcome := poll.Run(ctx, *step.PollConfig, s.deps.RandFunc, s.deps.Sleep, attempter)
	if res.Detail == nil {
		res.Detail = map[string]any{}
	}
	if detail, ok := res.Detail.(map[string]any); ok {
		detail["pollAttempts"] = outcome.Attempts
		detail["pollTimedOut"] = outcome.TimedOut
	}
	s.deps.Logger.InfoContext(ctx, fmt.Sprintf("Poll step %s ran %d attempts (timedOut=%t)", step.Name, outcome.Attempts, outcome.TimedOut), logging.WithStep(res.Index)...)

	if execErr != nil {
		res.Status = model.StatusError
		res.Error = &model.StepError{Code: string(execErr.Code), Message: execErr.Message}
		s.deps.Logger.ErrorContext(ctx, fmt.Sprintf("Poll step %s errored: %s", step.Name, execErr.Message), logging.WithStep(res.Index)...)
		return
	}
	if finalResp == nil {
		res.Status = model.StatusError
		res.Error = &model.StepError{Code: string(errs.CodeEngineInternal), Message: "poll produced no response"}
		return
	}

	*last = lastResult{body: finalResp.Body, statusCode: finalResp.StatusCode, durationMs: finalResp.DurationMs, headers: finalResp.Headers, cookies: finalResp.Cookies}
	st.SetGlobal("last_response", map[string]any{
		"body": finalResp.Body, "statusCode": finalResp.StatusCode, "headers": finalResp.Headers,
		"cookies": finalResp.Cookies, "durationMs": finalResp.DurationMs, "bodySize": finalResp.BodySize,
	})

	var assertionResults []model.AssertionResult
	var extractResults []model.ExtractResult
	for _, rule := range req.Extract {
		src := extract.Source{Body: finalResp.Body, Headers: finalResp.Headers, Cookies: finalResp.Cookies}
		result := extract.Apply(rule, src)
		extractResults = append(extractResults, result.ExtractResult)
		if result.Status == model.StatusPassed {
			writeScoped(st, result.Scope, rule.Name, result.Value)
		}
	}
	for _, rule := range req.Validate {
		actx := assertion.Context{Body: finalResp.Body, StatusCode: finalResp.StatusCode, ResponseTimeMs: finalResp.DurationMs, Headers: finalResp.Headers, Cookies: finalResp.Cookies, EnvLookup: st.Get}
		assertionResults = append(assertionResults, assertion.Apply(rule, actx, s.renderFn(st)))
	}
	res.AssertionResults = assertionResults
	res.ExtractResults = extractResults

	switch {
	case outcome.Status != model.StatusPassed:
		res.Status = outcome.Status
		if detail, ok := res.Detail.(map[string]any); ok {
			detail["pollMessage"] = outcome.Message
		}
	case anyFailed(assertionResults):
		res.Status = model.StatusFailed
	default:
		res.Status = model.StatusPassed
	}
}

// itemsFromStore resolves a loop/concurrent "over" reference to a list,
// tolerating a missing or non-list value by iterating zero times.
func itemsFromStore(st *store.Store, over string) []any {
	v, ok := st.Get(over)
	if !ok {
		return nil
	}
	if list, ok := v.([]any); ok {
		return list
	}
	return nil
}

func anyFailed(results []model.AssertionResult) bool {
	for _, r := range results {
		if r.Status != model.StatusPassed {
			return true
		}
	}
	return false
}

func toPolicy(rp *model.RetryPolicy) retry.Policy {
	if rp == nil {
		return retry.Policy{MaxAttempts: 1}
	}
	p := retry.Policy{
		MaxAttempts: rp.MaxAttempts,
		Strategy:    retry.Strategy(rp.Strategy),
		BaseDelayMs: rp.BaseDelayMs,
		MaxDelayMs:  rp.MaxDelayMs,
		Multiplier:  rp.Multiplier,
		Jitter:      rp.Jitter,
	}
	if len(rp.RetryOn) > 0 {
		p.RetryOn = make(map[errs.Code]bool, len(rp.RetryOn))
		for _, c := range rp.RetryOn {
			p.RetryOn[codeForRetryOnName(c)] = true
		}
	}
	if len(rp.StopOn) > 0 {
		p.StopOn = make(map[errs.Code]bool, len(rp.StopOn))
		for _, c := range rp.StopOn {
			p.StopOn[codeForRetryOnName(c)] = true
		}
	}
	return p
}

// codeForRetryOnName maps the short names used in retryOn/stopOn YAML lists
// (e.g. "connection", "timeout") onto the full error Code.
func codeForRetryOnName(name string) errs.Code {
	switch name {
	case "connection":
		return errs.CodeRequestConnection
	case "timeout":
		return errs.CodeRequestTimeout
	case "ssl":
		return errs.CodeRequestSSL
	case "db_connection":
		return errs.CodeDBConnection
	default:
		return errs.Code(name)
	}
}

func (s *Scheduler) runRequest(ctx context.Context, st *store.Store, req *model.RequestStep, res *model.StepResult, last *lastResult, assertionResults *[]model.AssertionResult, extractResults *[]model.ExtractResult) *errs.CaseError {
	if req == nil {
		return errs.New(errs.ClassStep, errs.CodeEngineInternal, "request step missing request body")
	}

	rendered, err := s.deps.Renderer.Render(requestToAny(*req), st)
	if err != nil {
		return errs.New(errs.ClassStep, errs.CodeVariableRender, err.Error())
	}
	renderedReq := anyToRequest(*req, rendered)

	resp, ce := s.deps.HTTP.Execute(ctx, renderedReq, s.deps.BaseURL)
	if ce != nil {
		return ce
	}

	*last = lastResult{body: resp.Body, statusCode: resp.StatusCode, durationMs: resp.DurationMs, headers: resp.Headers, cookies: resp.Cookies}
	st.SetGlobal("last_response", map[string]any{
		"body": resp.Body, "statusCode": resp.StatusCode, "headers": resp.Headers,
		"cookies": resp.Cookies, "durationMs": resp.DurationMs, "bodySize": resp.BodySize,
	})

	for _, rule := range req.Extract {
		src := extract.Source{Body: resp.Body, Headers: resp.Headers, Cookies: resp.Cookies}
		result := extract.Apply(rule, src)
		*extractResults = append(*extractResults, result.ExtractResult)
		if result.Status == model.StatusPassed {
			writeScoped(st, result.Scope, rule.Name, result.Value)
		}
	}

	for _, rule := range req.Validate {
		actx := assertion.Context{Body: resp.Body, StatusCode: resp.StatusCode, ResponseTimeMs: resp.DurationMs, Headers: resp.Headers, Cookies: resp.Cookies, EnvLookup: st.Get}
		out := assertion.Apply(rule, actx, s.renderFn(st))
		*assertionResults = append(*assertionResults, out)
	}
	return nil
}

func (s *Scheduler) runAssertion(st *store.Store, a *model.AssertionStep, last *lastResult, assertionResults *[]model.AssertionResult) *errs.CaseError {
	if a == nil {
		return errs.New(errs.ClassStep, errs.CodeEngineInternal, "assertion step missing body")
	}
	ctx := assertionContextFor(a.SourceVariable, st, last)
	out := assertion.Apply(a.Rule, ctx, s.renderFn(st))
	*assertionResults = append(*assertionResults, out)
	if out.Status == model.StatusError {
		return errs.New(errs.ClassStep, errs.CodeAssertionFailed, out.Message)
	}
	return nil
}

func (s *Scheduler) runExtract(st *store.Store, e *model.ExtractStep, last *lastResult, extractResults *[]model.ExtractResult) *errs.CaseError {
	if e == nil {
		return errs.New(errs.ClassStep, errs.CodeEngineInternal, "extract step missing body")
	}
	src := extractSourceFor(e.SourceVariable, st, last)
	for _, rule := range e.Rules {
		result := extract.Apply(rule, src)
		*extractResults = append(*extractResults, result.ExtractResult)
		if result.Status == model.StatusPassed {
			writeScoped(st, result.Scope, rule.Name, result.Value)
		}
	}
	return nil
}

func (s *Scheduler) runDB(ctx context.Context, st *store.Store, d *model.DBStep, last *lastResult, assertionResults *[]model.AssertionResult, extractResults *[]model.ExtractResult) *errs.CaseError {
	if d == nil {
		return errs.New(errs.ClassStep, errs.CodeEngineInternal, "db step missing body")
	}
	if s.deps.DB == nil {
		return errs.New(errs.ClassStep, errs.CodeDBDatasourceMiss, "no db registry configured")
	}

	renderedAny, err := s.deps.Renderer.Render(d.SQL, st)
	if err != nil {
		return errs.New(errs.ClassStep, errs.CodeVariableRender, err.Error())
	}
	renderedSQL := fmt.Sprintf("%v", renderedAny)

	result, ce := dbexec.Execute(ctx, s.deps.DB, d.Datasource, renderedSQL)
	if ce != nil {
		return ce
	}

	rows := result.RowsAsAny()
	*last = lastResult{dbRows: rows}

	for _, rule := range d.Extract {
		r := extract.Apply(rule, extract.Source{DBRows: rows})
		*extractResults = append(*extractResults, r.ExtractResult)
		if r.Status == model.StatusPassed {
			writeScoped(st, r.Scope, rule.Name, r.Value)
		}
	}
	for _, rule := range d.Validate {
		actx := assertion.Context{DBRows: rows, EnvLookup: st.Get}
		out := assertion.Apply(rule, actx, s.renderFn(st))
		*assertionResults = append(*assertionResults, out)
	}
	return nil
}

func (s *Scheduler) runCustom(ctx context.Context, st *store.Store, c *model.CustomStep, extractResults *[]model.ExtractResult) *errs.CaseError {
	if c == nil {
		return errs.New(errs.ClassStep, errs.CodeEngineInternal, "custom step missing body")
	}
	if s.deps.Custom == nil {
		return errs.New(errs.ClassStep, errs.CodeKeywordNotFound, fmt.Sprintf("custom keyword %q: no registry configured", c.KeywordName))
	}

	renderedParams, err := s.deps.Renderer.Render(anyMap(c.Parameters), st)
	if err != nil {
		return errs.New(errs.ClassStep, errs.CodeVariableRender, err.Error())
	}

	out, invokeErr := s.deps.Custom.Invoke(ctx, c.KeywordName, renderedParams.(map[string]any), st)
	if invokeErr != nil {
		return errs.New(errs.ClassStep, errs.CodeKeywordExecution, invokeErr.Error())
	}

	for _, rule := range c.Extract {
		r := extract.Apply(rule, extract.Source{Body: out})
		*extractResults = append(*extractResults, r.ExtractResult)
		if r.Status == model.StatusPassed {
			writeScoped(st, r.Scope, rule.Name, r.Value)
		}
	}
	return nil
}

func (s *Scheduler) renderFn(st *store.Store) assertion.Render {
	return func(v any) (any, error) { return s.deps.Renderer.Render(v, st) }
}

func writeScoped(st *store.Store, scope model.Scope, name string, value any) {
	if scope == model.ScopeEnvironment {
		st.SetEnvironment(name, value)
		return
	}
	st.SetGlobal(name, value)
}

// assertionContextFor resolves the Open Question in spec §9: when both an
// implicit last-HTTP-response and an explicit sourceVariable are available,
// sourceVariable wins (see DESIGN.md for the rationale).
func assertionContextFor(sourceVariable string, st *store.Store, last *lastResult) assertion.Context {
	if sourceVariable != "" && sourceVariable != "last_response" {
		v, _ := st.Get(sourceVariable)
		return assertion.Context{Body: v, EnvLookup: st.Get}
	}
	return assertion.Context{
		Body: last.body, StatusCode: last.statusCode, ResponseTimeMs: last.durationMs,
		Headers: last.headers, Cookies: last.cookies, DBRows: last.dbRows, EnvLookup: st.Get,
	}
}

func extractSourceFor(sourceVariable string, st *store.Store, last *lastResult) extract.Source {
	if sourceVariable != "" && sourceVariable != "last_response" {
		v, _ := st.Get(sourceVariable)
		return extract.Source{Body: v}
	}
	return extract.Source{Body: last.body, Headers: last.headers, Cookies: last.cookies, DBRows: last.dbRows}
}

func requestToAny(r model.RequestStep) map[string]any {
	return map[string]any{
		"url": r.URL, "headers": r.Headers, "params": r.Params, "body": r.Body,
	}
}

func anyToRequest(orig model.RequestStep, rendered any) model.RequestStep {
	m, ok := rendered.(map[string]any)
	if !ok {
		return orig
	}
	out := orig
	if v, ok := m["url"].(string); ok {
		out.URL = v
	}
	if v, ok := m["headers"].(map[string]any); ok {
		out.Headers = v
	}
	if v, ok := m["params"].(map[string]any); ok {
		out.Params = v
	}
	if v, ok := m["body"]; ok {
		out.Body = v
	}
	return out
}

func anyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
