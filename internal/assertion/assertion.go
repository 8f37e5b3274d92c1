// Package assertion implements the Validator (C7): resolving a target's
// actual value and comparing it to a templated expected value.
//
// Grounded on the teacher's evaluateCondition (runtime/executor.go), which
// resolves a small expression against the execution context before
// branching; generalized here into the spec's seven assertion targets and
// wired to internal/compare for the comparator application.
package assertion

import (
	"fmt"
	"strings"

	"github.com/sisyphus-test/sisyphus/internal/compare"
	"github.com/sisyphus-test/sisyphus/internal/errs"
	"github.com/sisyphus-test/sisyphus/internal/jsonpath"
	"github.com/sisyphus-test/sisyphus/internal/model"
)

// Context bundles everything a validate rule might resolve its actual value
// against.
type Context struct {
	Body           any
	StatusCode     int
	ResponseTimeMs int64
	Headers        map[string][]string
	Cookies        map[string]string
	DBRows         []any
	EnvLookup      func(name string) (any, bool)
}

// Render renders a value through the template engine before comparison; the
// caller supplies this since the template package depends on a store.Lookup
// that assertion does not otherwise need.
type Render func(v any) (any, error)

// Apply resolves rule.Target, renders rule.Expected, and compares.
func Apply(rule model.ValidateRule, ctx Context, render Render) model.AssertionResult {
	actual, err := resolveTarget(rule, ctx)
	if err != nil {
		return model.AssertionResult{
			Target: rule.Target, Expression: rule.Expression, Comparator: rule.Comparator,
			Expected: rule.Expected, Status: model.StatusError, Message: err.Error(),
		}
	}

	expected := rule.Expected
	if render != nil {
		rendered, err := render(rule.Expected)
		if err != nil {
			return model.AssertionResult{
				Target: rule.Target, Expression: rule.Expression, Comparator: rule.Comparator,
				Expected: rule.Expected, Actual: actual, Status: model.StatusError, Message: err.Error(),
			}
		}
		expected = rendered
	}

	ok, err := compare.Compare(rule.Comparator, actual, expected)
	if err != nil {
		return model.AssertionResult{
			Target: rule.Target, Expression: rule.Expression, Comparator: rule.Comparator,
			Expected: expected, Actual: actual, Status: model.StatusError, Message: err.Error(),
		}
	}

	status := model.StatusPassed
	msg := ""
	if !ok {
		status = model.StatusFailed
		msg = rule.Message
		if msg == "" {
			msg = fmt.Sprintf("%s %s %v failed: got %v", rule.Target, rule.Comparator, expected, actual)
		}
	}
	return model.AssertionResult{
		Target: rule.Target, Expression: rule.Expression, Comparator: rule.Comparator,
		Expected: expected, Actual: actual, Status: status, Message: msg,
	}
}

func resolveTarget(rule model.ValidateRule, ctx Context) (any, error) {
	switch strings.ToLower(rule.Target) {
	case "status_code":
		return ctx.StatusCode, nil
	case "response_time":
		return ctx.ResponseTimeMs, nil
	case "json":
		if ctx.Body == nil {
			return nil, errs.New(errs.ClassAssertion, errs.CodeAssertionFailed, "no response body available")
		}
		return jsonpath.Evaluate(ctx.Body, rule.Expression)
	case "header":
		return lookupHeader(ctx.Headers, rule.Expression)
	case "cookie":
		return lookupCookie(ctx.Cookies, rule.Expression)
	case "env_variable":
		if ctx.EnvLookup == nil {
			return nil, errs.New(errs.ClassAssertion, errs.CodeVariableNotFound, "no variable lookup available")
		}
		v, ok := ctx.EnvLookup(rule.Expression)
		if !ok {
			return nil, errs.New(errs.ClassAssertion, errs.CodeVariableNotFound, fmt.Sprintf("variable %q not found", rule.Expression))
		}
		return v, nil
	case "db_result":
		if ctx.DBRows == nil {
			return nil, errs.New(errs.ClassAssertion, errs.CodeAssertionFailed, "no db result available")
		}
		return jsonpath.Evaluate(ctx.DBRows, rule.Expression)
	default:
		return nil, errs.New(errs.ClassAssertion, errs.CodeAssertionFailed, fmt.Sprintf("unknown validate target %q", rule.Target))
	}
}

func lookupHeader(headers map[string][]string, name string) (any, error) {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			if len(v) == 1 {
				return v[0], nil
			}
			return v, nil
		}
	}
	return nil, errs.New(errs.ClassAssertion, errs.CodeAssertionFailed, fmt.Sprintf("header %q not found", name))
}

func lookupCookie(cookies map[string]string, name string) (any, error) {
	for k, v := range cookies {
		if strings.EqualFold(k, name) {
			return v, nil
		}
	}
	return nil, errs.New(errs.ClassAssertion, errs.CodeAssertionFailed, fmt.Sprintf("cookie %q not found", name))
}
