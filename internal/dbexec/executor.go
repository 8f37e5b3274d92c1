package dbexec

import (
	"context"
	"fmt"
	"strings"

	"github.com/sisyphus-test/sisyphus/internal/errs"
)

// denylist blocks the rendered-SQL injection patterns spec §4.9 requires at
// minimum: statement stacking and comment-based truncation.
var denylist = []string{";--", "; --", "/*", "*/", "xp_cmdshell"}

// CheckRenderedSQL rejects rendered SQL containing a denylisted token. The
// loader/scheduler call this after template rendering, before Query, since
// only the rendered (variable-substituted) string can carry injected
// content.
func CheckRenderedSQL(rendered string) *errs.CaseError {
	lower := strings.ToLower(rendered)
	for _, tok := range denylist {
		if strings.Contains(lower, strings.ToLower(tok)) {
			return errs.New(errs.ClassStep, errs.CodeDBQuery, fmt.Sprintf("rendered SQL contains denylisted token %q", tok)).
				WithDetail("rendered", rendered)
		}
	}
	if strings.Count(rendered, ";") > 1 {
		return errs.New(errs.ClassStep, errs.CodeDBQuery, "rendered SQL appears to stack multiple statements").
			WithDetail("rendered", rendered)
	}
	return nil
}

// Execute resolves datasource, checks the rendered SQL, and runs the query.
func Execute(ctx context.Context, registry *Registry, datasource, renderedSQL string) (Result, *errs.CaseError) {
	if ce := CheckRenderedSQL(renderedSQL); ce != nil {
		return Result{}, ce
	}

	adapter, ce := registry.Get(datasource)
	if ce != nil {
		return Result{}, ce
	}

	result, err := adapter.Query(ctx, renderedSQL)
	if err != nil {
		if isConnectionError(err) {
			return Result{}, errs.New(errs.ClassStep, errs.CodeDBConnection, err.Error())
		}
		return Result{}, errs.New(errs.ClassStep, errs.CodeDBQuery, err.Error())
	}
	return result, nil
}

func isConnectionError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "driver: bad connection") ||
		strings.Contains(msg, "broken pipe")
}
