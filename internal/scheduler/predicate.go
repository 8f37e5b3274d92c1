package scheduler

import (
	"strconv"
	"strings"

	"github.com/sisyphus-test/sisyphus/internal/compare"
	"github.com/sisyphus-test/sisyphus/internal/store"
)

// predicateOps lists the tiny grammar's operators, longest-match first so
// ">=" is not mistaken for ">" followed by "=".
var predicateOps = []string{"==", "!=", ">=", "<=", ">", "<"}

var opToComparator = map[string]string{
	"==": "eq", "!=": "neq", ">": "gt", ">=": "gte", "<": "lt", "<=": "lte",
}

// evalPredicate implements the skip_if/only_if grammar from spec §4.13:
// `<var> <op> <literal>`. A variable that isn't found in the store
// evaluates falsy rather than erroring ("an empty store reference evaluates
// falsy").
func evalPredicate(expr string, st *store.Store) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false, nil
	}

	for _, op := range predicateOps {
		if idx := strings.Index(expr, op); idx >= 0 {
			lhs := strings.TrimSpace(expr[:idx])
			rhs := strings.TrimSpace(expr[idx+len(op):])
			return applyPredicate(lhs, op, rhs, st)
		}
	}

	// No operator: a bare variable reference, truthy iff present and not a
	// JSON-falsy value.
	v, ok := st.Get(expr)
	if !ok {
		return false, nil
	}
	return isTruthy(v), nil
}

func applyPredicate(varName, op, literal string, st *store.Store) (bool, error) {
	actual, ok := st.Get(varName)
	if !ok {
		return false, nil
	}
	expected := parseLiteral(literal)
	comparator := opToComparator[op]
	return compare.Compare(comparator, actual, expected)
}

func parseLiteral(s string) any {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func isTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return true
	}
}
