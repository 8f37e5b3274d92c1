package template

import (
	"fmt"

	"github.com/sisyphus-test/sisyphus/internal/errs"
)

const maxResolvePasses = 10

// ResolveNested repeatedly renders every value in vars against lookup until
// no value contains an unresolved `{{...}}` reference, or maxResolvePasses is
// exhausted, so entries of one map can reference one another (and names
// lookup resolves) regardless of declaration order. The engine does not call
// it: config.variables are seeded into the store as written, and a reference
// inside one config variable's value is not expanded when that variable is
// read.
//
// Returns the fully-resolved copy; the input map is never mutated.
func (r *Renderer) ResolveNested(vars map[string]any, lookup Lookup) (map[string]any, error) {
	current := make(map[string]any, len(vars))
	for k, v := range vars {
		current[k] = v
	}

	for pass := 0; pass < maxResolvePasses; pass++ {
		next := make(map[string]any, len(current))
		changed := false
		var lastErr error
		for k, v := range current {
			rendered, err := r.Render(v, chainLookup{primary: mapLookup(current), fallback: lookup})
			if err != nil {
				lastErr = err
				next[k] = v
				continue
			}
			if !equalValue(rendered, v) {
				changed = true
			}
			next[k] = rendered
		}
		current = next
		if !changed {
			if lastErr != nil {
				return nil, errs.New(errs.ClassStep, errs.CodeVariableRender, fmt.Sprintf("unresolved variable reference: %v", lastErr))
			}
			return current, nil
		}
	}
	return nil, errs.New(errs.ClassStep, errs.CodeVariableRender, "variable references did not converge within the pass limit")
}

type mapLookup map[string]any

func (m mapLookup) Get(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// chainLookup tries primary first (the in-progress resolution map), falling
// back to the underlying store so references to already-seeded layers resolve
// even on pass one.
type chainLookup struct {
	primary  Lookup
	fallback Lookup
}

func (c chainLookup) Get(name string) (any, bool) {
	if v, ok := c.primary.Get(name); ok {
		return v, ok
	}
	return c.fallback.Get(name)
}

func equalValue(a, b any) bool {
	return fmt.Sprintf("%#v", a) == fmt.Sprintf("%#v", b)
}
