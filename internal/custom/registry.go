// Package custom implements the custom step registry: a name->function table
// invoked by keywordType=custom steps.
//
// Grounded on the teacher's runtime/container.go, which discovers Task
// implementations by reflection and wraps them as typedTaskWrapper/
// pluginTaskWrapper. This package keeps the wrapper idea (every registered
// function sees the same (ctx, params, store) -> (map[string]any, error)
// shape) but drops the reflection-based auto-discovery, since custom steps
// here are registered explicitly by the host program rather than discovered
// from a plugin directory.
package custom

import (
	"context"
	"fmt"
	"sync"

	"github.com/sisyphus-test/sisyphus/internal/errs"
	"github.com/sisyphus-test/sisyphus/internal/store"
)

// Func is one custom step implementation.
type Func func(ctx context.Context, params map[string]any, st *store.Store) (map[string]any, error)

// Registry maps keywordName to Func.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds or replaces the function for name.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Invoke runs the registered function for name, or a KEYWORD_NOT_FOUND-class
// error if nothing is registered.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]any, st *store.Store) (map[string]any, error) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.New(errs.ClassStep, errs.CodeKeywordNotFound, fmt.Sprintf("custom keyword %q not registered", name))
	}
	return fn(ctx, params, st)
}
