// Package store implements the Variable Store (C2): a stratified key/value
// space with the six-layer precedence order from spec §4.2.
//
// Grounded on the teacher's two ValueStore implementations
// (runtime/engine/yaml/value_store.go, runtime/engine/dsl/value_store.go),
// generalized from a single flat/nested map into the layered model the
// scenario DSL requires, and extended with isolated overlays for concurrent
// fan-out (§4.12/§5) instead of the teacher's single shared map.
package store

import "maps"

// Layer identifies one of the five resolvable precedence layers. Built-in
// functions (layer 6) are resolved by the template renderer, not here.
type Layer int

const (
	LayerRow         Layer = iota // 1: current data-driven row parameters
	LayerGlobal                   // 2: global-scope extractions
	LayerEphemeral                // 3: loop/foreach/poll ephemeral variables
	LayerConfig                   // 4: Config.variables
	LayerEnvironment              // 5: Config.environment.variables (+ environment-scope extractions)
)

// Store is the variable resolution context threaded through one case
// execution. The zero value is not usable; use New.
type Store struct {
	row         map[string]any
	global      map[string]any
	ephemeral   []map[string]any // stack; innermost loop scope is last
	config      map[string]any
	environment map[string]any
}

// New creates an empty Store with all layers initialized.
func New() *Store {
	return &Store{
		row:         make(map[string]any),
		global:      make(map[string]any),
		ephemeral:   nil,
		config:      make(map[string]any),
		environment: make(map[string]any),
	}
}

// SeedConfig populates layer 4 (Config.variables).
func (s *Store) SeedConfig(vars map[string]any) {
	maps.Copy(s.config, vars)
}

// SeedEnvironment populates layer 5 (Config.environment.variables).
func (s *Store) SeedEnvironment(vars map[string]any) {
	maps.Copy(s.environment, vars)
}

// SeedRow populates layer 1 for a data-driven run.
func (s *Store) SeedRow(row map[string]any) {
	maps.Copy(s.row, row)
}

// Get resolves name against layers 1-5, highest precedence first. The bool
// distinguishes "not found" from a found-but-nil value.
func (s *Store) Get(name string) (any, bool) {
	if v, ok := s.row[name]; ok {
		return v, true
	}
	if v, ok := s.global[name]; ok {
		return v, true
	}
	for i := len(s.ephemeral) - 1; i >= 0; i-- {
		if v, ok := s.ephemeral[i][name]; ok {
			return v, true
		}
	}
	if v, ok := s.config[name]; ok {
		return v, true
	}
	if v, ok := s.environment[name]; ok {
		return v, true
	}
	return nil, false
}

// SetGlobal writes to layer 2 (scope=global extractions, and step results
// such as last_response).
func (s *Store) SetGlobal(name string, value any) {
	s.global[name] = value
}

// SetEnvironment writes to layer 5 (scope=environment extractions).
func (s *Store) SetEnvironment(name string, value any) {
	s.environment[name] = value
}

// PushEphemeral opens a new layer-3 scope (e.g. entering a loop body) and
// returns a function that pops it.
func (s *Store) PushEphemeral(vars map[string]any) func() {
	s.ephemeral = append(s.ephemeral, vars)
	return func() {
		s.ephemeral = s.ephemeral[:len(s.ephemeral)-1]
	}
}

// SetEphemeral writes into the current innermost ephemeral scope, opening one
// at the case root if none is active.
func (s *Store) SetEphemeral(name string, value any) {
	if len(s.ephemeral) == 0 {
		s.ephemeral = append(s.ephemeral, make(map[string]any))
	}
	s.ephemeral[len(s.ephemeral)-1][name] = value
}

// All returns the merged view used for expression evaluation: layers 1-5,
// flattened with the same precedence as Get.
func (s *Store) All() map[string]any {
	merged := make(map[string]any, len(s.environment)+len(s.config)+len(s.global)+len(s.row))
	maps.Copy(merged, s.environment)
	maps.Copy(merged, s.config)
	for _, e := range s.ephemeral {
		maps.Copy(merged, e)
	}
	maps.Copy(merged, s.global)
	maps.Copy(merged, s.row)
	return merged
}

// Snapshot returns the final variables document for CaseResult.variables:
// layer 2 ∪ layer 5 ∪ layer 1, per spec §4.15.
func (s *Store) Snapshot() map[string]any {
	merged := make(map[string]any, len(s.global)+len(s.environment)+len(s.row))
	maps.Copy(merged, s.global)
	maps.Copy(merged, s.environment)
	maps.Copy(merged, s.row)
	return merged
}

// Clone returns an isolated overlay sharing no mutable state with s, for a
// concurrent fan-out worker (§4.12/§5). Each layer is deep-copied at the
// top level; nested maps/slices are shared by reference since extraction
// writes replace whole values rather than mutating in place.
func (s *Store) Clone() *Store {
	clone := &Store{
		row:         make(map[string]any, len(s.row)),
		global:      make(map[string]any, len(s.global)),
		config:      make(map[string]any, len(s.config)),
		environment: make(map[string]any, len(s.environment)),
	}
	maps.Copy(clone.row, s.row)
	maps.Copy(clone.global, s.global)
	maps.Copy(clone.config, s.config)
	maps.Copy(clone.environment, s.environment)
	for _, e := range s.ephemeral {
		cp := make(map[string]any, len(e))
		maps.Copy(cp, e)
		clone.ephemeral = append(clone.ephemeral, cp)
	}
	return clone
}

// MergeGlobal merges another store's global- and environment-layer values
// into s. Used by the
// Loop/Concurrent Driver to reconcile worker overlays back into the parent
// store with deterministic last-writer-wins by iteration index (the caller
// controls iteration order by calling MergeGlobal in index order).
func (s *Store) MergeGlobal(other *Store) {
	maps.Copy(s.global, other.global)
	maps.Copy(s.environment, other.environment)
}
