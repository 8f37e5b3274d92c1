package store

import "testing"

func TestPrecedence(t *testing.T) {
	s := New()
	s.SeedEnvironment(map[string]any{"x": "env"})
	s.SeedConfig(map[string]any{"x": "config"})
	pop := s.PushEphemeral(map[string]any{"x": "ephemeral"})
	s.SetGlobal("x", "global")
	s.SeedRow(map[string]any{"x": "row"})

	v, ok := s.Get("x")
	if !ok || v != "row" {
		t.Fatalf("expected row to win, got %v", v)
	}

	s.row = map[string]any{}
	v, ok = s.Get("x")
	if !ok || v != "global" {
		t.Fatalf("expected global to win over ephemeral, got %v", v)
	}

	s.global = map[string]any{}
	v, ok = s.Get("x")
	if !ok || v != "ephemeral" {
		t.Fatalf("expected ephemeral to win over config, got %v", v)
	}

	pop()
	v, ok = s.Get("x")
	if !ok || v != "config" {
		t.Fatalf("expected config to win over environment after pop, got %v", v)
	}
}

func TestMissingReturnsNotFound(t *testing.T) {
	s := New()
	if _, ok := s.Get("missing"); ok {
		t.Fatal("expected missing key to report not found")
	}
}

func TestSnapshotExcludesConfigAndEphemeral(t *testing.T) {
	s := New()
	s.SeedConfig(map[string]any{"a": 1})
	s.SeedEnvironment(map[string]any{"b": 2})
	s.SeedRow(map[string]any{"c": 3})
	s.SetGlobal("d", 4)
	s.PushEphemeral(map[string]any{"e": 5})

	snap := s.Snapshot()
	if _, ok := snap["a"]; ok {
		t.Fatal("config layer must not appear in snapshot")
	}
	if _, ok := snap["e"]; ok {
		t.Fatal("ephemeral layer must not appear in snapshot")
	}
	if snap["b"] != 2 || snap["c"] != 3 || snap["d"] != 4 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestCloneIsolation(t *testing.T) {
	s := New()
	s.SetGlobal("x", "orig")
	clone := s.Clone()
	clone.SetGlobal("x", "changed")

	v, _ := s.Get("x")
	if v != "orig" {
		t.Fatalf("expected parent store unaffected by clone mutation, got %v", v)
	}

	s.MergeGlobal(clone)
	v, _ = s.Get("x")
	if v != "changed" {
		t.Fatalf("expected merge to propagate clone's write, got %v", v)
	}
}
