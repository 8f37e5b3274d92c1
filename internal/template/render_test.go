package template

import (
	"testing"
	"time"
)

type fakeLookup map[string]any

func (f fakeLookup) Get(name string) (any, bool) {
	v, ok := f[name]
	return v, ok
}

type fixedClock time.Time

func (f fixedClock) Now() time.Time { return time.Time(f) }

type fixedRand struct{}

func (fixedRand) HexString(n int) string {
	s := "abcdef0123456789abcdef0123456789"
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}

func (fixedRand) UUID() string { return "00000000-0000-0000-0000-000000000000" }

func TestRenderPlainVariable(t *testing.T) {
	r := New()
	lookup := fakeLookup{"name": "alice"}
	out, err := r.Render("hello {{name}}", lookup)
	if err != nil {
		t.Fatal(err)
	}
	if out != "hello alice" {
		t.Fatalf("got %v", out)
	}
}

func TestRenderWholeExpressionPreservesType(t *testing.T) {
	r := New()
	lookup := fakeLookup{"count": 42}
	out, err := r.Render("{{count}}", lookup)
	if err != nil {
		t.Fatal(err)
	}
	if out != 42 {
		t.Fatalf("expected native int 42, got %#v", out)
	}
}

func TestRenderNestedPath(t *testing.T) {
	r := New()
	lookup := fakeLookup{"user": map[string]any{"id": "u-1"}}
	out, err := r.Render("{{user.id}}", lookup)
	if err != nil {
		t.Fatal(err)
	}
	if out != "u-1" {
		t.Fatalf("got %v", out)
	}
}

func TestRenderMissingVariableErrors(t *testing.T) {
	r := New()
	_, err := r.Render("{{missing}}", fakeLookup{})
	if err == nil {
		t.Fatal("expected error for missing variable")
	}
}

func TestRenderMapAndList(t *testing.T) {
	r := New()
	lookup := fakeLookup{"x": "v"}
	in := map[string]any{
		"a": "{{x}}",
		"b": []any{"{{x}}", "literal"},
	}
	out, err := r.Render(in, lookup)
	if err != nil {
		t.Fatal(err)
	}
	m := out.(map[string]any)
	if m["a"] != "v" {
		t.Fatalf("got %v", m["a"])
	}
	list := m["b"].([]any)
	if list[0] != "v" || list[1] != "literal" {
		t.Fatalf("got %v", list)
	}
}

func TestBuiltinRandom(t *testing.T) {
	r := New(WithRandSource(fixedRand{}))
	out, err := r.Render("{{random(6)}}", fakeLookup{})
	if err != nil {
		t.Fatal(err)
	}
	if out != "abcdef" {
		t.Fatalf("got %v", out)
	}
}

func TestBuiltinRandomUUID(t *testing.T) {
	r := New(WithRandSource(fixedRand{}))
	out, err := r.Render("{{random_uuid()}}", fakeLookup{})
	if err != nil {
		t.Fatal(err)
	}
	if out != "00000000-0000-0000-0000-000000000000" {
		t.Fatalf("got %v", out)
	}
}

func TestBuiltinTimestamp(t *testing.T) {
	fixed := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	r := New(WithClock(fixedClock(fixed)))
	out, err := r.Render("{{timestamp()}}", fakeLookup{})
	if err != nil {
		t.Fatal(err)
	}
	if out != fixed.Unix() {
		t.Fatalf("got %v", out)
	}
}

func TestBuiltinDatetimeFormat(t *testing.T) {
	fixed := time.Date(2026, 7, 31, 12, 30, 0, 0, time.UTC)
	r := New(WithClock(fixedClock(fixed)))
	out, err := r.Render(`{{datetime("%Y-%m-%d")}}`, fakeLookup{})
	if err != nil {
		t.Fatal(err)
	}
	if out != "2026-07-31" {
		t.Fatalf("got %v", out)
	}
}

func TestRenderIsIdempotent(t *testing.T) {
	r := New()
	lookup := fakeLookup{"x": "plain text with no templates"}
	first, err := r.Render("{{x}}", lookup)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Render(first, lookup)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatalf("expected idempotent render, got %v then %v", first, second)
	}
}

func TestResolveNestedCrossReference(t *testing.T) {
	r := New()
	vars := map[string]any{
		"base": "https://{{host}}",
		"url":  "{{base}}/api",
	}
	resolved, err := r.ResolveNested(vars, fakeLookup{"host": "example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if resolved["url"] != "https://example.com/api" {
		t.Fatalf("got %v", resolved["url"])
	}
}

func TestResolveNestedUnresolvable(t *testing.T) {
	r := New()
	vars := map[string]any{"a": "{{missing}}"}
	_, err := r.ResolveNested(vars, fakeLookup{})
	if err == nil {
		t.Fatal("expected error for unresolvable reference")
	}
}
