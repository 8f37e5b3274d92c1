package compare

import "testing"

func TestEqNumericCoercion(t *testing.T) {
	ok, err := Compare("eq", float64(200), "200")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected eq to coerce numeric string")
	}
}

func TestAliases(t *testing.T) {
	cases := []struct {
		alias string
		want  Name
	}{
		{"ge", Gte},
		{"le", Lte},
		{"in", Contains},
		{"not_in", NotContains},
	}
	for _, c := range cases {
		got, ok := Canonical(c.alias)
		if !ok || got != c.want {
			t.Fatalf("alias %q: got %v ok=%v want %v", c.alias, got, ok, c.want)
		}
	}
}

func TestGtNumeric(t *testing.T) {
	ok, err := Compare("gt", 10, 5)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestContainsString(t *testing.T) {
	ok, err := Compare("contains", "hello world", "world")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestContainsList(t *testing.T) {
	ok, err := Compare("contains", []any{"a", "b", "c"}, "b")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestNotContains(t *testing.T) {
	ok, err := Compare("not_contains", "hello", "xyz")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestMatchesIsPartialNotAnchored(t *testing.T) {
	// Regression point: "matches" must behave as an unanchored partial
	// match, not an implicit full-string anchor.
	ok, err := Compare("matches", "order-12345", "^order-\\d+$")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	ok, err = Compare("matches", "prefix order-12345 suffix", "order-\\d+")
	if err != nil || !ok {
		t.Fatalf("expected unanchored partial match to succeed: ok=%v err=%v", ok, err)
	}
}

func TestTypeMatch(t *testing.T) {
	// The spec's literal token set (§4.5): int, str, list, dict, bool, null.
	cases := []struct {
		actual   any
		expected string
	}{
		{42.0, "int"},
		{"text", "str"},
		{[]any{1, 2}, "list"},
		{map[string]any{"a": 1}, "dict"},
		{true, "bool"},
		{nil, "null"},
	}
	for _, c := range cases {
		ok, err := Compare("type_match", c.actual, c.expected)
		if err != nil || !ok {
			t.Fatalf("type_match(%v, %q): ok=%v err=%v", c.actual, c.expected, ok, err)
		}
	}

	// Long-form aliases still work alongside the spec's literals.
	ok, err := Compare("type_match", []any{1, 2}, "array")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	ok, err = Compare("type_match", "text", "string")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestLengthComparators(t *testing.T) {
	ok, err := Compare("length_eq", []any{1, 2, 3}, 3)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	ok, err = Compare("length_gt", "hello", 3)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	ok, err = Compare("length_lt", "hi", 10)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestIsNullIsNotNull(t *testing.T) {
	ok, _ := Compare("is_null", nil, nil)
	if !ok {
		t.Fatal("expected is_null true for nil")
	}
	ok, _ = Compare("is_not_null", "x", nil)
	if !ok {
		t.Fatal("expected is_not_null true for non-nil")
	}
}

func TestUnknownComparator(t *testing.T) {
	_, err := Compare("bogus", 1, 1)
	if err == nil {
		t.Fatal("expected error for unknown comparator")
	}
}
