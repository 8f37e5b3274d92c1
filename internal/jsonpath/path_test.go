package jsonpath

import (
	"reflect"
	"testing"
)

var sample = map[string]any{
	"user": map[string]any{
		"id":   "u-1",
		"name": "Alice",
		"tags": []any{"admin", "beta"},
	},
	"items": []any{
		map[string]any{"id": 1, "price": 10.0, "active": true},
		map[string]any{"id": 2, "price": 20.0, "active": false},
		map[string]any{"id": 3, "price": 30.0, "active": true},
	},
}

func TestFieldPath(t *testing.T) {
	v, err := Evaluate(sample, "$.user.name")
	if err != nil {
		t.Fatal(err)
	}
	if v != "Alice" {
		t.Fatalf("got %v", v)
	}
}

func TestIndexPath(t *testing.T) {
	v, err := Evaluate(sample, "$.user.tags[0]")
	if err != nil {
		t.Fatal(err)
	}
	if v != "admin" {
		t.Fatalf("got %v", v)
	}
}

func TestNegativeIndex(t *testing.T) {
	v, err := Evaluate(sample, "$.user.tags[-1]")
	if err != nil {
		t.Fatal(err)
	}
	if v != "beta" {
		t.Fatalf("got %v", v)
	}
}

func TestWildcard(t *testing.T) {
	v, err := Evaluate(sample, "$.items[*].id")
	if err != nil {
		t.Fatal(err)
	}
	got := v.([]any)
	want := []any{float64(1), float64(2), float64(3)}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestFilter(t *testing.T) {
	v, err := Evaluate(sample, "$.items[?(@.active==true)].id")
	if err != nil {
		t.Fatal(err)
	}
	got := v.([]any)
	want := []any{float64(1), float64(3)}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestFilterWithComparison(t *testing.T) {
	v, err := Evaluate(sample, "$.items[?(@.price>15)].id")
	if err != nil {
		t.Fatal(err)
	}
	got := v.([]any)
	want := []any{float64(2), float64(3)}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestChainLength(t *testing.T) {
	v, err := Evaluate(sample, "$.items|length")
	if err != nil {
		t.Fatal(err)
	}
	if v != 3 {
		t.Fatalf("got %v", v)
	}
}

func TestChainSum(t *testing.T) {
	v, err := Evaluate(sample, "$.items[*].price|sum")
	if err != nil {
		t.Fatal(err)
	}
	if v != 60.0 {
		t.Fatalf("got %v", v)
	}
}

func TestChainFirst(t *testing.T) {
	v, err := Evaluate(sample, "$.user.tags|first")
	if err != nil {
		t.Fatal(err)
	}
	if v != "admin" {
		t.Fatalf("got %v", v)
	}
}

func TestRecursiveDescent(t *testing.T) {
	v, err := Evaluate(sample, "$..id")
	if err != nil {
		t.Fatal(err)
	}
	list, ok := v.([]any)
	if !ok || len(list) != 4 {
		t.Fatalf("expected 4 ids, got %v", v)
	}
}

func TestDBResultLength(t *testing.T) {
	rows := []any{
		map[string]any{"id": 1, "name": "a"},
		map[string]any{"id": 2, "name": "b"},
	}
	v, err := Evaluate(rows, "$.length")
	if err != nil {
		t.Fatal(err)
	}
	if v != float64(2) {
		t.Fatalf("got %v", v)
	}
}

func TestDBResultRowColumn(t *testing.T) {
	rows := []any{
		map[string]any{"id": 1, "name": "a"},
		map[string]any{"id": 2, "name": "b"},
	}
	v, err := Evaluate(rows, "$[1].name")
	if err != nil {
		t.Fatal(err)
	}
	if v != "b" {
		t.Fatalf("got %v", v)
	}
}

func TestStringFunctions(t *testing.T) {
	v, err := Evaluate(sample, "$.user.name|upper")
	if err != nil {
		t.Fatal(err)
	}
	if v != "ALICE" {
		t.Fatalf("got %v", v)
	}
}
