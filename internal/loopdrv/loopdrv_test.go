package loopdrv

import (
	"context"
	"testing"

	"github.com/sisyphus-test/sisyphus/internal/model"
	"github.com/sisyphus-test/sisyphus/internal/store"
)

func TestRunForPublishesItemAndIndex(t *testing.T) {
	st := store.New()
	var seen []any
	_, err := RunFor(context.Background(), st, []any{"a", "b", "c"}, func(ctx context.Context, s *store.Store) (model.Status, error) {
		item, _ := s.Get("item")
		idx, _ := s.Get("index")
		seen = append(seen, []any{item, idx})
		return model.StatusPassed, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 3 {
		t.Fatalf("got %v", seen)
	}
}

func TestRunWhileStopsWhenConditionFalse(t *testing.T) {
	st := store.New()
	count := 0
	cond := func(s *store.Store) (bool, error) { return count < 3, nil }
	status, err := RunWhile(context.Background(), st, 100, cond, func(ctx context.Context, s *store.Store) (model.Status, error) {
		count++
		return model.StatusPassed, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if status != model.StatusPassed || count != 3 {
		t.Fatalf("count=%d status=%v", count, status)
	}
}

func TestRunWhileExceedsCeiling(t *testing.T) {
	st := store.New()
	_, err := RunWhile(context.Background(), st, 5, func(s *store.Store) (bool, error) { return true, nil },
		func(ctx context.Context, s *store.Store) (model.Status, error) { return model.StatusPassed, nil })
	if err == nil {
		t.Fatal("expected ceiling error")
	}
}

func TestRunConcurrentIsolatesOverlaysAndMergesInOrder(t *testing.T) {
	st := store.New()
	items := []any{1, 2, 3, 4}
	overall, statuses, err := RunConcurrent(context.Background(), st, 2, items, func(ctx context.Context, overlay *store.Store, item any, index int) (model.Status, error) {
		overlay.SetGlobal("last_item", item)
		return model.StatusPassed, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if overall != model.StatusPassed || len(statuses) != 4 {
		t.Fatalf("got %v %v", overall, statuses)
	}
	v, _ := st.Get("last_item")
	if v != 4 {
		t.Fatalf("expected last_item to be deterministically the highest index's write, got %v", v)
	}
}

func TestRunConcurrentAggregatesFailure(t *testing.T) {
	st := store.New()
	items := []any{1, 2}
	overall, _, err := RunConcurrent(context.Background(), st, 2, items, func(ctx context.Context, overlay *store.Store, item any, index int) (model.Status, error) {
		if index == 1 {
			return model.StatusFailed, nil
		}
		return model.StatusPassed, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if overall != model.StatusFailed {
		t.Fatalf("expected aggregate failed, got %v", overall)
	}
}
