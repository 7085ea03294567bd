// Package memorytest holds behavioural tests shared by memory.Store
// implementations.
package memorytest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/egobogo/addvar/internal/memory"
)

// Factory returns a fresh, empty store. The factory is responsible for
// registering cleanup with t.
type Factory func(t *testing.T) memory.Store

// Run exercises the Store contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("AppendRecall", func(t *testing.T) { testAppendRecall(t, newStore(t)) })
	t.Run("DistinctIDs", func(t *testing.T) { testDistinctIDs(t, newStore(t)) })
	t.Run("UpdateNotFound", func(t *testing.T) { testUpdateNotFound(t, newStore(t)) })
	t.Run("UpdateKeepsContent", func(t *testing.T) { testUpdateKeepsContent(t, newStore(t)) })
	t.Run("LedgerOrder", func(t *testing.T) { testLedgerOrder(t, newStore(t)) })
	t.Run("ListSnapshot", func(t *testing.T) { testListSnapshot(t, newStore(t)) })
	t.Run("ConcurrentAppends", func(t *testing.T) { testConcurrentAppends(t, newStore(t)) })
}

func testAppendRecall(t *testing.T, s memory.Store) {
	ctx := context.Background()
	contents := []string{"first tangent", "Tangent_42 resolved", "ünïcödé ✓", " "}
	for _, c := range contents {
		u, err := s.Append(ctx, memory.Draft{
			Content:  c,
			Tags:     []memory.Tag{{Name: "t", Confidence: 0.5}},
			Vector:   []float32{0.1, 0.2},
			Metadata: map[string]any{"k": "v"},
		})
		if err != nil {
			t.Fatalf("Append(%q): %v", c, err)
		}
		got, err := s.Recall(ctx, u.ID)
		if err != nil {
			t.Fatalf("Recall(%s): %v", u.ID, err)
		}
		if got.Content != c {
			t.Errorf("Recall content = %q, want %q", got.Content, c)
		}
		if len(got.Tags) != 1 || got.Tags[0].Name != "t" || got.Tags[0].Confidence != 0.5 {
			t.Errorf("Recall tags = %+v", got.Tags)
		}
		if len(got.Vector) != 2 || got.Metadata["k"] != "v" {
			t.Errorf("Recall vector/metadata = %v %v", got.Vector, got.Metadata)
		}
		if got.CreatedAt.IsZero() {
			t.Error("CreatedAt not set")
		}
	}

	if _, err := s.Append(ctx, memory.Draft{}); !errors.Is(err, memory.ErrEmptyContent) {
		t.Errorf("Append empty: expected ErrEmptyContent, got %v", err)
	}
	if _, err := s.Recall(ctx, "missing"); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("Recall missing: expected ErrNotFound, got %v", err)
	}
}

func testDistinctIDs(t *testing.T, s memory.Store) {
	ctx := context.Background()
	a, err := s.Append(ctx, memory.Draft{Content: "same"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	b, err := s.Append(ctx, memory.Draft{Content: "same"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("ids not distinct: %q %q", a.ID, b.ID)
	}
}

func testUpdateNotFound(t *testing.T, s memory.Store) {
	ctx := context.Background()
	_, err := s.Update(ctx, "missing", memory.Changes{Tags: []memory.Tag{}})
	if !errors.Is(err, memory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	entries, err := memory.Collect(s.Ledger(ctx))
	if err != nil {
		t.Fatalf("Ledger: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("failed update appended %d ledger entries", len(entries))
	}
}

func testUpdateKeepsContent(t *testing.T, s memory.Store) {
	ctx := context.Background()
	u, err := s.Append(ctx, memory.Draft{Content: "payload", Vector: []float32{1, 2, 3}})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	updated, err := s.Update(ctx, u.ID, memory.Changes{
		Tags:     []memory.Tag{{Name: "calm", Confidence: 0.7}},
		Metadata: map[string]any{"reviewed": true},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Content != "payload" || updated.ID != u.ID || !updated.CreatedAt.Equal(u.CreatedAt) {
		t.Errorf("immutable fields changed: %+v", updated)
	}
	got, err := s.Recall(ctx, u.ID)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(got.Tags) != 1 || got.Tags[0].Name != "calm" || got.Metadata["reviewed"] != true {
		t.Errorf("update not visible: %+v", got)
	}

	if _, err := s.Update(ctx, u.ID, memory.Changes{Vector: []float32{1}}); !errors.Is(err, memory.ErrVectorLength) {
		t.Errorf("expected ErrVectorLength, got %v", err)
	}
}

func testLedgerOrder(t *testing.T, s memory.Store) {
	ctx := context.Background()
	var want []memory.Action
	var ids []string

	for i := range 3 {
		u, err := s.Append(ctx, memory.Draft{Content: fmt.Sprintf("unit %d", i)})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		ids = append(ids, u.ID)
		want = append(want, memory.ActionStore)
	}
	if _, err := s.Update(ctx, ids[1], memory.Changes{Metadata: map[string]any{"x": "y"}}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	want = append(want, memory.ActionUpdate)
	if _, err := s.Note(ctx, memory.ActionMerge, "gone", map[string]any{"summary": "s"}); err != nil {
		t.Fatalf("Note: %v", err)
	}
	want = append(want, memory.ActionMerge)
	if _, err := s.Note(ctx, memory.Action("explode"), ids[0], nil); err == nil {
		t.Error("Note accepted an unknown action")
	}

	entries, err := memory.Collect(s.Ledger(ctx))
	if err != nil {
		t.Fatalf("Ledger: %v", err)
	}
	if len(entries) != len(want) {
		t.Fatalf("ledger length = %d, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.Action != want[i] {
			t.Errorf("entry %d action = %s, want %s", i, e.Action, want[i])
		}
		if e.Seq != uint64(i+1) {
			t.Errorf("entry %d seq = %d", i, e.Seq)
		}
		if i > 0 && e.Timestamp.Before(entries[i-1].Timestamp) {
			t.Errorf("entry %d timestamp went backwards", i)
		}
	}
	if entries[0].NodeID != ids[0] || entries[3].NodeID != ids[1] || entries[4].NodeID != "gone" {
		t.Errorf("unexpected node ids: %+v", entries)
	}
}

func testListSnapshot(t *testing.T, s memory.Store) {
	ctx := context.Background()
	for i := range 3 {
		if _, err := s.Append(ctx, memory.Draft{Content: fmt.Sprintf("unit %d", i)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	seq := s.List(ctx)
	if _, err := s.Append(ctx, memory.Draft{Content: "late"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	for pass := range 2 {
		units, err := memory.Collect(seq)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(units) != 3 {
			t.Fatalf("pass %d: snapshot has %d units, want 3", pass, len(units))
		}
		for i, u := range units {
			if want := fmt.Sprintf("unit %d", i); u.Content != want {
				t.Errorf("pass %d: unit %d content = %q, want %q", pass, i, u.Content, want)
			}
		}
	}

	all, err := memory.Collect(s.List(ctx))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("fresh List has %d units, want 4", len(all))
	}
}

func testConcurrentAppends(t *testing.T, s memory.Store) {
	ctx := context.Background()
	const writers, perWriter = 8, 25

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				if _, err := s.Append(ctx, memory.Draft{Content: fmt.Sprintf("w%d-%d", w, i)}); err != nil {
					errs <- err
					return
				}
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWriter {
				if _, err := memory.Collect(s.List(ctx)); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent op: %v", err)
	}

	entries, err := memory.Collect(s.Ledger(ctx))
	if err != nil {
		t.Fatalf("Ledger: %v", err)
	}
	if len(entries) != writers*perWriter {
		t.Fatalf("ledger length = %d, want %d", len(entries), writers*perWriter)
	}
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.Seq != uint64(i+1) {
			t.Fatalf("entry %d has seq %d", i, e.Seq)
		}
		if i > 0 && e.Timestamp.Before(entries[i-1].Timestamp) {
			t.Fatalf("entry %d timestamp went backwards", i)
		}
		if seen[e.NodeID] {
			t.Fatalf("duplicate node id %s", e.NodeID)
		}
		seen[e.NodeID] = true
	}
}
