package memory_test

import (
	"errors"
	"testing"
	"time"

	"github.com/egobogo/addvar/internal/memory"
)

func TestNewUnitRequiresContent(t *testing.T) {
	_, err := memory.NewUnit("id", memory.Draft{}, time.Now())
	if !errors.Is(err, memory.ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
}

func TestNewUnitCopiesInput(t *testing.T) {
	tags := []memory.Tag{{Name: "joy", Confidence: 0.9}}
	vec := []float32{1, 2, 3}
	meta := map[string]any{"source": "chat"}

	u, err := memory.NewUnit("id", memory.Draft{Content: "hello", Tags: tags, Vector: vec, Metadata: meta}, time.Now())
	if err != nil {
		t.Fatalf("NewUnit: %v", err)
	}
	tags[0].Name = "changed"
	vec[0] = 42
	meta["source"] = "changed"

	if u.Tags[0].Name != "joy" || u.Vector[0] != 1 || u.Metadata["source"] != "chat" {
		t.Errorf("unit shares memory with the draft: %+v", u)
	}
}

func TestApply(t *testing.T) {
	base, err := memory.NewUnit("id", memory.Draft{
		Content:  "hello",
		Vector:   []float32{1, 0},
		Metadata: map[string]any{"a": 1},
	}, time.Now())
	if err != nil {
		t.Fatalf("NewUnit: %v", err)
	}

	tests := []struct {
		name    string
		changes memory.Changes
		wantErr error
		check   func(t *testing.T, u memory.Unit)
	}{
		{
			name:    "replace tags",
			changes: memory.Changes{Tags: []memory.Tag{{Name: "x", Confidence: 1}}},
			check: func(t *testing.T, u memory.Unit) {
				if len(u.Tags) != 1 || u.Tags[0].Name != "x" {
					t.Errorf("tags = %+v", u.Tags)
				}
			},
		},
		{
			name:    "merge metadata",
			changes: memory.Changes{Metadata: map[string]any{"b": 2}},
			check: func(t *testing.T, u memory.Unit) {
				if u.Metadata["a"] != 1 || u.Metadata["b"] != 2 {
					t.Errorf("metadata = %+v", u.Metadata)
				}
			},
		},
		{
			name:    "same length vector",
			changes: memory.Changes{Vector: []float32{0, 1}},
			check: func(t *testing.T, u memory.Unit) {
				if u.Vector[1] != 1 {
					t.Errorf("vector = %v", u.Vector)
				}
			},
		},
		{
			name:    "different length vector",
			changes: memory.Changes{Vector: []float32{1, 2, 3}},
			wantErr: memory.ErrVectorLength,
		},
		{
			name:    "empty vector",
			changes: memory.Changes{Vector: []float32{}},
			wantErr: memory.ErrVectorLength,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := memory.Apply(base, tt.changes)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if u.Content != base.Content || u.ID != base.ID || !u.CreatedAt.Equal(base.CreatedAt) {
				t.Errorf("immutable fields changed: %+v", u)
			}
			tt.check(t, u)
		})
	}
	if base.Metadata["b"] != nil {
		t.Error("Apply mutated the original unit")
	}
}

func TestClockNeverGoesBackwards(t *testing.T) {
	t0 := time.Date(2025, 10, 16, 18, 25, 0, 0, time.UTC)
	times := []time.Time{t0, t0.Add(-time.Minute), t0.Add(time.Second)}
	i := 0
	c := &memory.Clock{Now: func() time.Time { v := times[i]; i++; return v }}

	a, b, d := c.Next(), c.Next(), c.Next()
	if !a.Equal(t0) || !b.Equal(t0) || !d.Equal(t0.Add(time.Second)) {
		t.Errorf("got %v %v %v", a, b, d)
	}
}

func TestActionValid(t *testing.T) {
	for _, a := range []memory.Action{memory.ActionStore, memory.ActionRecall, memory.ActionUpdate, memory.ActionMerge} {
		if !a.Valid() {
			t.Errorf("%q should be valid", a)
		}
	}
	if memory.Action("delete").Valid() {
		t.Error("delete should not be a valid action")
	}
}
