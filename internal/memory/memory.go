// Package memory defines the memory unit model, the append-only ledger that
// audits every mutation, and the Store interface implemented by the
// in-memory and badger-backed stores.
package memory

import (
	"context"
	"errors"
	"iter"
	"maps"
	"slices"
	"time"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when a unit id is not present in the store.
	ErrNotFound = errors.New("memory: unit not found")

	// ErrEmptyContent is returned by Append when the draft has no content.
	ErrEmptyContent = errors.New("memory: content is required")

	// ErrVectorLength is returned when an update would change the length of
	// an already established vector.
	ErrVectorLength = errors.New("memory: vector length mismatch")
)

// Action identifies the kind of operation a ledger entry records.
type Action string

const (
	ActionStore  Action = "store"
	ActionRecall Action = "recall"
	ActionUpdate Action = "update"
	ActionMerge  Action = "merge"
)

// Valid reports whether a is one of the known ledger actions.
func (a Action) Valid() bool {
	switch a {
	case ActionStore, ActionRecall, ActionUpdate, ActionMerge:
		return true
	}
	return false
}

// Tag is a semantic label attached to a unit.
type Tag struct {
	Name       string         `json:"name" yaml:"name" msgpack:"name"`
	Confidence float64        `json:"confidence" yaml:"confidence" msgpack:"confidence"`
	Metadata   map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty" msgpack:"metadata,omitempty"`
}

// Unit is an atomic stored content record.
type Unit struct {
	ID        string         `json:"id" yaml:"id" msgpack:"id"`
	Content   string         `json:"content" yaml:"content" msgpack:"content"`
	Tags      []Tag          `json:"tags" yaml:"tags" msgpack:"tags"`
	Vector    []float32      `json:"vector,omitempty" yaml:"vector,omitempty" msgpack:"vector,omitempty"`
	CreatedAt time.Time      `json:"created_at" yaml:"created_at" msgpack:"created_at"`
	Metadata  map[string]any `json:"metadata" yaml:"metadata" msgpack:"metadata"`
}

// Clone returns a deep copy of u. Metadata values are copied one level deep.
func (u Unit) Clone() Unit {
	out := u
	out.Tags = cloneTags(u.Tags)
	out.Vector = slices.Clone(u.Vector)
	out.Metadata = cloneMeta(u.Metadata)
	return out
}

// LedgerEntry is an immutable audit record of one operation on a unit.
// NodeID is a weak reference and may name a unit that no longer resolves.
type LedgerEntry struct {
	Seq       uint64         `json:"seq" yaml:"seq" msgpack:"seq"`
	Action    Action         `json:"action" yaml:"action" msgpack:"action"`
	NodeID    string         `json:"node_id" yaml:"node_id" msgpack:"node_id"`
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp" msgpack:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty" msgpack:"metadata,omitempty"`
}

// Draft is the input to Store.Append.
type Draft struct {
	Content  string
	Tags     []Tag
	Vector   []float32
	Metadata map[string]any
}

// Changes describes an update to a unit. A nil field leaves the
// corresponding attribute unchanged. Tags and Vector replace the current
// value; Metadata keys are merged into the existing metadata.
type Changes struct {
	Tags     []Tag
	Vector   []float32
	Metadata map[string]any
}

// Store owns memory units and their ledger.
//
// Mutating calls (Append, Update, Note) are serialized and each appends
// exactly one ledger entry. Recall, List and Ledger observe a consistent
// point-in-time view and may run concurrently with mutations.
type Store interface {
	// Append creates a unit with a fresh id and records a store entry.
	Append(ctx context.Context, d Draft) (Unit, error)

	// Update applies changes to an existing unit and records an update entry.
	// Returns ErrNotFound if id is absent.
	Update(ctx context.Context, id string, c Changes) (Unit, error)

	// Recall returns the unit with the given id or ErrNotFound.
	Recall(ctx context.Context, id string) (Unit, error)

	// List iterates over a snapshot of all units in insertion order.
	// Each call to the returned sequence replays the same snapshot.
	List(ctx context.Context) iter.Seq2[Unit, error]

	// Note records an action performed outside the store, such as a recall
	// audit or a reconciliation merge. nodeID is not required to resolve.
	Note(ctx context.Context, action Action, nodeID string, meta map[string]any) (LedgerEntry, error)

	// Ledger iterates over a snapshot of the ledger in append order.
	Ledger(ctx context.Context) iter.Seq2[LedgerEntry, error]

	// Close releases resources held by the store.
	Close() error
}

// NewUnit builds a unit from d with the given id and creation time.
func NewUnit(id string, d Draft, now time.Time) (Unit, error) {
	if d.Content == "" {
		return Unit{}, ErrEmptyContent
	}
	u := Unit{
		ID:        id,
		Content:   d.Content,
		Tags:      cloneTags(d.Tags),
		Vector:    slices.Clone(d.Vector),
		CreatedAt: now,
		Metadata:  cloneMeta(d.Metadata),
	}
	if u.Tags == nil {
		u.Tags = []Tag{}
	}
	if u.Metadata == nil {
		u.Metadata = map[string]any{}
	}
	return u, nil
}

// Apply returns a copy of u with c applied. Content, ID and CreatedAt are
// never touched.
func Apply(u Unit, c Changes) (Unit, error) {
	out := u.Clone()
	if c.Vector != nil {
		if len(u.Vector) > 0 && len(c.Vector) != len(u.Vector) {
			return Unit{}, ErrVectorLength
		}
		if len(c.Vector) == 0 {
			return Unit{}, ErrVectorLength
		}
		out.Vector = slices.Clone(c.Vector)
	}
	if c.Tags != nil {
		out.Tags = cloneTags(c.Tags)
	}
	if c.Metadata != nil {
		if out.Metadata == nil {
			out.Metadata = make(map[string]any, len(c.Metadata))
		}
		maps.Copy(out.Metadata, c.Metadata)
	}
	return out, nil
}

// ChangedFields lists the attribute names c touches, for ledger metadata.
func (c Changes) ChangedFields() []string {
	var fields []string
	if c.Tags != nil {
		fields = append(fields, "tags")
	}
	if c.Vector != nil {
		fields = append(fields, "vector")
	}
	if c.Metadata != nil {
		fields = append(fields, "metadata")
	}
	return fields
}

// Collect drains a List or Ledger sequence into a slice, stopping at the
// first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for v, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

func cloneTags(tags []Tag) []Tag {
	if tags == nil {
		return nil
	}
	out := make([]Tag, len(tags))
	for i, t := range tags {
		out[i] = Tag{Name: t.Name, Confidence: t.Confidence, Metadata: cloneMeta(t.Metadata)}
	}
	return out
}

func cloneMeta(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}
