// Package reconcile merges a ranked retrieval result with externally
// observed changes into a Summary and persists an auditable artifact.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/egobogo/addvar/internal/storage"
)

// TimestampLayout formats Summary.GeneratedAt, e.g. 20251016T182500.
const TimestampLayout = "20060102T150405"

// DefaultPath is the artifact location used when none is configured.
const DefaultPath = "reconciliation_result.yaml"

var (
	// ErrPersistence marks a failed artifact write. It is reported in
	// Outcome.PersistErr and never returned from Merge.
	ErrPersistence = errors.New("reconcile: persistence failed")

	// ErrMissingID is returned when a coherence vector item has no id.
	ErrMissingID = errors.New("reconcile: coherence vector item has no id")
)

// CoherenceVector is a ranked retrieval result. Items are opaque mappings;
// only their "id" field is interpreted.
type CoherenceVector []map[string]any

// DeltaSet lists identifiers changed since a prior state.
type DeltaSet struct {
	Added   []string `yaml:"added" json:"added"`
	Removed []string `yaml:"removed" json:"removed"`
	Changed []string `yaml:"changed" json:"changed"`
}

type Counts struct {
	Top     int `yaml:"top" json:"top"`
	Added   int `yaml:"added" json:"added"`
	Removed int `yaml:"removed" json:"removed"`
	Changed int `yaml:"changed" json:"changed"`
}

type Summary struct {
	GeneratedAt string   `yaml:"generated_at" json:"generated_at"`
	TopIDs      []string `yaml:"top_ids" json:"top_ids"`
	Counts      Counts   `yaml:"counts" json:"counts"`
}

// Artifact is the persisted document.
type Artifact struct {
	Summary         Summary         `yaml:"summary"`
	Deltas          DeltaSet        `yaml:"deltas"`
	CoherenceVector CoherenceVector `yaml:"coherence_vector"`
}

// Outcome pairs the computed summary with the result of persisting it.
// A non-nil PersistErr wraps ErrPersistence; Summary is valid either way.
type Outcome struct {
	Summary    Summary
	PersistErr error
}

// Reconciler writes artifacts to a FileStore. Concurrent merges overwrite
// each other's artifact; the last write wins.
type Reconciler struct {
	store  storage.FileStore
	path   string
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the time source for GeneratedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// New creates a Reconciler persisting to path within store. A nil store
// disables persistence.
func New(store storage.FileStore, path string, opts ...Option) *Reconciler {
	if path == "" {
		path = DefaultPath
	}
	r := &Reconciler{store: store, path: path, now: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Path returns the artifact location within the store.
func (r *Reconciler) Path() string { return r.path }

// Merge computes the summary for cv and deltas and overwrites the artifact.
// Only an invalid coherence vector returns an error; persistence problems
// are reported in the Outcome.
func (r *Reconciler) Merge(ctx context.Context, cv CoherenceVector, deltas DeltaSet) (Outcome, error) {
	ids, err := TopIDs(cv)
	if err != nil {
		return Outcome{}, err
	}
	sum := Summary{
		GeneratedAt: r.now().UTC().Format(TimestampLayout),
		TopIDs:      ids,
		Counts: Counts{
			Top:     len(cv),
			Added:   len(deltas.Added),
			Removed: len(deltas.Removed),
			Changed: len(deltas.Changed),
		},
	}

	out := Outcome{Summary: sum}
	if err := r.persist(ctx, Artifact{Summary: sum, Deltas: deltas, CoherenceVector: cv}); err != nil {
		out.PersistErr = fmt.Errorf("%w: %s: %w", ErrPersistence, r.path, err)
		r.logger.Warn("reconciliation artifact not written", "path", r.path, "err", err)
	}
	return out, nil
}

func (r *Reconciler) persist(ctx context.Context, a Artifact) error {
	if r.store == nil {
		return errors.New("no artifact store configured")
	}
	if a.CoherenceVector == nil {
		a.CoherenceVector = CoherenceVector{}
	}
	data, err := yaml.Marshal(a)
	if err != nil {
		return err
	}
	return r.store.Put(ctx, r.path, data)
}

// TopIDs extracts the "id" field of every item in order. Non-string ids are
// formatted with fmt.
func TopIDs(cv CoherenceVector) ([]string, error) {
	ids := make([]string, len(cv))
	for i, item := range cv {
		v, ok := item["id"]
		if !ok || v == nil {
			return nil, fmt.Errorf("item %d: %w", i, ErrMissingID)
		}
		if s, ok := v.(string); ok {
			ids[i] = s
		} else {
			ids[i] = fmt.Sprint(v)
		}
	}
	return ids, nil
}

// ReadArtifact loads a persisted artifact.
func ReadArtifact(ctx context.Context, store storage.FileStore, path string) (Artifact, error) {
	data, err := store.Get(ctx, path)
	if err != nil {
		return Artifact{}, err
	}
	var a Artifact
	if err := yaml.Unmarshal(data, &a); err != nil {
		return Artifact{}, fmt.Errorf("reconcile: parse %s: %w", path, err)
	}
	return a, nil
}
