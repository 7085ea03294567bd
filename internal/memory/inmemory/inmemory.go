// Package inmemory provides a process-local memory.Store.
package inmemory

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/egobogo/addvar/internal/memory"
)

// InMemoryStore is a memory.Store kept entirely in process memory.
//
// Units are stored as immutable values; an update installs a new value, so a
// snapshot of the unit slice taken under the read lock stays consistent while
// writers proceed.
type InMemoryStore struct {
	mu     sync.RWMutex
	units  []*memory.Unit
	byID   map[string]int
	ledger []memory.LedgerEntry
	clock  memory.Clock
	newID  func() string
	logger *slog.Logger
}

// Option configures an InMemoryStore.
type Option func(*InMemoryStore)

// WithClock overrides the time source used for creation and ledger timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *InMemoryStore) { s.clock.Now = now }
}

// WithIDFunc overrides the unit id generator.
func WithIDFunc(f func() string) Option {
	return func(s *InMemoryStore) { s.newID = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *InMemoryStore) { s.logger = l }
}

// New creates an empty in-memory store.
func New(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{
		byID:   make(map[string]int),
		newID:  func() string { return uuid.New().String() },
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ memory.Store = (*InMemoryStore)(nil)

// Append creates a new unit and records a store entry.
func (s *InMemoryStore) Append(_ context.Context, d memory.Draft) (memory.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	if _, exists := s.byID[id]; exists {
		return memory.Unit{}, fmt.Errorf("inmemory: duplicate unit id %s", id)
	}
	now := s.clock.Next()
	u, err := memory.NewUnit(id, d, now)
	if err != nil {
		return memory.Unit{}, err
	}

	s.units = append(s.units, &u)
	s.byID[id] = len(s.units) - 1
	s.appendEntry(memory.ActionStore, id, now, nil)

	s.logger.Debug("unit stored", "id", id, "tags", len(u.Tags))
	return u.Clone(), nil
}

// Update applies changes to the unit with the given id.
func (s *InMemoryStore) Update(_ context.Context, id string, c memory.Changes) (memory.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.byID[id]
	if !ok {
		return memory.Unit{}, fmt.Errorf("update %s: %w", id, memory.ErrNotFound)
	}
	updated, err := memory.Apply(*s.units[i], c)
	if err != nil {
		return memory.Unit{}, fmt.Errorf("update %s: %w", id, err)
	}

	s.units[i] = &updated
	s.appendEntry(memory.ActionUpdate, id, s.clock.Next(), map[string]any{"fields": c.ChangedFields()})
	return updated.Clone(), nil
}

// Recall returns a copy of the unit with the given id.
func (s *InMemoryStore) Recall(_ context.Context, id string) (memory.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byID[id]
	if !ok {
		return memory.Unit{}, fmt.Errorf("recall %s: %w", id, memory.ErrNotFound)
	}
	return s.units[i].Clone(), nil
}

// List returns a sequence over the units present when List was called.
func (s *InMemoryStore) List(_ context.Context) iter.Seq2[memory.Unit, error] {
	s.mu.RLock()
	snapshot := make([]*memory.Unit, len(s.units))
	copy(snapshot, s.units)
	s.mu.RUnlock()

	return func(yield func(memory.Unit, error) bool) {
		for _, u := range snapshot {
			if !yield(u.Clone(), nil) {
				return
			}
		}
	}
}

// Note appends a ledger entry for an action performed outside the store.
func (s *InMemoryStore) Note(_ context.Context, action memory.Action, nodeID string, meta map[string]any) (memory.LedgerEntry, error) {
	if !action.Valid() {
		return memory.LedgerEntry{}, fmt.Errorf("inmemory: unknown action %q", action)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendEntry(action, nodeID, s.clock.Next(), meta), nil
}

// Ledger returns a sequence over the ledger entries present when Ledger was
// called.
func (s *InMemoryStore) Ledger(_ context.Context) iter.Seq2[memory.LedgerEntry, error] {
	s.mu.RLock()
	// Entries are never modified once appended, so the slice header is a
	// stable snapshot.
	snapshot := s.ledger[:len(s.ledger):len(s.ledger)]
	s.mu.RUnlock()

	return func(yield func(memory.LedgerEntry, error) bool) {
		for _, e := range snapshot {
			e.Metadata = maps.Clone(e.Metadata)
			if !yield(e, nil) {
				return
			}
		}
	}
}

// Len returns the number of stored units.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.units)
}

// Close is a no-op.
func (s *InMemoryStore) Close() error {
	return nil
}

// appendEntry must be called with s.mu held for writing.
func (s *InMemoryStore) appendEntry(action memory.Action, nodeID string, ts time.Time, meta map[string]any) memory.LedgerEntry {
	e := memory.LedgerEntry{
		Seq:       uint64(len(s.ledger)) + 1,
		Action:    action,
		NodeID:    nodeID,
		Timestamp: ts,
		Metadata:  maps.Clone(meta),
	}
	s.ledger = append(s.ledger, e)
	return e
}
