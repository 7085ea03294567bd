// Package badgerdb provides a durable memory.Store backed by BadgerDB.
//
// Records are msgpack encoded. Units and ledger entries are keyed by
// zero-padded sequence numbers so that prefix iteration yields insertion
// order; a secondary key maps unit ids to their sequence key.
//
// Decoded records are normalized: timestamps are in UTC and integer
// metadata values come back as int64 (uint64 for values that only fit
// unsigned), floats as float64. Append and Update return units in the
// same decoded form Recall and List produce.
package badgerdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/egobogo/addvar/internal/memory"
)

var (
	unitPrefix   = []byte("u:")
	idPrefix     = []byte("i:")
	ledgerPrefix = []byte("l:")
)

// Options configures the badger store.
type Options struct {
	// Dir is the directory for BadgerDB data files. Required unless InMemory.
	Dir string

	// InMemory runs BadgerDB without disk persistence. Useful for tests.
	InMemory bool

	// Logger receives store and badger log output. Defaults to slog.Default().
	Logger *slog.Logger

	// Now overrides the time source.
	Now func() time.Time
}

// Store is a memory.Store persisted in BadgerDB.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	// mu serializes writers so sequence numbers and timestamps are handed
	// out in commit order.
	mu        sync.Mutex
	unitSeq   uint64
	ledgerSeq uint64
	clock     memory.Clock
}

var _ memory.Store = (*Store)(nil)

// Open opens (or creates) a badger-backed store and recovers its counters.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badgerdb: Options.Dir is required for on-disk mode")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(slogAdapter{logger})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("badgerdb: open: %w", err)
	}

	s := &Store{db: db, logger: logger}
	s.clock.Now = opts.Now
	if err := s.recover(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("memory store opened", "dir", opts.Dir, "units", s.unitSeq, "ledger", s.ledgerSeq)
	return s, nil
}

func (s *Store) recover() error {
	return s.db.View(func(txn *badger.Txn) error {
		if k, _, ok := lastUnder(txn, unitPrefix); ok {
			n, err := parseSeq(k, unitPrefix)
			if err != nil {
				return err
			}
			s.unitSeq = n
		}
		k, v, ok := lastUnder(txn, ledgerPrefix)
		if !ok {
			return nil
		}
		n, err := parseSeq(k, ledgerPrefix)
		if err != nil {
			return err
		}
		var e memory.LedgerEntry
		if err := decode(v, &e); err != nil {
			return fmt.Errorf("badgerdb: decode ledger entry %d: %w", n, err)
		}
		s.ledgerSeq = n
		s.clock.Observe(e.Timestamp)
		return nil
	})
}

// Append creates a unit and its store entry in a single transaction.
func (s *Store) Append(_ context.Context, d memory.Draft) (memory.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Next()
	u, err := memory.NewUnit(uuid.New().String(), d, now)
	if err != nil {
		return memory.Unit{}, err
	}
	unitKey := seqKey(unitPrefix, s.unitSeq+1)
	entry := s.nextEntry(memory.ActionStore, u.ID, now, nil)

	err = s.db.Update(func(txn *badger.Txn) error {
		idKey := keyFor(idPrefix, u.ID)
		if _, err := txn.Get(idKey); err == nil {
			return fmt.Errorf("badgerdb: duplicate unit id %s", u.ID)
		}
		if err := putMsgpack(txn, unitKey, u); err != nil {
			return err
		}
		if err := txn.Set(idKey, unitKey); err != nil {
			return err
		}
		return putMsgpack(txn, seqKey(ledgerPrefix, entry.Seq), entry)
	})
	if err != nil {
		return memory.Unit{}, fmt.Errorf("append: %w", err)
	}
	s.unitSeq++
	s.ledgerSeq++
	return canonical(u)
}

// Update applies changes to a stored unit and records an update entry.
func (s *Store) Update(_ context.Context, id string, c memory.Changes) (memory.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated memory.Unit
	var entry memory.LedgerEntry
	err := s.db.Update(func(txn *badger.Txn) error {
		unitKey, u, err := getUnit(txn, id)
		if err != nil {
			return err
		}
		updated, err = memory.Apply(u, c)
		if err != nil {
			return err
		}
		if err := putMsgpack(txn, unitKey, updated); err != nil {
			return err
		}
		entry = s.nextEntry(memory.ActionUpdate, id, s.clock.Next(), map[string]any{"fields": c.ChangedFields()})
		return putMsgpack(txn, seqKey(ledgerPrefix, entry.Seq), entry)
	})
	if err != nil {
		return memory.Unit{}, fmt.Errorf("update %s: %w", id, err)
	}
	s.ledgerSeq++
	return canonical(updated)
}

// Recall reads a unit by id.
func (s *Store) Recall(_ context.Context, id string) (memory.Unit, error) {
	var u memory.Unit
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		_, u, err = getUnit(txn, id)
		return err
	})
	if err != nil {
		return memory.Unit{}, fmt.Errorf("recall %s: %w", id, err)
	}
	return u, nil
}

// List copies the encoded units visible at call time; decoding happens
// lazily as the sequence is consumed.
func (s *Store) List(_ context.Context) iter.Seq2[memory.Unit, error] {
	raw, err := s.snapshot(unitPrefix)
	return decodeSeq[memory.Unit](raw, err)
}

// Note appends a ledger entry for an action performed outside the store.
func (s *Store) Note(_ context.Context, action memory.Action, nodeID string, meta map[string]any) (memory.LedgerEntry, error) {
	if !action.Valid() {
		return memory.LedgerEntry{}, fmt.Errorf("badgerdb: unknown action %q", action)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.nextEntry(action, nodeID, s.clock.Next(), meta)
	err := s.db.Update(func(txn *badger.Txn) error {
		return putMsgpack(txn, seqKey(ledgerPrefix, entry.Seq), entry)
	})
	if err != nil {
		return memory.LedgerEntry{}, fmt.Errorf("note %s: %w", action, err)
	}
	s.ledgerSeq++
	return entry, nil
}

// Ledger returns the ledger entries visible at call time.
func (s *Store) Ledger(_ context.Context) iter.Seq2[memory.LedgerEntry, error] {
	raw, err := s.snapshot(ledgerPrefix)
	return decodeSeq[memory.LedgerEntry](raw, err)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// nextEntry builds the entry with the next ledger sequence number. The
// counter itself is only advanced after the transaction commits.
func (s *Store) nextEntry(action memory.Action, nodeID string, ts time.Time, meta map[string]any) memory.LedgerEntry {
	return memory.LedgerEntry{
		Seq:       s.ledgerSeq + 1,
		Action:    action,
		NodeID:    nodeID,
		Timestamp: ts,
		Metadata:  meta,
	}
}

func (s *Store) snapshot(prefix []byte) ([][]byte, error) {
	var out [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		return nil
	})
	return out, err
}

func decodeSeq[T any](raw [][]byte, snapErr error) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		if snapErr != nil {
			yield(zero, fmt.Errorf("badgerdb: snapshot: %w", snapErr))
			return
		}
		for _, b := range raw {
			var v T
			if err := decode(b, &v); err != nil {
				yield(zero, fmt.Errorf("badgerdb: decode: %w", err))
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

func getUnit(txn *badger.Txn, id string) ([]byte, memory.Unit, error) {
	item, err := txn.Get(keyFor(idPrefix, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, memory.Unit{}, memory.ErrNotFound
	}
	if err != nil {
		return nil, memory.Unit{}, err
	}
	unitKey, err := item.ValueCopy(nil)
	if err != nil {
		return nil, memory.Unit{}, err
	}
	item, err = txn.Get(unitKey)
	if err != nil {
		return nil, memory.Unit{}, fmt.Errorf("badgerdb: dangling id index for %s: %w", id, err)
	}
	var u memory.Unit
	err = item.Value(func(v []byte) error {
		return decode(v, &u)
	})
	return unitKey, u, err
}

func putMsgpack(txn *badger.Txn, key []byte, v any) error {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("badgerdb: encode: %w", err)
	}
	return txn.Set(key, b)
}

// decode unmarshals a stored record, widening interface numbers and moving
// timestamps to UTC.
func decode(b []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(v); err != nil {
		return err
	}
	switch r := v.(type) {
	case *memory.Unit:
		r.CreatedAt = r.CreatedAt.UTC()
	case *memory.LedgerEntry:
		r.Timestamp = r.Timestamp.UTC()
	}
	return nil
}

// canonical returns u as it reads back from the store.
func canonical(u memory.Unit) (memory.Unit, error) {
	b, err := msgpack.Marshal(u)
	if err != nil {
		return memory.Unit{}, fmt.Errorf("badgerdb: encode: %w", err)
	}
	var out memory.Unit
	if err := decode(b, &out); err != nil {
		return memory.Unit{}, fmt.Errorf("badgerdb: decode: %w", err)
	}
	return out, nil
}

func lastUnder(txn *badger.Txn, prefix []byte) ([]byte, []byte, bool) {
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, Reverse: true})
	defer it.Close()
	it.Seek(append(append([]byte{}, prefix...), 0xFF))
	if !it.ValidForPrefix(prefix) {
		return nil, nil, false
	}
	item := it.Item()
	v, err := item.ValueCopy(nil)
	if err != nil {
		return nil, nil, false
	}
	return item.KeyCopy(nil), v, true
}

func keyFor(prefix []byte, id string) []byte {
	return append(append([]byte{}, prefix...), id...)
}

func seqKey(prefix []byte, n uint64) []byte {
	return fmt.Appendf(append([]byte{}, prefix...), "%020d", n)
}

func parseSeq(key, prefix []byte) (uint64, error) {
	n, err := strconv.ParseUint(string(key[len(prefix):]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("badgerdb: malformed key %q: %w", key, err)
	}
	return n, nil
}

// slogAdapter routes badger's logger to slog, dropping info and debug noise.
type slogAdapter struct{ l *slog.Logger }

func (a slogAdapter) Errorf(f string, v ...interface{}) {
	a.l.Error(fmt.Sprintf(f, v...), "component", "badger")
}

func (a slogAdapter) Warningf(f string, v ...interface{}) {
	a.l.Warn(fmt.Sprintf(f, v...), "component", "badger")
}

func (a slogAdapter) Infof(string, ...interface{}) {}

func (a slogAdapter) Debugf(string, ...interface{}) {}
