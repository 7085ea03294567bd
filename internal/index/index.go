// Package index maintains embedding vectors for a corpus snapshot and
// answers nearest-neighbour queries over it.
//
// An Index is an explicit handle. Build embeds a whole corpus and, only on
// success, atomically replaces the snapshot that queries read; a build in
// progress never affects concurrent queries.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/egobogo/addvar/internal/embedding"
	"github.com/egobogo/addvar/internal/similarity"
	"github.com/egobogo/addvar/internal/similarity/brute"
)

var (
	// ErrIndexNotBuilt is returned by Query before any successful Build.
	ErrIndexNotBuilt = errors.New("index: not built")

	// ErrProviderMismatch is returned when a query uses a different
	// provider than the one the index was built with.
	ErrProviderMismatch = errors.New("index: provider mismatch")

	// ErrDimensionMismatch is returned when vector lengths disagree.
	ErrDimensionMismatch = errors.New("index: dimension mismatch")
)

// Item is one corpus entry.
type Item struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Hit is a ranked query result.
type Hit struct {
	Item       Item    `json:"item"`
	Ordinal    int     `json:"ordinal"`
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
}

// Stats describes the snapshot currently served.
type Stats struct {
	Built    bool           `json:"built"`
	Provider string         `json:"provider,omitempty"`
	Kind     embedding.Kind `json:"kind,omitempty"`
	Dim      int            `json:"dim"`
	Len      int            `json:"len"`
	Backend  string         `json:"backend,omitempty"`
	BuiltAt  time.Time      `json:"built_at,omitzero"`
}

type snapshot struct {
	items   []Item
	backend similarity.Backend
	stats   Stats
}

// Index is safe for concurrent use. Builds are serialised; queries run
// against the last successfully built snapshot.
type Index struct {
	builders []similarity.Builder
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	buildMu sync.Mutex
	current atomic.Pointer[snapshot]
}

// Option configures an Index.
type Option func(*Index)

// WithBuilders sets the backend preference order. Each is tried in turn and
// a brute-force backend is always used as the last resort.
func WithBuilders(bs ...similarity.Builder) Option {
	return func(ix *Index) { ix.builders = bs }
}

// WithTimeout bounds every provider call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(ix *Index) { ix.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Index) { ix.logger = l }
}

// WithClock overrides the time source for Stats.BuiltAt.
func WithClock(now func() time.Time) Option {
	return func(ix *Index) { ix.now = now }
}

// New creates an index with nothing built.
func New(opts ...Option) *Index {
	ix := &Index{
		timeout: 30 * time.Second,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(ix)
	}
	if len(ix.builders) == 0 || ix.builders[len(ix.builders)-1].Name() != (brute.Builder{}).Name() {
		ix.builders = append(ix.builders, brute.Builder{})
	}
	return ix
}

// Build embeds every item with p and serves the result once complete. On
// failure the previously served snapshot is kept.
func (ix *Index) Build(ctx context.Context, p embedding.Provider, corpus []Item) error {
	if p == nil {
		return fmt.Errorf("build: %w", embedding.ErrProviderUnavailable)
	}
	ix.buildMu.Lock()
	defer ix.buildMu.Unlock()

	items := make([]Item, len(corpus))
	copy(items, corpus)
	snap := &snapshot{
		items: items,
		stats: Stats{Built: true, Provider: p.Name(), Kind: p.Kind(), Len: len(items)},
	}

	var vectors [][]float32
	if len(items) > 0 {
		texts := make([]string, len(items))
		for i, it := range items {
			texts[i] = it.Text
		}
		var err error
		vectors, err = ix.embed(ctx, p, texts)
		if err != nil {
			return fmt.Errorf("build: %w", err)
		}
		if len(vectors) != len(items) {
			return fmt.Errorf("build: provider %s returned %d vectors for %d items", p.Name(), len(vectors), len(items))
		}
		dim := len(vectors[0])
		for i, v := range vectors {
			if len(v) == 0 || len(v) != dim {
				return fmt.Errorf("build: item %d (%s) has %d dimensions, want %d: %w", i, items[i].ID, len(v), dim, ErrDimensionMismatch)
			}
		}
		snap.stats.Dim = dim
	}

	for _, b := range ix.builders {
		backend, err := b.Build(ctx, vectors)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("build: %w", ctx.Err())
			}
			ix.logger.Warn("backend build failed, falling back", "backend", b.Name(), "err", err)
			continue
		}
		snap.backend = backend
		snap.stats.Backend = b.Name()
		break
	}
	if snap.backend == nil {
		return errors.New("build: no backend could be built")
	}

	snap.stats.BuiltAt = ix.now().UTC()
	ix.current.Store(snap)
	ix.logger.Info("index built", "provider", snap.stats.Provider, "backend", snap.stats.Backend, "items", len(items), "dim", snap.stats.Dim)
	return nil
}

// Query returns up to k items nearest to text, by ascending cosine distance
// with ties in corpus order. p must be the provider used for the served
// build.
func (ix *Index) Query(ctx context.Context, p embedding.Provider, text string, k int) ([]Hit, error) {
	snap := ix.current.Load()
	if snap == nil {
		return nil, ErrIndexNotBuilt
	}
	if p == nil {
		return nil, fmt.Errorf("query: %w", embedding.ErrProviderUnavailable)
	}
	if p.Name() != snap.stats.Provider {
		return nil, fmt.Errorf("query with %s on index built with %s: %w", p.Name(), snap.stats.Provider, ErrProviderMismatch)
	}
	if k <= 0 || len(snap.items) == 0 {
		return []Hit{}, nil
	}

	vecs, err := ix.embed(ctx, p, []string{text})
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) != snap.stats.Dim {
		got := 0
		if len(vecs) == 1 {
			got = len(vecs[0])
		}
		return nil, fmt.Errorf("query vector has %d dimensions, index has %d: %w", got, snap.stats.Dim, ErrDimensionMismatch)
	}

	matches, err := snap.backend.Search(ctx, vecs[0], min(k, len(snap.items)))
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	hits := make([]Hit, len(matches))
	for i, m := range matches {
		hits[i] = Hit{Item: snap.items[m.Ordinal], Ordinal: m.Ordinal, Distance: m.Distance, Similarity: m.Similarity}
	}
	return hits, nil
}

// Stats describes the served snapshot. Built is false before the first
// successful Build.
func (ix *Index) Stats() Stats {
	if snap := ix.current.Load(); snap != nil {
		return snap.stats
	}
	return Stats{}
}

func (ix *Index) embed(ctx context.Context, p embedding.Provider, texts []string) ([][]float32, error) {
	if ix.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ix.timeout)
		defer cancel()
	}
	vecs, err := p.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed with %s: %w", p.Name(), err)
	}
	return vecs, nil
}
