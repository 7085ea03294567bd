// Package hnsw implements an approximate similarity.Backend on top of the
// coder/hnsw graph. Candidates returned by the graph are re-ranked with the
// exact cosine distance so results share the brute-force ordering.
package hnsw

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/coder/hnsw"

	"github.com/egobogo/addvar/internal/similarity"
)

// Builder creates HNSW backends.
type Builder struct {
	M          int   // max neighbours per node; 0 keeps the library default
	EfSearch   int   // search candidate list size; 0 keeps the library default
	Seed       int64 // level generation seed, for reproducible graphs
	Oversample int   // candidates fetched per requested result; minimum 1
}

var _ similarity.Builder = Builder{}

func (Builder) Name() string { return "hnsw" }

// Build inserts every vector keyed by its ordinal. Vectors of differing
// length or zero vectors are rejected.
func (b Builder) Build(ctx context.Context, vectors [][]float32) (similarity.Backend, error) {
	if err := similarity.CheckVectors(vectors); err != nil {
		return nil, fmt.Errorf("hnsw: %w", err)
	}

	g := hnsw.NewGraph[int]()
	if b.M > 0 {
		g.M = b.M
	}
	if b.EfSearch > 0 {
		g.EfSearch = b.EfSearch
	}
	g.Distance = hnsw.CosineDistance
	g.Rng = rand.New(rand.NewSource(b.Seed))

	for i, v := range vectors {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		g.Add(hnsw.MakeNode(i, v))
	}
	return &Backend{graph: g, vectors: vectors, oversample: max(b.Oversample, 1)}, nil
}

// Backend searches an HNSW graph.
type Backend struct {
	mu         sync.Mutex
	graph      *hnsw.Graph[int]
	vectors    [][]float32
	oversample int
}

func (b *Backend) Len() int { return len(b.vectors) }

// Search fetches k*oversample candidates from the graph and re-ranks them
// with similarity.Rerank. When that covers the whole corpus, or the query is
// the zero vector, every vector is ranked exactly instead.
func (b *Backend) Search(ctx context.Context, query []float32, k int) ([]similarity.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 || len(b.vectors) == 0 {
		return nil, nil
	}
	want := k * b.oversample
	if want >= len(b.vectors) || similarity.IsZero(query) {
		return similarity.Rank(query, b.vectors, nil, k), nil
	}

	b.mu.Lock()
	nodes := b.graph.Search(query, want)
	b.mu.Unlock()

	candidates := make([]int, len(nodes))
	for i, n := range nodes {
		candidates[i] = n.Key
	}
	return similarity.Rerank(query, b.vectors, candidates, k), nil
}
