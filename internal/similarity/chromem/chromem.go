// Package chromem implements a similarity.Backend on top of an in-memory
// chromem-go collection. chromem scores documents concurrently; its
// candidates are re-ranked exactly so ties resolve by ordinal.
package chromem

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"strconv"

	"github.com/philippgille/chromem-go"

	"github.com/egobogo/addvar/internal/similarity"
)

// Builder creates chromem backends.
type Builder struct {
	// Oversample is the number of candidates fetched per requested result.
	Oversample int
}

var _ similarity.Builder = Builder{}

func (Builder) Name() string { return "chromem" }

// Build loads every vector into a fresh collection, using the ordinal as
// document id. Vectors of differing length or zero vectors are rejected.
func (b Builder) Build(ctx context.Context, vectors [][]float32) (similarity.Backend, error) {
	if err := similarity.CheckVectors(vectors); err != nil {
		return nil, fmt.Errorf("chromem: %w", err)
	}
	db := chromem.NewDB()
	col, err := db.CreateCollection("corpus", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: create collection: %w", err)
	}
	if len(vectors) > 0 {
		docs := make([]chromem.Document, len(vectors))
		for i, v := range vectors {
			// chromem may normalise the embedding it is given.
			docs[i] = chromem.Document{ID: strconv.Itoa(i), Embedding: slices.Clone(v)}
		}
		if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return nil, fmt.Errorf("chromem: add documents: %w", err)
		}
	}
	return &Backend{col: col, vectors: vectors, oversample: max(b.Oversample, 1)}, nil
}

// Backend queries a chromem collection.
type Backend struct {
	col        *chromem.Collection
	vectors    [][]float32
	oversample int
}

func (b *Backend) Len() int { return len(b.vectors) }

// Search asks chromem for k*oversample candidates, capped at the collection
// size, and re-ranks them with similarity.Rerank. Zero queries are ranked
// exactly.
func (b *Backend) Search(ctx context.Context, query []float32, k int) ([]similarity.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 || len(b.vectors) == 0 {
		return nil, nil
	}
	if similarity.IsZero(query) {
		return similarity.Rank(query, b.vectors, nil, k), nil
	}

	n := min(k*b.oversample, b.col.Count())
	res, err := b.col.QueryEmbedding(ctx, slices.Clone(query), n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query: %w", err)
	}
	candidates := make([]int, 0, len(res))
	for _, r := range res {
		i, err := strconv.Atoi(r.ID)
		if err != nil {
			return nil, fmt.Errorf("chromem: unexpected document id %q", r.ID)
		}
		candidates = append(candidates, i)
	}
	return similarity.Rerank(query, b.vectors, candidates, k), nil
}
