// Package brute implements an exact similarity.Backend that scores every
// vector at query time.
package brute

import (
	"context"

	"github.com/egobogo/addvar/internal/similarity"
)

// Builder creates brute-force backends. It never fails.
type Builder struct{}

var _ similarity.Builder = Builder{}

func (Builder) Name() string { return "brute" }

func (Builder) Build(_ context.Context, vectors [][]float32) (similarity.Backend, error) {
	return &Backend{vectors: vectors}, nil
}

// Backend holds raw vectors.
type Backend struct {
	vectors [][]float32
}

func (b *Backend) Len() int { return len(b.vectors) }

func (b *Backend) Search(ctx context.Context, query []float32, k int) ([]similarity.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return similarity.Rank(query, b.vectors, nil, k), nil
}
