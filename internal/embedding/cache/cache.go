// Package cache memoises embedding vectors per text in a ristretto cache.
package cache

import (
	"context"
	"fmt"
	"slices"

	"github.com/dgraph-io/ristretto"

	"github.com/egobogo/addvar/internal/embedding"
)

// Provider wraps another provider and reuses vectors for texts it has
// already embedded. It keeps the identity of the wrapped provider.
type Provider struct {
	inner embedding.Provider
	cache *ristretto.Cache
}

var _ embedding.Provider = (*Provider)(nil)

// New wraps inner with a cache holding roughly maxEntries vectors.
func New(inner embedding.Provider, maxEntries int64) (*Provider, error) {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &Provider{inner: inner, cache: c}, nil
}

func (p *Provider) Kind() embedding.Kind { return p.inner.Kind() }

func (p *Provider) Name() string { return p.inner.Name() }

// Embed serves cached vectors and sends only the misses to the wrapped
// provider, in one call.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, embedding.ErrEmptyInput
	}
	out := make([][]float32, len(texts))
	var missIdx []int
	var missText []string
	for i, t := range texts {
		if v, ok := p.cache.Get(p.key(t)); ok {
			out[i] = slices.Clone(v.([]float32))
			continue
		}
		missIdx = append(missIdx, i)
		missText = append(missText, t)
	}
	if len(missText) == 0 {
		return out, nil
	}

	vecs, err := p.inner.Embed(ctx, missText)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missText) {
		return nil, fmt.Errorf("cache: provider %s returned %d vectors for %d texts", p.inner.Name(), len(vecs), len(missText))
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		p.cache.Set(p.key(missText[j]), slices.Clone(vecs[j]), 1)
	}
	return out, nil
}

// Wait blocks until pending cache writes are applied.
func (p *Provider) Wait() { p.cache.Wait() }

// Close releases the cache.
func (p *Provider) Close() { p.cache.Close() }

func (p *Provider) key(text string) string {
	return p.inner.Name() + "\x00" + text
}
