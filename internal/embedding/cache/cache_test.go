package cache_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/egobogo/addvar/internal/embedding"
	"github.com/egobogo/addvar/internal/embedding/cache"
	"github.com/egobogo/addvar/internal/embedding/hashing"
)

// countingProvider records every text it is asked to embed.
type countingProvider struct {
	embedding.Provider
	seen []string
	fail bool
}

func (c *countingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.fail {
		return nil, errors.New("unreachable")
	}
	c.seen = append(c.seen, texts...)
	return c.Provider.Embed(ctx, texts)
}

func TestCacheServesRepeats(t *testing.T) {
	ctx := context.Background()
	inner := &countingProvider{Provider: hashing.New(16)}
	p, err := cache.New(inner, 100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	first, err := p.Embed(ctx, []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	p.Wait()

	second, err := p.Embed(ctx, []string{"b", "c", "a"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if !slices.Equal(inner.seen, []string{"a", "b", "c"}) {
		t.Errorf("inner saw %q", inner.seen)
	}
	if !slices.Equal(second[0], first[1]) || !slices.Equal(second[2], first[0]) {
		t.Error("cached vectors differ from originals")
	}

	second[0][0] = 42
	third, _ := p.Embed(ctx, []string{"b"})
	if third[0][0] == 42 {
		t.Error("cached vector was mutated through a returned slice")
	}
}

func TestCacheKeepsIdentityAndErrors(t *testing.T) {
	inner := &countingProvider{Provider: hashing.New(8), fail: true}
	p, err := cache.New(inner, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	if p.Name() != "hashing/8" || p.Kind() != embedding.KindLocal {
		t.Errorf("identity = %s %s", p.Name(), p.Kind())
	}
	if _, err := p.Embed(context.Background(), []string{"x"}); err == nil {
		t.Error("expected inner error to surface")
	}
}
