package index

import (
	"fmt"

	"github.com/egobogo/addvar/internal/config"
	"github.com/egobogo/addvar/internal/similarity"
	"github.com/egobogo/addvar/internal/similarity/brute"
	"github.com/egobogo/addvar/internal/similarity/chromem"
	"github.com/egobogo/addvar/internal/similarity/hnsw"
)

// Builders returns the backend preference list for cfg.Backend. "auto"
// prefers HNSW; every list ends in brute force.
func Builders(cfg config.IndexConfig) ([]similarity.Builder, error) {
	h := hnsw.Builder{M: cfg.HNSW.M, EfSearch: cfg.HNSW.EfSearch, Seed: cfg.HNSW.Seed, Oversample: cfg.Oversample}
	c := chromem.Builder{Oversample: cfg.Oversample}
	switch cfg.Backend {
	case "", "auto", "hnsw":
		return []similarity.Builder{h, brute.Builder{}}, nil
	case "chromem":
		return []similarity.Builder{c, brute.Builder{}}, nil
	case "brute":
		return []similarity.Builder{brute.Builder{}}, nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Backend)
	}
}
