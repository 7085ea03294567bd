// Package hashing implements a deterministic local embedding.Provider using
// token feature hashing. It needs no model files or network access.
package hashing

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/egobogo/addvar/internal/embedding"
)

// DefaultDim is the vector length used when none is configured.
const DefaultDim = 256

// Provider hashes lower-cased tokens into a fixed number of buckets.
type Provider struct {
	dim int
}

var _ embedding.Provider = (*Provider)(nil)

// New creates a hashing provider. dim <= 0 selects DefaultDim.
func New(dim int) *Provider {
	if dim <= 0 {
		dim = DefaultDim
	}
	return &Provider{dim: dim}
}

// Kind reports embedding.KindLocal.
func (p *Provider) Kind() embedding.Kind { return embedding.KindLocal }

// Name returns "hashing/<dim>".
func (p *Provider) Name() string { return fmt.Sprintf("hashing/%d", p.dim) }

// Embed returns one L2-normalised vector per text. Texts without any token
// map to the zero vector.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, embedding.ErrEmptyInput
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.vector(text)
	}
	return out, nil
}

func (p *Provider) vector(text string) []float32 {
	v := make([]float32, p.dim)
	for _, tok := range Tokens(text) {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		// The top bit picks the sign so unrelated tokens tend to cancel.
		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		v[sum%uint64(p.dim)] += sign
	}
	return embedding.Normalize(v)
}

// Tokens splits text into lower-cased runs of letters, digits and
// underscores.
func Tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}
