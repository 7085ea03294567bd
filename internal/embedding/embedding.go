// Package embedding defines the Provider abstraction that turns text into
// fixed-length vectors.
//
// Two kinds of provider exist: remote providers delegate to an external
// embedding service, local providers run in process. Which one serves a
// given index is decided by the selector package from configuration.
package embedding

import (
	"context"
	"errors"
	"math"
)

// Kind distinguishes remote from local providers.
type Kind string

const (
	KindRemote Kind = "remote"
	KindLocal  Kind = "local"
)

var (
	// ErrProviderUnavailable is returned when no usable provider is configured.
	ErrProviderUnavailable = errors.New("embedding: provider unavailable")

	// ErrEmptyInput is returned when Embed is called with no texts.
	ErrEmptyInput = errors.New("embedding: empty input")
)

// Provider converts a batch of texts into vectors of equal length.
type Provider interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Kind reports whether the provider is remote or local.
	Kind() Kind

	// Name identifies the provider and its model. Two providers with the
	// same name produce comparable vectors.
	Name() string
}

// Normalize scales v to unit length in place and returns it. Zero vectors
// are returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
	return v
}
