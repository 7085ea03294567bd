//go:build !onnx

package onnx

import (
	"context"
	"fmt"

	"github.com/egobogo/addvar/internal/embedding"
)

// Provider is unavailable in builds without the onnx tag.
type Provider struct{}

var _ embedding.Provider = (*Provider)(nil)

// New always fails with embedding.ErrProviderUnavailable.
func New(Config) (*Provider, error) {
	return nil, fmt.Errorf("onnx: built without -tags onnx: %w", embedding.ErrProviderUnavailable)
}

func (*Provider) Kind() embedding.Kind { return embedding.KindLocal }

func (*Provider) Name() string { return "onnx" }

func (*Provider) Embed(context.Context, []string) ([][]float32, error) {
	return nil, embedding.ErrProviderUnavailable
}

func (*Provider) Close() error { return nil }
