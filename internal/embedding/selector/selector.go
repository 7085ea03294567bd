// Package selector chooses the embedding provider for a configuration.
package selector

import (
	"fmt"
	"log/slog"

	"github.com/egobogo/addvar/internal/config"
	"github.com/egobogo/addvar/internal/embedding"
	"github.com/egobogo/addvar/internal/embedding/cache"
	"github.com/egobogo/addvar/internal/embedding/hashing"
	"github.com/egobogo/addvar/internal/embedding/onnx"
	"github.com/egobogo/addvar/internal/embedding/openai"
)

// Select returns the remote provider when an API key is configured,
// otherwise the configured local provider. With neither it returns
// embedding.ErrProviderUnavailable. A positive CacheSize wraps the result in
// a memoising cache.
func Select(cfg config.EmbeddingConfig, logger *slog.Logger) (embedding.Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p, err := pick(cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("embedding provider selected", "name", p.Name(), "kind", p.Kind())
	if cfg.CacheSize <= 0 {
		return p, nil
	}
	c, err := cache.New(p, cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func pick(cfg config.EmbeddingConfig, logger *slog.Logger) (embedding.Provider, error) {
	if r := cfg.Remote; r.APIKey != "" {
		opts := []openai.Option{openai.WithLogger(logger)}
		if r.Model != "" {
			opts = append(opts, openai.WithModel(r.Model))
		}
		if r.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(r.BaseURL))
		}
		if r.Dimensions > 0 {
			opts = append(opts, openai.WithDimensions(r.Dimensions))
		}
		if r.BatchSize > 0 {
			opts = append(opts, openai.WithBatchSize(r.BatchSize))
		}
		return openai.New(r.APIKey, opts...), nil
	}

	switch l := cfg.Local; l.Kind {
	case "":
		return nil, fmt.Errorf("no remote api key and no local provider configured: %w", embedding.ErrProviderUnavailable)
	case "hashing":
		return hashing.New(l.Dim), nil
	case "onnx":
		p, err := onnx.New(onnx.Config{
			ModelPath:     l.ModelPath,
			TokenizerPath: l.TokenizerPath,
			LibraryPath:   l.LibraryPath,
			Dimensions:    l.Dim,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown local provider %q: %w", l.Kind, embedding.ErrProviderUnavailable)
	}
}
