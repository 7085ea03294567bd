// Package openai implements a remote embedding.Provider on top of the
// OpenAI embeddings API, or any OpenAI-compatible endpoint.
package openai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/egobogo/addvar/internal/embedding"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "text-embedding-3-small"

	// MaxBatch is the largest number of inputs accepted per request.
	MaxBatch = 2048
)

// Provider computes embeddings through the OpenAI API.
type Provider struct {
	client    *openai.Client
	model     string
	dim       int
	batchSize int
	logger    *slog.Logger
}

var _ embedding.Provider = (*Provider)(nil)

type config struct {
	model      string
	dim        int
	batchSize  int
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Provider.
type Option func(*config)

// WithModel selects the embedding model.
func WithModel(m string) Option {
	return func(c *config) { c.model = m }
}

// WithDimensions requests shortened vectors. Zero keeps the model default.
func WithDimensions(d int) Option {
	return func(c *config) { c.dim = d }
}

// WithBatchSize caps the number of texts per request. Values outside
// (0, MaxBatch] are clamped.
func WithBatchSize(n int) Option {
	return func(c *config) { c.batchSize = n }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(u string) Option {
	return func(c *config) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *config) { c.httpClient = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// New creates a provider authenticated with apiKey.
func New(apiKey string, opts ...Option) *Provider {
	cfg := config{
		model:      DefaultModel,
		batchSize:  MaxBatch,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.batchSize <= 0 || cfg.batchSize > MaxBatch {
		cfg.batchSize = MaxBatch
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(cfg.httpClient),
		// Retries are left to the caller.
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	client := openai.NewClient(clientOpts...)

	return &Provider{
		client:    &client,
		model:     cfg.model,
		dim:       cfg.dim,
		batchSize: cfg.batchSize,
		logger:    cfg.logger,
	}
}

// Kind reports embedding.KindRemote.
func (p *Provider) Kind() embedding.Kind { return embedding.KindRemote }

// Name returns "openai:<model>", suffixed with the requested dimension when
// one is set.
func (p *Provider) Name() string {
	if p.dim > 0 {
		return fmt.Sprintf("openai:%s/%d", p.model, p.dim)
	}
	return "openai:" + p.model
}

// Embed splits texts into batches and returns vectors in input order.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, embedding.ErrEmptyInput
	}
	out := make([][]float32, len(texts))
	for i := 0; i < len(texts); i += p.batchSize {
		end := min(i+p.batchSize, len(texts))
		vecs, err := p.call(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("openai: embed batch [%d:%d]: %w", i, end, err)
		}
		copy(out[i:], vecs)
	}
	p.logger.Debug("embedded texts", "provider", p.Name(), "count", len(texts))
	return out, nil
}

func (p *Provider) call(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model:          p.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if p.dim > 0 {
		params.Dimensions = openai.Int(int64(p.dim))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, err
	}

	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= int64(len(texts)) {
			return nil, fmt.Errorf("unexpected embedding index %d for batch of %d", d.Index, len(texts))
		}
		vecs[d.Index] = toFloat32(d.Embedding)
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for index %d", i)
		}
	}
	return vecs, nil
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
