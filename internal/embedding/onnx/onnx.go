//go:build onnx

package onnx

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/egobogo/addvar/internal/embedding"
)

var (
	initOnce sync.Once
	initErr  error
)

// Provider runs a sentence-transformer model in process.
type Provider struct {
	cfg       Config
	tokenizer *Tokenizer

	// mu serialises Run calls on the shared session.
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
}

var _ embedding.Provider = (*Provider)(nil)

// New loads the tokenizer and model and opens an inference session.
func New(cfg Config) (*Provider, error) {
	cfg.setDefaults()
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("onnx: model path is required: %w", embedding.ErrProviderUnavailable)
	}

	initOnce.Do(func() {
		if cfg.LibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.LibraryPath)
		}
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return nil, fmt.Errorf("onnx: initialize runtime: %w", initErr)
	}

	tok, err := LoadTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: create session: %w", err)
	}
	return &Provider{cfg: cfg, tokenizer: tok, session: session}, nil
}

// Kind reports embedding.KindLocal.
func (p *Provider) Kind() embedding.Kind { return embedding.KindLocal }

// Name returns "onnx:<model file>/<dim>".
func (p *Provider) Name() string {
	return fmt.Sprintf("onnx:%s/%d", filepath.Base(p.cfg.ModelPath), p.cfg.Dimensions)
}

// Embed runs inference once per text.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, embedding.ErrEmptyInput
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := p.embedOne(text)
		if err != nil {
			return nil, fmt.Errorf("onnx: text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (p *Provider) embedOne(text string) ([]float32, error) {
	seqLen := p.cfg.MaxSeqLen
	ids, mask := p.tokenizer.Encode(text, seqLen)
	typeIDs := make([]int64, seqLen)

	shape := ort.NewShape(1, int64(seqLen))
	idsT, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, err
	}
	defer idsT.Destroy()
	maskT, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, err
	}
	defer maskT.Destroy()
	typeT, err := ort.NewTensor(shape, typeIDs)
	if err != nil {
		return nil, err
	}
	defer typeT.Destroy()

	outputs := []ort.Value{nil}
	p.mu.Lock()
	err = p.session.Run([]ort.Value{idsT, maskT, typeT}, outputs)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}
	defer outputs[0].Destroy()

	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}
	data := hidden.GetData()
	switch shape := hidden.GetShape(); len(shape) {
	case 2:
		// Model already pools.
		if len(data) < p.cfg.Dimensions {
			return nil, fmt.Errorf("output has %d values, want %d", len(data), p.cfg.Dimensions)
		}
		v := make([]float32, p.cfg.Dimensions)
		copy(v, data)
		return embedding.Normalize(v), nil
	case 3:
		return meanPool(data, mask, p.cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}
}

// Close releases the inference session.
func (p *Provider) Close() error {
	return p.session.Destroy()
}
