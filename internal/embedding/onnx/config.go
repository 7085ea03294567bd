// Package onnx implements a local embedding.Provider that runs a
// sentence-transformer model (all-MiniLM-L6-v2 and similar) through ONNX
// Runtime. The runtime is only linked when building with -tags onnx.
package onnx

// Config configures the ONNX provider.
type Config struct {
	// ModelPath is the path to the .onnx model file.
	ModelPath string `yaml:"model_path"`

	// TokenizerPath is the path to the HuggingFace tokenizer.json.
	TokenizerPath string `yaml:"tokenizer_path"`

	// LibraryPath points at libonnxruntime. Empty uses the runtime default.
	LibraryPath string `yaml:"library_path"`

	// Dimensions is the hidden size of the model. Defaults to 384.
	Dimensions int `yaml:"dimensions"`

	// MaxSeqLen bounds the token sequence including [CLS] and [SEP].
	// Defaults to 128.
	MaxSeqLen int `yaml:"max_seq_len"`
}

func (c *Config) setDefaults() {
	if c.Dimensions <= 0 {
		c.Dimensions = 384
	}
	if c.MaxSeqLen <= 2 {
		c.MaxSeqLen = 128
	}
}
