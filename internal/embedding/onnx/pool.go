package onnx

import (
	"fmt"

	"github.com/egobogo/addvar/internal/embedding"
)

// meanPool averages the hidden states of attended tokens and normalises the
// result. hidden is laid out [seqLen][dim].
func meanPool(hidden []float32, mask []int64, dim int) ([]float32, error) {
	if len(hidden) != len(mask)*dim {
		return nil, fmt.Errorf("onnx: hidden state has %d values, want %d", len(hidden), len(mask)*dim)
	}
	out := make([]float32, dim)
	var n float32
	for i, m := range mask {
		if m == 0 {
			continue
		}
		n++
		row := hidden[i*dim : (i+1)*dim]
		for j, v := range row {
			out[j] += v
		}
	}
	if n > 0 {
		for j := range out {
			out[j] /= n
		}
	}
	return embedding.Normalize(out), nil
}
