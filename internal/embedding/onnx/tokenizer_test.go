package onnx

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

var testVocab = map[string]int{
	"[UNK]": unkID, "[CLS]": clsID, "[SEP]": sepID,
	"tangent": 2000, "commit": 2001, "un": 2002, "##resolved": 2003, "##ed": 2004, "resolv": 2005,
}

func TestTokenize(t *testing.T) {
	tok := NewTokenizer(testVocab)
	tests := []struct {
		in   string
		want []int64
	}{
		{"Tangent commit.", []int64{2000, 2001}},
		{"unresolved", []int64{2002, 2003}},
		{"resolved", []int64{2005, 2004}},
		{"zzz", []int64{unkID}},
		{"  ", nil},
	}
	for _, tt := range tests {
		if got := tok.Tokenize(tt.in); !slices.Equal(got, tt.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEncodeFramesAndTruncates(t *testing.T) {
	tok := NewTokenizer(testVocab)

	ids, mask := tok.Encode("tangent commit tangent commit", 4)
	if !slices.Equal(ids, []int64{clsID, 2000, 2001, sepID}) {
		t.Errorf("ids = %v", ids)
	}
	if !slices.Equal(mask, []int64{1, 1, 1, 1}) {
		t.Errorf("mask = %v", mask)
	}

	ids, mask = tok.Encode("tangent", 5)
	if !slices.Equal(ids, []int64{clsID, 2000, sepID, 0, 0}) || !slices.Equal(mask, []int64{1, 1, 1, 0, 0}) {
		t.Errorf("padded encode = %v %v", ids, mask)
	}
}

func TestLoadTokenizer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokenizer.json")
	if err := os.WriteFile(path, []byte(`{"model":{"vocab":{"tangent":7}}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	tok, err := LoadTokenizer(path)
	if err != nil {
		t.Fatalf("LoadTokenizer: %v", err)
	}
	if got := tok.Tokenize("Tangent"); !slices.Equal(got, []int64{7}) {
		t.Errorf("Tokenize = %v", got)
	}

	empty := filepath.Join(t.TempDir(), "empty.json")
	os.WriteFile(empty, []byte(`{"model":{"vocab":{}}}`), 0o644)
	if _, err := LoadTokenizer(empty); err == nil {
		t.Error("expected error for empty vocabulary")
	}
}

func TestMeanPool(t *testing.T) {
	hidden := []float32{
		3, 0,
		0, 4,
		100, 100, // masked out
	}
	v, err := meanPool(hidden, []int64{1, 1, 0}, 2)
	if err != nil {
		t.Fatalf("meanPool: %v", err)
	}
	// mean = (1.5, 2) -> normalised (0.6, 0.8)
	if d := v[0] - 0.6; d > 1e-6 || d < -1e-6 {
		t.Errorf("v = %v", v)
	}
	if d := v[1] - 0.8; d > 1e-6 || d < -1e-6 {
		t.Errorf("v = %v", v)
	}
	if _, err := meanPool(hidden, []int64{1}, 2); err == nil {
		t.Error("expected shape error")
	}
}
