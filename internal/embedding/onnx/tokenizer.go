package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

const (
	clsID = 101
	sepID = 102
	unkID = 100
)

// Tokenizer performs lower-cased WordPiece tokenisation against a BERT
// vocabulary.
type Tokenizer struct {
	vocab map[string]int
}

// LoadTokenizer reads the vocabulary from a HuggingFace tokenizer.json.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("onnx: read tokenizer: %w", err)
	}
	var doc struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("onnx: parse tokenizer: %w", err)
	}
	if len(doc.Model.Vocab) == 0 {
		return nil, fmt.Errorf("onnx: tokenizer %s has an empty vocabulary", path)
	}
	return NewTokenizer(doc.Model.Vocab), nil
}

// NewTokenizer builds a tokenizer over an in-memory vocabulary.
func NewTokenizer(vocab map[string]int) *Tokenizer {
	return &Tokenizer{vocab: vocab}
}

// Encode returns input ids and the attention mask for text, framed by [CLS]
// and [SEP] and truncated to maxLen. Both slices have length maxLen.
func (t *Tokenizer) Encode(text string, maxLen int) (ids, mask []int64) {
	ids = make([]int64, maxLen)
	mask = make([]int64, maxLen)

	tokens := t.Tokenize(text)
	if len(tokens) > maxLen-2 {
		tokens = tokens[:maxLen-2]
	}
	ids[0], mask[0] = clsID, 1
	for i, tok := range tokens {
		ids[i+1], mask[i+1] = tok, 1
	}
	ids[len(tokens)+1], mask[len(tokens)+1] = sepID, 1
	return ids, mask
}

// Tokenize converts text to WordPiece token ids without special tokens.
func (t *Tokenizer) Tokenize(text string) []int64 {
	var out []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()[]{}")
		if word == "" {
			continue
		}
		if id, ok := t.vocab[word]; ok {
			out = append(out, int64(id))
			continue
		}
		out = append(out, t.wordPiece(word)...)
	}
	return out
}

// wordPiece greedily matches the longest known prefix, marking continuation
// pieces with "##". A word with any unmatched remainder becomes [UNK].
func (t *Tokenizer) wordPiece(word string) []int64 {
	var pieces []int64
	for start := 0; start < len(word); {
		end := len(word)
		id, found := 0, false
		for ; end > start; end-- {
			sub := word[start:end]
			if start > 0 {
				sub = "##" + sub
			}
			if id, found = t.vocab[sub]; found {
				break
			}
		}
		if !found {
			return []int64{unkID}
		}
		pieces = append(pieces, int64(id))
		start = end
	}
	return pieces
}
