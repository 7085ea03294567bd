// Package keyword ranks texts by token overlap with a query. It is the
// fallback used when the embedding index cannot answer.
package keyword

import (
	"cmp"
	"slices"
	"strings"
)

// Match is a scored position in the ranked texts.
type Match struct {
	Index int
	Score int
}

// Tokens returns the distinct lower-cased whitespace-separated tokens of s.
func Tokens(s string) map[string]struct{} {
	fields := strings.Fields(s)
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[strings.ToLower(f)] = struct{}{}
	}
	return out
}

// Rank scores every text by the number of distinct query tokens it shares
// and returns the best k, highest score first with ties in input order.
// Texts sharing nothing are still ranked, after those that do.
func Rank(query string, texts []string, k int) []Match {
	if k <= 0 {
		return []Match{}
	}
	q := Tokens(query)
	out := make([]Match, len(texts))
	for i, t := range texts {
		score := 0
		for tok := range Tokens(t) {
			if _, ok := q[tok]; ok {
				score++
			}
		}
		out[i] = Match{Index: i, Score: score}
	}
	slices.SortStableFunc(out, func(a, b Match) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}
