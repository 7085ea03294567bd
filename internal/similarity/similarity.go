// Package similarity holds the cosine scoring used for ranking and the
// Backend abstraction implemented by the nearest-neighbour backends.
package similarity

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
)

// Epsilon guards the cosine denominator against near-zero norms.
const Epsilon = 1e-10

// Match is one ranked corpus position.
type Match struct {
	Ordinal    int
	Distance   float64
	Similarity float64
}

// Backend answers nearest-neighbour queries over a fixed set of vectors.
// Implementations must be safe for concurrent Search calls.
type Backend interface {
	// Search returns at most k matches ordered by ascending distance, ties
	// broken by ascending ordinal.
	Search(ctx context.Context, query []float32, k int) ([]Match, error)

	// Len returns the number of indexed vectors.
	Len() int
}

// Builder constructs a Backend from vectors whose ordinals are their slice
// positions. Vectors are not copied and must not be modified afterwards.
type Builder interface {
	Name() string
	Build(ctx context.Context, vectors [][]float32) (Backend, error)
}

// Cosine returns dot(a,b) / (|a|*|b| + Epsilon), accumulated in float64.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	return dot / (math.Sqrt(na)*math.Sqrt(nb) + Epsilon)
}

// Distance is 1 - Cosine(a, b).
func Distance(a, b []float32) float64 {
	return 1 - Cosine(a, b)
}

// IsZero reports whether every component of v is zero.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Rank scores the candidate ordinals against query exactly and returns the
// best k. A nil candidates slice ranks every vector.
func Rank(query []float32, vectors [][]float32, candidates []int, k int) []Match {
	if k <= 0 {
		return nil
	}
	var out []Match
	score := func(i int) {
		sim := Cosine(query, vectors[i])
		out = append(out, Match{Ordinal: i, Distance: 1 - sim, Similarity: sim})
	}
	if candidates == nil {
		out = make([]Match, 0, len(vectors))
		for i := range vectors {
			score(i)
		}
	} else {
		out = make([]Match, 0, len(candidates))
		for _, i := range candidates {
			score(i)
		}
	}
	slices.SortFunc(out, func(a, b Match) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Ordinal, b.Ordinal)
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// Rerank ranks candidates fetched by an approximate search exactly and
// returns the best k. When the k-th distance is shared by another fetched
// candidate, or nothing fetched is farther than it, vectors outside the
// candidate set may tie with the boundary and only a full ranking yields
// the lowest ordinals, so every vector is ranked instead.
func Rerank(query []float32, vectors [][]float32, candidates []int, k int) []Match {
	if k <= 0 {
		return nil
	}
	if len(candidates) >= len(vectors) {
		return Rank(query, vectors, candidates, k)
	}
	ranked := Rank(query, vectors, candidates, len(candidates))
	if len(ranked) < k {
		return Rank(query, vectors, nil, k)
	}
	boundary := ranked[k-1].Distance
	if ranked[len(ranked)-1].Distance <= boundary || (len(ranked) > k && ranked[k].Distance == boundary) {
		return Rank(query, vectors, nil, k)
	}
	return ranked[:k]
}

// CheckVectors verifies that accelerated backends can index vectors: all
// share one length and none is zero.
func CheckVectors(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != len(vectors[0]) {
			return fmt.Errorf("vector %d has length %d, want %d", i, len(v), len(vectors[0]))
		}
		if IsZero(v) {
			return fmt.Errorf("vector %d is zero", i)
		}
	}
	return nil
}
