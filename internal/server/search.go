package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/egobogo/addvar/internal/index"
	"github.com/egobogo/addvar/internal/keyword"
	"github.com/egobogo/addvar/internal/memory"
)

// DefaultTopK is the result count used when a map request omits top_k.
const DefaultTopK = 5

// Strategies reported by Map.
const (
	StrategySemantic = "semantic"
	StrategyKeyword  = "keyword"
)

type mapRequest struct {
	Query string `json:"query"`
	TopK  *int   `json:"top_k"`
}

// MapResult is one ranked unit. Score is the cosine similarity for semantic
// results and the number of shared tokens for keyword results.
type MapResult struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Tags     []memory.Tag   `json:"tags"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"`
	Distance *float64       `json:"distance,omitempty"`
}

type MapResponse struct {
	Query    string      `json:"query"`
	Strategy string      `json:"strategy"`
	Fallback string      `json:"fallback_reason,omitempty"`
	Results  []MapResult `json:"results"`
}

type buildResponse struct {
	Status string      `json:"status"`
	Stats  index.Stats `json:"stats"`
}

// BuildIndex rebuilds the index from a snapshot of the store.
func (s *Server) BuildIndex(ctx context.Context) (index.Stats, error) {
	units, err := memory.Collect(s.store.List(ctx))
	if err != nil {
		return index.Stats{}, err
	}
	corpus := make([]index.Item, len(units))
	for i, u := range units {
		corpus[i] = index.Item{ID: u.ID, Text: u.Content}
	}
	if err := s.index.Build(ctx, s.provider, corpus); err != nil {
		return index.Stats{}, err
	}
	return s.index.Stats(), nil
}

// Map answers query from the embedding index and falls back to keyword
// overlap over the store when the index cannot. Only store errors are
// returned.
func (s *Server) Map(ctx context.Context, query string, k int) (MapResponse, error) {
	hits, err := s.index.Query(ctx, s.provider, query, k)
	if err == nil {
		return MapResponse{Query: query, Strategy: StrategySemantic, Results: s.resolveHits(ctx, hits)}, nil
	}
	s.logger.Info("semantic map unavailable, using keyword overlap", "err", err)

	units, lerr := memory.Collect(s.store.List(ctx))
	if lerr != nil {
		return MapResponse{}, lerr
	}
	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = u.Content
	}
	matches := keyword.Rank(query, texts, k)
	results := make([]MapResult, len(matches))
	for i, m := range matches {
		u := units[m.Index]
		results[i] = MapResult{ID: u.ID, Content: u.Content, Tags: u.Tags, Metadata: u.Metadata, Score: float64(m.Score)}
	}
	return MapResponse{Query: query, Strategy: StrategyKeyword, Fallback: err.Error(), Results: results}, nil
}

// resolveHits attaches current unit state to index hits. A hit whose unit
// no longer resolves is returned with the indexed text only.
func (s *Server) resolveHits(ctx context.Context, hits []index.Hit) []MapResult {
	out := make([]MapResult, len(hits))
	for i, h := range hits {
		d := h.Distance
		res := MapResult{ID: h.Item.ID, Content: h.Item.Text, Score: h.Similarity, Distance: &d}
		if u, err := s.store.Recall(ctx, h.Item.ID); err == nil {
			res.Tags, res.Metadata = u.Tags, u.Metadata
		}
		out[i] = res
	}
	return out
}

// buildIndex handles POST /v1/index/build.
func (s *Server) buildIndex(w http.ResponseWriter, r *http.Request) {
	stats, err := s.BuildIndex(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buildResponse{Status: "built", Stats: stats})
}

// indexStats handles GET /v1/index.
func (s *Server) indexStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.index.Stats())
}

// mapQuery handles POST /v1/map.
func (s *Server) mapQuery(w http.ResponseWriter, r *http.Request) {
	var req mapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query must not be empty")
		return
	}
	k := DefaultTopK
	if req.TopK != nil {
		k = *req.TopK
	}
	resp, err := s.Map(r.Context(), req.Query, k)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
