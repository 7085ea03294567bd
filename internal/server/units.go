package server

import (
	"encoding/json"
	"net/http"

	"github.com/egobogo/addvar/internal/memory"
)

type unitRequest struct {
	Content  string         `json:"content"`
	Tags     []memory.Tag   `json:"tags"`
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata"`
}

// updateRequest mirrors memory.Changes: an absent field is left unchanged.
type updateRequest struct {
	Tags     []memory.Tag   `json:"tags"`
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata"`
}

type unitListResponse struct {
	Units []memory.Unit `json:"units"`
	Count int           `json:"count"`
}

type ledgerResponse struct {
	Entries []memory.LedgerEntry `json:"entries"`
	Count   int                  `json:"count"`
}

// createUnit handles POST /v1/units.
func (s *Server) createUnit(w http.ResponseWriter, r *http.Request) {
	var req unitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	u, err := s.store.Append(r.Context(), memory.Draft{
		Content:  req.Content,
		Tags:     req.Tags,
		Vector:   req.Vector,
		Metadata: req.Metadata,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// listUnits handles GET /v1/units.
func (s *Server) listUnits(w http.ResponseWriter, r *http.Request) {
	units, err := memory.Collect(s.store.List(r.Context()))
	if err != nil {
		s.fail(w, err)
		return
	}
	if units == nil {
		units = []memory.Unit{}
	}
	writeJSON(w, http.StatusOK, unitListResponse{Units: units, Count: len(units)})
}

// getUnit handles GET /v1/units/{id}.
func (s *Server) getUnit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	u, err := s.store.Recall(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if s.auditRecalls {
		if _, err := s.store.Note(r.Context(), memory.ActionRecall, id, map[string]any{"via": "http"}); err != nil {
			s.fail(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, u)
}

// updateUnit handles PATCH /v1/units/{id}.
func (s *Server) updateUnit(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	u, err := s.store.Update(r.Context(), r.PathValue("id"), memory.Changes{
		Tags:     req.Tags,
		Vector:   req.Vector,
		Metadata: req.Metadata,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// listLedger handles GET /v1/ledger.
func (s *Server) listLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := memory.Collect(s.store.Ledger(r.Context()))
	if err != nil {
		s.fail(w, err)
		return
	}
	if entries == nil {
		entries = []memory.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, ledgerResponse{Entries: entries, Count: len(entries)})
}
