package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/egobogo/addvar/internal/memory"
	"github.com/egobogo/addvar/internal/reconcile"
)

type reconcileRequest struct {
	CoherenceVector reconcile.CoherenceVector `json:"coherence_vector"`
	Deltas          reconcile.DeltaSet        `json:"deltas"`
}

type reconcileResponse struct {
	Summary      reconcile.Summary `json:"summary"`
	Artifact     string            `json:"artifact"`
	PersistError string            `json:"persist_error,omitempty"`
	LedgerError  string            `json:"ledger_error,omitempty"`
}

// MergeOutcome is a reconcile.Outcome plus the result of recording it in
// the ledger. NoteErr joins every failed merge entry; the summary and the
// artifact stand either way.
type MergeOutcome struct {
	reconcile.Outcome
	NoteErr error
}

// Reconcile merges cv and deltas and records a merge entry in the ledger
// for every top id, whether or not the artifact was written. Only an
// invalid coherence vector is returned as an error.
func (s *Server) Reconcile(ctx context.Context, cv reconcile.CoherenceVector, deltas reconcile.DeltaSet) (MergeOutcome, error) {
	merged, err := s.reconciler.Merge(ctx, cv, deltas)
	out := MergeOutcome{Outcome: merged}
	if err != nil {
		return out, err
	}
	var noteErrs []error
	for rank, id := range out.Summary.TopIDs {
		meta := map[string]any{
			"generated_at": out.Summary.GeneratedAt,
			"rank":         rank,
			"persisted":    out.PersistErr == nil,
		}
		if _, err := s.store.Note(ctx, memory.ActionMerge, id, meta); err != nil {
			noteErrs = append(noteErrs, fmt.Errorf("merge entry %s: %w", id, err))
		}
	}
	if out.NoteErr = errors.Join(noteErrs...); out.NoteErr != nil {
		s.logger.Warn("merge not fully recorded", "failed", len(noteErrs), "top", len(out.Summary.TopIDs), "err", out.NoteErr)
	}
	return out, nil
}

// ArtifactPath is where the reconciler writes its artifact.
func (s *Server) ArtifactPath() string { return s.reconciler.Path() }

// reconcile handles POST /v1/reconcile.
func (s *Server) reconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	out, err := s.Reconcile(r.Context(), req.CoherenceVector, req.Deltas)
	if err != nil {
		s.fail(w, err)
		return
	}
	resp := reconcileResponse{Summary: out.Summary, Artifact: s.reconciler.Path()}
	if out.PersistErr != nil {
		resp.PersistError = out.PersistErr.Error()
	}
	if out.NoteErr != nil {
		resp.LedgerError = out.NoteErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
