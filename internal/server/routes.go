package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/egobogo/addvar/internal/embedding"
	"github.com/egobogo/addvar/internal/index"
	"github.com/egobogo/addvar/internal/memory"
	"github.com/egobogo/addvar/internal/reconcile"
)

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.health)

	// Memory units and their ledger
	mux.HandleFunc("POST /v1/units", s.createUnit)
	mux.HandleFunc("GET /v1/units", s.listUnits)
	mux.HandleFunc("GET /v1/units/{id}", s.getUnit)
	mux.HandleFunc("PATCH /v1/units/{id}", s.updateUnit)
	mux.HandleFunc("GET /v1/ledger", s.listLedger)

	// Embedding index
	mux.HandleFunc("POST /v1/index/build", s.buildIndex)
	mux.HandleFunc("GET /v1/index", s.indexStats)
	mux.HandleFunc("POST /v1/map", s.mapQuery)

	mux.HandleFunc("POST /v1/reconcile", s.reconcile)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

// statusFor maps core errors onto HTTP statuses and error types.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, memory.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, memory.ErrEmptyContent), errors.Is(err, memory.ErrVectorLength),
		errors.Is(err, reconcile.ErrMissingID):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, index.ErrIndexNotBuilt), errors.Is(err, index.ErrProviderMismatch):
		return http.StatusConflict, "index_error"
	case errors.Is(err, index.ErrDimensionMismatch):
		return http.StatusUnprocessableEntity, "index_error"
	case errors.Is(err, embedding.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, "provider_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status, typ := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	writeError(w, status, typ, err.Error())
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
