// Package server exposes the memory store, the embedding index and the
// reconciler over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/egobogo/addvar/internal/embedding"
	"github.com/egobogo/addvar/internal/index"
	"github.com/egobogo/addvar/internal/memory"
	"github.com/egobogo/addvar/internal/reconcile"
)

// Options wires the server's collaborators. Provider may be nil, in which
// case index builds fail and /v1/map always uses keyword ranking.
type Options struct {
	Addr         string
	Store        memory.Store
	Index        *index.Index
	Provider     embedding.Provider
	Reconciler   *reconcile.Reconciler
	AuditRecalls bool
	Logger       *slog.Logger
}

// Server is the addvar HTTP API server.
type Server struct {
	store        memory.Store
	index        *index.Index
	provider     embedding.Provider
	reconciler   *reconcile.Reconciler
	auditRecalls bool
	logger       *slog.Logger
	http         *http.Server
}

// New creates a Server. A nil Index or Reconciler is replaced by a fresh
// one; the default reconciler has no artifact store.
func New(o Options) *Server {
	s := &Server{
		store:        o.Store,
		index:        o.Index,
		provider:     o.Provider,
		reconciler:   o.Reconciler,
		auditRecalls: o.AuditRecalls,
		logger:       o.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.index == nil {
		s.index = index.New(index.WithLogger(s.logger))
	}
	if s.reconciler == nil {
		s.reconciler = reconcile.New(nil, "", reconcile.WithLogger(s.logger))
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.http = &http.Server{
		Addr:              o.Addr,
		Handler:           s.withLogging(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.logger.Info("addvar server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown error", "err", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{Message: message, Type: errType}})
}
