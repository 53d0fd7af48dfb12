// Package server exposes the ledger over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/koperasi-ledger/pkg/ledger"
	"github.com/Sternrassler/koperasi-ledger/pkg/metrics"
)

// Server serves the ledger API plus health, readiness and metrics endpoints.
type Server struct {
	logger     zerolog.Logger
	orch       *ledger.Orchestrator
	httpServer *http.Server
	mux        *http.ServeMux
	ready      atomic.Bool

	mu         sync.RWMutex
	addr       string
	actualAddr string
}

// New creates a server for orch listening on addr. It reports not ready until
// SetReady(true) is called.
func New(orch *ledger.Orchestrator, addr string, logger zerolog.Logger) *Server {
	s := &Server{
		logger: logger,
		orch:   orch,
		mux:    http.NewServeMux(),
		addr:   addr,
	}

	s.routes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.Handle("GET /metrics", metrics.Handler())

	s.mux.HandleFunc("GET /api/members", s.handleListMembers)
	s.mux.HandleFunc("POST /api/members", s.handleAdd(s.orch.AddMember))
	s.mux.HandleFunc("PATCH /api/members/{name}", s.handleUpdateMember)
	s.mux.HandleFunc("DELETE /api/members/{name}", s.handleDeleteMember)

	s.mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	s.mux.HandleFunc("POST /api/transactions", s.handleAdd(s.orch.AddTransaction))

	s.mux.HandleFunc("GET /api/loans", s.handleListLoans)
	s.mux.HandleFunc("GET /api/loans/by-member/{name}", s.handleLoanByMember)
	s.mux.HandleFunc("POST /api/loans", s.handleAdd(s.orch.AddLoan))
	s.mux.HandleFunc("PATCH /api/loans/{id}", s.handleUpdateLoan)

	s.mux.HandleFunc("GET /api/cache/stats", s.handleCacheStats)
	s.mux.HandleFunc("DELETE /api/cache", s.handleClearCache)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// SetReady flips the readiness probe.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Start listens on the configured address and serves in a background goroutine.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.actualAddr = listener.Addr().String()
	s.mu.Unlock()

	s.logger.Info().Str("address", s.actualAddr).Msg("HTTP server listening")

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.actualAddr != "" {
		return s.actualAddr
	}
	return s.addr
}

// Shutdown stops the server, waiting for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.SetReady(false)
	s.logger.Info().Msg("Shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info().Msg("HTTP server stopped")
	return nil
}
