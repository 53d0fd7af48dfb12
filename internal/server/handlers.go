package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Sternrassler/koperasi-ledger/pkg/client"
	"github.com/Sternrassler/koperasi-ledger/pkg/ledger"
)

// maxBodyBytes bounds write request bodies.
const maxBodyBytes = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.orch.Members(r.Context(), refresh(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.orch.FilterMembers(members, r.URL.Query().Get("q")))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.orch.Transactions(r.Context(), refresh(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.orch.FilterTransactions(txs, r.URL.Query().Get("member")))
}

func (s *Server) handleListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := s.orch.Loans(r.Context(), refresh(r))
	if err != nil {
		s.writeError(w, err)
		return
	}

	if member := r.URL.Query().Get("member"); member != "" {
		loans = s.orch.FilterLoans(loans, member)
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) handleLoanByMember(w http.ResponseWriter, r *http.Request) {
	loans, err := s.orch.Loans(r.Context(), refresh(r))
	if err != nil {
		s.writeError(w, err)
		return
	}

	loan, ok := s.orch.FirstLoan(loans, r.PathValue("name"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no loan for member"})
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) handleAdd(add func(context.Context, ledger.Record) (map[string]any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, ok := s.decodeRecord(w, r)
		if !ok {
			return
		}

		resp, err := add(r.Context(), record)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	partial, ok := s.decodeRecord(w, r)
	if !ok {
		return
	}

	resp, err := s.orch.UpdateMember(r.Context(), r.PathValue("name"), partial)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	resp, err := s.orch.DeleteMember(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateLoan(w http.ResponseWriter, r *http.Request) {
	fields, ok := s.decodeRecord(w, r)
	if !ok {
		return
	}

	resp, err := s.orch.UpdateLoan(r.Context(), r.PathValue("id"), fields)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"entries": s.orch.CacheStats()})
}

func (s *Server) handleClearCache(w http.ResponseWriter, _ *http.Request) {
	s.orch.ClearCache()
	s.logger.Info().Msg("Cache cleared")
	w.WriteHeader(http.StatusNoContent)
}

func refresh(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("refresh"))
	return err == nil && v
}

func (s *Server) decodeRecord(w http.ResponseWriter, r *http.Request) (ledger.Record, bool) {
	var record ledger.Record
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&record); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid JSON body: %v", err)})
		return nil, false
	}
	return record, true
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps ledger and transport failures to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway

	var apiErr *client.APIError
	switch {
	case errors.Is(err, ledger.ErrMemberNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, client.ErrQuotaExhausted):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.As(err, &apiErr):
		s.logger.Warn().
			Err(err).
			Int("status_code", apiErr.StatusCode).
			Str("error_class", string(apiErr.ErrorClass)).
			Msg("Upstream request failed")
	default:
		s.logger.Warn().Err(err).Msg("Upstream request failed")
	}

	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
