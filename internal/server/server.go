// Package server exposes the agent over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/comigor/mentor-go/internal/agent"
	"github.com/comigor/mentor-go/internal/history"
	"github.com/comigor/mentor-go/internal/logger"
	"github.com/comigor/mentor-go/internal/pipeline"
)

// SessionHeader carries the session id on requests and responses.
const SessionHeader = "X-Session-ID"

const maxQueryBytes = 1 << 20

type Server struct {
	agent *agent.Agent
	mux   *http.ServeMux
}

func New(a *agent.Agent) *Server {
	s := &Server{agent: a, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /ask", s.handleAsk)
	s.mux.HandleFunc("GET /sessions", s.handleSessions)
	s.mux.HandleFunc("GET /sessions/{id}/history", s.handleHistory)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// main inference endpoint
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxQueryBytes))
	if err != nil {
		logger.L.Error("read body error", "err", err)
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		sessionID = uuid.Must(uuid.NewV7()).String()
	}
	w.Header().Set(SessionHeader, sessionID)
	logger.L.Info("ask request", "session", sessionID, "bytes", len(body))

	reply, err := s.agent.Ask(r.Context(), sessionID, string(body))
	if err != nil {
		logger.L.Error("ask error", "err", err, "session", sessionID)
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte(reply)); err != nil {
		logger.L.Warn("write response failed", "session", sessionID, "err", err)
	}
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.agent.Store().Sessions())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h, ok := s.agent.Store().Lookup(id)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	turns, err := h.Turns()
	if err != nil {
		logger.L.Error("read history error", "err", err, "session", id)
		http.Error(w, "failed to read history", http.StatusInternalServerError)
		return
	}
	if turns == nil {
		turns = []history.Turn{}
	}
	writeJSON(w, turns)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, agent.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrServiceUnavailable), errors.Is(err, pipeline.ErrInvalidResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L.Warn("encode response failed", "err", err)
	}
}

// Run serves h on addr until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L.Info("starting server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.L.Info("shutting down server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
