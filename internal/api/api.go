// Package api exposes the live run state over a small REST interface.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"subhunt/internal/fuzzer"
	"subhunt/internal/results"
)

// Server serves run status and results while a scan is in flight.
type Server struct {
	srv      *http.Server
	stats    func() fuzzer.Stats
	snapshot func() results.Table
	log      *slog.Logger
}

// New builds a Server on port. stats and snapshot are polled per request.
func New(port int, stats func() fuzzer.Stats, snapshot func() results.Table, log *slog.Logger) *Server {
	s := &Server{
		stats:    stats,
		snapshot: snapshot,
		log:      log,
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/results", s.handleResults).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		s.log.Info("API server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("API server error", "error", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.stats())
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.snapshot())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
