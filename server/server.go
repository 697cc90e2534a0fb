// Package server exposes the control plane for one engine instance: a run
// trigger and the last stored snapshot.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	zlog "github.com/rs/zerolog/log"

	"dbbench/benchmark"
	"dbbench/models"
)

const description = "Database Benchmark API. Use /run to run benchmarks and /results to view results."

// Server holds the only process-wide state: the snapshot of the last
// successful run. The slot starts unset, is replaced by every successful run
// and is never cleared.
type Server struct {
	benchmark benchmark.Benchmark

	mu      sync.Mutex
	results *models.BenchmarkResults
}

func New(b benchmark.Benchmark) *Server {
	return &Server{benchmark: b}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/run", s.handleRun)
	mux.HandleFunc("/results", s.handleResults)
	return mux
}

func (s *Server) ListenAndServe(port int) error {
	addr := fmt.Sprintf(":%d", port)
	zlog.Info().Str("addr", addr).Str("database", s.benchmark.DatabaseName()).Msg("Server listening")
	return http.ListenAndServe(addr, s.Routes())
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	fmt.Fprint(w, description)
}

// handleRun executes one full run: init, cleanup, data generation, then the
// eleven operations. A failure at any step leaves the previous snapshot
// untouched. Concurrent runs race on the slot; the last writer wins.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	zlog.Info().Msg("Run requested")

	if err := s.benchmark.Init(); err != nil {
		s.serverError(w, err, "Database initialization failed")
		return
	}

	zlog.Info().Msg("Cleaning up previous data")
	if err := s.benchmark.Cleanup(); err != nil {
		s.serverError(w, err, "Cleanup failed")
		return
	}

	zlog.Info().Msg("Generating test data")
	if err := s.benchmark.GenerateTestData(1000); err != nil {
		s.serverError(w, err, "Test data generation failed")
		return
	}

	results, err := benchmark.RunAll(s.benchmark)
	if err != nil {
		s.serverError(w, err, "Benchmark execution failed")
		return
	}

	s.mu.Lock()
	s.results = results
	s.mu.Unlock()
	zlog.Info().Msg("Results stored")

	writeJSON(w, results)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	results := s.results
	s.mu.Unlock()

	if results == nil {
		http.Error(w, "no benchmark results yet", http.StatusNotFound)
		return
	}
	writeJSON(w, results)
}

func (s *Server) serverError(w http.ResponseWriter, err error, msg string) {
	zlog.Error().Err(err).Msg(msg)
	http.Error(w, msg, http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Error().Err(err).Msg("Failed to encode response")
	}
}
