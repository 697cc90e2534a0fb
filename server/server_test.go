package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbbench/benchmark"
	"dbbench/benchmark/engines/memory"
	"dbbench/models"
	"dbbench/worker"
)

// flakyEngine wraps a real engine and fails test data generation on demand.
type flakyEngine struct {
	benchmark.Benchmark
	mu   sync.Mutex
	fail bool
}

func (f *flakyEngine) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *flakyEngine) GenerateTestData(count int) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return errors.New("simulated backend fault")
	}
	return f.Benchmark.GenerateTestData(count)
}

func newTestServer(t *testing.T) (*Server, *flakyEngine) {
	t.Helper()
	pool := worker.NewPool(2)
	t.Cleanup(pool.Close)

	engine := &flakyEngine{Benchmark: memory.New(2, pool)}
	return New(engine), engine
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decodeResults(t *testing.T, rec *httptest.ResponseRecorder) *models.BenchmarkResults {
	t.Helper()
	var results models.BenchmarkResults
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&results))
	return &results
}

func TestRootReturnsDescription(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, description, rec.Body.String())
}

func TestRootRejectsUnknownPaths(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/nope").Code)
}

func TestResultsBeforeAnyRun(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/results").Code)
}

func TestRunStoresSnapshot(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/run")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	run := decodeResults(t, rec)
	assert.Equal(t, "Memory", run.Database)
	require.Len(t, run.Results, 11)

	rec = get(t, s, "/results")
	require.Equal(t, http.StatusOK, rec.Code)
	stored := decodeResults(t, rec)
	assert.Equal(t, run.Timestamp, stored.Timestamp)
	assert.Len(t, stored.Results, 11)
}

func TestFailedRunLeavesSnapshotUntouched(t *testing.T) {
	s, engine := newTestServer(t)

	require.Equal(t, http.StatusOK, get(t, s, "/run").Code)
	previous := decodeResults(t, get(t, s, "/results"))

	engine.setFail(true)
	assert.Equal(t, http.StatusInternalServerError, get(t, s, "/run").Code)

	rec := get(t, s, "/results")
	require.Equal(t, http.StatusOK, rec.Code)
	current := decodeResults(t, rec)
	assert.Equal(t, previous.Timestamp, current.Timestamp)
}

func TestFailedRunWithoutPriorSnapshot(t *testing.T) {
	s, engine := newTestServer(t)

	engine.setFail(true)
	assert.Equal(t, http.StatusInternalServerError, get(t, s, "/run").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/results").Code)
}

func TestConcurrentRunsProduceOneCoherentSnapshot(t *testing.T) {
	s, _ := newTestServer(t)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			get(t, s, "/run")
		}()
	}
	wg.Wait()

	rec := get(t, s, "/results")
	require.Equal(t, http.StatusOK, rec.Code)
	results := decodeResults(t, rec)
	// last writer wins, but the stored snapshot is always one complete run
	assert.Len(t, results.Results, 11)
	assert.Equal(t, "Memory", results.Database)
}
