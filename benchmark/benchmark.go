package benchmark

import (
	"time"

	zlog "github.com/rs/zerolog/log"

	"dbbench/models"
)

// Benchmark is implemented once per storage engine. The orchestration core
// only ever sees this interface.
type Benchmark interface {
	// Initializes schema and structures; safe to call multiple times
	Init() error
	// Creates count users, products and orders, paired cyclically so every
	// order references entities from the same batch; atomic from the
	// caller's perspective
	GenerateTestData(count int) error
	// Removes all benchmark data; succeeds on an empty store
	Cleanup() error
	// Returns the engine name reported in results
	DatabaseName() string
	// Asks the engine to reconfigure its parallelism. Returns immediately;
	// the new setting may not be in effect yet
	SetCPUCount(count int)
	// Returns the currently declared parallelism
	GetCPUCount() int

	InsertSingleManyTimes(count int) (*models.BenchmarkResult, error)
	InsertManyAtOnce(count int) (*models.BenchmarkResult, error)
	ReadByIDManyTimes(count int) (*models.BenchmarkResult, error)
	ReadManyByIDs(count int) (*models.BenchmarkResult, error)
	ReadByColumnSearch(count int) (*models.BenchmarkResult, error)
	ReadWithOneJoin(count int) (*models.BenchmarkResult, error)
	ReadWithTwoJoins(count int) (*models.BenchmarkResult, error)
	UpdateSingleFieldOneEntry(count int) (*models.BenchmarkResult, error)
	UpdateSingleFieldManyEntries(count int) (*models.BenchmarkResult, error)
	UpdateMultipleFieldsOneEntry(count int) (*models.BenchmarkResult, error)
	UpdateMultipleFieldsManyEntries(count int) (*models.BenchmarkResult, error)
}

// RunAll executes the eleven operations in their canonical order with a fixed
// count table, so throughput numbers are comparable across engines. If any
// operation fails the whole run fails and no partial snapshot is returned.
func RunAll(b Benchmark) (*models.BenchmarkResults, error) {
	zlog.Info().Str("database", b.DatabaseName()).Msg("Running all benchmarks")

	steps := []struct {
		count int
		run   func(int) (*models.BenchmarkResult, error)
	}{
		{2000, b.InsertSingleManyTimes},
		{1000, b.InsertManyAtOnce},
		{1000, b.ReadByIDManyTimes},
		{2000, b.ReadManyByIDs},
		{2000, b.ReadByColumnSearch},
		{2000, b.ReadWithOneJoin},
		{2000, b.ReadWithTwoJoins},
		{500, b.UpdateSingleFieldOneEntry},
		{1000, b.UpdateSingleFieldManyEntries},
		{200, b.UpdateMultipleFieldsOneEntry},
		{5000, b.UpdateMultipleFieldsManyEntries},
	}

	results := make([]*models.BenchmarkResult, 0, len(steps))
	for _, s := range steps {
		r, err := s.run(s.count)
		if err != nil {
			return nil, err
		}
		zlog.Debug().Str("test", r.TestName).Int64("durationMs", r.DurationMs).
			Float64("opsPerSecond", r.OperationsPerSecond).Msg("Benchmark finished")
		results = append(results, r)
	}

	return &models.BenchmarkResults{
		Database:  b.DatabaseName(),
		Results:   results,
		Timestamp: time.Now().UTC(),
	}, nil
}
