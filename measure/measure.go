// Package measure times a single benchmark operation and derives its
// throughput. It never touches storage itself.
package measure

import (
	"time"

	"dbbench/models"
)

// Execution runs f, measures its wall-clock duration and packages the result.
// If f fails the error is propagated unmodified and no result is produced.
func Execution(database, testName string, operations, cpuCount int, f func() error) (*models.BenchmarkResult, error) {
	start := time.Now()
	if err := f(); err != nil {
		return nil, err
	}
	durationMs := time.Since(start).Milliseconds()

	return &models.BenchmarkResult{
		Database:            database,
		TestName:            testName,
		Operations:          operations,
		DurationMs:          durationMs,
		OperationsPerSecond: Throughput(operations, durationMs),
		CPUCount:            cpuCount,
		Timestamp:           time.Now().UTC(),
	}, nil
}

// Throughput converts an operation count and elapsed milliseconds into
// operations per second. An operation finishing within the same millisecond
// reports the count itself, avoiding a division by zero.
func Throughput(operations int, durationMs int64) float64 {
	if durationMs == 0 {
		return float64(operations)
	}
	return float64(operations) / (float64(durationMs) / 1000.0)
}
