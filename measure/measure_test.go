package measure

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThroughput(t *testing.T) {
	tests := []struct {
		name       string
		operations int
		durationMs int64
		want       float64
	}{
		{"zero duration reports the count", 1000, 0, 1000},
		{"zero duration zero operations", 0, 0, 0},
		{"one second", 1000, 1000, 1000},
		{"half second", 1000, 500, 2000},
		{"slow run", 100, 4000, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Throughput(tt.operations, tt.durationMs), 1e-9)
		})
	}
}

func TestExecutionSuccess(t *testing.T) {
	called := false
	r, err := Execution("Memory", "Insert Single Many Times", 500, 4, func() error {
		called = true
		time.Sleep(10 * time.Millisecond)
		return nil
	})

	require.NoError(t, err)
	require.True(t, called)
	assert.Equal(t, "Memory", r.Database)
	assert.Equal(t, "Insert Single Many Times", r.TestName)
	assert.Equal(t, 500, r.Operations)
	assert.Equal(t, 4, r.CPUCount)
	assert.GreaterOrEqual(t, r.DurationMs, int64(10))
	assert.InDelta(t, Throughput(500, r.DurationMs), r.OperationsPerSecond, 1e-9)
	assert.False(t, r.Timestamp.IsZero())
}

func TestExecutionPropagatesError(t *testing.T) {
	boom := errors.New("backend unavailable")
	r, err := Execution("Memory", "Read By ID Many Times", 100, 1, func() error {
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Nil(t, r)
}
