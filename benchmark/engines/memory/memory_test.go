package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbbench/benchmark"
	"dbbench/worker"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	pool := worker.NewPool(2)
	t.Cleanup(pool.Close)
	return New(2, pool)
}

func TestFullRunScenario(t *testing.T) {
	e := newEngine(t)

	require.NoError(t, e.Init())
	// cleanup on an empty store must not fail
	require.NoError(t, e.Cleanup())

	require.NoError(t, e.GenerateTestData(1000))
	assert.Len(t, e.users, 1000)
	assert.Len(t, e.products, 1000)
	assert.Len(t, e.orders, 1000)

	// every order references entities from the same batch
	for _, o := range e.orders {
		assert.Contains(t, e.users, o.UserID)
		assert.Contains(t, e.products, o.ProductID)
	}

	results, err := benchmark.RunAll(e)
	require.NoError(t, err)
	assert.Equal(t, "Memory", results.Database)
	require.Len(t, results.Results, 11)
	for _, r := range results.Results {
		assert.Equal(t, "Memory", r.Database)
		assert.GreaterOrEqual(t, r.DurationMs, int64(0))
		assert.Greater(t, r.OperationsPerSecond, 0.0)
	}
}

func TestCleanupClearsEverything(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.GenerateTestData(50))
	require.NoError(t, e.Cleanup())
	assert.Empty(t, e.users)
	assert.Empty(t, e.products)
	assert.Empty(t, e.orders)
}

func TestReadsSelfHealOnEmptyStore(t *testing.T) {
	e := newEngine(t)

	_, err := e.ReadByIDManyTimes(10)
	require.NoError(t, err)
	assert.Len(t, e.users, 100)

	e = newEngine(t)
	_, err = e.ReadWithTwoJoins(10)
	require.NoError(t, err)
	assert.Len(t, e.orders, 500)
}

func TestUpdateSingleFieldManyEntries(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.GenerateTestData(20))

	_, err := e.UpdateSingleFieldManyEntries(20)
	require.NoError(t, err)

	for _, u := range e.users {
		assert.True(t, u.Active)
	}
}

func TestUpdateMultipleFieldsOneEntry(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.GenerateTestData(5))

	_, err := e.UpdateMultipleFieldsOneEntry(3)
	require.NoError(t, err)

	updated := 0
	for _, p := range e.products {
		if p.Description == "Updated description" {
			updated++
		}
	}
	assert.Equal(t, 1, updated)
}

func TestCPUCountRoundTrip(t *testing.T) {
	e := newEngine(t)
	assert.Equal(t, 2, e.GetCPUCount())
	e.SetCPUCount(8)
	assert.Equal(t, 8, e.GetCPUCount())
}
