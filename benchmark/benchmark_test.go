package benchmark

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbbench/models"
)

var canonicalOrder = []string{
	"Insert Single Many Times",
	"Insert Many At Once",
	"Read By ID Many Times",
	"Read Many By IDs",
	"Read By Column Search",
	"Read With One Join",
	"Read With Two Joins",
	"Update Single Field One Entry",
	"Update Single Field Many Entries",
	"Update Multiple Fields One Entry",
	"Update Multiple Fields Many Entries",
}

// fakeEngine records which operations ran, in which order and with which
// counts, and can be told to fail at a given operation.
type fakeEngine struct {
	calls  []string
	counts []int
	failOn string
}

func (f *fakeEngine) op(name string, count int) (*models.BenchmarkResult, error) {
	f.calls = append(f.calls, name)
	f.counts = append(f.counts, count)
	if name == f.failOn {
		return nil, errors.New(name + " failed")
	}
	return &models.BenchmarkResult{
		Database:   f.DatabaseName(),
		TestName:   name,
		Operations: count,
		CPUCount:   1,
		Timestamp:  time.Now().UTC(),
	}, nil
}

func (f *fakeEngine) Init() error                  { return nil }
func (f *fakeEngine) GenerateTestData(int) error   { return nil }
func (f *fakeEngine) Cleanup() error               { return nil }
func (f *fakeEngine) DatabaseName() string         { return "Fake" }
func (f *fakeEngine) SetCPUCount(int)              {}
func (f *fakeEngine) GetCPUCount() int             { return 1 }

func (f *fakeEngine) InsertSingleManyTimes(count int) (*models.BenchmarkResult, error) {
	return f.op("Insert Single Many Times", count)
}
func (f *fakeEngine) InsertManyAtOnce(count int) (*models.BenchmarkResult, error) {
	return f.op("Insert Many At Once", count)
}
func (f *fakeEngine) ReadByIDManyTimes(count int) (*models.BenchmarkResult, error) {
	return f.op("Read By ID Many Times", count)
}
func (f *fakeEngine) ReadManyByIDs(count int) (*models.BenchmarkResult, error) {
	return f.op("Read Many By IDs", count)
}
func (f *fakeEngine) ReadByColumnSearch(count int) (*models.BenchmarkResult, error) {
	return f.op("Read By Column Search", count)
}
func (f *fakeEngine) ReadWithOneJoin(count int) (*models.BenchmarkResult, error) {
	return f.op("Read With One Join", count)
}
func (f *fakeEngine) ReadWithTwoJoins(count int) (*models.BenchmarkResult, error) {
	return f.op("Read With Two Joins", count)
}
func (f *fakeEngine) UpdateSingleFieldOneEntry(count int) (*models.BenchmarkResult, error) {
	return f.op("Update Single Field One Entry", count)
}
func (f *fakeEngine) UpdateSingleFieldManyEntries(count int) (*models.BenchmarkResult, error) {
	return f.op("Update Single Field Many Entries", count)
}
func (f *fakeEngine) UpdateMultipleFieldsOneEntry(count int) (*models.BenchmarkResult, error) {
	return f.op("Update Multiple Fields One Entry", count)
}
func (f *fakeEngine) UpdateMultipleFieldsManyEntries(count int) (*models.BenchmarkResult, error) {
	return f.op("Update Multiple Fields Many Entries", count)
}

func TestRunAllExecutesCanonicalOrder(t *testing.T) {
	f := &fakeEngine{}

	results, err := RunAll(f)
	require.NoError(t, err)

	assert.Equal(t, "Fake", results.Database)
	assert.False(t, results.Timestamp.IsZero())
	require.Len(t, results.Results, 11)

	assert.Equal(t, canonicalOrder, f.calls)
	assert.Equal(t, []int{2000, 1000, 1000, 2000, 2000, 2000, 2000, 500, 1000, 200, 5000}, f.counts)

	for i, r := range results.Results {
		assert.Equal(t, canonicalOrder[i], r.TestName)
	}
}

func TestRunAllFailsFast(t *testing.T) {
	f := &fakeEngine{failOn: "Read By Column Search"}

	results, err := RunAll(f)
	require.Error(t, err)
	assert.Nil(t, results)

	// nothing after the failing operation ran
	assert.Equal(t, canonicalOrder[:5], f.calls)
}
