package worker

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolSubmitReturnsResult(t *testing.T) {
	pool := NewPool(2)
	defer pool.Close()

	require.NoError(t, pool.Submit(func() error { return nil }))

	boom := errors.New("boom")
	assert.ErrorIs(t, pool.Submit(func() error { return boom }), boom)
}

func TestPoolRunsConcurrently(t *testing.T) {
	pool := NewPool(4)
	defer pool.Close()

	var wg sync.WaitGroup
	var running atomic.Int32
	var peak atomic.Int32

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Submit(func() error {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				running.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Greater(t, peak.Load(), int32(1))
}

func TestHandleSerializesCallers(t *testing.T) {
	pool := NewPool(4)
	defer pool.Close()
	handle := NewHandle(pool)

	var wg sync.WaitGroup
	var inside atomic.Int32
	overlapped := false

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handle.Do(func() error {
				if inside.Add(1) > 1 {
					overlapped = true
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.False(t, overlapped)
}

func TestHandleReleasedAfterFailure(t *testing.T) {
	pool := NewPool(1)
	defer pool.Close()
	handle := NewHandle(pool)

	boom := errors.New("boom")
	require.ErrorIs(t, handle.Do(func() error { return boom }), boom)

	// a failed call must not leave the handle locked
	require.NoError(t, handle.Do(func() error { return nil }))
}
