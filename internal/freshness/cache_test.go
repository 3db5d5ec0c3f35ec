package freshness

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrComputeMemoizes(t *testing.T) {
	c := New[int](time.Minute)
	var calls atomic.Int32

	for i := 0; i < 5; i++ {
		v, err := c.GetOrCompute("k", func() (int, error) {
			calls.Add(1)
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrComputeCoalescesBurst(t *testing.T) {
	c := New[string](time.Minute)
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrCompute("k", func() (string, error) {
				calls.Add(1)
				<-release
				return "done", nil
			})
			assert.NoError(t, err)
			assert.Equal(t, "done", v)
		}()
	}

	// Let the goroutines pile up behind the key lock before the first
	// computation finishes.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestWindowExpiryRecomputes(t *testing.T) {
	c := New[int](10 * time.Millisecond)
	var calls atomic.Int32
	compute := func() (int, error) {
		return int(calls.Add(1)), nil
	}

	v, err := c.GetOrCompute("k", compute)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	time.Sleep(25 * time.Millisecond)

	v, err = c.GetOrCompute("k", compute)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestInvalidateForcesRecompute(t *testing.T) {
	c := New[int](time.Minute)
	var calls atomic.Int32
	compute := func() (int, error) {
		return int(calls.Add(1)), nil
	}

	_, _ = c.GetOrCompute("k", compute)
	c.Invalidate("k")
	v, err := c.GetOrCompute("k", compute)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestErrorIsMemoized(t *testing.T) {
	c := New[int](time.Minute)
	var calls atomic.Int32
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_, err := c.GetOrCompute("k", func() (int, error) {
			calls.Add(1)
			return 0, boom
		})
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestKeysAreIndependent(t *testing.T) {
	c := New[int](time.Minute)
	var calls atomic.Int32
	compute := func() (int, error) {
		return int(calls.Add(1)), nil
	}

	a, _ := c.GetOrCompute("a", compute)
	b, _ := c.GetOrCompute("b", compute)
	assert.NotEqual(t, a, b)
	assert.Equal(t, int32(2), calls.Load())
}
