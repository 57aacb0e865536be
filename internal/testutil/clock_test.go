package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicClock_StartsAtStart(t *testing.T) {
	clock := NewDeterministicClock(1_700_000_000, 10)
	assert.Equal(t, int64(1_700_000_000), clock.Current())
}

func TestDeterministicClock_NowAdvancesByStep(t *testing.T) {
	clock := NewDeterministicClock(100, 10)

	assert.Equal(t, int64(110), clock.Now())
	assert.Equal(t, int64(120), clock.Now())
	assert.Equal(t, int64(120), clock.Current())
}

func TestDeterministicClock_ZeroStep(t *testing.T) {
	clock := NewDeterministicClock(0, 0)
	assert.Equal(t, int64(1), clock.Now())
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock(5, 1)
	clock.Now()
	clock.Now()

	clock.Reset()
	assert.Equal(t, int64(5), clock.Current())
	assert.Equal(t, int64(6), clock.Now())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock(0, 1)
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var mu sync.Mutex
	seen := make(map[int64]bool)

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				v := clock.Now()
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, numGoroutines*callsPerGoroutine)
	assert.Equal(t, int64(numGoroutines*callsPerGoroutine), clock.Current())
}

func TestFixedIDGenerator(t *testing.T) {
	gen := NewFixedIDGenerator("exec-1")
	assert.Equal(t, "exec-1", gen.Generate())
	assert.Equal(t, "exec-1", gen.Generate())

	assert.Equal(t, "test-exec-default", NewFixedIDGenerator("").Generate())
}
