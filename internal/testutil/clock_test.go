package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepClock_StartsAtEpoch(t *testing.T) {
	clock := NewStepClock(time.Second)
	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, int64(1), clock.Ticks())
}

func TestStepClock_AdvancesByStep(t *testing.T) {
	clock := NewStepClock(250 * time.Millisecond)

	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch.Add(250*time.Millisecond), clock.Now())
	assert.Equal(t, Epoch.Add(500*time.Millisecond), clock.Now())
}

func TestStepClock_Reset(t *testing.T) {
	clock := NewStepClock(time.Minute)
	clock.Now()
	clock.Now()

	clock.Reset()
	assert.Equal(t, int64(0), clock.Ticks())
	assert.Equal(t, Epoch, clock.Now())
}

func TestStepClock_ThreadSafe(t *testing.T) {
	clock := NewStepClock(time.Nanosecond)
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make([][]time.Time, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		results[i] = make([]time.Time, callsPerGoroutine)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				results[idx][j] = clock.Now()
			}
		}(i)
	}
	wg.Wait()

	// Every instant handed out exactly once
	seen := make(map[time.Time]bool)
	for _, row := range results {
		for _, ts := range row {
			require.False(t, seen[ts], "duplicate instant %v", ts)
			seen[ts] = true
		}
	}
	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
}
