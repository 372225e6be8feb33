package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterEveryRunsTask(t *testing.T) {
	sc, err := New()
	require.NoError(t, err)

	var mu sync.Mutex
	runs := 0
	require.NoError(t, sc.RegisterEvery("count", 10*time.Millisecond, func() {
		mu.Lock()
		runs++
		mu.Unlock()
	}))

	sc.Start()
	defer sc.Shutdown()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs >= 1
	}, time.Second, 10*time.Millisecond)
}

func TestRegisterEveryRecoversPanic(t *testing.T) {
	sc, err := New()
	require.NoError(t, err)

	done := make(chan struct{}, 1)
	require.NoError(t, sc.RegisterEvery("boom", 10*time.Millisecond, func() {
		select {
		case done <- struct{}{}:
		default:
		}
		panic("kaboom")
	}))

	sc.Start()
	defer sc.Shutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}

	// the panic must not have brought the scheduler down: a second job
	// registered and started afterwards still runs.
	var mu sync.Mutex
	ran := false
	require.NoError(t, sc.RegisterEvery("after", 10*time.Millisecond, func() {
		mu.Lock()
		ran = true
		mu.Unlock()
	}))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ran
	}, time.Second, 10*time.Millisecond)
}
