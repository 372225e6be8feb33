package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegistryAddRemoveTracksRefcount(t *testing.T) {
	r := NewRegistry()
	r.add("acme", "dev1")
	r.add("acme", "dev1")

	assert.True(t, r.Snapshot()["acme/dev1"])

	r.remove("acme", "dev1")
	assert.True(t, r.Snapshot()["acme/dev1"], "still one active session")

	r.remove("acme", "dev1")
	assert.False(t, r.Snapshot()["acme/dev1"])
}

func TestRegistrySnapshotOnNilIsEmpty(t *testing.T) {
	var r *Registry
	assert.Empty(t, r.Snapshot())
	assert.NotPanics(t, func() {
		r.add("a", "b")
		r.remove("a", "b")
		r.watch(nil, time.Now(), func() error { return nil })
		r.unwatch(nil)
		r.ReapExpired(time.Second)
	})
}

func TestReapExpiredClosesPastDeadlinePlusGrace(t *testing.T) {
	r := NewRegistry()
	closed := false
	s := &Session{}
	r.watch(s, time.Now().Add(-time.Hour), func() error {
		closed = true
		return nil
	})

	n := r.ReapExpired(time.Millisecond)
	assert.Equal(t, 1, n)
	assert.True(t, closed)

	assert.Equal(t, 0, r.ReapExpired(time.Millisecond))
}

func TestWatchSkipsZeroDeadline(t *testing.T) {
	r := NewRegistry()
	called := false
	r.watch(&Session{}, time.Time{}, func() error {
		called = true
		return nil
	})

	assert.Equal(t, 0, r.ReapExpired(0))
	assert.False(t, called)
}
