package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/intake/internal/profile"
	"github.com/kalambet/intake/internal/questionnaire"
)

func TestRegistryEvictsIdleSessions(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	r := NewRegistry(Options{})
	r.now = func() time.Time { return now }

	stale := r.Create(testConfig(t))
	active := r.Create(testConfig(t))

	now = now.Add(90 * time.Minute)
	_, err := r.Get(active.ID())
	require.NoError(t, err)

	now = now.Add(45 * time.Minute)
	assert.Equal(t, 1, r.Evict(2*time.Hour))
	assert.Equal(t, 1, r.Len())

	_, err = r.Get(stale.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Get(active.ID())
	assert.NoError(t, err)
}

func TestRegistryKeepsBusySessions(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	sub := &fakeSubmitter{started: make(chan *profile.Profile, 1), release: make(chan struct{})}
	r := NewRegistry(Options{Submitter: sub})
	r.now = func() time.Time { return now }
	ctx := context.Background()

	s := r.Create(testConfig(t))
	require.NoError(t, s.SetAnswer("q1", questionnaire.Number(5)))
	_, err := s.Next(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.Next(ctx)
		done <- err
	}()
	<-sub.started

	now = now.Add(24 * time.Hour)
	assert.Equal(t, 0, r.Evict(time.Hour))
	assert.Equal(t, 1, r.Len())

	close(sub.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, r.Evict(time.Hour))
	assert.Equal(t, 0, r.Len())
}

func TestRegistryEvictLoopStops(t *testing.T) {
	r := NewRegistry(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.EvictLoop(ctx, time.Millisecond, time.Hour) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("EvictLoop did not return after cancel")
	}
}
