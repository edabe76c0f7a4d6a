package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/course-enrollment/internal/config"
)

type fakeExpirer struct {
	mu      sync.Mutex
	calls   int
	cutoffs []time.Time
	n       int64
	err     error
}

func (f *fakeExpirer) ExpireStarted(_ context.Context, cutoff, _ time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.n, f.err
}

func (f *fakeExpirer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRunOnceUsesStartedTTL(t *testing.T) {
	fake := &fakeExpirer{n: 4}
	s, err := New(fake, config.SweepConfig{Enabled: true, Interval: time.Hour, StartedTTL: 72 * time.Hour})
	require.NoError(t, err)
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	require.Len(t, fake.cutoffs, 1)
	assert.Equal(t, now.Add(-72*time.Hour), fake.cutoffs[0])
}

func TestRunOncePropagatesError(t *testing.T) {
	fake := &fakeExpirer{err: errors.New("lock wait timeout")}
	s, err := New(fake, config.SweepConfig{Interval: time.Hour, StartedTTL: time.Hour})
	require.NoError(t, err)
	_, err = s.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	fake := &fakeExpirer{}
	s, err := New(fake, config.SweepConfig{Enabled: true, Interval: time.Hour, StartedTTL: time.Hour})
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.Eventually(t, func() bool { return fake.callCount() >= 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop())
}
