package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes map[string][]string
}

func (o *recordingObserver) JobFinished(name, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = make(map[string][]string)
	}
	o.outcomes[name] = append(o.outcomes[name], outcome)
}

func (o *recordingObserver) get(name string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.outcomes[name]...)
}

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client), server
}

func TestLocalLocker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2025, time.March, 3, 6, 0, 0, 0, time.UTC)
	locker := NewLocalLocker()
	locker.now = func() time.Time { return now }

	lock, ok, err := locker.TryLock(ctx, "auto-complete", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "auto-complete", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "lock must be exclusive while held")

	_, ok, err = locker.TryLock(ctx, "recompute-ranks", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "different jobs do not contend")

	require.NoError(t, lock.Release(ctx))
	_, ok, err = locker.TryLock(ctx, "auto-complete", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, err = locker.TryLock(ctx, "auto-complete", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired leases can be taken over")
}

func TestRedisLocker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	locker, server := newRedisLocker(t)

	first, ok, err := locker.TryLock(ctx, "auto-complete", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, server.Exists("readingd:job:auto-complete"))

	_, ok, err = locker.TryLock(ctx, "auto-complete", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	server.FastForward(2 * time.Minute)
	second, ok, err := locker.TryLock(ctx, "auto-complete", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "expired key can be re-acquired")

	require.NoError(t, first.Release(ctx))
	assert.True(t, server.Exists("readingd:job:auto-complete"), "a stale holder must not release the new lease")

	require.NoError(t, second.Release(ctx))
	assert.False(t, server.Exists("readingd:job:auto-complete"))
}

func TestRunner_RunOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	observer := &recordingObserver{}
	runner := NewRunner(NewLocalLocker(), WithObserver(observer))

	var runs atomic.Int32
	boom := errors.New("boom")
	require.NoError(t, runner.Register(Job{Name: "auto-complete", Interval: time.Minute, Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}))
	require.NoError(t, runner.Register(Job{Name: "cleanup-sessions", Interval: time.Hour, Run: func(context.Context) error {
		return boom
	}}))

	assert.Error(t, runner.Register(Job{Name: "auto-complete", Interval: time.Minute, Run: func(context.Context) error { return nil }}))
	assert.Error(t, runner.Register(Job{Name: "bad", Run: func(context.Context) error { return nil }}))
	assert.Equal(t, []string{"auto-complete", "cleanup-sessions"}, runner.Jobs())

	require.NoError(t, runner.RunOnce(ctx, "auto-complete"))
	assert.EqualValues(t, 1, runs.Load())
	assert.Equal(t, []string{OutcomeSuccess}, observer.get("auto-complete"))

	assert.ErrorIs(t, runner.RunOnce(ctx, "cleanup-sessions"), boom)
	assert.Equal(t, []string{OutcomeError}, observer.get("cleanup-sessions"))

	assert.ErrorIs(t, runner.RunOnce(ctx, "missing"), ErrUnknownJob)
}

func TestRunner_SkipsWhenLockedElsewhere(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	locker, _ := newRedisLocker(t)
	observer := &recordingObserver{}
	runner := NewRunner(locker, WithObserver(observer))

	var runs atomic.Int32
	require.NoError(t, runner.Register(Job{Name: "recompute-ranks", Interval: time.Hour, Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}))

	held, ok, err := locker.TryLock(ctx, "recompute-ranks", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, runner.RunOnce(ctx, "recompute-ranks"))
	assert.Zero(t, runs.Load())
	assert.Equal(t, []string{OutcomeSkipped}, observer.get("recompute-ranks"))

	require.NoError(t, held.Release(ctx))
	require.NoError(t, runner.RunOnce(ctx, "recompute-ranks"))
	assert.EqualValues(t, 1, runs.Load())
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	runner := NewRunner(nil)

	ran := make(chan struct{}, 1)
	require.NoError(t, runner.Register(Job{Name: "auto-complete", Interval: 10 * time.Millisecond, Run: func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}}))

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancellation")
	}
}
