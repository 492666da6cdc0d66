package queue

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Drain(ctx))
}

func TestDispatcherRunsJobs(t *testing.T) {
	d := NewDispatcher(Options{MaxWorkers: 4, MaxAttempts: 1})
	defer d.Stop()

	var mu sync.Mutex
	var got []string
	d.Register("echo", func(ctx context.Context, payload []byte) error {
		var s string
		if err := json.Unmarshal(payload, &s); err != nil {
			return err
		}
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
		return nil
	})

	ctx := context.Background()
	require.NoError(t, d.Enqueue(ctx, "echo", "a", ""))
	require.NoError(t, d.Enqueue(ctx, "echo", "b", "other"))
	assert.Equal(t, 2, d.Pending())

	require.NoError(t, d.Start())
	drain(t, d)

	assert.ElementsMatch(t, []string{"a", "b"}, got)
	assert.Equal(t, 0, d.Pending())
}

func TestDispatcherRetriesUntilSuccess(t *testing.T) {
	d := NewDispatcher(Options{MaxWorkers: 1, MaxAttempts: 3, RetryBackoff: time.Millisecond})
	defer d.Stop()

	var calls int32
	d.Register("flaky", func(ctx context.Context, payload []byte) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, d.Start())
	require.NoError(t, d.Enqueue(context.Background(), "flaky", nil, ""))
	drain(t, d)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDispatcherWorkerCeiling(t *testing.T) {
	d := NewDispatcher(Options{MaxWorkers: 8, MaxAttempts: 1})
	defer d.Stop()
	d.ConfigureQueue("encryption", 2)

	var running, peak int32
	d.Register("slow", func(ctx context.Context, payload []byte) error {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	})

	for i := 0; i < 10; i++ {
		require.NoError(t, d.Enqueue(context.Background(), "slow", i, "encryption"))
	}
	require.NoError(t, d.Start())
	drain(t, d)

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestSpoolKeepsFailedJobs(t *testing.T) {
	spool, err := OpenSpool(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	defer spool.Close()

	d := NewDispatcher(Options{MaxWorkers: 1, MaxAttempts: 1, Spool: spool})
	defer d.Stop()
	d.Register("ok", func(ctx context.Context, payload []byte) error { return nil })
	d.Register("bad", func(ctx context.Context, payload []byte) error { return errors.New("broken") })

	require.NoError(t, d.Start())
	require.NoError(t, d.Enqueue(context.Background(), "ok", map[string]int{"n": 1}, ""))
	require.NoError(t, d.Enqueue(context.Background(), "bad", map[string]int{"n": 2}, ""))
	drain(t, d)

	pending, err := spool.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)

	failed, err := spool.Failed()
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "bad", failed[0].Type)
	assert.Equal(t, "broken", failed[0].LastError)
}

func TestSpoolRecoveredOnStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	spool, err := OpenSpool(path)
	require.NoError(t, err)

	first := NewDispatcher(Options{MaxWorkers: 1, MaxAttempts: 1, Spool: spool})
	require.NoError(t, first.Enqueue(context.Background(), "later", "x", ""))
	first.Stop()

	second := NewDispatcher(Options{MaxWorkers: 1, MaxAttempts: 1, Spool: spool})
	defer second.Stop()
	var ran int32
	second.Register("later", func(ctx context.Context, payload []byte) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})
	require.NoError(t, second.Start())
	drain(t, second)
	spool.Close()

	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}
