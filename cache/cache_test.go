package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore() (*MemoryStore, *clock) {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewMemoryStore()
	s.SetClock(clk.Now)
	return s, clk
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore()

	require.NoError(t, s.Put(ctx, "k", []byte("v"), time.Minute))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	clk.Advance(time.Minute)
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIncrementSetsTTLOnlyOnCreate(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore()

	n, err := s.Increment(ctx, "c", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	clk.Advance(30 * time.Second)
	n, err = s.Increment(ctx, "c", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// The window started at the first increment, not the second.
	clk.Advance(30 * time.Second)
	got, err := Counter(ctx, s, "c")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)

	n, err = s.Increment(ctx, "c", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDecrement(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()
	for i := 0; i < 3; i++ {
		_, err := s.Increment(ctx, "remaining", time.Hour)
		require.NoError(t, err)
	}
	n, err := s.Decrement(ctx, "remaining")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestLockIsExclusiveUntilExpiry(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore()

	ok, err := s.Lock(ctx, "l", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Lock(ctx, "l", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	clk.Advance(5 * time.Minute)
	ok, err = s.Lock(ctx, "l", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Unlock(ctx, "l"))
	ok, err = s.Lock(ctx, "l", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRememberComputesOnce(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()

	var calls int32
	fn := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return []byte("value"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := Remember(ctx, s, "r", time.Minute, fn)
			assert.NoError(t, err)
			assert.Equal(t, []byte("value"), v)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, err := Remember(ctx, s, "r", time.Minute, fn)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRememberDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()

	_, err := Remember(ctx, s, "e", time.Minute, func(context.Context) ([]byte, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)

	_, ok, _ := s.Get(ctx, "e")
	assert.False(t, ok)
}

func TestRememberJSON(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()

	type snapshot struct {
		Active string   `json:"active"`
		All    []string `json:"all"`
	}
	got, err := RememberJSON(ctx, s, "j", time.Minute, func(context.Context) (snapshot, error) {
		return snapshot{Active: "v2", All: []string{"v1", "v2"}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Active)

	var again snapshot
	ok, err := GetJSON(ctx, s, "j", &again)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, got, again)
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore()
	require.NoError(t, s.Put(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, s.Put(ctx, "b", []byte("1"), 0))

	clk.Advance(2 * time.Second)
	assert.Equal(t, 1, s.Purge())
	assert.Equal(t, 1, s.Len())
}
