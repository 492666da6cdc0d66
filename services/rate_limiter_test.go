package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admsserver/cache"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCheckAndIncrementWindow(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := cache.NewMemoryStore()
	store.SetClock(clock.Now)
	l := NewRateLimiter(store, RateLimits{})

	for i := 0; i < 3; i++ {
		ok, err := l.CheckAndIncrement(ctx, "k", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
	}
	ok, err := l.CheckAndIncrement(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// the window is fixed from the first increment
	clock.Advance(59 * time.Second)
	ok, _ = l.CheckAndIncrement(ctx, "k", 3, time.Minute)
	assert.False(t, ok)

	clock.Advance(time.Second)
	ok, err = l.CheckAndIncrement(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllowDeviceAndTenantScopes(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := cache.NewMemoryStore()
	store.SetClock(clock.Now)
	l := NewRateLimiter(store, RateLimits{Tenant: 5, Device: 2, Window: time.Minute})

	require.NoError(t, l.Allow(ctx, 1, "A"))
	require.NoError(t, l.Allow(ctx, 1, "A"))
	assert.ErrorIs(t, l.Allow(ctx, 1, "A"), ErrRateLimited)

	// other devices of the tenant still pass until the tenant limit
	require.NoError(t, l.Allow(ctx, 1, "B"))
	require.NoError(t, l.Allow(ctx, 1, "C"))
	assert.ErrorIs(t, l.Allow(ctx, 1, "D"), ErrRateLimited)

	// a different tenant is unaffected
	require.NoError(t, l.Allow(ctx, 2, "A"))

	clock.Advance(time.Minute)
	assert.NoError(t, l.Allow(ctx, 1, "A"))
}

type failingStore struct{ cache.Store }

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, assert.AnError
}

func TestAllowFailsOpen(t *testing.T) {
	l := NewRateLimiter(failingStore{cache.NewMemoryStore()}, RateLimits{Tenant: 1, Device: 1, Window: time.Minute})
	for i := 0; i < 5; i++ {
		assert.NoError(t, l.Allow(context.Background(), 1, "A"))
	}
}
