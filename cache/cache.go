// Package cache provides the shared keyed TTL cache used for device
// snapshots, key snapshots, pending command lists, rate-limit counters and
// ingestion dedup locks.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"
)

// Store is a keyed TTL cache. A zero ttl means no expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
	// Increment adds one to the counter at key and returns the new value.
	// The ttl is applied only when the counter is created.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Decrement subtracts one from the counter at key, keeping its expiry.
	Decrement(ctx context.Context, key string) (int64, error)
	// Lock sets key if absent and reports whether this caller acquired it.
	Lock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

var group singleflight.Group

// Counter reads an integer counter, treating a miss as zero.
func Counter(ctx context.Context, s Store, key string) (int64, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Remember returns the cached value at key, or computes, stores and returns
// it. Concurrent misses for the same key share one computation.
func Remember(ctx context.Context, s Store, key string, ttl time.Duration, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if raw, ok, err := s.Get(ctx, key); err == nil && ok {
		return raw, nil
	}

	v, err, _ := group.Do(key, func() (interface{}, error) {
		if raw, ok, err := s.Get(ctx, key); err == nil && ok {
			return raw, nil
		}
		raw, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.Put(ctx, key, raw, ttl); err != nil {
			return raw, nil
		}
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// RememberJSON is Remember for JSON-encoded values.
func RememberJSON[T any](ctx context.Context, s Store, key string, ttl time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	raw, err := Remember(ctx, s, key, ttl, func(ctx context.Context) ([]byte, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		_ = s.Forget(ctx, key)
		return out, err
	}
	return out, nil
}

// GetJSON decodes the value at key. ok is false on a miss.
func GetJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

// PutJSON encodes v and stores it at key.
func PutJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Put(ctx, key, raw, ttl)
}

var ErrNotCounter = errors.New("cache: value is not a counter")
