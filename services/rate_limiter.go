package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"admsserver/cache"
	"admsserver/logger"
	"admsserver/metrics"
)

// ErrRateLimited는 고정 윈도 한도를 넘었을 때 반환됩니다.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimits는 윈도당 최대 요청 수입니다.
type RateLimits struct {
	Tenant int
	Device int
	Window time.Duration
}

// RateLimiter는 공유 캐시 카운터 기반의 고정 윈도 제한기입니다.
// 읽기와 증가가 원자적이지 않아 한도를 약간 넘을 수 있습니다.
type RateLimiter struct {
	store  cache.Store
	limits RateLimits
}

// NewRateLimiter는 RateLimiter를 생성합니다.
func NewRateLimiter(store cache.Store, limits RateLimits) *RateLimiter {
	return &RateLimiter{store: store, limits: limits}
}

// CheckAndIncrement는 카운터가 max 이상이면 false를 반환하고, 아니면 증가시킵니다.
// TTL은 첫 증가 시에만 설정됩니다.
func (l *RateLimiter) CheckAndIncrement(ctx context.Context, key string, max int, ttl time.Duration) (bool, error) {
	n, err := cache.Counter(ctx, l.store, key)
	if err != nil {
		return false, err
	}
	if n >= int64(max) {
		return false, nil
	}
	if _, err := l.store.Increment(ctx, key, ttl); err != nil {
		return false, err
	}
	return true, nil
}

// Allow는 테넌트 한도와 테넌트+단말기 한도를 차례로 검사합니다.
// 캐시 오류 시에는 요청을 허용합니다.
func (l *RateLimiter) Allow(ctx context.Context, tenantID int64, serialNumber string) error {
	tenant := strconv.FormatInt(tenantID, 10)
	checks := []struct {
		scope string
		key   string
		max   int
	}{
		{"tenant", "adms:rl:tenant:" + tenant, l.limits.Tenant},
		{"device", "adms:rl:device:" + tenant + ":" + serialNumber, l.limits.Device},
	}

	for _, c := range checks {
		if c.max <= 0 {
			continue
		}
		ok, err := l.CheckAndIncrement(ctx, c.key, c.max, l.limits.Window)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"scope": c.scope,
				"key":   c.key,
				"error": err.Error(),
			}).Warn("Rate limiter unavailable, allowing request")
			return nil
		}
		if !ok {
			metrics.RateLimitedTotal.WithLabelValues(c.scope).Inc()
			return ErrRateLimited
		}
	}
	return nil
}
