package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"

	"admsserver/logger"
)

const (
	mysqlDuplicateEntry   = 1062
	mysqlRowIsReferenced  = 1451
	mysqlNoReferencedRow  = 1452
	mysqlDeadlock         = 1213
	mysqlLockWaitTimeout  = 1205
	sqliteBusy            = 5
	sqliteLocked          = 6
	sqliteConstraintFK    = 787
	sqliteConstraintPK    = 1555
	sqliteConstraintUniq  = 2067
	defaultRetryAttempts  = 4
	defaultRetryBaseDelay = 50 * time.Millisecond
)

func mysqlCode(err error) (uint16, bool) {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number, true
	}
	return 0, false
}

func sqliteCode(err error) (int, bool) {
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code(), true
	}
	return 0, false
}

// IsDuplicateKey 유니크/기본키 충돌 여부
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := mysqlCode(err); ok {
		return code == mysqlDuplicateEntry
	}
	if code, ok := sqliteCode(err); ok && (code == sqliteConstraintUniq || code == sqliteConstraintPK) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry")
}

// IsForeignKeyViolation 외래키 제약 위반 여부
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := mysqlCode(err); ok {
		return code == mysqlRowIsReferenced || code == mysqlNoReferencedRow
	}
	if code, ok := sqliteCode(err); ok && code == sqliteConstraintFK {
		return true
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// IsDeadlock 재시도로 해결될 수 있는 잠금 충돌 여부
func IsDeadlock(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := mysqlCode(err); ok {
		return code == mysqlDeadlock || code == mysqlLockWaitTimeout
	}
	if code, ok := sqliteCode(err); ok {
		primary := code & 0xff
		return primary == sqliteBusy || primary == sqliteLocked
	}
	return false
}

// IsBenign 중복키/외래키 위반은 실패가 아닌 no-op으로 취급한다
func IsBenign(err error) bool {
	return IsDuplicateKey(err) || IsForeignKeyViolation(err)
}

// RetryPolicy 잠금 충돌 재시도 정책
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultRetryPolicy 기본 재시도 정책 (4회, 50ms부터 지수 증가)
var DefaultRetryPolicy = RetryPolicy{Attempts: defaultRetryAttempts, BaseDelay: defaultRetryBaseDelay}

// OnRetry 재시도 발생 시 호출된다 (메트릭 연결용)
var OnRetry = func(attempt int, err error) {}

// WithRetry fn을 실행하고 잠금 충돌이면 지수 백오프로 재시도한다
func WithRetry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := policy.BaseDelay

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !IsDeadlock(err) || attempt == attempts {
			return err
		}

		OnRetry(attempt, err)
		logger.WithFields(map[string]interface{}{
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err.Error(),
		}).Warn("Lock conflict, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
