package dal

import (
	"context"
	"database/sql"
)

// Executor는 DAL이 *sql.DB와 *sql.Tx를 구분하지 않고 쓰도록 해주는 최소한의 인터페이스입니다.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Executor = (*sql.DB)(nil)
	_ Executor = (*sql.Tx)(nil)
)
