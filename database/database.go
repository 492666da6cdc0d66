package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"admsserver/logger"
	"admsserver/query"
)

// Conn is an open database together with the SQL dialect it speaks.
type Conn struct {
	DB      *sql.DB
	Dialect query.Dialect
	Driver  string
}

// Central is the central directory connection opened by Initialize.
var Central *Conn

// Initialize 중앙 디렉터리 데이터베이스 초기화
// driver: "sqlite" 또는 "mysql"
// dsn: SQLite 파일 경로 또는 MySQL DSN
func Initialize(ctx context.Context, driver, dsn string) (*Conn, error) {
	conn, err := Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if err := EnsureCentralSchema(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	Central = conn
	logger.Info("Central database initialized (%s)", conn.Driver)
	return conn, nil
}

// Open 데이터베이스 연결을 열고 연결을 확인한다
func Open(driver, dsn string) (*Conn, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" {
		driver = "sqlite"
	}
	dialect, err := query.DialectFor(driver)
	if err != nil {
		return nil, err
	}

	switch driver {
	case "mysql":
		dsn, err = mysqlDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid mysql dsn: %w", err)
		}
	case "sqlite", "sqlite3":
		driver = "sqlite"
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite는 단일 writer이므로 연결 하나로 직렬화한다
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Conn{DB: db, Dialect: dialect, Driver: driver}, nil
}

// mysqlDSN AES_DECRYPT에 IV를 전달하려면 세션 암호화 모드가 CBC여야 한다
func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	if _, ok := cfg.Params["block_encryption_mode"]; !ok {
		cfg.Params["block_encryption_mode"] = "'aes-256-cbc'"
	}
	out := cfg.FormatDSN()
	// ParseDSN은 charset을 Params가 아닌 내부 필드로 옮기므로 원래 DSN에서 확인한다
	if !dsnHasParam(dsn, "charset") {
		sep := "?"
		if strings.Contains(out[strings.LastIndex(out, "/"):], "?") {
			sep = "&"
		}
		out += sep + "charset=utf8mb4"
	}
	return out, nil
}

func dsnHasParam(dsn, name string) bool {
	slash := strings.LastIndex(dsn, "/")
	if slash < 0 {
		return false
	}
	_, query, ok := strings.Cut(dsn[slash:], "?")
	if !ok {
		return false
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return false
	}
	_, found := values[name]
	return found
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "./adms_central.db"
	}
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

// Close 연결 종료
func (c *Conn) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// Close 중앙 디렉터리 연결 종료
func Close() error {
	return Central.Close()
}
