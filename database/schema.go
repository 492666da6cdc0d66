package database

import (
	"context"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"

	"admsserver/logger"
	"admsserver/query"
	"admsserver/utils"
)

// softDeletable tables carry a deleted_at column and are never hard-deleted.
var softDeletable = map[string]bool{
	"tenants":             true,
	"devices":             true,
	"device_commands":     true,
	"device_users":        true,
	"biometric_templates": true,
	"encryption_keys":     true,
}

// SoftDeletable reports whether table uses soft deletes.
func SoftDeletable(table string) bool {
	return softDeletable[table]
}

// DefaultEncryptedColumns is the encrypted column registry seeded into every
// tenant database.
var DefaultEncryptedColumns = map[string][]string{
	"device_commands":     {"params", "response"},
	"device_users":        {"name", "password", "card"},
	"biometric_templates": {"template"},
}

var centralTables = []string{
	// 테넌트 테이블
	`CREATE TABLE IF NOT EXISTS tenants (
		id {{AUTO_ID}},
		business_code VARCHAR(64) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL DEFAULT '',
		db_driver VARCHAR(20) NOT NULL DEFAULT 'mysql',
		db_dsn TEXT NOT NULL,
		is_active INT NOT NULL DEFAULT 1,
		created_at VARCHAR(50) NOT NULL DEFAULT '',
		updated_at VARCHAR(50) NOT NULL DEFAULT '',
		deleted_at VARCHAR(50) NULL
	){{TABLE_OPTS}}`,

	// 단말기 테이블
	`CREATE TABLE IF NOT EXISTS devices (
		id {{AUTO_ID}},
		tenant_id BIGINT NOT NULL,
		device_id VARCHAR(64) NOT NULL,
		serial_number VARCHAR(50) NOT NULL,
		name VARCHAR(255) NOT NULL DEFAULT '',
		is_approved INT NOT NULL DEFAULT 0,
		is_active INT NOT NULL DEFAULT 1,
		settings TEXT,
		last_sync_at VARCHAR(50) NULL,
		mac_address VARCHAR(64) NULL,
		ip_address VARCHAR(64) NULL,
		device_info TEXT,
		created_at VARCHAR(50) NOT NULL DEFAULT '',
		updated_at VARCHAR(50) NOT NULL DEFAULT '',
		deleted_at VARCHAR(50) NULL
	){{TABLE_OPTS}}`,

	// 명령 테이블 (중앙 사본)
	`CREATE TABLE IF NOT EXISTS device_commands (
		id VARCHAR(36) PRIMARY KEY,
		tenant_id BIGINT NOT NULL,
		device_id VARCHAR(64) NOT NULL DEFAULT '',
		serial_number VARCHAR(50) NOT NULL,
		name VARCHAR(64) NOT NULL,
		command VARCHAR(255) NOT NULL,
		params TEXT,
		status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
		response TEXT,
		return_code INT NULL,
		created_at VARCHAR(50) NOT NULL DEFAULT '',
		updated_at VARCHAR(50) NOT NULL DEFAULT '',
		sent_at VARCHAR(50) NULL,
		executed_at VARCHAR(50) NULL,
		expires_at VARCHAR(50) NULL,
		deleted_at VARCHAR(50) NULL
	){{TABLE_OPTS}}`,

	// 단말기 활동 로그 테이블
	`CREATE TABLE IF NOT EXISTS device_activity_logs (
		id {{AUTO_ID}},
		tenant_id BIGINT NOT NULL,
		serial_number VARCHAR(50) NOT NULL,
		action VARCHAR(100) NOT NULL,
		details TEXT,
		created_at VARCHAR(50) NOT NULL DEFAULT ''
	){{TABLE_OPTS}}`,

	// 관리자 활동 로그 테이블
	`CREATE TABLE IF NOT EXISTS admin_activity_logs (
		id {{AUTO_ID}},
		admin_id VARCHAR(64) NOT NULL,
		username VARCHAR(100) NOT NULL DEFAULT '',
		tenant_id BIGINT NULL,
		action VARCHAR(100) NOT NULL,
		details TEXT,
		created_at VARCHAR(50) NOT NULL DEFAULT ''
	){{TABLE_OPTS}}`,
}

var centralIndexes = []string{
	`CREATE INDEX idx_devices_tenant_sn ON devices (tenant_id, serial_number)`,
	`CREATE INDEX idx_devices_tenant_device ON devices (tenant_id, device_id)`,
	`CREATE INDEX idx_commands_device_status ON device_commands (tenant_id, serial_number, status)`,
	`CREATE INDEX idx_commands_expires ON device_commands (status, expires_at)`,
	`CREATE INDEX idx_activity_device ON device_activity_logs (tenant_id, serial_number)`,
	`CREATE INDEX idx_admin_activity_admin ON admin_activity_logs (admin_id)`,
}

var tenantTables = []string{
	// 명령 테이블 (테넌트 사본, params/response 암호화)
	`CREATE TABLE IF NOT EXISTS device_commands (
		id {{AUTO_ID}},
		command_id VARCHAR(36) NOT NULL UNIQUE,
		device_id VARCHAR(64) NOT NULL DEFAULT '',
		serial_number VARCHAR(50) NOT NULL,
		name VARCHAR(64) NOT NULL,
		command VARCHAR(255) NOT NULL,
		params {{BLOB}},
		params_hash VARCHAR(64) NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
		response {{BLOB}},
		response_hash VARCHAR(64) NULL,
		return_code INT NULL,
		version VARCHAR(64) NULL,
		created_at VARCHAR(50) NOT NULL DEFAULT '',
		updated_at VARCHAR(50) NOT NULL DEFAULT '',
		sent_at VARCHAR(50) NULL,
		executed_at VARCHAR(50) NULL,
		expires_at VARCHAR(50) NULL,
		deleted_at VARCHAR(50) NULL
	){{TABLE_OPTS}}`,

	// 출퇴근 기록 테이블
	`CREATE TABLE IF NOT EXISTS attendance_logs (
		id {{AUTO_ID}},
		device_sn VARCHAR(50) NOT NULL,
		employee_code VARCHAR(64) NOT NULL,
		punch_time VARCHAR(50) NOT NULL,
		status VARCHAR(10) NOT NULL DEFAULT '',
		verify_type VARCHAR(10) NOT NULL DEFAULT '',
		work_code VARCHAR(20) NOT NULL DEFAULT '',
		created_at VARCHAR(50) NOT NULL DEFAULT '',
		UNIQUE (device_sn, employee_code, punch_time)
	){{TABLE_OPTS}}`,

	// 단말기 사용자 테이블
	`CREATE TABLE IF NOT EXISTS device_users (
		id {{AUTO_ID}},
		device_sn VARCHAR(50) NOT NULL,
		pin VARCHAR(64) NOT NULL,
		name {{BLOB}},
		name_hash VARCHAR(64) NULL,
		privilege VARCHAR(10) NOT NULL DEFAULT '',
		password {{BLOB}},
		password_hash VARCHAR(64) NULL,
		card {{BLOB}},
		card_hash VARCHAR(64) NULL,
		group_no VARCHAR(10) NOT NULL DEFAULT '',
		timezones VARCHAR(64) NOT NULL DEFAULT '',
		verify_mode VARCHAR(10) NOT NULL DEFAULT '',
		version VARCHAR(64) NULL,
		created_at VARCHAR(50) NOT NULL DEFAULT '',
		updated_at VARCHAR(50) NOT NULL DEFAULT '',
		deleted_at VARCHAR(50) NULL,
		UNIQUE (device_sn, pin)
	){{TABLE_OPTS}}`,

	// 생체 템플릿 테이블
	`CREATE TABLE IF NOT EXISTS biometric_templates (
		id {{AUTO_ID}},
		device_sn VARCHAR(50) NOT NULL,
		pin VARCHAR(64) NOT NULL,
		finger_index VARCHAR(10) NOT NULL DEFAULT '0',
		template_type VARCHAR(10) NOT NULL DEFAULT 'fp',
		size VARCHAR(10) NOT NULL DEFAULT '',
		valid VARCHAR(10) NOT NULL DEFAULT '',
		template {{LONGBLOB}},
		template_hash VARCHAR(64) NULL,
		version VARCHAR(64) NULL,
		created_at VARCHAR(50) NOT NULL DEFAULT '',
		updated_at VARCHAR(50) NOT NULL DEFAULT '',
		deleted_at VARCHAR(50) NULL,
		UNIQUE (device_sn, pin, template_type, finger_index)
	){{TABLE_OPTS}}`,

	// 암호화 키 테이블
	`CREATE TABLE IF NOT EXISTS encryption_keys (
		id {{AUTO_ID}},
		version VARCHAR(64) NOT NULL UNIQUE,
		key_material {{BLOB}} NOT NULL,
		is_active INT NOT NULL DEFAULT 0,
		created_at VARCHAR(50) NOT NULL DEFAULT '',
		updated_at VARCHAR(50) NOT NULL DEFAULT '',
		deleted_at VARCHAR(50) NULL
	){{TABLE_OPTS}}`,

	// 암호화 컬럼 레지스트리
	`CREATE TABLE IF NOT EXISTS encrypted_columns (
		id {{AUTO_ID}},
		table_name VARCHAR(64) NOT NULL,
		column_name VARCHAR(64) NOT NULL,
		created_at VARCHAR(50) NOT NULL DEFAULT '',
		UNIQUE (table_name, column_name)
	){{TABLE_OPTS}}`,
}

var tenantIndexes = []string{
	`CREATE INDEX idx_tcommands_device_status ON device_commands (serial_number, status)`,
	`CREATE INDEX idx_tcommands_version ON device_commands (version)`,
	`CREATE INDEX idx_users_name_hash ON device_users (name_hash)`,
	`CREATE INDEX idx_users_card_hash ON device_users (card_hash)`,
	`CREATE INDEX idx_users_version ON device_users (version)`,
	`CREATE INDEX idx_templates_version ON biometric_templates (version)`,
}

func render(dialect query.Dialect, ddl string) string {
	var r *strings.Replacer
	if dialect.Name() == "mysql" {
		r = strings.NewReplacer(
			"{{AUTO_ID}}", "BIGINT AUTO_INCREMENT PRIMARY KEY",
			"{{BLOB}}", "BLOB",
			"{{LONGBLOB}}", "LONGBLOB",
			"{{TABLE_OPTS}}", " CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci",
		)
	} else {
		r = strings.NewReplacer(
			"{{AUTO_ID}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
			"{{BLOB}}", "BLOB",
			"{{LONGBLOB}}", "BLOB",
			"{{TABLE_OPTS}}", "",
		)
	}
	return r.Replace(ddl)
}

// EnsureCentralSchema 중앙 디렉터리 테이블 생성
func EnsureCentralSchema(ctx context.Context, conn *Conn) error {
	return ensure(ctx, conn, centralTables, centralIndexes)
}

// EnsureTenantSchema 테넌트 테이블 생성 및 암호화 컬럼 레지스트리 시드
func EnsureTenantSchema(ctx context.Context, conn *Conn) error {
	if err := ensure(ctx, conn, tenantTables, tenantIndexes); err != nil {
		return err
	}
	return seedEncryptedColumns(ctx, conn)
}

func ensure(ctx context.Context, conn *Conn, tables, indexes []string) error {
	for _, ddl := range tables {
		if _, err := conn.DB.ExecContext(ctx, render(conn.Dialect, ddl)); err != nil {
			return err
		}
	}
	for _, ddl := range indexes {
		stmt := ddl
		if conn.Dialect.Name() == "sqlite" {
			stmt = strings.Replace(stmt, "CREATE INDEX", "CREATE INDEX IF NOT EXISTS", 1)
		}
		if _, err := conn.DB.ExecContext(ctx, stmt); err != nil && !isDuplicateIndex(err) {
			return err
		}
	}
	return nil
}

// isDuplicateIndex MySQL에는 CREATE INDEX IF NOT EXISTS가 없어 1061을 무시한다
func isDuplicateIndex(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1061
	}
	return strings.Contains(err.Error(), "already exists")
}

func seedEncryptedColumns(ctx context.Context, conn *Conn) error {
	now := utils.NowDB()
	var rows []query.Row
	for table, cols := range DefaultEncryptedColumns {
		for _, col := range cols {
			rows = append(rows, query.Row{"table_name": table, "column_name": col, "created_at": now})
		}
	}
	compiled, err := query.Compile(conn.Dialect, query.Insert("encrypted_columns", rows...).IgnoreDupes())
	if err != nil {
		return err
	}
	if _, err := conn.DB.ExecContext(ctx, compiled.SQL, compiled.Args...); err != nil {
		return err
	}
	logger.Debug("Encrypted column registry seeded (%d columns)", len(rows))
	return nil
}
