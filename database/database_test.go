package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admsserver/cache"
	"admsserver/models"
)

func openTemp(t *testing.T, name string) *Conn {
	t.Helper()
	conn, err := Open("sqlite", filepath.Join(t.TempDir(), name))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn := openTemp(t, "central.db")

	require.NoError(t, EnsureCentralSchema(ctx, conn))
	require.NoError(t, EnsureCentralSchema(ctx, conn))

	tenant := openTemp(t, "tenant.db")
	require.NoError(t, EnsureTenantSchema(ctx, tenant))
	require.NoError(t, EnsureTenantSchema(ctx, tenant))

	var n int
	require.NoError(t, tenant.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM encrypted_columns`).Scan(&n))
	assert.Equal(t, 6, n)
}

func TestIsDuplicateKeyOnSQLite(t *testing.T) {
	ctx := context.Background()
	conn := openTemp(t, "central.db")
	require.NoError(t, EnsureCentralSchema(ctx, conn))

	insert := `INSERT INTO tenants (business_code, name, db_dsn) VALUES ('acme', 'Acme', 'x')`
	_, err := conn.DB.ExecContext(ctx, insert)
	require.NoError(t, err)
	_, err = conn.DB.ExecContext(ctx, insert)
	require.Error(t, err)

	assert.True(t, IsDuplicateKey(err))
	assert.True(t, IsBenign(err))
	assert.False(t, IsDeadlock(err))
}

func TestErrorClassificationMySQL(t *testing.T) {
	assert.True(t, IsDuplicateKey(&mysql.MySQLError{Number: 1062}))
	assert.True(t, IsForeignKeyViolation(&mysql.MySQLError{Number: 1452}))
	assert.True(t, IsDeadlock(&mysql.MySQLError{Number: 1213}))
	assert.True(t, IsDeadlock(&mysql.MySQLError{Number: 1205}))
	assert.False(t, IsBenign(&mysql.MySQLError{Number: 1146}))
	assert.False(t, IsBenign(nil))
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()
	policy := RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}

	t.Run("deadlock retried until success", func(t *testing.T) {
		calls := 0
		err := WithRetry(ctx, policy, func() error {
			calls++
			if calls < 3 {
				return &mysql.MySQLError{Number: 1213}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("attempts bounded", func(t *testing.T) {
		calls := 0
		err := WithRetry(ctx, policy, func() error {
			calls++
			return &mysql.MySQLError{Number: 1213}
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("other errors not retried", func(t *testing.T) {
		calls := 0
		boom := errors.New("boom")
		err := WithRetry(ctx, policy, func() error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})
}

func TestMySQLDSNAddsEncryptionMode(t *testing.T) {
	dsn, err := mysqlDSN("user:pw@tcp(db:3306)/central")
	require.NoError(t, err)

	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "'aes-256-cbc'", cfg.Params["block_encryption_mode"])
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestMySQLDSNKeepsOperatorCharset(t *testing.T) {
	dsn, err := mysqlDSN("user:pw@tcp(db:3306)/central?charset=latin1&parseTime=true")
	require.NoError(t, err)

	assert.Contains(t, dsn, "charset=latin1")
	assert.NotContains(t, dsn, "utf8mb4")
	_, err = mysql.ParseDSN(dsn)
	assert.NoError(t, err)
}

func TestTenantResolver(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	central, err := Open("sqlite", filepath.Join(dir, "central.db"))
	require.NoError(t, err)
	defer central.Close()
	require.NoError(t, EnsureCentralSchema(ctx, central))

	resolver := NewTenantResolver(central, cache.NewMemoryStore(), time.Minute)
	defer resolver.Close()

	hookCalls := 0
	resolver.OnProvision(func(ctx context.Context, tenant *models.Tenant, conn *Conn) error {
		hookCalls++
		return nil
	})

	registered, err := resolver.Register(ctx, models.Tenant{
		BusinessCode: "acme",
		Name:         "Acme",
		DBDriver:     "sqlite",
		DBDSN:        filepath.Join(dir, "acme.db"),
	})
	require.NoError(t, err)

	tenant, err := resolver.ByBusinessCode(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, tenant.ID)

	byID, err := resolver.ByID(ctx, registered.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme", byID.BusinessCode)

	_, err = resolver.ByBusinessCode(ctx, "nobody")
	assert.ErrorIs(t, err, ErrTenantNotFound)

	first, err := resolver.Connection(ctx, tenant)
	require.NoError(t, err)
	second, err := resolver.Connection(ctx, tenant)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, hookCalls)

	active, err := resolver.Active(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "acme", active[0].BusinessCode)
}
