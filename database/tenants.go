package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"admsserver/cache"
	"admsserver/logger"
	"admsserver/models"
	"admsserver/utils"
)

// ErrTenantNotFound는 테넌트가 없거나 비활성 상태일 때 반환됩니다.
var ErrTenantNotFound = errors.New("tenant not found")

// ProvisionHook은 테넌트 DB 연결이 처음 열리고 스키마가 준비된 뒤 호출됩니다.
type ProvisionHook func(ctx context.Context, tenant *models.Tenant, conn *Conn) error

// TenantResolver는 사업자 코드/ID로 테넌트를 찾고 테넌트별 DB 연결을 관리합니다.
type TenantResolver struct {
	central *Conn
	store   cache.Store
	ttl     time.Duration

	mu    sync.Mutex
	conns map[int64]*Conn
	hooks []ProvisionHook
}

// NewTenantResolver는 TenantResolver를 생성합니다.
func NewTenantResolver(central *Conn, store cache.Store, ttl time.Duration) *TenantResolver {
	return &TenantResolver{
		central: central,
		store:   store,
		ttl:     ttl,
		conns:   make(map[int64]*Conn),
	}
}

// Central은 중앙 디렉터리 연결을 반환합니다.
func (r *TenantResolver) Central() *Conn {
	return r.central
}

// OnProvision은 테넌트 연결 준비 시 실행할 훅을 등록합니다.
func (r *TenantResolver) OnProvision(hook ProvisionHook) {
	r.mu.Lock()
	r.hooks = append(r.hooks, hook)
	r.mu.Unlock()
}

const tenantColumns = `id, business_code, name, db_driver, db_dsn, is_active, created_at, updated_at`

// ByBusinessCode는 URL에 포함된 사업자 코드로 활성 테넌트를 찾습니다.
func (r *TenantResolver) ByBusinessCode(ctx context.Context, code string) (*models.Tenant, error) {
	t, err := cache.RememberJSON(ctx, r.store, "tenant:code:"+code, r.ttl, func(ctx context.Context) (models.Tenant, error) {
		return r.load(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE business_code = ? AND deleted_at IS NULL`, code)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ByID는 ID로 활성 테넌트를 찾습니다.
func (r *TenantResolver) ByID(ctx context.Context, id int64) (*models.Tenant, error) {
	key := "tenant:id:" + strconv.FormatInt(id, 10)
	t, err := cache.RememberJSON(ctx, r.store, key, r.ttl, func(ctx context.Context) (models.Tenant, error) {
		return r.load(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ? AND deleted_at IS NULL`, id)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TenantResolver) load(ctx context.Context, q string, arg any) (models.Tenant, error) {
	var (
		t      models.Tenant
		active int
	)
	err := r.central.DB.QueryRowContext(ctx, q, arg).Scan(
		&t.ID, &t.BusinessCode, &t.Name, &t.DBDriver, &t.DBDSN, &active, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return models.Tenant{}, ErrTenantNotFound
	}
	if err != nil {
		return models.Tenant{}, err
	}
	if active == 0 {
		return models.Tenant{}, ErrTenantNotFound
	}
	t.IsActive = true
	return t, nil
}

// Active는 모든 활성 테넌트 목록을 반환합니다.
func (r *TenantResolver) Active(ctx context.Context) ([]models.Tenant, error) {
	rows, err := r.central.DB.QueryContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE is_active = 1 AND deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tenants := make([]models.Tenant, 0)
	for rows.Next() {
		var (
			t      models.Tenant
			active int
		)
		if err := rows.Scan(&t.ID, &t.BusinessCode, &t.Name, &t.DBDriver, &t.DBDSN, &active, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.IsActive = active == 1
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// Register는 중앙 디렉터리에 테넌트를 등록합니다.
func (r *TenantResolver) Register(ctx context.Context, t models.Tenant) (models.Tenant, error) {
	now := utils.NowDB()
	res, err := r.central.DB.ExecContext(ctx, `
		INSERT INTO tenants (business_code, name, db_driver, db_dsn, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)`,
		t.BusinessCode, t.Name, t.DBDriver, t.DBDSN, now, now,
	)
	if err != nil {
		return models.Tenant{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Tenant{}, err
	}
	t.ID = id
	t.IsActive = true
	t.CreatedAt = now
	t.UpdatedAt = now
	_ = r.store.Forget(ctx, "tenant:code:"+t.BusinessCode)
	return t, nil
}

// Connection은 테넌트 DB 연결을 반환합니다. 최초 연결 시 스키마를 준비하고
// 등록된 프로비저닝 훅을 실행합니다.
func (r *TenantResolver) Connection(ctx context.Context, tenant *models.Tenant) (*Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.conns[tenant.ID]; ok {
		return conn, nil
	}

	conn, err := Open(tenant.DBDriver, tenant.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("tenant %d: %w", tenant.ID, err)
	}
	if err := EnsureTenantSchema(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tenant %d schema: %w", tenant.ID, err)
	}
	for _, hook := range r.hooks {
		if err := hook(ctx, tenant, conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("tenant %d provision: %w", tenant.ID, err)
		}
	}

	r.conns[tenant.ID] = conn
	logger.WithFields(map[string]interface{}{
		"tenant_id": tenant.ID,
		"driver":    conn.Driver,
	}).Info("Tenant database ready")
	return conn, nil
}

// Close는 열린 모든 테넌트 연결을 닫습니다.
func (r *TenantResolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, conn := range r.conns {
		conn.Close()
		delete(r.conns, id)
	}
}
