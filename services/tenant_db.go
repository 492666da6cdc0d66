package services

import (
	"context"

	"admsserver/dal"
	"admsserver/database"
	"admsserver/encryption"
	"admsserver/models"
)

// TenantDatabases는 테넌트 ID로 암호화 키링이 연결된 DAL을 엽니다.
type TenantDatabases struct {
	resolver *database.TenantResolver
	keys     encryption.KeyRepository
}

// NewTenantDatabases는 TenantDatabases를 생성합니다.
func NewTenantDatabases(resolver *database.TenantResolver, keys encryption.KeyRepository) *TenantDatabases {
	return &TenantDatabases{resolver: resolver, keys: keys}
}

// Resolver는 테넌트 리졸버를 반환합니다.
func (t *TenantDatabases) Resolver() *database.TenantResolver {
	return t.resolver
}

// Central은 중앙 디렉터리 DAL을 반환합니다. 중앙 테이블은 암호화하지 않습니다.
func (t *TenantDatabases) Central() *dal.DB {
	return dal.New(t.resolver.Central(), nil)
}

// Open은 테넌트 DB를 현재 키 스냅샷과 함께 엽니다.
func (t *TenantDatabases) Open(ctx context.Context, tenantID int64) (*dal.DB, *models.Tenant, error) {
	tenant, err := t.resolver.ByID(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	db, err := t.OpenTenant(ctx, tenant)
	return db, tenant, err
}

// OpenTenant는 이미 조회한 테넌트의 DB를 엽니다.
func (t *TenantDatabases) OpenTenant(ctx context.Context, tenant *models.Tenant) (*dal.DB, error) {
	conn, err := t.resolver.Connection(ctx, tenant)
	if err != nil {
		return nil, err
	}
	kr, err := t.keys.Keyring(ctx, tenant.ID, conn)
	if err != nil {
		return nil, err
	}
	return dal.New(conn, kr), nil
}
