package encryption

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"admsserver/cache"
	"admsserver/dal"
	"admsserver/database"
	"admsserver/logger"
	"admsserver/metrics"
	"admsserver/models"
	"admsserver/query"
	"admsserver/queue"
	"admsserver/utils"
)

const (
	// JobReencrypt re-encrypts one id range of one table.
	JobReencrypt = "encryption.reencrypt"
	// QueueEncryption is the queue rotation batches run on.
	QueueEncryption = "encryption"

	rotationProgressTTL = 7 * 24 * time.Hour
)

// ErrRotationSuperseded is returned by a batch whose target key is no
// longer active.
var ErrRotationSuperseded = errors.New("key rotation superseded by a newer active key")

// RotationConfig sizes re-encryption batches.
type RotationConfig struct {
	BatchSize  int
	SmallTable int
}

// ReencryptJob is the payload of one rotation batch.
type ReencryptJob struct {
	TenantID int64  `json:"tenant_id"`
	Table    string `json:"table"`
	Version  string `json:"version"`
	FromID   int64  `json:"from_id"`
	ToID     int64  `json:"to_id"`
}

// RotationManager generates, activates and deletes tenant keys and moves
// existing rows onto a new key in background batches.
type RotationManager struct {
	tenants  *database.TenantResolver
	registry KeyRepository
	jobs     queue.Enqueuer
	store    cache.Store
	cfg      RotationConfig
}

// NewRotationManager creates a RotationManager.
func NewRotationManager(tenants *database.TenantResolver, registry KeyRepository, jobs queue.Enqueuer, store cache.Store, cfg RotationConfig) *RotationManager {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5000
	}
	if cfg.SmallTable <= 0 {
		cfg.SmallTable = 1000
	}
	return &RotationManager{tenants: tenants, registry: registry, jobs: jobs, store: store, cfg: cfg}
}

func (m *RotationManager) conn(ctx context.Context, tenant *models.Tenant) (*database.Conn, error) {
	return m.tenants.Connection(ctx, tenant)
}

// ListKeys returns key metadata of a tenant, oldest first.
func (m *RotationManager) ListKeys(ctx context.Context, tenant *models.Tenant) ([]models.EncryptionKey, error) {
	conn, err := m.conn(ctx, tenant)
	if err != nil {
		return nil, err
	}
	recs, err := dal.New(conn, nil).Fetch(ctx,
		query.Select("encryption_keys", "id", "version", "is_active", "created_at").OrderBy("id", false))
	if err != nil {
		return nil, err
	}
	keys := make([]models.EncryptionKey, 0, len(recs))
	for _, rec := range recs {
		keys = append(keys, models.EncryptionKey{
			ID:        rec.Int64("id"),
			Version:   rec.String("version"),
			IsActive:  rec.Bool("is_active"),
			CreatedAt: rec.String("created_at"),
		})
	}
	return keys, nil
}

// GenerateKey creates a new inactive key.
func (m *RotationManager) GenerateKey(ctx context.Context, tenant *models.Tenant) (models.EncryptionKey, error) {
	conn, err := m.conn(ctx, tenant)
	if err != nil {
		return models.EncryptionKey{}, err
	}
	return m.generate(ctx, tenant.ID, conn)
}

// generate names the key v{n}_{hash}: n counts every key ever created and
// the hash suffix keeps concurrent generations distinct.
func (m *RotationManager) generate(ctx context.Context, tenantID int64, conn *database.Conn) (models.EncryptionKey, error) {
	key, err := GenerateKey()
	if err != nil {
		return models.EncryptionKey{}, err
	}
	db := dal.New(conn, nil)
	n, err := db.Count(ctx, query.Count("encryption_keys").WithDeleted())
	if err != nil {
		return models.EncryptionKey{}, err
	}
	sum := sha256.Sum256(key)
	version := fmt.Sprintf("v%d_%s", n+1, hex.EncodeToString(sum[:])[:8])

	now := utils.NowDB()
	id, err := db.Insert(ctx, "encryption_keys", query.Row{
		"version":      version,
		"key_material": key,
		"is_active":    0,
		"created_at":   now,
		"updated_at":   now,
	})
	if err != nil {
		return models.EncryptionKey{}, err
	}
	if err := m.registry.Invalidate(ctx, tenantID); err != nil {
		logger.Warn("Key snapshot invalidation failed: %v", err)
	}

	logger.WithFields(map[string]interface{}{
		"tenant_id": tenantID,
		"version":   version,
	}).Info("Encryption key generated")
	return models.EncryptionKey{ID: id, Version: version, CreatedAt: now}, nil
}

// ActivateKey makes version the only active key of the tenant.
func (m *RotationManager) ActivateKey(ctx context.Context, tenant *models.Tenant, version string) error {
	conn, err := m.conn(ctx, tenant)
	if err != nil {
		return err
	}
	return m.activate(ctx, tenant.ID, conn, version)
}

func (m *RotationManager) activate(ctx context.Context, tenantID int64, conn *database.Conn, version string) error {
	err := dal.New(conn, nil).WithTx(ctx, func(tx *dal.DB) error {
		if _, err := tx.First(ctx, query.Select("encryption_keys", "id").Where(query.Eq("version", version))); err != nil {
			if errors.Is(err, dal.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrKeyNotFound, version)
			}
			return err
		}
		now := utils.NowDB()
		if _, err := tx.Update(ctx, query.Update("encryption_keys", query.Row{"is_active": 0, "updated_at": now}).
			Where(query.Eq("is_active", 1))); err != nil {
			return err
		}
		_, err := tx.Update(ctx, query.Update("encryption_keys", query.Row{"is_active": 1, "updated_at": now}).
			Where(query.Eq("version", version)))
		return err
	})
	if err != nil {
		return err
	}
	if err := m.registry.Invalidate(ctx, tenantID); err != nil {
		logger.Warn("Key snapshot invalidation failed: %v", err)
	}
	logger.WithFields(map[string]interface{}{
		"tenant_id": tenantID,
		"version":   version,
	}).Info("Encryption key activated")
	return nil
}

// DeleteKey soft-deletes an inactive key that no row references.
func (m *RotationManager) DeleteKey(ctx context.Context, tenant *models.Tenant, version string) error {
	conn, err := m.conn(ctx, tenant)
	if err != nil {
		return err
	}
	db := dal.New(conn, nil)

	rec, err := db.First(ctx, query.Select("encryption_keys", "is_active").Where(query.Eq("version", version)))
	if errors.Is(err, dal.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, version)
	}
	if err != nil {
		return err
	}
	if rec.Bool("is_active") {
		return ErrKeyInUse
	}

	kr, err := m.registry.Keyring(ctx, tenant.ID, conn)
	if err != nil {
		return err
	}
	for _, table := range kr.Tables() {
		n, err := db.Count(ctx, query.Count(table).Where(query.Eq(query.VersionColumn, version)).WithDeleted())
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %d rows in %s", ErrKeyInUse, n, table)
		}
	}

	if _, err := db.Delete(ctx, query.Delete("encryption_keys").Where(query.Eq("version", version))); err != nil {
		return err
	}
	if err := m.registry.Invalidate(ctx, tenant.ID); err != nil {
		logger.Warn("Key snapshot invalidation failed: %v", err)
	}
	logger.WithFields(map[string]interface{}{
		"tenant_id": tenant.ID,
		"version":   version,
	}).Info("Encryption key deleted")
	return nil
}

// EnsureActiveKey generates and activates a key when the tenant has none.
// It runs when a tenant database is first opened.
func (m *RotationManager) EnsureActiveKey(ctx context.Context, tenant *models.Tenant, conn *database.Conn) error {
	n, err := dal.New(conn, nil).Count(ctx, query.Count("encryption_keys").Where(query.Eq("is_active", 1)))
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	key, err := m.generate(ctx, tenant.ID, conn)
	if err != nil {
		return err
	}
	return m.activate(ctx, tenant.ID, conn, key.Version)
}

type tablePlan struct {
	table  string
	count  int64
	lo, hi int64
}

// RotateKeys activates version (a new key when empty) and schedules
// re-encryption of every row still on another version.
func (m *RotationManager) RotateKeys(ctx context.Context, tenant *models.Tenant, version string) (models.RotationPlan, error) {
	conn, err := m.conn(ctx, tenant)
	if err != nil {
		return models.RotationPlan{}, err
	}
	if version == "" {
		key, err := m.generate(ctx, tenant.ID, conn)
		if err != nil {
			return models.RotationPlan{}, err
		}
		version = key.Version
	}
	if err := m.activate(ctx, tenant.ID, conn, version); err != nil {
		return models.RotationPlan{}, err
	}

	kr, err := m.registry.Keyring(ctx, tenant.ID, conn)
	if err != nil {
		return models.RotationPlan{}, err
	}
	plans, err := m.planTables(ctx, dal.New(conn, nil), kr.Tables(), version)
	if err != nil {
		return models.RotationPlan{}, err
	}

	plan := models.RotationPlan{TenantID: tenant.ID, Version: version, Tables: map[string]int64{}}
	var jobs []ReencryptJob
	for _, p := range plans {
		plan.Tables[p.table] = p.count
		jobs = append(jobs, m.batches(tenant.ID, version, p)...)
	}
	plan.Batches = len(jobs)

	if len(jobs) == 0 {
		logger.WithFields(map[string]interface{}{
			"tenant_id": tenant.ID,
			"version":   version,
		}).Info("Key rotation complete: no rows to re-encrypt")
		return plan, nil
	}

	if err := m.store.Put(ctx, progressKey(tenant.ID, version), []byte(strconv.Itoa(len(jobs))), rotationProgressTTL); err != nil {
		return plan, err
	}
	for _, job := range jobs {
		if err := m.jobs.Enqueue(ctx, JobReencrypt, job, QueueEncryption); err != nil {
			return plan, fmt.Errorf("enqueue re-encryption batch: %w", err)
		}
	}

	logger.WithFields(map[string]interface{}{
		"tenant_id": tenant.ID,
		"version":   version,
		"batches":   plan.Batches,
	}).Info("Key rotation scheduled")
	return plan, nil
}

func (m *RotationManager) planTables(ctx context.Context, db *dal.DB, tables []string, version string) ([]tablePlan, error) {
	plans := make([]tablePlan, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	for i, table := range tables {
		i, table := i, table
		g.Go(func() error {
			rec, err := db.First(gctx, query.Select(table).
				Item(query.Raw{SQL: "COUNT(*) AS n"}).
				Item(query.Raw{SQL: "MIN(id) AS lo"}).
				Item(query.Raw{SQL: "MAX(id) AS hi"}).
				Where(query.Ne(query.VersionColumn, version)).
				WithDeleted())
			if err != nil {
				return fmt.Errorf("plan %s: %w", table, err)
			}
			plans[i] = tablePlan{table: table, count: rec.Int64("n"), lo: rec.Int64("lo"), hi: rec.Int64("hi")}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return plans, nil
}

// batches splits a table into id windows. Small tables get one batch.
func (m *RotationManager) batches(tenantID int64, version string, p tablePlan) []ReencryptJob {
	if p.count == 0 {
		return nil
	}
	if p.count <= int64(m.cfg.SmallTable) {
		return []ReencryptJob{{TenantID: tenantID, Table: p.table, Version: version, FromID: p.lo, ToID: p.hi}}
	}
	size := int64(m.cfg.BatchSize)
	var out []ReencryptJob
	for from := p.lo; from <= p.hi; from += size {
		to := from + size - 1
		if to > p.hi {
			to = p.hi
		}
		out = append(out, ReencryptJob{TenantID: tenantID, Table: p.table, Version: version, FromID: from, ToID: to})
	}
	return out
}

func progressKey(tenantID int64, version string) string {
	return fmt.Sprintf("adms:rotation:%d:%s", tenantID, version)
}

// Remaining returns how many batches of a rotation have not finished.
func (m *RotationManager) Remaining(ctx context.Context, tenantID int64, version string) (int64, error) {
	return cache.Counter(ctx, m.store, progressKey(tenantID, version))
}

// HandleReencrypt is the job handler of JobReencrypt.
func (m *RotationManager) HandleReencrypt(ctx context.Context, payload []byte) error {
	var job ReencryptJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return err
	}
	tenant, err := m.tenants.ByID(ctx, job.TenantID)
	if err != nil {
		return err
	}
	conn, err := m.conn(ctx, tenant)
	if err != nil {
		return err
	}
	kr, err := m.keyringFor(ctx, tenant.ID, conn, job.Version)
	if err != nil {
		return err
	}

	filters := []query.Predicate{query.Gte("id", job.FromID), query.Lte("id", job.ToID)}
	var moved int
	err = dal.New(conn, kr).WithTx(ctx, func(tx *dal.DB) error {
		var err error
		moved, err = tx.Reencrypt(ctx, job.Table, filters, true)
		return err
	})
	if err != nil {
		return err
	}
	metrics.ReencryptedRowsTotal.Add(float64(moved))

	fields := map[string]interface{}{
		"tenant_id": job.TenantID,
		"table":     job.Table,
		"version":   job.Version,
		"from_id":   job.FromID,
		"to_id":     job.ToID,
		"rows":      moved,
	}
	logger.WithFields(fields).Info("Re-encryption batch finished")

	left, err := m.store.Decrement(ctx, progressKey(job.TenantID, job.Version))
	if err != nil {
		logger.WithFields(fields).Warn("Rotation progress update failed: %v", err)
		return nil
	}
	if left <= 0 {
		if err := m.registry.Invalidate(ctx, job.TenantID); err != nil {
			logger.Warn("Key snapshot invalidation failed: %v", err)
		}
		logger.WithFields(fields).Info("Key rotation complete")
	}
	return nil
}

// keyringFor returns a keyring whose active key is version, reloading a
// stale snapshot once.
func (m *RotationManager) keyringFor(ctx context.Context, tenantID int64, conn *database.Conn, version string) (*TenantKeyring, error) {
	kr, err := m.registry.Keyring(ctx, tenantID, conn)
	if err != nil {
		return nil, err
	}
	if kr.ActiveVersion() == version {
		return kr, nil
	}
	if err := m.registry.Invalidate(ctx, tenantID); err != nil {
		return nil, err
	}
	kr, err = m.registry.Keyring(ctx, tenantID, conn)
	if err != nil {
		return nil, err
	}
	if kr.ActiveVersion() != version {
		return nil, fmt.Errorf("%w: want %s, active %s", ErrRotationSuperseded, version, kr.ActiveVersion())
	}
	return kr, nil
}
