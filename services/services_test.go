package services

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"admsserver/cache"
	"admsserver/database"
	"admsserver/encryption"
	"admsserver/models"
	"admsserver/queue"
)

type recordedJob struct {
	Type    string
	Queue   string
	Payload []byte
}

// recordingQueue는 작업을 실행하지 않고 기록만 합니다.
type recordingQueue struct {
	mu   sync.Mutex
	jobs []recordedJob
}

func (q *recordingQueue) Enqueue(_ context.Context, jobType string, payload any, queueName string) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, recordedJob{Type: jobType, Queue: queueName, Payload: raw})
	return nil
}

func (q *recordingQueue) count(jobType string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, j := range q.jobs {
		if j.Type == jobType {
			n++
		}
	}
	return n
}

type env struct {
	ctx      context.Context
	store    *cache.MemoryStore
	resolver *database.TenantResolver
	keys     *encryption.KeyRegistry
	jobs     *queue.Dispatcher
	dbs      *TenantDatabases
	devices  *DeviceRegistry
	activity *ActivityLogger
	central  *CentralCommandStore
	tenant   *TenantCommandStore
	manager  *CommandManager
	ingestor *Ingestor
	acme     *models.Tenant
	device   *models.Device
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	centralConn, err := database.Open("sqlite", filepath.Join(dir, "central.db"))
	require.NoError(t, err)
	require.NoError(t, database.EnsureCentralSchema(ctx, centralConn))

	store := cache.NewMemoryStore()
	resolver := database.NewTenantResolver(centralConn, store, time.Minute)
	keys := encryption.NewKeyRegistry(store, encryption.NewCodec(false), time.Hour)
	jobs := queue.NewDispatcher(queue.Options{MaxWorkers: 2, MaxAttempts: 3, RetryBackoff: 10 * time.Millisecond})
	rotation := encryption.NewRotationManager(resolver, keys, jobs, store, encryption.RotationConfig{BatchSize: 100, SmallTable: 100})
	resolver.OnProvision(rotation.EnsureActiveKey)

	dbs := NewTenantDatabases(resolver, keys)
	devices := NewDeviceRegistry(dbs.Central(), store, time.Hour, 0)
	activity := NewActivityLogger(dbs.Central())
	central := NewCentralCommandStore(dbs.Central())
	tenantStore := NewTenantCommandStore(dbs)
	catalog, err := LoadCatalog("")
	require.NoError(t, err)

	manager := NewCommandManager(catalog, devices, central, tenantStore, resolver, store, jobs, activity, CommandOptions{
		TTL:                  5 * time.Minute,
		PendingTTL:           30 * time.Second,
		MaxPerRequest:        2,
		DeviceInfoMinPayload: 64,
	})
	ingestor := NewIngestor(dbs, devices, store, jobs, activity, 5*time.Minute)
	jobs.Register(JobCommandStatus, manager.HandleStatusJob)
	jobs.Register(JobIngest, ingestor.HandleIngest)

	acme, err := resolver.Register(ctx, models.Tenant{
		BusinessCode: "acme",
		Name:         "Acme",
		DBDriver:     "sqlite",
		DBDSN:        filepath.Join(dir, "acme.db"),
	})
	require.NoError(t, err)

	device, err := devices.Register(ctx, models.Device{
		TenantID:     acme.ID,
		DeviceID:     "dev-1",
		SerialNumber: "SN001",
		Name:         "Front door",
		IsApproved:   true,
		IsActive:     true,
		Settings:     models.DeviceSettings{"Delay": "10"},
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		jobs.Stop()
		resolver.Close()
		centralConn.Close()
	})

	return &env{
		ctx:      ctx,
		store:    store,
		resolver: resolver,
		keys:     keys,
		jobs:     jobs,
		dbs:      dbs,
		devices:  devices,
		activity: activity,
		central:  central,
		tenant:   tenantStore,
		manager:  manager,
		ingestor: ingestor,
		acme:     &acme,
		device:   &device,
	}
}

func (e *env) start(t *testing.T) {
	t.Helper()
	require.NoError(t, e.jobs.Start())
}

func (e *env) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(e.ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, e.jobs.Drain(ctx))
}

func (e *env) status(t *testing.T, store CommandStore, id string) string {
	t.Helper()
	cmd, err := store.Get(e.ctx, e.acme.ID, id)
	require.NoError(t, err)
	return cmd.Status
}
