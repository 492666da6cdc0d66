package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"admsserver/cache"
	"admsserver/database"
	"admsserver/encryption"
	"admsserver/middleware"
	"admsserver/models"
	"admsserver/queue"
	"admsserver/services"
	"admsserver/utils"
)

const testSecret = "handler-test-secret"

type server struct {
	ctx      context.Context
	router   *mux.Router
	jobs     *queue.Dispatcher
	dbs      *services.TenantDatabases
	devices  *services.DeviceRegistry
	commands *services.CommandManager
	audit    *services.AdminAuditLog
	acme     *models.Tenant
}

func newServer(t *testing.T, limits services.RateLimits) *server {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	utils.SetJWTSecret(testSecret)

	centralConn, err := database.Open("sqlite", filepath.Join(dir, "central.db"))
	require.NoError(t, err)
	require.NoError(t, database.EnsureCentralSchema(ctx, centralConn))

	store := cache.NewMemoryStore()
	resolver := database.NewTenantResolver(centralConn, store, time.Minute)
	keys := encryption.NewKeyRegistry(store, encryption.NewCodec(false), time.Hour)
	jobs := queue.NewDispatcher(queue.Options{MaxWorkers: 2, MaxAttempts: 3, RetryBackoff: 10 * time.Millisecond})
	rotation := encryption.NewRotationManager(resolver, keys, jobs, store, encryption.RotationConfig{BatchSize: 100, SmallTable: 100})
	resolver.OnProvision(rotation.EnsureActiveKey)

	dbs := services.NewTenantDatabases(resolver, keys)
	devices := services.NewDeviceRegistry(dbs.Central(), store, time.Hour, 0)
	activity := services.NewActivityLogger(dbs.Central())
	auditLog := services.NewAdminAuditLog(dbs.Central())
	catalog, err := services.LoadCatalog("")
	require.NoError(t, err)

	commands := services.NewCommandManager(catalog, devices,
		services.NewCentralCommandStore(dbs.Central()), services.NewTenantCommandStore(dbs),
		resolver, store, jobs, activity, services.CommandOptions{
			TTL:                  5 * time.Minute,
			PendingTTL:           30 * time.Second,
			MaxPerRequest:        10,
			DeviceInfoMinPayload: 64,
		})
	ingestor := services.NewIngestor(dbs, devices, store, jobs, activity, 5*time.Minute)
	jobs.Register(services.JobCommandStatus, commands.HandleStatusJob)
	jobs.Register(services.JobIngest, ingestor.HandleIngest)
	jobs.Register(encryption.JobReencrypt, rotation.HandleReencrypt)

	acme, err := resolver.Register(ctx, models.Tenant{
		BusinessCode: "acme",
		Name:         "Acme",
		DBDriver:     "sqlite",
		DBDSN:        filepath.Join(dir, "acme.db"),
	})
	require.NoError(t, err)
	_, err = devices.Register(ctx, models.Device{
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

	protocol := NewADMSHandler(resolver, devices, services.NewRateLimiter(store, limits), commands, ingestor)
	cmdHandler := NewCommandHandler(resolver, commands, auditLog)
	devHandler := NewDeviceHandler(resolver, devices, activity, auditLog)
	keyHandler := NewKeyHandler(resolver, rotation, auditLog)
	dashboard := NewDashboardHandler(dbs.Central(), auditLog)
	health := NewHealthHandler(centralConn, jobs)

	admin := func(h http.HandlerFunc, roles ...string) http.HandlerFunc {
		return middleware.ChainMiddleware(h,
			middleware.SetJSONHeader,
			middleware.AuthMiddleware,
			middleware.RequireRoles(roles...),
		)
	}
	anyAdmin := []string{models.AdminRoleSuperAdmin, models.AdminRoleOperator}

	r := mux.NewRouter()
	r.HandleFunc("/health", health.Check).Methods("GET")
	r.HandleFunc("/iclock/{businessCode}/{endpoint}", middleware.LoggingMiddleware(protocol.Handle))
	r.HandleFunc("/api/admin/me", admin(GetMe, anyAdmin...)).Methods("GET")
	r.HandleFunc("/api/admin/commands/catalog", admin(cmdHandler.Catalog, anyAdmin...)).Methods("GET")
	r.HandleFunc("/api/admin/tenants/{businessCode}/devices/{serialNumber}/commands", admin(cmdHandler.Create, anyAdmin...)).Methods("POST")
	r.HandleFunc("/api/admin/tenants/{businessCode}/devices/{serialNumber}/commands", admin(cmdHandler.List, anyAdmin...)).Methods("GET")
	r.HandleFunc("/api/admin/tenants/{businessCode}/devices", admin(devHandler.List, anyAdmin...)).Methods("GET")
	r.HandleFunc("/api/admin/tenants/{businessCode}/devices", admin(devHandler.Register, anyAdmin...)).Methods("POST")
	r.HandleFunc("/api/admin/tenants/{businessCode}/devices/{serialNumber}/status", admin(devHandler.UpdateStatus, anyAdmin...)).Methods("PUT")
	r.HandleFunc("/api/admin/tenants/{businessCode}/devices/{serialNumber}", admin(devHandler.Remove, anyAdmin...)).Methods("DELETE")
	r.HandleFunc("/api/admin/tenants/{businessCode}/devices/{serialNumber}/activity", admin(devHandler.Activity, anyAdmin...)).Methods("GET")
	r.HandleFunc("/api/admin/cache/devices/invalidate", admin(devHandler.InvalidateCache, anyAdmin...)).Methods("POST")
	r.HandleFunc("/api/admin/tenants/{businessCode}/keys", admin(keyHandler.List, models.AdminRoleSuperAdmin)).Methods("GET")
	r.HandleFunc("/api/admin/tenants/{businessCode}/keys", admin(keyHandler.Generate, models.AdminRoleSuperAdmin)).Methods("POST")
	r.HandleFunc("/api/admin/tenants/{businessCode}/keys/{version}", admin(keyHandler.Delete, models.AdminRoleSuperAdmin)).Methods("DELETE")
	r.HandleFunc("/api/admin/dashboard/stats", admin(dashboard.Stats, anyAdmin...)).Methods("GET")
	r.HandleFunc("/api/admin/dashboard/activities", admin(dashboard.RecentActivities, anyAdmin...)).Methods("GET")

	return &server{
		ctx:      ctx,
		router:   r,
		jobs:     jobs,
		dbs:      dbs,
		devices:  devices,
		commands: commands,
		audit:    auditLog,
		acme:     &acme,
	}
}

func (s *server) do(t *testing.T, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *server) start(t *testing.T) {
	t.Helper()
	require.NoError(t, s.jobs.Start())
}

func (s *server) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, s.jobs.Drain(ctx))
}

func token(t *testing.T, role string) string {
	t.Helper()
	tok, _, err := utils.GenerateToken("admin-1", "alice", role, time.Hour)
	require.NoError(t, err)
	return tok
}

func defaultLimits() services.RateLimits {
	return services.RateLimits{Tenant: 1000, Device: 100, Window: time.Minute}
}

func deviceLimit(n int) services.RateLimits {
	return services.RateLimits{Tenant: 1000, Device: n, Window: time.Minute}
}
