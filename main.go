package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"admsserver/cache"
	"admsserver/config"
	"admsserver/database"
	_ "admsserver/docs" // Swagger 문서
	"admsserver/encryption"
	"admsserver/handlers"
	"admsserver/logger"
	"admsserver/middleware"
	"admsserver/models"
	"admsserver/queue"
	"admsserver/scheduler"
	"admsserver/services"
	"admsserver/utils"
)

// @title ADMS Device Server API
// @version 1.0
// @description 출퇴근 단말기 푸시 프로토콜(ADMS) 및 관리자 API
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@example.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT 토큰을 입력하세요. 형식: Bearer {token}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration: %v", err)
	}

	// 로거 초기화
	logConfig := logger.Config{
		Level:      logger.ParseLevel(cfg.LogLevel),
		LogDir:     cfg.LogDir,
		MaxSize:    10 * 1024 * 1024, // 10MB
		MaxAge:     7,                // 7일
		UseColor:   true,
		ShowCaller: false,
		Prefix:     "",
	}
	if err := logger.Initialize(logConfig); err != nil {
		logger.Fatal("Failed to initialize logger: %v", err)
	}

	logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	logger.Info("ADMS Device Server Starting")
	logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	utils.SetJWTSecret(cfg.JWTSecret)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 중앙 디렉터리
	centralConn, err := database.Initialize(ctx, cfg.Central.Driver, cfg.Central.DSN)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// 공유 캐시 (Redis가 없으면 프로세스 내 캐시)
	var memStore *cache.MemoryStore
	var store cache.Store
	if cfg.Redis.Addr != "" {
		client, err := cache.OpenRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"addr":  cfg.Redis.Addr,
				"error": err.Error(),
			}).Warn("Failed to connect to Redis")
		} else {
			defer client.Close()
		}
		store = cache.NewStore(client, cfg.Redis.Prefix)
	} else {
		store = cache.NewStore(nil, "")
	}
	if m, ok := store.(*cache.MemoryStore); ok {
		memStore = m
	}

	// 작업 디스패처
	var spool *queue.Spool
	if cfg.Queue.SpoolPath != "" {
		spool, err = queue.OpenSpool(cfg.Queue.SpoolPath)
		if err != nil {
			logger.Fatal("Failed to open job spool: %v", err)
		}
		defer spool.Close()
	}
	jobs := queue.NewDispatcher(queue.Options{
		MaxWorkers:   cfg.Queue.MaxWorkers,
		MaxAttempts:  cfg.Queue.MaxAttempts,
		RetryBackoff: cfg.Queue.RetryBackoff,
		Spool:        spool,
	})
	jobs.ConfigureQueue(services.QueueCommands, cfg.Queue.MaxWorkers)
	jobs.ConfigureQueue(services.QueueIngest, cfg.Queue.MaxWorkers)
	jobs.ConfigureQueue(encryption.QueueEncryption, cfg.Queue.RotationMaxWorkers)

	// 테넌트, 암호화 키
	resolver := database.NewTenantResolver(centralConn, store, cfg.Cache.TenantTTL)
	defer resolver.Close()
	codec := encryption.NewCodec(cfg.Encryption.LegacyZeroIV)
	if codec.Legacy() {
		logger.Warn("Legacy fixed-IV encryption mode is enabled")
	}
	keys := encryption.NewKeyRegistry(store, codec, cfg.Encryption.KeyCacheTTL)
	rotation := encryption.NewRotationManager(resolver, keys, jobs, store, encryption.RotationConfig{
		BatchSize:  cfg.Encryption.RotationBatchSize,
		SmallTable: cfg.Encryption.RotationSmallTable,
	})
	resolver.OnProvision(rotation.EnsureActiveKey)

	// 서비스 계층 초기화
	dbs := services.NewTenantDatabases(resolver, keys)
	devices := services.NewDeviceRegistry(dbs.Central(), store, cfg.Cache.DeviceSnapshotTTL, cfg.Cache.DeviceLocalRefresh)
	activity := services.NewActivityLogger(dbs.Central())
	auditLog := services.NewAdminAuditLog(dbs.Central())
	catalog, err := services.LoadCatalog(cfg.Commands.CatalogPath)
	if err != nil {
		logger.Fatal("Failed to load command catalog: %v", err)
	}
	commands := services.NewCommandManager(catalog, devices,
		services.NewCentralCommandStore(dbs.Central()), services.NewTenantCommandStore(dbs),
		resolver, store, jobs, activity, services.CommandOptions{
			TTL:                  cfg.Commands.TTL,
			PendingTTL:           cfg.Commands.PendingTTL,
			MaxPerRequest:        cfg.Protocol.MaxCommandsPerRequest,
			DeviceInfoMinPayload: cfg.Protocol.DeviceInfoMinPayload,
		})
	ingestor := services.NewIngestor(dbs, devices, store, jobs, activity, cfg.Protocol.IngestDedupTTL)
	limiter := services.NewRateLimiter(store, services.RateLimits{
		Tenant: cfg.RateLimit.TenantMax,
		Device: cfg.RateLimit.DeviceMax,
		Window: cfg.RateLimit.Window,
	})

	jobs.Register(services.JobCommandStatus, commands.HandleStatusJob)
	jobs.Register(services.JobIngest, ingestor.HandleIngest)
	jobs.Register(encryption.JobReencrypt, rotation.HandleReencrypt)
	if err := jobs.Start(); err != nil {
		logger.Fatal("Failed to start job dispatcher: %v", err)
	}

	// 스케줄러 시작 (명령 만료, 재조정, 캐시 정리)
	sched := scheduler.StartScheduler(ctx, scheduler.DefaultTasks(commands, memStore)...)

	// 핸들러
	admsHandler := handlers.NewADMSHandler(resolver, devices, limiter, commands, ingestor)
	commandHandler := handlers.NewCommandHandler(resolver, commands, auditLog)
	deviceHandler := handlers.NewDeviceHandler(resolver, devices, activity, auditLog)
	keyHandler := handlers.NewKeyHandler(resolver, rotation, auditLog)
	dashboardHandler := handlers.NewDashboardHandler(dbs.Central(), auditLog)
	healthHandler := handlers.NewHealthHandler(centralConn, jobs)

	// 라우터 설정
	r := mux.NewRouter()

	// Swagger 문서, 메트릭
	r.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/health", healthHandler.Check).Methods("GET")

	// 단말기 프로토콜 (인증 없음, 항상 200 text/plain)
	r.HandleFunc("/iclock/{businessCode}/{endpoint}",
		middleware.LoggingMiddleware(admsHandler.Handle))

	// 관리자 API (인증 필요)
	admin := func(h http.HandlerFunc, roles ...string) http.HandlerFunc {
		return middleware.ChainMiddleware(h,
			middleware.LoggingMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
			middleware.AuthMiddleware,
			middleware.RequireRoles(roles...),
		)
	}
	operators := []string{models.AdminRoleSuperAdmin, models.AdminRoleOperator}
	superAdmin := models.AdminRoleSuperAdmin

	api := r.PathPrefix("/api/admin").Subrouter()

	// 인증 정보
	api.HandleFunc("/me", admin(handlers.GetMe, operators...)).Methods("GET")

	// 명령
	api.HandleFunc("/commands/catalog", admin(commandHandler.Catalog, operators...)).Methods("GET")
	api.HandleFunc("/tenants/{businessCode}/devices/{serialNumber}/commands", admin(commandHandler.Create, operators...)).Methods("POST")
	api.HandleFunc("/tenants/{businessCode}/devices/{serialNumber}/commands", admin(commandHandler.List, operators...)).Methods("GET")

	// 단말기
	api.HandleFunc("/tenants/{businessCode}/devices", admin(deviceHandler.List, operators...)).Methods("GET")
	api.HandleFunc("/tenants/{businessCode}/devices", admin(deviceHandler.Register, operators...)).Methods("POST")
	api.HandleFunc("/tenants/{businessCode}/devices/{serialNumber}/status", admin(deviceHandler.UpdateStatus, operators...)).Methods("PUT")
	api.HandleFunc("/tenants/{businessCode}/devices/{serialNumber}", admin(deviceHandler.Remove, operators...)).Methods("DELETE")
	api.HandleFunc("/tenants/{businessCode}/devices/{serialNumber}/activity", admin(deviceHandler.Activity, operators...)).Methods("GET")
	api.HandleFunc("/cache/devices/invalidate", admin(deviceHandler.InvalidateCache, operators...)).Methods("POST")

	// 암호화 키 (최고 관리자 전용)
	api.HandleFunc("/tenants/{businessCode}/keys", admin(keyHandler.List, superAdmin)).Methods("GET")
	api.HandleFunc("/tenants/{businessCode}/keys", admin(keyHandler.Generate, superAdmin)).Methods("POST")
	api.HandleFunc("/tenants/{businessCode}/keys/rotate", admin(keyHandler.Rotate, superAdmin)).Methods("POST")
	api.HandleFunc("/tenants/{businessCode}/keys/{version}/activate", admin(keyHandler.Activate, superAdmin)).Methods("PUT")
	api.HandleFunc("/tenants/{businessCode}/keys/{version}", admin(keyHandler.Delete, superAdmin)).Methods("DELETE")

	// 대시보드
	api.HandleFunc("/dashboard/stats", admin(dashboardHandler.Stats, operators...)).Methods("GET")
	api.HandleFunc("/dashboard/activities", admin(dashboardHandler.RecentActivities, operators...)).Methods("GET")

	// CORS preflight
	api.PathPrefix("/").Methods("OPTIONS").HandlerFunc(middleware.CORSMiddleware(func(w http.ResponseWriter, r *http.Request) {}))

	// 서버 설정
	port := ":" + cfg.Port
	server := &http.Server{
		Addr:         port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server listening on http://localhost%s", port)
		logger.Info("Device endpoint: http://localhost%s/iclock/{businessCode}/{cdata|devicecmd|getrequest}", port)
		logger.Info("Swagger UI: http://localhost%s/swagger/index.html", port)
		logger.Info("Database: %s", centralConn.Driver)
		logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	logger.Warn("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed: %v", err)
	}
	sched.Wait()
	if err := jobs.Drain(shutdownCtx); err != nil {
		logger.WithFields(map[string]interface{}{
			"pending": jobs.Pending(),
		}).Warn("Job queue not drained before shutdown; remaining jobs stay in the spool")
	}
	jobs.Stop()
	logger.Info("Server stopped")
}
