package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Port      string
	LogLevel  string
	LogDir    string
	JWTSecret string

	Central    DatabaseConfig
	Redis      RedisConfig
	Queue      QueueConfig
	Protocol   ProtocolConfig
	Commands   CommandConfig
	Encryption EncryptionConfig
	Cache      CacheConfig
	RateLimit  RateLimitConfig
}

// DatabaseConfig describes the central directory connection.
type DatabaseConfig struct {
	Driver string
	DSN    string
}

// RedisConfig describes the shared cache. An empty Addr selects the
// in-process cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// QueueConfig sizes the background job dispatcher.
type QueueConfig struct {
	MaxWorkers         int
	RotationMaxWorkers int
	MaxAttempts        int
	RetryBackoff       time.Duration
	SpoolPath          string
}

// ProtocolConfig holds device protocol tunables.
type ProtocolConfig struct {
	MaxCommandsPerRequest int
	DeviceInfoMinPayload  int
	IngestDedupTTL        time.Duration
}

// CommandConfig holds command lifecycle tunables.
type CommandConfig struct {
	TTL         time.Duration
	PendingTTL  time.Duration
	CatalogPath string
}

// EncryptionConfig holds codec and rotation settings.
type EncryptionConfig struct {
	LegacyZeroIV       bool
	KeyCacheTTL        time.Duration
	RotationBatchSize  int
	RotationSmallTable int
}

// CacheConfig holds device registry cache settings.
type CacheConfig struct {
	DeviceSnapshotTTL  time.Duration
	DeviceLocalRefresh time.Duration
	TenantTTL          time.Duration
}

// RateLimitConfig holds the fixed-window limits.
type RateLimitConfig struct {
	TenantMax int
	DeviceMax int
	Window    time.Duration
}

// Load loads configuration from environment variables, reading .env first
// when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogDir:    getEnv("LOG_DIR", "./logs"),
		JWTSecret: getEnv("JWT_SECRET", ""),
		Central: DatabaseConfig{
			Driver: getEnv("CENTRAL_DB_DRIVER", "sqlite"),
			DSN:    getEnv("CENTRAL_DB_DSN", "./adms_central.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "adms:"),
		},
		Queue: QueueConfig{
			MaxWorkers:         getEnvInt("QUEUE_MAX_WORKERS", 8),
			RotationMaxWorkers: getEnvInt("ROTATION_MAX_WORKERS", 4),
			MaxAttempts:        getEnvInt("QUEUE_MAX_ATTEMPTS", 3),
			RetryBackoff:       getEnvDuration("QUEUE_RETRY_BACKOFF", 500*time.Millisecond),
			SpoolPath:          getEnv("QUEUE_SPOOL_PATH", ""),
		},
		Protocol: ProtocolConfig{
			MaxCommandsPerRequest: getEnvInt("ADMS_MAX_COMMANDS_PER_REQUEST", 10),
			DeviceInfoMinPayload:  getEnvInt("DEVICE_INFO_MIN_PAYLOAD", 256),
			IngestDedupTTL:        getEnvDuration("INGEST_DEDUP_TTL", 5*time.Minute),
		},
		Commands: CommandConfig{
			TTL:         getEnvDuration("COMMAND_TTL", 5*time.Minute),
			PendingTTL:  getEnvDuration("PENDING_COMMANDS_TTL", 30*time.Second),
			CatalogPath: getEnv("COMMAND_CATALOG_PATH", ""),
		},
		Encryption: EncryptionConfig{
			LegacyZeroIV:       getEnvBool("ENCRYPTION_LEGACY_ZERO_IV", false),
			KeyCacheTTL:        getEnvDuration("KEY_CACHE_TTL", 24*time.Hour),
			RotationBatchSize:  getEnvInt("ROTATION_BATCH_SIZE", 5000),
			RotationSmallTable: getEnvInt("ROTATION_SMALL_TABLE", 1000),
		},
		Cache: CacheConfig{
			DeviceSnapshotTTL:  getEnvDuration("DEVICE_CACHE_TTL", time.Hour),
			DeviceLocalRefresh: getEnvDuration("DEVICE_LOCAL_REFRESH", 30*time.Second),
			TenantTTL:          getEnvDuration("TENANT_CACHE_TTL", 10*time.Minute),
		},
		RateLimit: RateLimitConfig{
			TenantMax: getEnvInt("RATE_LIMIT_TENANT", 1000),
			DeviceMax: getEnvInt("RATE_LIMIT_DEVICE", 100),
			Window:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch strings.ToLower(c.Central.Driver) {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported CENTRAL_DB_DRIVER: %s", c.Central.Driver)
	}
	if c.Protocol.MaxCommandsPerRequest <= 0 {
		return fmt.Errorf("ADMS_MAX_COMMANDS_PER_REQUEST must be positive")
	}
	if c.Queue.MaxWorkers <= 0 || c.Queue.RotationMaxWorkers <= 0 {
		return fmt.Errorf("queue worker ceilings must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("30s") or bare seconds ("30").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
