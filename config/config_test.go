package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Central.Driver)
	assert.Equal(t, 10, cfg.Protocol.MaxCommandsPerRequest)
	assert.Equal(t, 5*time.Minute, cfg.Commands.TTL)
	assert.Equal(t, 30*time.Second, cfg.Commands.PendingTTL)
	assert.Equal(t, time.Hour, cfg.Cache.DeviceSnapshotTTL)
	assert.Equal(t, 24*time.Hour, cfg.Encryption.KeyCacheTTL)
	assert.Equal(t, 1000, cfg.RateLimit.TenantMax)
	assert.Equal(t, 100, cfg.RateLimit.DeviceMax)
	assert.False(t, cfg.Encryption.LegacyZeroIV)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("COMMAND_TTL", "90")
	t.Setenv("PENDING_COMMANDS_TTL", "15s")
	t.Setenv("ENCRYPTION_LEGACY_ZERO_IV", "true")
	t.Setenv("RATE_LIMIT_DEVICE", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Commands.TTL)
	assert.Equal(t, 15*time.Second, cfg.Commands.PendingTTL)
	assert.True(t, cfg.Encryption.LegacyZeroIV)
	assert.Equal(t, 5, cfg.RateLimit.DeviceMax)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidateDriver(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CENTRAL_DB_DRIVER", "postgres")
	_, err := Load()
	assert.Error(t, err)
}
