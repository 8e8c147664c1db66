package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"INVOCCA_LISTEN_ADDR",
	"INVOCCA_DB_DSN",
	"INVOCCA_DB_MAX_OPEN_CONNS",
	"INVOCCA_LOG_LEVEL",
	"INVOCCA_JWT_SECRET",
	"INVOCCA_JWT_ISSUER",
	"INVOCCA_NATS_URL",
	"INVOCCA_NATS_STREAM",
	"INVOCCA_DEV_MODE",
	"INVOCCA_METRICS_ENABLED",
	"INVOCCA_TRACES_ENABLED",
	"INVOCCA_SHUTDOWN_TIMEOUT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
	}
	t.Setenv("INVOCCA_ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
}

func TestLoad_DevModeDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("INVOCCA_DEV_MODE", "yes")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, defaultListenAddr, cfg.ListenAddr)
	assert.Empty(t, cfg.DBDSN)
	assert.Equal(t, defaultDBMaxOpenConns, cfg.DBMaxOpenConns)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, defaultJWTIssuer, cfg.JWTIssuer)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, defaultNATSStream, cfg.NATSStream)
	assert.True(t, cfg.DevMode)
	assert.True(t, cfg.MetricsEnabled)
	assert.False(t, cfg.TracesEnabled)
	assert.Equal(t, defaultShutdownTimeout, cfg.ShutdownTimeout)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("INVOCCA_LISTEN_ADDR", ":9999")
	t.Setenv("INVOCCA_DB_DSN", "postgres://x")
	t.Setenv("INVOCCA_DB_MAX_OPEN_CONNS", "-3")
	t.Setenv("INVOCCA_LOG_LEVEL", "DEBUG")
	t.Setenv("INVOCCA_JWT_SECRET", "s3cret")
	t.Setenv("INVOCCA_NATS_URL", "nats://nats:4222")
	t.Setenv("INVOCCA_METRICS_ENABLED", "off")
	t.Setenv("INVOCCA_SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, "postgres://x", cfg.DBDSN)
	assert.Equal(t, defaultDBMaxOpenConns, cfg.DBMaxOpenConns)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, "nats://nats:4222", cfg.NATSURL)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_RequiresSecretOutsideDevMode(t *testing.T) {
	clearEnv(t)
	t.Setenv("INVOCCA_DB_DSN", "postgres://x")

	_, err := Load()
	assert.ErrorContains(t, err, "INVOCCA_JWT_SECRET")
}

func TestLoad_RequiresDSNOutsideDevMode(t *testing.T) {
	clearEnv(t)
	t.Setenv("INVOCCA_JWT_SECRET", "s3cret")

	_, err := Load()
	assert.ErrorContains(t, err, "INVOCCA_DB_DSN")
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "invocca.env")
	require.NoError(t, os.WriteFile(path, []byte("INVOCCA_DEV_MODE=true\nINVOCCA_NATS_STREAM=FROM_FILE\n"), 0o600))
	t.Setenv("INVOCCA_ENV_FILE", path)
	// godotenv keeps variables that are set, even when empty.
	require.NoError(t, os.Unsetenv("INVOCCA_DEV_MODE"))
	require.NoError(t, os.Unsetenv("INVOCCA_NATS_STREAM"))
	t.Cleanup(func() {
		_ = os.Unsetenv("INVOCCA_DEV_MODE")
		_ = os.Unsetenv("INVOCCA_NATS_STREAM")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, "FROM_FILE", cfg.NATSStream)
}
