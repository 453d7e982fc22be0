package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Bool("dev", true, "")
	flags.String("port", "8080", "")
	flags.String("mq", "go_chan", "")
	flags.String("store", "memory", "")
	flags.String("config", "", "")
	return flags
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "memory", cfg.Store.Mode)
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
	assert.Equal(t, "go_chan", cfg.MQ.Mode)
	assert.True(t, cfg.Ledger.EnsureUser)
	assert.Equal(t, uint64(5), cfg.Ledger.ReconcileMaxRetries)
	assert.Equal(t, 4, cfg.Ledger.ReconcileWorkers)
	assert.Equal(t, "v5", cfg.Identity.Version)
	assert.Equal(t, 30*time.Second, cfg.Leaderboard.CacheTTL)
}

func TestLoad_EnvAndFlags(t *testing.T) {
	t.Setenv("GOGREEN_STORE_MODE", "redis")
	t.Setenv("GOGREEN_LEDGER_ENSURE_USER", "false")
	t.Setenv("GOGREEN_LEADERBOARD_CACHE_TTL", "2m")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/green")

	flags := newFlags()
	require.NoError(t, flags.Parse([]string{"--port", "9090", "--mq", "rabbitmq"}))

	cfg, err := Load(flags)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "rabbitmq", cfg.MQ.Mode)
	// unchanged flag does not shadow the environment
	assert.Equal(t, "redis", cfg.Store.Mode)
	assert.False(t, cfg.Ledger.EnsureUser)
	assert.Equal(t, 2*time.Minute, cfg.Leaderboard.CacheTTL)
	assert.Equal(t, "postgres://u:p@db:5432/green", cfg.Store.PostgresDSN)
}

func TestLoad_PrefixedEnvWinsOverLegacy(t *testing.T) {
	t.Setenv("RABBITMQ_URL", "amqp://legacy/")
	t.Setenv("GOGREEN_MQ_RABBIT_URL", "amqp://new/")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "amqp://new/", cfg.MQ.RabbitURL)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gogreen.yaml")
	content := []byte("store:\n  mode: mongo\nauth:\n  jwt_secret: s3cret\nidentity:\n  version: v3\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	flags := newFlags()
	require.NoError(t, flags.Parse([]string{"--config", path}))

	cfg, err := Load(flags)
	require.NoError(t, err)
	assert.Equal(t, "mongo", cfg.Store.Mode)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "v3", cfg.Identity.Version)

	flags = newFlags()
	require.NoError(t, flags.Parse([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}))
	_, err = Load(flags)
	assert.Error(t, err)
}

func TestLoad_DevSecret(t *testing.T) {
	first, err := Load(nil)
	require.NoError(t, err)
	second, err := Load(nil)
	require.NoError(t, err)

	assert.True(t, first.Dev)
	assert.GreaterOrEqual(t, len(first.Auth.JWTSecret), 26)
	assert.NotEqual(t, first.Auth.JWTSecret, second.Auth.JWTSecret)

	t.Setenv("GOGREEN_DEV", "false")
	prod, err := Load(nil)
	require.NoError(t, err)
	assert.Empty(t, prod.Auth.JWTSecret)

	t.Setenv("GOGREEN_AUTH_JWT_SECRET", "configured")
	prod, err = Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "configured", prod.Auth.JWTSecret)
}
