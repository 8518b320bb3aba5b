package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	standalone := Defaults()
	standalone.Mode = "standalone"
	standalone.Postgres.Host = ""
	standalone.Redis.Addr = ""
	require.NoError(t, standalone.Validate(), "standalone needs no infrastructure")
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	cfg.LogLevel = "loud"
	cfg.Exchange.FeeRateBps = 10_001
	cfg.Exchange.AllowedAssets = []string{"X", "X", " "}
	cfg.Exchange.EventBuffer = 0
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		`unknown mode "turbo"`,
		`unknown log_level "loud"`,
		"fee_rate_bps must be 0-10000",
		`allowed_assets lists "X" twice`,
		"allowed_assets must not contain empty names",
		"event_buffer must be >= 1",
		"server: port must be 1-65535",
	} {
		assert.True(t, strings.Contains(msg, want), "missing %q in:\n%s", want, msg)
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "condex.toml")
	require.NoError(os.WriteFile(path, []byte(`
mode = "standalone"

[exchange]
fee_rate_bps = 50
allowed_assets = ["ETH", "USDC"]
checkpoint_interval = "30s"

[server]
port = 9090
`), 0o600))

	t.Setenv("CONDEX_SERVER_PORT", "9191")
	t.Setenv("CONDEX_EXCHANGE_ALLOWED_ASSETS", "ETH, USDC ,BTC")
	t.Setenv("CONDEX_SERVER_ADMIN_KEY", "hunter2")

	cfg, err := Load(path)
	require.NoError(err)
	require.Equal("standalone", cfg.Mode)
	require.Equal(50, cfg.Exchange.FeeRateBps)
	require.Equal(30*time.Second, cfg.Exchange.CheckpointInterval.Duration)
	require.Equal([]string{"ETH", "USDC", "BTC"}, cfg.Exchange.AllowedAssets)
	require.Equal(9191, cfg.Server.Port)
	require.Equal("hunter2", cfg.Server.AdminKey)
	// Untouched sections keep their defaults.
	require.Equal("localhost:6379", cfg.Redis.Addr)
	require.NoError(cfg.Validate())
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Defaults().Server.Port, cfg.Server.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	require := require.New(t)

	cfg := Defaults()
	cfg.Postgres.Password = "pg-secret"
	cfg.Server.AdminKey = "admin-secret"
	cfg.S3.SecretKey = "s3-secret"

	out := RedactedConfig(&cfg)
	require.Equal(redacted, out.Postgres.Password)
	require.Equal(redacted, out.Server.AdminKey)
	require.Equal(redacted, out.S3.SecretKey)
	require.Empty(out.Redis.Password, "empty secrets stay empty")

	out.Server.CORSOrigins[0] = "mutated"
	require.NotEqual("mutated", cfg.Server.CORSOrigins[0])
	require.Equal("pg-secret", cfg.Postgres.Password)
}
