package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CONDEX_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CONDEX_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setInt(&cfg.Exchange.FeeRateBps, "CONDEX_EXCHANGE_FEE_RATE_BPS")
	setStringSlice(&cfg.Exchange.AllowedAssets, "CONDEX_EXCHANGE_ALLOWED_ASSETS")
	setBool(&cfg.Exchange.Paused, "CONDEX_EXCHANGE_PAUSED")
	setDuration(&cfg.Exchange.CheckpointInterval, "CONDEX_EXCHANGE_CHECKPOINT_INTERVAL")
	setDuration(&cfg.Exchange.OraclePollInterval, "CONDEX_EXCHANGE_ORACLE_POLL_INTERVAL")
	setDuration(&cfg.Exchange.ArchiveInterval, "CONDEX_EXCHANGE_ARCHIVE_INTERVAL")
	setDuration(&cfg.Exchange.ArchiveAfter, "CONDEX_EXCHANGE_ARCHIVE_AFTER")
	setInt(&cfg.Exchange.EventBuffer, "CONDEX_EXCHANGE_EVENT_BUFFER")
	setDuration(&cfg.Exchange.WriterLeaseTTL, "CONDEX_EXCHANGE_WRITER_LEASE_TTL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CONDEX_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "CONDEX_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CONDEX_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CONDEX_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CONDEX_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CONDEX_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CONDEX_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CONDEX_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CONDEX_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CONDEX_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CONDEX_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CONDEX_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CONDEX_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CONDEX_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CONDEX_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CONDEX_REDIS_TLS_ENABLED")
	setInt64(&cfg.Redis.StreamMaxLen, "CONDEX_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CONDEX_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CONDEX_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CONDEX_S3_REGION")
	setStr(&cfg.S3.Bucket, "CONDEX_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CONDEX_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CONDEX_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CONDEX_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CONDEX_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CONDEX_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CONDEX_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CONDEX_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CONDEX_SERVER_API_KEY")
	setStr(&cfg.Server.AdminKey, "CONDEX_SERVER_ADMIN_KEY")
	setInt(&cfg.Server.RateLimit, "CONDEX_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "CONDEX_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CONDEX_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CONDEX_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CONDEX_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CONDEX_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CONDEX_MODE")
	setStr(&cfg.LogLevel, "CONDEX_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
