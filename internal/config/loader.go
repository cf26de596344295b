package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CTFLEDGER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CTFLEDGER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Ledger ──
	setStr(&cfg.Ledger.CollateralToken, "CTFLEDGER_LEDGER_COLLATERAL_TOKEN")
	setStr(&cfg.Ledger.CollateralScale, "CTFLEDGER_LEDGER_COLLATERAL_SCALE")
	setStr(&cfg.Ledger.NegRiskAdapter, "CTFLEDGER_LEDGER_NEG_RISK_ADAPTER")
	setStringSlice(&cfg.Ledger.InternalAddresses, "CTFLEDGER_LEDGER_INTERNAL_ADDRESSES")

	// ── Goldsky ──
	setStr(&cfg.Goldsky.URL, "CTFLEDGER_GOLDSKY_URL")
	setStr(&cfg.Goldsky.APIKey, "CTFLEDGER_GOLDSKY_API_KEY")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CTFLEDGER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CTFLEDGER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CTFLEDGER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CTFLEDGER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CTFLEDGER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CTFLEDGER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CTFLEDGER_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CTFLEDGER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CTFLEDGER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CTFLEDGER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "CTFLEDGER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CTFLEDGER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CTFLEDGER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CTFLEDGER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CTFLEDGER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CTFLEDGER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CTFLEDGER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CTFLEDGER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CTFLEDGER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CTFLEDGER_S3_REGION")
	setStr(&cfg.S3.Bucket, "CTFLEDGER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CTFLEDGER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CTFLEDGER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CTFLEDGER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CTFLEDGER_S3_FORCE_PATH_STYLE")

	// ── Indexer ──
	setDuration(&cfg.Indexer.PollInterval, "CTFLEDGER_INDEXER_POLL_INTERVAL")
	setUint64(&cfg.Indexer.StartBlock, "CTFLEDGER_INDEXER_START_BLOCK")

	// ── Snapshot ──
	setBool(&cfg.Snapshot.Enabled, "CTFLEDGER_SNAPSHOT_ENABLED")
	setDuration(&cfg.Snapshot.Interval, "CTFLEDGER_SNAPSHOT_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CTFLEDGER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CTFLEDGER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CTFLEDGER_SERVER_CORS_ORIGINS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CTFLEDGER_MODE")
	setStr(&cfg.LogLevel, "CTFLEDGER_LOG_LEVEL")
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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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
