// Package config defines the top-level configuration for the conditional
// token ledger and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CTFLEDGER_* environment variables.
type Config struct {
	Ledger   LedgerConfig   `toml:"ledger"`
	Goldsky  GoldskyConfig  `toml:"goldsky"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Indexer  IndexerConfig  `toml:"indexer"`
	Snapshot SnapshotConfig `toml:"snapshot"`
	Server   ServerConfig   `toml:"server"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// LedgerConfig holds the chain-level constants the event processor needs.
type LedgerConfig struct {
	// CollateralToken is the ERC-20 address whose splits and merges are
	// tracked. Positions collateralized by anything else are ignored.
	CollateralToken string `toml:"collateral_token"`

	// CollateralScale is the collateral token's base-unit scale as a
	// decimal string, e.g. "1000000" for a 6-decimal token.
	CollateralScale string `toml:"collateral_scale"`

	// NegRiskAdapter is the adapter contract address used as the oracle
	// when deriving negative-risk condition IDs.
	NegRiskAdapter string `toml:"neg_risk_adapter"`

	// InternalAddresses are protocol-owned accounts (exchanges, adapters)
	// whose holdings are excluded from per-user position accounting.
	InternalAddresses []string `toml:"internal_addresses"`
}

// GoldskyConfig holds the subgraph endpoint the indexer pulls events from.
type GoldskyConfig struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// IndexerConfig holds event ingestion parameters.
type IndexerConfig struct {
	PollInterval duration `toml:"poll_interval"`
	StartBlock   uint64   `toml:"start_block"`
}

// SnapshotConfig holds open-interest export parameters.
type SnapshotConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config pre-filled with Polygon mainnet parameters and
// sensible local-development infrastructure settings.
func Defaults() Config {
	return Config{
		Ledger: LedgerConfig{
			CollateralToken: "0x2791bca1f2de4661ed88a30c99a7a9449aa84174",
			CollateralScale: "1000000",
			NegRiskAdapter:  "0xd91e80cf2e7be2e162c6513ced06f1dd0da35296",
			InternalAddresses: []string{
				"0x4bfb41d5b3570defd03c39a9a4d8de6bd8b8982e",
				"0xc5d563a36ae78145c45a50134d48a1215220f80a",
				"0xd91e80cf2e7be2e162c6513ced06f1dd0da35296",
			},
		},
		Goldsky: GoldskyConfig{
			URL: "",
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "ctfledger",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "ctfledger-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Indexer: IndexerConfig{
			PollInterval: duration{30 * time.Second},
			StartBlock:   0,
		},
		Snapshot: SnapshotConfig{
			Enabled:  false,
			Interval: duration{1 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"index": true,
	"serve": true,
	"full":  true,
	"dev":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: index, serve, full, dev)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Ledger constants
	if !isHexAddress(c.Ledger.CollateralToken) {
		errs = append(errs, fmt.Sprintf("ledger: collateral_token %q is not a valid address", c.Ledger.CollateralToken))
	}
	if !isHexAddress(c.Ledger.NegRiskAdapter) {
		errs = append(errs, fmt.Sprintf("ledger: neg_risk_adapter %q is not a valid address", c.Ledger.NegRiskAdapter))
	}
	if !isDecimal(c.Ledger.CollateralScale) {
		errs = append(errs, fmt.Sprintf("ledger: collateral_scale %q is not a decimal integer", c.Ledger.CollateralScale))
	}
	for _, addr := range c.Ledger.InternalAddresses {
		if !isHexAddress(addr) {
			errs = append(errs, fmt.Sprintf("ledger: internal address %q is not a valid address", addr))
		}
	}

	// Goldsky is mandatory for the ingesting modes. Dev mode runs against
	// the in-memory store and may omit it.
	needsGoldsky := c.Mode == "index" || c.Mode == "full"
	if needsGoldsky && strings.TrimSpace(c.Goldsky.URL) == "" {
		errs = append(errs, "goldsky: url is required for mode "+c.Mode)
	}

	// Postgres (not used in dev mode)
	if c.Mode != "dev" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when redis is enabled")
	}

	if c.Snapshot.Enabled && !c.S3.Enabled {
		errs = append(errs, "snapshot: s3 must be enabled for snapshot exports")
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty when s3 is enabled")
	}
	if c.Snapshot.Enabled && c.Snapshot.Interval.Duration <= 0 {
		errs = append(errs, "snapshot: interval must be positive")
	}

	if c.Indexer.PollInterval.Duration <= 0 {
		errs = append(errs, "indexer: poll_interval must be positive")
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// isHexAddress reports whether s looks like a 20-byte 0x-prefixed hex address.
func isHexAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, r := range strings.ToLower(s[2:]) {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// isDecimal reports whether s is a non-empty base-10 unsigned integer.
func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
