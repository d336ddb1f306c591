// Package config defines the top-level configuration for the screener
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dkovacs/screenerbot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by SCREENER_* environment
// variables.
type Config struct {
	Data      DataConfig              `toml:"data"`
	Postgres  PostgresConfig          `toml:"postgres"`
	Redis     RedisConfig             `toml:"redis"`
	S3        S3Config                `toml:"s3"`
	Oracle    OracleConfig            `toml:"oracle"`
	Feed      FeedConfig              `toml:"feed"`
	Metrics   MetricsConfig           `toml:"metrics"`
	Portfolio PortfolioConfig         `toml:"portfolio"`
	Sizer     SizerConfig             `toml:"sizer"`
	Strategy  []domain.StrategyConfig `toml:"strategy"`
	Mode      string                  `toml:"mode"`
	LogLevel  string                  `toml:"log_level"`
	Interval  duration                `toml:"interval"`
}

// DataConfig selects the persistence backend and its on-disk locations.
type DataConfig struct {
	// Backend is one of "file", "postgres", "memory".
	Backend string `toml:"backend"`
	// Dir holds positions.csv, positions.json, and trades.csv for the
	// file backend.
	Dir string `toml:"dir"`
	// CandidatesDir holds the per-strategy candidates_<name>.csv files
	// written by the screener upstream.
	CandidatesDir string `toml:"candidates_dir"`
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

// RedisConfig holds Redis connection parameters. When disabled the engine
// runs without the quote cache and the cross-process cycle lock.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds object-storage parameters for ledger archival.
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

// OracleConfig holds the quote endpoint parameters.
type OracleConfig struct {
	BaseURL    string   `toml:"base_url"`
	Timeout    duration `toml:"timeout"`
	RatePerSec float64  `toml:"rate_per_sec"`
	// CacheTTL bounds quote staleness when the Redis cache is enabled.
	CacheTTL duration `toml:"cache_ttl"`
}

// FeedConfig holds the websocket quote feed parameters. The feed warms
// the quote cache between cycles; it is useless without Redis.
type FeedConfig struct {
	Enabled bool     `toml:"enabled"`
	WsURL   string   `toml:"ws_url"`
	Symbols []string `toml:"symbols"`
}

// MetricsConfig holds the Prometheus endpoint parameters.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// PortfolioConfig holds the account-level parameters shared by every
// strategy: equity, exposure limits, and the cycle lock.
type PortfolioConfig struct {
	Name string `toml:"name"`
	// Mode is "combined" (all strategies share one book) or
	// "individual" (one book per strategy).
	Mode   string  `toml:"mode"`
	Equity float64 `toml:"equity"`

	MaxPositionWeight        float64 `toml:"max_position_weight"`
	MaxStrategyConcentration float64 `toml:"max_strategy_concentration"`

	LockEnabled bool     `toml:"lock_enabled"`
	LockTTL     duration `toml:"lock_ttl"`
}

// SizerConfig holds volatility-scaling parameters for position sizing.
type SizerConfig struct {
	TargetVol float64 `toml:"target_vol"`
	VolFloor  float64 `toml:"vol_floor"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding ("5m", "30s") and text marshalling.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Data: DataConfig{
			Backend:       "file",
			Dir:           "data",
			CandidatesDir: "data/candidates",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "screenerbot",
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
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "screenerbot-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Oracle: OracleConfig{
			BaseURL:    "http://localhost:8100",
			Timeout:    duration{10 * time.Second},
			RatePerSec: 5,
			CacheTTL:   duration{5 * time.Minute},
		},
		Feed: FeedConfig{
			Enabled: false,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9102,
		},
		Portfolio: PortfolioConfig{
			Name:                     "paper",
			Mode:                     "combined",
			Equity:                   100_000,
			MaxPositionWeight:        0.20,
			MaxStrategyConcentration: 0.60,
			LockEnabled:              false,
			LockTTL:                  duration{5 * time.Minute},
		},
		Sizer: SizerConfig{
			TargetVol: 0.20,
			VolFloor:  0.05,
		},
		Mode:     "cycle",
		LogLevel: "info",
		Interval: duration{24 * time.Hour},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"cycle":  true,
	"daemon": true,
	"report": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validBackends enumerates the accepted values for DataConfig.Backend.
var validBackends = map[string]bool{
	"file":     true,
	"postgres": true,
	"memory":   true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: cycle, daemon, report)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if c.Mode == "daemon" && c.Interval.Duration <= 0 {
		errs = append(errs, "interval must be positive in daemon mode")
	}

	// Data
	if !validBackends[strings.ToLower(c.Data.Backend)] {
		errs = append(errs, fmt.Sprintf("data: unknown backend %q (valid: file, postgres, memory)", c.Data.Backend))
	}
	if strings.ToLower(c.Data.Backend) == "file" && c.Data.Dir == "" {
		errs = append(errs, "data: dir must not be empty for the file backend")
	}
	if c.Data.CandidatesDir == "" {
		errs = append(errs, "data: candidates_dir must not be empty")
	}

	// Postgres — only checked when selected.
	if strings.ToLower(c.Data.Backend) == "postgres" {
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
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}
	if c.Portfolio.LockEnabled && !c.Redis.Enabled {
		errs = append(errs, "portfolio: lock_enabled requires redis.enabled")
	}
	if c.Feed.Enabled && !c.Redis.Enabled {
		errs = append(errs, "feed: enabled requires redis.enabled (the feed writes into the quote cache)")
	}
	if c.Feed.Enabled && c.Feed.WsURL == "" {
		errs = append(errs, "feed: ws_url must not be empty when enabled")
	}

	// S3
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty when enabled")
	}

	// Oracle
	if c.Oracle.BaseURL == "" {
		errs = append(errs, "oracle: base_url must not be empty")
	}
	if c.Oracle.RatePerSec < 0 {
		errs = append(errs, "oracle: rate_per_sec must not be negative")
	}

	// Metrics
	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			errs = append(errs, fmt.Sprintf("metrics: port must be 1-65535, got %d", c.Metrics.Port))
		}
	}

	// Portfolio
	switch strings.ToLower(c.Portfolio.Mode) {
	case "combined", "individual":
	default:
		errs = append(errs, fmt.Sprintf("portfolio: unknown mode %q (valid: combined, individual)", c.Portfolio.Mode))
	}
	if c.Portfolio.Equity <= 0 {
		errs = append(errs, "portfolio: equity must be > 0")
	}
	if c.Portfolio.MaxPositionWeight < 0 || c.Portfolio.MaxPositionWeight > 1 {
		errs = append(errs, "portfolio: max_position_weight must be in [0, 1]")
	}
	if c.Portfolio.MaxStrategyConcentration < 0 || c.Portfolio.MaxStrategyConcentration > 1 {
		errs = append(errs, "portfolio: max_strategy_concentration must be in [0, 1]")
	}
	if c.Portfolio.LockEnabled && c.Portfolio.LockTTL.Duration <= 0 {
		errs = append(errs, "portfolio: lock_ttl must be positive when lock_enabled")
	}

	// Sizer
	if c.Sizer.TargetVol < 0 {
		errs = append(errs, "sizer: target_vol must not be negative")
	}
	if c.Sizer.VolFloor < 0 {
		errs = append(errs, "sizer: vol_floor must not be negative")
	}

	// Strategies
	if len(c.Strategy) == 0 {
		errs = append(errs, "strategy: at least one [[strategy]] block is required")
	}
	seen := map[string]bool{}
	for i, s := range c.Strategy {
		prefix := fmt.Sprintf("strategy[%d]", i)
		if s.Name == "" {
			errs = append(errs, prefix+": name must not be empty")
		} else {
			if seen[s.Name] {
				errs = append(errs, fmt.Sprintf("%s: duplicate strategy name %q", prefix, s.Name))
			}
			seen[s.Name] = true
			prefix = fmt.Sprintf("strategy[%s]", s.Name)
		}
		if s.Side != "" {
			if _, err := domain.ParseSide(string(s.Side)); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", prefix, err))
			}
		}
		if s.RiskPerPosition <= 0 || s.RiskPerPosition > 1 {
			errs = append(errs, prefix+": risk_per_position must be in (0, 1]")
		}
		if s.MaxAllocationPct <= 0 || s.MaxAllocationPct > 1 {
			errs = append(errs, prefix+": max_allocation_pct must be in (0, 1]")
		}
		if s.MaxPositions < 1 {
			errs = append(errs, prefix+": max_positions must be >= 1")
		}
		if s.StopLossPct < 0 || s.StopLossPct >= 1 {
			errs = append(errs, prefix+": stop_loss_pct must be in [0, 1)")
		}
		if s.ProfitTargetPct < 0 {
			errs = append(errs, prefix+": profit_target_pct must not be negative")
		}
		if s.TrailingStopPct < 0 || s.TrailingStopPct >= 1 {
			errs = append(errs, prefix+": trailing_stop_pct must be in [0, 1)")
		}
		if s.MaxHoldingDays < 0 {
			errs = append(errs, prefix+": max_holding_days must not be negative")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
