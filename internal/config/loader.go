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
// built-in defaults, applies SCREENER_* environment variable overrides, and
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

// applyEnvOverrides reads well-known SCREENER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Data ──
	setStr(&cfg.Data.Backend, "SCREENER_DATA_BACKEND")
	setStr(&cfg.Data.Dir, "SCREENER_DATA_DIR")
	setStr(&cfg.Data.CandidatesDir, "SCREENER_DATA_CANDIDATES_DIR")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SCREENER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SCREENER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SCREENER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SCREENER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SCREENER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SCREENER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SCREENER_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SCREENER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SCREENER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SCREENER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SCREENER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SCREENER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SCREENER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SCREENER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SCREENER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SCREENER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SCREENER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SCREENER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SCREENER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SCREENER_S3_REGION")
	setStr(&cfg.S3.Bucket, "SCREENER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SCREENER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SCREENER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SCREENER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SCREENER_S3_FORCE_PATH_STYLE")

	// ── Oracle ──
	setStr(&cfg.Oracle.BaseURL, "SCREENER_ORACLE_BASE_URL")
	setDuration(&cfg.Oracle.Timeout, "SCREENER_ORACLE_TIMEOUT")
	setFloat64(&cfg.Oracle.RatePerSec, "SCREENER_ORACLE_RATE_PER_SEC")
	setDuration(&cfg.Oracle.CacheTTL, "SCREENER_ORACLE_CACHE_TTL")

	// ── Feed ──
	setBool(&cfg.Feed.Enabled, "SCREENER_FEED_ENABLED")
	setStr(&cfg.Feed.WsURL, "SCREENER_FEED_WS_URL")
	setStringSlice(&cfg.Feed.Symbols, "SCREENER_FEED_SYMBOLS")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "SCREENER_METRICS_ENABLED")
	setInt(&cfg.Metrics.Port, "SCREENER_METRICS_PORT")

	// ── Portfolio ──
	setStr(&cfg.Portfolio.Name, "SCREENER_PORTFOLIO_NAME")
	setStr(&cfg.Portfolio.Mode, "SCREENER_PORTFOLIO_MODE")
	setFloat64(&cfg.Portfolio.Equity, "SCREENER_PORTFOLIO_EQUITY")
	setFloat64(&cfg.Portfolio.MaxPositionWeight, "SCREENER_PORTFOLIO_MAX_POSITION_WEIGHT")
	setFloat64(&cfg.Portfolio.MaxStrategyConcentration, "SCREENER_PORTFOLIO_MAX_STRATEGY_CONCENTRATION")
	setBool(&cfg.Portfolio.LockEnabled, "SCREENER_PORTFOLIO_LOCK_ENABLED")
	setDuration(&cfg.Portfolio.LockTTL, "SCREENER_PORTFOLIO_LOCK_TTL")

	// ── Sizer ──
	setFloat64(&cfg.Sizer.TargetVol, "SCREENER_SIZER_TARGET_VOL")
	setFloat64(&cfg.Sizer.VolFloor, "SCREENER_SIZER_VOL_FLOOR")

	// ── Top-level ──
	setStr(&cfg.Mode, "SCREENER_MODE")
	setStr(&cfg.LogLevel, "SCREENER_LOG_LEVEL")
	setDuration(&cfg.Interval, "SCREENER_INTERVAL")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
