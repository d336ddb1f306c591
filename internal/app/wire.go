package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	s3blob "github.com/dkovacs/screenerbot/internal/blob/s3"
	"github.com/dkovacs/screenerbot/internal/cache/redis"
	"github.com/dkovacs/screenerbot/internal/config"
	"github.com/dkovacs/screenerbot/internal/domain"
	"github.com/dkovacs/screenerbot/internal/feed"
	"github.com/dkovacs/screenerbot/internal/oracle"
	"github.com/dkovacs/screenerbot/internal/store/file"
	"github.com/dkovacs/screenerbot/internal/store/memory"
	"github.com/dkovacs/screenerbot/internal/store/postgres"
)

// Dependencies bundles everything the application modes need. Portfolios
// own disjoint persisted state, so position stores and trade ledgers are
// handed out per portfolio name rather than as singletons.
type Dependencies struct {
	Quotes     domain.QuoteSource
	Candidates domain.CandidateSource

	// Optional; nil when the corresponding subsystem is disabled.
	Locks    domain.LockManager
	Archiver domain.LedgerArchiver
	Feed     *feed.QuoteFeed

	PositionStore func(portfolio string) (domain.PositionStore, error)
	TradeLedger   func(portfolio string) (domain.TradeLedger, error)
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Persistence backend ---
	switch cfg.Data.Backend {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.PositionStore = func(portfolio string) (domain.PositionStore, error) {
			return postgres.NewPositionStore(pool, portfolio, logger), nil
		}
		deps.TradeLedger = func(portfolio string) (domain.TradeLedger, error) {
			return postgres.NewTradeLedger(pool, portfolio), nil
		}

	case "file":
		dir := cfg.Data.Dir
		deps.PositionStore = func(portfolio string) (domain.PositionStore, error) {
			return file.NewPositionStore(filepath.Join(dir, portfolio), logger)
		}
		deps.TradeLedger = func(portfolio string) (domain.TradeLedger, error) {
			return file.NewLedger(filepath.Join(dir, portfolio), logger)
		}

	case "memory":
		deps.PositionStore = func(string) (domain.PositionStore, error) {
			return memory.NewPositionStore(), nil
		}
		deps.TradeLedger = func(string) (domain.TradeLedger, error) {
			return memory.NewLedger(), nil
		}

	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unknown data backend %q", cfg.Data.Backend)
	}

	// --- Candidate feed (screener output on disk) ---
	deps.Candidates = file.NewCandidateSource(cfg.Data.CandidatesDir, logger)

	// --- Quote oracle, optionally fronted by the Redis cache ---
	quotes := oracle.NewClient(oracle.ClientConfig{
		BaseURL:    cfg.Oracle.BaseURL,
		Timeout:    cfg.Oracle.Timeout.Duration,
		RatePerSec: cfg.Oracle.RatePerSec,
	})
	deps.Quotes = quotes

	// --- Redis (quote cache, advisory lock, feed sink) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		quoteCache := redis.NewQuoteCache(redisClient)
		deps.Quotes = oracle.NewCachedOracle(quotes, quoteCache, cfg.Oracle.CacheTTL.Duration, logger)

		if cfg.Portfolio.LockEnabled {
			deps.Locks = redis.NewLockManager(redisClient)
		}
		if cfg.Feed.Enabled {
			deps.Feed = feed.NewQuoteFeed(
				cfg.Feed.WsURL,
				cfg.Feed.Symbols,
				quoteCache,
				cfg.Oracle.CacheTTL.Duration,
				logger,
			)
		}
	}

	// --- S3 ledger archival ---
	if cfg.S3.Enabled {
		archiver, err := s3blob.NewArchiver(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = archiver
	}

	return deps, cleanup, nil
}
