package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/ctfledger/internal/blob/s3"
	"github.com/alanyoungcy/ctfledger/internal/cache/redis"
	"github.com/alanyoungcy/ctfledger/internal/config"
	"github.com/alanyoungcy/ctfledger/internal/domain"
	"github.com/alanyoungcy/ctfledger/internal/store/memory"
	"github.com/alanyoungcy/ctfledger/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	Conditions    domain.ConditionStore
	OpenInterest  domain.OpenInterestStore
	UserPositions domain.UserPositionStore
	NegRisk       domain.NegRiskStore
	Activity      domain.ActivityStore
	Checkpoints   domain.CheckpointStore

	// Optional read-side infrastructure. Nil when the corresponding
	// backend is disabled in the configuration.
	OICache   domain.OpenInterestCache
	SignalBus domain.SignalBus

	// Blob storage, nil unless S3 is enabled.
	BlobWriter domain.BlobWriter
}

// needsPostgres returns true for modes that require a database connection.
// Dev mode runs entirely on the in-memory store.
func needsPostgres(mode string) bool {
	return mode != "dev"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Persistence ---
	if needsPostgres(cfg.Mode) {
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
		deps.Conditions = postgres.NewConditionStore(pool)
		deps.OpenInterest = postgres.NewOpenInterestStore(pool)
		deps.UserPositions = postgres.NewUserPositionStore(pool)
		deps.NegRisk = postgres.NewNegRiskStore(pool)
		deps.Activity = postgres.NewActivityStore(pool)
		deps.Checkpoints = postgres.NewCheckpointStore(pool)
	} else {
		mem := memory.New()
		deps.Conditions = mem.Conditions()
		deps.OpenInterest = mem.OpenInterest()
		deps.UserPositions = mem.UserPositions()
		deps.NegRisk = mem.NegRisk()
		deps.Activity = mem.Activity()
		deps.Checkpoints = mem.Checkpoints()
		logger.Info("wire: using in-memory store")
	}

	// --- Redis (optional) ---
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

		deps.OICache = redis.NewOpenInterestCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 blob storage (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
	}

	return deps, cleanup, nil
}
