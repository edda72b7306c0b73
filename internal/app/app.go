package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"staffpresence/internal/attendance"
	"staffpresence/internal/config"
	"staffpresence/internal/directory"
	"staffpresence/internal/metrics"
	"staffpresence/internal/presence"
	"staffpresence/internal/queue"
	"staffpresence/internal/store"
)

// Components are the wired core services shared by the binaries.
type Components struct {
	Ledger     *attendance.Ledger
	Aggregator *attendance.Aggregator
	Board      *presence.Board
	Queue      queue.Queue
	Directory  directory.Lookup

	DB    *store.DB
	Redis *store.Redis
}

// Build connects the configured backends and wires the core services.
// Close releases whatever was opened, also after a failed Build.
func Build(ctx context.Context, cfg config.App, m *metrics.Metrics, logger *zap.Logger) (*Components, error) {
	c := &Components{}

	if cfg.StoreBackend == "redis" || cfg.QueueBackend == "redis" {
		c.Redis = store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisPrefix)
		if !c.Redis.Healthy(ctx) {
			logger.Warn("redis not reachable at startup", zap.String("addr", cfg.RedisAddr))
		}
	}
	if cfg.StoreBackend == "postgres" {
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		c.DB = db
		if err != nil {
			return c, fmt.Errorf("postgres: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			return c, err
		}
	}

	var (
		records  attendance.Store
		postings presence.Store
	)
	switch cfg.StoreBackend {
	case "redis":
		records = attendance.NewRedisStore(c.Redis.Client, cfg.RedisPrefix)
		postings = presence.NewRedisStore(c.Redis.Client, cfg.RedisPrefix)
	case "postgres":
		records = attendance.NewPostgresStore(c.DB.Client)
		postings = presence.NewPostgresStore(c.DB.Client)
	default:
		records = attendance.NewMemoryStore()
		postings = presence.NewMemoryStore()
	}

	dir, err := buildDirectory(cfg, c.DB, logger)
	if err != nil {
		return c, err
	}
	c.Directory = dir

	if cfg.QueueBackend == "redis" {
		c.Queue = queue.NewRedisQueue(c.Redis.Client, c.Redis.Key("changes"), logger)
	} else {
		c.Queue = queue.NewInMemory(256)
	}

	c.Ledger = attendance.NewLedger(records,
		attendance.WithLocation(cfg.Location()),
		attendance.WithMetrics(m),
		attendance.WithLogger(logger.Named("ledger")),
	)
	c.Aggregator = attendance.NewAggregator(c.Ledger, dir)
	c.Board = presence.NewBoard(postings, dir,
		presence.WithMetrics(m),
		presence.WithLogger(logger.Named("board")),
	)

	logger.Info("components ready",
		zap.String("store", cfg.StoreBackend),
		zap.String("queue", cfg.QueueBackend),
		zap.String("timezone", cfg.Location().String()),
	)
	return c, nil
}

func buildDirectory(cfg config.App, db *store.DB, logger *zap.Logger) (directory.Lookup, error) {
	switch {
	case cfg.DirectoryFile != "":
		dir, err := directory.LoadFile(cfg.DirectoryFile)
		if err != nil {
			return nil, err
		}
		return dir, nil
	case db != nil:
		return directory.NewPostgres(db.Client), nil
	default:
		logger.Warn("no directory configured, summaries will be empty")
		return directory.NewStatic(), nil
	}
}

// Healthy reports connectivity of each opened backend.
func (c *Components) Healthy(ctx context.Context) map[string]bool {
	out := make(map[string]bool, 2)
	if c.Redis != nil {
		out["redis"] = c.Redis.Healthy(ctx)
	}
	if c.DB != nil {
		out["db"] = c.DB.Healthy(ctx)
	}
	return out
}

// Close releases the backends.
func (c *Components) Close() error {
	if c == nil {
		return nil
	}
	return errors.Join(c.Redis.Close(), c.DB.Close())
}
