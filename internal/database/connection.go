package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/sentinel/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the host application's database as seen by the health probe. The
// service keeps no tables of its own; the pool stays small.
type DB struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewConnection(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Startup continues when the database is down; the probe reports it
	if err := pool.Ping(connectCtx); err != nil {
		logger.Warn("database not reachable at startup", slog.Any("error", err))
	} else {
		logger.Info("database connection established",
			slog.Int("max_conns", int(cfg.MaxConns)),
			slog.Int("min_conns", int(cfg.MinConns)),
		)
	}

	return &DB{Pool: pool, logger: logger}, nil
}

func (db *DB) Close() {
	db.logger.Info("closing database connection pool")
	db.Pool.Close()
}

// Ping checks connectivity with a round trip; the caller's deadline applies
func (db *DB) Ping(ctx context.Context) error {
	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// PoolStats reports acquired, idle and maximum pool connections
func (db *DB) PoolStats() (acquired, idle, maxConns int32) {
	s := db.Pool.Stat()
	return s.AcquiredConns(), s.IdleConns(), s.MaxConns()
}
