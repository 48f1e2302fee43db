package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewCorePool connects to the database holding the job and snapshot tables.
func NewCorePool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	return newPool(ctx, "core", databaseURL, 0)
}

// NewTargetPool connects to the database whose tenant schemas are backed up.
// Each in-flight restore pins one connection for its advisory lock, so the
// pool keeps a few spare.
func NewTargetPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	return newPool(ctx, "target", databaseURL, 8)
}

func newPool(ctx context.Context, name, databaseURL string, minMaxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s db config: %w", name, err)
	}
	if cfg.MaxConns < minMaxConns {
		cfg.MaxConns = minMaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s db pool: %w", name, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping %s db: %w", name, err)
	}

	return pool, nil
}
