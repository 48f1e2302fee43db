package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSchemaLocked is returned when another session holds the restore lock
// for the schema.
var ErrSchemaLocked = errors.New("schema is locked by another restore")

// SchemaLocker serializes destructive work on a tenant schema across workers
// using session-level Postgres advisory locks.
type SchemaLocker struct {
	pool *pgxpool.Pool
}

func NewSchemaLocker(pool *pgxpool.Pool) *SchemaLocker {
	return &SchemaLocker{pool: pool}
}

// TryLock takes the lock without waiting. The returned release func unlocks
// and returns the pinned connection to the pool; it must always be called.
func (l *SchemaLocker) TryLock(ctx context.Context, schema string) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}

	key := lockKey(schema)
	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock(hashtext($1))", key).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire restore lock for %s: %w", schema, err)
	}
	if !locked {
		conn.Release()
		return nil, fmt.Errorf("%s: %w", schema, ErrSchemaLocked)
	}

	return func() {
		// The restore's ctx may already be cancelled here.
		_, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock(hashtext($1))", key)
		if err != nil {
			// A connection that still holds the lock must not go back to the pool.
			conn.Conn().Close(context.Background())
		}
		conn.Release()
	}, nil
}

func lockKey(schema string) string {
	return "tenant-restore:" + schema
}
