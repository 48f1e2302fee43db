// Package store persists backup jobs, restore jobs, tenant snapshots and the
// read-only tenant directory in the shared schema.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/edvin/zargar/internal/model"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// DB defines the database operations used by the Postgres store.
// *pgxpool.Pool satisfies this interface.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is implemented by PG and by the in-memory Memory store.
// Every Save persists the full job state so pollers see each transition.
type Store interface {
	CreateBackupJob(ctx context.Context, job *model.BackupJob) error
	GetBackupJob(ctx context.Context, id string) (*model.BackupJob, error)
	SaveBackupJob(ctx context.Context, job *model.BackupJob) error
	// AppendBackupJobLog adds entry to a pending or running job without
	// touching any other column. It reports false when the job has already
	// reached a terminal status and nothing was written.
	AppendBackupJobLog(ctx context.Context, id string, entry model.LogEntry) (bool, error)
	DeleteBackupJob(ctx context.Context, id string) error
	ListBackupJobs(ctx context.Context, limit int) ([]model.BackupJob, error)

	CreateRestoreJob(ctx context.Context, job *model.RestoreJob) error
	GetRestoreJob(ctx context.Context, id string) (*model.RestoreJob, error)
	SaveRestoreJob(ctx context.Context, job *model.RestoreJob) error
	AppendRestoreJobLog(ctx context.Context, id string, entry model.LogEntry) (bool, error)
	// ListRestoreJobs returns the newest jobs first. An empty schema lists
	// every tenant.
	ListRestoreJobs(ctx context.Context, schema string, limit int) ([]model.RestoreJob, error)

	CreateSnapshot(ctx context.Context, snap *model.TenantSnapshot) error
	GetSnapshot(ctx context.Context, id string) (*model.TenantSnapshot, error)
	SaveSnapshot(ctx context.Context, snap *model.TenantSnapshot) error
	// FindRecentSnapshot returns the newest reusable snapshot of the given
	// type created at or after since, or ErrNotFound.
	FindRecentSnapshot(ctx context.Context, schema, snapshotType string, since, now time.Time) (*model.TenantSnapshot, error)
	// ListAvailableSnapshots returns completed, unexpired snapshots, newest
	// first. An empty schema lists every tenant.
	ListAvailableSnapshots(ctx context.Context, schema string, now time.Time, limit int) ([]model.TenantSnapshot, error)
	// ListExpiredSnapshots returns completed or failed snapshots whose
	// expires_at is before now.
	ListExpiredSnapshots(ctx context.Context, now time.Time) ([]model.TenantSnapshot, error)

	GetTenant(ctx context.Context, schema string) (*model.Tenant, error)
	ListActiveTenants(ctx context.Context) ([]model.Tenant, error)
}

var (
	_ Store = (*PG)(nil)
	_ Store = (*Memory)(nil)
)

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
