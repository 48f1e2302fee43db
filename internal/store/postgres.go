package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/zargar/internal/model"
)

// PG is the Postgres-backed Store.
type PG struct {
	db DB
}

func NewPG(db DB) *PG {
	return &PG{db: db}
}

// ---------- backup jobs ----------

const backupColumns = `job_id, name, backup_type, tenant_schema, status, file_path, file_size_bytes,
	storage_backends, progress_percentage, log_messages, error_message, created_by,
	started_at, completed_at, created_at, updated_at`

func scanBackupJob(row pgx.Row) (*model.BackupJob, error) {
	var j model.BackupJob
	err := row.Scan(&j.JobID, &j.Name, &j.BackupType, &j.TenantSchema, &j.Status, &j.FilePath, &j.FileSizeBytes,
		&j.StorageBackends, &j.ProgressPercentage, &j.LogMessages, &j.ErrorMessage, &j.CreatedBy,
		&j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if j.StorageBackends == nil {
		j.StorageBackends = []string{}
	}
	return &j, nil
}

func (s *PG) CreateBackupJob(ctx context.Context, j *model.BackupJob) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO backup_jobs (`+backupColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		j.JobID, j.Name, j.BackupType, j.TenantSchema, j.Status, j.FilePath, j.FileSizeBytes,
		j.StorageBackends, j.ProgressPercentage, j.LogMessages, j.ErrorMessage, j.CreatedBy,
		j.StartedAt, j.CompletedAt, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert backup job %s: %w", j.JobID, err)
	}
	return nil
}

func (s *PG) GetBackupJob(ctx context.Context, id string) (*model.BackupJob, error) {
	j, err := scanBackupJob(s.db.QueryRow(ctx, `SELECT `+backupColumns+` FROM backup_jobs WHERE job_id = $1`, id))
	if err != nil {
		return nil, notFound(fmt.Sprintf("get backup job %s", id), err)
	}
	return j, nil
}

func (s *PG) SaveBackupJob(ctx context.Context, j *model.BackupJob) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE backup_jobs SET status = $2, progress_percentage = $3, log_messages = $4, error_message = $5,
		 file_path = $6, file_size_bytes = $7, storage_backends = $8, started_at = $9, completed_at = $10, updated_at = $11
		 WHERE job_id = $1`,
		j.JobID, j.Status, j.ProgressPercentage, j.LogMessages, j.ErrorMessage,
		j.FilePath, j.FileSizeBytes, j.StorageBackends, j.StartedAt, j.CompletedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save backup job %s: %w", j.JobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("save backup job %s: %w", j.JobID, ErrNotFound)
	}
	return nil
}

func (s *PG) AppendBackupJobLog(ctx context.Context, id string, entry model.LogEntry) (bool, error) {
	return s.appendJobLog(ctx, "backup_jobs", id, entry)
}

func (s *PG) DeleteBackupJob(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM backup_jobs WHERE job_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete backup job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete backup job %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PG) ListBackupJobs(ctx context.Context, limit int) ([]model.BackupJob, error) {
	rows, err := s.db.Query(ctx, `SELECT `+backupColumns+` FROM backup_jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list backup jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.BackupJob
	for rows.Next() {
		j, err := scanBackupJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backup job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backup jobs: %w", err)
	}
	return jobs, nil
}

// ---------- restore jobs ----------

const restoreColumns = `job_id, restore_type, source_backup_id, source_snapshot_id, target_tenant_schema,
	confirmed_by_typing, status, progress_percentage, log_messages, error_message, created_by,
	started_at, completed_at, created_at, updated_at`

func scanRestoreJob(row pgx.Row) (*model.RestoreJob, error) {
	var j model.RestoreJob
	var sourceBackup *string
	err := row.Scan(&j.JobID, &j.RestoreType, &sourceBackup, &j.SourceSnapshotID, &j.TargetTenantSchema,
		&j.ConfirmedByTyping, &j.Status, &j.ProgressPercentage, &j.LogMessages, &j.ErrorMessage, &j.CreatedBy,
		&j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.SourceBackupID = deref(sourceBackup)
	return &j, nil
}

func (s *PG) CreateRestoreJob(ctx context.Context, j *model.RestoreJob) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO restore_jobs (`+restoreColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		j.JobID, j.RestoreType, nullable(j.SourceBackupID), j.SourceSnapshotID, j.TargetTenantSchema,
		j.ConfirmedByTyping, j.Status, j.ProgressPercentage, j.LogMessages, j.ErrorMessage, j.CreatedBy,
		j.StartedAt, j.CompletedAt, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert restore job %s: %w", j.JobID, err)
	}
	return nil
}

func (s *PG) GetRestoreJob(ctx context.Context, id string) (*model.RestoreJob, error) {
	j, err := scanRestoreJob(s.db.QueryRow(ctx, `SELECT `+restoreColumns+` FROM restore_jobs WHERE job_id = $1`, id))
	if err != nil {
		return nil, notFound(fmt.Sprintf("get restore job %s", id), err)
	}
	return j, nil
}

func (s *PG) SaveRestoreJob(ctx context.Context, j *model.RestoreJob) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE restore_jobs SET status = $2, progress_percentage = $3, log_messages = $4, error_message = $5,
		 started_at = $6, completed_at = $7, updated_at = $8
		 WHERE job_id = $1`,
		j.JobID, j.Status, j.ProgressPercentage, j.LogMessages, j.ErrorMessage,
		j.StartedAt, j.CompletedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save restore job %s: %w", j.JobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("save restore job %s: %w", j.JobID, ErrNotFound)
	}
	return nil
}

func (s *PG) AppendRestoreJobLog(ctx context.Context, id string, entry model.LogEntry) (bool, error) {
	return s.appendJobLog(ctx, "restore_jobs", id, entry)
}

// appendJobLog appends to log_messages only while the job is still active,
// so it never races a worker's progress or terminal write.
func (s *PG) appendJobLog(ctx context.Context, table, id string, entry model.LogEntry) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE `+table+` SET log_messages = log_messages || $2::jsonb, updated_at = $3
		 WHERE job_id = $1 AND status IN ('pending', 'running')`,
		id, model.JobLog{entry}, entry.Timestamp,
	)
	if err != nil {
		return false, fmt.Errorf("append log to %s %s: %w", table, id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PG) ListRestoreJobs(ctx context.Context, schema string, limit int) ([]model.RestoreJob, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+restoreColumns+` FROM restore_jobs
		 WHERE ($1 = '' OR target_tenant_schema = $1)
		 ORDER BY created_at DESC LIMIT $2`, schema, limit)
	if err != nil {
		return nil, fmt.Errorf("list restore jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.RestoreJob
	for rows.Next() {
		j, err := scanRestoreJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan restore job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate restore jobs: %w", err)
	}
	return jobs, nil
}

// ---------- snapshots ----------

const snapshotColumns = `snapshot_id, name, snapshot_type, tenant_schema, tenant_domain, operation_description,
	status, backup_job_id, error_message, expires_at, restored_at, restored_by, created_by, created_at, updated_at`

func scanSnapshot(row pgx.Row) (*model.TenantSnapshot, error) {
	var sn model.TenantSnapshot
	var backupJobID *string
	err := row.Scan(&sn.SnapshotID, &sn.Name, &sn.SnapshotType, &sn.TenantSchema, &sn.TenantDomain, &sn.OperationDescription,
		&sn.Status, &backupJobID, &sn.ErrorMessage, &sn.ExpiresAt, &sn.RestoredAt, &sn.RestoredBy, &sn.CreatedBy, &sn.CreatedAt, &sn.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sn.BackupJobID = deref(backupJobID)
	return &sn, nil
}

func (s *PG) CreateSnapshot(ctx context.Context, sn *model.TenantSnapshot) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO tenant_snapshots (`+snapshotColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		sn.SnapshotID, sn.Name, sn.SnapshotType, sn.TenantSchema, sn.TenantDomain, sn.OperationDescription,
		sn.Status, nullable(sn.BackupJobID), sn.ErrorMessage, sn.ExpiresAt, sn.RestoredAt, sn.RestoredBy, sn.CreatedBy, sn.CreatedAt, sn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot %s: %w", sn.SnapshotID, err)
	}
	return nil
}

func (s *PG) GetSnapshot(ctx context.Context, id string) (*model.TenantSnapshot, error) {
	sn, err := scanSnapshot(s.db.QueryRow(ctx, `SELECT `+snapshotColumns+` FROM tenant_snapshots WHERE snapshot_id = $1`, id))
	if err != nil {
		return nil, notFound(fmt.Sprintf("get snapshot %s", id), err)
	}
	return sn, nil
}

func (s *PG) SaveSnapshot(ctx context.Context, sn *model.TenantSnapshot) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE tenant_snapshots SET status = $2, backup_job_id = $3, error_message = $4,
		 restored_at = $5, restored_by = $6, updated_at = $7
		 WHERE snapshot_id = $1`,
		sn.SnapshotID, sn.Status, nullable(sn.BackupJobID), sn.ErrorMessage,
		sn.RestoredAt, sn.RestoredBy, sn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", sn.SnapshotID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("save snapshot %s: %w", sn.SnapshotID, ErrNotFound)
	}
	return nil
}

func (s *PG) FindRecentSnapshot(ctx context.Context, schema, snapshotType string, since, now time.Time) (*model.TenantSnapshot, error) {
	sn, err := scanSnapshot(s.db.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM tenant_snapshots
		 WHERE tenant_schema = $1 AND snapshot_type = $2 AND created_at >= $3 AND expires_at > $4
		   AND status IN ('pending', 'creating', 'completed')
		 ORDER BY created_at DESC LIMIT 1`,
		schema, snapshotType, since, now))
	if err != nil {
		return nil, notFound(fmt.Sprintf("find recent %s snapshot of %s", snapshotType, schema), err)
	}
	return sn, nil
}

func (s *PG) ListAvailableSnapshots(ctx context.Context, schema string, now time.Time, limit int) ([]model.TenantSnapshot, error) {
	return s.listSnapshots(ctx, "list available snapshots",
		`SELECT `+snapshotColumns+` FROM tenant_snapshots
		 WHERE status = 'completed' AND expires_at > $1 AND ($2 = '' OR tenant_schema = $2)
		 ORDER BY created_at DESC LIMIT $3`,
		now, schema, limit)
}

func (s *PG) ListExpiredSnapshots(ctx context.Context, now time.Time) ([]model.TenantSnapshot, error) {
	return s.listSnapshots(ctx, "list expired snapshots",
		`SELECT `+snapshotColumns+` FROM tenant_snapshots
		 WHERE expires_at < $1 AND status IN ('completed', 'failed')
		 ORDER BY expires_at`,
		now)
}

func (s *PG) listSnapshots(ctx context.Context, op, query string, args ...any) ([]model.TenantSnapshot, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var snaps []model.TenantSnapshot
	for rows.Next() {
		sn, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		snaps = append(snaps, *sn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return snaps, nil
}

// ---------- tenants ----------

func (s *PG) GetTenant(ctx context.Context, schema string) (*model.Tenant, error) {
	var t model.Tenant
	err := s.db.QueryRow(ctx,
		`SELECT schema_name, domain_url, name, is_active, created_at FROM tenants WHERE schema_name = $1`, schema,
	).Scan(&t.SchemaName, &t.DomainURL, &t.Name, &t.IsActive, &t.CreatedAt)
	if err != nil {
		return nil, notFound(fmt.Sprintf("get tenant %s", schema), err)
	}
	return &t, nil
}

func (s *PG) ListActiveTenants(ctx context.Context) ([]model.Tenant, error) {
	rows, err := s.db.Query(ctx,
		`SELECT schema_name, domain_url, name, is_active, created_at FROM tenants WHERE is_active ORDER BY schema_name`)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}
	defer rows.Close()

	var tenants []model.Tenant
	for rows.Next() {
		var t model.Tenant
		if err := rows.Scan(&t.SchemaName, &t.DomainURL, &t.Name, &t.IsActive, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenants: %w", err)
	}
	return tenants, nil
}

// notFound maps pgx.ErrNoRows to ErrNotFound, keeping other errors intact.
func notFound(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
