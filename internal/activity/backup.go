package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/edvin/zargar/internal/metrics"
	"github.com/edvin/zargar/internal/model"
	"github.com/edvin/zargar/internal/pgexec"
	"github.com/edvin/zargar/internal/platform"
	"github.com/edvin/zargar/internal/storage"
	"github.com/edvin/zargar/internal/store"
)

// Dumper produces pg_dump archives. *pgexec.Executor satisfies it.
type Dumper interface {
	Dump(ctx context.Context, opts pgexec.DumpOptions) ([]byte, error)
	DumpTimeout(backupType string) time.Duration
}

// BlobStore is the redundant storage used for backup archives.
// *storage.Manager satisfies it.
type BlobStore interface {
	UploadBackupFile(ctx context.Context, path string, content []byte, useRedundant bool) storage.UploadResult
	DownloadBackupFile(ctx context.Context, path string) ([]byte, error)
	DeleteBackupFile(ctx context.Context, path string, fromAllBackends bool) storage.DeleteResult
}

// configurationSchema holds the shared tables captured by configuration
// backups.
const configurationSchema = "public"

// Backup contains activities that dump a database or schema and upload the
// archive to storage.
type Backup struct {
	store  store.Store
	dumper Dumper
	blobs  BlobStore
	logger zerolog.Logger
	now    func() time.Time
	newID  func() string
}

// NewBackup creates a new Backup activity struct.
func NewBackup(s store.Store, dumper Dumper, blobs BlobStore, logger zerolog.Logger) *Backup {
	return &Backup{
		store:  s,
		dumper: dumper,
		blobs:  blobs,
		logger: logger.With().Str("component", "backup").Logger(),
		now:    time.Now,
		newID:  platform.NewID,
	}
}

// RunBackupDump dumps the data selected by the job's backup type, uploads it
// to every storage backend and returns where it landed. The job must be
// running; completion is recorded by the caller.
func (a *Backup) RunBackupDump(ctx context.Context, jobID string) (*BackupResult, error) {
	job, err := a.store.GetBackupJob(ctx, jobID)
	if err != nil {
		return nil, nonRetryable(fmt.Errorf("get backup job %s: %w", jobID, err))
	}
	if job.Status != model.JobStatusRunning {
		return nil, nonRetryable(fmt.Errorf("backup job %s is %s: %w", jobID, job.Status, model.ErrInvalidTransition))
	}
	return a.dumpAndUpload(ctx, job)
}

func (a *Backup) dumpAndUpload(ctx context.Context, job *model.BackupJob) (*BackupResult, error) {
	logger := a.logger.With().Str("job_id", job.JobID).Str("backup_type", job.BackupType).Logger()

	opts := pgexec.DumpOptions{Timeout: a.dumper.DumpTimeout(job.BackupType)}
	switch job.BackupType {
	case model.BackupTypeTenantOnly:
		opts.Schema = job.Schema()
	case model.BackupTypeConfiguration:
		opts.Schema = configurationSchema
	}

	heartbeat(ctx, "dump")
	stop := keepAlive(ctx, "dump")
	data, err := a.dumper.Dump(ctx, opts)
	stop()
	if err != nil {
		return nil, fmt.Errorf("dump %s: %w", describeDump(opts.Schema), err)
	}
	logger.Info().Str("size", humanize.Bytes(uint64(len(data)))).Msg("database dump created")
	a.progress(ctx, job, 50, fmt.Sprintf("Database dump created (%s)", humanize.Bytes(uint64(len(data)))))

	key := backupKey(job)
	heartbeat(ctx, "upload")
	stop = keepAlive(ctx, "upload")
	result := a.blobs.UploadBackupFile(ctx, key, data, true)
	stop()
	if !result.Success {
		return nil, fmt.Errorf("upload %s: %w", key, result.Err())
	}
	if len(result.Errors) > 0 {
		logger.Warn().Err(result.Err()).Strs("uploaded_to", result.UploadedTo).Msg("backup stored on a subset of backends")
	}
	a.progress(ctx, job, 80, fmt.Sprintf("Uploaded to %d storage backend(s)", len(result.UploadedTo)))

	return &BackupResult{
		FilePath:  key,
		SizeBytes: int64(len(data)),
		Backends:  result.UploadedTo,
	}, nil
}

// takeSnapshot synchronously creates a completed pre-operation snapshot of
// the tenant, including its backup job, and returns the snapshot ID.
func (a *Backup) takeSnapshot(ctx context.Context, tenant *model.Tenant, description, actor string, retention time.Duration) (string, error) {
	job, snap, err := model.NewSnapshotWithJob(a.newID(), a.newID(), model.SnapshotTypePreOperation, tenant,
		description, actor, retention, a.now())
	if err != nil {
		return "", err
	}
	if err := store.CreateSnapshotRecords(ctx, a.store, job, snap); err != nil {
		return "", fmt.Errorf("create snapshot records: %w", err)
	}

	fail := func(cause error) (string, error) {
		now := a.now()
		_ = job.MarkAsFailed(now, cause.Error())
		if err := a.store.SaveBackupJob(ctx, job); err != nil {
			a.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("save failed snapshot job")
		}
		if err := snap.MarkFailed(now, cause.Error()); err == nil {
			if err := a.store.SaveSnapshot(ctx, snap); err != nil {
				a.logger.Warn().Err(err).Str("snapshot_id", snap.SnapshotID).Msg("save failed snapshot")
			}
		}
		metrics.ObserveJob(metrics.KindSnapshot, model.SnapshotStatusFailed, 0)
		return "", cause
	}

	now := a.now()
	if err := snap.MarkCreating(now); err != nil {
		return fail(err)
	}
	if err := job.MarkAsRunning(now); err != nil {
		return fail(err)
	}
	if err := a.store.SaveSnapshot(ctx, snap); err != nil {
		return fail(err)
	}
	if err := a.store.SaveBackupJob(ctx, job); err != nil {
		return fail(err)
	}

	result, err := a.dumpAndUpload(ctx, job)
	if err != nil {
		return fail(err)
	}

	now = a.now()
	if err := job.MarkAsCompleted(now, result.FilePath, result.SizeBytes, result.Backends); err != nil {
		return fail(err)
	}
	if err := a.store.SaveBackupJob(ctx, job); err != nil {
		return fail(err)
	}
	if err := snap.MarkCompleted(now); err != nil {
		return fail(err)
	}
	if err := a.store.SaveSnapshot(ctx, snap); err != nil {
		return fail(err)
	}
	metrics.ObserveJob(metrics.KindBackup, job.Status, job.Duration())
	metrics.ObserveJob(metrics.KindSnapshot, model.SnapshotStatusCompleted, 0)
	return snap.SnapshotID, nil
}

// progress persists a progress step. Failing to record progress never fails
// the backup itself.
func (a *Backup) progress(ctx context.Context, job *model.BackupJob, pct int, msg string) {
	if err := job.UpdateProgress(a.now(), pct, msg); err != nil {
		a.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("update backup progress")
		return
	}
	if err := a.store.SaveBackupJob(ctx, job); err != nil {
		a.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("save backup progress")
	}
}

// backupKey is the storage path of a job's archive.
func backupKey(job *model.BackupJob) string {
	scope := "all"
	switch job.BackupType {
	case model.BackupTypeTenantOnly:
		scope = job.Schema()
	case model.BackupTypeConfiguration:
		scope = configurationSchema
	}
	return fmt.Sprintf("backups/%s/%s/%s/%s.dump",
		job.BackupType, scope, job.CreatedAt.UTC().Format("2006/01/02"), job.JobID)
}

func describeDump(schema string) string {
	if schema == "" {
		return "database"
	}
	return "schema " + schema
}
