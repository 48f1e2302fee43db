package activity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"go.temporal.io/sdk/temporal"

	"github.com/edvin/zargar/internal/metrics"
	"github.com/edvin/zargar/internal/model"
	"github.com/edvin/zargar/internal/pgexec"
	"github.com/edvin/zargar/internal/store"
)

// RestoreExecutor runs the destructive schema operations of a restore.
// *pgexec.Executor satisfies it.
type RestoreExecutor interface {
	StageFile(blob []byte) (string, error)
	DropSchema(ctx context.Context, name string) error
	RestoreFile(ctx context.Context, path string, opts pgexec.RestoreOptions) error
	VerifySchema(ctx context.Context, name string) (int, error)
}

// SchemaLocker serializes restores of the same schema across workers.
// *db.SchemaLocker satisfies it.
type SchemaLocker interface {
	TryLock(ctx context.Context, schema string) (func(), error)
}

// Restore contains the activity that replaces a tenant schema with the
// contents of a backup archive.
type Restore struct {
	store           store.Store
	backup          *Backup
	executor        RestoreExecutor
	locker          SchemaLocker
	safetyRetention time.Duration
	logger          zerolog.Logger
	now             func() time.Time
}

// NewRestore creates a new Restore activity struct. backup provides the
// storage access and the safety snapshot taken before the schema is dropped.
func NewRestore(s store.Store, backup *Backup, executor RestoreExecutor, locker SchemaLocker, safetyRetention time.Duration, logger zerolog.Logger) *Restore {
	return &Restore{
		store:           s,
		backup:          backup,
		executor:        executor,
		locker:          locker,
		safetyRetention: safetyRetention,
		logger:          logger.With().Str("component", "restore").Logger(),
		now:             time.Now,
	}
}

// RestoreTenantSchema runs the whole restore of one tenant schema on this
// worker: fetch and stage the archive, take a safety snapshot, lock the
// schema, drop it, pg_restore into it and verify the result. The job must
// already be running; completion is recorded by the caller. The staged file
// and the lock are always released.
func (a *Restore) RestoreTenantSchema(ctx context.Context, restoreJobID string) (*RestoreResult, error) {
	job, err := a.store.GetRestoreJob(ctx, restoreJobID)
	if err != nil {
		return nil, nonRetryable(fmt.Errorf("get restore job %s: %w", restoreJobID, err))
	}
	if job.Status != model.JobStatusRunning {
		return nil, nonRetryable(fmt.Errorf("restore job %s is %s: %w", restoreJobID, job.Status, model.ErrInvalidTransition))
	}
	schema := job.TargetTenantSchema
	logger := a.logger.With().Str("job_id", job.JobID).Str("schema", schema).Str("restore_type", job.RestoreType).Logger()

	tenant, err := a.store.GetTenant(ctx, schema)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, permanent(fmt.Sprintf("Tenant %s does not exist", schema), err)
		}
		return nil, fmt.Errorf("get tenant %s: %w", schema, err)
	}
	a.progress(ctx, job, 5, fmt.Sprintf("Target tenant %s validated", schema))

	source, err := a.store.GetBackupJob(ctx, job.SourceBackupID)
	if err != nil {
		return nil, nonRetryable(fmt.Errorf("get source backup %s: %w", job.SourceBackupID, err))
	}
	heartbeat(ctx, "download")
	blob, err := a.backup.blobs.DownloadBackupFile(ctx, source.FilePath)
	if err != nil {
		return nil, permanent(fmt.Sprintf("Failed to download backup file %s", source.FilePath), err)
	}
	a.progress(ctx, job, 10, fmt.Sprintf("Downloaded backup archive (%s)", humanize.Bytes(uint64(len(blob)))))

	path, err := a.executor.StageFile(blob)
	if err != nil {
		return nil, fmt.Errorf("stage backup archive: %w", err)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", path).Msg("remove staged archive")
		}
	}()
	a.progress(ctx, job, 25, "Backup archive staged")

	result := &RestoreResult{}
	if !job.IsSnapshotRestore() {
		heartbeat(ctx, "safety-snapshot")
		id, err := a.backup.takeSnapshot(ctx, tenant,
			fmt.Sprintf("Safety snapshot before restore %s", job.JobID), job.CreatedBy, a.safetyRetention)
		if err != nil {
			metrics.SafetySnapshotFailed()
			logger.Warn().Err(err).Msg("safety snapshot failed, continuing restore")
			a.warn(ctx, job, fmt.Sprintf("Safety snapshot failed, continuing without it: %v", err))
		} else {
			result.SafetySnapshotID = id
			a.progress(ctx, job, 35, fmt.Sprintf("Safety snapshot %s created", id))
		}
	}
	a.progress(ctx, job, 35, "")

	release, err := a.locker.TryLock(ctx, schema)
	if err != nil {
		return nil, permanent(fmt.Sprintf("A restore of %s is already running", schema), err)
	}
	defer release()
	a.progress(ctx, job, 50, "Acquired restore lock")

	heartbeat(ctx, "drop")
	if err := a.executor.DropSchema(ctx, schema); err != nil {
		return nil, permanent(fmt.Sprintf("Failed to drop schema %s", schema), err)
	}
	a.progress(ctx, job, 60, fmt.Sprintf("Schema %s dropped", schema))

	a.progress(ctx, job, 70, "Restoring schema from backup")
	stop := keepAlive(ctx, "restore")
	err = a.executor.RestoreFile(ctx, path, pgexec.RestoreOptions{Schema: schema})
	stop()
	if err != nil {
		return nil, permanent(fmt.Sprintf("Failed to restore schema %s", schema), err)
	}
	a.progress(ctx, job, 80, "pg_restore finished")

	tables, err := a.executor.VerifySchema(ctx, schema)
	if err != nil {
		return nil, permanent(fmt.Sprintf("Verification of schema %s failed", schema), err)
	}
	result.TablesRestored = tables
	a.progress(ctx, job, 90, fmt.Sprintf("Verified %d tables in %s", tables, schema))
	a.progress(ctx, job, 95, "Finalizing restore")

	logger.Info().Int("tables", tables).Str("safety_snapshot_id", result.SafetySnapshotID).Msg("tenant schema restored")
	return result, nil
}

// permanent returns a non-retryable error whose message is suitable for the
// job's error_message. Cancellation is passed through untouched so the
// workflow can tell it apart from a failure.
func permanent(msg string, cause error) error {
	if errors.Is(cause, context.Canceled) {
		return cause
	}
	return temporal.NewNonRetryableApplicationError(fmt.Sprintf("%s: %v", msg, cause), "RestoreError", cause)
}

func (a *Restore) progress(ctx context.Context, job *model.RestoreJob, pct int, msg string) {
	if err := job.UpdateProgress(a.now(), pct, msg); err != nil {
		a.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("update restore progress")
		return
	}
	a.save(ctx, job)
}

func (a *Restore) warn(ctx context.Context, job *model.RestoreJob, msg string) {
	job.AddLog(a.now(), model.LogLevelWarning, msg)
	a.save(ctx, job)
}

func (a *Restore) save(ctx context.Context, job *model.RestoreJob) {
	if err := a.store.SaveRestoreJob(ctx, job); err != nil {
		a.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("save restore progress")
	}
	heartbeat(ctx, job.ProgressPercentage)
}
