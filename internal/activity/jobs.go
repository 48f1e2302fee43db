package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/zargar/internal/metrics"
	"github.com/edvin/zargar/internal/model"
	"github.com/edvin/zargar/internal/platform"
	"github.com/edvin/zargar/internal/store"
)

// JobStore contains activities that read and advance the persisted state of
// backup jobs, restore jobs and tenant snapshots. Every transition is saved
// immediately so pollers observe it.
type JobStore struct {
	store     store.Store
	logger    zerolog.Logger
	retention map[string]time.Duration
	now       func() time.Time
	newID     func() string
}

// NewJobStore creates a new JobStore activity struct. retention overrides the
// default lifetime per snapshot type.
func NewJobStore(s store.Store, retention map[string]time.Duration, logger zerolog.Logger) *JobStore {
	return &JobStore{
		store:     s,
		logger:    logger.With().Str("component", "job-store").Logger(),
		retention: retention,
		now:       time.Now,
		newID:     platform.NewID,
	}
}

// ---------- backup jobs ----------

// GetBackupJob retrieves a backup job by its ID.
func (a *JobStore) GetBackupJob(ctx context.Context, id string) (*model.BackupJob, error) {
	job, err := a.store.GetBackupJob(ctx, id)
	if err != nil {
		return nil, nonRetryable(fmt.Errorf("get backup job %s: %w", id, err))
	}
	return job, nil
}

// MarkBackupRunning moves a backup job to running.
func (a *JobStore) MarkBackupRunning(ctx context.Context, id string) error {
	return a.updateBackup(ctx, id, func(job *model.BackupJob, now time.Time) error {
		return job.MarkAsRunning(now)
	})
}

// UpdateBackupProgress records forward progress on a running backup job.
func (a *JobStore) UpdateBackupProgress(ctx context.Context, params ProgressParams) error {
	return a.updateBackup(ctx, params.ID, func(job *model.BackupJob, now time.Time) error {
		return job.UpdateProgress(now, params.Percentage, params.Message)
	})
}

// CompleteBackupJob records where the backup blob was stored.
func (a *JobStore) CompleteBackupJob(ctx context.Context, params CompleteBackupParams) error {
	var finished *model.BackupJob
	err := a.updateBackup(ctx, params.ID, func(job *model.BackupJob, now time.Time) error {
		if job.Status == model.JobStatusCompleted && job.FilePath == params.FilePath {
			return errAlreadyDone
		}
		if err := job.MarkAsCompleted(now, params.FilePath, params.SizeBytes, params.Backends); err != nil {
			return err
		}
		finished = job
		return nil
	})
	if err != nil || finished == nil {
		return err
	}
	metrics.ObserveJob(metrics.KindBackup, finished.Status, finished.Duration())
	metrics.ObserveBackupSize(finished.FileSizeBytes)
	return nil
}

// FailBackupJob marks a backup job failed with the given message.
func (a *JobStore) FailBackupJob(ctx context.Context, params JobMessageParams) error {
	return a.finishBackup(ctx, params.ID, model.JobStatusFailed, func(job *model.BackupJob, now time.Time) error {
		return job.MarkAsFailed(now, params.Message)
	})
}

// CancelBackupJob marks a backup job cancelled.
func (a *JobStore) CancelBackupJob(ctx context.Context, params JobMessageParams) error {
	return a.finishBackup(ctx, params.ID, model.JobStatusCancelled, func(job *model.BackupJob, now time.Time) error {
		return job.MarkCancelled(now, params.Message)
	})
}

// ---------- restore jobs ----------

// GetRestoreJob retrieves a restore job by its ID.
func (a *JobStore) GetRestoreJob(ctx context.Context, id string) (*model.RestoreJob, error) {
	job, err := a.store.GetRestoreJob(ctx, id)
	if err != nil {
		return nil, nonRetryable(fmt.Errorf("get restore job %s: %w", id, err))
	}
	return job, nil
}

// MarkRestoreRunning moves a restore job to running.
func (a *JobStore) MarkRestoreRunning(ctx context.Context, id string) error {
	return a.updateRestore(ctx, id, func(job *model.RestoreJob, now time.Time) error {
		return job.MarkAsRunning(now)
	})
}

// UpdateRestoreProgress records forward progress on a running restore job.
func (a *JobStore) UpdateRestoreProgress(ctx context.Context, params ProgressParams) error {
	return a.updateRestore(ctx, params.ID, func(job *model.RestoreJob, now time.Time) error {
		return job.UpdateProgress(now, params.Percentage, params.Message)
	})
}

// CompleteRestoreJob finishes a restore job. For snapshot restores the source
// snapshot is stamped with the restoring actor.
func (a *JobStore) CompleteRestoreJob(ctx context.Context, id string) error {
	var finished *model.RestoreJob
	err := a.updateRestore(ctx, id, func(job *model.RestoreJob, now time.Time) error {
		if job.Status == model.JobStatusCompleted {
			return errAlreadyDone
		}
		if err := job.MarkAsCompleted(now); err != nil {
			return err
		}
		finished = job
		return nil
	})
	if err != nil || finished == nil {
		return err
	}
	metrics.ObserveJob(metrics.KindRestore, finished.Status, finished.Duration())

	if finished.IsSnapshotRestore() && finished.SourceSnapshotID != nil {
		snap, err := a.store.GetSnapshot(ctx, *finished.SourceSnapshotID)
		if err != nil {
			// The restore itself succeeded; the audit stamp is best effort.
			a.logger.Warn().Err(err).Str("snapshot_id", *finished.SourceSnapshotID).Msg("load restored snapshot")
			return nil
		}
		snap.MarkRestored(a.now(), finished.CreatedBy)
		if err := a.store.SaveSnapshot(ctx, snap); err != nil {
			a.logger.Warn().Err(err).Str("snapshot_id", snap.SnapshotID).Msg("mark snapshot restored")
		}
	}
	return nil
}

// FailRestoreJob marks a restore job failed with the given message.
func (a *JobStore) FailRestoreJob(ctx context.Context, params JobMessageParams) error {
	return a.finishRestore(ctx, params.ID, model.JobStatusFailed, func(job *model.RestoreJob, now time.Time) error {
		return job.MarkAsFailed(now, params.Message)
	})
}

// CancelRestoreJob marks a restore job cancelled.
func (a *JobStore) CancelRestoreJob(ctx context.Context, params JobMessageParams) error {
	return a.finishRestore(ctx, params.ID, model.JobStatusCancelled, func(job *model.RestoreJob, now time.Time) error {
		return job.MarkCancelled(now, params.Message)
	})
}

// ---------- snapshots ----------

// GetSnapshot retrieves a tenant snapshot by its ID.
func (a *JobStore) GetSnapshot(ctx context.Context, id string) (*model.TenantSnapshot, error) {
	snap, err := a.store.GetSnapshot(ctx, id)
	if err != nil {
		return nil, nonRetryable(fmt.Errorf("get snapshot %s: %w", id, err))
	}
	return snap, nil
}

// MarkSnapshotCreating moves a snapshot to creating.
func (a *JobStore) MarkSnapshotCreating(ctx context.Context, id string) error {
	return a.updateSnapshot(ctx, id, func(snap *model.TenantSnapshot, now time.Time) error {
		return snap.MarkCreating(now)
	})
}

// CompleteSnapshot marks a snapshot completed.
func (a *JobStore) CompleteSnapshot(ctx context.Context, id string) error {
	err := a.updateSnapshot(ctx, id, func(snap *model.TenantSnapshot, now time.Time) error {
		return snap.MarkCompleted(now)
	})
	if err == nil {
		metrics.ObserveJob(metrics.KindSnapshot, model.SnapshotStatusCompleted, 0)
	}
	return err
}

// FailSnapshot marks a snapshot failed with the given message.
func (a *JobStore) FailSnapshot(ctx context.Context, params JobMessageParams) error {
	err := a.updateSnapshot(ctx, params.ID, func(snap *model.TenantSnapshot, now time.Time) error {
		return snap.MarkFailed(now, params.Message)
	})
	if err == nil {
		metrics.ObserveJob(metrics.KindSnapshot, model.SnapshotStatusFailed, 0)
	}
	return err
}

// ListExpiredSnapshots returns completed or failed snapshots past their
// expiry time.
func (a *JobStore) ListExpiredSnapshots(ctx context.Context) ([]model.TenantSnapshot, error) {
	snaps, err := a.store.ListExpiredSnapshots(ctx, a.now())
	if err != nil {
		return nil, fmt.Errorf("list expired snapshots: %w", err)
	}
	return snaps, nil
}

// ListActiveTenants returns every active tenant.
func (a *JobStore) ListActiveTenants(ctx context.Context) ([]model.Tenant, error) {
	tenants, err := a.store.ListActiveTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}
	return tenants, nil
}

// CreateScheduledSnapshot inserts the rows of a scheduled snapshot for the
// given tenant and returns the snapshot ID.
func (a *JobStore) CreateScheduledSnapshot(ctx context.Context, schema string) (string, error) {
	tenant, err := a.store.GetTenant(ctx, schema)
	if err != nil {
		return "", nonRetryable(fmt.Errorf("get tenant %s: %w", schema, err))
	}
	now := a.now()
	job, snap, err := model.NewSnapshotWithJob(a.newID(), a.newID(), model.SnapshotTypeScheduled, tenant,
		"Scheduled snapshot", "system:scheduler", a.retention[model.SnapshotTypeScheduled], now)
	if err != nil {
		return "", nonRetryable(err)
	}
	if err := store.CreateSnapshotRecords(ctx, a.store, job, snap); err != nil {
		return "", fmt.Errorf("create scheduled snapshot for %s: %w", schema, err)
	}
	return snap.SnapshotID, nil
}

// errAlreadyDone short-circuits an update whose target state was already
// reached by an earlier attempt.
var errAlreadyDone = errors.New("already in target state")

func (a *JobStore) updateBackup(ctx context.Context, id string, fn func(*model.BackupJob, time.Time) error) error {
	job, err := a.store.GetBackupJob(ctx, id)
	if err != nil {
		return nonRetryable(fmt.Errorf("get backup job %s: %w", id, err))
	}
	if err := fn(job, a.now()); err != nil {
		if errors.Is(err, errAlreadyDone) {
			return nil
		}
		return nonRetryable(fmt.Errorf("backup job %s: %w", id, err))
	}
	if err := a.store.SaveBackupJob(ctx, job); err != nil {
		return fmt.Errorf("save backup job %s: %w", id, err)
	}
	return nil
}

func (a *JobStore) finishBackup(ctx context.Context, id, status string, fn func(*model.BackupJob, time.Time) error) error {
	var finished *model.BackupJob
	err := a.updateBackup(ctx, id, func(job *model.BackupJob, now time.Time) error {
		if job.Status == status {
			return errAlreadyDone
		}
		if err := fn(job, now); err != nil {
			return err
		}
		finished = job
		return nil
	})
	if err != nil || finished == nil {
		return err
	}
	metrics.ObserveJob(metrics.KindBackup, status, finished.Duration())
	a.logger.Warn().Str("job_id", id).Str("status", status).Str("error", finished.ErrorMessage).Msg("backup job finished unsuccessfully")
	return nil
}

func (a *JobStore) updateRestore(ctx context.Context, id string, fn func(*model.RestoreJob, time.Time) error) error {
	job, err := a.store.GetRestoreJob(ctx, id)
	if err != nil {
		return nonRetryable(fmt.Errorf("get restore job %s: %w", id, err))
	}
	if err := fn(job, a.now()); err != nil {
		if errors.Is(err, errAlreadyDone) {
			return nil
		}
		return nonRetryable(fmt.Errorf("restore job %s: %w", id, err))
	}
	if err := a.store.SaveRestoreJob(ctx, job); err != nil {
		return fmt.Errorf("save restore job %s: %w", id, err)
	}
	return nil
}

func (a *JobStore) finishRestore(ctx context.Context, id, status string, fn func(*model.RestoreJob, time.Time) error) error {
	var finished *model.RestoreJob
	err := a.updateRestore(ctx, id, func(job *model.RestoreJob, now time.Time) error {
		if job.Status == status {
			return errAlreadyDone
		}
		if err := fn(job, now); err != nil {
			return err
		}
		finished = job
		return nil
	})
	if err != nil || finished == nil {
		return err
	}
	metrics.ObserveJob(metrics.KindRestore, status, finished.Duration())
	a.logger.Warn().Str("job_id", id).Str("status", status).Str("target_schema", finished.TargetTenantSchema).
		Str("error", finished.ErrorMessage).Msg("restore job finished unsuccessfully")
	return nil
}

func (a *JobStore) updateSnapshot(ctx context.Context, id string, fn func(*model.TenantSnapshot, time.Time) error) error {
	snap, err := a.store.GetSnapshot(ctx, id)
	if err != nil {
		return nonRetryable(fmt.Errorf("get snapshot %s: %w", id, err))
	}
	if err := fn(snap, a.now()); err != nil {
		return nonRetryable(err)
	}
	if err := a.store.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot %s: %w", id, err)
	}
	return nil
}
