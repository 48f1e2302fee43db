package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/zargar/internal/metrics"
	"github.com/edvin/zargar/internal/model"
	"github.com/edvin/zargar/internal/store"
)

// Cleanup contains activities that retire expired snapshots.
type Cleanup struct {
	store  store.Store
	blobs  BlobStore
	logger zerolog.Logger
	now    func() time.Time
}

// NewCleanup creates a new Cleanup activity struct.
func NewCleanup(s store.Store, blobs BlobStore, logger zerolog.Logger) *Cleanup {
	return &Cleanup{
		store:  s,
		blobs:  blobs,
		logger: logger.With().Str("component", "cleanup").Logger(),
		now:    time.Now,
	}
}

// DeleteExpiredSnapshot removes the archive of an expired snapshot from every
// backend, deletes its backup job row and marks the snapshot deleted. When
// the archive cannot be removed the rows are left untouched so the next
// sweep retries.
func (a *Cleanup) DeleteExpiredSnapshot(ctx context.Context, snapshotID string) (*DeleteSnapshotResult, error) {
	snap, err := a.store.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, nonRetryable(fmt.Errorf("get snapshot %s: %w", snapshotID, err))
	}
	result := &DeleteSnapshotResult{DeletedFrom: []string{}}
	if snap.Status == model.SnapshotStatusDeleted {
		return result, nil
	}
	logger := a.logger.With().Str("snapshot_id", snap.SnapshotID).Str("schema", snap.TenantSchema).Logger()

	if snap.BackupJobID != "" {
		job, err := a.store.GetBackupJob(ctx, snap.BackupJobID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			logger.Debug().Str("job_id", snap.BackupJobID).Msg("backup job already gone")
		case err != nil:
			return nil, fmt.Errorf("get backup job %s: %w", snap.BackupJobID, err)
		default:
			if job.FilePath != "" {
				res := a.blobs.DeleteBackupFile(ctx, job.FilePath, true)
				if !res.Success {
					return nil, fmt.Errorf("delete %s: %w", job.FilePath, res.Err())
				}
				result.BlobDeleted = true
				result.DeletedFrom = res.DeletedFrom
			}
			if err := a.store.DeleteBackupJob(ctx, job.JobID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("delete backup job %s: %w", job.JobID, err)
			}
		}
		snap.BackupJobID = ""
	}

	snap.MarkDeleted(a.now())
	if err := a.store.SaveSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("mark snapshot %s deleted: %w", snap.SnapshotID, err)
	}
	logger.Info().Bool("blob_deleted", result.BlobDeleted).Msg("expired snapshot deleted")
	return result, nil
}

// RecordCleanupResult publishes the totals of a finished sweep.
func (a *Cleanup) RecordCleanupResult(_ context.Context, result CleanupResult) error {
	metrics.ObserveCleanup(result.DeletedSuccessfully, result.DeletionErrors)
	a.logger.Info().
		Int("total_expired", result.TotalExpired).
		Int("deleted", result.DeletedSuccessfully).
		Int("errors", result.DeletionErrors).
		Msg("snapshot cleanup finished")
	return nil
}
