package store

import (
	"context"
	"fmt"

	"github.com/edvin/zargar/internal/model"
)

// CreateSnapshotRecords inserts a snapshot's backup job and then the
// snapshot itself. The job is removed again if the snapshot insert fails.
func CreateSnapshotRecords(ctx context.Context, s Store, job *model.BackupJob, snap *model.TenantSnapshot) error {
	if err := s.CreateBackupJob(ctx, job); err != nil {
		return err
	}
	if err := s.CreateSnapshot(ctx, snap); err != nil {
		if delErr := s.DeleteBackupJob(ctx, job.JobID); delErr != nil {
			return fmt.Errorf("%w (cleanup of backup job also failed: %v)", err, delErr)
		}
		return err
	}
	return nil
}
