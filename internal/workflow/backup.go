package workflow

import (
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/zargar/internal/activity"
)

// CreateBackupWorkflow runs a backup job: dump the data selected by its
// type, upload the archive to every storage backend and record the result.
func CreateBackupWorkflow(ctx workflow.Context, jobID string) error {
	_, err := runBackup(ctx, jobID)
	return err
}

// runBackup drives a backup job from pending to a terminal state. Any
// failure is recorded on the job before it is returned.
func runBackup(ctx workflow.Context, jobID string) (*activity.BackupResult, error) {
	dbCtx := jobStoreCtx(ctx)

	err := workflow.ExecuteActivity(dbCtx, "MarkBackupRunning", jobID).Get(ctx, nil)
	if err != nil {
		setBackupFailed(ctx, jobID, err)
		return nil, err
	}

	err = workflow.ExecuteActivity(dbCtx, "UpdateBackupProgress", activity.ProgressParams{
		ID:         jobID,
		Percentage: 10,
		Message:    "Starting database dump",
	}).Get(ctx, nil)
	if err != nil {
		setBackupFailed(ctx, jobID, err)
		return nil, err
	}

	var result activity.BackupResult
	err = workflow.ExecuteActivity(dumpCtx(ctx), "RunBackupDump", jobID).Get(ctx, &result)
	if err != nil {
		setBackupFailed(ctx, jobID, err)
		return nil, err
	}

	err = workflow.ExecuteActivity(dbCtx, "CompleteBackupJob", activity.CompleteBackupParams{
		ID:        jobID,
		FilePath:  result.FilePath,
		SizeBytes: result.SizeBytes,
		Backends:  result.Backends,
	}).Get(ctx, nil)
	if err != nil {
		setBackupFailed(ctx, jobID, err)
		return nil, err
	}

	workflow.GetLogger(ctx).Info("backup completed", "jobID", jobID, "path", result.FilePath, "size", result.SizeBytes)
	return &result, nil
}
