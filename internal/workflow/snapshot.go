package workflow

import (
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/edvin/zargar/internal/activity"
	"github.com/edvin/zargar/internal/model"
)

// SnapshotResult is returned by CreateTenantSnapshotWorkflow.
type SnapshotResult struct {
	SnapshotID  string
	BackupJobID string
	Status      string
	FilePath    string
	SizeBytes   int64
	ExpiresAt   time.Time
	Error       string
}

// CreateTenantSnapshotWorkflow materializes a pending snapshot by running
// its backup job. The snapshot ends completed or failed together with the
// job.
func CreateTenantSnapshotWorkflow(ctx workflow.Context, snapshotID string) (*SnapshotResult, error) {
	dbCtx := jobStoreCtx(ctx)

	var snap model.TenantSnapshot
	err := workflow.ExecuteActivity(dbCtx, "GetSnapshot", snapshotID).Get(ctx, &snap)
	if err != nil {
		return nil, err
	}
	result := &SnapshotResult{
		SnapshotID:  snap.SnapshotID,
		BackupJobID: snap.BackupJobID,
		ExpiresAt:   snap.ExpiresAt,
	}

	err = workflow.ExecuteActivity(dbCtx, "MarkSnapshotCreating", snapshotID).Get(ctx, nil)
	if err != nil {
		setSnapshotFailed(ctx, snapshotID, err)
		return nil, err
	}

	backup, err := runBackup(ctx, snap.BackupJobID)
	if err != nil {
		setSnapshotFailed(ctx, snapshotID, err)
		return nil, err
	}
	result.FilePath = backup.FilePath
	result.SizeBytes = backup.SizeBytes

	err = workflow.ExecuteActivity(dbCtx, "CompleteSnapshot", snapshotID).Get(ctx, nil)
	if err != nil {
		return nil, err
	}
	result.Status = model.SnapshotStatusCompleted

	workflow.GetLogger(ctx).Info("tenant snapshot completed",
		"snapshotID", snapshotID, "schema", snap.TenantSchema, "type", snap.SnapshotType)
	return result, nil
}

// setSnapshotFailed marks the snapshot failed. A cancelled snapshot is also
// recorded as failed since snapshots have no cancelled state.
func setSnapshotFailed(ctx workflow.Context, snapshotID string, err error) {
	msg := failureMessage(err)
	dbCtx := jobStoreCtx(ctx)
	if isCancelled(ctx, err) {
		msg = cancelledMessage
		dbCtx = cleanupCtx(ctx)
	}
	_ = workflow.ExecuteActivity(dbCtx, "FailSnapshot", activity.JobMessageParams{
		ID: snapshotID, Message: msg,
	}).Get(dbCtx, nil)
}
