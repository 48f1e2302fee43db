package workflow

import (
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/zargar/internal/activity"
)

// RestoreWorkflowID is the workflow ID used for restores of schema. Temporal
// rejects a second start while one is running, which keeps restores of the
// same tenant from overlapping.
func RestoreWorkflowID(schema string) string {
	return "tenant-restore-" + schema
}

// SelectiveTenantRestoreWorkflow restores one tenant schema from a backup or
// snapshot. The destructive steps run inside a single activity on one
// worker; this workflow only moves the job through its states.
func SelectiveTenantRestoreWorkflow(ctx workflow.Context, restoreJobID string) error {
	dbCtx := jobStoreCtx(ctx)
	logger := workflow.GetLogger(ctx)

	err := workflow.ExecuteActivity(dbCtx, "MarkRestoreRunning", restoreJobID).Get(ctx, nil)
	if err != nil {
		setRestoreFailed(ctx, restoreJobID, err)
		return err
	}

	var result activity.RestoreResult
	err = workflow.ExecuteActivity(restoreCtx(ctx), "RestoreTenantSchema", restoreJobID).Get(ctx, &result)
	if err != nil {
		logger.Error("tenant restore failed", "restoreJobID", restoreJobID, "error", err)
		setRestoreFailed(ctx, restoreJobID, err)
		return err
	}

	err = workflow.ExecuteActivity(dbCtx, "CompleteRestoreJob", restoreJobID).Get(ctx, nil)
	if err != nil {
		setRestoreFailed(ctx, restoreJobID, err)
		return err
	}

	logger.Info("tenant restore completed", "restoreJobID", restoreJobID,
		"tables", result.TablesRestored, "safetySnapshotID", result.SafetySnapshotID)
	return nil
}
