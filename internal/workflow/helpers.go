package workflow

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/zargar/internal/activity"
)

// cancelledMessage is recorded on jobs stopped by a cancellation request.
const cancelledMessage = "Cancellation requested"

// jobStoreCtx returns a context for the short database activities that move
// jobs between states.
func jobStoreCtx(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    5,
			InitialInterval:    1 * time.Second,
			MaximumInterval:    10 * time.Second,
			BackoffCoefficient: 2.0,
		},
	})
}

// dumpCtx returns a context for RunBackupDump. A dump only reads, so one
// retry is allowed.
func dumpCtx(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Hour,
		HeartbeatTimeout:    2 * time.Minute,
		WaitForCancellation: true,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    2,
			InitialInterval:    30 * time.Second,
			MaximumInterval:    2 * time.Minute,
			BackoffCoefficient: 2.0,
		},
	})
}

// restoreCtx returns a context for RestoreTenantSchema. The restore drops
// the schema, so it is never re-run automatically.
func restoreCtx(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 3 * time.Hour,
		HeartbeatTimeout:    2 * time.Minute,
		WaitForCancellation: true,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})
}

// failureMessage extracts the message an activity failed with, without the
// Temporal wrapping around it.
func failureMessage(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Message() != "" {
		return appErr.Message()
	}
	var timeoutErr *temporal.TimeoutError
	if errors.As(err, &timeoutErr) {
		return "timed out: " + timeoutErr.Error()
	}
	return err.Error()
}

// isCancelled reports whether err, or the workflow itself, was cancelled.
func isCancelled(ctx workflow.Context, err error) bool {
	return temporal.IsCanceledError(err) || ctx.Err() != nil
}

// cleanupCtx returns a context that survives cancellation of ctx so a
// cancelled job can still be recorded.
func cleanupCtx(ctx workflow.Context) workflow.Context {
	dctx, _ := workflow.NewDisconnectedContext(ctx)
	return jobStoreCtx(dctx)
}

// setBackupFailed records err on the backup job, or marks it cancelled when
// the workflow was cancelled. Errors are ignored since the original error is
// returned to the caller.
func setBackupFailed(ctx workflow.Context, jobID string, err error) {
	if isCancelled(ctx, err) {
		dctx := cleanupCtx(ctx)
		_ = workflow.ExecuteActivity(dctx, "CancelBackupJob", activity.JobMessageParams{
			ID: jobID, Message: cancelledMessage,
		}).Get(dctx, nil)
		return
	}
	_ = workflow.ExecuteActivity(jobStoreCtx(ctx), "FailBackupJob", activity.JobMessageParams{
		ID: jobID, Message: failureMessage(err),
	}).Get(ctx, nil)
}

// setRestoreFailed is setBackupFailed for restore jobs.
func setRestoreFailed(ctx workflow.Context, jobID string, err error) {
	if isCancelled(ctx, err) {
		dctx := cleanupCtx(ctx)
		_ = workflow.ExecuteActivity(dctx, "CancelRestoreJob", activity.JobMessageParams{
			ID: jobID, Message: cancelledMessage,
		}).Get(dctx, nil)
		return
	}
	_ = workflow.ExecuteActivity(jobStoreCtx(ctx), "FailRestoreJob", activity.JobMessageParams{
		ID: jobID, Message: failureMessage(err),
	}).Get(ctx, nil)
}
