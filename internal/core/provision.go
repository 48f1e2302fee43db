package core

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/api/serviceerror"
	temporalclient "go.temporal.io/sdk/client"
)

// Workflow names registered by the worker.
const (
	createBackupWorkflow         = "CreateBackupWorkflow"
	createTenantSnapshotWorkflow = "CreateTenantSnapshotWorkflow"
	tenantRestoreWorkflow        = "SelectiveTenantRestoreWorkflow"
)

// workflowID builds a human-readable Temporal workflow ID from a prefix and
// the job's unique ID.
func workflowID(prefix, id string) string {
	return fmt.Sprintf("%s-%s", prefix, id)
}

// startWorkflow starts a workflow on the worker task queue. A workflow with
// the same ID that is still running makes the start fail instead of
// attaching to the existing run.
func startWorkflow(ctx context.Context, tc temporalclient.Client, taskQueue, id, name string, arg any) (temporalclient.WorkflowRun, error) {
	opts := temporalclient.StartWorkflowOptions{ID: id, TaskQueue: taskQueue}
	opts.WorkflowExecutionErrorWhenAlreadyStarted = true
	return tc.ExecuteWorkflow(ctx, opts, name, arg)
}

func isAlreadyStarted(err error) bool {
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	return errors.As(err, &started)
}

func isWorkflowNotFound(err error) bool {
	var notFound *serviceerror.NotFound
	return errors.As(err, &notFound)
}
