package workflow

import (
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/zargar/internal/activity"
	"github.com/edvin/zargar/internal/model"
)

// scheduledSnapshotConcurrency caps how many tenant dumps the nightly
// snapshot run has in flight.
const scheduledSnapshotConcurrency = 4

// CleanupExpiredSnapshotsWorkflow deletes every expired snapshot. Each one
// is handled on its own; a failure is counted and the sweep moves on.
func CleanupExpiredSnapshotsWorkflow(ctx workflow.Context) (*activity.CleanupResult, error) {
	dbCtx := jobStoreCtx(ctx)
	logger := workflow.GetLogger(ctx)

	var expired []model.TenantSnapshot
	err := workflow.ExecuteActivity(dbCtx, "ListExpiredSnapshots").Get(ctx, &expired)
	if err != nil {
		return nil, err
	}

	result := &activity.CleanupResult{TotalExpired: len(expired)}
	logger.Info("found expired snapshots", "count", len(expired))

	for _, snap := range expired {
		err := workflow.ExecuteActivity(dbCtx, "DeleteExpiredSnapshot", snap.SnapshotID).Get(ctx, nil)
		if err != nil {
			result.DeletionErrors++
			logger.Error("failed to delete expired snapshot", "snapshotID", snap.SnapshotID, "schema", snap.TenantSchema, "error", err)
			// Continue with the remaining snapshots.
			continue
		}
		result.DeletedSuccessfully++
	}

	err = workflow.ExecuteActivity(dbCtx, "RecordCleanupResult", *result).Get(ctx, nil)
	if err != nil {
		logger.Warn("failed to record cleanup result", "error", err)
	}
	return result, nil
}

// ScheduledSnapshotsResult is returned by ScheduledTenantSnapshotsWorkflow.
type ScheduledSnapshotsResult struct {
	Tenants   int
	Succeeded int
	Failed    int
}

// ScheduledTenantSnapshotsWorkflow takes a scheduled snapshot of every
// active tenant. Each snapshot runs as a child workflow; failures are logged
// and do not stop the others.
func ScheduledTenantSnapshotsWorkflow(ctx workflow.Context) (*ScheduledSnapshotsResult, error) {
	dbCtx := jobStoreCtx(ctx)
	logger := workflow.GetLogger(ctx)

	var tenants []model.Tenant
	err := workflow.ExecuteActivity(dbCtx, "ListActiveTenants").Get(ctx, &tenants)
	if err != nil {
		return nil, err
	}

	result := &ScheduledSnapshotsResult{Tenants: len(tenants)}
	wg := workflow.NewWaitGroup(ctx)
	sem := workflow.NewSemaphore(ctx, scheduledSnapshotConcurrency)

	for _, tenant := range tenants {
		var snapshotID string
		err := workflow.ExecuteActivity(dbCtx, "CreateScheduledSnapshot", tenant.SchemaName).Get(ctx, &snapshotID)
		if err != nil {
			result.Failed++
			logger.Error("failed to create scheduled snapshot", "schema", tenant.SchemaName, "error", err)
			continue
		}

		_ = sem.Acquire(ctx, 1)
		wg.Add(1)
		schema := tenant.SchemaName
		workflow.Go(ctx, func(gCtx workflow.Context) {
			defer wg.Done()
			defer sem.Release(1)

			childCtx := workflow.WithChildOptions(gCtx, workflow.ChildWorkflowOptions{
				WorkflowID: "tenant-snapshot-" + snapshotID,
			})
			err := workflow.ExecuteChildWorkflow(childCtx, CreateTenantSnapshotWorkflow, snapshotID).Get(gCtx, nil)
			if err != nil {
				result.Failed++
				logger.Error("scheduled snapshot failed", "schema", schema, "snapshotID", snapshotID, "error", err)
				return
			}
			result.Succeeded++
		})
	}

	wg.Wait(ctx)
	logger.Info("scheduled snapshots finished", "tenants", result.Tenants, "succeeded", result.Succeeded, "failed", result.Failed)
	return result, nil
}
