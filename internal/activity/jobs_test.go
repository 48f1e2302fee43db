package activity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"

	"github.com/edvin/zargar/internal/model"
)

func requireNonRetryable(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.NonRetryable())
}

func TestJobStore_BackupLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBackup(t, "job-1", model.BackupTypeFullSystem, "", model.JobStatusPending)

	require.NoError(t, f.jobs.MarkBackupRunning(ctx, "job-1"))
	require.NoError(t, f.jobs.MarkBackupRunning(ctx, "job-1"), "marking running twice is a no-op")
	require.NoError(t, f.jobs.UpdateBackupProgress(ctx, ProgressParams{ID: "job-1", Percentage: 10, Message: "Starting dump"}))

	params := CompleteBackupParams{ID: "job-1", FilePath: "backups/full_system/all/job-1.dump", SizeBytes: 2048, Backends: []string{"primary", "replica"}}
	require.NoError(t, f.jobs.CompleteBackupJob(ctx, params))
	require.NoError(t, f.jobs.CompleteBackupJob(ctx, params), "retried completion is idempotent")

	job, err := f.jobs.GetBackupJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.ProgressPercentage)
	assert.Equal(t, params.FilePath, job.FilePath)
	assert.Equal(t, []string{"primary", "replica"}, job.StorageBackends)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.CompletedAt)

	requireNonRetryable(t, f.jobs.FailBackupJob(ctx, JobMessageParams{ID: "job-1", Message: "late failure"}))
}

func TestJobStore_FailBackupJobIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBackup(t, "job-1", model.BackupTypeFullSystem, "", model.JobStatusRunning)

	require.NoError(t, f.jobs.FailBackupJob(ctx, JobMessageParams{ID: "job-1", Message: "pg_dump exited with 1"}))
	require.NoError(t, f.jobs.FailBackupJob(ctx, JobMessageParams{ID: "job-1", Message: "second"}))

	job, err := f.jobs.GetBackupJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Equal(t, "pg_dump exited with 1", job.ErrorMessage)
}

func TestJobStore_CompleteBeforeRunningIsRejected(t *testing.T) {
	f := newFixture(t)
	f.seedBackup(t, "job-1", model.BackupTypeFullSystem, "", model.JobStatusPending)

	err := f.jobs.CompleteBackupJob(context.Background(), CompleteBackupParams{ID: "job-1", FilePath: "x.dump"})
	requireNonRetryable(t, err)
}

func TestJobStore_MissingJobIsNonRetryable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.jobs.GetBackupJob(ctx, "nope")
	requireNonRetryable(t, err)
	requireNonRetryable(t, f.jobs.MarkRestoreRunning(ctx, "nope"))
	requireNonRetryable(t, f.jobs.MarkSnapshotCreating(ctx, "nope"))
}

func TestJobStore_CancelRestoreJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	source := f.seedBackup(t, "job-1", model.BackupTypeFullSystem, "", model.JobStatusCompleted)
	f.seedRestore(t, "restore-1", source, nil)

	require.NoError(t, f.jobs.CancelRestoreJob(ctx, JobMessageParams{ID: "restore-1", Message: "cancelled by ops"}))
	require.NoError(t, f.jobs.CancelRestoreJob(ctx, JobMessageParams{ID: "restore-1", Message: "again"}))

	job, err := f.jobs.GetRestoreJob(ctx, "restore-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, job.Status)
	assert.Equal(t, "cancelled by ops", job.ErrorMessage)
	assert.Equal(t, "Job cancelled: cancelled by ops", job.LogMessages.Tail(1)[0].Message)
}

func TestJobStore_CompleteSnapshotRestoreStampsSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	snap, source := f.seedSnapshot(t, "snap-1", testNow.Add(-10*time.Minute))
	f.seedRestore(t, "restore-1", source, snap)

	require.NoError(t, f.jobs.UpdateRestoreProgress(ctx, ProgressParams{ID: "restore-1", Percentage: 95}))
	require.NoError(t, f.jobs.CompleteRestoreJob(ctx, "restore-1"))

	job, err := f.jobs.GetRestoreJob(ctx, "restore-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.ProgressPercentage)

	stored, err := f.jobs.GetSnapshot(ctx, "snap-1")
	require.NoError(t, err)
	require.NotNil(t, stored.RestoredAt)
	require.NotNil(t, stored.RestoredBy)
	assert.Equal(t, "ops", *stored.RestoredBy)
	assert.Equal(t, testNow, *stored.RestoredAt)
}

func TestJobStore_SnapshotTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	snap, _ := f.seedSnapshot(t, "snap-1", testNow)

	require.NoError(t, f.jobs.MarkSnapshotCreating(ctx, snap.SnapshotID))
	stored, err := f.jobs.GetSnapshot(ctx, snap.SnapshotID)
	require.NoError(t, err)
	assert.Equal(t, model.SnapshotStatusCreating, stored.Status)

	require.NoError(t, f.jobs.FailSnapshot(ctx, JobMessageParams{ID: snap.SnapshotID, Message: "dump failed"}))
	stored, err = f.jobs.GetSnapshot(ctx, snap.SnapshotID)
	require.NoError(t, err)
	assert.Equal(t, model.SnapshotStatusFailed, stored.Status)
	assert.Equal(t, "dump failed", stored.ErrorMessage)
}

func TestJobStore_LateTransitionsOnDeletedSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	snap, _ := f.seedSnapshot(t, "snap-1", testNow)
	snap.MarkDeleted(testNow)
	require.NoError(t, f.store.SaveSnapshot(ctx, snap))

	requireNonRetryable(t, f.jobs.CompleteSnapshot(ctx, "snap-1"))
	requireNonRetryable(t, f.jobs.FailSnapshot(ctx, JobMessageParams{ID: "snap-1", Message: "late"}))

	stored, err := f.jobs.GetSnapshot(ctx, "snap-1")
	require.NoError(t, err)
	assert.Equal(t, model.SnapshotStatusDeleted, stored.Status)
	assert.Empty(t, stored.ErrorMessage)
}

func TestJobStore_ListExpiredSnapshots(t *testing.T) {
	f := newFixture(t)
	f.seedSnapshot(t, "old", testNow.Add(-48*time.Hour))
	f.seedSnapshot(t, "fresh", testNow.Add(-time.Hour))

	expired, err := f.jobs.ListExpiredSnapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "old", expired[0].SnapshotID)
}

func TestJobStore_CreateScheduledSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.jobs.CreateScheduledSnapshot(ctx, "acme")
	require.NoError(t, err)

	snap, err := f.jobs.GetSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.SnapshotTypeScheduled, snap.SnapshotType)
	assert.Equal(t, model.SnapshotStatusPending, snap.Status)
	assert.Equal(t, testNow.Add(3*24*time.Hour), snap.ExpiresAt)

	job, err := f.jobs.GetBackupJob(ctx, snap.BackupJobID)
	require.NoError(t, err)
	assert.Equal(t, model.BackupTypeTenantOnly, job.BackupType)
	assert.Equal(t, "acme", job.Schema())

	_, err = f.jobs.CreateScheduledSnapshot(ctx, "ghost")
	requireNonRetryable(t, err)
}

func TestJobStore_ListActiveTenants(t *testing.T) {
	f := newFixture(t)
	f.store.PutTenant(model.Tenant{SchemaName: "closed", DomainURL: "closed.example.com", IsActive: false})

	tenants, err := f.jobs.ListActiveTenants(context.Background())
	require.NoError(t, err)
	require.Len(t, tenants, 1)
	assert.Equal(t, "acme", tenants[0].SchemaName)
}
