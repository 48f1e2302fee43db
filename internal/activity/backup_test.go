package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/zargar/internal/model"
)

func TestRunBackupDump_TenantOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBackup(t, "job-1", model.BackupTypeTenantOnly, "acme", model.JobStatusRunning)

	result, err := f.backup.RunBackupDump(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "backups/tenant_only/acme/2026/03/01/job-1.dump", result.FilePath)
	assert.Equal(t, int64(len("PGDMP archive")), result.SizeBytes)
	assert.ElementsMatch(t, []string{"primary", "replica"}, result.Backends)

	require.Len(t, f.dumper.calls, 1)
	assert.Equal(t, "acme", f.dumper.calls[0].Schema)

	data, err := f.replica.Get(ctx, result.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "PGDMP archive", string(data))

	job, err := f.store.GetBackupJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, job.Status, "completion is left to the workflow")
	assert.Equal(t, 80, job.ProgressPercentage)
}

func TestRunBackupDump_ScopeByType(t *testing.T) {
	tests := []struct {
		backupType string
		schema     string
	}{
		{model.BackupTypeFullSystem, ""},
		{model.BackupTypeDatabaseOnly, ""},
		{model.BackupTypeConfiguration, "public"},
	}
	for _, tt := range tests {
		t.Run(tt.backupType, func(t *testing.T) {
			f := newFixture(t)
			f.seedBackup(t, "job-1", tt.backupType, "", model.JobStatusRunning)

			_, err := f.backup.RunBackupDump(context.Background(), "job-1")
			require.NoError(t, err)
			require.Len(t, f.dumper.calls, 1)
			assert.Equal(t, tt.schema, f.dumper.calls[0].Schema)
		})
	}
}

func TestRunBackupDump_PartialUploadSucceeds(t *testing.T) {
	f := newFixture(t)
	f.replica.SetFailure(errors.New("bucket unavailable"))
	f.seedBackup(t, "job-1", model.BackupTypeFullSystem, "", model.JobStatusRunning)

	result, err := f.backup.RunBackupDump(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"primary"}, result.Backends)
}

func TestRunBackupDump_Failures(t *testing.T) {
	t.Run("dump", func(t *testing.T) {
		f := newFixture(t)
		f.dumper.err = errors.New("pg_dump: connection refused")
		f.seedBackup(t, "job-1", model.BackupTypeFullSystem, "", model.JobStatusRunning)

		_, err := f.backup.RunBackupDump(context.Background(), "job-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("upload", func(t *testing.T) {
		f := newFixture(t)
		f.primary.SetFailure(errors.New("disk full"))
		f.replica.SetFailure(errors.New("bucket unavailable"))
		f.seedBackup(t, "job-1", model.BackupTypeFullSystem, "", model.JobStatusRunning)

		_, err := f.backup.RunBackupDump(context.Background(), "job-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
		assert.Contains(t, err.Error(), "bucket unavailable")
	})

	t.Run("not running", func(t *testing.T) {
		f := newFixture(t)
		f.seedBackup(t, "job-1", model.BackupTypeFullSystem, "", model.JobStatusPending)

		_, err := f.backup.RunBackupDump(context.Background(), "job-1")
		requireNonRetryable(t, err)
		assert.Empty(t, f.dumper.calls)
	})
}

func TestTakeSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.backup.takeSnapshot(ctx, &acme, "before restore", "ops", 0)
	require.NoError(t, err)

	snap, err := f.store.GetSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.SnapshotStatusCompleted, snap.Status)
	assert.Equal(t, model.SnapshotTypePreOperation, snap.SnapshotType)

	job, err := f.store.GetBackupJob(ctx, snap.BackupJobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.ProgressPercentage)
	assert.NotEmpty(t, job.FilePath)
}

func TestTakeSnapshot_FailureMarksBothFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.dumper.err = errors.New("pg_dump: permission denied")

	_, err := f.backup.takeSnapshot(ctx, &acme, "before restore", "ops", 0)
	require.Error(t, err)

	snaps, err := f.store.ListExpiredSnapshots(ctx, testNow.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, model.SnapshotStatusFailed, snaps[0].Status)
	assert.Contains(t, snaps[0].ErrorMessage, "permission denied")

	job, err := f.store.GetBackupJob(ctx, snaps[0].BackupJobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
}
