package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/zargar/internal/model"
)

var testTenant = model.Tenant{SchemaName: "acme", DomainURL: "acme.example.com", IsActive: true}

func newSnapshot(t *testing.T, id, snapshotType string, created time.Time, status string) *model.TenantSnapshot {
	t.Helper()
	sn, err := model.NewTenantSnapshot(id, snapshotType, &testTenant, "test", "job-"+id, "ops", 0, created)
	require.NoError(t, err)
	sn.Status = status
	return sn
}

func TestMemory_BackupJobCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	job, err := model.NewBackupJob("job-1", "nightly", model.BackupTypeFullSystem, "", "ops", now)
	require.NoError(t, err)
	require.NoError(t, m.CreateBackupJob(ctx, job))

	job.Status = model.JobStatusRunning
	stored, err := m.GetBackupJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, stored.Status, "unsaved changes must not leak")

	require.NoError(t, m.SaveBackupJob(ctx, job))
	stored, err = m.GetBackupJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, stored.Status)

	assert.Error(t, m.CreateBackupJob(ctx, job))
}

func TestMemory_AppendJobLog(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()
	entry := model.LogEntry{Timestamp: now, Level: model.LogLevelWarning, Message: "Cancellation requested by ops"}

	job, err := model.NewBackupJob("job-1", "nightly", model.BackupTypeFullSystem, "", "ops", now)
	require.NoError(t, err)
	require.NoError(t, m.CreateBackupJob(ctx, job))

	written, err := m.AppendBackupJobLog(ctx, "job-1", entry)
	require.NoError(t, err)
	assert.True(t, written)
	stored, err := m.GetBackupJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, stored.Status)
	assert.Equal(t, entry.Message, stored.LogMessages[len(stored.LogMessages)-1].Message)

	require.NoError(t, stored.MarkCancelled(now, "stopped"))
	require.NoError(t, m.SaveBackupJob(ctx, stored))
	written, err = m.AppendBackupJobLog(ctx, "job-1", entry)
	require.NoError(t, err)
	assert.False(t, written)

	written, err = m.AppendRestoreJobLog(ctx, "nope", entry)
	require.NoError(t, err)
	assert.False(t, written)
}

func TestMemory_NotFound(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.GetBackupJob(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.GetRestoreJob(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.GetSnapshot(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.GetTenant(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.DeleteBackupJob(ctx, "nope"), ErrNotFound)
	assert.ErrorIs(t, m.SaveRestoreJob(ctx, &model.RestoreJob{JobID: "nope"}), ErrNotFound)
}

func TestMemory_DeleteBackupJobClearsReferences(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	job, err := model.NewBackupJob("job-s1", "snap", model.BackupTypeTenantOnly, "acme", "ops", now)
	require.NoError(t, err)
	require.NoError(t, m.CreateBackupJob(ctx, job))
	require.NoError(t, m.CreateSnapshot(ctx, newSnapshot(t, "s1", model.SnapshotTypeManual, now, model.SnapshotStatusCompleted)))

	require.NoError(t, m.DeleteBackupJob(ctx, "job-s1"))
	sn, err := m.GetSnapshot(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, sn.BackupJobID)
}

func TestMemory_FindRecentSnapshot(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.CreateSnapshot(ctx, newSnapshot(t, "old", model.SnapshotTypePreOperation, now.Add(-2*time.Hour), model.SnapshotStatusCompleted)))
	require.NoError(t, m.CreateSnapshot(ctx, newSnapshot(t, "failed", model.SnapshotTypePreOperation, now.Add(-5*time.Minute), model.SnapshotStatusFailed)))
	require.NoError(t, m.CreateSnapshot(ctx, newSnapshot(t, "manual", model.SnapshotTypeManual, now.Add(-time.Minute), model.SnapshotStatusCompleted)))
	require.NoError(t, m.CreateSnapshot(ctx, newSnapshot(t, "recent", model.SnapshotTypePreOperation, now.Add(-10*time.Minute), model.SnapshotStatusCreating)))

	sn, err := m.FindRecentSnapshot(ctx, "acme", model.SnapshotTypePreOperation, now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, "recent", sn.SnapshotID)

	_, err = m.FindRecentSnapshot(ctx, "globex", model.SnapshotTypePreOperation, now.Add(-time.Hour), now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_ListAvailableSnapshots(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 60; i++ {
		sn := newSnapshot(t, fmt.Sprintf("s%02d", i), model.SnapshotTypeManual, now.Add(-time.Duration(i)*time.Minute), model.SnapshotStatusCompleted)
		require.NoError(t, m.CreateSnapshot(ctx, sn))
	}
	expired := newSnapshot(t, "expired", model.SnapshotTypeManual, now, model.SnapshotStatusCompleted)
	expired.ExpiresAt = now.Add(-time.Second)
	require.NoError(t, m.CreateSnapshot(ctx, expired))

	snaps, err := m.ListAvailableSnapshots(ctx, "", now, 50)
	require.NoError(t, err)
	require.Len(t, snaps, 50)
	assert.Equal(t, "s00", snaps[0].SnapshotID)
	for i := 1; i < len(snaps); i++ {
		assert.False(t, snaps[i].CreatedAt.After(snaps[i-1].CreatedAt))
	}

	snaps, err = m.ListAvailableSnapshots(ctx, "globex", now, 50)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestMemory_ListExpiredSnapshots(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	mk := func(id, status string, expires time.Time) {
		sn := newSnapshot(t, id, model.SnapshotTypePreOperation, now.Add(-48*time.Hour), status)
		sn.ExpiresAt = expires
		require.NoError(t, m.CreateSnapshot(ctx, sn))
	}
	mk("done", model.SnapshotStatusCompleted, now.Add(-time.Hour))
	mk("broken", model.SnapshotStatusFailed, now.Add(-2*time.Hour))
	mk("gone", model.SnapshotStatusDeleted, now.Add(-time.Hour))
	mk("fresh", model.SnapshotStatusCompleted, now.Add(time.Hour))

	snaps, err := m.ListExpiredSnapshots(ctx, now)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "broken", snaps[0].SnapshotID)
	assert.Equal(t, "done", snaps[1].SnapshotID)
}

func TestMemory_ListActiveTenants(t *testing.T) {
	m := NewMemory()
	m.PutTenant(model.Tenant{SchemaName: "zeta", IsActive: true})
	m.PutTenant(model.Tenant{SchemaName: "alpha", IsActive: true})
	m.PutTenant(model.Tenant{SchemaName: "dormant", IsActive: false})

	tenants, err := m.ListActiveTenants(context.Background())
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, "alpha", tenants[0].SchemaName)
}
