package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/zargar/internal/model"
)

func backupRowScan(id, status string) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*string)) = id
		*(dest[1].(*string)) = "nightly"
		*(dest[2].(*string)) = model.BackupTypeFullSystem
		*(dest[4].(*string)) = status
		*(dest[5].(*string)) = "backups/" + id + ".dump"
		*(dest[6].(*int64)) = 2048
		*(dest[8].(*int)) = 100
		*(dest[14].(*time.Time)) = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		return nil
	}
}

func TestPG_GetBackupJob(t *testing.T) {
	db := &mockDB{}
	s := NewPG(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"job-1"}).
		Return(&mockRow{scanFunc: backupRowScan("job-1", model.JobStatusCompleted)})

	job, err := s.GetBackupJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.JobID)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, int64(2048), job.FileSizeBytes)
	assert.Equal(t, []string{}, job.StorageBackends)
	db.AssertExpectations(t)
}

func TestPG_GetBackupJob_NotFound(t *testing.T) {
	db := &mockDB{}
	s := NewPG(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }})

	_, err := s.GetBackupJob(ctx, "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "get backup job missing")
}

func TestPG_GetBackupJob_DBError(t *testing.T) {
	db := &mockDB{}
	s := NewPG(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error { return errors.New("conn reset") }})

	_, err := s.GetBackupJob(ctx, "job-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "conn reset")
}

func TestPG_SaveBackupJob_NoRows(t *testing.T) {
	db := &mockDB{}
	s := NewPG(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := s.SaveBackupJob(ctx, &model.BackupJob{JobID: "job-1"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPG_SaveBackupJob(t *testing.T) {
	db := &mockDB{}
	s := NewPG(db)
	ctx := context.Background()

	job, err := model.NewBackupJob("job-1", "nightly", model.BackupTypeFullSystem, "", "ops", time.Now())
	require.NoError(t, err)
	require.NoError(t, job.MarkAsRunning(time.Now()))

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		return args[0] == "job-1" && args[1] == model.JobStatusRunning
	})).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	require.NoError(t, s.SaveBackupJob(ctx, job))
	db.AssertExpectations(t)
}

func TestPG_AppendRestoreJobLog_OnlyWhileActive(t *testing.T) {
	db := &mockDB{}
	s := NewPG(db)
	ctx := context.Background()
	entry := model.LogEntry{Timestamp: time.Now(), Level: model.LogLevelWarning, Message: "Cancellation requested by ops"}

	db.On("Exec", ctx, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "UPDATE restore_jobs") && strings.Contains(sql, "status IN ('pending', 'running')")
	}), mock.MatchedBy(func(args []any) bool {
		log, ok := args[1].(model.JobLog)
		return args[0] == "r-1" && ok && len(log) == 1 && log[0].Message == entry.Message
	})).Return(pgconn.NewCommandTag("UPDATE 0"), nil).Once()

	written, err := s.AppendRestoreJobLog(ctx, "r-1", entry)
	require.NoError(t, err)
	assert.False(t, written)
	db.AssertExpectations(t)
}

func TestPG_AppendBackupJobLog(t *testing.T) {
	db := &mockDB{}
	s := NewPG(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "UPDATE backup_jobs SET log_messages = log_messages ||")
	}), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	written, err := s.AppendBackupJobLog(ctx, "job-1", model.LogEntry{Timestamp: time.Now(), Level: model.LogLevelInfo, Message: "x"})
	require.NoError(t, err)
	assert.True(t, written)
}

func TestPG_CreateRestoreJob_NullSource(t *testing.T) {
	db := &mockDB{}
	s := NewPG(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		src, ok := args[2].(*string)
		return ok && src == nil
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, s.CreateRestoreJob(ctx, &model.RestoreJob{JobID: "r-1", TargetTenantSchema: "acme"}))
	db.AssertExpectations(t)
}

func TestPG_DeleteBackupJob(t *testing.T) {
	db := &mockDB{}
	s := NewPG(db)
	ctx := context.Background()

	db.On("Exec", ctx, "DELETE FROM backup_jobs WHERE job_id = $1", []any{"job-1"}).
		Return(pgconn.NewCommandTag("DELETE 1"), nil)

	require.NoError(t, s.DeleteBackupJob(ctx, "job-1"))
	db.AssertExpectations(t)
}

func TestPG_ListExpiredSnapshots(t *testing.T) {
	db := &mockDB{}
	s := NewPG(db)
	ctx := context.Background()
	now := time.Now()

	backupID := "job-9"
	rows := newMockRows(
		func(dest ...any) error {
			*(dest[0].(*string)) = "snap-1"
			*(dest[3].(*string)) = "acme"
			*(dest[6].(*string)) = model.SnapshotStatusCompleted
			*(dest[7].(**string)) = &backupID
			*(dest[9].(*time.Time)) = now.Add(-time.Hour)
			return nil
		},
		func(dest ...any) error {
			*(dest[0].(*string)) = "snap-2"
			*(dest[3].(*string)) = "globex"
			*(dest[6].(*string)) = model.SnapshotStatusFailed
			*(dest[9].(*time.Time)) = now.Add(-time.Minute)
			return nil
		},
	)
	db.On("Query", ctx, mock.AnythingOfType("string"), []any{now}).Return(rows, nil)

	snaps, err := s.ListExpiredSnapshots(ctx, now)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "job-9", snaps[0].BackupJobID)
	assert.Equal(t, "", snaps[1].BackupJobID)
	assert.Equal(t, "globex", snaps[1].TenantSchema)
}

func TestPG_ListAvailableSnapshots_QueryError(t *testing.T) {
	db := &mockDB{}
	s := NewPG(db)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(nil, errors.New("timeout"))

	_, err := s.ListAvailableSnapshots(ctx, "acme", time.Now(), 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list available snapshots")
}

func TestPG_GetTenant(t *testing.T) {
	db := &mockDB{}
	s := NewPG(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"acme"}).Return(&mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = "acme"
		*(dest[1].(*string)) = "acme.example.com"
		*(dest[3].(*bool)) = true
		return nil
	}})

	tenant, err := s.GetTenant(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme.example.com", tenant.DomainURL)
	assert.True(t, tenant.IsActive)
}
