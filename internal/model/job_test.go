package model

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackupJob(t *testing.T) *BackupJob {
	t.Helper()
	job, err := NewBackupJob("job-1", "nightly", BackupTypeFullSystem, "", "admin", time.Now())
	require.NoError(t, err)
	return job
}

func TestNewBackupJob_TenantSchemaPairing(t *testing.T) {
	now := time.Now()

	job, err := NewBackupJob("job-1", "acme only", BackupTypeTenantOnly, "acme", "admin", now)
	require.NoError(t, err)
	assert.Equal(t, "acme", job.Schema())
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Len(t, job.LogMessages, 1)

	_, err = NewBackupJob("job-2", "missing", BackupTypeTenantOnly, "", "admin", now)
	assert.Error(t, err)

	_, err = NewBackupJob("job-3", "full with schema", BackupTypeFullSystem, "acme", "admin", now)
	assert.Error(t, err)

	_, err = NewBackupJob("job-4", "bad type", "weekly", "", "admin", now)
	assert.Error(t, err)
}

func TestBackupJob_ContainsSchema(t *testing.T) {
	now := time.Now()
	full, err := NewBackupJob("f", "full", BackupTypeFullSystem, "", "ops", now)
	require.NoError(t, err)
	dbOnly, err := NewBackupJob("d", "db", BackupTypeDatabaseOnly, "", "ops", now)
	require.NoError(t, err)
	tenant, err := NewBackupJob("t", "tenant", BackupTypeTenantOnly, "beta", "ops", now)
	require.NoError(t, err)
	config, err := NewBackupJob("c", "config", BackupTypeConfiguration, "", "ops", now)
	require.NoError(t, err)

	assert.True(t, full.ContainsSchema("acme"))
	assert.True(t, dbOnly.ContainsSchema("acme"))
	assert.True(t, tenant.ContainsSchema("beta"))
	assert.False(t, tenant.ContainsSchema("acme"))
	assert.False(t, config.ContainsSchema("acme"))
}

func TestBackupJob_HappyPath(t *testing.T) {
	job := newTestBackupJob(t)
	start := time.Now()

	require.NoError(t, job.MarkAsRunning(start))
	assert.Equal(t, JobStatusRunning, job.Status)
	require.NotNil(t, job.StartedAt)
	assert.Equal(t, 0, job.ProgressPercentage)

	require.NoError(t, job.UpdateProgress(start, 40, "dumping"))
	require.NoError(t, job.MarkAsCompleted(start.Add(time.Minute), "backups/x.dump", 2048, []string{"local", "s3"}))

	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.ProgressPercentage)
	assert.Equal(t, "backups/x.dump", job.FilePath)
	assert.Equal(t, int64(2048), job.FileSizeBytes)
	assert.Equal(t, []string{"local", "s3"}, job.StorageBackends)
	assert.Equal(t, time.Minute, job.Duration())
}

func TestBackupJob_MarkRunningTwiceIsNoop(t *testing.T) {
	job := newTestBackupJob(t)
	now := time.Now()
	require.NoError(t, job.MarkAsRunning(now))
	require.NoError(t, job.UpdateProgress(now, 30, ""))
	logs := len(job.LogMessages)

	require.NoError(t, job.MarkAsRunning(now.Add(time.Second)))
	assert.Equal(t, 30, job.ProgressPercentage)
	assert.Len(t, job.LogMessages, logs)
}

func TestBackupJob_CompleteRequiresRunningAndPath(t *testing.T) {
	job := newTestBackupJob(t)
	now := time.Now()

	err := job.MarkAsCompleted(now, "backups/x.dump", 1, []string{"local"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, job.MarkAsRunning(now))
	err = job.MarkAsCompleted(now, "", 1, []string{"local"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, JobStatusRunning, job.Status)
}

func TestBackupJob_FailFromPending(t *testing.T) {
	job := newTestBackupJob(t)
	require.NoError(t, job.MarkAsFailed(time.Now(), "pg_dump exited 1"))
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "pg_dump exited 1", job.ErrorMessage)
	assert.Equal(t, LogLevelError, job.LogMessages[len(job.LogMessages)-1].Level)
}

func TestBackupJob_FailWithEmptyMessage(t *testing.T) {
	job := newTestBackupJob(t)
	require.NoError(t, job.MarkAsFailed(time.Now(), ""))
	assert.NotEmpty(t, job.ErrorMessage)
}

func TestJobState_TerminalStatesAreFinal(t *testing.T) {
	terminate := map[string]func(*BackupJob, time.Time) error{
		JobStatusCompleted: func(j *BackupJob, now time.Time) error {
			return j.MarkAsCompleted(now, "backups/x.dump", 1, []string{"local"})
		},
		JobStatusFailed: func(j *BackupJob, now time.Time) error {
			return j.MarkAsFailed(now, "boom")
		},
		JobStatusCancelled: func(j *BackupJob, now time.Time) error {
			return j.MarkCancelled(now, "operator request")
		},
	}

	for status, fn := range terminate {
		t.Run(status, func(t *testing.T) {
			job := newTestBackupJob(t)
			now := time.Now()
			require.NoError(t, job.MarkAsRunning(now))
			require.NoError(t, fn(job, now))
			require.Equal(t, status, job.Status)
			progress := job.ProgressPercentage

			assert.ErrorIs(t, job.MarkAsRunning(now), ErrTerminalState)
			assert.ErrorIs(t, job.UpdateProgress(now, 99, "late"), ErrTerminalState)
			assert.ErrorIs(t, job.MarkAsFailed(now, "late"), ErrTerminalState)
			assert.ErrorIs(t, job.MarkCancelled(now, "late"), ErrTerminalState)
			assert.ErrorIs(t, job.MarkAsCompleted(now, "backups/y.dump", 1, nil), ErrTerminalState)

			assert.Equal(t, status, job.Status)
			assert.Equal(t, progress, job.ProgressPercentage)
		})
	}
}

func TestJobState_ProgressIsMonotonicAndClamped(t *testing.T) {
	job := newTestBackupJob(t)
	now := time.Now()
	require.NoError(t, job.MarkAsRunning(now))

	rng := rand.New(rand.NewSource(42))
	last := 0
	for i := 0; i < 500; i++ {
		require.NoError(t, job.UpdateProgress(now, rng.Intn(300)-100, ""))
		assert.GreaterOrEqual(t, job.ProgressPercentage, last)
		assert.GreaterOrEqual(t, job.ProgressPercentage, 0)
		assert.LessOrEqual(t, job.ProgressPercentage, 100)
		last = job.ProgressPercentage
	}
}

func TestJobState_UpdateProgressRequiresRunning(t *testing.T) {
	job := newTestBackupJob(t)
	err := job.UpdateProgress(time.Now(), 10, "too early")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 0, job.ProgressPercentage)
}

func TestJobState_CancelFromPending(t *testing.T) {
	job := newTestBackupJob(t)
	require.NoError(t, job.MarkCancelled(time.Now(), ""))
	assert.Equal(t, JobStatusCancelled, job.Status)
	assert.Equal(t, "cancelled", job.ErrorMessage)
	assert.True(t, job.IsTerminal())
}
