package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// BackupJob tracks one backup attempt from pending to a terminal state.
type BackupJob struct {
	JobID           string   `json:"job_id"`
	Name            string   `json:"name"`
	BackupType      string   `json:"backup_type"`
	TenantSchema    *string  `json:"tenant_schema,omitempty"`
	FilePath        string   `json:"file_path,omitempty"`
	FileSizeBytes   int64    `json:"file_size_bytes"`
	StorageBackends []string `json:"storage_backends"`
	CreatedBy       string   `json:"created_by"`
	JobState
	CreatedAt time.Time `json:"created_at"`
}

// NewBackupJob builds a pending backup job. tenantSchema must be set for
// tenant_only backups and must be empty for every other type.
func NewBackupJob(id, name, backupType, tenantSchema, createdBy string, now time.Time) (*BackupJob, error) {
	if !IsValidBackupType(backupType) {
		return nil, fmt.Errorf("unknown backup type %q", backupType)
	}
	tenantSchema = strings.TrimSpace(tenantSchema)
	if backupType == BackupTypeTenantOnly && tenantSchema == "" {
		return nil, fmt.Errorf("backup type %s requires a tenant schema", backupType)
	}
	if backupType != BackupTypeTenantOnly && tenantSchema != "" {
		return nil, fmt.Errorf("backup type %s cannot target tenant schema %s", backupType, tenantSchema)
	}

	job := &BackupJob{
		JobID:           id,
		Name:            name,
		BackupType:      backupType,
		StorageBackends: []string{},
		CreatedBy:       createdBy,
		JobState:        newJobState(now),
		CreatedAt:       now,
	}
	if tenantSchema != "" {
		job.TenantSchema = &tenantSchema
	}
	job.AddLog(now, LogLevelInfo, fmt.Sprintf("Backup job created: %s", name))
	return job, nil
}

// Schema returns the tenant schema of a tenant_only backup, or "".
func (j *BackupJob) Schema() string {
	if j.TenantSchema == nil {
		return ""
	}
	return *j.TenantSchema
}

// ContainsSchema reports whether the backup's dump holds the given tenant
// schema. Configuration backups hold only the shared schema.
func (j *BackupJob) ContainsSchema(schema string) bool {
	switch j.BackupType {
	case BackupTypeFullSystem, BackupTypeDatabaseOnly:
		return true
	case BackupTypeTenantOnly:
		return j.Schema() == schema
	}
	return false
}

// MarkAsRunning moves the job to running.
func (j *BackupJob) MarkAsRunning(now time.Time) error {
	return j.MarkRunning(now, "Backup started")
}

// MarkAsCompleted records where the blob was stored. Only valid from running.
func (j *BackupJob) MarkAsCompleted(now time.Time, filePath string, size int64, backends []string) error {
	if filePath == "" {
		return fmt.Errorf("complete backup %s: empty file path: %w", j.JobID, ErrInvalidTransition)
	}
	msg := fmt.Sprintf("Backup completed: %s (%s) on %s", filePath, humanize.Bytes(uint64(max(size, 0))), strings.Join(backends, ", "))
	if err := j.markCompleted(now, msg); err != nil {
		return err
	}
	j.FilePath = filePath
	j.FileSizeBytes = size
	j.StorageBackends = append([]string{}, backends...)
	return nil
}

// MarkAsFailed records the error that ended the job.
func (j *BackupJob) MarkAsFailed(now time.Time, errMsg string) error {
	return j.MarkFailed(now, errMsg)
}
