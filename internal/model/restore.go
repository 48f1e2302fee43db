package model

import (
	"errors"
	"fmt"
	"time"
)

// Validation failures raised while building a restore job.
var (
	ErrBackupNotCompleted  = errors.New("source backup is not completed")
	ErrConfirmationInvalid = errors.New("confirmation text does not match tenant domain")
	ErrNoTargetSchema      = errors.New("restore job requires exactly one target tenant schema")
)

// RestoreJob tracks one restore attempt. A restore always targets exactly
// one tenant schema.
type RestoreJob struct {
	JobID              string  `json:"job_id"`
	RestoreType        string  `json:"restore_type"`
	SourceBackupID     string  `json:"source_backup_id"`
	SourceSnapshotID   *string `json:"source_snapshot_id,omitempty"`
	TargetTenantSchema string  `json:"target_tenant_schema"`
	ConfirmedByTyping  string  `json:"confirmed_by_typing"`
	CreatedBy          string  `json:"created_by"`
	JobState
	CreatedAt time.Time `json:"created_at"`
}

// NewRestoreJobParams holds the inputs for NewRestoreJob.
type NewRestoreJobParams struct {
	ID               string
	RestoreType      string
	SourceBackup     *BackupJob
	SourceSnapshot   *TenantSnapshot
	Target           *Tenant
	ConfirmationText string
	CreatedBy        string
	Now              time.Time
}

// NewRestoreJob enforces the creation invariants: the source backup must be
// completed, and a single-tenant restore must be confirmed by typing the
// tenant's domain exactly.
func NewRestoreJob(p NewRestoreJobParams) (*RestoreJob, error) {
	if !IsValidRestoreType(p.RestoreType) {
		return nil, fmt.Errorf("unknown restore type %q", p.RestoreType)
	}
	if p.SourceBackup == nil || p.SourceBackup.Status != JobStatusCompleted {
		return nil, ErrBackupNotCompleted
	}
	if p.Target == nil || p.Target.SchemaName == "" {
		return nil, ErrNoTargetSchema
	}
	if p.RestoreType == RestoreTypeSingleTenant && p.ConfirmationText != p.Target.DomainURL {
		return nil, ErrConfirmationInvalid
	}

	job := &RestoreJob{
		JobID:              p.ID,
		RestoreType:        p.RestoreType,
		SourceBackupID:     p.SourceBackup.JobID,
		TargetTenantSchema: p.Target.SchemaName,
		ConfirmedByTyping:  p.ConfirmationText,
		CreatedBy:          p.CreatedBy,
		JobState:           newJobState(p.Now),
		CreatedAt:          p.Now,
	}
	if p.SourceSnapshot != nil {
		id := p.SourceSnapshot.SnapshotID
		job.SourceSnapshotID = &id
	}
	job.AddLog(p.Now, LogLevelInfo, fmt.Sprintf("Restore job created: %s of %s from backup %s",
		p.RestoreType, p.Target.SchemaName, p.SourceBackup.JobID))
	return job, nil
}

// MarkAsRunning moves the job to running.
func (j *RestoreJob) MarkAsRunning(now time.Time) error {
	return j.MarkRunning(now, fmt.Sprintf("Restore of %s started", j.TargetTenantSchema))
}

// MarkAsCompleted finishes the job at 100%.
func (j *RestoreJob) MarkAsCompleted(now time.Time) error {
	return j.markCompleted(now, fmt.Sprintf("Restore of %s completed", j.TargetTenantSchema))
}

// MarkAsFailed records the error that ended the job.
func (j *RestoreJob) MarkAsFailed(now time.Time, errMsg string) error {
	return j.MarkFailed(now, errMsg)
}

// IsSnapshotRestore reports whether this job restores a tenant snapshot.
func (j *RestoreJob) IsSnapshotRestore() bool {
	return j.RestoreType == RestoreTypeSnapshotRestore
}
