package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrSnapshotRetired is returned for status changes on a snapshot that was
// already deleted or expired.
var ErrSnapshotRetired = errors.New("snapshot is deleted or expired")

// SnapshotDedupWindow is how long a pre-operation snapshot is reused instead
// of taking a new one for the same tenant.
const SnapshotDedupWindow = time.Hour

// Default snapshot lifetimes per type.
var DefaultSnapshotRetention = map[string]time.Duration{
	SnapshotTypePreOperation: 24 * time.Hour,
	SnapshotTypeManual:       7 * 24 * time.Hour,
	SnapshotTypeScheduled:    3 * 24 * time.Hour,
}

// TenantSnapshot is a short-lived backup of one tenant schema, taken before
// risky operations so their damage can be undone.
type TenantSnapshot struct {
	SnapshotID           string     `json:"snapshot_id"`
	Name                 string     `json:"name"`
	SnapshotType         string     `json:"snapshot_type"`
	TenantSchema         string     `json:"tenant_schema"`
	TenantDomain         string     `json:"tenant_domain"`
	OperationDescription string     `json:"operation_description"`
	Status               string     `json:"status"`
	BackupJobID          string     `json:"backup_job_id"`
	ErrorMessage         string     `json:"error_message,omitempty"`
	ExpiresAt            time.Time  `json:"expires_at"`
	RestoredAt           *time.Time `json:"restored_at,omitempty"`
	RestoredBy           *string    `json:"restored_by,omitempty"`
	CreatedBy            string     `json:"created_by"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// NewTenantSnapshot builds a pending snapshot linked to its backup job.
func NewTenantSnapshot(id, snapshotType string, tenant *Tenant, description, backupJobID, createdBy string, retention time.Duration, now time.Time) (*TenantSnapshot, error) {
	if !IsValidSnapshotType(snapshotType) {
		return nil, fmt.Errorf("unknown snapshot type %q", snapshotType)
	}
	if tenant == nil || tenant.SchemaName == "" {
		return nil, ErrNoTargetSchema
	}
	if retention <= 0 {
		retention = DefaultSnapshotRetention[snapshotType]
	}
	return &TenantSnapshot{
		SnapshotID:           id,
		Name:                 SnapshotName(snapshotType, tenant.SchemaName, now),
		SnapshotType:         snapshotType,
		TenantSchema:         tenant.SchemaName,
		TenantDomain:         tenant.DomainURL,
		OperationDescription: description,
		Status:               SnapshotStatusPending,
		BackupJobID:          backupJobID,
		ExpiresAt:            now.Add(retention),
		CreatedBy:            createdBy,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

// SnapshotName builds the display name used for a snapshot and its backup job.
func SnapshotName(snapshotType, schema string, now time.Time) string {
	return fmt.Sprintf("%s snapshot of %s at %s", snapshotType, schema, now.UTC().Format("2006-01-02 15:04:05"))
}

// IsExpired reports whether the snapshot's lifetime has passed.
func (s *TenantSnapshot) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// IsAvailableForRestore is true only for completed, unexpired snapshots.
func (s *TenantSnapshot) IsAvailableForRestore(now time.Time) bool {
	return s.Status == SnapshotStatusCompleted && s.ExpiresAt.After(now)
}

// IsReusable reports whether the dedup policy may hand this snapshot out
// again instead of creating a new one.
func (s *TenantSnapshot) IsReusable(now time.Time) bool {
	if s.IsExpired(now) || now.Sub(s.CreatedAt) >= SnapshotDedupWindow {
		return false
	}
	switch s.Status {
	case SnapshotStatusPending, SnapshotStatusCreating, SnapshotStatusCompleted:
		return true
	}
	return false
}

// IsRetired reports whether the snapshot was deleted or expired. A retired
// snapshot never changes status again.
func (s *TenantSnapshot) IsRetired() bool {
	return s.Status == SnapshotStatusDeleted || s.Status == SnapshotStatusExpired
}

func (s *TenantSnapshot) MarkCreating(now time.Time) error {
	if s.IsRetired() {
		return fmt.Errorf("mark snapshot %s creating from %s: %w", s.SnapshotID, s.Status, ErrSnapshotRetired)
	}
	s.Status = SnapshotStatusCreating
	s.UpdatedAt = now
	return nil
}

func (s *TenantSnapshot) MarkCompleted(now time.Time) error {
	if s.IsRetired() {
		return fmt.Errorf("complete snapshot %s from %s: %w", s.SnapshotID, s.Status, ErrSnapshotRetired)
	}
	s.Status = SnapshotStatusCompleted
	s.ErrorMessage = ""
	s.UpdatedAt = now
	return nil
}

func (s *TenantSnapshot) MarkFailed(now time.Time, errMsg string) error {
	if s.IsRetired() {
		return fmt.Errorf("fail snapshot %s from %s: %w", s.SnapshotID, s.Status, ErrSnapshotRetired)
	}
	s.Status = SnapshotStatusFailed
	s.ErrorMessage = errMsg
	s.UpdatedAt = now
	return nil
}

// MarkRestored records, for audit only, that the snapshot was restored.
func (s *TenantSnapshot) MarkRestored(now time.Time, actor string) {
	s.RestoredAt = &now
	s.RestoredBy = &actor
	s.UpdatedAt = now
}

// MarkDeleted flags the record after its blob was removed. Snapshot rows are
// never hard-deleted.
func (s *TenantSnapshot) MarkDeleted(now time.Time) {
	s.Status = SnapshotStatusDeleted
	s.UpdatedAt = now
}

// NewSnapshotWithJob builds a pending snapshot together with the tenant_only
// backup job that materializes it.
func NewSnapshotWithJob(snapshotID, jobID, snapshotType string, tenant *Tenant, description, createdBy string, retention time.Duration, now time.Time) (*BackupJob, *TenantSnapshot, error) {
	if tenant == nil || tenant.SchemaName == "" {
		return nil, nil, ErrNoTargetSchema
	}
	name := SnapshotName(snapshotType, tenant.SchemaName, now)
	job, err := NewBackupJob(jobID, name, BackupTypeTenantOnly, tenant.SchemaName, createdBy, now)
	if err != nil {
		return nil, nil, err
	}
	snap, err := NewTenantSnapshot(snapshotID, snapshotType, tenant, description, jobID, createdBy, retention, now)
	if err != nil {
		return nil, nil, err
	}
	return job, snap, nil
}
