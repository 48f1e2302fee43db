package model

// Job status constants shared by backup and restore jobs.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// Backup types.
const (
	BackupTypeFullSystem    = "full_system"
	BackupTypeTenantOnly    = "tenant_only"
	BackupTypeConfiguration = "configuration"
	BackupTypeDatabaseOnly  = "database_only"
)

// Restore types.
const (
	RestoreTypeFullSystem      = "full_system"
	RestoreTypeSingleTenant    = "single_tenant"
	RestoreTypeConfiguration   = "configuration"
	RestoreTypeSnapshotRestore = "snapshot_restore"
)

// Snapshot types.
const (
	SnapshotTypePreOperation = "pre_operation"
	SnapshotTypeManual       = "manual"
	SnapshotTypeScheduled    = "scheduled"
)

// Snapshot status constants.
const (
	SnapshotStatusPending   = "pending"
	SnapshotStatusCreating  = "creating"
	SnapshotStatusCompleted = "completed"
	SnapshotStatusFailed    = "failed"
	SnapshotStatusExpired   = "expired"
	SnapshotStatusDeleted   = "deleted"
)

// Log levels used in job log entries.
const (
	LogLevelInfo    = "info"
	LogLevelWarning = "warning"
	LogLevelError   = "error"
)

func IsValidBackupType(t string) bool {
	switch t {
	case BackupTypeFullSystem, BackupTypeTenantOnly, BackupTypeConfiguration, BackupTypeDatabaseOnly:
		return true
	}
	return false
}

func IsValidRestoreType(t string) bool {
	switch t {
	case RestoreTypeFullSystem, RestoreTypeSingleTenant, RestoreTypeConfiguration, RestoreTypeSnapshotRestore:
		return true
	}
	return false
}

func IsValidSnapshotType(t string) bool {
	switch t {
	case SnapshotTypePreOperation, SnapshotTypeManual, SnapshotTypeScheduled:
		return true
	}
	return false
}

// IsTerminalJobStatus reports whether a job in this status can no longer change.
func IsTerminalJobStatus(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}
