package activity

// ProgressParams holds the parameters for the Update*Progress activities.
type ProgressParams struct {
	ID         string
	Percentage int
	Message    string
}

// JobMessageParams carries a job or snapshot ID with the error message or
// cancellation reason recorded against it.
type JobMessageParams struct {
	ID      string
	Message string
}

// CompleteBackupParams holds the parameters for CompleteBackupJob.
type CompleteBackupParams struct {
	ID        string
	FilePath  string
	SizeBytes int64
	Backends  []string
}

// BackupResult is returned by RunBackupDump.
type BackupResult struct {
	FilePath  string
	SizeBytes int64
	Backends  []string
}

// RestoreResult is returned by RestoreTenantSchema.
type RestoreResult struct {
	TablesRestored   int
	SafetySnapshotID string
}

// DeleteSnapshotResult is returned by DeleteExpiredSnapshot.
type DeleteSnapshotResult struct {
	BlobDeleted bool
	DeletedFrom []string
}

// CleanupResult summarizes one expired-snapshot sweep.
type CleanupResult struct {
	TotalExpired        int
	DeletedSuccessfully int
	DeletionErrors      int
}
