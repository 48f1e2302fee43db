package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/zargar/internal/model"
	"github.com/edvin/zargar/internal/platform"
	"github.com/edvin/zargar/internal/store"
	"github.com/edvin/zargar/internal/workflow"
)

// MaxAvailableSnapshots caps GetAvailableSnapshots.
const MaxAvailableSnapshots = 50

// statusLogTail is the number of log entries returned by GetRestorationStatus.
const statusLogTail = 10

// RestorationConfig holds the settings of a RestorationManager.
type RestorationConfig struct {
	TaskQueue           string
	SnapshotRetention   map[string]time.Duration
	SnapshotWaitTimeout time.Duration
}

// RestorationManager is the entry point for tenant snapshots and restores.
// Validation failures come back as failed Results; the destructive work runs
// in Temporal workflows.
type RestorationManager struct {
	store  store.Store
	tc     temporalclient.Client
	cfg    RestorationConfig
	logger zerolog.Logger
	now    func() time.Time
	newID  func() string
}

func NewRestorationManager(s store.Store, tc temporalclient.Client, cfg RestorationConfig, logger zerolog.Logger) *RestorationManager {
	if cfg.SnapshotWaitTimeout <= 0 {
		cfg.SnapshotWaitTimeout = 30 * time.Minute
	}
	return &RestorationManager{
		store:  s,
		tc:     tc,
		cfg:    cfg,
		logger: logger.With().Str("component", "restoration").Logger(),
		now:    time.Now,
		newID:  platform.NewID,
	}
}

// SnapshotOutcome describes the snapshot a caller may restore from.
type SnapshotOutcome struct {
	SnapshotID  string    `json:"snapshot_id"`
	BackupJobID string    `json:"backup_job_id"`
	Status      string    `json:"status"`
	Existing    bool      `json:"existing"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// RestoreOutcome identifies a restore job that was accepted.
type RestoreOutcome struct {
	RestoreJobID string `json:"restore_job_id"`
	Status       string `json:"status"`
	WorkflowID   string `json:"workflow_id,omitempty"`
}

// RestoreStatus is the polling view of a restore job.
type RestoreStatus struct {
	RestoreJobID       string           `json:"restore_job_id"`
	Status             string           `json:"status"`
	ProgressPercentage int              `json:"progress_percentage"`
	RestoreType        string           `json:"restore_type"`
	TargetTenantSchema string           `json:"target_tenant_schema"`
	SourceBackupID     string           `json:"source_backup_id,omitempty"`
	SourceSnapshotID   *string          `json:"source_snapshot_id,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	StartedAt          *time.Time       `json:"started_at,omitempty"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty"`
	ErrorMessage       string           `json:"error_message,omitempty"`
	LogMessages        []model.LogEntry `json:"log_messages"`
}

// CreatePreOperationSnapshot takes a snapshot of the tenant before a risky
// operation and waits for it to finish. A pre-operation snapshot of the same
// tenant taken within the last hour is returned instead of a new one; if that
// snapshot is still being written, the call waits for it too.
func (m *RestorationManager) CreatePreOperationSnapshot(ctx context.Context, tenantSchema, operationDescription, actor string) Result[SnapshotOutcome] {
	tenant, res := m.lookupTenant(ctx, tenantSchema, "Tenant %s not found")
	if res != nil {
		return Result[SnapshotOutcome]{Err: res}
	}

	now := m.now()
	existing, err := m.store.FindRecentSnapshot(ctx, tenantSchema, model.SnapshotTypePreOperation, now.Add(-model.SnapshotDedupWindow), now)
	switch {
	case err == nil:
		outcome := SnapshotOutcome{
			SnapshotID:  existing.SnapshotID,
			BackupJobID: existing.BackupJobID,
			Status:      existing.Status,
			Existing:    true,
			ExpiresAt:   existing.ExpiresAt,
		}
		if existing.Status == model.SnapshotStatusCompleted {
			m.logger.Info().Str("schema", tenantSchema).Str("snapshot_id", existing.SnapshotID).Msg("reusing recent pre-operation snapshot")
			return Ok(outcome)
		}
		run := m.tc.GetWorkflow(ctx, workflowID("tenant-snapshot", existing.SnapshotID), "")
		err := m.awaitSnapshot(ctx, run)
		if err == nil {
			m.logger.Info().Str("schema", tenantSchema).Str("snapshot_id", existing.SnapshotID).Msg("reusing in-flight pre-operation snapshot")
			outcome.Status = model.SnapshotStatusCompleted
			return Ok(outcome)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			m.logger.Warn().Str("snapshot_id", existing.SnapshotID).Dur("timeout", m.cfg.SnapshotWaitTimeout).Msg("snapshot still running")
			return Fail[SnapshotOutcome]("Snapshot %s did not complete within %s", existing.SnapshotID, m.cfg.SnapshotWaitTimeout)
		}
		m.logger.Warn().Err(err).Str("snapshot_id", existing.SnapshotID).Msg("in-flight snapshot failed, taking a new one")
		m.failSnapshot(ctx, existing.BackupJobID, existing.SnapshotID, err.Error())
	case !errors.Is(err, store.ErrNotFound):
		m.logger.Error().Err(err).Str("schema", tenantSchema).Msg("find recent snapshot")
		return Fail[SnapshotOutcome]("Failed to look up snapshots of %s: %v", tenantSchema, err)
	}

	job, snap, run, failed := m.startSnapshot(ctx, tenant, model.SnapshotTypePreOperation, operationDescription, actor)
	if failed != nil {
		return Result[SnapshotOutcome]{Err: failed}
	}

	if err := m.awaitSnapshot(ctx, run); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			m.logger.Warn().Str("snapshot_id", snap.SnapshotID).Dur("timeout", m.cfg.SnapshotWaitTimeout).Msg("snapshot still running")
			return Fail[SnapshotOutcome]("Snapshot %s did not complete within %s", snap.SnapshotID, m.cfg.SnapshotWaitTimeout)
		}
		m.logger.Error().Err(err).Str("snapshot_id", snap.SnapshotID).Msg("pre-operation snapshot failed")
		m.failSnapshot(ctx, job.JobID, snap.SnapshotID, err.Error())
		return Fail[SnapshotOutcome]("Snapshot creation failed: %v", err)
	}

	return Ok(SnapshotOutcome{
		SnapshotID:  snap.SnapshotID,
		BackupJobID: job.JobID,
		Status:      model.SnapshotStatusCompleted,
		ExpiresAt:   snap.ExpiresAt,
	})
}

// awaitSnapshot blocks until the snapshot workflow finishes or
// SnapshotWaitTimeout passes.
func (m *RestorationManager) awaitSnapshot(ctx context.Context, run temporalclient.WorkflowRun) error {
	waitCtx, cancel := context.WithTimeout(ctx, m.cfg.SnapshotWaitTimeout)
	defer cancel()
	var result workflow.SnapshotResult
	return run.Get(waitCtx, &result)
}

// CreateManualSnapshot starts a manual snapshot of the tenant and returns
// without waiting for it.
func (m *RestorationManager) CreateManualSnapshot(ctx context.Context, tenantSchema, description, actor string) Result[SnapshotOutcome] {
	tenant, res := m.lookupTenant(ctx, tenantSchema, "Tenant %s not found")
	if res != nil {
		return Result[SnapshotOutcome]{Err: res}
	}
	job, snap, _, failed := m.startSnapshot(ctx, tenant, model.SnapshotTypeManual, description, actor)
	if failed != nil {
		return Result[SnapshotOutcome]{Err: failed}
	}
	return Ok(SnapshotOutcome{
		SnapshotID:  snap.SnapshotID,
		BackupJobID: job.JobID,
		Status:      snap.Status,
		ExpiresAt:   snap.ExpiresAt,
	})
}

// RestoreTenantFromMainBackup restores one tenant schema out of a completed
// backup. The caller must type the tenant's domain exactly. The restore runs
// asynchronously; poll GetRestorationStatus for progress.
func (m *RestorationManager) RestoreTenantFromMainBackup(ctx context.Context, backupID, targetSchema, confirmationText, actor string) Result[RestoreOutcome] {
	backup, err := m.store.GetBackupJob(ctx, backupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Fail[RestoreOutcome]("Backup %s not found", backupID)
		}
		return m.infraFailure(err, "load backup %s", backupID)
	}
	if backup.Status != model.JobStatusCompleted {
		return Fail[RestoreOutcome]("Backup %s is not completed", backupID)
	}
	if !backup.ContainsSchema(targetSchema) {
		return Fail[RestoreOutcome]("Backup %s does not contain schema %s", backupID, targetSchema)
	}
	tenant, res := m.lookupTenant(ctx, targetSchema, "Tenant %s does not exist")
	if res != nil {
		return Result[RestoreOutcome]{Err: res}
	}
	if confirmationText != tenant.DomainURL {
		return Fail[RestoreOutcome]("Confirmation text does not match tenant domain")
	}

	job, err := model.NewRestoreJob(model.NewRestoreJobParams{
		ID:               m.newID(),
		RestoreType:      model.RestoreTypeSingleTenant,
		SourceBackup:     backup,
		Target:           tenant,
		ConfirmationText: confirmationText,
		CreatedBy:        actor,
		Now:              m.now(),
	})
	if err != nil {
		return Fail[RestoreOutcome]("%v", err)
	}
	return m.startRestore(ctx, job)
}

// RestoreTenantFromSnapshot restores a tenant from one of its snapshots. No
// safety snapshot is taken since the source already is one.
func (m *RestorationManager) RestoreTenantFromSnapshot(ctx context.Context, snapshotID, actor string) Result[RestoreOutcome] {
	snap, err := m.store.GetSnapshot(ctx, snapshotID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Fail[RestoreOutcome]("Snapshot %s not found", snapshotID)
		}
		return m.infraFailure(err, "load snapshot %s", snapshotID)
	}
	if !snap.IsAvailableForRestore(m.now()) || snap.BackupJobID == "" {
		return Fail[RestoreOutcome]("Snapshot %s is not available for restoration", snapshotID)
	}
	backup, err := m.store.GetBackupJob(ctx, snap.BackupJobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Fail[RestoreOutcome]("Snapshot %s is not available for restoration", snapshotID)
		}
		return m.infraFailure(err, "load backup %s", snap.BackupJobID)
	}
	tenant, res := m.lookupTenant(ctx, snap.TenantSchema, "Tenant %s does not exist")
	if res != nil {
		return Result[RestoreOutcome]{Err: res}
	}

	job, err := model.NewRestoreJob(model.NewRestoreJobParams{
		ID:             m.newID(),
		RestoreType:    model.RestoreTypeSnapshotRestore,
		SourceBackup:   backup,
		SourceSnapshot: snap,
		Target:         tenant,
		CreatedBy:      actor,
		Now:            m.now(),
	})
	if err != nil {
		return Fail[RestoreOutcome]("%v", err)
	}
	return m.startRestore(ctx, job)
}

// GetAvailableSnapshots lists completed, unexpired snapshots newest first.
// A nil tenantSchema lists every tenant.
func (m *RestorationManager) GetAvailableSnapshots(ctx context.Context, tenantSchema *string) Result[[]model.TenantSnapshot] {
	schema := ""
	if tenantSchema != nil {
		schema = *tenantSchema
	}
	snaps, err := m.store.ListAvailableSnapshots(ctx, schema, m.now(), MaxAvailableSnapshots)
	if err != nil {
		m.logger.Error().Err(err).Str("schema", schema).Msg("list available snapshots")
		return Fail[[]model.TenantSnapshot]("Failed to list snapshots: %v", err)
	}
	return Ok(snaps)
}

// GetRestorationStatus returns the progress of a restore job with the tail
// of its log.
func (m *RestorationManager) GetRestorationStatus(ctx context.Context, restoreJobID string) Result[RestoreStatus] {
	job, err := m.store.GetRestoreJob(ctx, restoreJobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Fail[RestoreStatus]("Restore job %s not found", restoreJobID)
		}
		m.logger.Error().Err(err).Str("restore_job_id", restoreJobID).Msg("load restore job")
		return Fail[RestoreStatus]("Failed to load restore job %s: %v", restoreJobID, err)
	}
	return Ok(RestoreStatus{
		RestoreJobID:       job.JobID,
		Status:             job.Status,
		ProgressPercentage: job.ProgressPercentage,
		RestoreType:        job.RestoreType,
		TargetTenantSchema: job.TargetTenantSchema,
		SourceBackupID:     job.SourceBackupID,
		SourceSnapshotID:   job.SourceSnapshotID,
		CreatedAt:          job.CreatedAt,
		StartedAt:          job.StartedAt,
		CompletedAt:        job.CompletedAt,
		ErrorMessage:       job.ErrorMessage,
		LogMessages:        job.LogMessages.Tail(statusLogTail),
	})
}

// CancelRestore requests cancellation of a pending or running restore. The
// running pg_restore is killed and the job ends cancelled.
func (m *RestorationManager) CancelRestore(ctx context.Context, restoreJobID, actor string) Result[RestoreOutcome] {
	job, err := m.store.GetRestoreJob(ctx, restoreJobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Fail[RestoreOutcome]("Restore job %s not found", restoreJobID)
		}
		return m.infraFailure(err, "load restore job %s", restoreJobID)
	}
	if job.IsTerminal() {
		return Fail[RestoreOutcome]("Restore job %s is already %s", restoreJobID, job.Status)
	}

	wfID := workflow.RestoreWorkflowID(job.TargetTenantSchema)
	err = m.tc.CancelWorkflow(ctx, wfID, "")
	switch {
	case err == nil:
		// The workflow owns the row from here on; only the audit line is added,
		// and only while the job is still active.
		entry := model.LogEntry{Timestamp: m.now(), Level: model.LogLevelWarning, Message: fmt.Sprintf("Cancellation requested by %s", actor)}
		if _, err := m.store.AppendRestoreJobLog(ctx, restoreJobID, entry); err != nil {
			m.logger.Error().Err(err).Str("restore_job_id", restoreJobID).Msg("record restore cancellation")
		}
		if current, err := m.store.GetRestoreJob(ctx, restoreJobID); err == nil {
			job = current
		}
	case isWorkflowNotFound(err):
		// The workflow never started or is gone; nothing else will finish the job.
		if err := job.MarkCancelled(m.now(), fmt.Sprintf("cancelled by %s", actor)); err != nil {
			return Fail[RestoreOutcome]("Restore job %s cannot be cancelled: %v", restoreJobID, err)
		}
		if err := m.store.SaveRestoreJob(ctx, job); err != nil {
			return m.infraFailure(err, "save restore job %s", restoreJobID)
		}
	default:
		return m.infraFailure(err, "cancel restore workflow %s", wfID)
	}
	m.logger.Warn().Str("restore_job_id", restoreJobID).Str("actor", actor).Msg("restore cancellation requested")
	return Ok(RestoreOutcome{RestoreJobID: job.JobID, Status: job.Status, WorkflowID: wfID})
}

// startRestore persists the job and starts its workflow. Only one restore
// workflow may run per target schema.
func (m *RestorationManager) startRestore(ctx context.Context, job *model.RestoreJob) Result[RestoreOutcome] {
	if err := m.store.CreateRestoreJob(ctx, job); err != nil {
		return m.infraFailure(err, "create restore job")
	}

	wfID := workflow.RestoreWorkflowID(job.TargetTenantSchema)
	if _, err := startWorkflow(ctx, m.tc, m.cfg.TaskQueue, wfID, tenantRestoreWorkflow, job.JobID); err != nil {
		msg := fmt.Sprintf("Failed to start restore: %v", err)
		if isAlreadyStarted(err) {
			msg = fmt.Sprintf("A restore for tenant %s is already in progress", job.TargetTenantSchema)
		}
		m.logger.Error().Err(err).Str("restore_job_id", job.JobID).Str("schema", job.TargetTenantSchema).Msg("start restore workflow")
		if markErr := job.MarkAsFailed(m.now(), msg); markErr == nil {
			if saveErr := m.store.SaveRestoreJob(ctx, job); saveErr != nil {
				m.logger.Error().Err(saveErr).Str("restore_job_id", job.JobID).Msg("mark restore job failed")
			}
		}
		return Fail[RestoreOutcome]("%s", msg)
	}

	m.logger.Info().Str("restore_job_id", job.JobID).Str("schema", job.TargetTenantSchema).
		Str("restore_type", job.RestoreType).Str("actor", job.CreatedBy).Msg("restore started")
	return Ok(RestoreOutcome{RestoreJobID: job.JobID, Status: job.Status, WorkflowID: wfID})
}

// startSnapshot creates the rows of a new snapshot and starts the workflow
// that fills it.
func (m *RestorationManager) startSnapshot(ctx context.Context, tenant *model.Tenant, snapshotType, description, actor string) (*model.BackupJob, *model.TenantSnapshot, temporalclient.WorkflowRun, *ValidationError) {
	job, snap, err := model.NewSnapshotWithJob(m.newID(), m.newID(), snapshotType, tenant, description, actor,
		m.cfg.SnapshotRetention[snapshotType], m.now())
	if err != nil {
		return nil, nil, nil, invalid("%v", err)
	}
	if err := store.CreateSnapshotRecords(ctx, m.store, job, snap); err != nil {
		m.logger.Error().Err(err).Str("schema", tenant.SchemaName).Msg("create snapshot records")
		return nil, nil, nil, invalid("Failed to create snapshot: %v", err)
	}

	run, err := startWorkflow(ctx, m.tc, m.cfg.TaskQueue, workflowID("tenant-snapshot", snap.SnapshotID), createTenantSnapshotWorkflow, snap.SnapshotID)
	if err != nil {
		m.logger.Error().Err(err).Str("snapshot_id", snap.SnapshotID).Msg("start snapshot workflow")
		m.failSnapshot(ctx, job.JobID, snap.SnapshotID, fmt.Sprintf("Failed to start snapshot: %v", err))
		return nil, nil, nil, invalid("Failed to start snapshot: %v", err)
	}
	m.logger.Info().Str("snapshot_id", snap.SnapshotID).Str("schema", tenant.SchemaName).Str("type", snapshotType).Msg("snapshot started")
	return job, snap, run, nil
}

// failSnapshot marks a snapshot and its backup job failed unless the
// workflow already did.
func (m *RestorationManager) failSnapshot(ctx context.Context, jobID, snapshotID, msg string) {
	now := m.now()
	if job, err := m.store.GetBackupJob(ctx, jobID); err == nil && !job.IsTerminal() {
		if err := job.MarkAsFailed(now, msg); err == nil {
			if err := m.store.SaveBackupJob(ctx, job); err != nil {
				m.logger.Error().Err(err).Str("job_id", jobID).Msg("mark snapshot job failed")
			}
		}
	}
	if snap, err := m.store.GetSnapshot(ctx, snapshotID); err == nil && snap.Status != model.SnapshotStatusFailed {
		if err := snap.MarkFailed(now, msg); err != nil {
			return
		}
		if err := m.store.SaveSnapshot(ctx, snap); err != nil {
			m.logger.Error().Err(err).Str("snapshot_id", snapshotID).Msg("mark snapshot failed")
		}
	}
}

func (m *RestorationManager) lookupTenant(ctx context.Context, schema, notFound string) (*model.Tenant, *ValidationError) {
	tenant, err := m.store.GetTenant(ctx, schema)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, invalid(notFound, schema)
		}
		m.logger.Error().Err(err).Str("schema", schema).Msg("load tenant")
		return nil, invalid("Failed to load tenant %s: %v", schema, err)
	}
	return tenant, nil
}

func (m *RestorationManager) infraFailure(err error, format string, args ...any) Result[RestoreOutcome] {
	what := fmt.Sprintf(format, args...)
	m.logger.Error().Err(err).Msg(what)
	return Fail[RestoreOutcome]("Failed to %s: %v", what, err)
}
