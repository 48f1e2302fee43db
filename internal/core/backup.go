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
)

// DefaultBackupListLimit is used when ListRecent is called without a limit.
const DefaultBackupListLimit = 50

// BackupService creates and tracks full, configuration and tenant backups.
type BackupService struct {
	store     store.Store
	tc        temporalclient.Client
	taskQueue string
	logger    zerolog.Logger
	now       func() time.Time
	newID     func() string
}

func NewBackupService(s store.Store, tc temporalclient.Client, taskQueue string, logger zerolog.Logger) *BackupService {
	return &BackupService{
		store:     s,
		tc:        tc,
		taskQueue: taskQueue,
		logger:    logger.With().Str("component", "backups").Logger(),
		now:       time.Now,
		newID:     platform.NewID,
	}
}

// Create inserts a pending backup job and starts CreateBackupWorkflow for it.
// Caller mistakes come back as *ValidationError.
func (s *BackupService) Create(ctx context.Context, name, backupType, tenantSchema, actor string) (*model.BackupJob, error) {
	if tenantSchema != "" {
		if model.IsReservedSchema(tenantSchema) {
			return nil, invalid("Schema %s cannot be backed up as a tenant", tenantSchema)
		}
		if _, err := s.store.GetTenant(ctx, tenantSchema); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, invalid("Tenant %s not found", tenantSchema)
			}
			return nil, fmt.Errorf("get tenant %s: %w", tenantSchema, err)
		}
	}

	now := s.now()
	if name == "" {
		name = fmt.Sprintf("%s backup at %s", backupType, now.UTC().Format("2006-01-02 15:04:05"))
	}
	job, err := model.NewBackupJob(s.newID(), name, backupType, tenantSchema, actor, now)
	if err != nil {
		return nil, invalid("%v", err)
	}
	if err := s.store.CreateBackupJob(ctx, job); err != nil {
		return nil, fmt.Errorf("insert backup job: %w", err)
	}

	if _, err := startWorkflow(ctx, s.tc, s.taskQueue, workflowID("create-backup", job.JobID), createBackupWorkflow, job.JobID); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.JobID).Msg("start backup workflow")
		if markErr := job.MarkAsFailed(s.now(), fmt.Sprintf("Failed to start backup: %v", err)); markErr == nil {
			if saveErr := s.store.SaveBackupJob(ctx, job); saveErr != nil {
				s.logger.Error().Err(saveErr).Str("job_id", job.JobID).Msg("mark backup job failed")
			}
		}
		return nil, fmt.Errorf("start CreateBackupWorkflow: %w", err)
	}

	s.logger.Info().Str("job_id", job.JobID).Str("type", backupType).Str("schema", tenantSchema).Str("actor", actor).Msg("backup started")
	return job, nil
}

func (s *BackupService) Get(ctx context.Context, id string) (*model.BackupJob, error) {
	job, err := s.store.GetBackupJob(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, invalid("Backup %s not found", id)
		}
		return nil, fmt.Errorf("get backup %s: %w", id, err)
	}
	return job, nil
}

// ListRecent returns the newest backup jobs first.
func (s *BackupService) ListRecent(ctx context.Context, limit int) ([]model.BackupJob, error) {
	if limit <= 0 {
		limit = DefaultBackupListLimit
	}
	jobs, err := s.store.ListBackupJobs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	return jobs, nil
}

// Cancel asks the backup workflow to stop. A job whose workflow is gone is
// marked cancelled directly.
func (s *BackupService) Cancel(ctx context.Context, id, actor string) (*model.BackupJob, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return nil, invalid("Backup %s is already %s", id, job.Status)
	}

	err = s.tc.CancelWorkflow(ctx, workflowID("create-backup", id), "")
	switch {
	case err == nil:
		entry := model.LogEntry{Timestamp: s.now(), Level: model.LogLevelWarning, Message: fmt.Sprintf("Cancellation requested by %s", actor)}
		if _, err := s.store.AppendBackupJobLog(ctx, id, entry); err != nil {
			s.logger.Error().Err(err).Str("job_id", id).Msg("record backup cancellation")
		}
		if current, err := s.store.GetBackupJob(ctx, id); err == nil {
			job = current
		}
	case isWorkflowNotFound(err):
		if err := job.MarkCancelled(s.now(), fmt.Sprintf("cancelled by %s", actor)); err != nil {
			return nil, invalid("Backup %s cannot be cancelled: %v", id, err)
		}
		if err := s.store.SaveBackupJob(ctx, job); err != nil {
			return nil, fmt.Errorf("save backup %s: %w", id, err)
		}
	default:
		return nil, fmt.Errorf("cancel backup workflow %s: %w", id, err)
	}
	return job, nil
}
