package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTerminalState is returned when a job that already reached completed,
	// failed or cancelled is mutated again.
	ErrTerminalState = errors.New("job is in a terminal state")
	// ErrInvalidTransition is returned for transitions the state machine does
	// not allow, such as completing a job that never started.
	ErrInvalidTransition = errors.New("invalid job state transition")
)

// JobState is the lifecycle shared by BackupJob and RestoreJob:
// pending -> running -> completed | failed | cancelled.
type JobState struct {
	Status             string     `json:"status"`
	ProgressPercentage int        `json:"progress_percentage"`
	LogMessages        JobLog     `json:"log_messages"`
	ErrorMessage       string     `json:"error_message,omitempty"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func newJobState(now time.Time) JobState {
	return JobState{
		Status:      JobStatusPending,
		LogMessages: JobLog{},
		UpdatedAt:   now,
	}
}

// IsTerminal reports whether the job can no longer change.
func (s *JobState) IsTerminal() bool {
	return IsTerminalJobStatus(s.Status)
}

// AddLog appends a log line without changing the status.
func (s *JobState) AddLog(now time.Time, level, message string) {
	s.LogMessages.Append(now, level, message)
	s.UpdatedAt = now
}

// MarkRunning moves a pending job to running. Calling it on a job that is
// already running is a no-op so that retried tasks do not fail.
func (s *JobState) MarkRunning(now time.Time, message string) error {
	switch s.Status {
	case JobStatusRunning:
		return nil
	case JobStatusPending:
	default:
		return fmt.Errorf("mark running from %s: %w", s.Status, ErrTerminalState)
	}
	s.Status = JobStatusRunning
	s.StartedAt = &now
	s.ProgressPercentage = 0
	s.AddLog(now, LogLevelInfo, message)
	return nil
}

// UpdateProgress records forward progress. The value is clamped to [0,100]
// and never moves backwards.
func (s *JobState) UpdateProgress(now time.Time, pct int, message string) error {
	if s.IsTerminal() {
		return fmt.Errorf("update progress in %s: %w", s.Status, ErrTerminalState)
	}
	if s.Status != JobStatusRunning {
		return fmt.Errorf("update progress in %s: %w", s.Status, ErrInvalidTransition)
	}
	pct = clampPercent(pct)
	if pct > s.ProgressPercentage {
		s.ProgressPercentage = pct
	}
	if message != "" {
		s.LogMessages.Append(now, LogLevelInfo, message)
	}
	s.UpdatedAt = now
	return nil
}

func (s *JobState) markCompleted(now time.Time, message string) error {
	if s.IsTerminal() {
		return fmt.Errorf("complete from %s: %w", s.Status, ErrTerminalState)
	}
	if s.Status != JobStatusRunning {
		return fmt.Errorf("complete from %s: %w", s.Status, ErrInvalidTransition)
	}
	s.Status = JobStatusCompleted
	s.ProgressPercentage = 100
	s.CompletedAt = &now
	s.AddLog(now, LogLevelInfo, message)
	return nil
}

// MarkFailed records a failure. Valid from pending or running.
func (s *JobState) MarkFailed(now time.Time, errMsg string) error {
	if s.IsTerminal() {
		return fmt.Errorf("fail from %s: %w", s.Status, ErrTerminalState)
	}
	if errMsg == "" {
		errMsg = "unknown error"
	}
	s.Status = JobStatusFailed
	s.ErrorMessage = errMsg
	s.CompletedAt = &now
	s.AddLog(now, LogLevelError, errMsg)
	return nil
}

// MarkCancelled stops a pending or running job.
func (s *JobState) MarkCancelled(now time.Time, reason string) error {
	if s.IsTerminal() {
		return fmt.Errorf("cancel from %s: %w", s.Status, ErrTerminalState)
	}
	if reason == "" {
		reason = "cancelled"
	}
	s.Status = JobStatusCancelled
	s.ErrorMessage = reason
	s.CompletedAt = &now
	s.AddLog(now, LogLevelWarning, "Job cancelled: "+reason)
	return nil
}

// Duration is the wall time between start and completion, or zero when the
// job has not finished.
func (s *JobState) Duration() time.Duration {
	if s.StartedAt == nil || s.CompletedAt == nil {
		return 0
	}
	return s.CompletedAt.Sub(*s.StartedAt)
}

func clampPercent(pct int) int {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
