package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/edvin/zargar/internal/model"
)

// Memory is an in-process Store for tests and local development. It hands
// out copies so callers cannot mutate stored rows without saving them.
type Memory struct {
	mu        sync.Mutex
	backups   map[string]model.BackupJob
	restores  map[string]model.RestoreJob
	snapshots map[string]model.TenantSnapshot
	tenants   map[string]model.Tenant
}

func NewMemory() *Memory {
	return &Memory{
		backups:   map[string]model.BackupJob{},
		restores:  map[string]model.RestoreJob{},
		snapshots: map[string]model.TenantSnapshot{},
		tenants:   map[string]model.Tenant{},
	}
}

// PutTenant registers a tenant. Tenants are owned by provisioning, so the
// Store interface has no write path for them.
func (m *Memory) PutTenant(t model.Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[t.SchemaName] = t
}

func copyBackup(j model.BackupJob) model.BackupJob {
	j.StorageBackends = append([]string{}, j.StorageBackends...)
	j.LogMessages = append(model.JobLog{}, j.LogMessages...)
	return j
}

func copyRestore(j model.RestoreJob) model.RestoreJob {
	j.LogMessages = append(model.JobLog{}, j.LogMessages...)
	return j
}

func (m *Memory) CreateBackupJob(_ context.Context, j *model.BackupJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.backups[j.JobID]; ok {
		return fmt.Errorf("insert backup job %s: duplicate key", j.JobID)
	}
	m.backups[j.JobID] = copyBackup(*j)
	return nil
}

func (m *Memory) GetBackupJob(_ context.Context, id string) (*model.BackupJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.backups[id]
	if !ok {
		return nil, fmt.Errorf("get backup job %s: %w", id, ErrNotFound)
	}
	j = copyBackup(j)
	return &j, nil
}

func (m *Memory) SaveBackupJob(_ context.Context, j *model.BackupJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.backups[j.JobID]; !ok {
		return fmt.Errorf("save backup job %s: %w", j.JobID, ErrNotFound)
	}
	m.backups[j.JobID] = copyBackup(*j)
	return nil
}

func (m *Memory) AppendBackupJobLog(_ context.Context, id string, entry model.LogEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.backups[id]
	if !ok || j.IsTerminal() {
		return false, nil
	}
	j = copyBackup(j)
	j.AddLog(entry.Timestamp, entry.Level, entry.Message)
	m.backups[id] = j
	return true, nil
}

func (m *Memory) DeleteBackupJob(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.backups[id]; !ok {
		return fmt.Errorf("delete backup job %s: %w", id, ErrNotFound)
	}
	delete(m.backups, id)
	// ON DELETE SET NULL
	for sid, sn := range m.snapshots {
		if sn.BackupJobID == id {
			sn.BackupJobID = ""
			m.snapshots[sid] = sn
		}
	}
	for rid, r := range m.restores {
		if r.SourceBackupID == id {
			r.SourceBackupID = ""
			m.restores[rid] = r
		}
	}
	return nil
}

func (m *Memory) ListBackupJobs(_ context.Context, limit int) ([]model.BackupJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []model.BackupJob
	for _, j := range m.backups {
		jobs = append(jobs, copyBackup(j))
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].CreatedAt.After(jobs[b].CreatedAt) })
	return truncate(jobs, limit), nil
}

func (m *Memory) CreateRestoreJob(_ context.Context, j *model.RestoreJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.restores[j.JobID]; ok {
		return fmt.Errorf("insert restore job %s: duplicate key", j.JobID)
	}
	m.restores[j.JobID] = copyRestore(*j)
	return nil
}

func (m *Memory) GetRestoreJob(_ context.Context, id string) (*model.RestoreJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.restores[id]
	if !ok {
		return nil, fmt.Errorf("get restore job %s: %w", id, ErrNotFound)
	}
	j = copyRestore(j)
	return &j, nil
}

func (m *Memory) SaveRestoreJob(_ context.Context, j *model.RestoreJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.restores[j.JobID]; !ok {
		return fmt.Errorf("save restore job %s: %w", j.JobID, ErrNotFound)
	}
	m.restores[j.JobID] = copyRestore(*j)
	return nil
}

func (m *Memory) AppendRestoreJobLog(_ context.Context, id string, entry model.LogEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.restores[id]
	if !ok || j.IsTerminal() {
		return false, nil
	}
	j = copyRestore(j)
	j.AddLog(entry.Timestamp, entry.Level, entry.Message)
	m.restores[id] = j
	return true, nil
}

func (m *Memory) ListRestoreJobs(_ context.Context, schema string, limit int) ([]model.RestoreJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []model.RestoreJob
	for _, j := range m.restores {
		if schema == "" || j.TargetTenantSchema == schema {
			jobs = append(jobs, copyRestore(j))
		}
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].CreatedAt.After(jobs[b].CreatedAt) })
	return truncate(jobs, limit), nil
}

func (m *Memory) CreateSnapshot(_ context.Context, sn *model.TenantSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snapshots[sn.SnapshotID]; ok {
		return fmt.Errorf("insert snapshot %s: duplicate key", sn.SnapshotID)
	}
	m.snapshots[sn.SnapshotID] = *sn
	return nil
}

func (m *Memory) GetSnapshot(_ context.Context, id string) (*model.TenantSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sn, ok := m.snapshots[id]
	if !ok {
		return nil, fmt.Errorf("get snapshot %s: %w", id, ErrNotFound)
	}
	return &sn, nil
}

func (m *Memory) SaveSnapshot(_ context.Context, sn *model.TenantSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snapshots[sn.SnapshotID]; !ok {
		return fmt.Errorf("save snapshot %s: %w", sn.SnapshotID, ErrNotFound)
	}
	m.snapshots[sn.SnapshotID] = *sn
	return nil
}

func (m *Memory) FindRecentSnapshot(_ context.Context, schema, snapshotType string, since, now time.Time) (*model.TenantSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *model.TenantSnapshot
	for _, sn := range m.snapshots {
		if sn.TenantSchema != schema || sn.SnapshotType != snapshotType || sn.CreatedAt.Before(since) || !sn.ExpiresAt.After(now) {
			continue
		}
		switch sn.Status {
		case model.SnapshotStatusPending, model.SnapshotStatusCreating, model.SnapshotStatusCompleted:
		default:
			continue
		}
		if found == nil || sn.CreatedAt.After(found.CreatedAt) {
			sn := sn
			found = &sn
		}
	}
	if found == nil {
		return nil, fmt.Errorf("find recent %s snapshot of %s: %w", snapshotType, schema, ErrNotFound)
	}
	return found, nil
}

func (m *Memory) ListAvailableSnapshots(_ context.Context, schema string, now time.Time, limit int) ([]model.TenantSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var snaps []model.TenantSnapshot
	for _, sn := range m.snapshots {
		if (schema == "" || sn.TenantSchema == schema) && sn.IsAvailableForRestore(now) {
			snaps = append(snaps, sn)
		}
	}
	sort.Slice(snaps, func(a, b int) bool { return snaps[a].CreatedAt.After(snaps[b].CreatedAt) })
	return truncate(snaps, limit), nil
}

func (m *Memory) ListExpiredSnapshots(_ context.Context, now time.Time) ([]model.TenantSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var snaps []model.TenantSnapshot
	for _, sn := range m.snapshots {
		if !sn.ExpiresAt.Before(now) {
			continue
		}
		if sn.Status == model.SnapshotStatusCompleted || sn.Status == model.SnapshotStatusFailed {
			snaps = append(snaps, sn)
		}
	}
	sort.Slice(snaps, func(a, b int) bool { return snaps[a].ExpiresAt.Before(snaps[b].ExpiresAt) })
	return snaps, nil
}

func (m *Memory) GetTenant(_ context.Context, schema string) (*model.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[schema]
	if !ok {
		return nil, fmt.Errorf("get tenant %s: %w", schema, ErrNotFound)
	}
	return &t, nil
}

func (m *Memory) ListActiveTenants(_ context.Context) ([]model.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var tenants []model.Tenant
	for _, t := range m.tenants {
		if t.IsActive {
			tenants = append(tenants, t)
		}
	}
	sort.Slice(tenants, func(a, b int) bool { return tenants[a].SchemaName < tenants[b].SchemaName })
	return tenants, nil
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
