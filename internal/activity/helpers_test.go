package activity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/edvin/zargar/internal/model"
	"github.com/edvin/zargar/internal/pgexec"
	"github.com/edvin/zargar/internal/storage"
	"github.com/edvin/zargar/internal/store"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var acme = model.Tenant{SchemaName: "acme", DomainURL: "acme.example.com", Name: "Acme Jewelry", IsActive: true}

type fakeDumper struct {
	data  []byte
	err   error
	calls []pgexec.DumpOptions
}

func (f *fakeDumper) Dump(_ context.Context, opts pgexec.DumpOptions) ([]byte, error) {
	f.calls = append(f.calls, opts)
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func (f *fakeDumper) DumpTimeout(string) time.Duration { return time.Minute }

// fakeExecutor records the destructive steps it is asked to perform.
type fakeExecutor struct {
	dir         string
	staged      string
	steps       []string
	restoreOpts []pgexec.RestoreOptions
	dropErr     error
	restoreErr  error
	tables      int
}

func (f *fakeExecutor) StageFile(blob []byte) (string, error) {
	file, err := os.CreateTemp(f.dir, "restore-*.dump")
	if err != nil {
		return "", err
	}
	defer file.Close()
	if _, err := file.Write(blob); err != nil {
		return "", err
	}
	f.staged = file.Name()
	return f.staged, nil
}

func (f *fakeExecutor) DropSchema(_ context.Context, name string) error {
	f.steps = append(f.steps, "drop:"+name)
	return f.dropErr
}

func (f *fakeExecutor) RestoreFile(_ context.Context, path string, opts pgexec.RestoreOptions) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("staged file missing: %w", err)
	}
	f.steps = append(f.steps, "restore:"+opts.Schema)
	f.restoreOpts = append(f.restoreOpts, opts)
	return f.restoreErr
}

func (f *fakeExecutor) VerifySchema(_ context.Context, name string) (int, error) {
	f.steps = append(f.steps, "verify:"+name)
	if f.tables == 0 {
		return 0, fmt.Errorf("verify %s: %w", name, pgexec.ErrSchemaEmpty)
	}
	return f.tables, nil
}

var errLocked = errors.New("schema is locked by another restore")

type fakeLocker struct {
	held     map[string]bool
	released []string
}

func (f *fakeLocker) TryLock(_ context.Context, schema string) (func(), error) {
	if f.held[schema] {
		return nil, errLocked
	}
	f.held[schema] = true
	return func() {
		delete(f.held, schema)
		f.released = append(f.released, schema)
	}, nil
}

type fixture struct {
	store    *store.Memory
	primary  *storage.Memory
	replica  *storage.Memory
	dumper   *fakeDumper
	executor *fakeExecutor
	locker   *fakeLocker
	jobs     *JobStore
	backup   *Backup
	restore  *Restore
	cleanup  *Cleanup
	ids      int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    store.NewMemory(),
		primary:  storage.NewMemory("primary"),
		replica:  storage.NewMemory("replica"),
		dumper:   &fakeDumper{data: []byte("PGDMP archive")},
		executor: &fakeExecutor{dir: t.TempDir(), tables: 12},
		locker:   &fakeLocker{held: map[string]bool{}},
	}
	f.store.PutTenant(acme)

	manager, err := storage.NewManager([]storage.Backend{f.primary, f.replica},
		storage.RetryPolicy{Attempts: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)

	clock := func() time.Time { return testNow }
	newID := func() string {
		f.ids++
		return fmt.Sprintf("id-%d", f.ids)
	}

	f.jobs = NewJobStore(f.store, nil, zerolog.Nop())
	f.jobs.now, f.jobs.newID = clock, newID
	f.backup = NewBackup(f.store, f.dumper, manager, zerolog.Nop())
	f.backup.now, f.backup.newID = clock, newID
	f.restore = NewRestore(f.store, f.backup, f.executor, f.locker, 0, zerolog.Nop())
	f.restore.now = clock
	f.cleanup = NewCleanup(f.store, manager, zerolog.Nop())
	f.cleanup.now = clock
	return f
}

// seedBackup stores a backup job in the given status. Completed jobs get an
// archive on the primary backend.
func (f *fixture) seedBackup(t *testing.T, id, backupType, schema, status string) *model.BackupJob {
	t.Helper()
	ctx := context.Background()
	job, err := model.NewBackupJob(id, "test "+id, backupType, schema, "ops", testNow.Add(-time.Hour))
	require.NoError(t, err)
	if status != model.JobStatusPending {
		require.NoError(t, job.MarkAsRunning(testNow.Add(-time.Hour)))
	}
	if status == model.JobStatusCompleted {
		path := backupKey(job)
		require.NoError(t, f.primary.Put(ctx, path, []byte("PGDMP "+id)))
		require.NoError(t, job.MarkAsCompleted(testNow.Add(-50*time.Minute), path, 6, []string{"primary"}))
	}
	require.NoError(t, f.store.CreateBackupJob(ctx, job))
	return job
}

// seedRestore stores a running restore job of the given source.
func (f *fixture) seedRestore(t *testing.T, id string, source *model.BackupJob, snap *model.TenantSnapshot) *model.RestoreJob {
	t.Helper()
	restoreType := model.RestoreTypeSingleTenant
	if snap != nil {
		restoreType = model.RestoreTypeSnapshotRestore
	}
	job, err := model.NewRestoreJob(model.NewRestoreJobParams{
		ID:               id,
		RestoreType:      restoreType,
		SourceBackup:     source,
		SourceSnapshot:   snap,
		Target:           &acme,
		ConfirmationText: acme.DomainURL,
		CreatedBy:        "ops",
		Now:              testNow,
	})
	require.NoError(t, err)
	require.NoError(t, job.MarkAsRunning(testNow))
	require.NoError(t, f.store.CreateRestoreJob(context.Background(), job))
	return job
}

// seedSnapshot stores a completed snapshot backed by a completed tenant
// backup.
func (f *fixture) seedSnapshot(t *testing.T, id string, created time.Time) (*model.TenantSnapshot, *model.BackupJob) {
	t.Helper()
	job := f.seedBackup(t, "job-"+id, model.BackupTypeTenantOnly, "acme", model.JobStatusCompleted)
	snap, err := model.NewTenantSnapshot(id, model.SnapshotTypePreOperation, &acme, "price update", job.JobID, "ops", 0, created)
	require.NoError(t, err)
	require.NoError(t, snap.MarkCompleted(created))
	require.NoError(t, f.store.CreateSnapshot(context.Background(), snap))
	return snap, job
}
