// Package pgexec runs pg_dump, pg_restore and psql against the tenant
// database, optionally scoped to a single schema.
package pgexec

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/edvin/zargar/internal/model"
)

// Querier is the read access VerifySchema needs. *pgxpool.Pool satisfies it.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Timeouts bounds each kind of external command. Zero values fall back to
// the defaults applied by New.
type Timeouts struct {
	Dump     time.Duration
	FullDump time.Duration
	Drop     time.Duration
}

// Options configures an Executor.
type Options struct {
	// DatabaseURL is a postgres:// URL. The password is moved into
	// PGPASSWORD and never appears in argv.
	DatabaseURL string
	BinDir      string
	WorkDir     string
	Timeouts    Timeouts
}

// Executor runs the PostgreSQL client tools for dumps, restores and schema
// drops.
type Executor struct {
	runner   Runner
	db       Querier
	connURL  string
	password string
	binDir   string
	workDir  string
	timeouts Timeouts
	logger   zerolog.Logger
}

// New builds an Executor. A nil runner uses ExecRunner.
func New(opts Options, db Querier, runner Runner, logger zerolog.Logger) (*Executor, error) {
	connURL, password, err := splitPassword(opts.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	t := opts.Timeouts
	if t.Dump <= 0 {
		t.Dump = 30 * time.Minute
	}
	if t.FullDump <= 0 {
		t.FullDump = 60 * time.Minute
	}
	if t.Drop <= 0 {
		t.Drop = 5 * time.Minute
	}
	workDir := opts.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Executor{
		runner:   runner,
		db:       db,
		connURL:  connURL,
		password: password,
		binDir:   opts.BinDir,
		workDir:  workDir,
		timeouts: t,
		logger:   logger.With().Str("component", "pgexec").Logger(),
	}, nil
}

func splitPassword(databaseURL string) (string, string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		return "", "", fmt.Errorf("target database url must be a postgres:// URL")
	}
	var password string
	if u.User != nil {
		password, _ = u.User.Password()
		u.User = url.User(u.User.Username())
	}
	return u.String(), password, nil
}

// DumpOptions selects what Dump captures. An empty Schema dumps the whole
// database.
type DumpOptions struct {
	Schema  string
	Timeout time.Duration
}

// DumpTimeout returns the ceiling for a dump of the given backup type.
func (e *Executor) DumpTimeout(backupType string) time.Duration {
	switch backupType {
	case model.BackupTypeFullSystem, model.BackupTypeDatabaseOnly:
		return e.timeouts.FullDump
	}
	return e.timeouts.Dump
}

// Dump runs pg_dump in custom format into a temp file and returns its
// contents.
func (e *Executor) Dump(ctx context.Context, opts DumpOptions) ([]byte, error) {
	f, err := os.CreateTemp(e.workDir, "zargar-dump-*.dump")
	if err != nil {
		return nil, fmt.Errorf("create dump file: %w", err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	args := []string{"--format=custom", "--clean", "--no-acl", "--no-owner"}
	if opts.Schema != "" {
		args = append(args, "--schema="+opts.Schema)
	}
	args = append(args, "--file="+path, "--dbname="+e.connURL)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.timeouts.FullDump
		if opts.Schema != "" {
			timeout = e.timeouts.Dump
		}
	}
	if _, err := e.run(ctx, timeout, "pg_dump", args); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dump file: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("pg_dump produced an empty file")
	}
	return data, nil
}

// DropSchema runs DROP SCHEMA ... CASCADE. Irreversible; callers take a
// safety snapshot first unless they restore from one.
func (e *Executor) DropSchema(ctx context.Context, name string) error {
	if err := checkSchema(name); err != nil {
		return err
	}
	e.logger.Warn().Str("schema", name).Msg("dropping schema")
	return e.psql(ctx, e.timeouts.Drop, "DROP SCHEMA IF EXISTS "+QuoteIdent(name)+" CASCADE")
}

// RestoreOptions selects what Restore applies. An empty Schema restores
// everything in the archive.
type RestoreOptions struct {
	Schema  string
	Timeout time.Duration
}

// Restore writes blob to a temp file and restores it with pg_restore.
func (e *Executor) Restore(ctx context.Context, blob []byte, opts RestoreOptions) error {
	path, err := e.StageFile(blob)
	if err != nil {
		return err
	}
	defer os.Remove(path)
	return e.RestoreFile(ctx, path, opts)
}

// StageFile writes blob into the work directory and returns its path. The
// caller removes the file.
func (e *Executor) StageFile(blob []byte) (string, error) {
	f, err := os.CreateTemp(e.workDir, "zargar-restore-*.dump")
	if err != nil {
		return "", fmt.Errorf("create restore file: %w", err)
	}
	if _, err := f.Write(blob); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write restore file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close restore file: %w", err)
	}
	return filepath.Clean(f.Name()), nil
}

// RestoreFile runs pg_restore on an already staged archive. A non-zero exit
// is tolerated when every reported error is an "already exists" class
// warning.
func (e *Executor) RestoreFile(ctx context.Context, path string, opts RestoreOptions) error {
	if opts.Schema != "" {
		if err := checkSchema(opts.Schema); err != nil {
			return err
		}
		// pg_restore --schema does not emit CREATE SCHEMA.
		if err := e.psql(ctx, e.timeouts.Drop, "CREATE SCHEMA IF NOT EXISTS "+QuoteIdent(opts.Schema)); err != nil {
			return err
		}
	}

	args := []string{"--clean", "--if-exists", "--no-acl", "--no-owner"}
	if opts.Schema != "" {
		args = append(args, "--schema="+opts.Schema)
	}
	args = append(args, "--dbname="+e.connURL, path)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.timeouts.FullDump
		if opts.Schema != "" {
			timeout = e.timeouts.Dump
		}
	}
	stderr, err := e.run(ctx, timeout, "pg_restore", args)
	if err == nil {
		return nil
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) && execErr.ExitCode > 0 && restoreErrorsIgnorable(stderr) {
		e.logger.Warn().Str("schema", opts.Schema).Str("stderr", execErr.Stderr).Msg("pg_restore reported ignorable errors")
		return nil
	}
	return err
}

// VerifySchema returns the number of tables in the schema. A schema without
// tables yields ErrSchemaEmpty.
func (e *Executor) VerifySchema(ctx context.Context, name string) (int, error) {
	var count int64
	err := e.db.QueryRow(ctx,
		`SELECT count(*) FROM information_schema.tables WHERE table_schema = $1`, name,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count tables in %s: %w", name, err)
	}
	if count == 0 {
		return 0, fmt.Errorf("verify %s: %w", name, ErrSchemaEmpty)
	}
	return int(count), nil
}

func (e *Executor) psql(ctx context.Context, timeout time.Duration, statement string) error {
	_, err := e.run(ctx, timeout, "psql", []string{
		"--no-psqlrc", "-v", "ON_ERROR_STOP=1", "--dbname=" + e.connURL, "-c", statement,
	})
	return err
}

func (e *Executor) run(ctx context.Context, timeout time.Duration, name string, args []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bin := name
	if e.binDir != "" {
		bin = filepath.Join(e.binDir, name)
	}
	var env []string
	if e.password != "" {
		env = append(env, "PGPASSWORD="+e.password)
	}

	start := time.Now()
	stderr, err := e.runner.Run(ctx, Command{Name: bin, Args: args, Env: env})
	e.logger.Debug().Str("command", name).Dur("elapsed", time.Since(start)).Err(err).Msg("subprocess finished")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return stderr, &ExecutionError{
			Command:  name,
			ExitCode: exitCode(err),
			Stderr:   sanitizeStderr(stderr),
			Err:      err,
		}
	}
	return stderr, nil
}

func checkSchema(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("schema name is required")
	}
	if model.IsReservedSchema(name) {
		return fmt.Errorf("%s: %w", name, ErrReservedSchema)
	}
	return nil
}

// QuoteIdent quotes a Postgres identifier, doubling embedded quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
