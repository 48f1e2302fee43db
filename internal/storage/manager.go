package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// UploadResult reports where a blob landed. Success means at least one
// backend stored it.
type UploadResult struct {
	Success    bool              `json:"success"`
	UploadedTo []string          `json:"uploaded_to"`
	Errors     map[string]string `json:"errors,omitempty"`
}

// DeleteResult reports a deletion. Success means no backend failed.
type DeleteResult struct {
	Success     bool              `json:"success"`
	DeletedFrom []string          `json:"deleted_from"`
	Errors      map[string]string `json:"errors,omitempty"`
}

// Err folds the per-backend errors into one error, or nil.
func (r UploadResult) Err() error { return foldErrors(r.Errors) }

// Err folds the per-backend errors into one error, or nil.
func (r DeleteResult) Err() error { return foldErrors(r.Errors) }

func foldErrors(errs map[string]string) error {
	if len(errs) == 0 {
		return nil
	}
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Strings(names)
	var result *multierror.Error
	for _, name := range names {
		result = multierror.Append(result, fmt.Errorf("%s: %s", name, errs[name]))
	}
	return result.ErrorOrNil()
}

// Manager writes backups to every configured backend and reads them back
// from the first backend that has them. The first backend is the primary.
type Manager struct {
	backends []Backend
	retry    RetryPolicy
	logger   zerolog.Logger
}

func NewManager(backends []Backend, policy RetryPolicy, logger zerolog.Logger) (*Manager, error) {
	if len(backends) == 0 {
		return nil, errors.New("at least one storage backend is required")
	}
	if policy.Attempts <= 0 {
		policy = DefaultRetryPolicy
	}
	return &Manager{
		backends: backends,
		retry:    policy,
		logger:   logger.With().Str("component", "storage").Logger(),
	}, nil
}

// Backends returns the backend names in priority order.
func (m *Manager) Backends() []string {
	names := make([]string, len(m.backends))
	for i, b := range m.backends {
		names[i] = b.Name()
	}
	return names
}

// UploadBackupFile stores content under path on the primary backend, or on
// every backend in parallel when useRedundant is set.
func (m *Manager) UploadBackupFile(ctx context.Context, path string, content []byte, useRedundant bool) UploadResult {
	targets := m.backends[:1]
	if useRedundant {
		targets = m.backends
	}

	stored := make([]bool, len(targets))
	var mu sync.Mutex
	errs := map[string]string{}

	g, gctx := errgroup.WithContext(ctx)
	for i, b := range targets {
		g.Go(func() error {
			err := retry(gctx, m.retry, func() error { return b.Put(gctx, path, content) })
			if err != nil {
				m.logger.Warn().Err(err).Str("backend", b.Name()).Str("path", path).Msg("upload failed")
				mu.Lock()
				errs[b.Name()] = err.Error()
				mu.Unlock()
				return nil
			}
			stored[i] = true
			return nil
		})
	}
	_ = g.Wait()

	result := UploadResult{UploadedTo: []string{}}
	for i, ok := range stored {
		if ok {
			result.UploadedTo = append(result.UploadedTo, targets[i].Name())
		}
	}
	result.Success = len(result.UploadedTo) > 0
	if len(errs) > 0 {
		result.Errors = errs
	}
	return result
}

// DownloadBackupFile returns the blob from the first backend holding it.
// Empty blobs are treated as missing.
func (m *Manager) DownloadBackupFile(ctx context.Context, path string) ([]byte, error) {
	var errs *multierror.Error
	for _, b := range m.backends {
		var data []byte
		err := retry(ctx, m.retry, func() error {
			var getErr error
			data, getErr = b.Get(ctx, path)
			return getErr
		})
		switch {
		case errors.Is(err, ErrBlobNotFound):
			continue
		case err != nil:
			m.logger.Warn().Err(err).Str("backend", b.Name()).Str("path", path).Msg("download failed, trying next backend")
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		case len(data) == 0:
			errs = multierror.Append(errs, fmt.Errorf("%s: empty blob %s", b.Name(), path))
			continue
		}
		return data, nil
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("download %s: %w", path, err)
	}
	return nil, fmt.Errorf("download %s: %w", path, ErrBlobNotFound)
}

// DeleteBackupFile removes path from the primary backend, or from every
// backend when fromAllBackends is set.
func (m *Manager) DeleteBackupFile(ctx context.Context, path string, fromAllBackends bool) DeleteResult {
	targets := m.backends[:1]
	if fromAllBackends {
		targets = m.backends
	}
	result := DeleteResult{DeletedFrom: []string{}}
	for _, b := range targets {
		if err := retry(ctx, m.retry, func() error { return b.Delete(ctx, path) }); err != nil {
			if result.Errors == nil {
				result.Errors = map[string]string{}
			}
			result.Errors[b.Name()] = err.Error()
			continue
		}
		result.DeletedFrom = append(result.DeletedFrom, b.Name())
	}
	result.Success = len(result.Errors) == 0
	return result
}
