package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edvin/zargar/internal/config"
)

// NewFromConfig builds a Manager over the backends listed in cfg, in order.
func NewFromConfig(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	backends := make([]Backend, 0, len(cfg.Backends))
	for _, name := range cfg.Backends {
		b, err := newBackend(ctx, name, cfg)
		if err != nil {
			return nil, fmt.Errorf("storage backend %s: %w", name, err)
		}
		backends = append(backends, b)
	}
	policy := DefaultRetryPolicy
	if cfg.UploadAttempts > 0 {
		policy.Attempts = cfg.UploadAttempts
	}
	return NewManager(backends, policy, logger)
}

func newBackend(ctx context.Context, name string, cfg config.StorageConfig) (Backend, error) {
	switch name {
	case config.BackendLocal:
		return NewLocal(cfg.Local.Dir)
	case config.BackendS3:
		return NewS3(cfg.S3), nil
	case config.BackendGCS:
		return NewGCS(ctx, cfg.GCS)
	case config.BackendAzure:
		return NewAzure(cfg.Azure)
	case config.BackendMemory:
		return NewMemory(name), nil
	}
	return nil, fmt.Errorf("unknown backend %q", name)
}
