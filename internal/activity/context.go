package activity

import (
	"context"
	"errors"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/edvin/zargar/internal/model"
	"github.com/edvin/zargar/internal/store"
)

// heartbeatInterval is how often long-running steps report liveness.
const heartbeatInterval = 10 * time.Second

// heartbeat records a heartbeat when ctx belongs to a running activity.
// Activity structs are also called directly from tests and from other
// activities, where no activity context exists.
func heartbeat(ctx context.Context, details ...any) {
	if activity.IsActivity(ctx) {
		activity.RecordHeartbeat(ctx, details...)
	}
}

// keepAlive heartbeats in the background until the returned stop func is
// called. It is used around subprocesses that do not report progress.
func keepAlive(ctx context.Context, step string) func() {
	if !activity.IsActivity(ctx) {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				activity.RecordHeartbeat(ctx, step)
			}
		}
	}()
	return func() { close(done) }
}

// nonRetryable converts state machine and lookup failures into errors that
// Temporal will not retry.
func nonRetryable(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return temporal.NewNonRetryableApplicationError(err.Error(), "NotFound", err)
	case errors.Is(err, model.ErrTerminalState), errors.Is(err, model.ErrInvalidTransition), errors.Is(err, model.ErrSnapshotRetired):
		return temporal.NewNonRetryableApplicationError(err.Error(), "JobStateError", err)
	}
	return err
}
