// Package hook defines the extension system for acpflow.
// Extensions are notified of lifecycle events (job created, state
// changed, SLA breached, etc.) and can react to them: logging,
// metrics, audit trails, etc.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/xraph/acpflow/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// JobCreated is called after a job record is persisted in its initial
// state.
type JobCreated interface {
	OnJobCreated(ctx context.Context, rec *job.Record) error
}

// StateChanged is called after every successful lifecycle transition.
type StateChanged interface {
	OnStateChanged(ctx context.Context, rec *job.Record, from, to job.State, reason string) error
}

// JobRejected is called when intake rejects a job.
type JobRejected interface {
	OnJobRejected(ctx context.Context, rec *job.Record, reason string) error
}

// JobCompleted is called when processing succeeds and a result is
// attached to the record.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, rec *job.Record, elapsed time.Duration) error
}

// JobFinalized is called when a job reaches its successful terminal
// state, with delivery done and payment settled or waived.
type JobFinalized interface {
	OnJobFinalized(ctx context.Context, rec *job.Record) error
}

// SLABreach is called when a monitor detects an SLA violation.
type SLABreach interface {
	OnSLABreach(ctx context.Context, rec *job.Record, breach string) error
}

// DeadLettered is called when a job enters an error state and is
// captured for later inspection or replay.
type DeadLettered interface {
	OnDeadLettered(ctx context.Context, rec *job.Record, jobErr error) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
