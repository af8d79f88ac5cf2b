package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/acpflow/hook"
	"github.com/xraph/acpflow/job"
)

// Compile-time interface checks.
var (
	_ hook.Extension    = (*Extension)(nil)
	_ hook.JobCreated   = (*Extension)(nil)
	_ hook.StateChanged = (*Extension)(nil)
	_ hook.JobRejected  = (*Extension)(nil)
	_ hook.JobCompleted = (*Extension)(nil)
	_ hook.JobFinalized = (*Extension)(nil)
	_ hook.SLABreach    = (*Extension)(nil)
	_ hook.DeadLettered = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It is defined locally so that callers can bridge to any audit system
// without this package importing it.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges acpflow lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements hook.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// OnJobCreated implements hook.JobCreated.
func (e *Extension) OnJobCreated(ctx context.Context, rec *job.Record) error {
	return e.record(ctx, ActionJobCreated, SeverityInfo, OutcomeSuccess,
		rec.ID.String(), CategoryLifecycle, nil,
		"job_type", string(rec.Spec.Type),
		"category", string(rec.Spec.Category),
		"requester", rec.Spec.RequesterID,
	)
}

// OnStateChanged implements hook.StateChanged.
func (e *Extension) OnStateChanged(ctx context.Context, rec *job.Record, from, to job.State, reason string) error {
	return e.record(ctx, ActionStateChanged, SeverityInfo, OutcomeSuccess,
		rec.ID.String(), CategoryLifecycle, nil,
		"job_type", string(rec.Spec.Type),
		"from", string(from),
		"to", string(to),
		"reason", reason,
	)
}

// OnJobRejected implements hook.JobRejected.
func (e *Extension) OnJobRejected(ctx context.Context, rec *job.Record, reason string) error {
	return e.record(ctx, ActionJobRejected, SeverityWarning, OutcomeFailure,
		rec.ID.String(), CategoryLifecycle, nil,
		"job_type", string(rec.Spec.Type),
		"requester", rec.Spec.RequesterID,
		"reason", reason,
	)
}

// OnJobCompleted implements hook.JobCompleted.
func (e *Extension) OnJobCompleted(ctx context.Context, rec *job.Record, elapsed time.Duration) error {
	return e.record(ctx, ActionJobCompleted, SeverityInfo, OutcomeSuccess,
		rec.ID.String(), CategoryLifecycle, nil,
		"job_type", string(rec.Spec.Type),
		"retry_count", rec.RetryCount,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnJobFinalized implements hook.JobFinalized.
func (e *Extension) OnJobFinalized(ctx context.Context, rec *job.Record) error {
	return e.record(ctx, ActionJobFinalized, SeverityInfo, OutcomeSuccess,
		rec.ID.String(), CategoryLifecycle, nil,
		"job_type", string(rec.Spec.Type),
		"payment_status", string(rec.PaymentStatus),
		"payment_amount", rec.PaymentAmount,
	)
}

// OnSLABreach implements hook.SLABreach.
func (e *Extension) OnSLABreach(ctx context.Context, rec *job.Record, breach string) error {
	return e.record(ctx, ActionSLABreach, SeverityWarning, OutcomeFailure,
		rec.ID.String(), CategorySLA, nil,
		"job_type", string(rec.Spec.Type),
		"breach", breach,
		"state", string(rec.State),
		"retry_count", rec.RetryCount,
	)
}

// OnDeadLettered implements hook.DeadLettered.
func (e *Extension) OnDeadLettered(ctx context.Context, rec *job.Record, jobErr error) error {
	return e.record(ctx, ActionJobDeadLettered, SeverityCritical, OutcomeFailure,
		rec.ID.String(), CategoryLifecycle, jobErr,
		"job_type", string(rec.Spec.Type),
		"state", string(rec.State),
		"retry_count", rec.RetryCount,
	)
}

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   ResourceJob,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
