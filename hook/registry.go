package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/acpflow/job"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type jobCreatedEntry struct {
	name string
	hook JobCreated
}

type stateChangedEntry struct {
	name string
	hook StateChanged
}

type jobRejectedEntry struct {
	name string
	hook JobRejected
}

type jobCompletedEntry struct {
	name string
	hook JobCompleted
}

type jobFinalizedEntry struct {
	name string
	hook JobFinalized
}

type slaBreachEntry struct {
	name string
	hook SLABreach
}

type deadLetteredEntry struct {
	name string
	hook DeadLettered
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	jobCreated   []jobCreatedEntry
	stateChanged []stateChangedEntry
	jobRejected  []jobRejectedEntry
	jobCompleted []jobCompletedEntry
	jobFinalized []jobFinalizedEntry
	slaBreach    []slaBreachEntry
	deadLettered []deadLetteredEntry
	shutdown     []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobCreated); ok {
		r.jobCreated = append(r.jobCreated, jobCreatedEntry{name, h})
	}
	if h, ok := e.(StateChanged); ok {
		r.stateChanged = append(r.stateChanged, stateChangedEntry{name, h})
	}
	if h, ok := e.(JobRejected); ok {
		r.jobRejected = append(r.jobRejected, jobRejectedEntry{name, h})
	}
	if h, ok := e.(JobCompleted); ok {
		r.jobCompleted = append(r.jobCompleted, jobCompletedEntry{name, h})
	}
	if h, ok := e.(JobFinalized); ok {
		r.jobFinalized = append(r.jobFinalized, jobFinalizedEntry{name, h})
	}
	if h, ok := e.(SLABreach); ok {
		r.slaBreach = append(r.slaBreach, slaBreachEntry{name, h})
	}
	if h, ok := e.(DeadLettered); ok {
		r.deadLettered = append(r.deadLettered, deadLetteredEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitJobCreated notifies all extensions that implement JobCreated.
func (r *Registry) EmitJobCreated(ctx context.Context, rec *job.Record) {
	for _, e := range r.jobCreated {
		if err := e.hook.OnJobCreated(ctx, rec); err != nil {
			r.logHookError("OnJobCreated", e.name, err)
		}
	}
}

// EmitStateChanged notifies all extensions that implement StateChanged.
func (r *Registry) EmitStateChanged(ctx context.Context, rec *job.Record, from, to job.State, reason string) {
	for _, e := range r.stateChanged {
		if err := e.hook.OnStateChanged(ctx, rec, from, to, reason); err != nil {
			r.logHookError("OnStateChanged", e.name, err)
		}
	}
}

// EmitJobRejected notifies all extensions that implement JobRejected.
func (r *Registry) EmitJobRejected(ctx context.Context, rec *job.Record, reason string) {
	for _, e := range r.jobRejected {
		if err := e.hook.OnJobRejected(ctx, rec, reason); err != nil {
			r.logHookError("OnJobRejected", e.name, err)
		}
	}
}

// EmitJobCompleted notifies all extensions that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, rec *job.Record, elapsed time.Duration) {
	for _, e := range r.jobCompleted {
		if err := e.hook.OnJobCompleted(ctx, rec, elapsed); err != nil {
			r.logHookError("OnJobCompleted", e.name, err)
		}
	}
}

// EmitJobFinalized notifies all extensions that implement JobFinalized.
func (r *Registry) EmitJobFinalized(ctx context.Context, rec *job.Record) {
	for _, e := range r.jobFinalized {
		if err := e.hook.OnJobFinalized(ctx, rec); err != nil {
			r.logHookError("OnJobFinalized", e.name, err)
		}
	}
}

// EmitSLABreach notifies all extensions that implement SLABreach.
func (r *Registry) EmitSLABreach(ctx context.Context, rec *job.Record, breach string) {
	for _, e := range r.slaBreach {
		if err := e.hook.OnSLABreach(ctx, rec, breach); err != nil {
			r.logHookError("OnSLABreach", e.name, err)
		}
	}
}

// EmitDeadLettered notifies all extensions that implement DeadLettered.
func (r *Registry) EmitDeadLettered(ctx context.Context, rec *job.Record, jobErr error) {
	for _, e := range r.deadLettered {
		if err := e.hook.OnDeadLettered(ctx, rec, jobErr); err != nil {
			r.logHookError("OnDeadLettered", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated; they must not block the pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
