package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xraph/acpflow"
	"github.com/xraph/acpflow/hook"
	"github.com/xraph/acpflow/id"
	"github.com/xraph/acpflow/job"
	mw "github.com/xraph/acpflow/middleware"
)

// SLA breach kinds reported by the monitors.
const (
	// BreachResponseTimeout means the job was not accepted within the
	// SLA response window.
	BreachResponseTimeout = "response_timeout"
	// BreachProcessingTimeout means a processing attempt exceeded the
	// SLA processing window.
	BreachProcessingTimeout = "processing_timeout"
)

// txn marks a context as running inside a job's locked dispatch. Nested
// Transition calls made by handlers find it and reuse the cascade's
// authoritative record instead of re-locking and re-loading.
type txnKey struct{}

type txn struct {
	jobID id.JobID
	rec   *job.Record
}

// Orchestrator owns job records and serializes their lifecycle. All
// mutation of a record flows through the orchestrator, which holds a
// per-job lock for the duration of each dispatch.
type Orchestrator struct {
	store  job.Store
	hooks  *hook.Registry
	logger *slog.Logger
	mws    []mw.Middleware
	chain  mw.Middleware
	locks  *keyedMutex

	mu       sync.RWMutex
	handlers map[job.State][]Handler
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithHooks sets the extension registry. Defaults to an empty registry.
func WithHooks(r *hook.Registry) Option {
	return func(o *Orchestrator) { o.hooks = r }
}

// WithMiddleware appends middleware to the handler dispatch chain.
// Middleware run in the order given, outermost first.
func WithMiddleware(m ...mw.Middleware) Option {
	return func(o *Orchestrator) { o.mws = append(o.mws, m...) }
}

// New creates an Orchestrator backed by the given store.
func New(store job.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		logger:   slog.Default(),
		locks:    newKeyedMutex(),
		handlers: make(map[job.State][]Handler),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.hooks == nil {
		o.hooks = hook.NewRegistry(o.logger)
	}
	o.chain = mw.Chain(o.mws...)
	return o
}

// Hooks returns the orchestrator's extension registry.
func (o *Orchestrator) Hooks() *hook.Registry { return o.hooks }

// RegisterHandler registers a handler for jobs entering state. Handlers
// for the same state run in registration order.
func (o *Orchestrator) RegisterHandler(state job.State, h Handler) error {
	if !state.Valid() {
		return fmt.Errorf("lifecycle: register handler %s for %q: %w", h.Name(), state, acpflow.ErrUnknownState)
	}
	o.mu.Lock()
	o.handlers[state] = append(o.handlers[state], h)
	o.mu.Unlock()
	return nil
}

// CreateJob persists a new record in its initial state and dispatches
// the intake handlers. The returned record reflects any transitions the
// handlers performed, so a job may come back already accepted, rejected,
// or further along.
func (o *Orchestrator) CreateJob(ctx context.Context, spec job.Spec) (*job.Record, error) {
	rec := job.New(spec)
	if err := o.store.CreateJob(ctx, rec); err != nil {
		return nil, fmt.Errorf("lifecycle: create job: %w", err)
	}

	o.logger.Info("job created",
		slog.String("job_id", rec.ID.String()),
		slog.String("job_type", string(rec.Spec.Type)),
		slog.String("requester", rec.Spec.RequesterID),
	)
	o.hooks.EmitJobCreated(ctx, rec)

	unlock := o.locks.lock(rec.ID.String())
	defer unlock()
	ctx = context.WithValue(ctx, txnKey{}, &txn{jobID: rec.ID, rec: rec})

	if err := o.dispatch(ctx, rec, rec.State); err != nil {
		return rec, err
	}
	return rec, nil
}

// Transition moves a job to newState, appends the history entry,
// persists the record, notifies extensions, and dispatches the handlers
// registered for newState. Transitions for the same job are serialized;
// a call made from inside a handler joins the ongoing dispatch instead
// of deadlocking.
func (o *Orchestrator) Transition(ctx context.Context, jobID id.JobID, newState job.State, reason string) error {
	if !newState.Valid() {
		return fmt.Errorf("lifecycle: transition to %q: %w", newState, acpflow.ErrUnknownState)
	}
	return o.withJob(ctx, jobID, func(ctx context.Context, rec *job.Record) error {
		if rec.State.Terminal() {
			return fmt.Errorf("lifecycle: job %s in %s: %w", jobID, rec.State, acpflow.ErrTerminalState)
		}
		return o.transition(ctx, rec, newState, reason)
	})
}

// Get returns the job record with the given ID.
func (o *Orchestrator) Get(ctx context.Context, jobID id.JobID) (*job.Record, error) {
	return o.store.GetJob(ctx, jobID)
}

// JobsByState returns jobs in the given state, oldest first.
func (o *Orchestrator) JobsByState(ctx context.Context, state job.State, offset, limit int) ([]*job.Record, error) {
	return o.store.ListJobsByState(ctx, state, offset, limit)
}

// JobsByRequester returns jobs submitted by the given requester, oldest
// first.
func (o *Orchestrator) JobsByRequester(ctx context.Context, requesterID string, offset, limit int) ([]*job.Record, error) {
	return o.store.ListJobsByRequester(ctx, requesterID, offset, limit)
}

// CountByState returns the number of jobs per state.
func (o *Orchestrator) CountByState(ctx context.Context) (map[job.State]int, error) {
	return o.store.CountJobsByState(ctx)
}

// Mutate runs fn with the job's record under its lock and persists the
// result. It is the escape hatch for services that need to update record
// fields outside a transition, such as payment settlement metadata.
func (o *Orchestrator) Mutate(ctx context.Context, jobID id.JobID, fn func(rec *job.Record) error) error {
	return o.withJob(ctx, jobID, func(ctx context.Context, rec *job.Record) error {
		if err := fn(rec); err != nil {
			return err
		}
		rec.Touch()
		if err := o.store.UpdateJob(ctx, rec); err != nil {
			return fmt.Errorf("lifecycle: update job %s: %w", jobID, err)
		}
		return nil
	})
}

// CancelJob cancels a job that has not yet completed processing.
// Cancellation is allowed from the pending, validating, accepted, and
// processing states only.
func (o *Orchestrator) CancelJob(ctx context.Context, jobID id.JobID, reason string) error {
	return o.withJob(ctx, jobID, func(ctx context.Context, rec *job.Record) error {
		switch rec.State {
		case job.StatePending, job.StateValidating, job.StateAccepted, job.StateProcessing:
			return o.transition(ctx, rec, job.StateCancelled, reason)
		default:
			return fmt.Errorf("lifecycle: cancel job %s in %s: %w", jobID, rec.State, acpflow.ErrNotCancellable)
		}
	})
}

// DisputeJob moves a job into dispute resolution. Disputes may be
// raised against any job except one that was rejected, cancelled, or is
// already disputed. A finalized job may still be disputed.
func (o *Orchestrator) DisputeJob(ctx context.Context, jobID id.JobID, reason string) error {
	return o.withJob(ctx, jobID, func(ctx context.Context, rec *job.Record) error {
		switch rec.State {
		case job.StateRejected, job.StateCancelled, job.StateDisputed:
			return fmt.Errorf("lifecycle: dispute job %s in %s: %w", jobID, rec.State, acpflow.ErrTerminalState)
		default:
			return o.transition(ctx, rec, job.StateDisputed, reason)
		}
	})
}

// HandleSLABreach reacts to a breach reported by a monitor. Response
// timeouts reject the job; processing timeouts retry it against the SLA
// retry budget, then fail it.
func (o *Orchestrator) HandleSLABreach(ctx context.Context, jobID id.JobID, breach string) error {
	return o.withJob(ctx, jobID, func(ctx context.Context, rec *job.Record) error {
		o.logger.Warn("sla breach",
			slog.String("job_id", rec.ID.String()),
			slog.String("state", string(rec.State)),
			slog.String("breach", breach),
		)
		o.hooks.EmitSLABreach(ctx, rec, breach)

		switch breach {
		case BreachResponseTimeout:
			switch rec.State {
			case job.StatePending, job.StateValidating, job.StateAccepted:
				rec.LastError = "response SLA exceeded"
				return o.transition(ctx, rec, job.StateRejected, "sla response timeout")
			}
			return nil

		case BreachProcessingTimeout:
			if rec.State != job.StateProcessing {
				return nil
			}
			sla := rec.Spec.EffectiveSLA()
			if rec.RetryCount < sla.MaxRetries {
				rec.RetryCount++
				rec.ProcessingStartedAt = nil
				return o.transition(ctx, rec, job.StateAccepted,
					fmt.Sprintf("sla retry %d/%d", rec.RetryCount, sla.MaxRetries))
			}
			rec.LastError = acpflow.ErrMaxRetriesExceeded.Error()
			return o.transition(ctx, rec, job.StateProcessingError, "sla retries exhausted")

		default:
			return nil
		}
	})
}

// withJob runs fn with the job's record under its lock. If the context
// already carries the lock for this job, fn joins the ongoing dispatch
// and operates on the cascade's record.
func (o *Orchestrator) withJob(ctx context.Context, jobID id.JobID, fn func(ctx context.Context, rec *job.Record) error) error {
	if t, ok := ctx.Value(txnKey{}).(*txn); ok && t.jobID == jobID {
		return fn(ctx, t.rec)
	}

	unlock := o.locks.lock(jobID.String())
	defer unlock()

	rec, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("lifecycle: load job %s: %w", jobID, err)
	}

	ctx = context.WithValue(ctx, txnKey{}, &txn{jobID: jobID, rec: rec})
	return fn(ctx, rec)
}

// transition performs the state change on an already-locked record.
func (o *Orchestrator) transition(ctx context.Context, rec *job.Record, newState job.State, reason string) error {
	from := rec.State
	rec.RecordTransition(newState, reason)

	if err := o.store.UpdateJob(ctx, rec); err != nil {
		return fmt.Errorf("lifecycle: update job %s: %w", rec.ID, err)
	}

	o.logger.Info("job state changed",
		slog.String("job_id", rec.ID.String()),
		slog.String("from", string(from)),
		slog.String("to", string(newState)),
		slog.String("reason", reason),
	)
	o.hooks.EmitStateChanged(ctx, rec, from, newState, reason)

	switch newState {
	case job.StateRejected:
		o.hooks.EmitJobRejected(ctx, rec, reason)
	case job.StateFinalized:
		o.hooks.EmitJobFinalized(ctx, rec)
	}

	return o.dispatch(ctx, rec, newState)
}

// dispatch runs the handlers registered for state. Each handler call is
// wrapped in the middleware chain. A handler that cascades the job to a
// different state stops the remaining handlers for this state.
func (o *Orchestrator) dispatch(ctx context.Context, rec *job.Record, state job.State) error {
	o.mu.RLock()
	hs := o.handlers[state]
	o.mu.RUnlock()

	for _, h := range hs {
		if rec.State != state {
			break
		}
		handler := h
		err := o.chain(ctx, rec, func(ctx context.Context) error {
			return handler.HandleJob(ctx, rec)
		})
		if err != nil {
			rec.LastError = err.Error()
			rec.SetErrorDetail("failed_handler", handler.Name())
			o.logger.Error("lifecycle handler failed",
				slog.String("job_id", rec.ID.String()),
				slog.String("state", string(state)),
				slog.String("handler", handler.Name()),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := o.store.UpdateJob(ctx, rec); err != nil {
		return fmt.Errorf("lifecycle: update job %s: %w", rec.ID, err)
	}
	return nil
}
