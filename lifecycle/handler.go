package lifecycle

import (
	"context"

	"github.com/xraph/acpflow/job"
)

// Handler reacts to a job entering a state. Handlers registered for the
// same state run in registration order; a handler may move the job to
// another state by calling [Orchestrator.Transition], which stops the
// remaining handlers for the old state from running.
//
// Handler errors are recorded on the job and logged, but do not abort
// the dispatch of subsequent handlers.
type Handler interface {
	// Name identifies the handler in logs and error details.
	Name() string

	// HandleJob processes the job in its current state. The record is
	// the authoritative copy for the duration of the dispatch; mutations
	// are persisted by the orchestrator after the handler returns.
	HandleJob(ctx context.Context, rec *job.Record) error
}

type handlerFunc struct {
	name string
	fn   func(ctx context.Context, rec *job.Record) error
}

func (h *handlerFunc) Name() string { return h.name }

func (h *handlerFunc) HandleJob(ctx context.Context, rec *job.Record) error {
	return h.fn(ctx, rec)
}

// HandlerFunc adapts a function to the Handler interface.
func HandlerFunc(name string, fn func(ctx context.Context, rec *job.Record) error) Handler {
	return &handlerFunc{name: name, fn: fn}
}
