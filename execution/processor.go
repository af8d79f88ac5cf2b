package execution

import (
	"context"
	"sync"

	"github.com/xraph/acpflow/job"
)

// Processor executes the domain work for one job type. The context
// carries the SLA processing deadline; a processor that overruns it
// should return ctx.Err().
type Processor interface {
	Process(ctx context.Context, rec *job.Record) (*job.Result, error)
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, rec *job.Record) (*job.Result, error)

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, rec *job.Record) (*job.Result, error) {
	return f(ctx, rec)
}

// Registry maps job types to processors. Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	processors map[job.Type]Processor
}

// NewRegistry creates an empty processor registry.
func NewRegistry() *Registry {
	return &Registry{processors: make(map[job.Type]Processor)}
}

// Register binds a processor to a job type, replacing any previous
// binding.
func (r *Registry) Register(typ job.Type, p Processor) {
	r.mu.Lock()
	r.processors[typ] = p
	r.mu.Unlock()
}

// Lookup returns the processor for a job type.
func (r *Registry) Lookup(typ job.Type) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[typ]
	return p, ok
}

// Types returns the registered job types.
func (r *Registry) Types() []job.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]job.Type, 0, len(r.processors))
	for t := range r.processors {
		types = append(types, t)
	}
	return types
}
