package agent

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/acpflow"
	"github.com/xraph/acpflow/backoff"
	"github.com/xraph/acpflow/deadletter"
	"github.com/xraph/acpflow/delivery"
	"github.com/xraph/acpflow/execution"
	"github.com/xraph/acpflow/hook"
	"github.com/xraph/acpflow/id"
	"github.com/xraph/acpflow/intake"
	"github.com/xraph/acpflow/job"
	"github.com/xraph/acpflow/lifecycle"
	mw "github.com/xraph/acpflow/middleware"
	"github.com/xraph/acpflow/observability"
	"github.com/xraph/acpflow/payment"
	"github.com/xraph/acpflow/schedule"
	"github.com/xraph/acpflow/store"
)

const instrumentationName = "github.com/xraph/acpflow"

// Agent is a fully wired job lifecycle engine. Use New to create one,
// Start to begin background monitoring, and SubmitJob to feed it work.
type Agent struct {
	cfg    acpflow.Config
	logger *slog.Logger

	store  store.Store
	orch   *lifecycle.Orchestrator
	hooks  *hook.Registry
	runner *schedule.Runner

	intake      *intake.Service
	execution   *execution.Service
	delivery    *delivery.Service
	payment     *payment.Service
	deadLetters *deadletter.Service

	slaMonitor      *execution.Monitor
	deliveryMonitor *delivery.Monitor
	paymentMonitor  *payment.Monitor

	// Construction-time inputs.
	signer     acpflow.Signer
	sink       delivery.Sink
	settlement payment.Settlement
	directory  intake.Directory
	bo         backoff.Strategy
	mws        []mw.Middleware
	extensions []hook.Extension
	processors map[job.Type]execution.Processor

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	mu      sync.Mutex
	started bool
}

// New builds an Agent from the given options. A store is required;
// every other collaborator has a local stand-in so the engine runs end
// to end out of the box.
func New(opts ...Option) (*Agent, error) {
	a := &Agent{
		cfg:        acpflow.DefaultConfig(),
		logger:     slog.Default(),
		processors: make(map[job.Type]execution.Processor),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.store == nil {
		return nil, acpflow.ErrNoStore
	}
	if a.bo == nil {
		a.bo = backoff.DefaultStrategy()
	}
	if a.directory == nil {
		a.directory = &intake.StaticDirectory{Score: 1.0}
	}
	if a.sink == nil {
		a.sink = &localSink{logger: a.logger}
	}
	if a.settlement == nil {
		a.settlement = &localSettlement{logger: a.logger}
	}

	// Tracing and metrics middleware, from the configured providers or
	// the globals.
	var tracingMw mw.Middleware
	if a.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(a.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}
	var metricsMw mw.Middleware
	if a.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(a.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}

	allMws := append([]mw.Middleware{
		mw.Recover(a.logger),
		tracingMw,
		metricsMw,
		mw.Logging(a.logger),
	}, a.mws...)

	a.hooks = hook.NewRegistry(a.logger)
	a.orch = lifecycle.New(a.store,
		lifecycle.WithLogger(a.logger),
		lifecycle.WithHooks(a.hooks),
		lifecycle.WithMiddleware(allMws...),
	)
	a.runner = schedule.NewRunner(a.logger)

	var obsExt *observability.MetricsExtension
	if a.meterProvider != nil {
		obsExt = observability.NewMetricsExtensionWithMeter(a.meterProvider.Meter(instrumentationName + "/observability"))
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	a.hooks.Register(obsExt)

	a.deadLetters = deadletter.NewService(a.store, a.orch, a.logger)
	a.hooks.Register(a.deadLetters)
	for _, e := range a.extensions {
		a.hooks.Register(e)
	}

	a.intake = intake.NewService(a.orch, a.directory, a.cfg, a.logger)

	registry := execution.NewRegistry()
	for typ, p := range a.processors {
		registry.Register(typ, p)
	}
	a.execution = execution.NewService(a.orch, registry, a.runner, a.bo, a.logger)

	deliveryOpts := []delivery.Option{}
	if a.signer != nil {
		deliveryOpts = append(deliveryOpts, delivery.WithSigner(a.signer))
	}
	a.delivery = delivery.NewService(a.orch, a.sink, a.runner, a.cfg, a.logger, deliveryOpts...)

	a.payment = payment.NewService(a.orch, a.settlement, a.cfg, a.logger)

	// Handlers fire in registration order. Delivery must see COMPLETED
	// before payment does: payment acts only on delivered jobs.
	registrations := []struct {
		state job.State
		h     lifecycle.Handler
	}{
		{job.StatePending, a.intake.Handler()},
		{job.StateAccepted, a.execution.AcceptedHandler()},
		{job.StateProcessing, a.execution.ProcessingHandler()},
		{job.StateCompleted, a.delivery.CompletedHandler()},
		{job.StateCompleted, a.payment.CompletedHandler()},
		{job.StateDelivering, a.delivery.DeliveringHandler()},
	}
	for _, reg := range registrations {
		if err := a.orch.RegisterHandler(reg.state, reg.h); err != nil {
			return nil, err
		}
	}

	a.slaMonitor = execution.NewMonitor(a.orch, a.cfg.SLACheckInterval, a.logger)
	a.deliveryMonitor = delivery.NewMonitor(a.orch, a.runner,
		a.cfg.DeliveryTimeout, a.cfg.DeliveryMonitorInterval, a.logger)
	a.paymentMonitor = payment.NewMonitor(a.orch, a.payment,
		a.cfg.PaymentTimeout, a.cfg.PaymentMonitorInterval, a.logger)

	return a, nil
}

// Start launches the SLA, delivery, and payment monitors. Jobs can be
// submitted before Start; only the time-based scans wait on it.
func (a *Agent) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return
	}
	a.started = true

	a.slaMonitor.Start()
	a.deliveryMonitor.Start()
	a.paymentMonitor.Start()

	a.logger.Info("agent started",
		slog.String("agent_id", a.cfg.AgentID),
		slog.Int("max_concurrent_jobs", a.cfg.MaxConcurrentJobs),
	)
}

// Stop shuts down the monitors and the retry runner, then fires the
// shutdown hooks. When ctx carries no deadline, cfg.ShutdownTimeout is
// applied.
func (a *Agent) Stop(ctx context.Context) error {
	a.mu.Lock()
	a.started = false
	a.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok && a.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.ShutdownTimeout)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.slaMonitor.Stop(gctx) })
	g.Go(func() error { return a.deliveryMonitor.Stop(gctx) })
	g.Go(func() error { return a.paymentMonitor.Stop(gctx) })
	g.Go(func() error { return a.runner.Stop(gctx) })
	err := g.Wait()

	a.hooks.EmitShutdown(ctx)
	a.logger.Info("agent stopped")
	return err
}

// SubmitJob creates a job from the spec and runs it through intake.
// By the time it returns, the job has typically cascaded well past
// PENDING; inspect the returned record's State.
func (a *Agent) SubmitJob(ctx context.Context, spec job.Spec) (*job.Record, error) {
	return a.orch.CreateJob(ctx, spec)
}

// Job returns the current record for the given ID.
func (a *Agent) Job(ctx context.Context, jobID id.JobID) (*job.Record, error) {
	return a.orch.Get(ctx, jobID)
}

// JobsByState lists records in the given state, oldest first.
func (a *Agent) JobsByState(ctx context.Context, state job.State, offset, limit int) ([]*job.Record, error) {
	return a.orch.JobsByState(ctx, state, offset, limit)
}

// JobsByRequester lists records submitted by the given requester,
// oldest first.
func (a *Agent) JobsByRequester(ctx context.Context, requesterID string, offset, limit int) ([]*job.Record, error) {
	return a.orch.JobsByRequester(ctx, requesterID, offset, limit)
}

// Stats returns the number of jobs per state.
func (a *Agent) Stats(ctx context.Context) (map[job.State]int, error) {
	return a.orch.CountByState(ctx)
}

// CancelJob cancels a job that has not yet reached delivery or
// settlement.
func (a *Agent) CancelJob(ctx context.Context, jobID id.JobID, reason string) error {
	return a.orch.CancelJob(ctx, jobID, reason)
}

// DisputeJob moves a finalized job into the disputed state.
func (a *Agent) DisputeJob(ctx context.Context, jobID id.JobID, reason string) error {
	return a.orch.DisputeJob(ctx, jobID, reason)
}

// RefundPayment refunds a completed payment, typically after a dispute
// is resolved in the requester's favor.
func (a *Agent) RefundPayment(ctx context.Context, jobID id.JobID, reason string) error {
	return a.payment.RefundPayment(ctx, jobID, reason)
}

// DeadLetters lists captured error-state jobs, newest failure first.
func (a *Agent) DeadLetters(ctx context.Context, opts deadletter.ListOpts) ([]*deadletter.Entry, error) {
	return a.store.ListDeadLetters(ctx, opts)
}

// ReplayDeadLetter resubmits a dead-lettered spec as a fresh job.
func (a *Agent) ReplayDeadLetter(ctx context.Context, entryID id.DeadLetterID) (*job.Record, error) {
	return a.deadLetters.Replay(ctx, entryID)
}

// RegisterProcessor registers a processor for a job type. Safe to call
// after Start.
func (a *Agent) RegisterProcessor(typ job.Type, p execution.Processor) {
	a.execution.Registry().Register(typ, p)
}

// Validate checks a spec against the agent's acceptance rules without
// creating a job.
func (a *Agent) Validate(ctx context.Context, spec job.Spec) intake.ValidationResult {
	return a.intake.Validate(ctx, spec)
}

// Orchestrator returns the underlying lifecycle orchestrator.
func (a *Agent) Orchestrator() *lifecycle.Orchestrator { return a.orch }

// Hooks returns the extension registry.
func (a *Agent) Hooks() *hook.Registry { return a.hooks }

// Config returns the agent's configuration.
func (a *Agent) Config() acpflow.Config { return a.cfg }
