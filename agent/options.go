package agent

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/acpflow"
	"github.com/xraph/acpflow/backoff"
	"github.com/xraph/acpflow/delivery"
	"github.com/xraph/acpflow/execution"
	"github.com/xraph/acpflow/hook"
	"github.com/xraph/acpflow/intake"
	"github.com/xraph/acpflow/job"
	mw "github.com/xraph/acpflow/middleware"
	"github.com/xraph/acpflow/payment"
	"github.com/xraph/acpflow/store"
)

// Option configures an Agent.
type Option func(*Agent)

// WithStore sets the persistence backend. Required.
func WithStore(s store.Store) Option {
	return func(a *Agent) {
		a.store = s
	}
}

// WithConfig replaces the default engine configuration.
func WithConfig(cfg acpflow.Config) Option {
	return func(a *Agent) {
		a.cfg = cfg
	}
}

// WithLogger sets the logger shared by every subsystem.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// WithSigner sets the signer used for delivery receipts.
func WithSigner(signer acpflow.Signer) Option {
	return func(a *Agent) {
		a.signer = signer
	}
}

// WithSink sets the destination for result deliveries, typically an
// acp.Client. When unset, receipts are logged and acknowledged locally.
func WithSink(sink delivery.Sink) Option {
	return func(a *Agent) {
		a.sink = sink
	}
}

// WithSettlement sets the payment backend, typically an acp.Client.
// When unset, every payment request settles immediately.
func WithSettlement(settlement payment.Settlement) Option {
	return func(a *Agent) {
		a.settlement = settlement
	}
}

// WithDirectory sets the requester directory consulted during intake.
// When unset, every requester passes with full reputation.
func WithDirectory(d intake.Directory) Option {
	return func(a *Agent) {
		a.directory = d
	}
}

// WithProcessor registers a processor for a job type.
func WithProcessor(typ job.Type, p execution.Processor) Option {
	return func(a *Agent) {
		a.processors[typ] = p
	}
}

// WithBackoff sets the retry backoff strategy for processing retries.
// If not set, backoff.DefaultStrategy() (exponential with jitter) is
// used.
func WithBackoff(b backoff.Strategy) Option {
	return func(a *Agent) {
		a.bo = b
	}
}

// WithExtension registers a lifecycle hook extension.
func WithExtension(e hook.Extension) Option {
	return func(a *Agent) {
		a.extensions = append(a.extensions, e)
	}
}

// WithMiddleware adds middleware to the handler chain, after the
// default stack.
func WithMiddleware(m ...mw.Middleware) Option {
	return func(a *Agent) {
		a.mws = append(a.mws, m...)
	}
}

// WithTracerProvider sets a custom OTel TracerProvider. When set, the
// tracing middleware uses this provider instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *Agent) {
		a.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider. When set, both
// the metrics middleware and the observability extension use this
// provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(a *Agent) {
		a.meterProvider = mp
	}
}
