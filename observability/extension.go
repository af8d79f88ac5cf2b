package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/acpflow/hook"
	"github.com/xraph/acpflow/job"
)

const meterName = "github.com/xraph/acpflow/observability"

// Compile-time interface checks.
var (
	_ hook.Extension    = (*MetricsExtension)(nil)
	_ hook.JobCreated   = (*MetricsExtension)(nil)
	_ hook.StateChanged = (*MetricsExtension)(nil)
	_ hook.JobRejected  = (*MetricsExtension)(nil)
	_ hook.JobCompleted = (*MetricsExtension)(nil)
	_ hook.JobFinalized = (*MetricsExtension)(nil)
	_ hook.SLABreach    = (*MetricsExtension)(nil)
	_ hook.DeadLettered = (*MetricsExtension)(nil)
)

// MetricsExtension counts lifecycle events. Register it on the hook
// registry to track job creation, transitions, rejections,
// completions, finalizations, SLA breaches, and dead letters.
type MetricsExtension struct {
	created     metric.Int64Counter
	transitions metric.Int64Counter
	rejections  metric.Int64Counter
	completions metric.Int64Counter
	processing  metric.Float64Histogram
	finalized   metric.Int64Counter
	slaBreaches metric.Int64Counter
	deadLetters metric.Int64Counter
}

// NewMetricsExtension builds the extension against the global OTel
// MeterProvider. Without a configured provider the instruments are
// noops and the extension costs nothing.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter builds the extension against a specific
// meter. Use this variant in tests.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}
	// The OTel API guarantees noop instruments on error.
	m.created, _ = meter.Int64Counter("acpflow.jobs.created",
		metric.WithDescription("Jobs accepted into the lifecycle"),
		metric.WithUnit("{job}"))
	m.transitions, _ = meter.Int64Counter("acpflow.jobs.transitions",
		metric.WithDescription("Lifecycle state transitions"),
		metric.WithUnit("{transition}"))
	m.rejections, _ = meter.Int64Counter("acpflow.jobs.rejected",
		metric.WithDescription("Jobs rejected at intake or by SLA breach"),
		metric.WithUnit("{job}"))
	m.completions, _ = meter.Int64Counter("acpflow.jobs.completed",
		metric.WithDescription("Jobs whose processing produced a result"),
		metric.WithUnit("{job}"))
	m.processing, _ = meter.Float64Histogram("acpflow.jobs.processing_time",
		metric.WithDescription("Wall-clock processing time of completed jobs in seconds"),
		metric.WithUnit("s"))
	m.finalized, _ = meter.Int64Counter("acpflow.jobs.finalized",
		metric.WithDescription("Jobs delivered and settled"),
		metric.WithUnit("{job}"))
	m.slaBreaches, _ = meter.Int64Counter("acpflow.sla.breaches",
		metric.WithDescription("SLA violations detected by the monitors"),
		metric.WithUnit("{breach}"))
	m.deadLetters, _ = meter.Int64Counter("acpflow.deadletters",
		metric.WithDescription("Jobs captured after landing in an error state"),
		metric.WithUnit("{entry}"))
	return m
}

// Name implements hook.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnJobCreated implements hook.JobCreated.
func (m *MetricsExtension) OnJobCreated(ctx context.Context, rec *job.Record) error {
	m.created.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_type", string(rec.Spec.Type)),
		attribute.String("category", string(rec.Spec.Category)),
	))
	return nil
}

// OnStateChanged implements hook.StateChanged.
func (m *MetricsExtension) OnStateChanged(ctx context.Context, rec *job.Record, from, to job.State, _ string) error {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
		attribute.String("job_type", string(rec.Spec.Type)),
	))
	return nil
}

// OnJobRejected implements hook.JobRejected.
func (m *MetricsExtension) OnJobRejected(ctx context.Context, rec *job.Record, _ string) error {
	m.rejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_type", string(rec.Spec.Type)),
	))
	return nil
}

// OnJobCompleted implements hook.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, rec *job.Record, elapsed time.Duration) error {
	attrs := metric.WithAttributes(attribute.String("job_type", string(rec.Spec.Type)))
	m.completions.Add(ctx, 1, attrs)
	m.processing.Record(ctx, elapsed.Seconds(), attrs)
	return nil
}

// OnJobFinalized implements hook.JobFinalized.
func (m *MetricsExtension) OnJobFinalized(ctx context.Context, rec *job.Record) error {
	m.finalized.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_type", string(rec.Spec.Type)),
		attribute.String("payment_status", string(rec.PaymentStatus)),
	))
	return nil
}

// OnSLABreach implements hook.SLABreach.
func (m *MetricsExtension) OnSLABreach(ctx context.Context, rec *job.Record, breach string) error {
	m.slaBreaches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breach", breach),
		attribute.String("job_type", string(rec.Spec.Type)),
	))
	return nil
}

// OnDeadLettered implements hook.DeadLettered.
func (m *MetricsExtension) OnDeadLettered(ctx context.Context, rec *job.Record, _ error) error {
	m.deadLetters.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", string(rec.State)),
		attribute.String("job_type", string(rec.Spec.Type)),
	))
	return nil
}
