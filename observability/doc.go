// Package observability provides an OpenTelemetry-based metrics
// extension for acpflow. The MetricsExtension implements lifecycle
// hooks to record system-wide counters for job creation, transitions,
// rejections, completions, finalizations, SLA breaches, and dead
// letters.
//
// For per-handler tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
