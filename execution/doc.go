// Package execution runs accepted jobs through registered processors
// and enforces the processing side of the SLA.
//
// The accepted-state handler queues the job on the delayed-work runner
// (immediately for a first attempt, after backoff for a retry); the
// processing-state handler invokes the processor for the job's type
// under the SLA processing deadline and routes the outcome to
// completed, back to accepted for a retry, or to processing_error.
//
// The [Monitor] scans for jobs that outlived their response or
// processing SLA windows and reports breaches to the orchestrator.
package execution
