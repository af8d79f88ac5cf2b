// Package deadletter captures jobs that end in an error state so they
// can be inspected and replayed. It plugs into the lifecycle as an
// extension: whenever a job enters processing_error, payment_error, or
// delivery_error, the service snapshots the record into an [Entry].
//
// Replaying an entry resubmits the original spec as a fresh job with a
// new ID and a clean retry budget, and stamps ReplayedAt on the entry.
package deadletter
