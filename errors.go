package acpflow

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("acpflow: no store configured")
	ErrStoreClosed     = errors.New("acpflow: store closed")
	ErrMigrationFailed = errors.New("acpflow: migration failed")

	// Not found errors.
	ErrJobNotFound        = errors.New("acpflow: job not found")
	ErrDeadLetterNotFound = errors.New("acpflow: dead letter entry not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("acpflow: job already exists")

	// State errors.
	ErrUnknownState       = errors.New("acpflow: unknown job state")
	ErrTerminalState      = errors.New("acpflow: job is in a terminal state")
	ErrNotCancellable     = errors.New("acpflow: job can no longer be cancelled")
	ErrMaxRetriesExceeded = errors.New("acpflow: max retries exceeded")

	// Execution errors.
	ErrNoProcessor = errors.New("acpflow: no processor registered for job type")
	ErrNoResult    = errors.New("acpflow: job has no result to deliver")

	// Payment errors.
	ErrNotRefundable  = errors.New("acpflow: payment is not in a refundable state")
	ErrPaymentTimeout = errors.New("acpflow: payment timed out")
)
