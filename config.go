package acpflow

import "time"

// Config holds the engine-wide tuning knobs shared by intake, execution,
// delivery, and payment components. Construct one with DefaultConfig and
// override fields as needed; the agent package passes it through.
type Config struct {
	// AgentID identifies this provider in delivery receipts and
	// settlement requests.
	AgentID string

	// MaxConcurrentJobs caps how many jobs may be in PROCESSING at once.
	// Intake rejects new jobs at or over this capacity.
	MaxConcurrentJobs int

	// MinRequesterReputation is the reputation floor (0.0–1.0) a
	// requester must meet before a job is accepted.
	MinRequesterReputation float64

	// RestrictedRegions lists region codes the agent will not serve.
	RestrictedRegions []string

	// RequesterRateLimit is the maximum sustained job submissions per
	// second accepted from a single requester. Zero disables rate
	// limiting. RequesterRateBurst is the token-bucket burst size and
	// defaults to 1 when a rate limit is set.
	RequesterRateLimit float64
	RequesterRateBurst int

	// FeePercentage is the platform fee taken from every settled
	// payment, expressed as a percentage (e.g. 2.5 means 2.5%).
	FeePercentage float64

	// MinPaymentAmount is the threshold below which payment is waived
	// and the job finalizes immediately.
	MinPaymentAmount float64

	// SLACheckInterval is how often the SLA monitor scans for
	// response-time and processing-time breaches.
	SLACheckInterval time.Duration

	// MaxDeliveryAttempts caps how many times a result delivery is
	// attempted before the job moves to DELIVERY_ERROR.
	MaxDeliveryAttempts int

	// DeliveryRetryDelay is the fixed delay before a failed delivery
	// attempt is retried.
	DeliveryRetryDelay time.Duration

	// DeliveryTimeout is how long a job may sit in DELIVERING before
	// the delivery monitor force-fails it.
	DeliveryTimeout time.Duration

	// DeliveryMonitorInterval is how often the delivery monitor scans.
	DeliveryMonitorInterval time.Duration

	// PaymentTimeout is how long a job may wait in AWAITING_PAYMENT
	// before it moves to PAYMENT_ERROR.
	PaymentTimeout time.Duration

	// PaymentMonitorInterval is how often pending payments are polled.
	PaymentMonitorInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for monitors and
	// scheduled retries to drain on Stop.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentJobs:       10,
		MinRequesterReputation:  0.5,
		FeePercentage:           2.5,
		MinPaymentAmount:        1.0,
		SLACheckInterval:        10 * time.Second,
		MaxDeliveryAttempts:     3,
		DeliveryRetryDelay:      60 * time.Second,
		DeliveryTimeout:         5 * time.Minute,
		DeliveryMonitorInterval: 30 * time.Second,
		PaymentTimeout:          30 * time.Minute,
		PaymentMonitorInterval:  30 * time.Second,
		ShutdownTimeout:         30 * time.Second,
	}
}
