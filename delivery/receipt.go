package delivery

import (
	"context"
	"time"

	"github.com/xraph/acpflow/id"
	"github.com/xraph/acpflow/job"
)

// Receipt is the envelope submitted to the requester when a job's
// result is delivered. The Signature block is populated when the
// service has a signer configured.
type Receipt struct {
	ID                   id.DeliveryID  `json:"id"`
	JobID                id.JobID       `json:"job_id"`
	JobType              job.Type       `json:"job_type"`
	JobCategory          job.Category   `json:"job_category"`
	Timestamp            time.Time      `json:"timestamp"`
	Success              bool           `json:"success"`
	CompletionPercentage float64        `json:"completion_percentage"`
	ExecutionTimeSeconds float64        `json:"execution_time_seconds"`
	AgentID              string         `json:"agent_id"`
	Data                 map[string]any `json:"data,omitempty"`
	Signature            *Signature     `json:"signature,omitempty"`
}

// Signature is the wallet attestation over a receipt's payload. The
// signed bytes are the receipt's JSON encoding without the signature
// block.
type Signature struct {
	Signature     string    `json:"signature"`
	SignerAddress string    `json:"signer_address"`
	Timestamp     time.Time `json:"timestamp"`
}

// Sink accepts delivery receipts. The ACP registry client is the
// production implementation.
type Sink interface {
	Deliver(ctx context.Context, receipt *Receipt) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, receipt *Receipt) error

func (f SinkFunc) Deliver(ctx context.Context, receipt *Receipt) error {
	return f(ctx, receipt)
}
