package payment

import (
	"context"

	"github.com/xraph/acpflow/id"
)

// Status is the settlement service's view of a payment request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Request asks the settlement service to collect a direct payment for
// a job. Amount is the gross total; AgentAmount and Fee carry the split
// the agent expects on settlement.
type Request struct {
	ID          id.PaymentRequestID `json:"id"`
	JobID       id.JobID            `json:"job_id"`
	Payer       string              `json:"payer"`
	Amount      float64             `json:"amount"`
	AgentAmount float64             `json:"agent_amount"`
	Fee         float64             `json:"fee"`
	Token       string              `json:"token"`
}

// Update is one poll result for an outstanding payment request.
type Update struct {
	Status Status `json:"status"`
	TxID   string `json:"tx_id,omitempty"`
}

// Settlement is the payment rail contract. The ACP registry client is
// the production implementation.
type Settlement interface {
	// CreatePaymentRequest registers a payment request with the
	// settlement service.
	CreatePaymentRequest(ctx context.Context, req *Request) error

	// PaymentStatus reports the current state of the payment request
	// for a job.
	PaymentStatus(ctx context.Context, jobID id.JobID) (*Update, error)

	// ReleaseEscrow splits escrowed funds between the agent and the
	// fee account and returns the settlement transaction ID. Release
	// is final settlement.
	ReleaseEscrow(ctx context.Context, escrowID string, agentAmount, fee float64) (string, error)

	// Transfer sends funds to an address and returns the transaction
	// ID. Used for refunds.
	Transfer(ctx context.Context, to string, amount float64, token string) (string, error)
}
