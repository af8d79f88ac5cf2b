package agent

import (
	"context"
	"log/slog"

	"github.com/xraph/acpflow/delivery"
	"github.com/xraph/acpflow/id"
	"github.com/xraph/acpflow/payment"
)

// localSink stands in when no registry client is wired, the same way
// intake.StaticDirectory stands in for the requester directory. It
// logs the receipt and acknowledges it.
type localSink struct {
	logger *slog.Logger
}

func (s *localSink) Deliver(_ context.Context, receipt *delivery.Receipt) error {
	s.logger.Info("result delivered locally",
		slog.String("delivery_id", receipt.ID.String()),
		slog.String("job_id", receipt.JobID.String()),
		slog.Bool("success", receipt.Success),
	)
	return nil
}

// localSettlement settles every payment request on the first status
// poll. It lets the full lifecycle run end to end without a payment
// backend.
type localSettlement struct {
	logger *slog.Logger
}

func (s *localSettlement) CreatePaymentRequest(_ context.Context, req *payment.Request) error {
	s.logger.Info("payment request created locally",
		slog.String("request_id", req.ID.String()),
		slog.String("job_id", req.JobID.String()),
		slog.Float64("amount", req.Amount),
	)
	return nil
}

func (s *localSettlement) PaymentStatus(_ context.Context, jobID id.JobID) (*payment.Update, error) {
	return &payment.Update{
		Status: payment.StatusCompleted,
		TxID:   "local:" + jobID.String(),
	}, nil
}

func (s *localSettlement) ReleaseEscrow(_ context.Context, escrowID string, agentAmount, fee float64) (string, error) {
	s.logger.Info("local escrow release",
		slog.String("escrow_id", escrowID),
		slog.Float64("agent_amount", agentAmount),
		slog.Float64("fee", fee),
	)
	return "local:release:" + escrowID, nil
}

func (s *localSettlement) Transfer(_ context.Context, to string, amount float64, token string) (string, error) {
	s.logger.Info("local transfer",
		slog.String("to", to),
		slog.Float64("amount", amount),
		slog.String("token", token),
	)
	return "local:transfer:" + to, nil
}

var (
	_ delivery.Sink      = (*localSink)(nil)
	_ payment.Settlement = (*localSettlement)(nil)
)
