package payment

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/xraph/acpflow"
	"github.com/xraph/acpflow/id"
	"github.com/xraph/acpflow/job"
	"github.com/xraph/acpflow/lifecycle"
)

// Escrow thresholds. Amounts above the threshold and all trading
// categories settle through escrow.
const escrowAmountThreshold = 100.0

// Diagnostic-bag keys used to carry settlement details on the record.
const (
	detailPaymentRequestID = "payment_request_id"
	detailEscrowID         = "escrow_id"
	detailPaymentFee       = "payment_fee"
	detailRefundTxID       = "refund_tx_id"
)

// Service owns settlement for delivered jobs. Register
// CompletedHandler for the completed state, after the delivery
// handler.
type Service struct {
	orch       *lifecycle.Orchestrator
	settlement Settlement
	cfg        acpflow.Config
	logger     *slog.Logger
}

func NewService(orch *lifecycle.Orchestrator, settlement Settlement, cfg acpflow.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		orch:       orch,
		settlement: settlement,
		cfg:        cfg,
		logger:     logger,
	}
}

// CompletedHandler starts settlement once the result has been
// delivered. Undelivered records pass through so the delivery handler
// keeps ownership of the completed state.
func (s *Service) CompletedHandler() lifecycle.Handler {
	return lifecycle.HandlerFunc("payment.request", s.handleCompleted)
}

func (s *Service) handleCompleted(ctx context.Context, rec *job.Record) error {
	if !rec.Delivered() {
		return nil
	}
	if rec.PaymentStatus != job.PaymentNotStarted {
		return nil
	}

	amount := rec.PaymentAmount
	if amount <= 0 {
		return s.orch.Transition(ctx, rec.ID, job.StateFinalized, "no payment required")
	}
	if amount < s.cfg.MinPaymentAmount {
		s.logger.Info("payment waived",
			slog.String("job_id", rec.ID.String()),
			slog.Float64("amount", amount),
			slog.Float64("minimum", s.cfg.MinPaymentAmount),
		)
		return s.orch.Transition(ctx, rec.ID, job.StateFinalized,
			fmt.Sprintf("payment of %.2f below minimum %.2f, waived", amount, s.cfg.MinPaymentAmount))
	}

	agentAmount, fee := s.split(amount)
	if requiresEscrow(amount, rec.Spec.Category) {
		return s.releaseEscrow(ctx, rec, agentAmount, fee)
	}

	req := &Request{
		ID:          id.NewPaymentRequestID(),
		JobID:       rec.ID,
		Payer:       rec.Spec.RequesterAddress,
		Amount:      amount,
		AgentAmount: agentAmount,
		Fee:         fee,
		Token:       rec.Spec.PaymentToken,
	}
	if err := s.settlement.CreatePaymentRequest(ctx, req); err != nil {
		rec.LastError = err.Error()
		rec.PaymentStatus = job.PaymentFailed
		if terr := s.orch.Transition(ctx, rec.ID, job.StatePaymentError,
			"failed to create payment request"); terr != nil {
			return terr
		}
		return fmt.Errorf("payment: job %s: create request: %w", rec.ID, err)
	}

	rec.PaymentStatus = job.PaymentPending
	rec.SetErrorDetail(detailPaymentRequestID, req.ID.String())

	s.logger.Info("payment requested",
		slog.String("job_id", rec.ID.String()),
		slog.String("request_id", req.ID.String()),
		slog.Float64("amount", amount),
		slog.String("token", req.Token),
	)
	return s.orch.Transition(ctx, rec.ID, job.StateAwaitingPayment,
		fmt.Sprintf("awaiting payment of %.2f %s", amount, req.Token))
}

// releaseEscrow settles an escrow-backed payment in place. Escrowed
// funds are already locked, so a successful release is final
// settlement and the job finalizes without waiting on the monitor. A
// failed release falls back to the awaiting-payment state, where the
// monitor retries the release or times the payment out.
func (s *Service) releaseEscrow(ctx context.Context, rec *job.Record, agentAmount, fee float64) error {
	eid := escrowID(rec.ID)
	rec.SetErrorDetail(detailEscrowID, eid)

	txID, err := s.settlement.ReleaseEscrow(ctx, eid, agentAmount, fee)
	if err != nil {
		s.logger.Error("escrow release failed",
			slog.String("job_id", rec.ID.String()),
			slog.String("escrow_id", eid),
			slog.String("error", err.Error()),
		)
		rec.PaymentStatus = job.PaymentPending
		rec.LastError = err.Error()
		return s.orch.Transition(ctx, rec.ID, job.StateAwaitingPayment,
			"escrow release failed, awaiting settlement")
	}

	rec.PaymentStatus = job.PaymentCompleted
	rec.PaymentTxID = txID
	rec.SetErrorDetail(detailPaymentFee, fee)

	s.logger.Info("escrow released",
		slog.String("job_id", rec.ID.String()),
		slog.String("escrow_id", eid),
		slog.String("tx_id", txID),
		slog.Float64("agent_amount", agentAmount),
		slog.Float64("fee", fee),
	)
	return s.orch.Transition(ctx, rec.ID, job.StateFinalized, "payment released from escrow")
}

// settle finalizes a job whose payment completed: records the
// transaction and takes the agent fee. When the record carries an
// escrow that failed to release in the completed handler, the release
// is retried here before finalizing.
func (s *Service) settle(ctx context.Context, jobID id.JobID, txID string) error {
	var (
		eid         string
		agentAmount float64
		fee         float64
	)
	err := s.orch.Mutate(ctx, jobID, func(rec *job.Record) error {
		rec.PaymentStatus = job.PaymentCompleted
		rec.PaymentTxID = txID
		agentAmount, fee = s.split(rec.PaymentAmount)
		rec.SetErrorDetail(detailPaymentFee, fee)
		if v, ok := rec.ErrorDetails[detailEscrowID].(string); ok {
			eid = v
		}
		return nil
	})
	if err != nil {
		return err
	}

	if eid != "" {
		releaseTx, err := s.settlement.ReleaseEscrow(ctx, eid, agentAmount, fee)
		if err != nil {
			s.logger.Error("escrow release retry failed",
				slog.String("job_id", jobID.String()),
				slog.String("escrow_id", eid),
				slog.String("error", err.Error()),
			)
		} else {
			s.logger.Info("escrow released",
				slog.String("job_id", jobID.String()),
				slog.String("escrow_id", eid),
				slog.String("tx_id", releaseTx),
			)
		}
	}

	return s.orch.Transition(ctx, jobID, job.StateFinalized, "payment received")
}

// fail marks the payment as failed and parks the job in the payment
// error state.
func (s *Service) fail(ctx context.Context, jobID id.JobID, reason string) error {
	err := s.orch.Mutate(ctx, jobID, func(rec *job.Record) error {
		rec.PaymentStatus = job.PaymentFailed
		rec.LastError = reason
		return nil
	})
	if err != nil {
		return err
	}
	return s.orch.Transition(ctx, jobID, job.StatePaymentError, reason)
}

// RefundPayment returns a completed payment to the requester. Only
// completed payments can be refunded.
func (s *Service) RefundPayment(ctx context.Context, jobID id.JobID, reason string) error {
	rec, err := s.orch.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if rec.PaymentStatus != job.PaymentCompleted {
		return fmt.Errorf("payment: job %s in payment status %s: %w",
			jobID, rec.PaymentStatus, acpflow.ErrNotRefundable)
	}

	txID, err := s.settlement.Transfer(ctx, rec.Spec.RequesterAddress, rec.PaymentAmount, rec.Spec.PaymentToken)
	if err != nil {
		return fmt.Errorf("payment: job %s: refund transfer: %w", jobID, err)
	}

	s.logger.Info("payment refunded",
		slog.String("job_id", jobID.String()),
		slog.Float64("amount", rec.PaymentAmount),
		slog.String("tx_id", txID),
		slog.String("reason", reason),
	)
	return s.orch.Mutate(ctx, jobID, func(r *job.Record) error {
		r.PaymentStatus = job.PaymentRefunded
		r.SetErrorDetail(detailRefundTxID, txID)
		return nil
	})
}

func requiresEscrow(amount float64, category job.Category) bool {
	if amount > escrowAmountThreshold {
		return true
	}
	return category == job.CategoryTradeExecution || category == job.CategoryPortfolioManagement
}

// split divides a gross payment into the agent's share and the fee,
// fee = amount * pct/100 rounded to 2 decimals.
func (s *Service) split(amount float64) (agentAmount, fee float64) {
	fee = math.Round(amount*s.cfg.FeePercentage) / 100
	return amount - fee, fee
}

// escrowID derives the escrow identifier the settlement service opened
// for a job at creation time.
func escrowID(jobID id.JobID) string {
	return "escrow-" + jobID.String()
}
