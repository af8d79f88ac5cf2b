package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/acpflow"
	"github.com/xraph/acpflow/backoff"
	"github.com/xraph/acpflow/id"
	"github.com/xraph/acpflow/job"
	"github.com/xraph/acpflow/lifecycle"
	"github.com/xraph/acpflow/schedule"
)

// Option configures a delivery Service.
type Option func(*Service)

// WithSigner sets the wallet used to sign receipts. Without a signer
// receipts go out unsigned.
func WithSigner(signer acpflow.Signer) Option {
	return func(s *Service) { s.signer = signer }
}

// WithBackoff overrides the retry delay strategy.
func WithBackoff(bo backoff.Strategy) Option {
	return func(s *Service) { s.bo = bo }
}

// Service owns result delivery. Register CompletedHandler for the
// completed state (before the payment handler) and DeliveringHandler
// for the delivering state.
type Service struct {
	orch   *lifecycle.Orchestrator
	sink   Sink
	runner *schedule.Runner
	cfg    acpflow.Config
	signer acpflow.Signer
	bo     backoff.Strategy
	logger *slog.Logger
}

func NewService(orch *lifecycle.Orchestrator, sink Sink, runner *schedule.Runner, cfg acpflow.Config, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		orch:   orch,
		sink:   sink,
		runner: runner,
		cfg:    cfg,
		bo:     backoff.NewConstant(cfg.DeliveryRetryDelay),
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CompletedHandler moves a finished job into the delivering state.
// Jobs already marked delivered pass through untouched so the payment
// handler can take over.
func (s *Service) CompletedHandler() lifecycle.Handler {
	return lifecycle.HandlerFunc("delivery.start", s.handleCompleted)
}

// DeliveringHandler performs one delivery attempt.
func (s *Service) DeliveringHandler() lifecycle.Handler {
	return lifecycle.HandlerFunc("delivery.attempt", s.handleDelivering)
}

func (s *Service) handleCompleted(ctx context.Context, rec *job.Record) error {
	if rec.Delivered() {
		return nil
	}
	if rec.Result == nil {
		rec.LastError = acpflow.ErrNoResult.Error()
		if err := s.orch.Transition(ctx, rec.ID, job.StateDeliveryError, "completed without a result"); err != nil {
			return err
		}
		return fmt.Errorf("delivery: job %s: %w", rec.ID, acpflow.ErrNoResult)
	}
	return s.orch.Transition(ctx, rec.ID, job.StateDelivering, "delivering result")
}

func (s *Service) handleDelivering(ctx context.Context, rec *job.Record) error {
	attempt := rec.IncDeliveryAttempts()

	receipt, err := s.buildReceipt(ctx, rec)
	if err == nil {
		err = s.sink.Deliver(ctx, receipt)
	}

	if err == nil {
		now := time.Now().UTC()
		rec.DeliveredAt = &now
		s.logger.Info("result delivered",
			slog.String("job_id", rec.ID.String()),
			slog.String("delivery_id", receipt.ID.String()),
			slog.Int("attempt", attempt),
		)
		return s.orch.Transition(ctx, rec.ID, job.StateCompleted, "delivered")
	}

	rec.LastError = err.Error()
	if attempt >= s.cfg.MaxDeliveryAttempts {
		return s.orch.Transition(ctx, rec.ID, job.StateDeliveryError,
			fmt.Sprintf("delivery failed after %d attempts: %v", attempt, err))
	}

	delay := s.bo.Delay(attempt)
	jobID := rec.ID
	next := attempt + 1
	s.runner.Schedule("dlv:"+jobID.String(), delay, func(ctx context.Context) {
		terr := s.orch.Transition(ctx, jobID, job.StateDelivering,
			fmt.Sprintf("delivery retry %d/%d", next, s.cfg.MaxDeliveryAttempts))
		if terr != nil {
			s.logger.Warn("delivery retry could not run",
				slog.String("job_id", jobID.String()),
				slog.String("error", terr.Error()),
			)
		}
	})

	s.logger.Warn("delivery attempt failed",
		slog.String("job_id", jobID.String()),
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", s.cfg.MaxDeliveryAttempts),
		slog.Duration("retry_in", delay),
		slog.String("error", err.Error()),
	)
	return err
}

// buildReceipt assembles and, when a signer is configured, signs the
// receipt for a job's result.
func (s *Service) buildReceipt(ctx context.Context, rec *job.Record) (*Receipt, error) {
	receipt := &Receipt{
		ID:                   id.NewDeliveryID(),
		JobID:                rec.ID,
		JobType:              rec.Spec.Type,
		JobCategory:          rec.Spec.Category,
		Timestamp:            time.Now().UTC(),
		Success:              rec.Result.Success,
		CompletionPercentage: rec.Result.CompletionPercentage,
		ExecutionTimeSeconds: rec.Result.ExecutionTime.Seconds(),
		AgentID:              s.cfg.AgentID,
		Data:                 rec.Result.Data,
	}
	if s.signer == nil {
		return receipt, nil
	}

	payload, err := json.Marshal(receipt)
	if err != nil {
		return nil, fmt.Errorf("delivery: marshal receipt: %w", err)
	}
	sig, err := s.signer.Sign(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("delivery: sign receipt: %w", err)
	}
	addr, err := s.signer.Address(ctx)
	if err != nil {
		return nil, fmt.Errorf("delivery: signer address: %w", err)
	}
	receipt.Signature = &Signature{
		Signature:     sig,
		SignerAddress: addr,
		Timestamp:     time.Now().UTC(),
	}
	return receipt, nil
}
