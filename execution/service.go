package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/acpflow"
	"github.com/xraph/acpflow/backoff"
	"github.com/xraph/acpflow/job"
	"github.com/xraph/acpflow/lifecycle"
	"github.com/xraph/acpflow/schedule"
)

// Service owns processing for accepted jobs. Register AcceptedHandler
// for the accepted state and ProcessingHandler for the processing
// state.
type Service struct {
	orch     *lifecycle.Orchestrator
	registry *Registry
	runner   *schedule.Runner
	bo       backoff.Strategy
	logger   *slog.Logger
}

// NewService creates an execution service. A nil backoff strategy
// defaults to backoff.DefaultStrategy().
func NewService(orch *lifecycle.Orchestrator, registry *Registry, runner *schedule.Runner, bo backoff.Strategy, logger *slog.Logger) *Service {
	if bo == nil {
		bo = backoff.DefaultStrategy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		orch:     orch,
		registry: registry,
		runner:   runner,
		bo:       bo,
		logger:   logger,
	}
}

// Registry returns the processor registry so callers can register
// processors after construction.
func (s *Service) Registry() *Registry { return s.registry }

// AcceptedHandler queues the job for processing: immediately on first
// acceptance, after backoff when the job re-entered accepted for a
// retry.
func (s *Service) AcceptedHandler() lifecycle.Handler {
	return lifecycle.HandlerFunc("execution.queue", func(_ context.Context, rec *job.Record) error {
		var delay time.Duration
		if rec.RetryCount > 0 {
			delay = s.bo.Delay(rec.RetryCount)
		}

		jobID := rec.ID
		s.runner.Schedule("exec:"+jobID.String(), delay, func(ctx context.Context) {
			err := s.orch.Transition(ctx, jobID, job.StateProcessing, "processing started")
			if err != nil {
				s.logger.Warn("queued job could not start processing",
					slog.String("job_id", jobID.String()),
					slog.String("error", err.Error()),
				)
			}
		})
		return nil
	})
}

// ProcessingHandler runs the processor for the job's type and routes
// the outcome.
func (s *Service) ProcessingHandler() lifecycle.Handler {
	return lifecycle.HandlerFunc("execution.process", s.handleProcessing)
}

func (s *Service) handleProcessing(ctx context.Context, rec *job.Record) error {
	processor, ok := s.registry.Lookup(rec.Spec.Type)
	if !ok {
		rec.LastError = acpflow.ErrNoProcessor.Error()
		if err := s.orch.Transition(ctx, rec.ID, job.StateProcessingError,
			fmt.Sprintf("no processor for job type %s", rec.Spec.Type)); err != nil {
			return err
		}
		return fmt.Errorf("execution: job %s: %w", rec.ID, acpflow.ErrNoProcessor)
	}

	sla := rec.Spec.EffectiveSLA()
	start := time.Now().UTC()

	// Persist the attempt start before the processor runs so the SLA
	// monitor can see in-flight work.
	if err := s.orch.Mutate(ctx, rec.ID, func(r *job.Record) error {
		r.ProcessingStartedAt = &start
		return nil
	}); err != nil {
		return err
	}

	procCtx := ctx
	if sla.ProcessingTime > 0 {
		var cancel context.CancelFunc
		procCtx, cancel = context.WithTimeout(ctx, sla.ProcessingTime)
		defer cancel()
	}

	result, err := processor.Process(procCtx, rec)
	elapsed := time.Since(start)

	if reason, failed := s.attemptFailed(result, err, sla); failed {
		return s.handleFailure(ctx, rec, reason)
	}

	result.ExecutionTime = elapsed
	rec.Result = result
	rec.ProcessingStartedAt = nil

	s.orch.Hooks().EmitJobCompleted(ctx, rec, elapsed)
	return s.orch.Transition(ctx, rec.ID, job.StateCompleted, "processing completed successfully")
}

// attemptFailed decides whether a processing attempt counts as failed
// under the SLA.
func (s *Service) attemptFailed(result *job.Result, err error, sla job.SLAConfig) (string, bool) {
	switch {
	case err != nil:
		return err.Error(), true
	case result == nil:
		return "processor returned no result", true
	case !result.Success:
		if result.ErrorMessage != "" {
			return result.ErrorMessage, true
		}
		return "processor reported failure", true
	case result.CompletionPercentage < sla.CompletionThreshold:
		return fmt.Sprintf("completion %.2f below threshold %.2f",
			result.CompletionPercentage, sla.CompletionThreshold), true
	}
	return "", false
}

func (s *Service) handleFailure(ctx context.Context, rec *job.Record, reason string) error {
	sla := rec.Spec.EffectiveSLA()
	rec.LastError = reason
	rec.ProcessingStartedAt = nil

	if rec.RetryCount < sla.MaxRetries {
		rec.RetryCount++
		s.logger.Warn("processing attempt failed, retrying",
			slog.String("job_id", rec.ID.String()),
			slog.Int("retry", rec.RetryCount),
			slog.Int("max_retries", sla.MaxRetries),
			slog.String("error", reason),
		)
		return s.orch.Transition(ctx, rec.ID, job.StateAccepted,
			fmt.Sprintf("retry %d/%d: %s", rec.RetryCount, sla.MaxRetries, reason))
	}

	s.logger.Error("processing failed terminally",
		slog.String("job_id", rec.ID.String()),
		slog.Int("retries", rec.RetryCount),
		slog.String("error", reason),
	)
	return s.orch.Transition(ctx, rec.ID, job.StateProcessingError,
		"retries exhausted: "+reason)
}
