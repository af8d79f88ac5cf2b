package intake

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/acpflow"
	"github.com/xraph/acpflow/job"
	"github.com/xraph/acpflow/lifecycle"
)

// Directory resolves requester standing on the agent network.
type Directory interface {
	// Reputation returns the requester's score in [0.0, 1.0].
	Reputation(ctx context.Context, requesterID string) (float64, error)
	// Region returns the requester's region code.
	Region(ctx context.Context, requesterID string) (string, error)
}

// StaticDirectory answers every lookup with fixed values. It stands in
// when no network directory is wired up.
type StaticDirectory struct {
	Score      float64
	RegionCode string
}

func (d *StaticDirectory) Reputation(_ context.Context, _ string) (float64, error) {
	return d.Score, nil
}

func (d *StaticDirectory) Region(_ context.Context, _ string) (string, error) {
	return d.RegionCode, nil
}

// Service validates incoming jobs and decides acceptance. Register its
// handler for the pending state.
type Service struct {
	orch      *lifecycle.Orchestrator
	directory Directory
	cfg       acpflow.Config
	logger    *slog.Logger

	restricted map[string]struct{}

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewService creates an intake service.
func NewService(orch *lifecycle.Orchestrator, directory Directory, cfg acpflow.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	restricted := make(map[string]struct{}, len(cfg.RestrictedRegions))
	for _, region := range cfg.RestrictedRegions {
		restricted[region] = struct{}{}
	}
	return &Service{
		orch:       orch,
		directory:  directory,
		cfg:        cfg,
		logger:     logger,
		restricted: restricted,
		limiters:   make(map[string]*rate.Limiter),
	}
}

// Handler returns the lifecycle handler for jobs entering the pending
// state.
func (s *Service) Handler() lifecycle.Handler {
	return lifecycle.HandlerFunc("intake", s.handlePending)
}

func (s *Service) handlePending(ctx context.Context, rec *job.Record) error {
	if err := s.orch.Transition(ctx, rec.ID, job.StateValidating, "starting job validation"); err != nil {
		return err
	}

	if s.cfg.RequesterRateLimit > 0 && !s.limiter(rec.Spec.RequesterID).Allow() {
		return s.orch.Transition(ctx, rec.ID, job.StateRejected,
			fmt.Sprintf("rate limit exceeded for requester %s", rec.Spec.RequesterID))
	}

	result := s.Validate(ctx, rec.Spec)
	if !result.Valid {
		rec.LastError = strings.Join(result.Errors, "; ")
		return s.orch.Transition(ctx, rec.ID, job.StateRejected,
			"validation failed: "+rec.LastError)
	}
	for _, w := range result.Warnings {
		s.logger.Warn("intake warning",
			slog.String("job_id", rec.ID.String()),
			slog.String("warning", w),
		)
	}

	counts, err := s.orch.CountByState(ctx)
	if err != nil {
		return fmt.Errorf("intake: count active jobs: %w", err)
	}
	if counts[job.StateProcessing] >= s.cfg.MaxConcurrentJobs {
		return s.orch.Transition(ctx, rec.ID, job.StateRejected,
			fmt.Sprintf("agent at maximum capacity (%d jobs)", s.cfg.MaxConcurrentJobs))
	}

	rec.PaymentAmount = result.EstimatedCost
	responseTime := time.Now().UTC().Sub(rec.CreatedAt)
	rec.ResponseTime = &responseTime

	return s.orch.Transition(ctx, rec.ID, job.StateAccepted, "job validated and accepted")
}

// Validate checks a spec against the agent's acceptance rules without
// touching lifecycle state.
func (s *Service) Validate(ctx context.Context, spec job.Spec) ValidationResult {
	var errs, warns []string

	validator, supported := paramValidators[spec.Type]
	if !supported {
		return ValidationResult{
			Valid:  false,
			Errors: []string{fmt.Sprintf("unsupported job type: %s", spec.Type)},
		}
	}

	reputation, err := s.directory.Reputation(ctx, spec.RequesterID)
	if err != nil {
		errs = append(errs, fmt.Sprintf("requester reputation lookup failed: %v", err))
	} else if reputation < s.cfg.MinRequesterReputation {
		errs = append(errs, fmt.Sprintf("requester reputation too low: %g (minimum: %g)",
			reputation, s.cfg.MinRequesterReputation))
	}

	region, err := s.directory.Region(ctx, spec.RequesterID)
	if err != nil {
		errs = append(errs, fmt.Sprintf("requester region lookup failed: %v", err))
	} else if _, blocked := s.restricted[region]; blocked {
		errs = append(errs, fmt.Sprintf("service not available in region: %s", region))
	}

	vErrs, vWarns := validator(spec.Parameters)
	errs = append(errs, vErrs...)
	warns = append(warns, vWarns...)

	if spec.Deadline != nil && spec.Deadline.Before(time.Now().UTC()) {
		errs = append(errs, "deadline is in the past")
	}

	cost := lifecycle.CalculateCost(spec)
	if spec.MaxPayment != nil && cost > *spec.MaxPayment {
		errs = append(errs, fmt.Sprintf("estimated cost (%g) exceeds max payment (%g)",
			cost, *spec.MaxPayment))
	}

	return ValidationResult{
		Valid:         len(errs) == 0,
		Errors:        errs,
		Warnings:      warns,
		EstimatedCost: cost,
	}
}

// limiter returns the per-requester rate limiter, creating it on first
// use.
func (s *Service) limiter(requesterID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[requesterID]
	if !ok {
		burst := s.cfg.RequesterRateBurst
		if burst < 1 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(s.cfg.RequesterRateLimit), burst)
		s.limiters[requesterID] = l
	}
	return l
}
