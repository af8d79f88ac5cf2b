package deadletter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/acpflow/id"
	"github.com/xraph/acpflow/job"
)

// Submitter resubmits a spec as a fresh job. The lifecycle orchestrator
// satisfies this interface; it is declared here to keep the dependency
// pointing in one direction.
type Submitter interface {
	CreateJob(ctx context.Context, spec job.Spec) (*job.Record, error)
}

// Service captures error-state jobs and replays them. It implements the
// lifecycle StateChanged hook, so registering it as an extension is all
// the wiring the engine needs.
type Service struct {
	store     Store
	submitter Submitter
	logger    *slog.Logger
}

// NewService creates a dead letter service.
func NewService(store Store, submitter Submitter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, submitter: submitter, logger: logger}
}

// Name implements hook.Extension.
func (s *Service) Name() string { return "deadletter" }

// OnStateChanged captures the record when a job enters an error state.
func (s *Service) OnStateChanged(ctx context.Context, rec *job.Record, _, to job.State, _ string) error {
	switch to {
	case job.StateProcessingError, job.StatePaymentError, job.StateDeliveryError:
	default:
		return nil
	}

	now := time.Now().UTC()
	entry := &Entry{
		ID:         id.NewDeadLetterID(),
		JobID:      rec.ID,
		Spec:       rec.Spec,
		State:      to,
		Error:      rec.LastError,
		RetryCount: rec.RetryCount,
		Details:    rec.ErrorDetails,
		FailedAt:   now,
		CreatedAt:  now,
	}
	if err := s.store.PushDeadLetter(ctx, entry); err != nil {
		return fmt.Errorf("deadletter: push entry for job %s: %w", rec.ID, err)
	}

	s.logger.Info("job dead-lettered",
		slog.String("entry_id", entry.ID.String()),
		slog.String("job_id", rec.ID.String()),
		slog.String("state", string(to)),
		slog.String("error", rec.LastError),
	)
	return nil
}

// Replay resubmits a dead-lettered spec as a new job and marks the
// entry as replayed. The new job gets a fresh ID and a clean retry
// budget, and runs through intake like any other submission.
func (s *Service) Replay(ctx context.Context, entryID id.DeadLetterID) (*job.Record, error) {
	entry, err := s.store.GetDeadLetter(ctx, entryID)
	if err != nil {
		return nil, err
	}

	rec, err := s.submitter.CreateJob(ctx, entry.Spec)
	if err != nil {
		return nil, fmt.Errorf("deadletter: replay entry %s: %w", entryID, err)
	}

	if err := s.store.MarkReplayed(ctx, entryID, rec.ID); err != nil {
		// The replacement job is already submitted. Report but keep it.
		return rec, err
	}

	s.logger.Info("dead letter replayed",
		slog.String("entry_id", entryID.String()),
		slog.String("original_job_id", entry.JobID.String()),
		slog.String("replay_job_id", rec.ID.String()),
	)
	return rec, nil
}

// DeadLetterStore returns the underlying store for direct access to
// list, get, purge, and count operations.
func (s *Service) DeadLetterStore() Store { return s.store }
