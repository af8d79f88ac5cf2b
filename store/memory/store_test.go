package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/acpflow"
	"github.com/xraph/acpflow/deadletter"
	"github.com/xraph/acpflow/id"
	"github.com/xraph/acpflow/job"
)

func newRecord(requester string, state job.State) *job.Record {
	rec := job.New(job.Spec{
		Category:    job.CategoryMarketAnalysis,
		Type:        job.TypeAnalyzeMarket,
		Priority:    job.PriorityMedium,
		RequesterID: requester,
	})
	rec.State = state
	return rec
}

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Migrate", func() error { return s.Migrate(ctx) }},
		{"Ping", func() error { return s.Ping(ctx) }},
		{"Close", func() error { return s.Close(ctx) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("%s returned error: %v", tt.name, err)
			}
		})
	}
}

func TestCreateAndGetJob(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	rec := newRecord("req-1", job.StatePending)

	if err := s.CreateJob(ctx, rec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.CreateJob(ctx, rec); !errors.Is(err, acpflow.ErrJobAlreadyExists) {
		t.Fatalf("duplicate CreateJob error = %v, want ErrJobAlreadyExists", err)
	}

	got, err := s.GetJob(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.ID != rec.ID {
		t.Errorf("GetJob ID = %s, want %s", got.ID, rec.ID)
	}
	if got.Spec.RequesterID != "req-1" {
		t.Errorf("RequesterID = %q, want %q", got.Spec.RequesterID, "req-1")
	}

	if _, err := s.GetJob(ctx, id.NewJobID()); !errors.Is(err, acpflow.ErrJobNotFound) {
		t.Fatalf("GetJob unknown error = %v, want ErrJobNotFound", err)
	}
}

func TestGetJobReturnsCopy(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	rec := newRecord("req-1", job.StatePending)
	if err := s.CreateJob(ctx, rec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	got, err := s.GetJob(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	got.State = job.StateCancelled
	got.SetErrorDetail("k", "v")

	again, err := s.GetJob(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if again.State != job.StatePending {
		t.Errorf("stored state mutated through returned copy: %q", again.State)
	}
	if len(again.ErrorDetails) != 0 {
		t.Errorf("stored error details mutated through returned copy: %v", again.ErrorDetails)
	}
}

func TestUpdateJob(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	rec := newRecord("req-1", job.StatePending)
	if err := s.CreateJob(ctx, rec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	rec.RecordTransition(job.StateValidating, "intake")
	if err := s.UpdateJob(ctx, rec); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	got, err := s.GetJob(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != job.StateValidating {
		t.Errorf("State = %q, want %q", got.State, job.StateValidating)
	}
	if len(got.History) != 1 {
		t.Errorf("History length = %d, want 1", len(got.History))
	}

	missing := newRecord("req-2", job.StatePending)
	if err := s.UpdateJob(ctx, missing); !errors.Is(err, acpflow.ErrJobNotFound) {
		t.Fatalf("UpdateJob unknown error = %v, want ErrJobNotFound", err)
	}
}

func TestListJobsByState(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.CreateJob(ctx, newRecord("req-1", job.StatePending)); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}
	if err := s.CreateJob(ctx, newRecord("req-1", job.StateAccepted)); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	pending, err := s.ListJobsByState(ctx, job.StatePending, 0, 0)
	if err != nil {
		t.Fatalf("ListJobsByState: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("pending count = %d, want 3", len(pending))
	}
	for i := 1; i < len(pending); i++ {
		if pending[i].CreatedAt.Before(pending[i-1].CreatedAt) {
			t.Error("expected oldest-first ordering")
		}
	}

	limited, err := s.ListJobsByState(ctx, job.StatePending, 1, 1)
	if err != nil {
		t.Fatalf("ListJobsByState with offset/limit: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("limited count = %d, want 1", len(limited))
	}
}

func TestListJobsByRequester(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	for _, requester := range []string{"req-1", "req-1", "req-2"} {
		if err := s.CreateJob(ctx, newRecord(requester, job.StatePending)); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}

	recs, err := s.ListJobsByRequester(ctx, "req-1", 0, 0)
	if err != nil {
		t.Fatalf("ListJobsByRequester: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("count = %d, want 2", len(recs))
	}
}

func TestCountJobsByState(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	states := []job.State{job.StatePending, job.StatePending, job.StateFinalized}
	for _, st := range states {
		if err := s.CreateJob(ctx, newRecord("req-1", st)); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}

	counts, err := s.CountJobsByState(ctx)
	if err != nil {
		t.Fatalf("CountJobsByState: %v", err)
	}
	if counts[job.StatePending] != 2 {
		t.Errorf("pending = %d, want 2", counts[job.StatePending])
	}
	if counts[job.StateFinalized] != 1 {
		t.Errorf("finalized = %d, want 1", counts[job.StateFinalized])
	}
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.CreateJob(ctx, newRecord("req-1", job.StatePending)); !errors.Is(err, acpflow.ErrStoreClosed) {
		t.Fatalf("CreateJob after close error = %v, want ErrStoreClosed", err)
	}
	if _, err := s.CountDeadLetters(ctx); !errors.Is(err, acpflow.ErrStoreClosed) {
		t.Fatalf("CountDeadLetters after close error = %v, want ErrStoreClosed", err)
	}
}

func newEntry(requester string, failedAt time.Time) *deadletter.Entry {
	return &deadletter.Entry{
		ID:    id.NewDeadLetterID(),
		JobID: id.NewJobID(),
		Spec: job.Spec{
			Category:    job.CategoryCustom,
			Type:        job.TypeCustom,
			RequesterID: requester,
		},
		State:     job.StateProcessingError,
		Error:     "processing failed",
		FailedAt:  failedAt,
		CreatedAt: failedAt,
	}
}

func TestDeadLetterPushListGet(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	now := time.Now().UTC()
	older := newEntry("req-1", now.Add(-time.Hour))
	newer := newEntry("req-2", now)

	for _, e := range []*deadletter.Entry{older, newer} {
		if err := s.PushDeadLetter(ctx, e); err != nil {
			t.Fatalf("PushDeadLetter: %v", err)
		}
	}

	all, err := s.ListDeadLetters(ctx, deadletter.ListOpts{})
	if err != nil {
		t.Fatalf("ListDeadLetters: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("count = %d, want 2", len(all))
	}
	if all[0].ID != newer.ID {
		t.Error("expected newest-first ordering")
	}

	byRequester, err := s.ListDeadLetters(ctx, deadletter.ListOpts{Requester: "req-1"})
	if err != nil {
		t.Fatalf("ListDeadLetters by requester: %v", err)
	}
	if len(byRequester) != 1 || byRequester[0].ID != older.ID {
		t.Fatalf("requester filter returned %d entries", len(byRequester))
	}

	got, err := s.GetDeadLetter(ctx, older.ID)
	if err != nil {
		t.Fatalf("GetDeadLetter: %v", err)
	}
	if got.Error != "processing failed" {
		t.Errorf("Error = %q", got.Error)
	}

	if _, err := s.GetDeadLetter(ctx, id.NewDeadLetterID()); !errors.Is(err, acpflow.ErrDeadLetterNotFound) {
		t.Fatalf("GetDeadLetter unknown error = %v, want ErrDeadLetterNotFound", err)
	}
}

func TestDeadLetterMarkReplayed(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	entry := newEntry("req-1", time.Now().UTC())
	if err := s.PushDeadLetter(ctx, entry); err != nil {
		t.Fatalf("PushDeadLetter: %v", err)
	}

	replayID := id.NewJobID()
	if err := s.MarkReplayed(ctx, entry.ID, replayID); err != nil {
		t.Fatalf("MarkReplayed: %v", err)
	}

	got, err := s.GetDeadLetter(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetDeadLetter: %v", err)
	}
	if got.ReplayedAt == nil {
		t.Fatal("ReplayedAt not set")
	}
	if got.ReplayJobID == nil || *got.ReplayJobID != replayID {
		t.Errorf("ReplayJobID = %v, want %s", got.ReplayJobID, replayID)
	}
}

func TestDeadLetterPurgeAndCount(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	now := time.Now().UTC()
	old := newEntry("req-1", now.Add(-2*time.Hour))
	fresh := newEntry("req-1", now)
	for _, e := range []*deadletter.Entry{old, fresh} {
		if err := s.PushDeadLetter(ctx, e); err != nil {
			t.Fatalf("PushDeadLetter: %v", err)
		}
	}

	removed, err := s.PurgeDeadLetters(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("PurgeDeadLetters: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	count, err := s.CountDeadLetters(ctx)
	if err != nil {
		t.Fatalf("CountDeadLetters: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}
