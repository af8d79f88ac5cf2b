package delivery

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xraph/acpflow"
	"github.com/xraph/acpflow/backoff"
	"github.com/xraph/acpflow/job"
	"github.com/xraph/acpflow/lifecycle"
	"github.com/xraph/acpflow/schedule"
	"github.com/xraph/acpflow/store/memory"
)

type sinkSpy struct {
	mu       sync.Mutex
	receipts []*Receipt
	failures int
}

func (s *sinkSpy) Deliver(_ context.Context, receipt *Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("endpoint unreachable")
	}
	s.receipts = append(s.receipts, receipt)
	return nil
}

func (s *sinkSpy) delivered() []*Receipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Receipt(nil), s.receipts...)
}

type stubSigner struct{}

func (stubSigner) Sign(_ context.Context, payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", errors.New("empty payload")
	}
	return "0xsigned", nil
}

func (stubSigner) Address(_ context.Context) (string, error) { return "0xagent", nil }

func newFixture(t *testing.T, sink Sink, opts ...Option) (*memory.Store, *lifecycle.Orchestrator) {
	t.Helper()

	st := memory.New()
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	orch := lifecycle.New(st)
	runner := schedule.NewRunner(slog.Default())
	t.Cleanup(func() { _ = runner.Stop(context.Background()) })

	cfg := acpflow.DefaultConfig()
	cfg.AgentID = "agent-1"
	cfg.DeliveryRetryDelay = time.Millisecond

	svc := NewService(orch, sink, runner, cfg, slog.Default(), opts...)
	if err := orch.RegisterHandler(job.StateCompleted, svc.CompletedHandler()); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}
	if err := orch.RegisterHandler(job.StateDelivering, svc.DeliveringHandler()); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}
	return st, orch
}

func seedJob(t *testing.T, st *memory.Store, result *job.Result) *job.Record {
	t.Helper()

	rec := job.New(job.Spec{
		Category:         job.CategoryMarketAnalysis,
		Type:             job.TypeAnalyzeMarket,
		Priority:         job.PriorityMedium,
		RequesterID:      "req-1",
		RequesterAddress: "0xabc",
	})
	rec.State = job.StateProcessing
	rec.Result = result
	if err := st.CreateJob(context.Background(), rec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return rec
}

func TestDeliverySuccessSignsReceipt(t *testing.T) {
	sink := &sinkSpy{}
	st, orch := newFixture(t, sink, WithSigner(stubSigner{}))
	ctx := context.Background()

	rec := seedJob(t, st, &job.Result{
		Success:              true,
		Data:                 map[string]any{"report": "ok"},
		CompletionPercentage: 1.0,
		ExecutionTime:        2 * time.Second,
	})

	if err := orch.Transition(ctx, rec.ID, job.StateCompleted, "processing completed"); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	got, err := orch.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != job.StateCompleted {
		t.Fatalf("state = %s, want %s", got.State, job.StateCompleted)
	}
	if !got.Delivered() {
		t.Fatal("record not marked delivered")
	}
	if got.DeliveryAttempts() != 1 {
		t.Errorf("DeliveryAttempts = %d, want 1", got.DeliveryAttempts())
	}

	receipts := sink.delivered()
	if len(receipts) != 1 {
		t.Fatalf("delivered %d receipts, want 1", len(receipts))
	}
	r := receipts[0]
	if r.JobID != rec.ID || r.AgentID != "agent-1" || r.ExecutionTimeSeconds != 2 {
		t.Errorf("receipt = %+v", r)
	}
	if r.Signature == nil || r.Signature.Signature != "0xsigned" || r.Signature.SignerAddress != "0xagent" {
		t.Errorf("signature = %+v", r.Signature)
	}
}

func TestDeliveryWithoutResultFails(t *testing.T) {
	sink := &sinkSpy{}
	st, orch := newFixture(t, sink)
	ctx := context.Background()

	rec := seedJob(t, st, nil)

	if err := orch.Transition(ctx, rec.ID, job.StateCompleted, "processing completed"); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	got, err := orch.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != job.StateDeliveryError {
		t.Fatalf("state = %s, want %s", got.State, job.StateDeliveryError)
	}
	if len(sink.delivered()) != 0 {
		t.Error("no receipt should have been delivered")
	}
}

func TestDeliveryRetriesThenSucceeds(t *testing.T) {
	sink := &sinkSpy{failures: 2}
	st, orch := newFixture(t, sink, WithBackoff(backoff.NewConstant(time.Millisecond)))
	ctx := context.Background()

	rec := seedJob(t, st, &job.Result{Success: true, CompletionPercentage: 1.0})

	if err := orch.Transition(ctx, rec.ID, job.StateCompleted, "processing completed"); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	got := waitFor(t, orch, rec, func(r *job.Record) bool { return r.Delivered() })
	if got.State != job.StateCompleted {
		t.Fatalf("state = %s, want %s", got.State, job.StateCompleted)
	}
	if got.DeliveryAttempts() != 3 {
		t.Errorf("DeliveryAttempts = %d, want 3", got.DeliveryAttempts())
	}
	if len(sink.delivered()) != 1 {
		t.Errorf("delivered %d receipts, want 1", len(sink.delivered()))
	}
}

func TestDeliveryExhaustsAttempts(t *testing.T) {
	sink := &sinkSpy{failures: 10}
	st, orch := newFixture(t, sink, WithBackoff(backoff.NewConstant(time.Millisecond)))
	ctx := context.Background()

	rec := seedJob(t, st, &job.Result{Success: true, CompletionPercentage: 1.0})

	if err := orch.Transition(ctx, rec.ID, job.StateCompleted, "processing completed"); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	got := waitFor(t, orch, rec, func(r *job.Record) bool { return r.State == job.StateDeliveryError })
	if got.DeliveryAttempts() != 3 {
		t.Errorf("DeliveryAttempts = %d, want 3", got.DeliveryAttempts())
	}
	if !strings.Contains(got.LastError, "unreachable") {
		t.Errorf("LastError = %q", got.LastError)
	}
}

func TestDeliverySkipsAlreadyDelivered(t *testing.T) {
	sink := &sinkSpy{}
	st, orch := newFixture(t, sink)
	ctx := context.Background()

	rec := seedJob(t, st, &job.Result{Success: true, CompletionPercentage: 1.0})
	now := time.Now().UTC()
	if err := orch.Mutate(ctx, rec.ID, func(r *job.Record) error {
		r.DeliveredAt = &now
		return nil
	}); err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	if err := orch.Transition(ctx, rec.ID, job.StateCompleted, "processing completed"); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	got, err := orch.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != job.StateCompleted {
		t.Fatalf("state = %s, want %s", got.State, job.StateCompleted)
	}
	if len(sink.delivered()) != 0 {
		t.Error("already-delivered job must not be redelivered")
	}
}

func waitFor(t *testing.T, orch *lifecycle.Orchestrator, rec *job.Record, ok func(*job.Record) bool) *job.Record {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := orch.Get(context.Background(), rec.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if ok(got) {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	got, _ := orch.Get(context.Background(), rec.ID)
	t.Fatalf("condition never met, last state %s", got.State)
	return nil
}
