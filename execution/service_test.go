package execution

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/xraph/acpflow/backoff"
	"github.com/xraph/acpflow/job"
	"github.com/xraph/acpflow/lifecycle"
	"github.com/xraph/acpflow/schedule"
	"github.com/xraph/acpflow/store/memory"
)

func testSpec(sla *job.SLAConfig) job.Spec {
	return job.Spec{
		Category:         job.CategoryMarketAnalysis,
		Type:             job.TypeAnalyzeMarket,
		Priority:         job.PriorityMedium,
		RequesterID:      "req-1",
		RequesterAddress: "0xabc",
		SLA:              sla,
	}
}

func newService(t *testing.T, sla *job.SLAConfig) (*Service, *lifecycle.Orchestrator, *job.Record) {
	t.Helper()

	st := memory.New()
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	orch := lifecycle.New(st)
	runner := schedule.NewRunner(slog.Default())
	t.Cleanup(func() { _ = runner.Stop(context.Background()) })

	svc := NewService(orch, NewRegistry(), runner, backoff.NewConstant(time.Millisecond), slog.Default())

	rec := job.New(testSpec(sla))
	if err := st.CreateJob(context.Background(), rec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return svc, orch, rec
}

func TestProcessingHandlerSuccess(t *testing.T) {
	svc, orch, rec := newService(t, nil)
	ctx := context.Background()

	svc.Registry().Register(job.TypeAnalyzeMarket, ProcessorFunc(func(_ context.Context, _ *job.Record) (*job.Result, error) {
		return &job.Result{
			Success:              true,
			Data:                 map[string]any{"trend": "bullish"},
			CompletionPercentage: 1.0,
		}, nil
	}))
	if err := orch.RegisterHandler(job.StateProcessing, svc.ProcessingHandler()); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}

	if err := orch.Transition(ctx, rec.ID, job.StateProcessing, "test"); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	got, err := orch.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != job.StateCompleted {
		t.Fatalf("state = %s, want %s", got.State, job.StateCompleted)
	}
	if got.Result == nil || !got.Result.Success {
		t.Fatalf("result = %+v, want successful result", got.Result)
	}
	if got.Result.Data["trend"] != "bullish" {
		t.Errorf("result data not preserved: %+v", got.Result.Data)
	}
	if got.ProcessingStartedAt != nil {
		t.Error("ProcessingStartedAt should be cleared on completion")
	}
}

func TestProcessingHandlerRetriesOnFailure(t *testing.T) {
	svc, orch, rec := newService(t, nil)
	ctx := context.Background()

	svc.Registry().Register(job.TypeAnalyzeMarket, ProcessorFunc(func(_ context.Context, _ *job.Record) (*job.Result, error) {
		return nil, errors.New("upstream unavailable")
	}))
	if err := orch.RegisterHandler(job.StateProcessing, svc.ProcessingHandler()); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}

	if err := orch.Transition(ctx, rec.ID, job.StateProcessing, "test"); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	got, err := orch.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != job.StateAccepted {
		t.Fatalf("state = %s, want %s", got.State, job.StateAccepted)
	}
	if got.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", got.RetryCount)
	}
	if got.LastError != "upstream unavailable" {
		t.Errorf("LastError = %q", got.LastError)
	}
}

func TestProcessingHandlerExhaustsRetries(t *testing.T) {
	sla := job.DefaultSLA()
	sla.MaxRetries = 0
	svc, orch, rec := newService(t, &sla)
	ctx := context.Background()

	svc.Registry().Register(job.TypeAnalyzeMarket, ProcessorFunc(func(_ context.Context, _ *job.Record) (*job.Result, error) {
		return nil, errors.New("data feed down")
	}))
	if err := orch.RegisterHandler(job.StateProcessing, svc.ProcessingHandler()); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}

	if err := orch.Transition(ctx, rec.ID, job.StateProcessing, "test"); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	got, err := orch.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != job.StateProcessingError {
		t.Fatalf("state = %s, want %s", got.State, job.StateProcessingError)
	}
	if got.LastError != "data feed down" {
		t.Errorf("LastError = %q", got.LastError)
	}
}

func TestProcessingHandlerNoProcessor(t *testing.T) {
	svc, orch, rec := newService(t, nil)
	ctx := context.Background()

	if err := orch.RegisterHandler(job.StateProcessing, svc.ProcessingHandler()); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}

	if err := orch.Transition(ctx, rec.ID, job.StateProcessing, "test"); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	got, err := orch.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != job.StateProcessingError {
		t.Fatalf("state = %s, want %s", got.State, job.StateProcessingError)
	}
	if !strings.Contains(got.LastError, "no processor") {
		t.Errorf("LastError = %q, want mention of missing processor", got.LastError)
	}
}

func TestProcessingHandlerBelowCompletionThreshold(t *testing.T) {
	svc, orch, rec := newService(t, nil)
	ctx := context.Background()

	svc.Registry().Register(job.TypeAnalyzeMarket, ProcessorFunc(func(_ context.Context, _ *job.Record) (*job.Result, error) {
		return &job.Result{Success: true, CompletionPercentage: 0.4}, nil
	}))
	if err := orch.RegisterHandler(job.StateProcessing, svc.ProcessingHandler()); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}

	if err := orch.Transition(ctx, rec.ID, job.StateProcessing, "test"); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	got, err := orch.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != job.StateAccepted {
		t.Fatalf("state = %s, want %s", got.State, job.StateAccepted)
	}
	if !strings.Contains(got.LastError, "below threshold") {
		t.Errorf("LastError = %q", got.LastError)
	}
}

func TestAcceptedHandlerQueuesProcessing(t *testing.T) {
	svc, orch, rec := newService(t, nil)
	ctx := context.Background()

	svc.Registry().Register(job.TypeAnalyzeMarket, ProcessorFunc(func(_ context.Context, _ *job.Record) (*job.Result, error) {
		return &job.Result{Success: true, CompletionPercentage: 1.0}, nil
	}))
	if err := orch.RegisterHandler(job.StateAccepted, svc.AcceptedHandler()); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}
	if err := orch.RegisterHandler(job.StateProcessing, svc.ProcessingHandler()); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}

	if err := orch.Transition(ctx, rec.ID, job.StateAccepted, "test"); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	waitForState(t, orch, rec, job.StateCompleted)
}

func TestAcceptedHandlerRetriesThroughBackoff(t *testing.T) {
	svc, orch, rec := newService(t, nil)
	ctx := context.Background()

	attempts := 0
	svc.Registry().Register(job.TypeAnalyzeMarket, ProcessorFunc(func(_ context.Context, _ *job.Record) (*job.Result, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("transient")
		}
		return &job.Result{Success: true, CompletionPercentage: 1.0}, nil
	}))
	if err := orch.RegisterHandler(job.StateAccepted, svc.AcceptedHandler()); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}
	if err := orch.RegisterHandler(job.StateProcessing, svc.ProcessingHandler()); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}

	if err := orch.Transition(ctx, rec.ID, job.StateAccepted, "test"); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	got := waitForState(t, orch, rec, job.StateCompleted)
	if got.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", got.RetryCount)
	}
}

func waitForState(t *testing.T, orch *lifecycle.Orchestrator, rec *job.Record, want job.State) *job.Record {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := orch.Get(context.Background(), rec.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.State == want {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	got, _ := orch.Get(context.Background(), rec.ID)
	t.Fatalf("job never reached %s, last state %s", want, got.State)
	return nil
}
