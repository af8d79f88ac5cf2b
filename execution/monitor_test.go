package execution

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/acpflow/job"
	"github.com/xraph/acpflow/lifecycle"
	"github.com/xraph/acpflow/store/memory"
)

func TestMonitorResponseTimeout(t *testing.T) {
	st := memory.New()
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	orch := lifecycle.New(st)

	sla := job.DefaultSLA()
	sla.ResponseTime = time.Millisecond
	rec := job.New(testSpec(&sla))
	if err := st.CreateJob(context.Background(), rec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	m := NewMonitor(orch, 5*time.Millisecond, slog.Default())
	m.Start()
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	got := waitForState(t, orch, rec, job.StateRejected)
	if len(got.History) == 0 {
		t.Fatal("expected a recorded transition")
	}
}

func TestMonitorResponseTimeoutAccepted(t *testing.T) {
	st := memory.New()
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	orch := lifecycle.New(st)

	sla := job.DefaultSLA()
	sla.ResponseTime = time.Millisecond
	rec := job.New(testSpec(&sla))
	rec.State = job.StateAccepted
	if err := st.CreateJob(context.Background(), rec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	m := NewMonitor(orch, 5*time.Millisecond, slog.Default())
	m.Start()
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	waitForState(t, orch, rec, job.StateRejected)
}

func TestMonitorSkipsAcceptedRetry(t *testing.T) {
	st := memory.New()
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	orch := lifecycle.New(st)

	sla := job.DefaultSLA()
	sla.ResponseTime = time.Millisecond
	rec := job.New(testSpec(&sla))
	rec.State = job.StateAccepted
	rec.RetryCount = 1
	if err := st.CreateJob(context.Background(), rec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	m := NewMonitor(orch, time.Millisecond, slog.Default())
	m.Start()
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	time.Sleep(50 * time.Millisecond)

	got, err := orch.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != job.StateAccepted {
		t.Errorf("state = %s, a granted retry must wait out its backoff in accepted", got.State)
	}
}

func TestMonitorProcessingTimeout(t *testing.T) {
	st := memory.New()
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	orch := lifecycle.New(st)

	sla := job.DefaultSLA()
	sla.ProcessingTime = time.Millisecond
	sla.MaxRetries = 0
	rec := job.New(testSpec(&sla))
	rec.State = job.StateProcessing
	started := time.Now().UTC().Add(-time.Second)
	rec.ProcessingStartedAt = &started
	if err := st.CreateJob(context.Background(), rec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	m := NewMonitor(orch, 5*time.Millisecond, slog.Default())
	m.Start()
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	waitForState(t, orch, rec, job.StateProcessingError)
}

func TestMonitorProcessingTimeoutRetries(t *testing.T) {
	st := memory.New()
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	orch := lifecycle.New(st)

	sla := job.DefaultSLA()
	sla.ProcessingTime = time.Millisecond
	sla.MaxRetries = 3
	rec := job.New(testSpec(&sla))
	rec.State = job.StateProcessing
	started := time.Now().UTC().Add(-time.Second)
	rec.ProcessingStartedAt = &started
	if err := st.CreateJob(context.Background(), rec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	m := NewMonitor(orch, 5*time.Millisecond, slog.Default())
	m.Start()
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	got := waitForState(t, orch, rec, job.StateAccepted)
	if got.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", got.RetryCount)
	}
	if got.ProcessingStartedAt != nil {
		t.Error("ProcessingStartedAt should be cleared when a retry is granted")
	}
}

func TestMonitorStopWithoutStart(t *testing.T) {
	m := NewMonitor(lifecycle.New(memory.New()), time.Second, slog.Default())
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestMonitorStartIdempotent(t *testing.T) {
	m := NewMonitor(lifecycle.New(memory.New()), time.Hour, slog.Default())
	m.Start()
	m.Start()
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
