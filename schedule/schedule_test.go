package schedule_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/acpflow/schedule"
)

func TestScheduleRunsTask(t *testing.T) {
	r := schedule.NewRunner(nil)
	defer func() { _ = r.Stop(context.Background()) }()

	fired := make(chan struct{})
	r.Schedule("job-1", 10*time.Millisecond, func(context.Context) {
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("task did not fire")
	}

	if got := r.Pending(); got != 0 {
		t.Errorf("Pending() = %d after fire, want 0", got)
	}
}

func TestScheduleReplacesSameKey(t *testing.T) {
	r := schedule.NewRunner(nil)
	defer func() { _ = r.Stop(context.Background()) }()

	var first, second atomic.Int32
	r.Schedule("job-1", 20*time.Millisecond, func(context.Context) {
		first.Add(1)
	})
	r.Schedule("job-1", 20*time.Millisecond, func(context.Context) {
		second.Add(1)
	})

	if got := r.Pending(); got != 1 {
		t.Fatalf("Pending() = %d, want 1", got)
	}

	time.Sleep(100 * time.Millisecond)
	if first.Load() != 0 {
		t.Error("replaced task fired")
	}
	if second.Load() != 1 {
		t.Errorf("replacement fired %d times, want 1", second.Load())
	}
}

func TestCancel(t *testing.T) {
	r := schedule.NewRunner(nil)
	defer func() { _ = r.Stop(context.Background()) }()

	var fired atomic.Int32
	r.Schedule("job-1", 20*time.Millisecond, func(context.Context) {
		fired.Add(1)
	})

	if !r.Cancel("job-1") {
		t.Fatal("Cancel returned false for pending task")
	}
	if r.Cancel("job-1") {
		t.Fatal("Cancel returned true for already-cancelled task")
	}

	time.Sleep(100 * time.Millisecond)
	if fired.Load() != 0 {
		t.Error("cancelled task fired")
	}
}

func TestStopDropsPendingAndBlocksNew(t *testing.T) {
	r := schedule.NewRunner(nil)

	var fired atomic.Int32
	r.Schedule("job-1", 50*time.Millisecond, func(context.Context) {
		fired.Add(1)
	})

	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// Scheduling after stop is a no-op.
	r.Schedule("job-2", time.Millisecond, func(context.Context) {
		fired.Add(1)
	})

	time.Sleep(100 * time.Millisecond)
	if fired.Load() != 0 {
		t.Errorf("fired = %d after stop, want 0", fired.Load())
	}
}

func TestStopWaitsForInFlight(t *testing.T) {
	r := schedule.NewRunner(nil)

	started := make(chan struct{})
	var finished atomic.Bool
	r.Schedule("job-1", time.Millisecond, func(context.Context) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	})

	<-started
	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !finished.Load() {
		t.Error("Stop returned before in-flight task finished")
	}
}

func TestStopHonorsContextDeadline(t *testing.T) {
	r := schedule.NewRunner(nil)

	started := make(chan struct{})
	release := make(chan struct{})
	r.Schedule("job-1", time.Millisecond, func(context.Context) {
		close(started)
		<-release
	})

	<-started
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := r.Stop(ctx); err == nil {
		t.Error("expected deadline error from Stop with stuck task")
	}
	close(release)
}

func TestTaskContextCancelledOnStop(t *testing.T) {
	r := schedule.NewRunner(nil)

	gotCancel := make(chan struct{})
	started := make(chan struct{})
	r.Schedule("job-1", time.Millisecond, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(gotCancel)
	})

	<-started
	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	select {
	case <-gotCancel:
	case <-time.After(time.Second):
		t.Fatal("task context was not cancelled on Stop")
	}
}
