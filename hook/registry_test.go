package hook_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/acpflow/hook"
	"github.com/xraph/acpflow/job"
)

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnJobCreated(_ context.Context, _ *job.Record) error {
	e.calls = append(e.calls, "OnJobCreated")
	return nil
}

func (e *allHooksExt) OnStateChanged(_ context.Context, _ *job.Record, _, _ job.State, _ string) error {
	e.calls = append(e.calls, "OnStateChanged")
	return nil
}

func (e *allHooksExt) OnJobRejected(_ context.Context, _ *job.Record, _ string) error {
	e.calls = append(e.calls, "OnJobRejected")
	return nil
}

func (e *allHooksExt) OnJobCompleted(_ context.Context, _ *job.Record, _ time.Duration) error {
	e.calls = append(e.calls, "OnJobCompleted")
	return nil
}

func (e *allHooksExt) OnJobFinalized(_ context.Context, _ *job.Record) error {
	e.calls = append(e.calls, "OnJobFinalized")
	return nil
}

func (e *allHooksExt) OnSLABreach(_ context.Context, _ *job.Record, _ string) error {
	e.calls = append(e.calls, "OnSLABreach")
	return nil
}

func (e *allHooksExt) OnDeadLettered(_ context.Context, _ *job.Record, _ error) error {
	e.calls = append(e.calls, "OnDeadLettered")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// stateOnlyExt only implements the state-change hook.
type stateOnlyExt struct {
	calls []string
}

func (e *stateOnlyExt) Name() string { return "state-only" }

func (e *stateOnlyExt) OnStateChanged(_ context.Context, _ *job.Record, _, _ job.State, _ string) error {
	e.calls = append(e.calls, "OnStateChanged")
	return nil
}

// failingExt returns errors from hooks.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnJobCreated(_ context.Context, _ *job.Record) error {
	return errors.New("boom")
}

func (e *failingExt) OnShutdown(_ context.Context) error {
	return errors.New("shutdown boom")
}

func newRecord() *job.Record {
	return job.New(job.Spec{
		Category:    job.CategoryCustom,
		Type:        job.TypeCustom,
		RequesterID: "req-1",
	})
}

func TestRegistry_EmitsAllHooks(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	ext := &allHooksExt{}
	r.Register(ext)

	ctx := context.Background()
	rec := newRecord()

	r.EmitJobCreated(ctx, rec)
	r.EmitStateChanged(ctx, rec, job.StatePending, job.StateValidating, "intake")
	r.EmitJobRejected(ctx, rec, "low reputation")
	r.EmitJobCompleted(ctx, rec, time.Second)
	r.EmitJobFinalized(ctx, rec)
	r.EmitSLABreach(ctx, rec, "processing_timeout")
	r.EmitDeadLettered(ctx, rec, errors.New("processing failed"))
	r.EmitShutdown(ctx)

	expected := []string{
		"OnJobCreated", "OnStateChanged", "OnJobRejected", "OnJobCompleted",
		"OnJobFinalized", "OnSLABreach", "OnDeadLettered", "OnShutdown",
	}
	if len(ext.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(ext.calls), ext.calls)
	}
	for i, want := range expected {
		if ext.calls[i] != want {
			t.Errorf("calls[%d] = %q, want %q", i, ext.calls[i], want)
		}
	}
}

func TestRegistry_PartialExtension(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	ext := &stateOnlyExt{}
	r.Register(ext)

	ctx := context.Background()
	rec := newRecord()

	r.EmitJobCreated(ctx, rec)
	r.EmitStateChanged(ctx, rec, job.StatePending, job.StateValidating, "")
	r.EmitShutdown(ctx)

	if len(ext.calls) != 1 || ext.calls[0] != "OnStateChanged" {
		t.Fatalf("expected only OnStateChanged, got %v", ext.calls)
	}
}

func TestRegistry_HookErrorsAreSwallowed(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	r.Register(&failingExt{})
	after := &allHooksExt{}
	r.Register(after)

	ctx := context.Background()
	r.EmitJobCreated(ctx, newRecord())
	r.EmitShutdown(ctx)

	// The failing extension must not stop later extensions from running.
	if len(after.calls) != 2 {
		t.Fatalf("expected 2 calls on second extension, got %v", after.calls)
	}
}

func TestRegistry_RegistrationOrder(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	first := &allHooksExt{}
	second := &allHooksExt{}
	r.Register(first)
	r.Register(second)

	if got := len(r.Extensions()); got != 2 {
		t.Fatalf("Extensions() length = %d, want 2", got)
	}

	r.EmitJobCreated(context.Background(), newRecord())
	if len(first.calls) != 1 || len(second.calls) != 1 {
		t.Fatalf("both extensions should be notified, got %v / %v", first.calls, second.calls)
	}
}
