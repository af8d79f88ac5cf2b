package payment

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/xraph/acpflow/job"
	"github.com/xraph/acpflow/lifecycle"
)

func startMonitor(t *testing.T, orch *lifecycle.Orchestrator, svc *Service, timeout time.Duration) *Monitor {
	t.Helper()

	m := NewMonitor(orch, svc, timeout, 5*time.Millisecond, slog.Default())
	m.Start()
	t.Cleanup(func() { _ = m.Stop(context.Background()) })
	return m
}

func awaitingPayment(t *testing.T, st interface {
	CreateJob(ctx context.Context, rec *job.Record) error
}, orch *lifecycle.Orchestrator, amount float64, category job.Category) *job.Record {
	t.Helper()

	rec := job.New(job.Spec{
		Category:         category,
		Type:             job.TypeAnalyzeMarket,
		RequesterID:      "req-1",
		RequesterAddress: "0xreq",
		PaymentToken:     "USDC",
	})
	rec.State = job.StateDelivering
	rec.PaymentAmount = amount
	rec.Result = &job.Result{Success: true, CompletionPercentage: 1.0}
	now := time.Now().UTC()
	rec.DeliveredAt = &now
	if err := st.CreateJob(context.Background(), rec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := orch.Transition(context.Background(), rec.ID, job.StateCompleted, "delivered"); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	return rec
}

func TestMonitorFinalizesCompletedPayment(t *testing.T) {
	st, orch, svc, stub := newFixture(t)

	rec := awaitingPayment(t, st, orch, 22.5, job.CategoryMarketAnalysis)
	stub.setUpdate(rec.ID, &Update{Status: StatusCompleted, TxID: "tx-9"})

	startMonitor(t, orch, svc, time.Hour)

	got := waitFor(t, orch, rec.ID, func(r *job.Record) bool { return r.State == job.StateFinalized })
	if got.PaymentStatus != job.PaymentCompleted {
		t.Errorf("PaymentStatus = %s, want %s", got.PaymentStatus, job.PaymentCompleted)
	}
	if got.PaymentTxID != "tx-9" {
		t.Errorf("PaymentTxID = %q, want tx-9", got.PaymentTxID)
	}
	// 22.5 at the default 2.5% fee.
	if fee, ok := got.ErrorDetails[detailPaymentFee].(float64); !ok || fee != 0.56 {
		t.Errorf("fee = %v, want 0.56", got.ErrorDetails[detailPaymentFee])
	}
}

func TestMonitorRetriesFailedEscrowRelease(t *testing.T) {
	st, orch, svc, stub := newFixture(t)

	// First release attempt fails in the completed handler, parking the
	// job in awaiting payment with the escrow recorded.
	stub.setReleaseErr(errors.New("escrow backend down"))
	rec := awaitingPayment(t, st, orch, 15, job.CategoryTradeExecution)
	stub.setReleaseErr(nil)
	stub.setUpdate(rec.ID, &Update{Status: StatusCompleted, TxID: "tx-esc"})

	startMonitor(t, orch, svc, time.Hour)

	got := waitFor(t, orch, rec.ID, func(r *job.Record) bool { return r.State == job.StateFinalized })
	if got.PaymentStatus != job.PaymentCompleted {
		t.Errorf("PaymentStatus = %s, want %s", got.PaymentStatus, job.PaymentCompleted)
	}

	stub.mu.Lock()
	released := append([]string(nil), stub.released...)
	stub.mu.Unlock()
	if len(released) != 1 || released[0] != "escrow-"+rec.ID.String() {
		t.Errorf("released = %v", released)
	}
}

func TestMonitorFailsFailedPayment(t *testing.T) {
	st, orch, svc, stub := newFixture(t)

	rec := awaitingPayment(t, st, orch, 22.5, job.CategoryMarketAnalysis)
	stub.setUpdate(rec.ID, &Update{Status: StatusFailed})

	startMonitor(t, orch, svc, time.Hour)

	got := waitFor(t, orch, rec.ID, func(r *job.Record) bool { return r.State == job.StatePaymentError })
	if got.PaymentStatus != job.PaymentFailed {
		t.Errorf("PaymentStatus = %s, want %s", got.PaymentStatus, job.PaymentFailed)
	}
}

func TestMonitorTimesOutPayment(t *testing.T) {
	st, orch, svc, _ := newFixture(t)

	rec := awaitingPayment(t, st, orch, 22.5, job.CategoryMarketAnalysis)

	startMonitor(t, orch, svc, time.Millisecond)

	got := waitFor(t, orch, rec.ID, func(r *job.Record) bool { return r.State == job.StatePaymentError })
	if !strings.Contains(got.LastError, "timed out") {
		t.Errorf("LastError = %q, want payment timeout", got.LastError)
	}
}
