package payment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/acpflow"
	"github.com/xraph/acpflow/job"
	"github.com/xraph/acpflow/lifecycle"
)

const monitorScanBatch = 100

// Monitor polls the settlement service for jobs awaiting payment and
// finalizes, fails, or times them out.
type Monitor struct {
	orch     *lifecycle.Orchestrator
	svc      *Service
	timeout  time.Duration
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

func NewMonitor(orch *lifecycle.Orchestrator, svc *Service, timeout, interval time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		orch:     orch,
		svc:      svc,
		timeout:  timeout,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the poll loop. Calling Start on a running monitor is
// a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.stopCh = make(chan struct{})

	m.wg.Add(1)
	go m.loop()

	m.logger.Info("payment monitor started",
		slog.Duration("interval", m.interval),
		slog.Duration("timeout", m.timeout),
	)
}

// Stop halts the poll loop, waiting for an in-flight scan to finish or
// ctx to expire.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	close(m.stopCh)
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("payment monitor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.scan(context.Background())
		}
	}
}

func (m *Monitor) scan(ctx context.Context) {
	now := time.Now().UTC()

	for offset := 0; ; offset += monitorScanBatch {
		page, err := m.orch.JobsByState(ctx, job.StateAwaitingPayment, offset, monitorScanBatch)
		if err != nil {
			m.logger.Error("payment scan failed to list jobs", slog.String("error", err.Error()))
			return
		}
		for _, rec := range page {
			m.check(ctx, rec, now)
		}
		if len(page) < monitorScanBatch {
			return
		}
	}
}

func (m *Monitor) check(ctx context.Context, rec *job.Record, now time.Time) {
	if now.Sub(rec.StateEnteredAt()) > m.timeout {
		err := m.svc.fail(ctx, rec.ID,
			fmt.Sprintf("%s after %s", acpflow.ErrPaymentTimeout.Error(), m.timeout))
		if err != nil {
			m.logger.Error("failed to time out payment",
				slog.String("job_id", rec.ID.String()),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	update, err := m.svc.settlement.PaymentStatus(ctx, rec.ID)
	if err != nil {
		m.logger.Warn("payment status poll failed",
			slog.String("job_id", rec.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	switch update.Status {
	case StatusCompleted:
		if err := m.svc.settle(ctx, rec.ID, update.TxID); err != nil {
			m.logger.Error("failed to settle payment",
				slog.String("job_id", rec.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	case StatusFailed:
		if err := m.svc.fail(ctx, rec.ID, "payment failed at settlement"); err != nil {
			m.logger.Error("failed to record payment failure",
				slog.String("job_id", rec.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	case StatusPending:
		// Keep waiting.
	}
}
