package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/acpflow/job"
	"github.com/xraph/acpflow/lifecycle"
	"github.com/xraph/acpflow/schedule"
)

const monitorScanBatch = 100

// Monitor fails jobs that have been in the delivering state longer
// than the delivery timeout, cancelling any retry still queued for
// them.
type Monitor struct {
	orch     *lifecycle.Orchestrator
	runner   *schedule.Runner
	timeout  time.Duration
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

func NewMonitor(orch *lifecycle.Orchestrator, runner *schedule.Runner, timeout, interval time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		orch:     orch,
		runner:   runner,
		timeout:  timeout,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the scan loop. Calling Start on a running monitor is
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

	m.logger.Info("delivery monitor started",
		slog.Duration("interval", m.interval),
		slog.Duration("timeout", m.timeout),
	)
}

// Stop halts the scan loop, waiting for an in-flight scan to finish
// or ctx to expire.
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
		m.logger.Info("delivery monitor stopped")
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
		page, err := m.orch.JobsByState(ctx, job.StateDelivering, offset, monitorScanBatch)
		if err != nil {
			m.logger.Error("delivery scan failed to list jobs", slog.String("error", err.Error()))
			return
		}
		for _, rec := range page {
			if now.Sub(rec.StateEnteredAt()) <= m.timeout {
				continue
			}
			m.runner.Cancel("dlv:" + rec.ID.String())
			err := m.orch.Transition(ctx, rec.ID, job.StateDeliveryError,
				fmt.Sprintf("delivery timed out after %s", m.timeout))
			if err != nil {
				m.logger.Error("failed to time out delivery",
					slog.String("job_id", rec.ID.String()),
					slog.String("error", err.Error()),
				)
			}
		}
		if len(page) < monitorScanBatch {
			return
		}
	}
}
