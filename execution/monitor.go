package execution

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/acpflow/job"
	"github.com/xraph/acpflow/lifecycle"
)

const monitorScanBatch = 100

// Monitor periodically scans for jobs that have exceeded their SLA
// and reports breaches to the orchestrator.
type Monitor struct {
	orch     *lifecycle.Orchestrator
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// NewMonitor creates an SLA monitor scanning at the given interval.
func NewMonitor(orch *lifecycle.Orchestrator, interval time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		orch:     orch,
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

	m.logger.Info("sla monitor started", slog.Duration("interval", m.interval))
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
		m.logger.Info("sla monitor stopped")
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

// scan checks response-time SLAs on jobs that have not started
// processing and processing-time SLAs on running jobs.
func (m *Monitor) scan(ctx context.Context) {
	now := time.Now().UTC()

	for _, state := range []job.State{job.StatePending, job.StateValidating, job.StateAccepted} {
		for _, rec := range m.list(ctx, state) {
			// Retries sit in accepted while their backoff elapses; the
			// processing scan already charged them for the breach.
			if state == job.StateAccepted && rec.RetryCount > 0 {
				continue
			}
			sla := rec.Spec.EffectiveSLA()
			if now.Sub(rec.CreatedAt) <= sla.ResponseTime {
				continue
			}
			if err := m.orch.HandleSLABreach(ctx, rec.ID, lifecycle.BreachResponseTimeout); err != nil {
				m.logger.Error("failed to handle response timeout",
					slog.String("job_id", rec.ID.String()),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	for _, rec := range m.list(ctx, job.StateProcessing) {
		if rec.ProcessingStartedAt == nil {
			continue
		}
		sla := rec.Spec.EffectiveSLA()
		if now.Sub(*rec.ProcessingStartedAt) <= sla.ProcessingTime {
			continue
		}
		if err := m.orch.HandleSLABreach(ctx, rec.ID, lifecycle.BreachProcessingTimeout); err != nil {
			m.logger.Error("failed to handle processing timeout",
				slog.String("job_id", rec.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (m *Monitor) list(ctx context.Context, state job.State) []*job.Record {
	var out []*job.Record
	for offset := 0; ; offset += monitorScanBatch {
		page, err := m.orch.JobsByState(ctx, state, offset, monitorScanBatch)
		if err != nil {
			m.logger.Error("sla scan failed to list jobs",
				slog.String("state", string(state)),
				slog.String("error", err.Error()),
			)
			return out
		}
		out = append(out, page...)
		if len(page) < monitorScanBatch {
			return out
		}
	}
}
