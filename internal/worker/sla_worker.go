package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/service"
)

// SLAWorker periodically runs the escalation and idle-close sweeps. Sweep
// failures are logged and retried on the next tick; the worker itself
// never stops until its context is cancelled.
type SLAWorker struct {
	engine  *service.TicketService
	metrics *observability.Metrics
	logger  *zap.Logger
	cfg     config.SweeperConfig
}

// NewSLAWorker constructs the worker.
func NewSLAWorker(cfg config.SweeperConfig, engine *service.TicketService, metrics *observability.Metrics, logger *zap.Logger) *SLAWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLAWorker{engine: engine, metrics: metrics, logger: logger, cfg: cfg}
}

// Start launches the sweep loop in its own goroutine and returns
// immediately. It is a no-op when the sweeper is disabled.
func (w *SLAWorker) Start(ctx context.Context) {
	if !w.cfg.Enabled {
		w.logger.Info("sla sweeper disabled")
		return
	}
	go w.run(ctx)
}

func (w *SLAWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.logger.Info("sla sweeper started", zap.Duration("interval", w.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sla sweeper stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SLAWorker) sweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("sweep panicked", zap.Any("panic", r))
		}
	}()

	escalated, err := w.engine.EscalateExpiredTickets(ctx)
	if err != nil {
		w.logger.Error("escalation sweep failed", zap.Error(err))
	}
	if escalated > 0 {
		w.metrics.RecordSweep("escalated", escalated)
		w.logger.Info("escalated expired tickets", zap.Int("count", escalated))
	}

	closed, err := w.engine.AutoCloseInactiveTickets(ctx)
	if err != nil {
		w.logger.Error("idle-close sweep failed", zap.Error(err))
	}
	if closed > 0 {
		w.metrics.RecordSweep("closed", closed)
		w.logger.Info("closed inactive tickets", zap.Int("count", closed))
	}
}
