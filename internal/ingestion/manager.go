package ingestion

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-disaster-notify/internal/config"
)

type Runner interface {
	Run(ctx context.Context) (Stats, error)
}

type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// DeliveryPool is the dispatcher's worker pool lifecycle.
type DeliveryPool interface {
	Start(ctx context.Context)
	Stop()
}

// Manager owns the scheduled jobs: the feed poller and the staleness
// sweeper, each on its own ticker.
type Manager struct {
	cfg      *config.Config
	ingester Runner
	sweeper  Sweeper
	pool     DeliveryPool
	clock    clockwork.Clock
	wg       sync.WaitGroup
}

func NewManager(cfg *config.Config, ingester Runner, sweeper Sweeper, pool DeliveryPool, clock clockwork.Clock) *Manager {
	return &Manager{
		cfg:      cfg,
		ingester: ingester,
		sweeper:  sweeper,
		pool:     pool,
		clock:    clock,
	}
}

func (m *Manager) Start(ctx context.Context) {
	if m.pool != nil {
		m.pool.Start(ctx)
	}

	if m.cfg.Ingest.Enabled && m.ingester != nil {
		m.wg.Add(1)
		go m.runJob(ctx, "ingest", m.cfg.Ingest.Interval, m.ingest)
	}

	if m.sweeper != nil {
		m.wg.Add(1)
		go m.runJob(ctx, "sweep", m.cfg.Sweep.Interval, m.sweep)
	}
}

func (m *Manager) runJob(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	defer m.wg.Done()
	slog.Info("starting job", "job", name, "interval", interval)

	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	// Initial run
	fn(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("job shutting down", "job", name)
			return
		case <-ticker.Chan():
			fn(ctx)
		}
	}
}

func (m *Manager) ingest(ctx context.Context) {
	if _, err := m.ingester.Run(ctx); err != nil {
		slog.Error("ingest run failed", "error", err)
	}
}

func (m *Manager) sweep(ctx context.Context) {
	if _, err := m.sweeper.Sweep(ctx); err != nil {
		slog.Error("sweep failed", "error", err)
	}
}

// Stop waits for the job loops to exit, then drains the delivery pool.
// Cancel the context passed to Start first.
func (m *Manager) Stop() {
	m.wg.Wait()
	if m.pool != nil {
		m.pool.Stop()
	}
	slog.Info("ingestion manager stopped")
}
