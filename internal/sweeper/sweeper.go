package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-disaster-notify/internal/observability"
)

type Deactivator interface {
	DeactivateStartedBefore(ctx context.Context, cutoff, now time.Time) (int64, error)
}

// Sweeper marks disasters inactive once they started more than Retention
// ago. It never reactivates anything.
type Sweeper struct {
	store     Deactivator
	retention time.Duration
	clock     clockwork.Clock
	metrics   *observability.Metrics
}

func New(store Deactivator, retention time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *Sweeper {
	return &Sweeper{
		store:     store,
		retention: retention,
		clock:     clock,
		metrics:   metrics,
	}
}

// Sweep runs one pass and returns how many disasters were deactivated.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	now := s.clock.Now().UTC()
	cutoff := now.Add(-s.retention)

	n, err := s.store.DeactivateStartedBefore(ctx, cutoff, now)
	if err != nil {
		return 0, fmt.Errorf("deactivate disasters before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	s.metrics.DisastersDeactivated.Add(float64(n))

	if n > 0 {
		slog.Info("deactivated stale disasters", "count", n, "cutoff", cutoff)
	}
	return n, nil
}
