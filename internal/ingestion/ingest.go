package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-disaster-notify/internal/models"
	"github.com/mr1hm/go-disaster-notify/internal/observability"
	"github.com/mr1hm/go-disaster-notify/internal/region"
	"github.com/mr1hm/go-disaster-notify/internal/repository"
)

type Fetcher interface {
	Fetch(ctx context.Context, day time.Time) ([]RawAlert, error)
}

// Publisher receives every newly stored disaster after commit.
type Publisher interface {
	Publish(ctx context.Context, d *models.Disaster) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, d *models.Disaster) (int, error)
}

type outcome int

const (
	outcomeIngested outcome = iota
	outcomeDuplicate
	outcomeStale
	outcomeUnresolved
)

var errNoLinkedRegions = errors.New("no region rows for resolved fragments")

// Stats summarizes one ingest run.
type Stats struct {
	Fetched    int
	Ingested   int
	Duplicates int
	Stale      int
	Skipped    int
	Failed     int
}

type Ingester struct {
	fetcher    Fetcher
	store      repository.Store
	resolver   *region.Resolver
	linker     *region.Linker
	dispatcher Dispatcher
	publishers []Publisher
	clock      clockwork.Clock
	loc        *time.Location
	recency    time.Duration
	metrics    *observability.Metrics
}

type IngesterConfig struct {
	Location      *time.Location
	RecencyWindow time.Duration
}

func NewIngester(
	cfg IngesterConfig,
	fetcher Fetcher,
	store repository.Store,
	dispatcher Dispatcher,
	clock clockwork.Clock,
	metrics *observability.Metrics,
	publishers ...Publisher,
) *Ingester {
	return &Ingester{
		fetcher:    fetcher,
		store:      store,
		resolver:   region.NewResolver(store),
		linker:     region.NewLinker(),
		dispatcher: dispatcher,
		publishers: publishers,
		clock:      clock,
		loc:        cfg.Location,
		recency:    cfg.RecencyWindow,
		metrics:    metrics,
	}
}

// Run fetches every feed day overlapping the recency window and ingests
// the records in feed order. A fetch failure aborts the run; record
// failures only skip that record.
func (i *Ingester) Run(ctx context.Context) (Stats, error) {
	start := i.clock.Now()
	defer func() { i.metrics.IngestDuration.Observe(i.clock.Since(start).Seconds()) }()

	var raws []RawAlert
	for _, day := range i.feedDays(start) {
		batch, err := i.fetcher.Fetch(ctx, day)
		if err != nil {
			i.metrics.FeedFetches.WithLabelValues("error").Inc()
			return Stats{}, fmt.Errorf("fetch feed for %s: %w", day.Format("2006-01-02"), err)
		}
		i.metrics.FeedFetches.WithLabelValues("success").Inc()
		raws = append(raws, batch...)
	}

	stats := i.Ingest(ctx, raws)
	slog.Info("ingest run complete",
		"fetched", stats.Fetched,
		"ingested", stats.Ingested,
		"duplicates", stats.Duplicates,
		"stale", stats.Stale,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)
	return stats, nil
}

// feedDays lists the feed-local calendar days from now-recency to now.
func (i *Ingester) feedDays(now time.Time) []time.Time {
	today := now.In(i.loc)
	earliest := now.Add(-i.recency).In(i.loc)

	var days []time.Time
	for d := earliest; ; d = d.AddDate(0, 0, 1) {
		days = append(days, d)
		if sameDay(d, today) || d.After(today) {
			break
		}
	}
	return days
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Ingest processes raws in order. Each record is stored, linked and
// dispatched independently of the others.
func (i *Ingester) Ingest(ctx context.Context, raws []RawAlert) Stats {
	stats := Stats{Fetched: len(raws)}
	i.metrics.RecordsFetched.Add(float64(len(raws)))

	for _, raw := range raws {
		if ctx.Err() != nil {
			break
		}
		out, err := i.ingestOne(ctx, raw)
		if err != nil {
			stats.Failed++
			slog.Error("failed to ingest alert", "sn", raw.SN, "error", err)
			continue
		}
		switch out {
		case outcomeIngested:
			stats.Ingested++
			i.metrics.RecordsIngested.Inc()
		case outcomeDuplicate:
			stats.Duplicates++
			i.metrics.RecordsDuplicate.Inc()
		case outcomeStale:
			stats.Stale++
			i.metrics.RecordsStale.Inc()
		case outcomeUnresolved:
			stats.Skipped++
			i.metrics.RecordsSkipped.WithLabelValues("unresolved").Inc()
		}
	}
	return stats
}

func (i *Ingester) ingestOne(ctx context.Context, raw RawAlert) (outcome, error) {
	now := i.clock.Now()
	d, err := ParseAlert(raw, i.loc, now)
	if err != nil {
		i.metrics.RecordsSkipped.WithLabelValues("parse").Inc()
		return 0, err
	}
	if d.StartTime.Before(now.Add(-i.recency)) {
		return outcomeStale, nil
	}

	exists, err := i.store.DisasterExists(ctx, d.DedupKey())
	if err != nil {
		return 0, err
	}
	if exists {
		return outcomeDuplicate, nil
	}

	keys, unresolved, err := i.resolver.ResolveAll(ctx, d.RawRegionText)
	if err != nil {
		return 0, err
	}
	i.metrics.RegionsUnresolved.Add(float64(len(unresolved)))
	if len(keys) == 0 {
		slog.Warn("no region resolved, skipping alert", "sn", raw.SN, "region_text", d.RawRegionText)
		return outcomeUnresolved, nil
	}

	duplicate := false
	err = i.store.WithTx(ctx, func(tx repository.Repository) error {
		inserted, err := tx.InsertDisaster(ctx, d)
		if err != nil {
			return err
		}
		if !inserted {
			duplicate = true
			return nil
		}
		ids, err := i.linker.Link(ctx, tx, d.ID, keys)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return errNoLinkedRegions
		}
		return nil
	})
	if errors.Is(err, errNoLinkedRegions) {
		slog.Warn("resolved regions have no rows, skipping alert", "sn", raw.SN, "region_text", d.RawRegionText)
		return outcomeUnresolved, nil
	}
	if err != nil {
		i.metrics.RecordsSkipped.WithLabelValues("store").Inc()
		return 0, err
	}
	if duplicate {
		return outcomeDuplicate, nil
	}

	slog.Info("stored disaster", "disaster_id", d.ID, "type", d.Type, "level", d.SeverityLevel, "regions", len(keys))
	i.afterCommit(ctx, d)
	return outcomeIngested, nil
}

// afterCommit publishes and dispatches a stored disaster. Failures here
// are logged; the disaster stays stored.
func (i *Ingester) afterCommit(ctx context.Context, d *models.Disaster) {
	if stored, err := i.store.GetDisaster(ctx, d.ID); err == nil {
		d = stored
	} else {
		slog.Warn("failed to reload disaster", "disaster_id", d.ID, "error", err)
	}

	for _, p := range i.publishers {
		if err := p.Publish(ctx, d); err != nil {
			slog.Error("failed to publish disaster", "disaster_id", d.ID, "error", err)
		}
	}

	if i.dispatcher == nil {
		return
	}
	if _, err := i.dispatcher.Dispatch(ctx, d); err != nil {
		slog.Error("failed to dispatch notifications", "disaster_id", d.ID, "error", err)
	}
}
