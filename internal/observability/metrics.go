package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "disaster_notify"

// Metrics holds the Prometheus counters for ingest, dispatch and sweep.
type Metrics struct {
	FeedFetches       *prometheus.CounterVec // labels: outcome={success,error}
	RecordsFetched    prometheus.Counter
	RecordsIngested   prometheus.Counter
	RecordsDuplicate  prometheus.Counter
	RecordsStale      prometheus.Counter
	RecordsSkipped    *prometheus.CounterVec // labels: reason={parse,unresolved,store}
	RegionsUnresolved prometheus.Counter

	Notifications *prometheus.CounterVec // labels: channel, outcome={created,sent,skipped,failed}
	DispatchQueue prometheus.Gauge

	DisastersDeactivated prometheus.Counter
	IngestDuration       prometheus.Histogram
}

func newMetrics() *Metrics {
	return &Metrics{
		FeedFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_fetches_total",
			Help:      "Alert feed fetches by outcome.",
		}, []string{"outcome"}),
		RecordsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_fetched_total",
			Help:      "Alert records returned by the feed.",
		}),
		RecordsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_ingested_total",
			Help:      "Alert records stored as new disaster events.",
		}),
		RecordsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_duplicate_total",
			Help:      "Alert records skipped because the event was already stored.",
		}),
		RecordsStale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_stale_total",
			Help:      "Alert records older than the recency window.",
		}),
		RecordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Alert records dropped by reason.",
		}, []string{"reason"}),
		RegionsUnresolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "regions_unresolved_total",
			Help:      "Region fragments that matched no region.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications by channel and outcome.",
		}, []string{"channel", "outcome"}),
		DispatchQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_queue_depth",
			Help:      "Delivery jobs waiting for a worker.",
		}),
		DisastersDeactivated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disasters_deactivated_total",
			Help:      "Disaster events marked inactive by the sweeper.",
		}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Duration of one ingest run including dispatch enqueue.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FeedFetches,
		m.RecordsFetched,
		m.RecordsIngested,
		m.RecordsDuplicate,
		m.RecordsStale,
		m.RecordsSkipped,
		m.RegionsUnresolved,
		m.Notifications,
		m.DispatchQueue,
		m.DisastersDeactivated,
		m.IngestDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// StreamStats is the live-stream broadcaster as seen at scrape time.
type StreamStats interface {
	SubscriberCount() int
	Dropped() uint64
}

// StreamCollectors reads subscriber count and dropped events from s on
// every scrape.
func StreamCollectors(s StreamStats) []prometheus.Collector {
	return []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_subscribers",
			Help:      "Live stream clients currently connected.",
		}, func() float64 { return float64(s.SubscriberCount()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_dropped_total",
			Help:      "Stream events skipped for subscribers that fell behind.",
		}, func() float64 { return float64(s.Dropped()) }),
	}
}

// RegisterStream registers StreamCollectors with the default Prometheus registry.
func RegisterStream(s StreamStats) {
	prometheus.MustRegister(StreamCollectors(s)...)
}
