package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "srofeed"

// Metrics aggregates the per-run pipeline counters. Everything registers in
// an isolated registry so a push delivers exactly this set and nothing else.
type Metrics struct {
	registry *prometheus.Registry

	FilingsFetched  *prometheus.CounterVec
	FilingsExcluded *prometheus.CounterVec
	FilingsNew      prometheus.Counter
	FeedEntries     prometheus.Gauge
	LastRunUnixtime prometheus.Gauge
	RunDuration     prometheus.Summary
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.FilingsFetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "filings_fetched_total",
		Help:      "Filings parsed per source before filtering",
	}, []string{"source"})
	m.FilingsExcluded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "filings_excluded_total",
		Help:      "Filings dropped by exclusion rules",
	}, []string{"rule"})
	m.FilingsNew = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "filings_new_total",
		Help:      "Filings stored for the first time this run",
	})
	m.FeedEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "feed_entries",
		Help:      "Entries in the published feed",
	})
	m.LastRunUnixtime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_unixtime",
		Help:      "Unix timestamp of the last completed run",
	})
	m.RunDuration = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of a full pipeline run",
	})

	m.registry.MustRegister(
		m.FilingsFetched, m.FilingsExcluded, m.FilingsNew,
		m.FeedEntries, m.LastRunUnixtime, m.RunDuration,
	)
	return m
}

// Push delivers the run's metrics to a Pushgateway. Metrics never fail a
// run; callers log push errors and move on.
func (m *Metrics) Push(gatewayURL, job string) error {
	return push.New(gatewayURL, job).Gatherer(m.registry).Push()
}
