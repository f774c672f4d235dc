package metrics

import "github.com/prometheus/client_golang/prometheus"

// FeedMetrics covers the price feed producer and the history archiver.
type FeedMetrics struct {
	Runs            *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	Updates         prometheus.Counter
	PersistFailures prometheus.Counter
	AssetsCreated   prometheus.Counter
	Archived        *prometheus.CounterVec
}

func NewFeedMetrics(reg prometheus.Registerer) *FeedMetrics {
	m := &FeedMetrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "runs_total",
			Help:      "Producer runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a producer run.",
			Buckets:   prometheus.DefBuckets,
		}),
		Updates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "updates_total",
			Help:      "Price updates built and published.",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "persist_failures_total",
			Help:      "Price updates the history store rejected.",
		}),
		AssetsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "assets_created_total",
			Help:      "Catalog entries created from upstream data.",
		}),
		Archived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archiver",
			Name:      "records_total",
			Help:      "History records consumed by the archiver by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.Runs, m.RunDuration, m.Updates, m.PersistFailures, m.AssetsCreated, m.Archived)
	return m
}
