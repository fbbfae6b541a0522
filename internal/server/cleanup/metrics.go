package cleanup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "securedrop_cleanup_events_total",
		Help: "Removal events handled by the cleanup worker, by result",
	}, []string{"result"})

	feedPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "securedrop_cleanup_feed_pending",
		Help: "Removal events waiting for the cleanup worker",
	})

	reaperRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "securedrop_reaper_runs_total",
		Help: "Reaper passes",
	})

	reaperExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "securedrop_reaper_expired_total",
		Help: "Expired share records removed by the reaper",
	})

	reaperOrphansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "securedrop_reaper_orphans_swept_total",
		Help: "Orphan-marked blobs removed by the reaper",
	})

	reaperDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "securedrop_reaper_duration_seconds",
		Help:    "Duration of a reaper pass",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)
