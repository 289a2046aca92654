package story

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	stageCard      = "card"
	stageAssembly  = "assembly"
	stageNarration = "narration"
)

var (
	registry = prometheus.NewRegistry()

	stageOutcomes = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "storybook_stage_outcomes_total",
			Help: "Stage calls partitioned by stage and outcome (ok or fallback).",
		},
		[]string{"stage", "outcome"},
	)
	stageDuration = promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storybook_stage_duration_seconds",
			Help:    "Latency of stage calls including the upstream request.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"stage"},
	)
)

// MetricsHandler serves the stage metrics in Prometheus text format.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func observe(stage, outcome string, started time.Time) {
	stageOutcomes.WithLabelValues(stage, outcome).Inc()
	stageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}
