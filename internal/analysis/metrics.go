package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// filesTotal counts analyzed files by language and resulting strategy.
	filesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scopegraph",
		Subsystem: "analysis",
		Name:      "files_total",
		Help:      "Files analyzed by language and resulting strategy",
	}, []string{"language", "strategy"})

	// failuresTotal counts files that produced no result.
	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scopegraph",
		Subsystem: "analysis",
		Name:      "failures_total",
		Help:      "Files that failed analysis by language and reason",
	}, []string{"language", "reason"})

	// buildSeconds measures scope graph construction plus resolution.
	buildSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scopegraph",
		Subsystem: "analysis",
		Name:      "build_seconds",
		Help:      "Scope graph build and resolve latency",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"language"})
)
