package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// studyMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests
// can inject a fresh prometheus.Registry without polluting the default one.
type studyMetrics struct {
	// queriesTotal counts completed /api/ask requests, partitioned by
	// outcome: "ok", "no_evidence", "synthesis_timeout",
	// "retrieval_failed", or "error".
	queriesTotal *prometheus.CounterVec

	// queryDuration records the wall-clock duration of each /api/ask
	// request, partitioned the same way.
	queryDuration *prometheus.HistogramVec

	// degradedTotal counts queries answered with one or two retrieval
	// origins unavailable.
	degradedTotal prometheus.Counter

	// adapterFailures counts per-origin retrieval faults.
	adapterFailures *prometheus.CounterVec
}

// newStudyMetrics registers all server metrics against reg. The citation
// drop counter reads straight from the synthesizer so fabricated-citation
// volume is observable without extra plumbing in the ask path.
func newStudyMetrics(reg prometheus.Registerer, synth synthesizer) *studyMetrics {
	factory := promauto.With(reg)

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "biblestudyai",
		Subsystem: "answer",
		Name:      "citation_drops_total",
		Help:      "Total number of fabricated citations dropped from model answers.",
	}, func() float64 {
		return float64(synth.CitationDrops())
	})

	return &studyMetrics{
		queriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "biblestudyai",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total number of /api/ask requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		queryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "biblestudyai",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/ask requests.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		degradedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "biblestudyai",
			Subsystem: "query",
			Name:      "degraded_total",
			Help:      "Queries answered with at least one retrieval origin unavailable.",
		}),

		adapterFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "biblestudyai",
			Subsystem: "retrieval",
			Name:      "adapter_failures_total",
			Help:      "Retrieval origin faults, partitioned by origin.",
		}, []string{"origin"}),
	}
}
