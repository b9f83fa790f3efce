package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeCompleted        = "completed"
	OutcomeBlocked          = "blocked"
	OutcomeCancelled        = "cancelled"
	OutcomeGenerationFailed = "generation_failed"
	OutcomeExecutionFailed  = "execution_failed"

	GenerationKindSQL     = "sql"
	GenerationKindExplain = "explain"
)

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askql_turns_total",
			Help: "Total number of question turns by outcome.",
		},
		[]string{"outcome"},
	)
	gateRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askql_gate_rejections_total",
			Help: "Total number of candidate statements rejected by the safety gate.",
		},
		[]string{"reason"},
	)
	generationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askql_generation_duration_seconds",
			Help:    "Text-generation round trip latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"kind"},
	)
	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askql_query_duration_seconds",
			Help:    "Approved query execution latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	queryRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askql_query_rows",
			Help:    "Number of rows returned by approved queries.",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		},
	)
)

func init() {
	prometheus.MustRegister(
		turnsTotal,
		gateRejectionsTotal,
		generationDurationSeconds,
		queryDurationSeconds,
		queryRows,
	)
}

func ObserveTurn(outcome string) {
	turnsTotal.WithLabelValues(outcome).Inc()
}

func ObserveGateRejection(reason string) {
	gateRejectionsTotal.WithLabelValues(reason).Inc()
}

func ObserveGeneration(kind string, elapsed time.Duration) {
	generationDurationSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func ObserveQuery(rows int, elapsed time.Duration) {
	if rows < 0 {
		rows = 0
	}
	queryDurationSeconds.Observe(elapsed.Seconds())
	queryRows.Observe(float64(rows))
}
