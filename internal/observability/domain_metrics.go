package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	questionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlscout_questions_total",
			Help: "Total number of natural-language questions received by the pipeline.",
		},
	)
	stageFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlscout_stage_failures_total",
			Help: "Pipeline failures by stage.",
		},
		[]string{"stage"},
	)
	rejectedQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlscout_rejected_queries_total",
			Help: "Generated statements refused by the read-only gate, by offending keyword.",
		},
		[]string{"keyword"},
	)
	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlscout_stage_duration_seconds",
			Help:    "Wall-clock time spent per pipeline stage.",
			Buckets: []float64{0.001, 0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 60},
		},
		[]string{"stage"},
	)
	resultRowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlscout_result_rows_returned",
			Help:    "Rows returned per executed query, after the ceiling is applied.",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		},
	)
	truncatedResultsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlscout_truncated_results_total",
			Help: "Query results clipped at the row ceiling.",
		},
	)
	backendRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlscout_backend_retries_total",
			Help: "Generation backend attempts retried after a connection failure or timeout.",
		},
		[]string{"provider"},
	)
	schemaRebuildsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlscout_schema_rebuilds_total",
			Help: "Schema snapshot rebuilds (cache misses and invalidations).",
		},
	)
)

func init() {
	prometheus.MustRegister(
		questionsTotal,
		stageFailuresTotal,
		rejectedQueriesTotal,
		stageDurationSeconds,
		resultRowsReturned,
		truncatedResultsTotal,
		backendRetriesTotal,
		schemaRebuildsTotal,
	)
}

func IncrementQuestions() {
	questionsTotal.Inc()
}

func IncrementStageFailure(stage string) {
	stageFailuresTotal.WithLabelValues(stage).Inc()
}

func IncrementRejectedQuery(keyword string) {
	if keyword == "" {
		keyword = "none"
	}
	rejectedQueriesTotal.WithLabelValues(keyword).Inc()
}

func ObserveStageDuration(stage string, elapsed time.Duration) {
	stageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func ObserveResultRows(rows int, truncated bool) {
	resultRowsReturned.Observe(float64(rows))
	if truncated {
		truncatedResultsTotal.Inc()
	}
}

func IncrementBackendRetry(provider string) {
	backendRetriesTotal.WithLabelValues(provider).Inc()
}

func IncrementSchemaRebuild() {
	schemaRebuildsTotal.Inc()
}
