package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerchat_pipeline_runs_total",
			Help: "Total number of pipeline runs by outcome.",
		},
		[]string{"outcome"},
	)
	pipelineStageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledgerchat_pipeline_stage_duration_seconds",
			Help:    "Pipeline stage latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)
	generationRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerchat_generation_retries_total",
			Help: "Total number of SQL generation retries after an empty or unparseable completion.",
		},
	)
	repairAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerchat_repair_attempts_total",
			Help: "Total number of SQL repair attempts.",
		},
	)
	repairSuccessTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerchat_repair_success_total",
			Help: "Total number of queries fixed by the repair loop.",
		},
	)
	semanticMatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerchat_semantic_matches_total",
			Help: "Total number of cross-session interactions recalled by embedding similarity.",
		},
	)
	resultRowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledgerchat_result_rows_returned",
			Help:    "Row counts of executed analysis queries.",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledgerchat_active_sessions",
			Help: "Current number of chat sessions held in memory.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineRunsTotal,
		pipelineStageDurationSeconds,
		generationRetriesTotal,
		repairAttemptsTotal,
		repairSuccessTotal,
		semanticMatchesTotal,
		resultRowsReturned,
		activeSessions,
	)
}

func ObservePipelineRun(outcome string, rows int) {
	pipelineRunsTotal.WithLabelValues(outcome).Inc()
	if rows >= 0 {
		resultRowsReturned.Observe(float64(rows))
	}
}

func ObserveStageDuration(stage string, elapsed time.Duration) {
	pipelineStageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func IncrementGenerationRetry() {
	generationRetriesTotal.Inc()
}

func ObserveRepairAttempt(fixed bool) {
	repairAttemptsTotal.Inc()
	if fixed {
		repairSuccessTotal.Inc()
	}
}

func AddSemanticMatches(count int) {
	if count > 0 {
		semanticMatchesTotal.Add(float64(count))
	}
}

func SetActiveSessions(count int) {
	if count < 0 {
		count = 0
	}
	activeSessions.Set(float64(count))
}
