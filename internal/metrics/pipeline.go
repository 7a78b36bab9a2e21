package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline metrics: reranker, grader, orchestrator and trace collector.
var (
	ScoreCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_cache_total",
			Help:      "Relevance score cache hits and misses",
		},
		[]string{"result"},
	)

	ScoreFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_fallback_total",
			Help:      "Documents scored by a degraded path",
		},
		[]string{"mode", "reason"}, // reason: embed_error, chat_error, parse_error, timeout, rejected
	)

	ScorePoolRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_pool_rejected_total",
			Help:      "Scoring tasks rejected by a saturated worker pool",
		},
	)

	ScoreBatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "score_batch_duration_seconds",
			Help:      "Time to score one candidate batch",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"mode"},
	)

	GradeDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grade_decisions_total",
			Help:      "Aggregate grading decisions",
		},
		[]string{"decision"},
	)

	RouteDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_decisions_total",
			Help:      "Routing decisions by strategy",
		},
		[]string{"strategy"},
	)

	OrchestratorIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "orchestrator_iterations",
			Help:      "Rewrite/fallback cycles per request",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 8},
		},
	)

	OrchestratorOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orchestrator_outcomes_total",
			Help:      "Terminal orchestrator states",
		},
		[]string{"outcome"}, // direct, retrieved, max_iterations, early_exit
	)

	StageErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Collaborator failures absorbed by a pipeline stage",
		},
		[]string{"stage"},
	)

	TracesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traces_total",
			Help:      "Reasoning traces by lifecycle event",
		},
		[]string{"event"}, // started, completed, evicted
	)

	TraceStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trace_steps_total",
			Help:      "Reasoning steps recorded by step type",
		},
		[]string{"type"},
	)
)
