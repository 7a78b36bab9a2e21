package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var registerOnce sync.Once

// Register registers all collectors on the default registry. Must be called once from main;
// repeated calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		MustRegisterTo(prometheus.DefaultRegisterer)
	})
}

// MustRegisterTo registers all collectors on r. Useful with a fresh registry in tests.
func MustRegisterTo(r prometheus.Registerer) {
	r.MustRegister(
		httpRequestDuration,
		httpRequestsTotal,
		httpInFlight,
		LLMRequestsTotal,
		LLMRequestDuration,
		LLMTokensTotal,
		LLMErrorsTotal,
		EmbeddingCacheTotal,
		ScoreCacheTotal,
		ScoreFallbackTotal,
		ScorePoolRejectedTotal,
		ScoreBatchDuration,
		GradeDecisionsTotal,
		RouteDecisionsTotal,
		OrchestratorIterations,
		OrchestratorOutcomesTotal,
		StageErrorsTotal,
		TracesTotal,
		TraceStepsTotal,
	)
}
