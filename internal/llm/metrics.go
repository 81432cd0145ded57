package llm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	completionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "persona_memory_llm_completions_total",
		Help: "Completion calls by provider and result",
	}, []string{"provider", "result"})

	completionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "persona_memory_llm_completion_duration_seconds",
		Help:    "Completion latency by provider",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"provider"})
)

func observe(provider string, start time.Time, err error) {
	completionDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	completionsTotal.WithLabelValues(provider, result).Inc()
}
