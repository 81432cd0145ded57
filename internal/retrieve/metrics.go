package retrieve

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	retrievalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "persona_memory_retrieval_duration_seconds",
		Help:    "Time to rank one focal point",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 10},
	})

	retrievalCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "persona_memory_retrieval_candidates",
		Help:    "Candidate nodes scored per focal point",
		Buckets: []float64{0, 1, 10, 100, 1000, 10000},
	})

	retrievalEmpty = promauto.NewCounter(prometheus.CounterOpts{
		Name: "persona_memory_retrieval_empty_total",
		Help: "Focal points ranked against an empty candidate set",
	})

	retrievalErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "persona_memory_retrieval_errors_total",
		Help: "Retrieval failures by stage",
	}, []string{"stage"})
)
