// Package monitor holds the Prometheus metrics for ingestion, retrieval and
// generation, plus the optional /metrics endpoint.
package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sync outcome labels
const (
	OutcomeNew       = "new"
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomeError     = "error"
)

// Query outcome labels
const (
	QueryOK       = "ok"
	QueryNoTables = "no_tables"
	QueryFailed   = "failed"
)

var (
	schemaSyncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sql_agent_schema_sync_total",
			Help: "Schema definitions processed by sync, by outcome.",
		},
		[]string{"outcome"},
	)
	schemaPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sql_agent_schema_pruned_total",
			Help: "Stored schemas removed because their source file disappeared.",
		},
	)
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sql_agent_queries_total",
			Help: "Query generation requests, by outcome.",
		},
		[]string{"outcome"},
	)
	retrievedSchemas = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sql_agent_retrieved_schemas",
			Help:    "Number of schemas placed in each prompt.",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)
	generationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sql_agent_generation_duration_seconds",
			Help:    "Language model generation latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"provider"},
	)
	embeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sql_agent_embedding_cache_total",
			Help: "Embedding cache lookups, by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		schemaSyncTotal,
		schemaPrunedTotal,
		queriesTotal,
		retrievedSchemas,
		generationDurationSeconds,
		embeddingCacheTotal,
	)
}

func RecordSync(outcome string) {
	schemaSyncTotal.WithLabelValues(outcome).Inc()
}

func RecordPruned(n int) {
	if n > 0 {
		schemaPrunedTotal.Add(float64(n))
	}
}

func RecordQuery(outcome string) {
	queriesTotal.WithLabelValues(outcome).Inc()
}

func ObserveRetrieved(n int) {
	retrievedSchemas.Observe(float64(n))
}

func ObserveGeneration(provider string, elapsed time.Duration) {
	generationDurationSeconds.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func RecordEmbeddingCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}

	embeddingCacheTotal.WithLabelValues(result).Inc()
}
