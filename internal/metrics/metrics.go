// Package metrics exposes Prometheus counters for LLM calls and Notion syncs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// llmRequestsTotal counts LLM calls.
	// Labels:
	//   - mode: interview, extract, weekly, transcribe
	//   - status: success, error
	llmRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Total number of LLM requests",
		},
		[]string{"mode", "status"},
	)

	llmRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "Duration of LLM requests in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"mode"},
	)

	// notionSyncTotal counts sync attempts.
	// Labels:
	//   - entity: daily, weekly
	//   - target: page, database, unknown
	//   - status: synced, failed
	notionSyncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notion_sync_total",
			Help: "Total number of Notion sync attempts",
		},
		[]string{"entity", "target", "status"},
	)
)

func init() {
	prometheus.MustRegister(llmRequestsTotal)
	prometheus.MustRegister(llmRequestDuration)
	prometheus.MustRegister(notionSyncTotal)
}

func RecordLLMRequest(mode, status string, durationSeconds float64) {
	llmRequestsTotal.WithLabelValues(mode, status).Inc()
	llmRequestDuration.WithLabelValues(mode).Observe(durationSeconds)
}

func RecordNotionSync(entity, target, status string) {
	notionSyncTotal.WithLabelValues(entity, target, status).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
