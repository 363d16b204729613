// Package metrics exposes Prometheus instrumentation for the ingest and
// analysis pipeline. Metrics auto-register with the default registry and are
// served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "loglens"

var (
	// EventsIngested counts accepted events by system.
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_ingested_total",
		Help:      "Events accepted into storage",
	}, []string{"system"})

	// EventsRejected counts batch entries that did not become events.
	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_rejected_total",
		Help:      "Batch entries rejected at ingest",
	}, []string{"reason"})

	// EventsScored counts events that received LLM criterion scores.
	EventsScored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_scored_total",
		Help:      "Events scored by the LLM scoring job",
	})

	// LLMRequests counts LLM calls by task and outcome.
	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_requests_total",
		Help:      "LLM API calls",
	}, []string{"task", "status"})

	// LLMTokens counts tokens by task and direction.
	LLMTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_tokens_total",
		Help:      "LLM token usage",
	}, []string{"task", "direction"})

	// WindowsCreated counts analysis windows by trigger.
	WindowsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "windows_created_total",
		Help:      "Analysis windows created",
	}, []string{"trigger"})

	// MetaAnalyses counts completed meta-analysis passes.
	MetaAnalyses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "meta_analyses_total",
		Help:      "Meta-analysis passes persisted",
	})

	// FindingTransitions counts finding lifecycle changes.
	FindingTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "finding_transitions_total",
		Help:      "Finding lifecycle transitions",
	}, []string{"transition"})

	// PipelineRunSeconds observes full pipeline pass durations.
	PipelineRunSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pipeline_run_seconds",
		Help:      "Duration of one pipeline pass",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	// SSEClients tracks connected score-stream subscribers.
	SSEClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sse_clients",
		Help:      "Connected score stream clients",
	})
)
