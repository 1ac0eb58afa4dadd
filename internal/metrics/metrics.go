// Package metrics exposes the bot's Prometheus instrumentation. Collectors
// are package-level and registered with the default registry; internal/web
// serves them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChatMessages counts inbound chat events per platform, before any
	// policy checks.
	ChatMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Inbound chat messages observed.",
	}, []string{"platform"})

	// ChatReplies counts replies handed to the outbound throttler.
	ChatReplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_replies_total",
		Help: "Chat replies enqueued for sending.",
	}, []string{"platform"})

	// PipelineDrops counts messages dropped before generation, by stage.
	PipelineDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_drops_total",
		Help: "Messages dropped by the reaction pipeline.",
	}, []string{"stage"})

	// RedeemEvents counts reward redemptions observed.
	RedeemEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventsub_redeems_total",
		Help: "Reward redemption events observed.",
	})

	// Highlights counts persisted chat-spike highlights.
	Highlights = promauto.NewCounter(prometheus.CounterOpts{
		Name: "highlights_total",
		Help: "Chat-spike highlights recorded.",
	})

	// PrunedMessages counts rows removed by the retention job.
	PrunedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memory_pruned_total",
		Help: "Messages pruned by retention.",
	})

	// LLMLatency observes generation call latency.
	LLMLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "llm_latency_seconds",
		Help:    "Generation call latency.",
		Buckets: prometheus.DefBuckets,
	})
)
