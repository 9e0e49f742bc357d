// Package metrics provides Prometheus metrics collection for ChatGate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for ChatGate.
type Collector struct {
	// Chat request metrics
	ChatRequestsTotal *prometheus.CounterVec
	DenialsTotal      *prometheus.CounterVec

	// Usage metering metrics
	UsageIncrementsTotal *prometheus.CounterVec
	UsageResetsTotal     prometheus.Counter

	// Upstream metrics
	CompletionDuration *prometheus.HistogramVec
	CompletionErrors   *prometheus.CounterVec

	// Billing metrics
	WebhookEventsTotal *prometheus.CounterVec
	CheckoutsTotal     *prometheus.CounterVec

	// Config metrics
	ConfigReloads prometheus.Counter
}

// New creates a new metrics collector registered on its own registry.
// Using a private registry keeps tests free of duplicate-registration
// panics when multiple collectors are created in one process.
func New() (*Collector, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	c := &Collector{
		ChatRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chatgate",
				Name:      "chat_requests_total",
				Help:      "Total number of chat requests by plan and outcome",
			},
			[]string{"plan", "outcome"},
		),
		DenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chatgate",
				Name:      "denials_total",
				Help:      "Total number of denied chat requests by reason",
			},
			[]string{"reason"},
		),
		UsageIncrementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chatgate",
				Name:      "usage_increments_total",
				Help:      "Total recorded usage increments by plan",
			},
			[]string{"plan"},
		),
		UsageResetsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "chatgate",
				Name:      "usage_resets_total",
				Help:      "Total monthly usage record resets",
			},
		),
		CompletionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "chatgate",
				Name:      "completion_duration_seconds",
				Help:      "Upstream completion duration in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"model"},
		),
		CompletionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chatgate",
				Name:      "completion_errors_total",
				Help:      "Total upstream completion errors",
			},
			[]string{"model"},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chatgate",
				Name:      "webhook_events_total",
				Help:      "Total payment webhook events by provider and kind",
			},
			[]string{"provider", "kind"},
		),
		CheckoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chatgate",
				Name:      "checkouts_total",
				Help:      "Total checkout sessions created by plan",
			},
			[]string{"plan"},
		),
		ConfigReloads: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "chatgate",
				Name:      "config_reloads_total",
				Help:      "Total configuration reloads",
			},
		),
	}

	reg.MustRegister(
		c.ChatRequestsTotal,
		c.DenialsTotal,
		c.UsageIncrementsTotal,
		c.UsageResetsTotal,
		c.CompletionDuration,
		c.CompletionErrors,
		c.WebhookEventsTotal,
		c.CheckoutsTotal,
		c.ConfigReloads,
	)

	return c, reg
}
