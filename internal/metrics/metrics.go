// Package metrics exposes drover's Prometheus collectors. The daemon
// serves them on /metrics; individual components update them directly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PromptsDelivered counts confirmed prompt deliveries.
	PromptsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "drover",
		Name:      "prompts_delivered_total",
		Help:      "Prompts confirmed delivered to a target.",
	})

	// PromptsFailed counts deliveries that stayed unconfirmed after the
	// forced resync retry.
	PromptsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "drover",
		Name:      "prompts_failed_total",
		Help:      "Prompt deliveries that failed after retry.",
	})

	// QueueRunning reports whether a queue run is active.
	QueueRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "drover",
		Name:      "queue_running",
		Help:      "1 while a queue run is active.",
	})

	// QueueLength reports the size of the current runtime queue.
	QueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "drover",
		Name:      "queue_length",
		Help:      "Items in the current runtime queue.",
	})

	// QuotaExhaustedState reports the quota gate state.
	QuotaExhaustedState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "drover",
		Name:      "quota_exhausted",
		Help:      "1 while the remote quota is exhausted.",
	})

	// LeaseActive reports whether this instance holds the lease.
	LeaseActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "drover",
		Name:      "lease_active",
		Help:      "1 while this instance holds the coordination lease.",
	})

	// TargetsConnected reports the number of pooled debugger links.
	TargetsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "drover",
		Name:      "targets_connected",
		Help:      "Live debugger connections in the pool.",
	})
)
