package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the machine-readable counters/gauges the orchestrator's health
// watchdog (spec §4.6 "dashboard field") and the model pool's token/latency
// tracking expose on /metrics. Introduced from the kadirpekel-hector sibling
// repo per DESIGN.md — the pack's only Prometheus-client usage.
var (
	ConsecFailures = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cogcore",
		Name:      "watchdog_consecutive_failures",
		Help:      "Consecutive health-check failures per watchdog target.",
	}, []string{"service"})

	HAState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cogcore",
		Name:      "ha_state",
		Help:      "HA state per service: 0=active 1=degraded 2=failover_active 3=failed.",
	}, []string{"service"})

	GPUOwnerState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cogcore",
		Name:      "gpu_owner_state",
		Help:      "Current GPU ownership state as an enumerated gauge (see GPUState ordering).",
	})

	ModelCompletionSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cogcore",
		Name:      "model_completion_seconds",
		Help:      "Chat completion latency per model.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"model", "role"})

	ModelTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cogcore",
		Name:      "model_tokens_total",
		Help:      "Prompt and completion tokens consumed per model.",
	}, []string{"model", "kind"})

	PipelineStepSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cogcore",
		Name:      "pipeline_step_seconds",
		Help:      "Per-step duration within the per-turn pipeline.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"step"})
)

// HAStateValue maps an HA classification string to the gauge's numeric
// encoding, matching the ordering documented on the HAState metric.
func HAStateValue(state string) float64 {
	switch state {
	case "active":
		return 0
	case "degraded":
		return 1
	case "failover_active":
		return 2
	case "failed":
		return 3
	default:
		return -1
	}
}

// Handler returns the /metrics HTTP handler for a service to mount.
func Handler() http.Handler {
	return promhttp.Handler()
}
