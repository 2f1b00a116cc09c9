package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RemoteCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rizz_remote_calls_total",
			Help: "Total remote calls by operation and outcome",
		},
		[]string{"operation", "status"},
	)

	RemoteLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rizz_remote_latency_seconds",
			Help:    "Remote call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	ComponentState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rizz_component_state",
			Help: "Current state of a settings or forecast component (1 for the active state)",
		},
		[]string{"component", "state"},
	)

	ForecastDaysBuilt = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rizz_forecast_days_built_total",
			Help: "Total day buckets built from forecast responses",
		},
		[]string{"location"},
	)

	SamplesFlagged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rizz_forecast_samples_flagged_total",
			Help: "Forecast samples with implausible values",
		},
		[]string{"flag"},
	)
)

// SetState marks state as the active one for component among states.
func SetState(component, state string, states []string) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		ComponentState.WithLabelValues(component, s).Set(v)
	}
}
