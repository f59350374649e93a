package buildio

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	transfersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "buildio",
		Name:      "transfers_active",
		Help:      "Number of transfers whose body is still being delivered.",
	})

	transferBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "buildio",
		Name:      "transfer_bytes_total",
		Help:      "Decoded body bytes delivered into transfer buffers.",
	})

	transferRedirects = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "buildio",
		Name:      "transfer_redirects_total",
		Help:      "Redirect hops followed.",
	})

	transferFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "buildio",
		Name:      "transfer_failures_total",
		Help:      "Failed transfers by failure kind.",
	}, []string{"kind"})

	processesStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "buildio",
		Name:      "processes_started_total",
		Help:      "Child processes started, by launch mode.",
	}, []string{"mode"})
)

func init() {
	registry.MustRegister(transfersActive, transferBytes, transferRedirects, transferFailures, processesStarted)
}

// MetricsRegistry returns the Prometheus registry containing all buildio metrics
func MetricsRegistry() *prometheus.Registry {
	return registry
}

func recordTransferFailure(err *TransferError) {
	transferFailures.WithLabelValues(err.Kind.String()).Inc()
}
