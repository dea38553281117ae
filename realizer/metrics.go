package realizer

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "osdplacement_realizer"

// Metrics is a prometheus.Collector that collects metrics
// about realize runs
type Metrics struct {
	commands       *prometheus.CounterVec
	commandsFailed *prometheus.CounterVec
	deleteRetries  prometheus.Counter
	batches        prometheus.Counter
	pendingFiles   prometheus.Gauge
}

// NewMetrics returns a new Metrics
func NewMetrics() *Metrics {
	return &Metrics{
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "commands_total",
				Help:      "The number of commands issued.",
			}, []string{"phase"},
		),
		commandsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "commands_failed_total",
				Help:      "The number of commands that exited with an error.",
			}, []string{"phase"},
		),
		deleteRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "delete_retries_total",
				Help:      "The number of times failed delete commands were run again.",
			},
		),
		batches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "batches_total",
				Help:      "The number of batches executed.",
			},
		),
		pendingFiles: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "pending_files",
				Help:      "The number of files found out of place by the last discovery.",
			},
		),
	}
}

// Commands returns the counter of commands issued in a phase
func (metrics *Metrics) Commands(phase Kind) prometheus.Counter {
	return metrics.commands.WithLabelValues(phase.String())
}

// CommandsFailed returns the counter of failed commands in a phase
func (metrics *Metrics) CommandsFailed(phase Kind) prometheus.Counter {
	return metrics.commandsFailed.WithLabelValues(phase.String())
}

// DeleteRetries returns the counter of delete retries
func (metrics *Metrics) DeleteRetries() prometheus.Counter {
	return metrics.deleteRetries
}

// Batches returns the counter of executed batches
func (metrics *Metrics) Batches() prometheus.Counter {
	return metrics.batches
}

// PendingFiles returns the gauge of files out of place
func (metrics *Metrics) PendingFiles() prometheus.Gauge {
	return metrics.pendingFiles
}

// Describe is part of the prometheus.Collector interface.
func (metrics *Metrics) Describe(ch chan<- *prometheus.Desc) {
	metrics.commands.Describe(ch)
	metrics.commandsFailed.Describe(ch)
	metrics.deleteRetries.Describe(ch)
	metrics.batches.Describe(ch)
	metrics.pendingFiles.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (metrics *Metrics) Collect(ch chan<- prometheus.Metric) {
	metrics.commands.Collect(ch)
	metrics.commandsFailed.Collect(ch)
	metrics.deleteRetries.Collect(ch)
	metrics.batches.Collect(ch)
	metrics.pendingFiles.Collect(ch)
}
