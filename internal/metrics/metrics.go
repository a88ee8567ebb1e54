// Package metrics counts what an update session did: downloads and their
// retries, operation phase outcomes, and release outcomes. Counters live on a
// private registry so a session can dump them to a node_exporter textfile.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "karazeh"

// Download results.
const (
	ResultOK       = "ok"
	ResultMismatch = "mismatch"
	ResultError    = "error"
)

// Release results.
const (
	ReleaseApplied    = "applied"
	ReleaseRolledBack = "rolled_back"
)

// Metrics holds the session counters.
type Metrics struct {
	registry *prometheus.Registry

	downloads       *prometheus.CounterVec
	downloadBytes   prometheus.Counter
	downloadRetries prometheus.Counter
	operations      *prometheus.CounterVec
	releases        *prometheus.CounterVec
}

// New registers the counters on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// downloads counts download attempts by result
		downloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_attempts_total",
			Help:      "Download attempts by result",
		}, []string{"result"}),

		downloadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Bytes written by downloads",
		}),

		downloadRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_retries_total",
			Help:      "Download attempts beyond the first",
		}),

		// operations counts phase outcomes by operation type, phase and result code
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_phases_total",
			Help:      "Operation phase outcomes by type, phase and code",
		}, []string{"type", "phase", "code"}),

		releases: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "releases_total",
			Help:      "Release application outcomes",
		}, []string{"result"}),
	}
}

// Registry exposes the registry the counters live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// DownloadAttempt records one download attempt and the bytes it wrote.
func (m *Metrics) DownloadAttempt(result string, bytes int64) {
	if m == nil {
		return
	}
	m.downloads.WithLabelValues(result).Inc()
	if bytes > 0 {
		m.downloadBytes.Add(float64(bytes))
	}
}

// DownloadRetry records an attempt beyond the first.
func (m *Metrics) DownloadRetry() {
	if m == nil {
		return
	}
	m.downloadRetries.Inc()
}

// OperationPhase records the outcome of one operation phase.
func (m *Metrics) OperationPhase(opType, phase, code string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(opType, phase, code).Inc()
}

// Release records the outcome of applying a release.
func (m *Metrics) Release(result string) {
	if m == nil {
		return
	}
	m.releases.WithLabelValues(result).Inc()
}

// WriteTextfile dumps the registry in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
