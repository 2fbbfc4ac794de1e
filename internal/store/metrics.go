package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "d2r_save_guard"

// Metrics collects operation counters and durations for the store. All
// observer methods are nil-safe so the store can run without metrics wired.
type Metrics struct {
	registry *prometheus.Registry

	backupsTotal       *prometheus.CounterVec
	restoresTotal      *prometheus.CounterVec
	deletesTotal       prometheus.Counter
	retentionEvictions prometheus.Counter
	retryAttempts      *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
}

// NewMetrics creates a metrics collector backed by its own registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		backupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "backups_total",
			Help:      "Backup operations by trigger and result.",
		}, []string{"trigger", "result"}),
		restoresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "restores_total",
			Help:      "Restore operations by result.",
		}, []string{"result"}),
		deletesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "deletes_total",
			Help:      "Backups removed by explicit delete.",
		}),
		retentionEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "retention_evictions_total",
			Help:      "Backups evicted by the retention cap.",
		}),
		retryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "io_retries_total",
			Help:      "File operations retried after a sharing violation.",
		}, []string{"operation"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	m.registry.MustRegister(
		m.backupsTotal,
		m.restoresTotal,
		m.deletesTotal,
		m.retentionEvictions,
		m.retryAttempts,
		m.operationDuration,
	)

	return m
}

// Registry returns the prometheus registry for exposing via /metrics
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) observeBackup(trigger Trigger, success bool, d time.Duration) {
	if m == nil {
		return
	}
	m.backupsTotal.WithLabelValues(string(trigger), resultLabel(success)).Inc()
	m.operationDuration.WithLabelValues("backup").Observe(d.Seconds())
}

func (m *Metrics) observeRestore(success bool, d time.Duration) {
	if m == nil {
		return
	}
	m.restoresTotal.WithLabelValues(resultLabel(success)).Inc()
	m.operationDuration.WithLabelValues("restore").Observe(d.Seconds())
}

func (m *Metrics) observeDelete() {
	if m == nil {
		return
	}
	m.deletesTotal.Inc()
}

func (m *Metrics) observeRetentionEviction() {
	if m == nil {
		return
	}
	m.retentionEvictions.Inc()
}

func (m *Metrics) observeRetry(operation string) {
	if m == nil {
		return
	}
	m.retryAttempts.WithLabelValues(operation).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
