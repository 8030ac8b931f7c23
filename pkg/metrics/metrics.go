// Package metrics holds the Prometheus collectors of the inventory. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const prefix = "numbervault_"

const (
	operationLabel = "operation"
	resultLabel    = "result"
	outcomeLabel   = "outcome"
	statusLabel    = "status"
)

// Row outcomes of an ingestion run.
const (
	OutcomeCreated   = "created"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid"
	OutcomeFailed    = "failed"
)

type Metrics struct {
	transitions          *prometheus.CounterVec
	projectionFailures   *prometheus.CounterVec
	ingestRows           *prometheus.CounterVec
	ingestJobs           *prometheus.CounterVec
	reservationsReleased prometheus.Counter
	allMetrics           []prometheus.Collector
}

func New() *Metrics {
	transitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "transitions_total",
			Help: "Lifecycle operations by result",
		},
		[]string{operationLabel, resultLabel},
	)
	projectionFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "projection_failures_total",
			Help: "Search projection writes that failed after the store committed",
		},
		[]string{operationLabel},
	)
	ingestRows := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "ingest_rows_total",
			Help: "Ingested rows by outcome",
		},
		[]string{outcomeLabel},
	)
	ingestJobs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "ingest_jobs_total",
			Help: "Ingestion jobs by terminal status",
		},
		[]string{statusLabel},
	)
	reservationsReleased := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "reservations_released_total",
			Help: "Expired reservations returned to AVAILABLE",
		},
	)
	return &Metrics{
		transitions:          transitions,
		projectionFailures:   projectionFailures,
		ingestRows:           ingestRows,
		ingestJobs:           ingestJobs,
		reservationsReleased: reservationsReleased,
		allMetrics: []prometheus.Collector{
			transitions,
			projectionFailures,
			ingestRows,
			ingestJobs,
			reservationsReleased,
		},
	}
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, metric := range m.allMetrics {
		metric.Describe(ch)
	}
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, metric := range m.allMetrics {
		metric.Collect(ch)
	}
}

func (m *Metrics) ReportTransition(operation, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) ReportProjectionFailure(operation string) {
	if m == nil {
		return
	}
	m.projectionFailures.WithLabelValues(operation).Inc()
}

func (m *Metrics) ReportRows(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ingestRows.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) ReportJob(status string) {
	if m == nil {
		return
	}
	m.ingestJobs.WithLabelValues(status).Inc()
}

func (m *Metrics) ReportReservationReleased() {
	if m == nil {
		return
	}
	m.reservationsReleased.Inc()
}
