// Package metrics exposes Prometheus instrumentation for report extraction.
//
// All recording methods are safe on a nil *Metrics, so callers that do not
// care about instrumentation can pass nil.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors used by the report engine and API client.
type Metrics struct {
	registry *prometheus.Registry

	jobsCreated    prometheus.Counter
	jobsFinished   *prometheus.CounterVec
	rowsParsed     prometheus.Counter
	quotaCutoffs   prometheus.Counter
	apiRequests    *prometheus.CounterVec
	chunkDuration  prometheus.Histogram
	waitDuration   prometheus.Histogram
	lastRunRows    prometheus.Gauge
	lastRunSuccess prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		jobsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "searchads_report_jobs_created_total",
			Help: "Report jobs created on the backend",
		}),
		jobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "searchads_report_jobs_finished_total",
			Help: "Report jobs by final state",
		}, []string{"state"}),
		rowsParsed: f.NewCounter(prometheus.CounterOpts{
			Name: "searchads_report_rows_parsed_total",
			Help: "Rows parsed from downloaded reports",
		}),
		quotaCutoffs: f.NewCounter(prometheus.CounterOpts{
			Name: "searchads_report_quota_cutoffs_total",
			Help: "Runs truncated by the daily job limit",
		}),
		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "searchads_api_requests_total",
			Help: "Outbound API requests by operation and outcome",
		}, []string{"op", "status"}),
		chunkDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "searchads_report_chunk_duration_seconds",
			Help:    "Time to create, await, download and parse one chunk",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		waitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "searchads_report_wait_duration_seconds",
			Help:    "Time spent waiting on queued jobs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		lastRunRows: f.NewGauge(prometheus.GaugeOpts{
			Name: "searchads_last_run_rows",
			Help: "Rows returned by the most recent run",
		}),
		lastRunSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "searchads_last_run_success_timestamp_seconds",
			Help: "Unix time of the most recent successful run",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry (nil for a nil receiver).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// JobCreated counts one backend job creation.
func (m *Metrics) JobCreated() {
	if m == nil {
		return
	}
	m.jobsCreated.Inc()
}

// JobFinished counts a job reaching a final state.
func (m *Metrics) JobFinished(state string) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(state).Inc()
}

// RowsParsed adds n parsed rows.
func (m *Metrics) RowsParsed(n int) {
	if m == nil {
		return
	}
	m.rowsParsed.Add(float64(n))
}

// QuotaCutoff counts one quota-truncated run.
func (m *Metrics) QuotaCutoff() {
	if m == nil {
		return
	}
	m.quotaCutoffs.Inc()
}

// APIRequest counts one outbound request for op with a status label
// ("2xx", "4xx", "5xx", "error").
func (m *Metrics) APIRequest(op, status string) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(op, status).Inc()
}

// ObserveChunk records the duration of one chunk.
func (m *Metrics) ObserveChunk(d time.Duration) {
	if m == nil {
		return
	}
	m.chunkDuration.Observe(d.Seconds())
}

// ObserveWait records time spent waiting on a queued job.
func (m *Metrics) ObserveWait(d time.Duration) {
	if m == nil {
		return
	}
	m.waitDuration.Observe(d.Seconds())
}

// RunCompleted records the outcome of a finished run.
func (m *Metrics) RunCompleted(rows int, at time.Time) {
	if m == nil {
		return
	}
	m.lastRunRows.Set(float64(rows))
	m.lastRunSuccess.Set(float64(at.Unix()))
}

// StatusClass maps an HTTP status code to the label used by APIRequest.
func StatusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "error"
	}
}
