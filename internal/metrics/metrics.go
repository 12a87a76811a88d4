// Package metrics exposes Prometheus collectors for HTTP traffic, imports,
// view synchronization and the drop folder.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/staffgrid/internal/importer"
)

const namespace = "staffgrid"

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	reg *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	imports        *prometheus.CounterVec
	importRows     *prometheus.CounterVec
	importDuration prometheus.Histogram

	activations        *prometheus.CounterVec
	activationAttempts prometheus.Histogram
	broadcasts         *prometheus.CounterVec
	broadcastDuration  prometheus.Histogram
	viewFailures       *prometheus.CounterVec
	liveViews          prometheus.Gauge

	dropFiles *prometheus.CounterVec
}

// New registers every collector, plus the Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),

		imports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "import", Name: "files_total",
			Help: "Finished imports by result: clean, partial or rejected.",
		}, []string{"result"}),
		importRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "import", Name: "rows_total",
			Help: "Imported rows by status.",
		}, []string{"status"}),
		importDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "import", Name: "duration_seconds",
			Help:    "Time spent reading and applying one import file.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),

		activations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "view", Name: "activations_total",
			Help: "View activations by view id and result.",
		}, []string{"view", "result"}),
		activationAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "view", Name: "activation_attempts",
			Help:    "Initialize attempts needed per activation.",
			Buckets: []float64{1, 2, 3, 5, 8},
		}),
		broadcasts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "view", Name: "broadcasts_total",
			Help: "Broadcasts by outcome: complete when every live view accepted the data.",
		}, []string{"outcome"}),
		broadcastDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "view", Name: "broadcast_duration_seconds",
			Help:    "Time to push the store to every live view.",
			Buckets: prometheus.DefBuckets,
		}),
		viewFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "view", Name: "failures_total",
			Help: "Failed view operations by view id and operation.",
		}, []string{"view", "op"}),
		liveViews: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "view", Name: "live",
			Help: "Views currently live.",
		}),

		dropFiles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dropfolder", Name: "files_total",
			Help: "Files picked up from the drop folder by result.",
		}, []string{"result"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// RegisterEmployeeCount exposes the store size, read on every scrape.
func (m *Metrics) RegisterEmployeeCount(count func() int) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Name: "employees",
		Help: "Employees currently in the store.",
	}, func() float64 { return float64(count()) }))
}

// Middleware records request counts and latency labelled by the chi route
// pattern, so /api/employees/7 and /api/employees/8 share a series.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// ObserveImport implements importer.Recorder.
func (m *Metrics) ObserveImport(r *importer.Report) {
	result := "clean"
	switch {
	case r.Fatal:
		result = "rejected"
	case r.FailureCount > 0:
		result = "partial"
	}
	m.imports.WithLabelValues(result).Inc()
	m.importRows.WithLabelValues(string(importer.StatusSuccess)).Add(float64(r.SuccessCount))
	m.importRows.WithLabelValues(string(importer.StatusFailure)).Add(float64(r.FailureCount))
	m.importDuration.Observe(r.Duration.Seconds())
}

// ObserveActivation implements view.Recorder.
func (m *Metrics) ObserveActivation(viewID string, attempts int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.activations.WithLabelValues(viewID, result).Inc()
	m.activationAttempts.Observe(float64(attempts))
}

// ObserveBroadcast implements view.Recorder.
func (m *Metrics) ObserveBroadcast(_, failed int, d time.Duration) {
	outcome := "complete"
	if failed > 0 {
		outcome = "partial"
	}
	m.broadcasts.WithLabelValues(outcome).Inc()
	m.broadcastDuration.Observe(d.Seconds())
}

// ObserveViewFailure implements view.Recorder.
func (m *Metrics) ObserveViewFailure(viewID, op string) {
	m.viewFailures.WithLabelValues(viewID, op).Inc()
}

// SetLiveViews implements view.Recorder.
func (m *Metrics) SetLiveViews(n int) {
	m.liveViews.Set(float64(n))
}

// ObserveDropFile counts a drop folder file by result (imported, partial,
// rejected, deferred, failed).
func (m *Metrics) ObserveDropFile(result string) {
	m.dropFiles.WithLabelValues(result).Inc()
}
