package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh outcomes used as the status label
const (
	StatusOK       = "ok"
	StatusFallback = "fallback"
	StatusStale    = "stale"
)

// Metrics holds the collectors of the dashboard. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	refreshTotal  *prometheus.CounterVec
	fetchDur      *prometheus.HistogramVec
	records       *prometheus.GaugeVec
	lastSuccessTS *prometheus.GaugeVec
	exportsTotal  *prometheus.CounterVec
	clients       *prometheus.GaugeVec
	ingested      *prometheus.CounterVec
}

// New creates the collectors on a private registry
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.refreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logdeck",
		Name:      "refresh_total",
		Help:      "Number of view refreshes by outcome",
	}, []string{"domain", "status"})
	m.fetchDur = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "logdeck",
		Name:      "fetch_duration_seconds",
		Help:      "Time spent fetching logs from the log service",
		Buckets:   prometheus.DefBuckets,
	}, []string{"domain"})
	m.records = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "logdeck",
		Name:      "records",
		Help:      "Records held by a view after the last applied refresh",
	}, []string{"domain"})
	m.lastSuccessTS = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "logdeck",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last refresh served by the log service",
	}, []string{"domain"})
	m.exportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logdeck",
		Name:      "exports_total",
		Help:      "Number of exports by outcome",
	}, []string{"domain", "status"})
	m.clients = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "logdeck",
		Name:      "websocket_clients",
		Help:      "Connected live-view clients",
	}, []string{"domain"})
	m.ingested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logdeck",
		Name:      "ingested_events_total",
		Help:      "Events stored by the log service",
	}, []string{"domain"})

	m.registry.MustRegister(
		m.refreshTotal, m.fetchDur, m.records,
		m.lastSuccessTS, m.exportsTotal, m.clients, m.ingested,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveFetch records how long a fetch took
func (m *Metrics) ObserveFetch(domain string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchDur.WithLabelValues(domain).Observe(d.Seconds())
}

// Refreshed counts a refresh outcome and, when it was applied, the record count
func (m *Metrics) Refreshed(domain, status string, records int) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(domain, status).Inc()
	if status == StatusStale {
		return
	}
	m.records.WithLabelValues(domain).Set(float64(records))
	if status == StatusOK {
		m.lastSuccessTS.WithLabelValues(domain).Set(float64(time.Now().Unix()))
	}
}

// Exported counts an export attempt
func (m *Metrics) Exported(domain string, err error) {
	if m == nil {
		return
	}
	status := StatusOK
	if err != nil {
		status = "error"
	}
	m.exportsTotal.WithLabelValues(domain, status).Inc()
}

// ClientConnected adjusts the live client gauge by delta
func (m *Metrics) ClientConnected(domain string, delta int) {
	if m == nil {
		return
	}
	m.clients.WithLabelValues(domain).Add(float64(delta))
}

// Ingested counts events stored by the log service
func (m *Metrics) Ingested(domain string, n int) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues(domain).Add(float64(n))
}
