// Package metrics exports engine and HTTP activity to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/giselles-ai/giselle-sub007/internal/engine"
)

type Metrics struct {
	reg prometheus.Gatherer

	generationsTotal   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	actsTotal          *prometheus.CounterVec
	jobsFinished       prometheus.Counter

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New registers the collectors on reg. subscribers, when non-nil, backs the
// live subscriber gauge.
func New(reg *prometheus.Registry, subscribers func() int) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		reg: reg,
		generationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "giselle_generations_total",
				Help: "Generations that reached a terminal status",
			},
			[]string{"status"},
		),
		generationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "giselle_generation_duration_seconds",
				Help:    "Running time of generations",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"status"},
		),
		actsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "giselle_acts_total",
				Help: "Acts that reached a terminal status",
			},
			[]string{"status"},
		),
		jobsFinished: f.NewCounter(prometheus.CounterOpts{
			Name: "giselle_jobs_finished_total",
			Help: "Jobs whose steps all settled",
		}),
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "giselle_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "giselle_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
	if subscribers != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "giselle_live_subscribers",
			Help: "Open act status streams",
		}, func() float64 { return float64(subscribers()) })
	}
	return m
}

// Attach records bus events until the returned func is called.
func (m *Metrics) Attach(bus *engine.EventBus) (detach func()) {
	return bus.Subscribe(m.observe)
}

func (m *Metrics) observe(ev engine.Event) {
	switch ev.Type {
	case engine.EventGenerationStatus:
		if !ev.GenerationStatus.IsTerminal() {
			return
		}
		status := string(ev.GenerationStatus)
		m.generationsTotal.WithLabelValues(status).Inc()
		if ev.Duration > 0 {
			m.generationDuration.WithLabelValues(status).Observe(ev.Duration.Seconds())
		}
	case engine.EventActStatus:
		if ev.ActStatus.IsTerminal() {
			m.actsTotal.WithLabelValues(string(ev.ActStatus)).Inc()
		}
	case engine.EventJobFinished:
		m.jobsFinished.Inc()
	}
}

// RecordHTTPRequest counts one served request. route is the matched
// pattern, not the raw path.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
