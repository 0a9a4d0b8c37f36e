// Package metrics exposes sampler and HTTP metrics to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ironsheep/thermo-ocr/internal/sampler"
)

const namespace = "thermo_ocr"

// Metrics implements sampler.Observer. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	outcomes        *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	lastTemperature prometheus.Gauge
	lastDispatch    prometheus.Gauge

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New creates metrics on a private registry. running reports whether the
// sampling timer is armed; it may be nil.
func New(running func() bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sampler_outcomes_total",
			Help:      "Sampling cycle outcomes by kind and trigger.",
		}, []string{"kind", "trigger"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sampler_cycle_duration_seconds",
			Help:      "Duration of completed sampling cycles.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		lastTemperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_temperature_celsius",
			Help:      "Temperature of the most recently dispatched reading.",
		}),
		lastDispatch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_dispatch_timestamp_seconds",
			Help:      "Unix time of the most recently dispatched reading.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.outcomes,
		m.cycleDuration,
		m.lastTemperature,
		m.lastDispatch,
		m.httpRequestsTotal,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if running != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sampler_running",
			Help:      "1 while the sampling timer is armed.",
		}, func() float64 {
			if running() {
				return 1
			}
			return 0
		}))
	}

	// Expose every kind from the start so rates work before the first cycle.
	for _, k := range sampler.Kinds() {
		for _, trig := range []sampler.Trigger{sampler.TriggerTimer, sampler.TriggerManual} {
			m.outcomes.WithLabelValues(k.String(), string(trig))
		}
	}
	return m
}

// ObserveOutcome implements sampler.Observer.
func (m *Metrics) ObserveOutcome(o sampler.Outcome) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(o.Kind.String(), string(o.Trigger)).Inc()
	if o.Kind == sampler.Skipped {
		return
	}
	m.cycleDuration.Observe(o.Duration.Seconds())
	if o.Kind == sampler.Dispatched && o.Reading != nil {
		m.lastTemperature.Set(o.Reading.Temperature)
		m.lastDispatch.Set(float64(o.Reading.Timestamp.Unix()))
	}
}

// Registry returns the registry holding every metric.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts and times requests to next under route. It must not
// wrap handlers that hijack the connection.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}
