// Package telemetry exposes Prometheus metrics for HTTP traffic and the
// booking engine, plus OpenTelemetry span middleware. Every Metrics method is
// safe on a nil receiver so services can run without instrumentation.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agenda"

type Metrics struct {
	httpDuration   *prometheus.HistogramVec
	activeRequests prometheus.Gauge
	bookings       *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	slotEdits      *prometheus.CounterVec
	gatherer       prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg uses a fresh registry so
// tests can build several instances.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "active_requests",
			Help:      "In-flight HTTP requests",
		}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking attempts by origin and outcome",
		}, []string{"origin", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointment",
			Name:      "transitions_total",
			Help:      "Status transition requests by target status and outcome",
		}, []string{"to", "outcome"}),
		slotEdits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "slot_edits_total",
			Help:      "Availability slot additions and removals by outcome",
		}, []string{"op", "outcome"}),
		gatherer: reg,
	}
	reg.MustRegister(m.httpDuration, m.activeRequests, m.bookings, m.transitions, m.slotEdits)
	return m
}

// ObserveBooking records a booking attempt. outcome is "created" or an error
// kind such as "QuotaExceededError".
func (m *Metrics) ObserveBooking(origin, outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(origin, outcome).Inc()
}

func (m *Metrics) ObserveTransition(to, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to, outcome).Inc()
}

func (m *Metrics) ObserveSlotEdit(op, outcome string) {
	if m == nil {
		return
	}
	m.slotEdits.WithLabelValues(op, outcome).Inc()
}

// Middleware records request latency by route pattern.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			m.activeRequests.Inc()
			defer m.activeRequests.Dec()

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.httpDuration.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	g := prometheus.Gatherer(prometheus.NewRegistry())
	if m != nil {
		g = m.gatherer
	}
	return echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}
