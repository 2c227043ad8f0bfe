// Package metrics exposes Prometheus instruments for the HTTP surface and
// the order engine's contended paths.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	ordersCreated     *prometheus.CounterVec
	stockConflicts    *prometheus.CounterVec
	invoicesAllocated *prometheus.CounterVec
	tableTransitions  *prometheus.CounterVec
	lowStockAlerts    prometheus.Counter
}

// HTTPMetrics instruments inbound requests.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New registers the domain instruments on the given registerer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opencounter_orders_created_total",
			Help: "Orders created, by payment type.",
		}, []string{"payment_type"}),
		stockConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opencounter_stock_conflicts_total",
			Help: "Order attempts rejected for insufficient stock.",
		}, []string{"reason"}),
		invoicesAllocated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opencounter_invoices_allocated_total",
			Help: "Invoice serials allocated, by reset period kind.",
		}, []string{"cycle"}),
		tableTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opencounter_table_transitions_total",
			Help: "Table state machine transitions.",
		}, []string{"transition"}),
		lowStockAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opencounter_low_stock_alerts_total",
			Help: "Low stock alerts emitted by the sweeper.",
		}),
	}

	collectors := []prometheus.Collector{
		m.ordersCreated,
		m.stockConflicts,
		m.invoicesAllocated,
		m.tableTransitions,
		m.lowStockAlerts,
	}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}
	return m, nil
}

// NewHTTPMetrics registers the request instruments on the given registerer.
func NewHTTPMetrics(reg prometheus.Registerer) (*HTTPMetrics, error) {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opencounter_http_requests_total",
			Help: "HTTP requests by route, method, and status.",
		}, []string{"route", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opencounter_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	for _, collector := range []prometheus.Collector{m.requests, m.duration} {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}
	return m, nil
}

// DefaultRegisterer adapts the package-global registry for fx.
func DefaultRegisterer() prometheus.Registerer {
	return prometheus.DefaultRegisterer
}

func (m *Metrics) RecordOrderCreated(paymentType string) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(strings.TrimSpace(paymentType)).Inc()
}

func (m *Metrics) RecordStockConflict(reason string) {
	if m == nil {
		return
	}
	m.stockConflicts.WithLabelValues(strings.TrimSpace(reason)).Inc()
}

func (m *Metrics) RecordInvoiceAllocated(cycle string) {
	if m == nil {
		return
	}
	m.invoicesAllocated.WithLabelValues(strings.TrimSpace(cycle)).Inc()
}

func (m *Metrics) RecordTableTransition(transition string) {
	if m == nil {
		return
	}
	m.tableTransitions.WithLabelValues(strings.TrimSpace(transition)).Inc()
}

func (m *Metrics) RecordLowStockAlert() {
	if m == nil {
		return
	}
	m.lowStockAlerts.Inc()
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		method := c.Request.Method
		m.requests.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}
