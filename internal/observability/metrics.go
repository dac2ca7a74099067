package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	movementsTotal      *prometheus.CounterVec
	ledgerConflicts     prometheus.Counter
	shortfallsTotal     prometheus.Counter
	adjustmentDecisions *prometheus.CounterVec
	discrepanciesTotal  prometheus.Counter
}

// NewMetrics initialises the registry and the base metric set.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pos_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_stock_movements_total",
		Help: "Stock movements recorded, by movement type.",
	}, []string{"movement_type"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pos_ledger_conflicts_total",
		Help: "Movements rejected because a position changed concurrently.",
	})
	shortfalls := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pos_availability_shortfalls_total",
		Help: "Requested lines that could not be covered by available stock.",
	})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_adjustment_decisions_total",
		Help: "Stock adjustment workflow decisions, by outcome.",
	}, []string{"decision"})
	discrepancies := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pos_position_discrepancies_total",
		Help: "Positions flagged by the discrepancy scan.",
	})
	registry.MustRegister(requests, duration, movements, conflicts, shortfalls, decisions, discrepancies)
	return &Metrics{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:       requests,
		requestDuration:     duration,
		movementsTotal:      movements,
		ledgerConflicts:     conflicts,
		shortfallsTotal:     shortfalls,
		adjustmentDecisions: decisions,
		discrepanciesTotal:  discrepancies,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// CountMovement tallies one recorded stock movement.
func (m *Metrics) CountMovement(kind string) {
	if m == nil {
		return
	}
	m.movementsTotal.WithLabelValues(kind).Inc()
}

// CountLedgerConflict tallies one optimistic-lock rejection.
func (m *Metrics) CountLedgerConflict() {
	if m == nil {
		return
	}
	m.ledgerConflicts.Inc()
}

// CountShortfalls tallies lines reported short by an availability check.
func (m *Metrics) CountShortfalls(n int) {
	if m == nil || n == 0 {
		return
	}
	m.shortfallsTotal.Add(float64(n))
}

// CountAdjustmentDecision tallies one workflow decision (submit, approve, reject).
func (m *Metrics) CountAdjustmentDecision(decision string) {
	if m == nil {
		return
	}
	m.adjustmentDecisions.WithLabelValues(decision).Inc()
}

// CountDiscrepancies tallies positions flagged by the background scan.
func (m *Metrics) CountDiscrepancies(n int) {
	if m == nil || n == 0 {
		return
	}
	m.discrepanciesTotal.Add(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
