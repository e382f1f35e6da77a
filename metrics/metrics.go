// Package metrics exposes Prometheus metrics of a server role on a separate
// listen address.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one server role. Metric names are
// prefixed with "<namespace>_<role>_".
type Metrics struct {
	Registry *prometheus.Registry

	KeyComponentDuration prometheus.Summary
	PagesStored          prometheus.Counter
	PagesRetrieved       prometheus.Counter
	TicketsIssued        prometheus.Counter
	TicketsDenied        prometheus.Counter
	EnrollmentsIssued    prometheus.Counter
}

// NewMetrics registers the role's collectors in a fresh registry.
func NewMetrics(namespace, role string) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		KeyComponentDuration: prometheus.NewSummary(prometheus.SummaryOpts{
			Namespace:  namespace,
			Subsystem:  role,
			Name:       "keyComponent_request_duration_seconds",
			Help:       "Duration of a successful keyComponent request",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			MaxAge:     5 * time.Minute,
		}),
		PagesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: role,
			Name:      "pages_stored_total",
			Help:      "Number of data pages stored",
		}),
		PagesRetrieved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: role,
			Name:      "pages_retrieved_total",
			Help:      "Number of data pages sent to clients",
		}),
		TicketsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: role,
			Name:      "tickets_issued_total",
			Help:      "Number of tickets issued or countersigned",
		}),
		TicketsDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: role,
			Name:      "tickets_denied_total",
			Help:      "Number of ticket requests denied",
		}),
		EnrollmentsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: role,
			Name:      "enrollments_issued_total",
			Help:      "Number of user signing certificates issued",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.KeyComponentDuration,
		m.PagesStored,
		m.PagesRetrieved,
		m.TicketsIssued,
		m.TicketsDenied,
		m.EnrollmentsIssued,
	)
	return m
}

// ObserveSince records the duration of a successful key component request.
func (m *Metrics) ObserveSince(start time.Time) {
	m.KeyComponentDuration.Observe(time.Since(start).Seconds())
}

// MetricsServer serves the registry on /metrics.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for m listening on listenAddr.
func New(m *Metrics, listenAddr string) (*MetricsServer, error) {
	if m == nil {
		return nil, fmt.Errorf("no metrics to serve")
	}

	mux := chi.NewRouter()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry}))

	return &MetricsServer{
		srv: &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler returns the metrics HTTP handler.
func (s *MetricsServer) Handler() http.Handler {
	return s.srv.Handler
}
