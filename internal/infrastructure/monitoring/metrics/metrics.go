package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/monitoring/logging"
)

const namespace = "mskb"

// PipelineMetrics holds the curation pipeline instrumentation.  All metrics
// live in a private registry so tests never collide on the global one.
type PipelineMetrics struct {
	registry *prometheus.Registry

	PhaseRunsTotal   *prometheus.CounterVec
	PhaseDuration    *prometheus.HistogramVec
	RecordsProcessed *prometheus.CounterVec

	CatalogEntries *prometheus.GaugeVec
	ConflictsOpen  prometheus.Gauge

	LookupsTotal   *prometheus.CounterVec
	LookupDuration prometheus.Histogram

	EventsPublished *prometheus.CounterVec
}

// NewPipelineMetrics builds and registers the pipeline metric set.
func NewPipelineMetrics() *PipelineMetrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())

	m := &PipelineMetrics{
		registry: registry,
		PhaseRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_runs_total",
			Help:      "Pipeline phase runs by outcome",
		}, []string{"phase", "status"}),
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Pipeline phase wall time",
			Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 300, 900},
		}, []string{"phase"}),
		RecordsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_processed_total",
			Help:      "Records handled per phase by outcome",
		}, []string{"phase", "outcome"}),
		CatalogEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_entries",
			Help:      "Catalog entries in the latest built version by status",
		}, []string{"status"}),
		ConflictsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conflicts_open",
			Help:      "Unresolved identity conflicts awaiting review",
		}),
		LookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Enrichment lookups by result",
		}, []string{"result"}),
		LookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lookup_duration_seconds",
			Help:      "Enrichment lookup latency",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Curation events published by topic and outcome",
		}, []string{"topic", "status"}),
	}

	registry.MustRegister(
		m.PhaseRunsTotal,
		m.PhaseDuration,
		m.RecordsProcessed,
		m.CatalogEntries,
		m.ConflictsOpen,
		m.LookupsTotal,
		m.LookupDuration,
		m.EventsPublished,
	)
	return m
}

// ObservePhase records one finished phase run.
func (m *PipelineMetrics) ObservePhase(phase string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.PhaseRunsTotal.WithLabelValues(phase, status).Inc()
	m.PhaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// SetCatalogCounts publishes the size of the latest built catalog.
func (m *PipelineMetrics) SetCatalogCounts(verified, orphans int) {
	m.CatalogEntries.WithLabelValues("verified").Set(float64(verified))
	m.CatalogEntries.WithLabelValues("orphan").Set(float64(orphans))
}

// Handler exposes the registry for scraping.
func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry exposes the underlying registry for test assertions.
func (m *PipelineMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Server exposes the metrics endpoint over HTTP.
type Server struct {
	srv    *http.Server
	logger logging.Logger
}

// NewServer builds the scrape endpoint listening on addr.
func NewServer(addr string, m *PipelineMetrics, logger logging.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &Server{
		srv:    &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		logger: logger,
	}
}

// Start serves until Shutdown.  Run it in its own goroutine.
func (s *Server) Start() error {
	s.logger.Info("metrics endpoint listening", logging.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains and stops the endpoint.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
