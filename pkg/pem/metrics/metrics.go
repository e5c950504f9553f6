// Package metrics provides prometheus collectors for prior builds.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Histogram bucket layout for flush durations: 1ms to ~32s.
const (
	bucketStart  = 0.001
	bucketFactor = 2
	bucketCount  = 16
)

// BuildMetrics tracks corpus parsing, accumulation and export progress.
// A nil *BuildMetrics is valid and records nothing.
type BuildMetrics struct {
	linesTotal     *prometheus.CounterVec
	triplesTotal   *prometheus.CounterVec
	droppedTotal   *prometheus.CounterVec
	flushDuration  prometheus.Histogram
	flushRowsTotal prometheus.Counter
	priorMentions  prometheus.Gauge
	exportRows     prometheus.Counter
	exportSkipped  prometheus.Counter

	collectors []prometheus.Collector
}

// NewBuildMetrics creates the build collectors and registers them.
func NewBuildMetrics(registry prometheus.Registerer) (*BuildMetrics, error) {
	m := &BuildMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *BuildMetrics) initMetrics() {
	m.linesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pem_lines_total",
			Help: "Total number of corpus lines read",
		},
		[]string{"corpus"},
	)
	m.triplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pem_triples_total",
			Help: "Total number of accepted mention/entity observations",
		},
		[]string{"corpus"},
	)
	m.droppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pem_dropped_total",
			Help: "Total number of dropped observations",
		},
		[]string{"corpus", "reason"}, // reason: filtered, disambiguation, unresolved, malformed
	)
	m.flushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pem_store_flush_seconds",
			Help:    "Time taken to write one accumulation batch",
			Buckets: prometheus.ExponentialBuckets(bucketStart, bucketFactor, bucketCount),
		},
	)
	m.flushRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pem_store_flush_rows_total",
			Help: "Total number of mention/entity rows written by batch flushes",
		},
	)
	m.priorMentions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pem_prior_mentions",
			Help: "Number of mentions in the current prior table",
		},
	)
	m.exportRows = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pem_export_rows_total",
			Help: "Total number of rows loaded into the lookup store",
		},
	)
	m.exportSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pem_export_skipped_total",
			Help: "Total number of mentions too long for the lookup store",
		},
	)

	m.collectors = []prometheus.Collector{
		m.linesTotal,
		m.triplesTotal,
		m.droppedTotal,
		m.flushDuration,
		m.flushRowsTotal,
		m.priorMentions,
		m.exportRows,
		m.exportSkipped,
	}
}

// Describe implements the Collector interface
func (m *BuildMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *BuildMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// RecordParse adds one parser run's counters.
func (m *BuildMetrics) RecordParse(corpus string, lines, triples int64, dropped map[string]int64) {
	if m == nil {
		return
	}
	m.linesTotal.WithLabelValues(corpus).Add(float64(lines))
	m.triplesTotal.WithLabelValues(corpus).Add(float64(triples))
	for reason, n := range dropped {
		if n > 0 {
			m.droppedTotal.WithLabelValues(corpus, reason).Add(float64(n))
		}
	}
}

// ObserveFlush records one accumulation batch.
func (m *BuildMetrics) ObserveFlush(rows int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.flushDuration.Observe(elapsed.Seconds())
	m.flushRowsTotal.Add(float64(rows))
}

// SetPriorMentions sets the size of the prior table.
func (m *BuildMetrics) SetPriorMentions(n int) {
	if m == nil {
		return
	}
	m.priorMentions.Set(float64(n))
}

// AddExportRows counts rows written to the lookup store.
func (m *BuildMetrics) AddExportRows(n int) {
	if m == nil {
		return
	}
	m.exportRows.Add(float64(n))
}

// AddExportSkipped counts mentions left out of the lookup store.
func (m *BuildMetrics) AddExportSkipped(n int) {
	if m == nil {
		return
	}
	m.exportSkipped.Add(float64(n))
}

// Metrics holds the registry and every collector of the process.
type Metrics struct {
	registry *prometheus.Registry
	Build    *BuildMetrics
}

// New creates a private registry with the build collectors.
func New() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	build, err := NewBuildMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create build metrics: %w", err)
	}
	return &Metrics{registry: registry, Build: build}, nil
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving metrics", zap.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
