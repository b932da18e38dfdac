// Package metrics exposes scan progress as Prometheus metrics on a private
// registry. A nil *Collector is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Collector holds the scan metrics.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	findingsTotal   *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	discoveredItems *prometheus.GaugeVec
}

// New creates a Collector with its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wavs_requests_total",
				Help: "HTTP requests sent to the target, by stage",
			},
			[]string{"stage"},
		),
		findingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wavs_findings_total",
				Help: "New findings recorded, by category",
			},
			[]string{"category"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wavs_stage_duration_seconds",
				Help:    "Wall time spent in each stage",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
			},
			[]string{"stage"},
		),
		discoveredItems: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wavs_discovered_items",
				Help: "Items discovered in the current scan, by kind",
			},
			[]string{"kind"},
		),
	}
	c.registry.MustRegister(c.requestsTotal, c.findingsTotal, c.stageDuration, c.discoveredItems)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// AddRequests counts n requests against stage.
func (c *Collector) AddRequests(stage string, n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.requestsTotal.WithLabelValues(stage).Add(float64(n))
}

// AddFindings counts n new findings in category.
func (c *Collector) AddFindings(category string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.findingsTotal.WithLabelValues(category).Add(float64(n))
}

// ObserveStage records how long stage ran.
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// AddDiscovered raises the discovered count for kind by n.
func (c *Collector) AddDiscovered(kind string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.discoveredItems.WithLabelValues(kind).Add(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics: listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()

	log.Info().Str("addr", ln.Addr().String()).Msg("metrics endpoint listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: serve: %w", err)
	}
	return nil
}
