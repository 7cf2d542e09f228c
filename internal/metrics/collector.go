// Package metrics provides prometheus instrumentation for the write
// pipeline: writes by outcome, retry and attempt counts, rate-limiter delay,
// definition-cache effectiveness and batch sizes.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Port      int               `yaml:"port"`
	Path      string            `yaml:"path"`
	Namespace string            `yaml:"namespace"`
	Labels    map[string]string `yaml:"labels"`
}

// DefaultConfig returns the default metrics configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Port:      9109,
		Path:      "/metrics",
		Namespace: "metawrite",
		Labels:    make(map[string]string),
	}
}

// Collector collects pipeline metrics and optionally serves them over HTTP.
// A nil Collector is a valid no-op receiver so instrumentation call sites
// never need guarding.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	writeCounter     *prometheus.CounterVec
	attemptCounter   prometheus.Counter
	retryCounter     prometheus.Counter
	mutationDuration *prometheus.HistogramVec
	rateLimitWait    prometheus.Histogram
	cacheLookups     *prometheus.CounterVec
	batchSize        prometheus.Histogram

	server *http.Server
}

// NewCollector creates a metrics collector. When the config disables
// metrics, the returned collector records nothing.
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	registry := prometheus.NewRegistry()
	c := &Collector{config: config, registry: registry}

	constLabels := prometheus.Labels(config.Labels)
	ns := config.Namespace

	c.writeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   ns,
		Name:        "writes_total",
		Help:        "Metafield writes by mode and terminal outcome",
		ConstLabels: constLabels,
	}, []string{"mode", "outcome"})

	c.attemptCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   ns,
		Name:        "mutation_attempts_total",
		Help:        "Mutation requests submitted, including retries",
		ConstLabels: constLabels,
	})

	c.retryCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   ns,
		Name:        "retries_total",
		Help:        "Retries scheduled after transient failures",
		ConstLabels: constLabels,
	})

	c.mutationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   ns,
		Name:        "mutation_duration_seconds",
		Help:        "End-to-end duration of write operations",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: constLabels,
	}, []string{"mode"})

	c.rateLimitWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   ns,
		Name:        "rate_limit_wait_seconds",
		Help:        "Time spent parked at the rate limiter per request",
		Buckets:     []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	})

	c.cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   ns,
		Name:        "definition_cache_lookups_total",
		Help:        "Definition cache lookups by result",
		ConstLabels: constLabels,
	}, []string{"result"})

	c.batchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   ns,
		Name:        "batch_size",
		Help:        "Items per batched mutation",
		Buckets:     []float64{1, 2, 5, 10, 25, 50, 100},
		ConstLabels: constLabels,
	})

	collectors := []prometheus.Collector{
		c.writeCounter, c.attemptCounter, c.retryCounter,
		c.mutationDuration, c.rateLimitWait, c.cacheLookups, c.batchSize,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return c, nil
}

// enabled reports whether this collector records anything.
func (c *Collector) enabled() bool {
	return c != nil && c.registry != nil
}

// RecordWrite records a terminal write outcome. Mode is "single" or
// "batch"; outcome is "success" or "failure".
func (c *Collector) RecordWrite(mode, outcome string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.writeCounter.WithLabelValues(mode, outcome).Inc()
	c.mutationDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordAttempt counts one submitted mutation request.
func (c *Collector) RecordAttempt() {
	if !c.enabled() {
		return
	}
	c.attemptCounter.Inc()
}

// RecordRetry counts one scheduled retry.
func (c *Collector) RecordRetry() {
	if !c.enabled() {
		return
	}
	c.retryCounter.Inc()
}

// RecordRateLimitWait records the delay imposed by the limiter.
func (c *Collector) RecordRateLimitWait(d time.Duration) {
	if !c.enabled() {
		return
	}
	c.rateLimitWait.Observe(d.Seconds())
}

// RecordCacheLookup records a definition cache hit or miss.
func (c *Collector) RecordCacheLookup(hit bool) {
	if !c.enabled() {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// RecordBatchSize records the item count of a submitted batch.
func (c *Collector) RecordBatchSize(n int) {
	if !c.enabled() {
		return
	}
	c.batchSize.Observe(float64(n))
}

// Registry exposes the underlying registry for embedding into an existing
// metrics endpoint. Nil when metrics are disabled.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Start serves the metrics endpoint in the background.
func (c *Collector) Start() error {
	if !c.enabled() {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}

// Stop shuts the metrics endpoint down.
func (c *Collector) Stop(ctx context.Context) error {
	if c == nil || c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}
