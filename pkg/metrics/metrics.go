package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thrive-mt/imageapi/pkg/image"
)

// Collector holds all Prometheus metrics for the service
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Resolver metrics
	Resolutions   *prometheus.CounterVec
	ErrorOutcomes *prometheus.CounterVec
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	CacheClears   prometheus.Counter

	// Probe metrics
	Probes *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry under namespace.
// Each call returns an independent collector, so tests do not collide.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "image_resolutions_total",
				Help:      "Image resolutions by kind, strategy and whether a fallback was served",
			},
			[]string{"kind", "strategy", "fallback"},
		),
		ErrorOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "image_load_errors_total",
				Help:      "Image load failures by kind and handler outcome",
			},
			[]string{"kind", "outcome"},
		),
		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of resolution cache hits",
			},
		),
		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of resolution cache misses",
			},
		),
		CacheClears: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_clears_total",
				Help:      "Total number of full cache clears",
			},
		),
		Probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "image_probes_total",
				Help:      "Image existence probes by result",
			},
			[]string{"result"},
		),
	}

	c.registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.Resolutions,
		c.ErrorOutcomes,
		c.CacheHits,
		c.CacheMisses,
		c.CacheClears,
		c.Probes,
	)

	return c
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served request
func (c *Collector) RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordResolution implements image.Recorder
func (c *Collector) RecordResolution(kind image.Kind, strategy image.Strategy, cacheHit, fallback bool) {
	c.Resolutions.WithLabelValues(kind.String(), strategy.String(), strconv.FormatBool(fallback)).Inc()
	if fallback {
		return
	}
	if cacheHit {
		c.CacheHits.Inc()
	} else {
		c.CacheMisses.Inc()
	}
}

// RecordErrorOutcome implements image.Recorder
func (c *Collector) RecordErrorOutcome(kind image.Kind, outcome image.Outcome) {
	c.ErrorOutcomes.WithLabelValues(kind.String(), string(outcome)).Inc()
}

// RecordCacheClear implements image.Recorder
func (c *Collector) RecordCacheClear() {
	c.CacheClears.Inc()
}

// RecordProbe counts one probe as exists, missing or error
func (c *Collector) RecordProbe(result string) {
	c.Probes.WithLabelValues(result).Inc()
}

var _ image.Recorder = (*Collector)(nil)
