package middleware

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/waypoint/pkg/matchcache"
	"github.com/vango-dev/waypoint/pkg/navigation"
	"github.com/vango-dev/waypoint/pkg/router"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "waypoint").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for step duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "waypoint",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// metrics holds the Prometheus metrics of the navigation lifecycle.
type metrics struct {
	stepsTotal    *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	stepErrors    *prometheus.CounterVec
	navigations   *prometheus.CounterVec
	pendingIntent prometheus.Gauge
}

// globalMetrics is created on the first call to Prometheus.
var (
	globalMetrics   *metrics
	globalMetricsMu sync.Mutex
)

func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	return &metrics{
		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "steps_total",
			Help:        "Total number of lifecycle steps run",
			ConstLabels: config.ConstLabels,
		}, []string{"step", "route", "mode", "status"}),

		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "step_duration_seconds",
			Help:        "Lifecycle step duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"step", "route"}),

		stepErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "step_errors_total",
			Help:        "Total number of failed lifecycle steps by error type",
			ConstLabels: config.ConstLabels,
		}, []string{"step", "error_type"}),

		navigations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "navigations_total",
			Help:        "Total number of navigation intents by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"outcome"}),

		pendingIntent: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "pending_navigations",
			Help:        "Number of routers with a navigation in flight",
			ConstLabels: config.ConstLabels,
		}),
	}
}

func sharedMetrics(opts []MetricsOption) *metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = initMetrics(config)
	}
	return globalMetrics
}

// Prometheus creates middleware that collects Prometheus metrics for
// lifecycle steps.
//
// Metrics collected:
//   - waypoint_steps_total: Counter of steps by kind, route, mode and status
//   - waypoint_step_duration_seconds: Histogram of step duration
//   - waypoint_step_errors_total: Counter of failed steps by error type
//
// Redirect and not-found signals count with their own status rather than
// as errors.
//
// Example:
//
//	r := navigation.New(tree,
//	    navigation.WithMiddleware(middleware.Prometheus(
//	        middleware.WithNamespace("myapp"),
//	    )),
//	)
//
//	// Expose metrics endpoint
//	http.Handle("/metrics", promhttp.Handler())
func Prometheus(opts ...MetricsOption) navigation.Middleware {
	m := sharedMetrics(opts)

	return navigation.MiddlewareFunc(func(ctx context.Context, step *navigation.Step, next func(ctx context.Context) error) error {
		kind := string(step.Kind)

		start := time.Now()
		err := next(ctx)
		m.stepDuration.WithLabelValues(kind, step.RouteID).Observe(time.Since(start).Seconds())

		status := "success"
		switch {
		case err == nil:
		case errors.Is(err, router.ErrRedirect):
			status = "redirect"
		case errors.Is(err, router.ErrNotFound):
			status = "not_found"
		default:
			status = "error"
			m.stepErrors.WithLabelValues(kind, categorizeError(err)).Inc()
		}
		m.stepsTotal.WithLabelValues(kind, step.RouteID, stepMode(step), status).Inc()

		return err
	})
}

func stepMode(step *navigation.Step) string {
	switch {
	case step.Background:
		return "background"
	case step.Preload:
		return "preload"
	}
	return "navigate"
}

// categorizeError returns a category for the error type.
// This prevents high-cardinality labels from error messages.
func categorizeError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled), navigation.IsCancelled(err), errors.Is(err, navigation.ErrSuperseded):
		return "cancelled"
	case errors.Is(err, navigation.ErrHookPanic):
		return "panic"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "unauthorized"):
		return "unauthorized"
	case strings.Contains(msg, "forbidden"):
		return "forbidden"
	case strings.Contains(msg, "validation"), strings.Contains(msg, "invalid"):
		return "validation"
	default:
		return "internal"
	}
}

// =============================================================================
// Navigation Recording
// =============================================================================

// ObserveRouter counts the navigations of r by outcome and tracks whether
// one is in flight. It returns a function that stops observing.
//
// Outcomes: committed, cancelled, redirected.
func ObserveRouter(r *navigation.Router, opts ...MetricsOption) func() {
	m := sharedMetrics(opts)

	var (
		mu      sync.Mutex
		pending bool
	)
	setPending := func(p bool) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case p && !pending:
			m.pendingIntent.Inc()
		case !p && pending:
			m.pendingIntent.Dec()
		}
		pending = p
	}

	unsubs := []func(){
		r.Subscribe(navigation.EventResolved, func(navigation.Event) {
			m.navigations.WithLabelValues("committed").Inc()
		}),
		r.Subscribe(navigation.EventCancelled, func(navigation.Event) {
			m.navigations.WithLabelValues("cancelled").Inc()
		}),
		r.Subscribe(navigation.EventRedirected, func(navigation.Event) {
			m.navigations.WithLabelValues("redirected").Inc()
		}),
		r.SubscribeState(func(s *navigation.State) {
			setPending(s.Pending != nil)
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
		setPending(false)
	}
}

// =============================================================================
// Metrics Collector
// =============================================================================

// Collector exports match cache statistics. Register it alongside the
// middleware metrics:
//
//	prometheus.MustRegister(middleware.NewCacheCollector(r.Cache()))
type Collector struct {
	cache *matchcache.Cache

	hits          *prometheus.Desc
	misses        *prometheus.Desc
	puts          *prometheus.Desc
	rejected      *prometheus.Desc
	evictions     *prometheus.Desc
	collected     *prometheus.Desc
	invalidations *prometheus.Desc
	entries       *prometheus.Desc
}

// NewCacheCollector creates a collector over cache. Only the namespace,
// subsystem and constant labels of opts apply.
func NewCacheCollector(cache *matchcache.Cache, opts ...MetricsOption) *Collector {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(config.Namespace, config.Subsystem, "match_cache_"+name),
			help, nil, config.ConstLabels)
	}
	return &Collector{
		cache:         cache,
		hits:          desc("hits_total", "Match cache lookups that found a valid entry"),
		misses:        desc("misses_total", "Match cache lookups that found no valid entry"),
		puts:          desc("puts_total", "Entries written to the match cache"),
		rejected:      desc("rejected_total", "Writes rejected for carrying an older generation"),
		evictions:     desc("evictions_total", "Entries evicted to honor the size bound"),
		collected:     desc("collected_total", "Entries removed after their gcTime"),
		invalidations: desc("invalidations_total", "Entries marked invalid"),
		entries:       desc("entries", "Entries currently cached"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.hits, c.misses, c.puts, c.rejected, c.evictions, c.collected, c.invalidations, c.entries} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.cache.Stats()
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(c.hits, s.Hits)
	counter(c.misses, s.Misses)
	counter(c.puts, s.Puts)
	counter(c.rejected, s.Rejected)
	counter(c.evictions, s.Evictions)
	counter(c.collected, s.Collected)
	counter(c.invalidations, s.Invalidations)
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.Entries))
}
