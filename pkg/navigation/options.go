package navigation

import (
	"log/slog"
	"time"

	"github.com/vango-dev/waypoint/pkg/matchcache"
)

// Defaults.
const (
	DefaultMaxRedirects       = 8
	DefaultGCTime             = 30 * time.Minute
	DefaultPreloadStaleTime   = 30 * time.Second
	DefaultLoaderConcurrency  = 16
	DefaultPreloadRate        = 5.0
	DefaultPreloadConcurrency = 4
)

type config struct {
	history  History
	logger   *slog.Logger
	cache    *matchcache.Cache
	mw       []Middleware
	now      func() time.Time
	rootCtx  map[string]any
	basepath string
	slash    TrailingSlash

	maxRedirects      int
	staleTime         time.Duration
	preloadStaleTime  time.Duration
	gcTime            time.Duration
	preloadGCTime     time.Duration
	loaderConcurrency int
	errorBoundary     bool

	preloadRate        float64
	preloadConcurrency int
}

func defaultConfig() config {
	return config{
		logger:             slog.Default(),
		now:                time.Now,
		maxRedirects:       DefaultMaxRedirects,
		preloadStaleTime:   DefaultPreloadStaleTime,
		gcTime:             DefaultGCTime,
		preloadGCTime:      DefaultGCTime,
		loaderConcurrency:  DefaultLoaderConcurrency,
		errorBoundary:      true,
		preloadRate:        DefaultPreloadRate,
		preloadConcurrency: DefaultPreloadConcurrency,
	}
}

// Option configures a Router.
type Option func(*config)

// WithHistory sets the history the router commits to. Default: a
// MemoryHistory at "/".
func WithHistory(h History) Option {
	return func(c *config) { c.history = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithCache shares a match cache. Default: a private unbounded cache.
func WithCache(cache *matchcache.Cache) Option {
	return func(c *config) { c.cache = cache }
}

// WithMiddleware appends lifecycle step middleware.
func WithMiddleware(mw ...Middleware) Option {
	return func(c *config) { c.mw = append(c.mw, mw...) }
}

// WithClock replaces time.Now for staleness decisions.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithContext sets the values every root route context starts from.
func WithContext(values map[string]any) Option {
	return func(c *config) { c.rootCtx = values }
}

// WithBasepath mounts the route tree below a path prefix. History hrefs
// carry the prefix, route matching does not.
func WithBasepath(basepath string) Option {
	return func(c *config) { c.basepath = basepath }
}

// TrailingSlash is the trailing slash policy of built locations.
type TrailingSlash string

const (
	// TrailingSlashNever strips the trailing slash. The default.
	TrailingSlashNever TrailingSlash = "never"

	// TrailingSlashAlways appends one to every pathname but the root.
	TrailingSlashAlways TrailingSlash = "always"

	// TrailingSlashPreserve keeps the trailing slash of the target.
	TrailingSlashPreserve TrailingSlash = "preserve"
)

// WithTrailingSlash sets the trailing slash policy of BuildLocation and
// Navigate. Hrefs read from history and route matching are unaffected.
func WithTrailingSlash(policy TrailingSlash) Option {
	return func(c *config) { c.slash = policy }
}

// WithMaxRedirects bounds the redirects one navigation may follow.
func WithMaxRedirects(n int) Option {
	return func(c *config) { c.maxRedirects = n }
}

// WithDefaultStaleTime sets the staleTime of routes that declare none.
// Default: 0, every revisit refetches in the background.
func WithDefaultStaleTime(d time.Duration) Option {
	return func(c *config) { c.staleTime = d }
}

// WithDefaultPreloadStaleTime sets how long preloaded data counts as fresh
// for further preloads. Default: 30s.
func WithDefaultPreloadStaleTime(d time.Duration) Option {
	return func(c *config) { c.preloadStaleTime = d }
}

// WithDefaultGCTime sets how long unreferenced entries are kept.
// Default: 30m.
func WithDefaultGCTime(d time.Duration) Option {
	return func(c *config) { c.gcTime = d }
}

// WithDefaultPreloadGCTime sets the gcTime of entries only a preload
// produced. Default: 30m.
func WithDefaultPreloadGCTime(d time.Duration) Option {
	return func(c *config) { c.preloadGCTime = d }
}

// WithLoaderConcurrency bounds concurrent loaders per navigation.
func WithLoaderConcurrency(n int) Option {
	return func(c *config) { c.loaderConcurrency = n }
}

// WithDefaultErrorBoundary sets whether the root acts as an error boundary.
// When false, a hook error that no route's ErrorBoundary covers fails the
// navigation with a *NavigationError. Default: true.
func WithDefaultErrorBoundary(enabled bool) Option {
	return func(c *config) { c.errorBoundary = enabled }
}

// WithPreloadLimits bounds preloads per second and in flight. Non-positive
// values disable the respective limit.
func WithPreloadLimits(ratePerSecond float64, concurrency int) Option {
	return func(c *config) {
		c.preloadRate = ratePerSecond
		c.preloadConcurrency = concurrency
	}
}

// resolveDuration applies the route duration convention: zero inherits
// def, negative means zero.
func resolveDuration(v, def time.Duration) time.Duration {
	switch {
	case v < 0:
		return 0
	case v == 0:
		return def
	}
	return v
}
