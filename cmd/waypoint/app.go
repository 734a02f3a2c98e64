package main

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/vango-dev/waypoint/internal/config"
	"github.com/vango-dev/waypoint/internal/errors"
	"github.com/vango-dev/waypoint/pkg/manifest"
	"github.com/vango-dev/waypoint/pkg/matchcache"
	"github.com/vango-dev/waypoint/pkg/middleware"
	"github.com/vango-dev/waypoint/pkg/navigation"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	manifest   string
	logLevel   string
	logFormat  string
}

// loadConfig loads the config file and applies flag overrides.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if f.configPath != "" {
		cfg, err = config.LoadFile(f.configPath)
	} else {
		cfg, err = config.LoadFromWorkingDir()
	}
	if err != nil {
		return nil, err
	}

	if f.manifest != "" {
		cfg.Manifest = f.manifest
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// manifestLocation is the --manifest flag as given, or the config's
// manifest resolved against the config directory.
func (f *globalFlags) manifestLocation(cfg *config.Config) string {
	if f.manifest != "" {
		return f.manifest
	}
	return cfg.ManifestPath()
}

// newLogger builds the process logger from the log config.
func newLogger(cfg *config.Config) *slog.Logger {
	level, _ := cfg.LogLevel()
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// loadManifest reads and validates the manifest at location.
func loadManifest(ctx context.Context, cfg *config.Config, location string, logger *slog.Logger) (*manifest.Manifest, error) {
	var client manifest.S3GetObjectAPI
	if strings.HasPrefix(location, "s3://") {
		client = manifest.NewS3Client(manifest.S3ClientOptions{
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
	}
	src, err := manifest.SourceFor(location, client)
	if err != nil {
		return nil, errors.New(errors.CodeManifestFetch).Wrap(err)
	}
	if s3src, ok := src.(*manifest.S3Source); ok {
		s3src.MaxElapsed = cfg.S3.MaxElapsed.Std()
		s3src.Logger = logger
	}

	m, err := manifest.Load(ctx, src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CodeNoManifest).
				WithDetail("No manifest at " + location).
				WithSuggestion("Create " + config.DefaultManifest + " or pass --manifest")
		}
		if strings.HasPrefix(location, "s3://") {
			return nil, errors.Classify(err, errors.CodeManifestFetch)
		}
		return nil, errors.Classify(err, errors.CodeInvalidManifest).WithLocationFromError(location, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// app is a router built from the config and manifest.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	manifest *manifest.Manifest
	router   *navigation.Router
	registry *prometheus.Registry
	tracer   *sdktrace.TracerProvider

	stop []func()
}

// newApp loads the config and manifest and builds the router with the
// configured middleware.
func newApp(ctx context.Context, f *globalFlags) (*app, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	m, err := loadManifest(ctx, cfg, f.manifestLocation(cfg), logger)
	if err != nil {
		return nil, err
	}
	tree, err := m.Tree()
	if err != nil {
		return nil, errors.Classify(err, errors.CodeInvalidTree)
	}

	a := &app{cfg: cfg, logger: logger, manifest: m}

	cache := matchcache.New(
		matchcache.WithMaxEntries(cfg.Cache.MaxEntries),
		matchcache.WithLogger(logger.With("component", "matchcache")),
	)
	opts := []navigation.Option{
		navigation.WithLogger(logger.With("component", "navigation")),
		navigation.WithCache(cache),
		navigation.WithBasepath(cfg.Basepath),
		navigation.WithMaxRedirects(cfg.Navigation.MaxRedirects),
		navigation.WithLoaderConcurrency(cfg.Navigation.LoaderConcurrency),
		navigation.WithPreloadLimits(cfg.Navigation.PreloadRate, cfg.Navigation.PreloadConcurrency),
		navigation.WithDefaultStaleTime(cfg.Cache.StaleTime.Std()),
		navigation.WithDefaultPreloadStaleTime(cfg.Cache.PreloadStaleTime.Std()),
		navigation.WithDefaultGCTime(cfg.Cache.GCTime.Std()),
		navigation.WithDefaultPreloadGCTime(cfg.Cache.PreloadGCTime.Std()),
	}
	if cfg.Navigation.TrailingSlash != "" {
		opts = append(opts, navigation.WithTrailingSlash(navigation.TrailingSlash(cfg.Navigation.TrailingSlash)))
	}
	if cfg.Navigation.ErrorBoundary != nil {
		opts = append(opts, navigation.WithDefaultErrorBoundary(*cfg.Navigation.ErrorBoundary))
	}
	if cfg.Basepath != "" {
		opts = append(opts, navigation.WithHistory(navigation.NewMemoryHistory(cfg.Basepath)))
	}

	var metricOpts []middleware.MetricsOption
	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metricOpts = []middleware.MetricsOption{
			middleware.WithRegistry(a.registry),
			middleware.WithNamespace(cfg.Metrics.Namespace),
		}
		opts = append(opts, navigation.WithMiddleware(middleware.Prometheus(metricOpts...)))
	}
	if cfg.Tracing.Enabled {
		a.tracer = newTracerProvider(logger.With("component", "tracing"))
		opts = append(opts, navigation.WithMiddleware(middleware.OpenTelemetry(
			middleware.WithTracerProvider(a.tracer),
			middleware.WithTracerName(cfg.Tracing.TracerName),
			middleware.WithIncludeSearch(cfg.Tracing.IncludeSearch),
		)))
	}

	a.router = navigation.New(tree, opts...)
	if a.registry != nil {
		a.stop = append(a.stop, middleware.ObserveRouter(a.router, metricOpts...))
		a.registry.MustRegister(middleware.NewCacheCollector(cache, metricOpts...))
	}

	logger.Debug("router ready",
		"manifest", m.Source,
		"routes", tree.Len(),
		"metrics", cfg.Metrics.Enabled,
		"tracing", cfg.Tracing.Enabled)
	return a, nil
}

// close stops the router and flushes traces.
func (a *app) close() {
	for _, stop := range a.stop {
		stop()
	}
	if err := a.router.Close(); err != nil {
		a.logger.Debug("router close", "error", err)
	}
	a.router.WaitBackground()
	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			a.logger.Warn("tracer shutdown", "error", err)
		}
	}
}
