// Package middleware provides observability middleware for the navigation
// lifecycle.
//
// This package includes:
//   - OpenTelemetry tracing of every lifecycle step
//   - Prometheus metrics for steps, navigations and the match cache
//
// # OpenTelemetry Middleware
//
// The OpenTelemetry middleware starts a span for every context, beforeLoad,
// validateSearch and loader step. Spans carry the route id, match id, intent
// id, pathname and, optionally, the path params and search string.
//
//	r := navigation.New(tree,
//	    navigation.WithMiddleware(middleware.OpenTelemetry()),
//	)
//
// Configure with options:
//
//	middleware.OpenTelemetry(
//	    middleware.WithTracerName("my-app"),
//	    middleware.WithIncludeSearch(true),
//	    middleware.WithStepFilter(func(step *navigation.Step) bool {
//	        return step.Kind == navigation.StepLoader
//	    }),
//	)
//
// # Prometheus Metrics
//
// The Prometheus middleware collects:
//   - waypoint_steps_total: Steps by kind, route, mode and status
//   - waypoint_step_duration_seconds: Step duration histogram
//   - waypoint_step_errors_total: Failed steps by error category
//
// ObserveRouter adds navigation outcomes and the pending gauge, and
// NewCacheCollector exports match cache statistics:
//
//	r := navigation.New(tree, navigation.WithMiddleware(middleware.Prometheus()))
//	stop := middleware.ObserveRouter(r)
//	defer stop()
//	prometheus.MustRegister(middleware.NewCacheCollector(r.Cache()))
//
//	http.Handle("/metrics", promhttp.Handler())
//
// # Context Propagation
//
// Hooks receive the context the middleware passes on, so clients and
// drivers called from a loader inherit the step's span:
//
//	Loader: func(ctx context.Context, args *router.HookArgs) (any, error) {
//	    req, _ := http.NewRequestWithContext(ctx, "GET", url, nil)
//	    ...
//	}
package middleware
