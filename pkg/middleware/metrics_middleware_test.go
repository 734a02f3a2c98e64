package middleware

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/vango-dev/waypoint/pkg/matchcache"
	"github.com/vango-dev/waypoint/pkg/navigation"
	"github.com/vango-dev/waypoint/pkg/router"
)

func resetGlobalMetricsForTest() {
	globalMetricsMu.Lock()
	globalMetrics = nil
	globalMetricsMu.Unlock()
}

func metricCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	if m.Counter == nil {
		t.Fatal("expected counter metric to have Counter field")
	}
	return m.GetCounter().GetValue()
}

func metricGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	if m.Gauge == nil {
		t.Fatal("expected gauge metric to have Gauge field")
	}
	return m.GetGauge().GetValue()
}

func metricHistogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := o.(prometheus.Metric)
	if !ok {
		t.Fatalf("observer %T does not implement prometheus.Metric", o)
	}
	var m dto.Metric
	if err := metric.Write(&m); err != nil {
		t.Fatalf("histogram Write() error: %v", err)
	}
	if m.Histogram == nil {
		t.Fatal("expected histogram metric to have Histogram field")
	}
	return m.GetHistogram().GetSampleCount()
}

func gatheredValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		m := f.GetMetric()[0]
		if c := m.GetCounter(); c != nil {
			return c.GetValue()
		}
		return m.GetGauge().GetValue()
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}

func TestPrometheusMiddleware_RecordsSuccessAndError(t *testing.T) {
	t.Run("success increments success counter and duration", func(t *testing.T) {
		resetGlobalMetricsForTest()
		reg := prometheus.NewRegistry()

		mw := Prometheus(WithRegistry(reg))
		err := mw.Handle(context.Background(), newStep(navigation.StepLoader, "/posts"), func(context.Context) error { return nil })
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		m := globalMetrics
		if got := metricCounterValue(t, m.stepsTotal.WithLabelValues("loader", "/posts", "navigate", "success")); got != 1 {
			t.Fatalf("steps_total(success)=%v, want 1", got)
		}
		if got := metricCounterValue(t, m.stepsTotal.WithLabelValues("loader", "/posts", "navigate", "error")); got != 0 {
			t.Fatalf("steps_total(error)=%v, want 0", got)
		}
		if got := metricHistogramCount(t, m.stepDuration.WithLabelValues("loader", "/posts")); got != 1 {
			t.Fatalf("step_duration_seconds count=%v, want 1", got)
		}
	})

	t.Run("error increments error counters and returns error", func(t *testing.T) {
		resetGlobalMetricsForTest()
		reg := prometheus.NewRegistry()

		mw := Prometheus(WithRegistry(reg))
		wantErr := errors.New("timeout exceeded")
		step := newStep(navigation.StepBeforeLoad, "/admin")
		step.Preload = true

		err := mw.Handle(context.Background(), step, func(context.Context) error { return wantErr })
		if !errors.Is(err, wantErr) {
			t.Fatalf("err=%v, want %v", err, wantErr)
		}

		m := globalMetrics
		if got := metricCounterValue(t, m.stepsTotal.WithLabelValues("beforeLoad", "/admin", "preload", "error")); got != 1 {
			t.Fatalf("steps_total(error)=%v, want 1", got)
		}
		if got := metricCounterValue(t, m.stepErrors.WithLabelValues("beforeLoad", "timeout")); got != 1 {
			t.Fatalf("step_errors_total(timeout)=%v, want 1", got)
		}
	})
}

func TestPrometheusMiddleware_SignalsAreNotErrors(t *testing.T) {
	resetGlobalMetricsForTest()
	reg := prometheus.NewRegistry()
	mw := Prometheus(WithRegistry(reg))

	redirect := router.Redirect(router.RedirectOptions{To: "/login"})
	if err := mw.Handle(context.Background(), newStep(navigation.StepBeforeLoad, "/admin"), func(context.Context) error { return redirect }); err != redirect {
		t.Fatalf("err=%v, want the redirect signal", err)
	}
	step := newStep(navigation.StepLoader, "/posts/$postId")
	step.Background = true
	if err := mw.Handle(context.Background(), step, func(context.Context) error { return router.NotFound("") }); !errors.Is(err, router.ErrNotFound) {
		t.Fatalf("err=%v, want not found", err)
	}

	m := globalMetrics
	if got := metricCounterValue(t, m.stepsTotal.WithLabelValues("beforeLoad", "/admin", "navigate", "redirect")); got != 1 {
		t.Errorf("steps_total(redirect)=%v, want 1", got)
	}
	if got := metricCounterValue(t, m.stepsTotal.WithLabelValues("loader", "/posts/$postId", "background", "not_found")); got != 1 {
		t.Errorf("steps_total(not_found)=%v, want 1", got)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	for _, f := range families {
		if f.GetName() == "waypoint_step_errors_total" {
			t.Errorf("signals were counted as errors: %v", f)
		}
	}
}

func TestObserveRouter(t *testing.T) {
	resetGlobalMetricsForTest()
	reg := prometheus.NewRegistry()

	root := router.NewRootRoute(router.RouteOptions{})
	root.AddChildren(
		router.NewRoute(router.RouteOptions{Path: "posts"}),
		router.NewRoute(router.RouteOptions{
			Path: "old",
			BeforeLoad: func(context.Context, *router.HookArgs) (map[string]any, error) {
				return nil, router.Redirect(router.RedirectOptions{To: "/posts"})
			},
		}),
	)
	tree, err := router.NewTree(root)
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	r := navigation.New(tree,
		navigation.WithLogger(slog.New(slog.DiscardHandler)),
		navigation.WithMiddleware(Prometheus(WithRegistry(reg))),
	)
	defer r.Close()

	stop := ObserveRouter(r, WithRegistry(reg))
	ctx := context.Background()
	if err := r.Navigate(ctx, navigation.NavigateOptions{To: "/posts"}); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if err := r.Navigate(ctx, navigation.NavigateOptions{To: "/old"}); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	stop()

	m := globalMetrics
	if got := metricCounterValue(t, m.navigations.WithLabelValues("committed")); got != 2 {
		t.Errorf("navigations_total(committed)=%v, want 2", got)
	}
	if got := metricCounterValue(t, m.navigations.WithLabelValues("redirected")); got != 1 {
		t.Errorf("navigations_total(redirected)=%v, want 1", got)
	}
	if got := metricGaugeValue(t, m.pendingIntent); got != 0 {
		t.Errorf("pending_navigations=%v, want 0", got)
	}
	if got := metricCounterValue(t, m.stepsTotal.WithLabelValues("beforeLoad", "/old", "navigate", "redirect")); got != 1 {
		t.Errorf("steps_total(redirect)=%v, want 1", got)
	}
}

func TestCacheCollector(t *testing.T) {
	cache := matchcache.New()
	cache.Put("a", matchcache.Entry{RouteID: "/a", Data: 1})
	cache.Put("b", matchcache.Entry{RouteID: "/b", Data: 2})
	cache.Get("a")
	cache.Get("missing")
	cache.InvalidateRoute("/b")

	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCacheCollector(cache, WithNamespace("test")))

	tests := []struct {
		name string
		want float64
	}{
		{"test_match_cache_puts_total", 2},
		{"test_match_cache_hits_total", 1},
		{"test_match_cache_misses_total", 1},
		{"test_match_cache_invalidations_total", 1},
		{"test_match_cache_entries", 2},
	}
	for _, tt := range tests {
		if got := gatheredValue(t, reg, tt.name); got != tt.want {
			t.Errorf("%s=%v, want %v", tt.name, got, tt.want)
		}
	}
}
