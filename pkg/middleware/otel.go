package middleware

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/waypoint/pkg/navigation"
	"github.com/vango-dev/waypoint/pkg/router"
)

// Default tracer name.
const defaultTracerName = "waypoint"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "waypoint").
	TracerName string

	// TracerProvider provides the tracer. Default: the global provider.
	TracerProvider trace.TracerProvider

	// IncludeSearch includes the location's search string in spans.
	// May contain sensitive information - disabled by default.
	IncludeSearch bool

	// IncludeParams includes the raw path params in spans.
	// Enabled by default.
	IncludeParams bool

	// Filter determines which steps to trace.
	// Return true to trace the step, false to skip.
	// If nil, all steps are traced.
	Filter func(step *navigation.Step) bool

	// AttributeExtractor extracts custom attributes from the step.
	AttributeExtractor func(step *navigation.Step) []attribute.KeyValue

	tracer trace.Tracer
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

// WithIncludeSearch enables including the search string in spans.
func WithIncludeSearch(include bool) OTelOption {
	return func(c *OTelConfig) {
		c.IncludeSearch = include
	}
}

// WithIncludeParams enables/disables including path params in spans.
func WithIncludeParams(include bool) OTelOption {
	return func(c *OTelConfig) {
		c.IncludeParams = include
	}
}

// WithStepFilter sets a filter function for steps.
func WithStepFilter(filter func(step *navigation.Step) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(step *navigation.Step) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

func defaultOTelConfig() OTelConfig {
	return OTelConfig{
		TracerName:    defaultTracerName,
		IncludeParams: true,
	}
}

// OpenTelemetry creates middleware that traces every lifecycle step.
//
// The middleware:
//   - Creates a span per step with the route, match and intent ids
//   - Passes the span context on, so hooks can start child spans from ctx
//   - Records errors and sets span status
//   - Records redirect and not-found signals as span events, not errors
//
// Example:
//
//	r := navigation.New(tree,
//	    navigation.WithMiddleware(middleware.OpenTelemetry(
//	        middleware.WithTracerName("my-app"),
//	    )),
//	)
//
// The tracer uses the global OpenTelemetry tracer provider unless
// WithTracerProvider is given. Configure it in your main():
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
func OpenTelemetry(opts ...OTelOption) navigation.Middleware {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}

	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	config.tracer = tp.Tracer(config.TracerName)

	return navigation.MiddlewareFunc(func(ctx context.Context, step *navigation.Step, next func(ctx context.Context) error) error {
		if config.Filter != nil && !config.Filter(step) {
			return next(ctx)
		}

		attrs := []attribute.KeyValue{
			attribute.String("waypoint.step", string(step.Kind)),
			attribute.String("waypoint.route", step.RouteID),
			attribute.Bool("waypoint.preload", step.Preload),
			attribute.Bool("waypoint.background", step.Background),
		}
		if step.MatchID != "" {
			attrs = append(attrs, attribute.String("waypoint.match_id", step.MatchID))
		}
		if step.IntentID != "" {
			attrs = append(attrs, attribute.String("waypoint.intent_id", step.IntentID))
		}

		if args := step.Args; args != nil {
			attrs = append(attrs,
				attribute.String("waypoint.pathname", args.Location.Pathname),
				attribute.String("waypoint.cause", string(args.Cause)),
			)
			if config.IncludeParams {
				for k, v := range args.Params {
					attrs = append(attrs, attribute.String("waypoint.param."+k, v))
				}
			}
			if config.IncludeSearch && args.Location.SearchStr != "" {
				attrs = append(attrs, attribute.String("waypoint.search", args.Location.SearchStr))
			}
		}

		if config.AttributeExtractor != nil {
			attrs = append(attrs, config.AttributeExtractor(step)...)
		}

		spanCtx, span := config.tracer.Start(ctx, formatSpanName(step),
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		err := next(spanCtx)

		var rd *router.RedirectError
		var nf *router.NotFoundError
		switch {
		case err == nil:
			span.SetStatus(codes.Ok, "")
		case errors.As(err, &rd):
			target := rd.Options.Href
			if target == "" {
				target = rd.Options.To
			}
			span.AddEvent("redirect", trace.WithAttributes(attribute.String("waypoint.redirect_to", target)))
			span.SetStatus(codes.Ok, "")
		case errors.As(err, &nf):
			span.AddEvent("not_found", trace.WithAttributes(attribute.String("waypoint.anchor", nf.RouteID)))
			span.SetStatus(codes.Ok, "")
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		return err
	})
}

// SpanFromContext retrieves the span of the running lifecycle step.
// Hooks receive a ctx carrying it.
//
// Example:
//
//	Loader: func(ctx context.Context, args *router.HookArgs) (any, error) {
//	    middleware.SpanFromContext(ctx).SetAttributes(attribute.Int("rows", n))
//	    ...
//	}
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

func formatSpanName(step *navigation.Step) string {
	return fmt.Sprintf("waypoint.%s %s", step.Kind, step.RouteID)
}
