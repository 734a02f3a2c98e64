package navigation

import (
	"context"

	"github.com/vango-dev/waypoint/pkg/router"
)

// StepKind names a lifecycle step.
type StepKind string

const (
	StepContext        StepKind = "context"
	StepBeforeLoad     StepKind = "beforeLoad"
	StepValidateSearch StepKind = "validateSearch"
	StepLoader         StepKind = "loader"
)

// Step describes one lifecycle hook invocation passed through middleware.
type Step struct {
	Kind     StepKind
	RouteID  string
	MatchID  string
	IntentID string

	Preload bool

	// Background is set for stale-while-revalidate refetches that run after
	// the navigation committed.
	Background bool

	Args *router.HookArgs

	// Result is the hook's return value once next has run.
	Result any
}

// Middleware wraps lifecycle steps, e.g. for metrics or tracing.
type Middleware interface {
	Handle(ctx context.Context, step *Step, next func(ctx context.Context) error) error
}

// MiddlewareFunc adapts a function to Middleware.
type MiddlewareFunc func(ctx context.Context, step *Step, next func(ctx context.Context) error) error

// Handle implements Middleware.
func (f MiddlewareFunc) Handle(ctx context.Context, step *Step, next func(ctx context.Context) error) error {
	return f(ctx, step, next)
}

// ComposeMiddleware builds a handler chain from middleware and a final handler.
// Middleware is executed in order (first to last), with the handler at the end.
func ComposeMiddleware(ctx context.Context, step *Step, mw []Middleware, handler func(ctx context.Context) error) error {
	if len(mw) == 0 {
		return handler(ctx)
	}

	// Build chain from end to start
	chain := handler
	for i := len(mw) - 1; i >= 0; i-- {
		m := mw[i]
		next := chain
		chain = func(ctx context.Context) error {
			return m.Handle(ctx, step, next)
		}
	}

	return chain(ctx)
}

// Chain creates a middleware that combines multiple middleware in order.
func Chain(middleware ...Middleware) Middleware {
	return MiddlewareFunc(func(ctx context.Context, step *Step, next func(ctx context.Context) error) error {
		return ComposeMiddleware(ctx, step, middleware, next)
	})
}

// Only runs mw for steps matching condition.
func Only(condition func(step *Step) bool, mw Middleware) Middleware {
	return MiddlewareFunc(func(ctx context.Context, step *Step, next func(ctx context.Context) error) error {
		if !condition(step) {
			return next(ctx)
		}
		return mw.Handle(ctx, step, next)
	})
}

// Skip bypasses mw for steps matching condition.
func Skip(condition func(step *Step) bool, mw Middleware) Middleware {
	return MiddlewareFunc(func(ctx context.Context, step *Step, next func(ctx context.Context) error) error {
		if condition(step) {
			return next(ctx)
		}
		return mw.Handle(ctx, step, next)
	})
}
