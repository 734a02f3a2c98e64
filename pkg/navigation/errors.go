package navigation

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrCancelled matches every *CancelledError.
	ErrCancelled = errors.New("navigation cancelled")

	// ErrSuperseded is the cancellation cause of a navigation replaced by a
	// newer one.
	ErrSuperseded = errors.New("superseded by a newer navigation")

	// ErrRedirectLoop is returned when a navigation follows more redirects
	// than the router allows.
	ErrRedirectLoop = errors.New("too many redirects")

	// ErrAncestorFailed is recorded on matches below a match whose
	// beforeLoad or search validation failed. Their hooks never run.
	ErrAncestorFailed = errors.New("ancestor match failed")

	// ErrRouterClosed is returned by operations on a closed router.
	ErrRouterClosed = errors.New("router closed")

	// ErrPreloadDropped is returned when a preload exceeds the preload rate
	// or concurrency limits.
	ErrPreloadDropped = errors.New("preload dropped")

	// ErrMissingParams is returned when a target pattern has params that
	// were not provided.
	ErrMissingParams = errors.New("missing path params")

	// ErrBlocked is returned when a history blocker rejects a navigation.
	ErrBlocked = errors.New("navigation blocked")

	// ErrHookPanic wraps a panic raised by a lifecycle hook.
	ErrHookPanic = errors.New("hook panicked")
)

// CancelledError reports that a navigation stopped before committing.
// It is internal bookkeeping and never a user-visible failure.
type CancelledError struct {
	IntentID string

	// Cause is why the navigation was cancelled: ErrSuperseded, the caller's
	// context error or ErrRouterClosed.
	Cause error
}

func (e *CancelledError) Error() string {
	if e.Cause == nil {
		return "navigation " + e.IntentID + " cancelled"
	}
	return fmt.Sprintf("navigation %s cancelled: %v", e.IntentID, e.Cause)
}

func (e *CancelledError) Is(target error) bool { return target == ErrCancelled }

func (e *CancelledError) Unwrap() error { return e.Cause }

// IsCancelled reports whether err is a cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// NavigationError is a navigation that failed without committing: a
// malformed target, a redirect loop or a hook error no error boundary
// covers. The router itself stays usable.
type NavigationError struct {
	IntentID string
	Href     string

	// RouteID is the failing match, if any.
	RouteID string

	Err error
}

func (e *NavigationError) Error() string {
	if e.RouteID != "" {
		return fmt.Sprintf("navigate to %s: route %s: %v", e.Href, e.RouteID, e.Err)
	}
	return fmt.Sprintf("navigate to %s: %v", e.Href, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

func asNavigationError(err error, target **NavigationError) bool {
	return errors.As(err, target)
}

// HookError records which lifecycle step of which route failed.
type HookError struct {
	RouteID string
	Step    StepKind
	Err     error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.RouteID, e.Step, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }
