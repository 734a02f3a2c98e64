package router

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/vango-dev/waypoint/pkg/search"
)

// Control signal sentinels. Hooks return Redirect or NotFound; callers test
// with errors.Is or the As helpers below.
var (
	ErrRedirect = errors.New("redirect")
	ErrNotFound = errors.New("not found")
)

// RedirectOptions describes where a redirect sends the navigation.
type RedirectOptions struct {
	// To is a path pattern, interpolated with Params. Ignored when Href is set.
	To     string
	Params map[string]string

	Search search.Values
	Hash   string
	State  map[string]any

	// Href is a literal target including query and hash.
	Href string

	Replace bool

	// StatusCode is a hint for server renderers. Defaults to 307.
	StatusCode int
}

// RedirectError is the control signal produced by Redirect.
type RedirectError struct {
	Options RedirectOptions
}

func (e *RedirectError) Error() string {
	target := e.Options.Href
	if target == "" {
		target = e.Options.To
	}
	return fmt.Sprintf("redirect to %q", target)
}

func (e *RedirectError) Is(target error) bool { return target == ErrRedirect }

// Redirect returns a control signal that restarts navigation at the target.
func Redirect(opts RedirectOptions) error {
	if opts.StatusCode == 0 {
		opts.StatusCode = http.StatusTemporaryRedirect
	}
	return &RedirectError{Options: opts}
}

// AsRedirect extracts a redirect signal from err.
func AsRedirect(err error) (*RedirectError, bool) {
	var r *RedirectError
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// NotFoundError reports that no route could handle a pathname, or that a
// hook declared its match not found.
type NotFoundError struct {
	Pathname string

	// RouteID is the route the outcome is anchored at. Empty means the
	// match that raised it.
	RouteID string
}

func (e *NotFoundError) Error() string {
	switch {
	case e.Pathname != "" && e.RouteID != "":
		return fmt.Sprintf("not found: %s (anchored at %s)", e.Pathname, e.RouteID)
	case e.Pathname != "":
		return "not found: " + e.Pathname
	case e.RouteID != "":
		return "not found at route " + e.RouteID
	}
	return "not found"
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound returns a not-found control signal. routeID optionally anchors
// the outcome at an ancestor route.
func NotFound(routeID string) error {
	return &NotFoundError{RouteID: routeID}
}

// AsNotFound extracts a not-found signal from err.
func AsNotFound(err error) (*NotFoundError, bool) {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf, true
	}
	return nil, false
}
