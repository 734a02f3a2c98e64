package router

import (
	"context"
	"time"

	"github.com/vango-dev/waypoint/pkg/search"
)

// RootRouteID is the id of every tree's root route.
const RootRouteID = "__root__"

// Location is a resolved navigation target.
type Location struct {
	// Pathname is the canonical path without query or hash.
	Pathname string

	// Search is the decoded query string.
	Search search.Values

	// SearchStr is the encoded query string including the leading "?",
	// or empty.
	SearchStr string

	// Hash is the fragment without "#".
	Hash string

	// Href is Pathname + SearchStr + "#" + Hash.
	Href string

	// State is opaque history state attached to the entry.
	State map[string]any
}

// Cause describes why a lifecycle hook is running.
type Cause string

const (
	// CauseEnter is a match that was not part of the previous state.
	CauseEnter Cause = "enter"

	// CauseStay is a match that was already active.
	CauseStay Cause = "stay"

	// CausePreload is a speculative load that will not commit.
	CausePreload Cause = "preload"
)

// HookArgs is passed to every lifecycle hook of a match.
type HookArgs struct {
	RouteID      string
	Location     Location
	Params       map[string]string
	ParsedParams map[string]any

	// Search is the validated search for this match, merged down from its
	// ancestors.
	Search search.Values

	// Context is the route context accumulated from the root down to and
	// including this match's context and beforeLoad results.
	Context map[string]any

	// Deps is the value returned by LoaderDeps, if any.
	Deps any

	Cause   Cause
	Preload bool
}

// ContextFunc produces values merged into the route context of a match and
// every descendant.
type ContextFunc func(ctx context.Context, args *HookArgs) (map[string]any, error)

// BeforeLoadFunc runs serially, top-down, before any loader. Its result is
// merged into the route context. Returning a Redirect or NotFound error
// stops the pipeline.
type BeforeLoadFunc func(ctx context.Context, args *HookArgs) (map[string]any, error)

// LoaderFunc loads the data for a match.
type LoaderFunc func(ctx context.Context, args *HookArgs) (any, error)

// ParamsParser validates and converts raw path params. An error rejects the
// matched branch.
type ParamsParser interface {
	ParseParams(raw map[string]string) (map[string]any, error)
}

// ParamsParserFunc adapts a function to ParamsParser.
type ParamsParserFunc func(raw map[string]string) (map[string]any, error)

// ParseParams implements ParamsParser.
func (f ParamsParserFunc) ParseParams(raw map[string]string) (map[string]any, error) {
	return f(raw)
}

// SearchValidator validates a search record, returning the values to expose.
// An error is recorded on the owning match only.
type SearchValidator interface {
	ValidateSearch(in search.Values) (search.Values, error)
}

// SearchValidatorFunc adapts a function to SearchValidator.
type SearchValidatorFunc func(in search.Values) (search.Values, error)

// ValidateSearch implements SearchValidator.
func (f SearchValidatorFunc) ValidateSearch(in search.Values) (search.Values, error) {
	return f(in)
}

// RouteOptions declares a route.
//
// Durations use zero for "inherit the router default" and a negative value
// for an explicit zero.
type RouteOptions struct {
	// Path is the path pattern relative to the parent. "/" (or empty with
	// no ID) declares an index route, a leading "_" part declares a pathless
	// layout.
	Path string

	// ID overrides the id segment derived from Path. An ID with an empty
	// Path declares a pathless layout.
	ID string

	CaseSensitive bool

	Context    ContextFunc
	BeforeLoad BeforeLoadFunc
	Loader     LoaderFunc

	// LoaderDeps selects the search values that feed the loader cache key.
	LoaderDeps func(s search.Values) any

	// CacheKey replaces the derived loader cache key.
	CacheKey func(args *HookArgs) string

	ParseParams    ParamsParser
	ValidateSearch SearchValidator

	SearchDefaults    search.Values
	SearchMiddlewares []search.Middleware

	// WriteDefaults keeps default search values in serialized URLs.
	WriteDefaults bool

	StaleTime        time.Duration
	PreloadStaleTime time.Duration
	GCTime           time.Duration

	// Boundary presence hints. They decide where errors and not-found
	// outcomes are anchored; rendering them is up to the caller.
	ErrorBoundary    bool
	NotFoundBoundary bool
	PendingBoundary  bool

	Meta map[string]any
}

// Route is a declared route. Routes are assembled with AddChildren and
// frozen into a Tree by NewTree.
type Route struct {
	opts     RouteOptions
	root     bool
	children []*Route
}

// NewRootRoute declares the root of a route tree. Path and ID are ignored.
func NewRootRoute(opts RouteOptions) *Route {
	opts.Path = ""
	opts.ID = RootRouteID
	return &Route{opts: opts, root: true}
}

// NewRoute declares a non-root route.
func NewRoute(opts RouteOptions) *Route {
	return &Route{opts: opts}
}

// AddChildren appends child routes and returns r.
func (r *Route) AddChildren(children ...*Route) *Route {
	r.children = append(r.children, children...)
	return r
}

// Options returns the route's declaration.
func (r *Route) Options() RouteOptions { return r.opts }

// IsRoot reports whether r was declared with NewRootRoute.
func (r *Route) IsRoot() bool { return r.root }

// Children returns the declared children.
func (r *Route) Children() []*Route { return r.children }

// HasLoader reports whether the route declares a loader.
func (r *Route) HasLoader() bool { return r.opts.Loader != nil }
