package manifest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cast"

	"github.com/vango-dev/waypoint/pkg/router"
	"github.com/vango-dev/waypoint/pkg/schema"
	"github.com/vango-dev/waypoint/pkg/search"
)

// BuildOption binds code to the names a manifest references.
type BuildOption func(*builder)

// WithLoader registers a loader that routes select with loader.use.
func WithLoader(name string, fn router.LoaderFunc) BuildOption {
	return func(b *builder) { b.loaders[name] = fn }
}

// WithBeforeLoad registers a beforeLoad hook that routes select with
// beforeLoad. It runs before the route's redirect and notFound.
func WithBeforeLoad(name string, fn router.BeforeLoadFunc) BuildOption {
	return func(b *builder) { b.beforeLoads[name] = fn }
}

type builder struct {
	loaders     map[string]router.LoaderFunc
	beforeLoads map[string]router.BeforeLoadFunc
	errs        *multierror.Error
}

// Validate checks the manifest for declarations that can never work.
func (m *Manifest) Validate() error {
	var errs *multierror.Error
	_ = m.Walk(func(parent string, spec *RouteSpec) error {
		where := parent + "/" + spec.Path
		if spec.ID != "" {
			where = spec.ID
		}
		if rd := spec.Redirect; rd != nil {
			if rd.To != "" && rd.Href != "" {
				errs = multierror.Append(errs, fmt.Errorf("%w: route %s: redirect sets both to and href", ErrInvalidManifest, where))
			}
			if rd.To == "" && rd.Href == "" && rd.When != nil {
				for _, key := range rd.When.MissingSearch {
					if _, ok := rd.Search[key]; !ok {
						errs = multierror.Append(errs, fmt.Errorf("%w: route %s: redirect never supplies missing search %q", ErrInvalidManifest, where, key))
					}
				}
			}
		}
		if l := spec.Loader; l != nil && l.Error != "" && l.NotFound {
			errs = multierror.Append(errs, fmt.Errorf("%w: route %s: loader sets both error and notFound", ErrInvalidManifest, where))
		}
		return nil
	})
	return errs.ErrorOrNil()
}

// Build constructs the route tree the manifest declares. All declaration
// errors are reported together.
func (m *Manifest) Build(opts ...BuildOption) (*router.Route, error) {
	b := &builder{
		loaders:     make(map[string]router.LoaderFunc),
		beforeLoads: make(map[string]router.BeforeLoadFunc),
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := m.Validate(); err != nil {
		b.errs = multierror.Append(b.errs, err)
	}

	root := router.NewRootRoute(b.options("__root__", &m.Root))
	for i := range m.Routes {
		root.AddChildren(b.route(&m.Routes[i]))
	}
	if err := b.errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return root, nil
}

// Tree builds the manifest and freezes it into a route tree.
func (m *Manifest) Tree(opts ...BuildOption) (*router.Tree, error) {
	root, err := m.Build(opts...)
	if err != nil {
		return nil, err
	}
	return router.NewTree(root)
}

func (b *builder) route(spec *RouteSpec) *router.Route {
	name := spec.ID
	if name == "" {
		name = spec.Path
	}
	r := router.NewRoute(b.options(name, spec))
	for i := range spec.Children {
		r.AddChildren(b.route(&spec.Children[i]))
	}
	return r
}

func (b *builder) fail(name, format string, args ...any) {
	b.errs = multierror.Append(b.errs, fmt.Errorf("%w: route %s: %s", ErrInvalidManifest, name, fmt.Sprintf(format, args...)))
}

func (b *builder) options(name string, spec *RouteSpec) router.RouteOptions {
	opts := router.RouteOptions{
		Path:             spec.Path,
		ID:               spec.ID,
		CaseSensitive:    spec.CaseSensitive,
		WriteDefaults:    spec.WriteDefaults,
		StaleTime:        spec.StaleTime,
		PreloadStaleTime: spec.PreloadStaleTime,
		GCTime:           spec.GCTime,
		ErrorBoundary:    spec.ErrorBoundary,
		NotFoundBoundary: spec.NotFoundBoundary,
		PendingBoundary:  spec.PendingBoundary,
		Meta:             spec.Meta,
	}

	if len(spec.Params) > 0 {
		opts.ParseParams = router.ParamTypes(spec.Params)
	}
	if len(spec.SearchDefaults) > 0 {
		opts.SearchDefaults = search.Normalize(spec.SearchDefaults)
	}
	if spec.SearchSchema != nil {
		v, err := schema.JSONSchema(spec.SearchSchema)
		if err != nil {
			b.fail(name, "searchSchema: %v", err)
		} else {
			opts.ValidateSearch = v
		}
	}

	var mws []search.Middleware
	if len(spec.RetainSearch) > 0 {
		mws = append(mws, search.Retain(spec.RetainSearch...))
	}
	if len(spec.StripSearch) > 0 {
		mws = append(mws, search.Strip(spec.StripSearch...))
	}
	opts.SearchMiddlewares = mws

	if keys := spec.LoaderDeps; len(keys) > 0 {
		opts.LoaderDeps = func(s search.Values) any {
			deps := make(map[string]any, len(keys))
			for _, k := range keys {
				if v, ok := s[k]; ok {
					deps[k] = v
				}
			}
			return deps
		}
	}

	if values := spec.Context; len(values) > 0 {
		opts.Context = func(context.Context, *router.HookArgs) (map[string]any, error) {
			out := make(map[string]any, len(values))
			for k, v := range values {
				out[k] = v
			}
			return out, nil
		}
	}

	opts.BeforeLoad = b.beforeLoad(name, spec)
	opts.Loader = b.loader(name, spec)
	return opts
}

func (b *builder) beforeLoad(name string, spec *RouteSpec) router.BeforeLoadFunc {
	var named router.BeforeLoadFunc
	if spec.BeforeLoad != "" {
		named = b.beforeLoads[spec.BeforeLoad]
		if named == nil {
			b.fail(name, "unknown beforeLoad %q", spec.BeforeLoad)
		}
	}
	rd, notFound := spec.Redirect, spec.NotFound
	if named == nil && rd == nil && !notFound {
		return nil
	}

	return func(ctx context.Context, args *router.HookArgs) (map[string]any, error) {
		var out map[string]any
		if named != nil {
			var err error
			if out, err = named(ctx, args); err != nil {
				return nil, err
			}
		}
		if notFound {
			return nil, router.NotFound("")
		}
		if rd != nil && rd.When.holds(args, out) {
			return nil, router.Redirect(rd.options(args))
		}
		return out, nil
	}
}

func (b *builder) loader(name string, spec *RouteSpec) router.LoaderFunc {
	l := spec.Loader
	if l == nil {
		return nil
	}
	if l.Use != "" {
		fn := b.loaders[l.Use]
		if fn == nil {
			b.fail(name, "unknown loader %q", l.Use)
		}
		return fn
	}

	return func(ctx context.Context, args *router.HookArgs) (any, error) {
		if l.Delay > 0 {
			t := time.NewTimer(l.Delay)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return nil, context.Cause(ctx)
			case <-t.C:
			}
		}
		switch {
		case l.NotFound:
			return nil, router.NotFound("")
		case l.Error != "":
			return nil, errors.New(l.Error)
		}
		return expand(l.Data, args), nil
	}
}

// holds reports whether the redirect fires. A nil condition always holds.
func (c *Condition) holds(args *router.HookArgs, out map[string]any) bool {
	if c == nil {
		return true
	}
	if len(c.MissingSearch) > 0 {
		missing := false
		for _, key := range c.MissingSearch {
			if !args.Location.Search.Has(key) {
				missing = true
				break
			}
		}
		if !missing {
			return false
		}
	}
	if len(c.Search) > 0 {
		got := make(search.Values, len(c.Search))
		for key := range c.Search {
			if v, ok := args.Location.Search[key]; ok {
				got[key] = v
			}
		}
		if !search.Equal(c.Search, got) {
			return false
		}
	}
	for key, want := range c.Context {
		got, ok := out[key]
		if !ok {
			got = args.Context[key]
		}
		if !looseEqual(want, got) {
			return false
		}
	}
	return true
}

// looseEqual compares manifest literals with runtime values: bools by
// truthiness, everything else by string form.
func looseEqual(want, got any) bool {
	if w, ok := want.(bool); ok {
		return cast.ToBool(got) == w
	}
	if want == nil || got == nil {
		return want == got
	}
	return cast.ToString(want) == cast.ToString(got)
}

func (rd *RedirectSpec) options(args *router.HookArgs) router.RedirectOptions {
	opts := router.RedirectOptions{
		To:      rd.To,
		Href:    rd.Href,
		Replace: rd.Replace,
	}
	if rd.Href != "" {
		return opts
	}

	params := make(map[string]string, len(args.Params)+len(rd.Params))
	for k, v := range args.Params {
		params[k] = v
	}
	for k, v := range rd.Params {
		params[k] = v
	}
	opts.Params = params

	if rd.To == "" {
		opts.To = args.Location.Pathname
		opts.Hash = args.Location.Hash
		s := args.Location.Search.Clone()
		for k, v := range search.Normalize(rd.Search) {
			s[k] = v
		}
		opts.Search = s
	} else if len(rd.Search) > 0 {
		opts.Search = search.Normalize(rd.Search)
	}
	return opts
}

// expand copies data, expanding ${name} in strings from the params, then
// the search.
func expand(data any, args *router.HookArgs) any {
	switch v := data.(type) {
	case string:
		return os.Expand(v, func(name string) string {
			if p, ok := args.Params[name]; ok {
				return p
			}
			if s, ok := args.Search[name]; ok {
				return cast.ToString(s)
			}
			return ""
		})
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = expand(val, args)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = expand(val, args)
		}
		return out
	}
	return data
}
