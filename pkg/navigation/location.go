package navigation

import (
	"fmt"
	"strings"

	"github.com/vango-dev/waypoint/pkg/router"
	"github.com/vango-dev/waypoint/pkg/routepath"
	"github.com/vango-dev/waypoint/pkg/search"
)

// NavigateOptions describes a navigation target.
type NavigateOptions struct {
	// To is an absolute path, a path relative to From ("../edit"), or a route
	// pattern interpolated with Params ("/posts/$postId"). Empty means From.
	To string

	// From is the base of a relative To. Default: the current pathname.
	From string

	// Params fill the params of To. Nil reuses the current params.
	Params map[string]string

	// Search is the target search. SearchFunc, when set, derives it from
	// the current search instead. With neither, KeepSearch keeps the
	// current search and otherwise the target has none.
	Search     search.Values
	SearchFunc func(current search.Values) search.Values
	KeepSearch bool

	Hash  string
	State map[string]any

	// Href is a literal target including query and hash. It bypasses To,
	// Params and Search.
	Href string

	Replace bool

	// IgnoreBlocker skips the history blockers.
	IgnoreBlocker bool
}

// BuildLocation resolves opts against the current state without navigating.
// Search middlewares of the routes matching the target run in root-first
// order, then default values are stripped unless a route writes defaults.
func (r *Router) BuildLocation(opts NavigateOptions) (router.Location, error) {
	current := r.State()
	return r.buildLocation(current, opts)
}

func (r *Router) buildLocation(current *State, opts NavigateOptions) (router.Location, error) {
	if opts.Href != "" {
		return r.parseHref(opts.Href, opts.State)
	}

	pathname, err := r.resolvePath(current, opts)
	if err != nil {
		return router.Location{}, err
	}

	var next search.Values
	switch {
	case opts.SearchFunc != nil:
		next = opts.SearchFunc(current.Location.Search.Clone())
	case opts.Search != nil:
		next = opts.Search.Clone()
	case opts.KeepSearch:
		next = current.Location.Search.Clone()
	default:
		next = search.Values{}
	}
	if next == nil {
		next = search.Values{}
	}

	next = r.applySearchMiddlewares(pathname, next, current.Location.Search)

	loc := router.Location{
		Pathname: pathname,
		Search:   search.Normalize(next),
		Hash:     strings.TrimPrefix(opts.Hash, "#"),
		State:    opts.State,
	}
	finishLocation(&loc)
	return loc, nil
}

// resolvePath turns To/From/Params into a canonical pathname, then applies
// the trailing slash policy.
func (r *Router) resolvePath(current *State, opts NavigateOptions) (string, error) {
	from := opts.From
	if from == "" {
		from = current.Location.Pathname
	}
	if from == "" {
		from = "/"
	}

	to := opts.To
	switch {
	case to == "":
		to = from
	case !strings.HasPrefix(to, "/"):
		to = from + "/" + to
	}

	if strings.ContainsAny(to, "${") {
		params := opts.Params
		if params == nil {
			if leaf := current.Leaf(); leaf != nil {
				params = leaf.Params
			}
		}
		out, missing, err := routepath.InterpolatePath(to, params)
		if err != nil {
			return "", err
		}
		if missing {
			return "", fmt.Errorf("%w: %s", ErrMissingParams, to)
		}
		to = out
	}

	canon, err := routepath.CanonicalizePath(to)
	if err != nil {
		return "", err
	}
	if canon.Path == "/" {
		return canon.Path, nil
	}
	switch r.cfg.slash {
	case TrailingSlashAlways:
		return canon.Path + "/", nil
	case TrailingSlashPreserve:
		if pathname, _, _ := routepath.SplitHref(to); strings.HasSuffix(pathname, "/") {
			return canon.Path + "/", nil
		}
	}
	return canon.Path, nil
}

// applySearchMiddlewares runs the search middlewares of the routes matching
// pathname, then strips default values.
func (r *Router) applySearchMiddlewares(pathname string, next, prev search.Values) search.Values {
	res, err := r.tree.Match(pathname)
	if err != nil {
		return next
	}

	var mws []search.Middleware
	for _, m := range res.Chain {
		mws = append(mws, m.Node.Options().SearchMiddlewares...)
	}
	if len(mws) > 0 {
		next = search.Chain(mws...)(next, prev)
	}

	for _, m := range res.Chain {
		opts := m.Node.Options()
		if len(opts.SearchDefaults) > 0 && !opts.WriteDefaults {
			next = search.StripDefaults(next, opts.SearchDefaults)
		}
	}
	return next
}

// parseHref parses a literal href, which may carry the basepath.
func (r *Router) parseHref(href string, state map[string]any) (router.Location, error) {
	canon, err := routepath.CanonicalizePath(href)
	if err != nil {
		return router.Location{}, err
	}
	values, err := search.Parse(canon.Query)
	if err != nil {
		return router.Location{}, fmt.Errorf("parse search: %w", err)
	}
	loc := router.Location{
		Pathname: r.stripBasepath(canon.Path),
		Search:   values,
		Hash:     canon.Hash,
		State:    state,
	}
	finishLocation(&loc)
	return loc, nil
}

// finishLocation fills SearchStr and Href from the other fields.
func finishLocation(loc *router.Location) {
	if loc.Search == nil {
		loc.Search = search.Values{}
	}
	loc.SearchStr = ""
	if s := search.Stringify(loc.Search); s != "" {
		loc.SearchStr = "?" + s
	}
	loc.Href = loc.Pathname + loc.SearchStr
	if loc.Hash != "" {
		loc.Href += "#" + loc.Hash
	}
}

// historyHref is the href written to history: loc.Href below the basepath.
func (r *Router) historyHref(loc router.Location) string {
	if r.cfg.basepath == "" || r.cfg.basepath == "/" {
		return loc.Href
	}
	if loc.Pathname == "/" {
		return routepath.TrimPathRight(r.cfg.basepath) + strings.TrimPrefix(loc.Href, "/")
	}
	return routepath.JoinPaths(r.cfg.basepath, loc.Href)
}

func (r *Router) stripBasepath(pathname string) string {
	base := routepath.TrimPathRight(r.cfg.basepath)
	if base == "" || base == "/" {
		return pathname
	}
	if pathname == base {
		return "/"
	}
	if rest, ok := strings.CutPrefix(pathname, base+"/"); ok {
		return "/" + rest
	}
	return pathname
}
