package navigation

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/waypoint/pkg/matchcache"
	"github.com/vango-dev/waypoint/pkg/router"
	"github.com/vango-dev/waypoint/pkg/routepath"
	"github.com/vango-dev/waypoint/pkg/search"
)

// maxFlightRetries bounds how often a navigation re-issues a loader whose
// shared flight was cancelled by its owner.
const maxFlightRetries = 3

// loadResult is the outcome of running the lifecycle for one intent.
type loadResult struct {
	matches  []*Match
	notFound bool
	refetch  []refetchJob
}

// refetchJob is a stale loader to rerun once the navigation committed.
type refetchJob struct {
	match     *Match
	node      *router.Node
	args      *router.HookArgs
	staleTime time.Duration
	gcTime    time.Duration
}

// pendingMatch pairs a match under construction with its route node.
type pendingMatch struct {
	*Match
	node *router.Node
	args *router.HookArgs
}

// load matches the intent's location and runs its lifecycle: context and
// beforeLoad hooks serially from the root, then loaders concurrently. It
// returns the redirect or not-found signals the hooks raised, a
// *CancelledError when ctx ends, and a *NavigationError for a hook error no
// error boundary covers.
func (r *Router) load(ctx context.Context, intent *Intent) (*loadResult, error) {
	if err := intent.advance(PhaseLoading); err != nil {
		r.logger.Error("navigation state", "error", err)
	}

	prev := r.State()
	matches, anchor, err := r.buildMatches(ctx, intent, prev)
	if err != nil {
		return nil, err
	}

	if !intent.Preload {
		r.emit(Event{
			Type:         EventBeforeLoad,
			IntentID:     intent.ID,
			Generation:   intent.Generation,
			FromLocation: prev.Location,
			ToLocation:   intent.Location,
			PathChanged:  prev.Location.Pathname != intent.Location.Pathname,
			HrefChanged:  prev.Location.Href != intent.Location.Href,
		})
	}

	// Serial phase. limit is the number of matches whose loaders may run.
	limit := len(matches)
	var notFound *router.NotFoundError
	if anchor >= 0 {
		notFound = &router.NotFoundError{Pathname: intent.Location.Pathname, RouteID: matches[anchor].RouteID}
	}

	values := maps.Clone(r.cfg.rootCtx)
	if values == nil {
		values = map[string]any{}
	}
	for i, m := range matches {
		if ctx.Err() != nil {
			return nil, cancelled(ctx, intent)
		}

		err := m.SearchError
		if err != nil {
			err = &HookError{RouteID: m.RouteID, Step: StepValidateSearch, Err: err}
		} else {
			values, err = r.runSerial(ctx, intent, m, values)
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil, cancelled(ctx, intent)
		}

		if _, ok := router.AsRedirect(err); ok {
			m.Status = MatchRedirected
			return nil, err
		}
		if nf, ok := router.AsNotFound(err); ok {
			limit = i
			if a := anchorIndex(matches, nf.RouteID, i); anchor < 0 || a < anchor {
				anchor = a
				notFound = anchoredNotFound(nf, intent, matches[a].RouteID)
			}
			break
		}

		m.Status = MatchError
		m.Error = err
		limit = i
		for _, d := range matches[i+1:] {
			d.Status = MatchError
			d.Error = fmt.Errorf("%w: %s", ErrAncestorFailed, m.RouteID)
		}
		break
	}

	// Loader phase.
	var (
		g        errgroup.Group
		outcomes = make([]error, limit)
		refetch  = make([]*refetchJob, limit)
	)
	if r.cfg.loaderConcurrency > 0 {
		g.SetLimit(r.cfg.loaderConcurrency)
	}
	for i := 0; i < limit; i++ {
		m := matches[i]
		g.Go(func() error {
			refetch[i], outcomes[i] = r.loadMatch(ctx, intent, m)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return nil, cancelled(ctx, intent)
	}

	for i, err := range outcomes {
		if rd, ok := router.AsRedirect(err); ok {
			matches[i].Status = MatchRedirected
			return nil, rd
		}
	}
	for i, err := range outcomes {
		if nf, ok := router.AsNotFound(err); ok {
			if a := anchorIndex(matches, nf.RouteID, i); anchor < 0 || a < anchor {
				anchor = a
				notFound = anchoredNotFound(nf, intent, matches[a].RouteID)
			}
			break
		}
	}

	if anchor >= 0 {
		for _, m := range matches[anchor:] {
			if m.Status != MatchError {
				m.Status = MatchNotFound
				m.Error = notFound
			}
		}
	}

	if !r.cfg.errorBoundary {
		if m := uncoveredError(matches); m != nil {
			return nil, &NavigationError{IntentID: intent.ID, Href: intent.Location.Href, RouteID: m.RouteID, Err: m.Error}
		}
	}

	res := &loadResult{notFound: anchor >= 0}
	res.matches = make([]*Match, len(matches))
	for i, m := range matches {
		res.matches[i] = stabilize(prev.matchByID(m.ID), m.Match)
	}
	for i, job := range refetch {
		if job != nil {
			job.match = res.matches[i]
			res.refetch = append(res.refetch, *job)
		}
	}
	return res, nil
}

// buildMatches resolves the route chain, params, search and match ids. The
// returned anchor is the index of the not-found anchor, or -1.
func (r *Router) buildMatches(ctx context.Context, intent *Intent, prev *State) ([]*pendingMatch, int, error) {
	res, err := r.tree.Match(intent.Location.Pathname)
	if err != nil {
		return nil, -1, &NavigationError{IntentID: intent.ID, Href: intent.Location.Href, Err: err}
	}
	chain := res.Chain
	anchor := -1
	if res.NotFound {
		anchor = res.Anchor
		chain = chain[:anchor+1]
	}

	matches := make([]*pendingMatch, 0, len(chain))
	parentSearch := intent.Location.Search
	for _, mr := range chain {
		node := mr.Node
		opts := node.Options()

		m := &Match{
			RouteID:      node.ID,
			FullPath:     node.FullPath,
			Pathname:     matchPathname(node.FullPath, mr.Params),
			Params:       mr.Params,
			ParsedParams: mr.ParsedParams,
			Status:       MatchPending,
			Preload:      intent.Preload,
		}
		pm := &pendingMatch{Match: m, node: node}

		in := search.ApplyDefaults(parentSearch, opts.SearchDefaults)
		m.Search = in
		if opts.ValidateSearch != nil {
			pm.args = r.hookArgs(m, intent, nil)
			pm.args.Search = in.Clone()
			out, err := r.runStep(ctx, &Step{
				Kind:     StepValidateSearch,
				RouteID:  node.ID,
				IntentID: intent.ID,
				Preload:  intent.Preload,
				Args:     pm.args,
			}, func(context.Context) (any, error) {
				return opts.ValidateSearch.ValidateSearch(in.Clone())
			})
			if err != nil {
				m.SearchError = err
			} else if v, ok := out.(search.Values); ok {
				m.Search = search.Merge(in, v)
			}
		}
		parentSearch = m.Search

		if opts.LoaderDeps != nil {
			m.LoaderDeps = opts.LoaderDeps(m.Search.Clone())
		}
		m.ID = matchcache.Key(node.ID, m.Params, m.LoaderDeps)
		if opts.CacheKey != nil {
			if key := opts.CacheKey(r.hookArgs(m, intent, nil)); key != "" {
				m.ID = key
			}
		}

		m.Cause = router.CauseEnter
		if p := prev.matchByID(m.ID); p != nil {
			m.Cause = router.CauseStay
			m.Search = search.ReplaceEqualValues(p.Search, m.Search)
		}
		pm.args = r.hookArgs(m, intent, nil)
		matches = append(matches, pm)
	}

	// A search error in an ancestor spoils the search of its descendants.
	for i := 1; i < len(matches); i++ {
		if matches[i].SearchError == nil && matches[i-1].SearchError != nil {
			matches[i].SearchError = fmt.Errorf("%w: %s", ErrAncestorFailed, matches[i-1].RouteID)
		}
	}
	return matches, anchor, nil
}

// runSerial runs the context and beforeLoad hooks of m, returning the route
// context its descendants inherit.
func (r *Router) runSerial(ctx context.Context, intent *Intent, m *pendingMatch, values map[string]any) (map[string]any, error) {
	opts := m.node.Options()
	m.args.Context = values

	for _, hook := range []struct {
		kind StepKind
		fn   func(ctx context.Context, args *router.HookArgs) (map[string]any, error)
	}{
		{StepContext, opts.Context},
		{StepBeforeLoad, opts.BeforeLoad},
	} {
		if hook.fn == nil {
			continue
		}
		args := m.args
		out, err := r.runStep(ctx, &Step{
			Kind:     hook.kind,
			RouteID:  m.RouteID,
			MatchID:  m.ID,
			IntentID: intent.ID,
			Preload:  intent.Preload,
			Args:     args,
		}, func(ctx context.Context) (any, error) {
			return hook.fn(ctx, args)
		})
		if err != nil {
			if isControlSignal(err) {
				return values, err
			}
			return values, &HookError{RouteID: m.RouteID, Step: hook.kind, Err: err}
		}
		if add, ok := out.(map[string]any); ok && len(add) > 0 {
			next := maps.Clone(values)
			maps.Copy(next, add)
			values = next
		}
		m.args.Context = values
	}

	m.Context = values
	return values, nil
}

// loadMatch resolves the loader data of m from the cache or its loader. A
// non-nil job asks for a background refetch after commit.
func (r *Router) loadMatch(ctx context.Context, intent *Intent, m *pendingMatch) (*refetchJob, error) {
	opts := m.node.Options()
	now := r.cfg.now()
	if opts.Loader == nil {
		m.Status = MatchResolved
		m.UpdatedAt = now
		return nil, nil
	}

	staleTime := resolveDuration(opts.StaleTime, r.cfg.staleTime)
	gcTime := resolveDuration(opts.GCTime, r.cfg.gcTime)
	if intent.Preload {
		staleTime = resolveDuration(opts.PreloadStaleTime, r.cfg.preloadStaleTime)
		gcTime = resolveDuration(opts.GCTime, r.cfg.preloadGCTime)
	}

	args := *m.args
	args.Context = m.Context

	if e, ok := r.cache.Get(m.ID); ok {
		// A navigation adopts preloaded data while it is preload-fresh.
		fresh := staleTime
		adopt := e.Preload && !intent.Preload
		if adopt {
			fresh = resolveDuration(opts.PreloadStaleTime, r.cfg.preloadStaleTime)
		}
		switch {
		case e.Invalid:
			m.Invalid = true
		case now.Sub(e.UpdatedAt) < fresh:
			m.LoaderData = e.Data
			m.UpdatedAt = e.UpdatedAt
			m.Status = MatchResolved
			if adopt {
				e.Preload = false
				e.StaleTime = staleTime
				e.GCTime = gcTime
				e.Generation = intent.Generation
				r.cache.Put(m.ID, e)
			}
			return nil, nil
		case !intent.Preload:
			m.LoaderData = e.Data
			m.UpdatedAt = e.UpdatedAt
			m.Status = MatchResolved
			m.IsFetching = true
			return &refetchJob{node: m.node, args: &args, staleTime: staleTime, gcTime: gcTime}, nil
		}
	}

	data, err := r.fetch(ctx, intent, m.node, m.ID, &args, staleTime, gcTime, false)
	if err != nil {
		if isControlSignal(err) {
			return nil, err
		}
		m.Status = MatchError
		m.Error = &HookError{RouteID: m.RouteID, Step: StepLoader, Err: err}
		return nil, nil
	}
	m.LoaderData = data
	m.Invalid = false
	m.Status = MatchResolved
	m.UpdatedAt = r.cfg.now()
	return nil, nil
}

// fetch runs a loader, sharing one flight between concurrent callers of the
// same match id. A waiter whose flight was cancelled by its owner retries
// with its own context.
func (r *Router) fetch(ctx context.Context, intent *Intent, node *router.Node, id string, args *router.HookArgs, staleTime, gcTime time.Duration, background bool) (any, error) {
	loader := node.Options().Loader
	run := func() (any, error) {
		data, err := r.runStep(ctx, &Step{
			Kind:       StepLoader,
			RouteID:    node.ID,
			MatchID:    id,
			IntentID:   intent.ID,
			Preload:    intent.Preload,
			Background: background,
			Args:       args,
		}, func(ctx context.Context) (any, error) {
			return loader(ctx, args)
		})
		if err != nil {
			return nil, err
		}
		r.cache.Put(id, matchcache.Entry{
			RouteID:    node.ID,
			Data:       data,
			StaleTime:  staleTime,
			GCTime:     gcTime,
			Generation: intent.Generation,
			Preload:    intent.Preload,
		})
		return data, nil
	}

	for attempt := 0; ; attempt++ {
		ch := r.loaders.DoChan(id, run)
		select {
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		case res := <-ch:
			if res.Err != nil && res.Shared && isCancellation(res.Err) && ctx.Err() == nil && attempt < maxFlightRetries {
				continue
			}
			return res.Val, res.Err
		}
	}
}

// runStep passes a hook invocation through the middleware chain, turning
// panics into errors.
func (r *Router) runStep(ctx context.Context, step *Step, fn func(ctx context.Context) (any, error)) (any, error) {
	err := ComposeMiddleware(ctx, step, r.cfg.mw, func(ctx context.Context) (err error) {
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("hook panic",
					"route", step.RouteID,
					"step", step.Kind,
					"panic", p,
					"stack", string(debug.Stack()))
				err = fmt.Errorf("%w: %v", ErrHookPanic, p)
			}
		}()
		res, err := fn(ctx)
		step.Result = res
		return err
	})
	return step.Result, err
}

func (r *Router) hookArgs(m *Match, intent *Intent, values map[string]any) *router.HookArgs {
	cause := m.Cause
	if intent.Preload {
		cause = router.CausePreload
	}
	return &router.HookArgs{
		RouteID:      m.RouteID,
		Location:     intent.Location,
		Params:       m.Params,
		ParsedParams: m.ParsedParams,
		Search:       m.Search,
		Context:      values,
		Deps:         m.LoaderDeps,
		Cause:        cause,
		Preload:      intent.Preload,
	}
}

// =============================================================================
// Background refetch
// =============================================================================

func (r *Router) startRefetches(intent *Intent, jobs []refetchJob) {
	for _, job := range jobs {
		r.bg.Add(1)
		go func() {
			defer r.bg.Done()
			data, err := r.fetch(r.ctx, intent, job.node, job.match.ID, job.args, job.staleTime, job.gcTime, true)
			if err != nil && !isCancellation(err) {
				r.logger.Warn("background refetch failed", "route", job.match.RouteID, "match", job.match.ID, "error", err)
			}
			r.finishRefetch(job.match.ID, data, err)
		}()
	}
}

// finishRefetch publishes refetched data if the match is still committed.
func (r *Router) finishRefetch(id string, data any, err error) {
	r.commitMu.Lock()
	r.mu.Lock()
	idx := -1
	for i, m := range r.state.Matches {
		if m.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		r.commitMu.Unlock()
		return
	}

	old := r.state.Matches[idx]
	m := old.clone()
	m.IsFetching = false
	if err == nil {
		m.LoaderData = search.ReplaceEqual(old.LoaderData, data)
		m.UpdatedAt = r.cfg.now()
		m.Invalid = false
	}
	s := r.state.clone()
	s.Matches = append([]*Match(nil), s.Matches...)
	s.Matches[idx] = m
	if err == nil && !s.holds(id) && r.cache.Retain(id) {
		s.retained = append(append([]string(nil), s.retained...), id)
	}
	r.state = s
	r.events.enqueueState(s)
	r.mu.Unlock()
	r.commitMu.Unlock()
	r.events.drain()
}

// =============================================================================
// Helpers
// =============================================================================

func cancelled(ctx context.Context, intent *Intent) error {
	return &CancelledError{IntentID: intent.ID, Cause: context.Cause(ctx)}
}

func isControlSignal(err error) bool {
	return errors.Is(err, router.ErrRedirect) || errors.Is(err, router.ErrNotFound)
}

func isCancellation(err error) bool {
	return IsCancelled(err) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrSuperseded) ||
		errors.Is(err, ErrRouterClosed)
}

// anchorIndex resolves where a not-found raised at index i is anchored: the
// named route when it is in the chain, else the raising match.
func anchorIndex(matches []*pendingMatch, routeID string, i int) int {
	if routeID != "" {
		for j, m := range matches[:i+1] {
			if m.RouteID == routeID {
				return j
			}
		}
	}
	return i
}

func anchoredNotFound(nf *router.NotFoundError, intent *Intent, routeID string) *router.NotFoundError {
	c := *nf
	if c.Pathname == "" {
		c.Pathname = intent.Location.Pathname
	}
	c.RouteID = routeID
	return &c
}

// uncoveredError returns the first errored match without an error boundary
// on itself or an ancestor.
func uncoveredError(matches []*pendingMatch) *pendingMatch {
	covered := false
	for _, m := range matches {
		if m.node.Options().ErrorBoundary {
			covered = true
		}
		if m.Status == MatchError && !covered && !errors.Is(m.Error, ErrAncestorFailed) {
			return m
		}
	}
	return nil
}

// matchPathname interpolates a route's full path with the bound params.
func matchPathname(fullPath string, params map[string]string) string {
	p, _, err := routepath.InterpolatePath(fullPath, params)
	if err != nil || p == "" {
		return fullPath
	}
	return p
}

// stabilize returns prev when next carries the same observable content, so
// unchanged matches keep their identity across commits.
func stabilize(prev, next *Match) *Match {
	if prev == nil {
		return next
	}
	next.LoaderData = search.ReplaceEqual(prev.LoaderData, next.LoaderData)
	if prev.Status == next.Status &&
		prev.Error == next.Error &&
		prev.Cause == next.Cause &&
		prev.IsFetching == next.IsFetching &&
		prev.Invalid == next.Invalid &&
		prev.Pathname == next.Pathname &&
		reflect.DeepEqual(prev.Params, next.Params) &&
		reflect.DeepEqual(prev.Search, next.Search) &&
		reflect.DeepEqual(prev.Context, next.Context) &&
		reflect.DeepEqual(prev.LoaderData, next.LoaderData) {
		return prev
	}
	return next
}

func (s *State) matchByID(id string) *Match {
	if s == nil {
		return nil
	}
	for _, m := range s.Matches {
		if m.ID == id {
			return m
		}
	}
	return nil
}
