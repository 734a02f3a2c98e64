package navigation

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/vango-dev/waypoint/pkg/matchcache"
	"github.com/vango-dev/waypoint/pkg/router"
)

// Router drives navigations over a route tree. Only the most recent
// navigation may commit; starting one cancels the one in flight.
type Router struct {
	tree    *router.Tree
	cfg     config
	logger  *slog.Logger
	cache   *matchcache.Cache
	history History
	events  *emitter

	loaders singleflight.Group
	preload *preloadGate

	// ctx lives as long as the router; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup

	mu         sync.Mutex
	state      *State
	generation uint64
	cancelNav  context.CancelCauseFunc
	closed     bool

	// commitMu orders commits, their history writes and their event
	// enqueueing.
	commitMu sync.Mutex
	unlisten func()
}

// New creates a router over tree. The initial state holds the history
// location with no matches; call Load to resolve it.
func New(tree *router.Tree, opts ...Option) *Router {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.history == nil {
		cfg.history = NewMemoryHistory()
	}
	if cfg.cache == nil {
		cfg.cache = matchcache.New(matchcache.WithClock(cfg.now), matchcache.WithLogger(cfg.logger))
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		tree:    tree,
		cfg:     cfg,
		logger:  cfg.logger,
		cache:   cfg.cache,
		history: cfg.history,
		events:  newEmitter(cfg.logger),
		preload: newPreloadGate(cfg.preloadRate, cfg.preloadConcurrency, cfg.now),
		ctx:     ctx,
		cancel:  cancel,
	}

	entry := r.history.Location()
	loc, err := r.parseHref(entry.Href, entry.State)
	if err != nil {
		r.logger.Warn("invalid initial location", "href", entry.Href, "error", err)
		loc, _ = r.parseHref("/", nil)
	}
	r.state = &State{Status: StatusIdle, Location: loc, StatusCode: http.StatusOK}

	r.unlisten = r.history.Listen(r.onHistory)
	return r
}

// Tree returns the route tree.
func (r *Router) Tree() *router.Tree { return r.tree }

// Cache returns the match cache.
func (r *Router) Cache() *matchcache.Cache { return r.cache }

// History returns the history the router commits to.
func (r *Router) History() History { return r.history }

// State returns the current snapshot.
func (r *Router) State() *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Subscribe registers fn for events of type t and returns a function that
// removes it. Events are delivered one at a time in the order they were
// raised; fn may navigate.
//
// Deliveries run on the goroutine that raised them unless another goroutine
// is already delivering. In that case they are queued and run on that
// goroutine, so Navigate may return before its own EventResolved callbacks
// have run. Callers that need them first must wait on the callback.
func (r *Router) Subscribe(t EventType, fn func(Event)) func() {
	return r.events.subscribe(t, fn)
}

// SubscribeState registers fn for every new state snapshot. Snapshots
// share the queue and delivery goroutine rules of Subscribe.
func (r *Router) SubscribeState(fn func(*State)) func() {
	return r.events.subscribeState(fn)
}

// WatchState is SubscribeState that first delivers the current snapshot.
// Registration and the snapshot are taken together, so fn sees every
// later commit exactly once and never an older state after a newer one.
func (r *Router) WatchState(fn func(*State)) func() {
	r.mu.Lock()
	unsub := r.events.subscribeStateFrom(fn, r.state)
	r.mu.Unlock()
	r.events.drain()
	return unsub
}

// EmitRendered signals that the view finished rendering the current state.
func (r *Router) EmitRendered() {
	s := r.State()
	r.events.enqueueEvent(Event{
		Type:         EventRendered,
		Generation:   s.Generation,
		FromLocation: s.Location,
		ToLocation:   s.Location,
		State:        s,
	})
	r.events.drain()
}

// Navigate navigates to opts and blocks until the navigation commits. It
// returns a *CancelledError when a newer navigation, ctx or Close stops it
// first, and a *NavigationError when it fails without committing, wrapping
// ErrBlocked when a history blocker rejected it.
func (r *Router) Navigate(ctx context.Context, opts NavigateOptions) error {
	loc, err := r.BuildLocation(opts)
	if err != nil {
		href := opts.Href
		if href == "" {
			href = opts.To
		}
		return &NavigationError{Href: href, Err: err}
	}
	if !opts.IgnoreBlocker && r.blocked(ctx, loc, opts.Replace) {
		return &NavigationError{Href: loc.Href, Err: ErrBlocked}
	}
	return r.navigate(ctx, loc, opts.Replace, true)
}

// Block registers a history blocker consulted by Navigate and returns a
// function that removes it.
func (r *Router) Block(b Blocker) func() { return r.history.Block(b) }

// blocked asks the history blockers, in order, about a navigation to loc.
// A blocked navigation never reaches pending.
func (r *Router) blocked(ctx context.Context, loc router.Location, replace bool) bool {
	blockers := r.history.Blockers()
	if len(blockers) == 0 {
		return false
	}
	tx := Transition{From: r.State().Location, To: loc, Action: ActionPush}
	if replace {
		tx.Action = ActionReplace
	}
	for _, b := range blockers {
		if b(ctx, tx) {
			r.logger.Debug("navigation blocked", "from", tx.From.Href, "to", loc.Href)
			return true
		}
	}
	return false
}

// Load resolves the current history location again, e.g. after the initial
// construction or an invalidation.
func (r *Router) Load(ctx context.Context) error {
	entry := r.history.Location()
	loc, err := r.parseHref(entry.Href, entry.State)
	if err != nil {
		return &NavigationError{Href: entry.Href, Err: err}
	}
	return r.navigate(ctx, loc, true, false)
}

// Preload runs the lifecycle of a target without committing it, warming
// the match cache, and returns the matches it would produce. Redirects are
// followed. Preloads beyond the configured limits fail with
// ErrPreloadDropped.
func (r *Router) Preload(ctx context.Context, opts NavigateOptions) ([]*Match, error) {
	r.mu.Lock()
	closed, gen, current := r.closed, r.generation, r.state
	r.mu.Unlock()
	if closed {
		return nil, ErrRouterClosed
	}
	if !r.preload.enter() {
		r.logger.Debug("preload dropped", "to", opts.To, "href", opts.Href)
		return nil, ErrPreloadDropped
	}
	defer r.preload.leave()

	loc, err := r.buildLocation(current, opts)
	if err != nil {
		return nil, err
	}

	pctx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(r.ctx, func() { cancel(ErrRouterClosed) })
	defer func() {
		stop()
		cancel(nil)
	}()

	intent := r.newIntent(gen, loc, false, true)
	for {
		_ = intent.advance(PhasePending)
		res, err := r.load(pctx, intent)
		if rd, ok := router.AsRedirect(err); ok && pctx.Err() == nil {
			next, rerr := r.followRedirect(intent, rd)
			if rerr != nil {
				return nil, rerr
			}
			intent = next
			continue
		}
		if err != nil {
			return nil, err
		}
		r.logger.Debug("preloaded", "href", intent.Location.Href, "matches", len(res.matches))
		return res.matches, nil
	}
}

// MatchRoutes resolves href to matches without running any hook other than
// search validation. It reports what a navigation would load.
func (r *Router) MatchRoutes(ctx context.Context, href string) ([]*Match, error) {
	loc, err := r.parseHref(href, nil)
	if err != nil {
		return nil, err
	}
	intent := r.newIntent(0, loc, false, false)
	matches, anchor, err := r.buildMatches(ctx, intent, r.State())
	if err != nil {
		return nil, err
	}
	out := make([]*Match, len(matches))
	for i, m := range matches {
		if anchor >= 0 && i >= anchor {
			m.Status = MatchNotFound
		}
		out[i] = m.Match
	}
	return out, nil
}

// Invalidate marks the cache entries matching filter invalid (all of them
// when filter is nil) and reloads the current location, refetching every
// invalidated match.
func (r *Router) Invalidate(ctx context.Context, filter func(matchcache.Entry) bool) error {
	n := r.cache.Invalidate(filter)
	r.logger.Debug("invalidated matches", "count", n)
	return r.Load(ctx)
}

// AddRoutes adds routes below parentID at runtime. Cached data of the
// parent's subtree is invalidated.
func (r *Router) AddRoutes(parentID string, routes ...*router.Route) error {
	if err := r.tree.AddRoutes(parentID, routes...); err != nil {
		return err
	}
	ids := r.subtree(parentID)
	r.cache.Invalidate(func(e matchcache.Entry) bool { return ids[e.RouteID] })
	r.logger.Info("routes added", "parent", parentID, "count", len(routes))
	return nil
}

// RemoveRoute removes a route and its descendants at runtime, dropping
// their cached data. The committed state is left as is until the next
// navigation.
func (r *Router) RemoveRoute(id string) error {
	ids := r.subtree(id)
	if err := r.tree.RemoveRoute(id); err != nil {
		return err
	}
	for _, e := range r.cache.Entries() {
		if ids[e.RouteID] {
			r.cache.Delete(e.Key)
		}
	}
	r.logger.Info("route removed", "route", id, "subtree", len(ids))
	return nil
}

func (r *Router) subtree(id string) map[string]bool {
	ids := map[string]bool{}
	var walk func(id string)
	walk = func(id string) {
		ids[id] = true
		for _, c := range r.tree.Children(id) {
			walk(c.ID)
		}
	}
	if r.tree.Node(id) != nil {
		walk(id)
	}
	return ids
}

// Close cancels the navigation in flight and background refetches and
// stops following history. Further navigations fail with ErrRouterClosed.
func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	if r.unlisten != nil {
		r.unlisten()
	}
	return nil
}

// WaitBackground blocks until background work (stale refetches and
// history-driven navigations) has finished.
func (r *Router) WaitBackground() {
	r.bg.Wait()
}

// onHistory loads locations the history moved to on its own.
func (r *Router) onHistory(entry HistoryEntry, action HistoryAction) {
	if action != ActionPop {
		return
	}
	loc, err := r.parseHref(entry.Href, entry.State)
	if err != nil {
		r.logger.Warn("invalid history location", "href", entry.Href, "error", err)
		return
	}
	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		if err := r.navigate(r.ctx, loc, true, false); err != nil && !IsCancelled(err) {
			r.logger.Warn("history navigation failed", "href", loc.Href, "error", err)
		}
	}()
}

// =============================================================================
// Navigation
// =============================================================================

func (r *Router) newIntent(gen uint64, loc router.Location, replace, preload bool) *Intent {
	return &Intent{
		ID:         uuid.NewString(),
		Generation: gen,
		Location:   loc,
		Replace:    replace,
		Preload:    preload,
		Phase:      PhaseIdle,
		StartedAt:  r.cfg.now(),
	}
}

func (r *Router) navigate(ctx context.Context, loc router.Location, replace, writeHistory bool) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRouterClosed
	}
	r.generation++
	gen := r.generation
	if r.cancelNav != nil {
		r.cancelNav(ErrSuperseded)
	}
	navCtx, cancel := context.WithCancelCause(ctx)
	r.cancelNav = cancel
	r.mu.Unlock()

	stop := context.AfterFunc(r.ctx, func() { cancel(ErrRouterClosed) })
	defer func() {
		stop()
		cancel(nil)
	}()

	intent := r.newIntent(gen, loc, replace, false)
	for {
		r.begin(intent)

		res, err := r.load(navCtx, intent)
		if rd, ok := router.AsRedirect(err); ok && navCtx.Err() == nil {
			next, rerr := r.followRedirect(intent, rd)
			if rerr != nil {
				return r.fail(intent, "", rerr)
			}
			intent = next
			continue
		}
		if err != nil {
			if IsCancelled(err) || navCtx.Err() != nil {
				return r.finishCancelled(navCtx, intent)
			}
			var nerr *NavigationError
			routeID := ""
			if asNavigationError(err, &nerr) {
				routeID, err = nerr.RouteID, nerr.Err
			}
			return r.fail(intent, routeID, err)
		}
		return r.commit(navCtx, intent, res, writeHistory)
	}
}

// begin publishes intent as pending and announces it.
func (r *Router) begin(intent *Intent) {
	if err := intent.advance(PhasePending); err != nil {
		r.logger.Error("navigation state", "error", err)
	}

	r.mu.Lock()
	from := r.state.Location
	if r.generation == intent.Generation {
		s := r.state.clone()
		s.Status = StatusPending
		pending := *intent
		s.Pending = &pending
		r.state = s
		r.events.enqueueState(s)
	}
	r.events.enqueueEvent(Event{
		Type:         EventBeforeNavigate,
		IntentID:     intent.ID,
		Generation:   intent.Generation,
		FromLocation: from,
		ToLocation:   intent.Location,
		PathChanged:  from.Pathname != intent.Location.Pathname,
		HrefChanged:  from.Href != intent.Location.Href,
	})
	r.mu.Unlock()
	r.events.drain()

	r.logger.Debug("navigation started",
		"intent", intent.ID,
		"generation", intent.Generation,
		"href", intent.Location.Href,
		"redirects", intent.Redirects)
}

// followRedirect turns a redirect signal into the next intent of the same
// generation.
func (r *Router) followRedirect(intent *Intent, rd *router.RedirectError) (*Intent, error) {
	if err := intent.advance(PhaseRedirected); err != nil {
		r.logger.Error("navigation state", "error", err)
	}

	if !intent.Preload {
		r.emit(Event{
			Type:         EventRedirected,
			IntentID:     intent.ID,
			Generation:   intent.Generation,
			FromLocation: intent.Location,
			Err:          rd,
		})
	}

	if intent.Redirects+1 > r.cfg.maxRedirects {
		return nil, ErrRedirectLoop
	}
	loc, err := r.redirectLocation(intent, rd)
	if err != nil {
		return nil, err
	}

	next := r.newIntent(intent.Generation, loc, intent.Replace || rd.Options.Replace, intent.Preload)
	next.Redirects = intent.Redirects + 1
	next.RedirectedFrom = intent.Location.Href
	r.logger.Debug("navigation redirected",
		"intent", intent.ID,
		"from", intent.Location.Href,
		"to", loc.Href)
	return next, nil
}

func (r *Router) redirectLocation(intent *Intent, rd *router.RedirectError) (router.Location, error) {
	o := rd.Options
	from := &State{Location: intent.Location}
	return r.buildLocation(from, NavigateOptions{
		To:     o.To,
		Params: o.Params,
		Search: o.Search,
		Hash:   o.Hash,
		State:  o.State,
		Href:   o.Href,
	})
}

// commit replaces the state with the loaded matches unless a newer
// navigation started meanwhile.
func (r *Router) commit(ctx context.Context, intent *Intent, res *loadResult, writeHistory bool) error {
	r.commitMu.Lock()

	r.mu.Lock()
	if ctx.Err() != nil || r.generation != intent.Generation {
		r.mu.Unlock()
		r.commitMu.Unlock()
		return r.finishCancelled(ctx, intent)
	}
	if err := intent.advance(PhaseCommitting); err != nil {
		r.logger.Error("navigation state", "error", err)
	}

	prev := r.state
	status := http.StatusOK
	if res.notFound {
		status = http.StatusNotFound
	}
	next := &State{
		Status:     StatusIdle,
		Location:   intent.Location,
		Matches:    res.matches,
		Generation: intent.Generation,
		StatusCode: status,
		NotFound:   res.notFound,
	}
	r.state = next
	_ = intent.advance(PhaseCommitted)

	// Only ids that were actually retained are released.
	for _, m := range next.Matches {
		if r.cache.Retain(m.ID) {
			next.retained = append(next.retained, m.ID)
		}
	}
	for _, id := range prev.retained {
		r.cache.Release(id)
	}

	ev := Event{
		IntentID:     intent.ID,
		Generation:   intent.Generation,
		FromLocation: prev.Location,
		ToLocation:   next.Location,
		PathChanged:  prev.Location.Pathname != next.Location.Pathname,
		HrefChanged:  prev.Location.Href != next.Location.Href,
		State:        next,
	}
	ev.Type = EventLoad
	r.events.enqueueEvent(ev)
	r.events.enqueueState(next)
	ev.Type = EventResolved
	r.events.enqueueEvent(ev)
	r.mu.Unlock()

	if writeHistory {
		href := r.historyHref(next.Location)
		if intent.Replace || r.history.Location().Href == href {
			r.history.Replace(href, next.Location.State)
		} else {
			r.history.Push(href, next.Location.State)
		}
	}
	r.commitMu.Unlock()

	r.logger.Debug("navigation committed",
		"intent", intent.ID,
		"generation", intent.Generation,
		"href", next.Location.Href,
		"matches", len(next.Matches),
		"status", status)

	r.events.drain()
	r.startRefetches(intent, res.refetch)
	return nil
}

// finishCancelled records a navigation stopped before committing. Only an
// explicitly cancelled latest navigation touches the state, clearing its
// pending marker.
func (r *Router) finishCancelled(ctx context.Context, intent *Intent) error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = ErrSuperseded
	}
	_ = intent.advance(PhaseCancelled)

	r.mu.Lock()
	r.clearPendingLocked(intent)
	r.events.enqueueEvent(Event{
		Type:         EventCancelled,
		IntentID:     intent.ID,
		Generation:   intent.Generation,
		FromLocation: r.state.Location,
		ToLocation:   intent.Location,
		Err:          cause,
	})
	r.mu.Unlock()
	r.events.drain()

	r.logger.Debug("navigation cancelled", "intent", intent.ID, "cause", cause)
	return &CancelledError{IntentID: intent.ID, Cause: cause}
}

// fail records a navigation that cannot commit.
func (r *Router) fail(intent *Intent, routeID string, err error) error {
	_ = intent.advance(PhaseErrored)

	r.mu.Lock()
	r.clearPendingLocked(intent)
	r.mu.Unlock()
	r.events.drain()

	r.logger.Warn("navigation failed",
		"intent", intent.ID,
		"href", intent.Location.Href,
		"route", routeID,
		"error", err)
	return &NavigationError{IntentID: intent.ID, Href: intent.Location.Href, RouteID: routeID, Err: err}
}

func (r *Router) clearPendingLocked(intent *Intent) {
	if r.generation != intent.Generation || r.state.Pending == nil {
		return
	}
	s := r.state.clone()
	s.Status = StatusIdle
	s.Pending = nil
	r.state = s
	r.events.enqueueState(s)
}

func (r *Router) emit(ev Event) {
	r.events.enqueueEvent(ev)
	r.events.drain()
}
