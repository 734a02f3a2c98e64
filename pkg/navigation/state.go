package navigation

import (
	"fmt"
	"time"

	"github.com/vango-dev/waypoint/pkg/router"
	"github.com/vango-dev/waypoint/pkg/search"
)

// MatchStatus is the lifecycle status of a match.
type MatchStatus string

const (
	MatchPending    MatchStatus = "pending"
	MatchResolved   MatchStatus = "resolved"
	MatchError      MatchStatus = "error"
	MatchNotFound   MatchStatus = "notFound"
	MatchRedirected MatchStatus = "redirected"
)

// Match is a route resolved against a concrete location. Matches in a
// committed State are never modified.
type Match struct {
	// ID identifies the match across navigations and keys its cache entry.
	ID string

	RouteID  string
	FullPath string

	// Pathname is the interpolated path of this match.
	Pathname string

	Params       map[string]string
	ParsedParams map[string]any

	// Search is the validated search, merged down from the ancestors.
	Search      search.Values
	SearchError error

	// Context is the route context after this match's context and
	// beforeLoad hooks.
	Context map[string]any

	LoaderDeps any
	LoaderData any

	Status MatchStatus
	Error  error
	Cause  router.Cause

	// Invalid is set when the cached data was invalidated and not yet
	// refetched.
	Invalid bool

	// IsFetching is set while a background refetch of a stale entry runs.
	IsFetching bool

	Preload   bool
	UpdatedAt time.Time
}

func (m *Match) clone() *Match {
	c := *m
	return &c
}

// Status is the router status.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
)

// Phase is the progress of a navigation intent.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhasePending    Phase = "pending"
	PhaseLoading    Phase = "loading"
	PhaseCommitting Phase = "committing"
	PhaseCommitted  Phase = "committed"
	PhaseRedirected Phase = "redirected"
	PhaseCancelled  Phase = "cancelled"
	PhaseErrored    Phase = "errored"
)

// phaseTransitions lists the legal phase changes. A redirected intent is
// replaced by a new intent of the same generation.
var phaseTransitions = map[Phase][]Phase{
	PhaseIdle:       {PhasePending},
	PhasePending:    {PhaseLoading, PhaseCancelled, PhaseErrored},
	PhaseLoading:    {PhaseCommitting, PhaseRedirected, PhaseCancelled, PhaseErrored},
	PhaseCommitting: {PhaseCommitted, PhaseCancelled},
}

// CanTransition reports whether an intent may move from one phase to another.
func CanTransition(from, to Phase) bool {
	for _, p := range phaseTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves p.
func (p Phase) Terminal() bool {
	return len(phaseTransitions[p]) == 0
}

// Intent is a navigation request in flight.
type Intent struct {
	ID string

	// Generation is shared by an intent and the redirects it spawns.
	Generation uint64

	Location router.Location
	Replace  bool
	Preload  bool

	// Redirects counts the redirects followed to reach this intent.
	Redirects int

	// RedirectedFrom is the href that redirected here, if any.
	RedirectedFrom string

	Phase     Phase
	StartedAt time.Time
}

func (i *Intent) advance(to Phase) error {
	if !CanTransition(i.Phase, to) {
		return fmt.Errorf("intent %s: invalid phase transition %s -> %s", i.ID, i.Phase, to)
	}
	i.Phase = to
	return nil
}

// State is an immutable snapshot of the router.
type State struct {
	Status Status

	// Location is the committed location.
	Location router.Location

	// Matches is the committed chain, root first.
	Matches []*Match

	// Pending is the navigation in flight, if any.
	Pending *Intent

	// Generation of the navigation that produced Matches.
	Generation uint64

	// StatusCode is an HTTP status hint: 200, or 404 when the chain ends
	// in a not-found match.
	StatusCode int

	// NotFound is set when the chain carries a not-found outcome.
	NotFound bool

	// retained lists the match ids holding a cache reference for this
	// state. A match whose load failed has no entry to reference.
	retained []string
}

// Leaf returns the deepest match, or nil.
func (s *State) Leaf() *Match {
	if len(s.Matches) == 0 {
		return nil
	}
	return s.Matches[len(s.Matches)-1]
}

// Match returns the committed match of a route, or nil.
func (s *State) Match(routeID string) *Match {
	for _, m := range s.Matches {
		if m.RouteID == routeID {
			return m
		}
	}
	return nil
}

// RouteIDs lists the route ids of the committed chain.
func (s *State) RouteIDs() []string {
	ids := make([]string, len(s.Matches))
	for i, m := range s.Matches {
		ids[i] = m.RouteID
	}
	return ids
}

func (s *State) clone() *State {
	c := *s
	return &c
}

func (s *State) holds(id string) bool {
	for _, r := range s.retained {
		if r == id {
			return true
		}
	}
	return false
}
