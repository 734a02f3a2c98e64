package inspect

import (
	"time"

	"github.com/vango-dev/waypoint/pkg/matchcache"
	"github.com/vango-dev/waypoint/pkg/navigation"
	"github.com/vango-dev/waypoint/pkg/router"
	"github.com/vango-dev/waypoint/pkg/search"
)

// RouteView is a route tree node.
type RouteView struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	FullPath  string `json:"fullPath"`
	Parent    string `json:"parent,omitempty"`
	Depth     int    `json:"depth"`
	HasLoader bool   `json:"hasLoader"`
}

type LocationView struct {
	Href     string        `json:"href"`
	Pathname string        `json:"pathname"`
	Search   search.Values `json:"search,omitempty"`
	Hash     string        `json:"hash,omitempty"`
}

// MatchView is the JSON form of a navigation match.
type MatchView struct {
	ID           string            `json:"id"`
	RouteID      string            `json:"routeId"`
	Pathname     string            `json:"pathname"`
	Params       map[string]string `json:"params,omitempty"`
	ParsedParams map[string]any    `json:"parsedParams,omitempty"`
	Search       search.Values     `json:"search,omitempty"`
	SearchError  string            `json:"searchError,omitempty"`
	Status       string            `json:"status"`
	Error        string            `json:"error,omitempty"`
	LoaderData   any               `json:"loaderData,omitempty"`
	Invalid      bool              `json:"invalid,omitempty"`
	IsFetching   bool              `json:"isFetching,omitempty"`
	Preload      bool              `json:"preload,omitempty"`
	UpdatedAt    *time.Time        `json:"updatedAt,omitempty"`
}

type IntentView struct {
	ID             string       `json:"id"`
	Generation     uint64       `json:"generation"`
	Location       LocationView `json:"location"`
	Phase          string       `json:"phase"`
	Redirects      int          `json:"redirects,omitempty"`
	RedirectedFrom string       `json:"redirectedFrom,omitempty"`
}

// StateView is the JSON form of a router state snapshot.
type StateView struct {
	Status     string       `json:"status"`
	Location   LocationView `json:"location"`
	Matches    []MatchView  `json:"matches"`
	Pending    *IntentView  `json:"pending,omitempty"`
	Generation uint64       `json:"generation"`
	StatusCode int          `json:"statusCode"`
	NotFound   bool         `json:"notFound,omitempty"`
}

type CacheEntryView struct {
	Key        string `json:"key"`
	RouteID    string `json:"routeId"`
	AgeMS      int64  `json:"ageMs"`
	Stale      bool   `json:"stale"`
	Invalid    bool   `json:"invalid,omitempty"`
	Preload    bool   `json:"preload,omitempty"`
	Generation uint64 `json:"generation"`
}

// CacheView reports match cache statistics and entries.
type CacheView struct {
	Stats   matchcache.Stats `json:"stats"`
	Entries []CacheEntryView `json:"entries"`
}

// ErrorView is the body of a failed request.
type ErrorView struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// NewRouteViews lists the routes of t depth first.
func NewRouteViews(t *router.Tree) []RouteView {
	var out []RouteView
	ids := make(map[int]string)
	t.Walk(func(n *router.Node) bool {
		ids[n.Index] = n.ID
		v := RouteView{
			ID:        n.ID,
			Path:      n.Path,
			FullPath:  n.FullPath,
			Depth:     n.Depth,
			HasLoader: n.Route != nil && n.Route.HasLoader(),
		}
		if n.Parent >= 0 {
			v.Parent = ids[n.Parent]
		}
		out = append(out, v)
		return true
	})
	return out
}

func NewLocationView(l router.Location) LocationView {
	return LocationView{Href: l.Href, Pathname: l.Pathname, Search: l.Search, Hash: l.Hash}
}

func NewMatchViews(matches []*navigation.Match) []MatchView {
	out := make([]MatchView, len(matches))
	for i, m := range matches {
		v := MatchView{
			ID:           m.ID,
			RouteID:      m.RouteID,
			Pathname:     m.Pathname,
			Params:       m.Params,
			ParsedParams: m.ParsedParams,
			Search:       m.Search,
			Status:       string(m.Status),
			LoaderData:   m.LoaderData,
			Invalid:      m.Invalid,
			IsFetching:   m.IsFetching,
			Preload:      m.Preload,
		}
		if m.SearchError != nil {
			v.SearchError = m.SearchError.Error()
		}
		if m.Error != nil {
			v.Error = m.Error.Error()
		}
		if !m.UpdatedAt.IsZero() {
			t := m.UpdatedAt
			v.UpdatedAt = &t
		}
		out[i] = v
	}
	return out
}

// NewStateView converts a state snapshot.
func NewStateView(s *navigation.State) StateView {
	v := StateView{
		Status:     string(s.Status),
		Location:   NewLocationView(s.Location),
		Matches:    NewMatchViews(s.Matches),
		Generation: s.Generation,
		StatusCode: s.StatusCode,
		NotFound:   s.NotFound,
	}
	if p := s.Pending; p != nil {
		v.Pending = &IntentView{
			ID:             p.ID,
			Generation:     p.Generation,
			Location:       NewLocationView(p.Location),
			Phase:          string(p.Phase),
			Redirects:      p.Redirects,
			RedirectedFrom: p.RedirectedFrom,
		}
	}
	return v
}

func NewCacheView(c *matchcache.Cache) CacheView {
	now := c.Now()
	entries := c.Entries()
	v := CacheView{Stats: c.Stats(), Entries: make([]CacheEntryView, len(entries))}
	for i, e := range entries {
		v.Entries[i] = CacheEntryView{
			Key:        e.Key,
			RouteID:    e.RouteID,
			AgeMS:      e.Age(now).Milliseconds(),
			Stale:      e.IsStale(now),
			Invalid:    e.Invalid,
			Preload:    e.Preload,
			Generation: e.Generation,
		}
	}
	return v
}
