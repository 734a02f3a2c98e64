package router

import (
	"strings"

	"github.com/vango-dev/waypoint/pkg/routepath"
)

// MatchedRoute is one link of a match chain.
type MatchedRoute struct {
	Node *Node

	// Params are the raw params bound from the root down to this route.
	Params map[string]string

	// ParsedParams are Params after every ParseParams hook on the way down.
	ParsedParams map[string]any

	// Splat holds the decoded components bound by a catch-all, if any.
	Splat []string
}

// MatchResult is the outcome of matching a pathname.
type MatchResult struct {
	Pathname string

	// Chain is root-first. On NotFound it is the longest partial chain.
	Chain []MatchedRoute

	NotFound bool

	// Anchor indexes the Chain entry that owns not-found handling: the
	// deepest route declaring a NotFoundBoundary, else the root.
	Anchor int

	// Remaining are the raw components no route consumed.
	Remaining []string
}

// Leaf returns the last route of the chain.
func (r *MatchResult) Leaf() *MatchedRoute {
	if len(r.Chain) == 0 {
		return nil
	}
	return &r.Chain[len(r.Chain)-1]
}

// Params returns the params bound by the whole chain.
func (r *MatchResult) Params() map[string]string {
	if leaf := r.Leaf(); leaf != nil {
		return leaf.Params
	}
	return nil
}

// RouteIDs lists the chain's route ids, root first.
func (r *MatchResult) RouteIDs() []string {
	ids := make([]string, len(r.Chain))
	for i, m := range r.Chain {
		ids[i] = m.Node.ID
	}
	return ids
}

// Err returns a *NotFoundError when the result is NotFound.
func (r *MatchResult) Err() error {
	if !r.NotFound {
		return nil
	}
	return &NotFoundError{Pathname: r.Pathname, RouteID: r.Chain[r.Anchor].Node.ID}
}

// Match resolves a pathname against the tree. The pathname is canonicalized
// first; a query string or hash is ignored. An error is returned only for a
// malformed pathname. Not finding a route is reported through NotFound.
func (t *Tree) Match(pathname string) (*MatchResult, error) {
	canon, err := routepath.CanonicalizePath(pathname)
	if err != nil {
		return nil, err
	}
	parts := routepath.SplitComponents(canon.Path)

	t.mu.RLock()
	defer t.mu.RUnlock()

	root := t.nodes[0]
	rootFrame := MatchedRoute{Node: root, Params: map[string]string{}, ParsedParams: map[string]any{}}

	if chain, ok := t.descend(rootFrame, parts); ok {
		return &MatchResult{
			Pathname: canon.Path,
			Chain:    append([]MatchedRoute{rootFrame}, chain...),
		}, nil
	}

	partial, rest := t.fuzzy(rootFrame, parts)
	chain := append([]MatchedRoute{rootFrame}, partial...)
	anchor := 0
	for i := len(chain) - 1; i > 0; i-- {
		if chain[i].Node.Route.opts.NotFoundBoundary {
			anchor = i
			break
		}
	}
	return &MatchResult{
		Pathname:  canon.Path,
		Chain:     chain,
		NotFound:  true,
		Anchor:    anchor,
		Remaining: rest,
	}, nil
}

// descend finds the first ranked candidate below parent whose subtree
// consumes parts entirely.
func (t *Tree) descend(parent MatchedRoute, parts []string) ([]MatchedRoute, bool) {
	for _, cand := range t.candidates(parent.Node.Index) {
		node := t.nodes[cand.node]
		for _, bind := range consume(node.Pattern, parts, node.Route.opts.CaseSensitive) {
			frames, ok := t.bind(parent, cand, bind)
			if !ok {
				continue
			}
			leaf := frames[len(frames)-1]
			if len(bind.rest) == 0 {
				if sub, ok := t.descend(leaf, nil); ok {
					return append(frames, sub...), true
				}
				return frames, true
			}
			if sub, ok := t.descend(leaf, bind.rest); ok {
				return append(frames, sub...), true
			}
		}
	}
	return nil, false
}

// fuzzy follows the best candidate that consumes at least one component,
// for as deep as possible, returning the partial chain and what is left.
func (t *Tree) fuzzy(parent MatchedRoute, parts []string) ([]MatchedRoute, []string) {
	if len(parts) == 0 {
		return nil, nil
	}
	for _, cand := range t.candidates(parent.Node.Index) {
		node := t.nodes[cand.node]
		for _, bind := range consumePrefix(node.Pattern, parts, node.Route.opts.CaseSensitive) {
			if len(bind.rest) >= len(parts) {
				continue
			}
			frames, ok := t.bind(parent, cand, bind)
			if !ok {
				continue
			}
			sub, rest := t.fuzzy(frames[len(frames)-1], bind.rest)
			return append(frames, sub...), rest
		}
	}
	return nil, parts
}

// bind turns a candidate binding into chain frames, running ParseParams of
// every route crossed. A parse failure rejects the branch.
func (t *Tree) bind(parent MatchedRoute, cand candidate, b binding) ([]MatchedRoute, bool) {
	frames := make([]MatchedRoute, 0, len(cand.via)+1)
	for _, v := range cand.via {
		frames = append(frames, MatchedRoute{
			Node:         t.nodes[v],
			Params:       parent.Params,
			ParsedParams: parent.ParsedParams,
		})
	}

	params := make(map[string]string, len(parent.Params)+len(b.params))
	for k, v := range parent.Params {
		params[k] = v
	}
	for k, v := range b.params {
		params[k] = v
	}
	parsed := make(map[string]any, len(params))
	for k, v := range parent.ParsedParams {
		parsed[k] = v
	}
	for k, v := range b.params {
		parsed[k] = v
	}

	for _, i := range append(append([]int(nil), cand.via...), cand.node) {
		parser := t.nodes[i].Route.opts.ParseParams
		if parser == nil {
			continue
		}
		out, err := parser.ParseParams(params)
		if err != nil {
			return nil, false
		}
		for k, v := range out {
			parsed[k] = v
		}
	}

	frames = append(frames, MatchedRoute{
		Node:         t.nodes[cand.node],
		Params:       params,
		ParsedParams: parsed,
		Splat:        b.splat,
	})
	return frames, true
}

// binding is one way a pattern can consume a prefix of the path.
type binding struct {
	params map[string]string
	splat  []string
	rest   []string
}

// consume lists the ways p can consume a prefix of parts, in preference
// order. Index patterns only bind when nothing is left.
func consume(p routepath.Pattern, parts []string, caseSensitive bool) []binding {
	all := consumePrefix(p, parts, caseSensitive)
	if !p.Index {
		return all
	}
	out := all[:0]
	for _, b := range all {
		if len(b.rest) == 0 {
			out = append(out, b)
		}
	}
	return out
}

func consumePrefix(p routepath.Pattern, parts []string, caseSensitive bool) []binding {
	var out []binding
	var walk func(si, pi int, params map[string]string)
	walk = func(si, pi int, params map[string]string) {
		if si == len(p.Segments) {
			out = append(out, binding{params: params, rest: parts[pi:]})
			return
		}
		seg := p.Segments[si]
		switch seg.Kind {
		case routepath.SegmentStatic:
			if pi < len(parts) {
				if _, ok := routepath.MatchPart(seg, parts[pi], caseSensitive); ok {
					walk(si+1, pi+1, params)
				}
			}

		case routepath.SegmentParam:
			if pi < len(parts) {
				if v, ok := routepath.MatchPart(seg, parts[pi], caseSensitive); ok {
					walk(si+1, pi+1, with(params, seg.Value, v))
				}
			}

		case routepath.SegmentOptional:
			if pi < len(parts) {
				if v, ok := routepath.MatchPart(seg, parts[pi], caseSensitive); ok {
					walk(si+1, pi+1, with(params, seg.Value, v))
				}
			}
			walk(si+1, pi, params)

		case routepath.SegmentWildcard:
			v, ok := routepath.MatchWildcard(seg, parts[pi:], caseSensitive)
			if !ok {
				return
			}
			next := with(with(params, routepath.SplatKey, v), routepath.SplatAlias, v)
			var splat []string
			if v != "" {
				splat = strings.Split(v, "/")
			} else {
				splat = []string{}
			}
			out = append(out, binding{params: next, splat: splat, rest: nil})
		}
	}
	walk(0, 0, nil)
	return out
}

func with(params map[string]string, k, v string) map[string]string {
	out := make(map[string]string, len(params)+1)
	for pk, pv := range params {
		out[pk] = pv
	}
	out[k] = v
	return out
}

// MatchOptions tunes MatchPathname.
type MatchOptions struct {
	CaseSensitive bool

	// Fuzzy allows the pathname to continue past the pattern.
	Fuzzy bool
}

// MatchPathname matches a pathname against a single pattern outside of any
// tree. For fuzzy matches the unconsumed remainder is bound to "**".
func MatchPathname(pattern, pathname string, opts MatchOptions) (map[string]string, bool) {
	p, err := routepath.Parse(pattern)
	if err != nil {
		return nil, false
	}
	canon, err := routepath.CanonicalizePath(pathname)
	if err != nil {
		return nil, false
	}
	parts := routepath.SplitComponents(canon.Path)

	var binds []binding
	if opts.Fuzzy {
		binds = consumePrefix(p, parts, opts.CaseSensitive)
	} else {
		binds = consume(p, parts, opts.CaseSensitive)
	}
	for _, b := range binds {
		if len(b.rest) > 0 && !opts.Fuzzy {
			continue
		}
		params := b.params
		if params == nil {
			params = map[string]string{}
		}
		if len(b.rest) > 0 {
			params["**"] = strings.Join(b.rest, "/")
		}
		return params, true
	}
	return nil, false
}
