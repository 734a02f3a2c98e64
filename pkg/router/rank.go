package router

import (
	"sort"

	"github.com/vango-dev/waypoint/pkg/routepath"
)

// Segment scores. Higher ranks first.
const (
	staticScore         = 1.0
	indexScore          = 0.75
	requiredParamScore  = 0.5
	optionalParamScore  = 0.4
	wildcardScore       = 0.25
	staticAfterBonus    = 0.2
	bothAffixBonus      = 0.05
	prefixBonus         = 0.02
	suffixBonus         = 0.01
	prefixLengthPerByte = 0.0002
	suffixLengthPerByte = 0.0001
)

// score is the ranking key of one pattern.
type score struct {
	values      []float64
	optional    int
	staticAfter bool
}

func scorePattern(p routepath.Pattern) score {
	var s score
	for i, seg := range p.Segments {
		var v float64
		switch seg.Kind {
		case routepath.SegmentStatic:
			s.values = append(s.values, staticScore)
			continue
		case routepath.SegmentParam:
			v = requiredParamScore
		case routepath.SegmentOptional:
			v = optionalParamScore
			s.optional++
		case routepath.SegmentWildcard:
			v = wildcardScore
		}
		for _, next := range p.Segments[i+1:] {
			if next.Kind == routepath.SegmentStatic {
				v += staticAfterBonus
				s.staticAfter = true
				break
			}
		}
		s.values = append(s.values, v+affixBonus(seg))
	}
	if p.Index {
		s.values = append(s.values, indexScore)
	}
	return s
}

func affixBonus(seg routepath.Segment) float64 {
	pre, suf := float64(len(seg.Prefix)), float64(len(seg.Suffix))
	switch {
	case seg.Prefix != "" && seg.Suffix != "":
		return bothAffixBonus + prefixLengthPerByte*pre + suffixLengthPerByte*suf
	case seg.Prefix != "":
		return prefixBonus + prefixLengthPerByte*pre
	case seg.Suffix != "":
		return suffixBonus + suffixLengthPerByte*suf
	}
	return 0
}

// compareScores returns a negative number when a ranks before b, positive
// when after and zero on a tie.
func compareScores(a, b score) int {
	n := min(len(a.values), len(b.values))
	for i := 0; i < n; i++ {
		if a.values[i] != b.values[i] {
			if a.values[i] > b.values[i] {
				return -1
			}
			return 1
		}
	}
	if len(a.values) == len(b.values) {
		return 0
	}
	if a.optional != b.optional {
		switch {
		case a.staticAfter == b.staticAfter:
			return a.optional - b.optional
		case a.staticAfter:
			return -1
		default:
			return 1
		}
	}
	return len(b.values) - len(a.values)
}

// Rank orders sibling nodes by matching precedence: path-bearing routes by
// specificity, then pathless layouts. Ties keep the input order.
func Rank(children []*Node) []*Node {
	type ranked struct {
		node  *Node
		score score
	}
	var withPath, pathless []ranked
	for _, n := range children {
		if n.Pattern.Pathless {
			pathless = append(pathless, ranked{node: n})
			continue
		}
		withPath = append(withPath, ranked{node: n, score: scorePattern(n.Pattern)})
	}
	sort.SliceStable(withPath, func(i, j int) bool {
		return compareScores(withPath[i].score, withPath[j].score) < 0
	})

	out := make([]*Node, 0, len(children))
	for _, r := range withPath {
		out = append(out, r.node)
	}
	for _, r := range pathless {
		out = append(out, r.node)
	}
	return out
}

// RankedChildren returns Rank applied to the children of id.
func (t *Tree) RankedChildren(id string) []*Node {
	return Rank(t.Children(id))
}

// candidate is a route that can consume path directly below a node: a
// path-bearing child, or a path-bearing descendant reached through pathless
// layouts.
type candidate struct {
	// via are the pathless layouts crossed, outermost first.
	via   []int
	node  int
	score score

	// order is the declaration position in a depth-first walk.
	order int
}

// candidates returns the ranked candidates below parent. The caller holds
// t.mu for reading.
func (t *Tree) candidates(parent int) []candidate {
	version := t.nodes[parent].version

	t.rankMu.Lock()
	entry, ok := t.ranks[parent]
	t.rankMu.Unlock()
	if ok && entry.version == version {
		return entry.candidates
	}

	var out []candidate
	order := 0
	var collect func(i int, via []int)
	collect = func(i int, via []int) {
		for _, c := range t.nodes[i].Children {
			n := t.nodes[c]
			if n.Pattern.Pathless {
				collect(c, append(append([]int(nil), via...), c))
				continue
			}
			out = append(out, candidate{
				via:   via,
				node:  c,
				score: scorePattern(n.Pattern),
				order: order,
			})
			order++
		}
	}
	collect(parent, nil)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if c := compareScores(a.score, b.score); c != 0 {
			return c < 0
		}
		if len(a.via) != len(b.via) {
			return len(a.via) < len(b.via)
		}
		return a.order < b.order
	})

	t.rankMu.Lock()
	t.ranks[parent] = rankEntry{version: version, candidates: out}
	t.rankMu.Unlock()
	return out
}
