package routepath

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// SegmentKind identifies how a pattern segment consumes a path component.
type SegmentKind uint8

const (
	// SegmentStatic matches one component by literal text.
	SegmentStatic SegmentKind = iota

	// SegmentParam binds exactly one component ($name or prefix{$name}suffix).
	SegmentParam

	// SegmentOptional binds zero or one component ({-$name}).
	SegmentOptional

	// SegmentWildcard binds every remaining component ($, * or prefix{$}suffix).
	SegmentWildcard
)

// String returns the kind name.
func (k SegmentKind) String() string {
	switch k {
	case SegmentStatic:
		return "static"
	case SegmentParam:
		return "param"
	case SegmentOptional:
		return "optional"
	case SegmentWildcard:
		return "wildcard"
	default:
		return fmt.Sprintf("SegmentKind(%d)", k)
	}
}

// SplatKey is the param key a wildcard binds to. SplatAlias is kept for
// callers that read the legacy "*" key.
const (
	SplatKey   = "_splat"
	SplatAlias = "*"
)

// Segment is one parsed element of a route path pattern.
type Segment struct {
	Kind SegmentKind

	// Value is the literal text for static segments, the param name for
	// params, and SplatKey for wildcards.
	Value string

	// Prefix and Suffix are literal text surrounding a brace-form param.
	Prefix string
	Suffix string
}

// String renders the segment back into pattern syntax.
func (s Segment) String() string {
	switch s.Kind {
	case SegmentParam:
		if s.Prefix == "" && s.Suffix == "" {
			return "$" + s.Value
		}
		return s.Prefix + "{$" + s.Value + "}" + s.Suffix
	case SegmentOptional:
		return s.Prefix + "{-$" + s.Value + "}" + s.Suffix
	case SegmentWildcard:
		if s.Prefix == "" && s.Suffix == "" {
			return "$"
		}
		return s.Prefix + "{$}" + s.Suffix
	default:
		return escapeLiteral(s.Value)
	}
}

// Pattern is the parsed form of a route's path string.
type Pattern struct {
	// Raw is the pattern as declared.
	Raw string

	// Segments are the path-contributing segments, in order.
	Segments []Segment

	// Pathless is set when the pattern contributes no path (a layout
	// marker such as "_auth").
	Pathless bool

	// Index is set when the pattern ends in an index marker ("", "/" or
	// "index"): the route only matches an empty remainder.
	Index bool
}

// Key returns the canonical form used as a memoization key.
func (p Pattern) Key() string {
	var b strings.Builder
	for _, s := range p.Segments {
		b.WriteByte('/')
		b.WriteString(s.String())
	}
	if p.Index {
		b.WriteByte('/')
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

// ParamNames returns the names bound by the pattern, in order.
func (p Pattern) ParamNames() []string {
	var names []string
	for _, s := range p.Segments {
		if s.Kind != SegmentStatic {
			names = append(names, s.Value)
		}
	}
	return names
}

// HasWildcard reports whether the pattern ends in a catch-all.
func (p Pattern) HasWildcard() bool {
	return len(p.Segments) > 0 && p.Segments[len(p.Segments)-1].Kind == SegmentWildcard
}

// Pattern parse errors.
var (
	ErrWildcardNotLast   = errors.New("catch-all must be the last segment")
	ErrMultipleParams    = errors.New("more than one param in a single segment")
	ErrDuplicateParam    = errors.New("duplicate param name")
	ErrInvalidParamName  = errors.New("invalid param name")
	ErrUnbalancedEscape  = errors.New("unbalanced [ ] escape")
	ErrUnterminatedBrace = errors.New("unterminated { } param")
)

// PatternError reports a pattern that failed to parse.
type PatternError struct {
	Pattern string
	Part    string
	Err     error
}

func (e *PatternError) Error() string {
	if e.Part != "" {
		return fmt.Sprintf("routepath: pattern %q, segment %q: %v", e.Pattern, e.Part, e.Err)
	}
	return fmt.Sprintf("routepath: pattern %q: %v", e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

// MustParse is like Parse but panics on error.
func MustParse(pattern string) Pattern {
	p, err := Parse(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// Parse tokenizes a route path pattern.
//
// Recognized forms per "/"-separated part:
//
//	posts              static
//	$postId            required param
//	pre{$id}.json      required param with literal prefix/suffix
//	{-$lang}           optional param
//	$  *  file{$}.txt  catch-all (binds "_splat")
//
// Unescaped framework markers: a part starting with "_" is a pathless layout
// part, a trailing "_" is stripped, a final "index" marks an index route and
// a final "route" or "lazy" is dropped. Text inside [ ] is always literal, so
// "[index]", "[_]drafts" and "[$]" are plain path text.
func Parse(pattern string) (Pattern, error) {
	out := Pattern{Raw: pattern}

	trimmed := strings.Trim(CleanPath(pattern), "/")
	if trimmed == "" {
		out.Index = true
		return out, nil
	}

	parts := strings.Split(trimmed, "/")
	seen := make(map[string]bool)
	contributed := 0

	for i, part := range parts {
		last := i == len(parts)-1

		text, escaped, err := unescapePart(part)
		if err != nil {
			return Pattern{}, &PatternError{Pattern: pattern, Part: part, Err: err}
		}

		seg, marker, err := parsePart(text, escaped)
		if err != nil {
			return Pattern{}, &PatternError{Pattern: pattern, Part: part, Err: err}
		}

		switch marker {
		case markerPathless:
			continue
		case markerIndex, markerFileSuffix:
			if !last {
				seg = Segment{Kind: SegmentStatic, Value: text}
				break
			}
			if marker == markerIndex || i == 0 {
				out.Index = true
			}
			continue
		}

		if seg.Kind != SegmentStatic {
			if seen[seg.Value] {
				return Pattern{}, &PatternError{Pattern: pattern, Part: part, Err: ErrDuplicateParam}
			}
			seen[seg.Value] = true
		}
		out.Segments = append(out.Segments, seg)
		contributed++
	}

	for i, seg := range out.Segments {
		if seg.Kind == SegmentWildcard && i != len(out.Segments)-1 {
			return Pattern{}, &PatternError{Pattern: pattern, Part: seg.String(), Err: ErrWildcardNotLast}
		}
	}

	if contributed == 0 && !out.Index {
		out.Pathless = true
	}
	return out, nil
}

type partMarker uint8

const (
	markerNone partMarker = iota
	markerPathless
	markerIndex
	markerFileSuffix
)

// unescapePart removes [ ] escapes, returning the literal text and a mask
// marking which bytes came from inside an escape.
func unescapePart(part string) (string, []bool, error) {
	if !strings.ContainsAny(part, "[]") {
		return part, nil, nil
	}
	var b strings.Builder
	mask := make([]bool, 0, len(part))
	inside := false
	for i := 0; i < len(part); i++ {
		c := part[i]
		switch {
		case c == '[' && !inside:
			inside = true
		case c == ']' && inside:
			inside = false
		case c == ']' && !inside:
			return "", nil, ErrUnbalancedEscape
		default:
			b.WriteByte(c)
			mask = append(mask, inside)
		}
	}
	if inside {
		return "", nil, ErrUnbalancedEscape
	}
	return b.String(), mask, nil
}

func isEscaped(mask []bool, i int) bool {
	return mask != nil && i >= 0 && i < len(mask) && mask[i]
}

// parsePart classifies one unescaped part.
func parsePart(text string, mask []bool) (Segment, partMarker, error) {
	if text == "" {
		return Segment{Kind: SegmentStatic}, markerNone, nil
	}

	if (text == "$" || text == "*") && !isEscaped(mask, 0) {
		return Segment{Kind: SegmentWildcard, Value: SplatKey}, markerNone, nil
	}

	start, end, count, err := findBraceToken(text, mask)
	if err != nil {
		return Segment{}, markerNone, err
	}
	if count > 1 {
		return Segment{}, markerNone, ErrMultipleParams
	}
	if count == 1 {
		token := text[start+1 : end-1]
		seg := Segment{Prefix: text[:start], Suffix: text[end:]}
		switch {
		case token == "$":
			seg.Kind = SegmentWildcard
			seg.Value = SplatKey
		case strings.HasPrefix(token, "-$"):
			seg.Kind = SegmentOptional
			seg.Value = token[2:]
		case strings.HasPrefix(token, "$"):
			seg.Kind = SegmentParam
			seg.Value = token[1:]
		default:
			return Segment{}, markerNone, ErrInvalidParamName
		}
		if seg.Kind != SegmentWildcard && !validParamName(seg.Value) {
			return Segment{}, markerNone, ErrInvalidParamName
		}
		return seg, markerNone, nil
	}

	if text[0] == '$' && !isEscaped(mask, 0) {
		if strings.ContainsRune(text[1:], '$') && !allEscaped(mask, 1, len(text)) {
			return Segment{}, markerNone, ErrMultipleParams
		}
		name := text[1:]
		if !validParamName(name) {
			return Segment{}, markerNone, ErrInvalidParamName
		}
		return Segment{Kind: SegmentParam, Value: name}, markerNone, nil
	}

	if text[0] == '_' && !isEscaped(mask, 0) {
		return Segment{}, markerPathless, nil
	}

	if !allEscaped(mask, 0, len(text)) {
		switch text {
		case "index":
			return Segment{}, markerIndex, nil
		case "route", "lazy":
			return Segment{}, markerFileSuffix, nil
		}
	}

	literal := text
	if len(literal) > 1 && literal[len(literal)-1] == '_' && !isEscaped(mask, len(literal)-1) {
		literal = literal[:len(literal)-1]
	}
	if decoded, err := url.PathUnescape(literal); err == nil {
		literal = decoded
	}
	return Segment{Kind: SegmentStatic, Value: literal}, markerNone, nil
}

// findBraceToken locates unescaped "{...}" tokens, returning the first one.
func findBraceToken(text string, mask []bool) (start, end, count int, err error) {
	start, end = -1, -1
	for i := 0; i < len(text); i++ {
		if text[i] != '{' || isEscaped(mask, i) {
			continue
		}
		j := strings.IndexByte(text[i:], '}')
		if j < 0 || isEscaped(mask, i+j) {
			return 0, 0, 0, ErrUnterminatedBrace
		}
		if count == 0 {
			start, end = i, i+j+1
		}
		count++
		i += j
	}
	return start, end, count, nil
}

func allEscaped(mask []bool, from, to int) bool {
	if mask == nil {
		return false
	}
	for i := from; i < to; i++ {
		if !mask[i] {
			return false
		}
	}
	return true
}

func validParamName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		letter := c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if i == 0 && !letter {
			return false
		}
		if !letter && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// escapeLiteral brackets literal text that would otherwise parse as a token
// or marker.
func escapeLiteral(s string) string {
	switch {
	case s == "index" || s == "route" || s == "lazy":
		return "[" + s + "]"
	case strings.HasPrefix(s, "$") || strings.ContainsAny(s, "{}*"):
		return "[" + s + "]"
	case strings.HasPrefix(s, "_"):
		return "[_]" + s[1:]
	case strings.HasSuffix(s, "_") && len(s) > 1:
		return s[:len(s)-1] + "[_]"
	}
	return s
}
