package routepath

import (
	"net/url"
	"strings"
)

// MatchPart matches a single raw (still encoded) path component against a
// non-wildcard segment. For params it returns the decoded bound value.
func MatchPart(seg Segment, part string, caseSensitive bool) (string, bool) {
	switch seg.Kind {
	case SegmentStatic:
		decoded, err := DecodeSegment(part, false)
		if err != nil {
			return "", false
		}
		if caseSensitive {
			return "", decoded == seg.Value
		}
		return "", strings.EqualFold(decoded, seg.Value)

	case SegmentParam, SegmentOptional:
		inner, ok := trimAffixes(part, seg.Prefix, seg.Suffix, caseSensitive)
		if !ok || inner == "" {
			return "", false
		}
		value, err := DecodeSegment(inner, false)
		if err != nil {
			return "", false
		}
		return value, true
	}
	return "", false
}

// MatchWildcard binds the remaining raw components to a catch-all segment.
// Zero components match only when the segment has no prefix or suffix.
func MatchWildcard(seg Segment, parts []string, caseSensitive bool) (string, bool) {
	raw := strings.Join(parts, "/")
	if seg.Prefix != "" || seg.Suffix != "" {
		inner, ok := trimAffixes(raw, seg.Prefix, seg.Suffix, caseSensitive)
		if !ok {
			return "", false
		}
		raw = inner
	}
	value, err := DecodeSegment(raw, true)
	if err != nil {
		return "", false
	}
	return value, true
}

func trimAffixes(s, prefix, suffix string, caseSensitive bool) (string, bool) {
	if len(s) < len(prefix)+len(suffix) {
		return "", false
	}
	head, tail := s[:len(prefix)], s[len(s)-len(suffix):]
	if caseSensitive {
		if head != prefix || tail != suffix {
			return "", false
		}
	} else if !strings.EqualFold(head, prefix) || !strings.EqualFold(tail, suffix) {
		return "", false
	}
	return s[len(prefix) : len(s)-len(suffix)], true
}

// Interpolate renders a pattern with the given params into a link path.
// Param values are path-escaped; a splat keeps its "/" separators. Absent
// optional params are dropped. The second result reports whether a required
// param was missing, in which case its segment is left in pattern form.
// Index routes render without a trailing slash.
func Interpolate(p Pattern, params map[string]string) (string, bool) {
	var b strings.Builder
	missing := false
	for _, seg := range p.Segments {
		switch seg.Kind {
		case SegmentStatic:
			b.WriteByte('/')
			b.WriteString(url.PathEscape(seg.Value))
		case SegmentParam:
			b.WriteByte('/')
			v, ok := params[seg.Value]
			if !ok || v == "" {
				missing = true
				b.WriteString(seg.String())
				continue
			}
			b.WriteString(seg.Prefix + url.PathEscape(v) + seg.Suffix)
		case SegmentOptional:
			v, ok := params[seg.Value]
			if !ok || v == "" {
				continue
			}
			b.WriteByte('/')
			b.WriteString(seg.Prefix + url.PathEscape(v) + seg.Suffix)
		case SegmentWildcard:
			v, ok := params[SplatKey]
			if !ok {
				v, ok = params[SplatAlias]
			}
			if !ok || v == "" {
				if seg.Prefix == "" && seg.Suffix == "" {
					continue
				}
			}
			b.WriteByte('/')
			b.WriteString(seg.Prefix + escapeSplat(v) + seg.Suffix)
		}
	}
	if b.Len() == 0 {
		return "/", missing
	}
	return b.String(), missing
}

// InterpolatePath parses path as a pattern and interpolates it.
func InterpolatePath(path string, params map[string]string) (string, bool, error) {
	p, err := Parse(path)
	if err != nil {
		return "", false, err
	}
	out, missing := Interpolate(p, params)
	return out, missing, nil
}

func escapeSplat(v string) string {
	parts := strings.Split(v, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
