package routepath

import (
	"errors"
	"net/url"
	"strings"
)

// Path canonicalization errors.
var (
	ErrInvalidPath           = errors.New("invalid path")
	ErrBackslashInPath       = errors.New("path contains backslash")
	ErrNullByteInPath        = errors.New("path contains null byte")
	ErrInvalidPercentEscape  = errors.New("invalid percent escape sequence")
	ErrPathEscapesRoot       = errors.New("path escapes root via ..")
	ErrEncodedSlashInSegment = errors.New("encoded slash (%2F) in non-catch-all segment")
)

// CanonicalizeResult is an href split into its canonical pathname and the
// untouched query and fragment.
type CanonicalizeResult struct {
	Path  string
	Query string // without "?"
	Hash  string // without "#"

	// Changed reports whether Path differs from the input pathname.
	Changed bool
}

// Href reassembles the result.
func (r CanonicalizeResult) Href() string {
	var b strings.Builder
	b.WriteString(r.Path)
	if r.Query != "" {
		b.WriteByte('?')
		b.WriteString(r.Query)
	}
	if r.Hash != "" {
		b.WriteByte('#')
		b.WriteString(r.Hash)
	}
	return b.String()
}

// CanonicalizePath normalizes an href into the pathname the matcher
// consumes. Empty and "." components are dropped, ".." pops the previous
// component, and the result always starts with "/" and never ends with one
// unless it is the root. Only the pathname is checked; query and hash are
// returned as given.
func CanonicalizePath(input string) (CanonicalizeResult, error) {
	pathname, query, hash := SplitHref(input)
	if err := scanPath(pathname); err != nil {
		return CanonicalizeResult{}, err
	}

	var stack []string
	for _, comp := range strings.Split(pathname, "/") {
		switch comp {
		case "", ".":
		case "..":
			if len(stack) == 0 {
				return CanonicalizeResult{}, ErrPathEscapesRoot
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, comp)
		}
	}

	canonical := "/" + strings.Join(stack, "/")
	return CanonicalizeResult{
		Path:    canonical,
		Query:   query,
		Hash:    hash,
		Changed: canonical != pathname,
	}, nil
}

// scanPath rejects backslashes, raw or escaped NUL bytes and malformed
// percent escapes in one pass.
func scanPath(p string) error {
	for i := 0; i < len(p); i++ {
		switch p[i] {
		case '\\':
			return ErrBackslashInPath
		case 0:
			return ErrNullByteInPath
		case '%':
			if i+2 >= len(p) {
				return ErrInvalidPercentEscape
			}
			hi, lo := unhex(p[i+1]), unhex(p[i+2])
			if hi < 0 || lo < 0 {
				return ErrInvalidPercentEscape
			}
			if hi == 0 && lo == 0 {
				return ErrNullByteInPath
			}
			i += 2
		}
	}
	return nil
}

func unhex(c byte) int {
	switch {
	case '0' <= c && c <= '9':
		return int(c - '0')
	case 'a' <= c && c <= 'f':
		return int(c-'a') + 10
	case 'A' <= c && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

// CanonicalizeAndValidateNavPath canonicalizes a navigation target and
// returns it as an href. Targets must be root-relative; absolute and
// protocol-relative URLs are rejected.
func CanonicalizeAndValidateNavPath(target string) (string, error) {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return "", ErrInvalidPath
	}
	res, err := CanonicalizePath(target)
	if err != nil {
		return "", err
	}
	return res.Href(), nil
}

// DecodeSegment unescapes one path component. A decoded "/" is only
// allowed where a catch-all consumes the rest of the path.
func DecodeSegment(segment string, isCatchAll bool) (string, error) {
	decoded, err := url.PathUnescape(segment)
	switch {
	case err != nil:
		return "", ErrInvalidPercentEscape
	case !isCatchAll && strings.ContainsRune(decoded, '/'):
		return "", ErrEncodedSlashInSegment
	}
	return decoded, nil
}

// SplitComponents returns the raw components of a canonical pathname.
// The root has none.
func SplitComponents(pathname string) []string {
	if trimmed := strings.Trim(pathname, "/"); trimmed != "" {
		return strings.Split(trimmed, "/")
	}
	return nil
}

// DecodePathSegments unescapes every component of pathname.
func DecodePathSegments(pathname string) ([]string, error) {
	comps := SplitComponents(pathname)
	for i, c := range comps {
		decoded, err := DecodeSegment(c, true)
		if err != nil {
			return nil, err
		}
		comps[i] = decoded
	}
	return comps, nil
}

// SplitHref splits an href into pathname, query (no "?") and hash (no "#").
func SplitHref(href string) (pathname, query, hash string) {
	rest, hash, _ := strings.Cut(href, "#")
	pathname, query, _ = strings.Cut(rest, "?")
	return pathname, query, hash
}

// SplitPathAndQuery is SplitHref without the hash.
func SplitPathAndQuery(href string) (pathname, query string) {
	pathname, query, _ = SplitHref(href)
	return pathname, query
}

// CleanPath collapses runs of slashes into one.
func CleanPath(p string) string {
	if !strings.Contains(p, "//") {
		return p
	}
	var b strings.Builder
	b.Grow(len(p))
	for i := 0; i < len(p); i++ {
		if p[i] == '/' && i > 0 && p[i-1] == '/' {
			continue
		}
		b.WriteByte(p[i])
	}
	return b.String()
}

// JoinPaths joins the non-empty fragments with "/" and collapses
// repeated slashes.
func JoinPaths(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('/')
		}
		b.WriteString(p)
	}
	return CleanPath(b.String())
}

// TrimPathRight strips trailing slashes. The root stays "/".
func TrimPathRight(p string) string {
	if trimmed := strings.TrimRight(p, "/"); trimmed != "" {
		return trimmed
	}
	return "/"
}
