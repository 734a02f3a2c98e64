// Package routepath parses route path patterns and canonicalizes the
// pathnames they are matched against.
//
// Patterns are "/"-separated parts. A part is a literal, a required param
// ($id), an optional param ({-$lang}) or a trailing catch-all ($ or *).
// Params may carry literal text around them in brace form (post-{$id}.html).
package routepath
