package matchcache

import (
	"strings"

	json "github.com/goccy/go-json"
)

// Key derives the cache key of a match from its route id, its raw params
// and its loader deps. Map keys are encoded in sorted order, so equal inputs
// always produce equal keys.
func Key(routeID string, params map[string]string, deps any) string {
	var sb strings.Builder
	sb.WriteString(routeID)
	if len(params) > 0 {
		sb.WriteByte('|')
		b, _ := json.Marshal(params)
		sb.Write(b)
	}
	if deps != nil {
		sb.WriteByte('|')
		b, err := json.Marshal(deps)
		if err != nil {
			return sb.String()
		}
		sb.Write(b)
	}
	return sb.String()
}

// RouteOf returns the route id part of a key built by Key.
func RouteOf(key string) string {
	if i := strings.IndexByte(key, '|'); i >= 0 {
		return key[:i]
	}
	return key
}
