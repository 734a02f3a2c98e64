package search

import (
	"net/url"
	"reflect"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
)

// Values is a decoded search (query string) record. Values follow the JSON
// model: string, float64, bool, nil, []any and map[string]any.
type Values map[string]any

// Clone returns a shallow copy of v. A nil receiver yields an empty map.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Keys returns the keys of v in sorted order.
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the value at key if it is a string.
func (v Values) String(key string) (string, bool) {
	s, ok := v[key].(string)
	return s, ok
}

// Has reports whether key is present.
func (v Values) Has(key string) bool {
	_, ok := v[key]
	return ok
}

// Parse decodes a query string. A leading "?" is ignored. Each value that
// is valid JSON is decoded as JSON; anything else stays a plain string.
// Repeated keys collect into a []any.
func Parse(query string) (Values, error) {
	query = strings.TrimPrefix(query, "?")
	out := Values{}
	if query == "" {
		return out, nil
	}
	raw, err := url.ParseQuery(query)
	if err != nil {
		return nil, err
	}
	for key, vals := range raw {
		if len(vals) == 1 {
			out[key] = decodeValue(vals[0])
			continue
		}
		list := make([]any, len(vals))
		for i, s := range vals {
			list[i] = decodeValue(s)
		}
		out[key] = list
	}
	return out, nil
}

func decodeValue(s string) any {
	if !json.Valid([]byte(s)) {
		return s
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// Stringify encodes v as a query string with sorted keys and no leading
// "?". Strings are written raw unless they would decode as JSON, in which
// case they are written as quoted JSON strings.
func Stringify(v Values) string {
	if len(v) == 0 {
		return ""
	}
	q := make(url.Values, len(v))
	for key, val := range v {
		q.Set(key, encodeValue(val))
	}
	return q.Encode()
}

func encodeValue(val any) string {
	if s, ok := val.(string); ok {
		if !json.Valid([]byte(s)) {
			return s
		}
		b, _ := json.Marshal(s)
		return string(b)
	}
	b, err := json.Marshal(val)
	if err != nil {
		return ""
	}
	return string(b)
}

// Normalize converts v to the shape Parse would produce for Stringify(v):
// numbers become float64, structs and typed slices become their JSON forms.
func Normalize(v Values) Values {
	out := make(Values, len(v))
	for key, val := range v {
		if s, ok := val.(string); ok {
			out[key] = s
			continue
		}
		out[key] = decodeValue(encodeValue(val))
	}
	return out
}

// Equal reports whether a and b are deep-equal after normalization.
func Equal(a, b Values) bool {
	if len(a) != len(b) {
		return false
	}
	return reflect.DeepEqual(Normalize(a), Normalize(b))
}

// Merge returns parent overlaid with child. Neither input is modified.
func Merge(parent, child Values) Values {
	out := make(Values, len(parent)+len(child))
	for k, val := range parent {
		out[k] = val
	}
	for k, val := range child {
		out[k] = val
	}
	return out
}

// ApplyDefaults fills keys absent from v with values from defaults.
func ApplyDefaults(v, defaults Values) Values {
	out := v.Clone()
	for k, def := range defaults {
		if _, ok := out[k]; !ok {
			out[k] = def
		}
	}
	return out
}

// StripDefaults removes keys whose value equals the default for that key.
func StripDefaults(v, defaults Values) Values {
	out := v.Clone()
	for k, def := range defaults {
		if cur, ok := out[k]; ok && valueEqual(cur, def) {
			delete(out, k)
		}
	}
	return out
}

func valueEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	return encodeValue(a) == encodeValue(b)
}

// ReplaceEqual returns prev when next is deep-equal to it. For maps and
// slices it rebuilds next while reusing every equal sub-value from prev, so
// unchanged branches keep their identity across navigations.
func ReplaceEqual(prev, next any) any {
	if reflect.DeepEqual(prev, next) {
		return prev
	}
	switch n := next.(type) {
	case Values:
		p, ok := prev.(Values)
		if !ok {
			return next
		}
		return Values(replaceMap(p, n))
	case map[string]any:
		p, ok := prev.(map[string]any)
		if !ok {
			return next
		}
		return replaceMap(p, n)
	case []any:
		p, ok := prev.([]any)
		if !ok {
			return next
		}
		out := make([]any, len(n))
		for i := range n {
			if i < len(p) {
				out[i] = ReplaceEqual(p[i], n[i])
			} else {
				out[i] = n[i]
			}
		}
		return out
	}
	return next
}

func replaceMap(prev, next map[string]any) map[string]any {
	out := make(map[string]any, len(next))
	for k, val := range next {
		if old, ok := prev[k]; ok {
			out[k] = ReplaceEqual(old, val)
		} else {
			out[k] = val
		}
	}
	return out
}

// ReplaceEqualValues is ReplaceEqual for Values.
func ReplaceEqualValues(prev, next Values) Values {
	if prev == nil {
		return next
	}
	if out, ok := ReplaceEqual(prev, next).(Values); ok {
		return out
	}
	return next
}
