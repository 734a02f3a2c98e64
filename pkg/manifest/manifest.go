package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-viper/mapstructure/v2"
	json "github.com/goccy/go-json"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cast"
)

var (
	// ErrInvalidManifest wraps decoding and shape errors.
	ErrInvalidManifest = errors.New("invalid route manifest")

	// ErrUnsupportedFormat is returned for documents of unknown format.
	ErrUnsupportedFormat = errors.New("unsupported manifest format")
)

// Format is a manifest encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatOf infers the format from a file name or object key.
func FormatOf(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// Manifest is a declarative route tree.
type Manifest struct {
	Version int `mapstructure:"version"`

	// Root configures the root route. Its path and id are ignored.
	Root RouteSpec `mapstructure:"root"`

	Routes []RouteSpec `mapstructure:"routes"`

	// Source names the document the manifest was read from.
	Source string `mapstructure:"-"`
}

// RouteSpec declares one route.
type RouteSpec struct {
	ID            string `mapstructure:"id"`
	Path          string `mapstructure:"path"`
	CaseSensitive bool   `mapstructure:"caseSensitive"`

	// Params maps param names to a type: int, uint, float, bool, uuid or
	// string. A param that fails to convert rejects the branch.
	Params map[string]string `mapstructure:"params"`

	SearchDefaults map[string]any `mapstructure:"searchDefaults"`
	WriteDefaults  bool           `mapstructure:"writeDefaults"`

	// SearchSchema is a JSON Schema the route's search must satisfy.
	SearchSchema map[string]any `mapstructure:"searchSchema"`

	// RetainSearch keeps these keys across navigations that omit them.
	RetainSearch []string `mapstructure:"retainSearch"`

	// StripSearch drops these keys from built locations.
	StripSearch []string `mapstructure:"stripSearch"`

	// LoaderDeps are the search keys that feed the loader cache key.
	LoaderDeps []string `mapstructure:"loaderDeps"`

	StaleTime        time.Duration `mapstructure:"staleTime"`
	PreloadStaleTime time.Duration `mapstructure:"preloadStaleTime"`
	GCTime           time.Duration `mapstructure:"gcTime"`

	// Context is merged into the route context of the match and its
	// descendants.
	Context map[string]any `mapstructure:"context"`

	// BeforeLoad names a hook registered with WithBeforeLoad.
	BeforeLoad string `mapstructure:"beforeLoad"`

	Redirect *RedirectSpec `mapstructure:"redirect"`

	// NotFound makes the route raise not-found from beforeLoad.
	NotFound bool `mapstructure:"notFound"`

	Loader *LoaderSpec `mapstructure:"loader"`

	ErrorBoundary    bool `mapstructure:"errorBoundary"`
	NotFoundBoundary bool `mapstructure:"notFoundBoundary"`
	PendingBoundary  bool `mapstructure:"pendingBoundary"`

	Meta map[string]any `mapstructure:"meta"`

	Children []RouteSpec `mapstructure:"children"`
}

// RedirectSpec makes a route redirect from beforeLoad.
type RedirectSpec struct {
	// To is a path pattern interpolated with Params and the match params.
	// Empty To and Href redirect to the current location.
	To     string            `mapstructure:"to"`
	Href   string            `mapstructure:"href"`
	Params map[string]string `mapstructure:"params"`

	// Search is merged over the current search.
	Search  map[string]any `mapstructure:"search"`
	Replace bool           `mapstructure:"replace"`

	// When limits the redirect. Without it the redirect always fires.
	When *Condition `mapstructure:"when"`
}

// Condition selects when a redirect fires. All set fields must hold.
type Condition struct {
	// MissingSearch holds when any of these search keys is absent.
	MissingSearch []string `mapstructure:"missingSearch"`

	// Search holds when every key has the given value.
	Search map[string]any `mapstructure:"search"`

	// Context holds when every route context key has the given value.
	// Absent keys compare as nil.
	Context map[string]any `mapstructure:"context"`
}

// LoaderSpec declares a static loader or selects a registered one.
type LoaderSpec struct {
	// Use names a loader registered with WithLoader. The other fields are
	// ignored when it is set.
	Use string `mapstructure:"use"`

	// Data is returned by the loader. Strings are expanded with ${name}
	// from the params, then the search.
	Data any `mapstructure:"data"`

	// Delay simulates a slow loader.
	Delay time.Duration `mapstructure:"delay"`

	// Error makes the loader fail with this message.
	Error string `mapstructure:"error"`

	// NotFound makes the loader raise not-found.
	NotFound bool `mapstructure:"notFound"`
}

// Parse decodes a manifest document.
func Parse(data []byte, format Format) (*Manifest, error) {
	var raw map[string]any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	var m Manifest
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  mapstructure.ComposeDecodeHookFunc(durationHook),
		ErrorUnused: true,
		Result:      &m,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if m.Version > 1 {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidManifest, m.Version)
	}
	return &m, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// durationHook decodes durations from Go duration strings or from numbers
// of milliseconds.
func durationHook(from, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	if s, ok := data.(string); ok {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Duration(n) * time.Millisecond, nil
		}
		return cast.ToDurationE(s)
	}
	n, err := cast.ToInt64E(data)
	if err != nil {
		return nil, fmt.Errorf("invalid duration %v: %w", data, err)
	}
	return time.Duration(n) * time.Millisecond, nil
}

// Walk calls fn for every route spec depth-first, with the joined path of
// its ancestors.
func (m *Manifest) Walk(fn func(parent string, spec *RouteSpec) error) error {
	var walk func(parent string, specs []RouteSpec) error
	walk = func(parent string, specs []RouteSpec) error {
		for i := range specs {
			spec := &specs[i]
			if err := fn(parent, spec); err != nil {
				return err
			}
			if err := walk(strings.TrimSuffix(parent, "/")+"/"+strings.Trim(spec.Path, "/"), spec.Children); err != nil {
				return err
			}
		}
		return nil
	}
	return walk("", m.Routes)
}
