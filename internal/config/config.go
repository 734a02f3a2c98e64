package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"github.com/goccy/go-json"
	"github.com/spf13/cast"

	"github.com/vango-dev/waypoint/internal/errors"
)

const (
	// ConfigFileName is the name of the JSON configuration file.
	ConfigFileName = "waypoint.json"

	// TOMLConfigFileName is the name of the TOML configuration file. It is
	// used when no waypoint.json exists.
	TOMLConfigFileName = "waypoint.toml"

	// DefaultPort is the default inspect server port.
	DefaultPort = 7070

	// DefaultHost is the default inspect server host.
	DefaultHost = "localhost"

	// DefaultManifest is the manifest read when none is configured.
	DefaultManifest = "routes.yaml"
)

// Config represents the complete waypoint configuration.
type Config struct {
	// Manifest is the route manifest: a file path or an s3://bucket/key URL.
	Manifest string `json:"manifest,omitempty" toml:"manifest,omitempty"`

	// Basepath is stripped from and prepended to every location.
	Basepath string `json:"basepath,omitempty" toml:"basepath,omitempty"`

	// Cache contains match cache defaults.
	Cache CacheConfig `json:"cache" toml:"cache"`

	// Navigation contains scheduler settings.
	Navigation NavigationConfig `json:"navigation" toml:"navigation"`

	// Server contains inspect server settings.
	Server ServerConfig `json:"server" toml:"server"`

	// S3 configures manifests read from S3.
	S3 S3Config `json:"s3" toml:"s3"`

	// Metrics contains Prometheus settings.
	Metrics MetricsConfig `json:"metrics" toml:"metrics"`

	// Tracing contains OpenTelemetry settings.
	Tracing TracingConfig `json:"tracing" toml:"tracing"`

	// Log contains logging settings.
	Log LogConfig `json:"log" toml:"log"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// CacheConfig contains match cache defaults. Routes may override the
// durations.
type CacheConfig struct {
	StaleTime        Duration `json:"staleTime,omitempty" toml:"staleTime,omitempty"`
	PreloadStaleTime Duration `json:"preloadStaleTime,omitempty" toml:"preloadStaleTime,omitempty"`
	GCTime           Duration `json:"gcTime,omitempty" toml:"gcTime,omitempty"`
	PreloadGCTime    Duration `json:"preloadGcTime,omitempty" toml:"preloadGcTime,omitempty"`

	// MaxEntries bounds the cache. Zero means unbounded.
	MaxEntries int `json:"maxEntries,omitempty" toml:"maxEntries,omitempty"`

	// SweepInterval is how often unreferenced entries are collected.
	SweepInterval Duration `json:"sweepInterval,omitempty" toml:"sweepInterval,omitempty"`
}

// NavigationConfig contains scheduler settings.
type NavigationConfig struct {
	MaxRedirects      int `json:"maxRedirects,omitempty" toml:"maxRedirects,omitempty"`
	LoaderConcurrency int `json:"loaderConcurrency,omitempty" toml:"loaderConcurrency,omitempty"`

	// ErrorBoundary controls whether the root catches hook errors.
	ErrorBoundary *bool `json:"errorBoundary,omitempty" toml:"errorBoundary,omitempty"`

	PreloadRate        float64 `json:"preloadRate,omitempty" toml:"preloadRate,omitempty"`
	PreloadConcurrency int     `json:"preloadConcurrency,omitempty" toml:"preloadConcurrency,omitempty"`

	// TrailingSlash is "never", "always" or "preserve". Empty means never.
	TrailingSlash string `json:"trailingSlash,omitempty" toml:"trailingSlash,omitempty"`
}

// ServerConfig contains inspect server settings.
type ServerConfig struct {
	Host string `json:"host,omitempty" toml:"host,omitempty"`
	Port int    `json:"port,omitempty" toml:"port,omitempty"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `json:"shutdownTimeout,omitempty" toml:"shutdownTimeout,omitempty"`
}

// S3Config configures the S3 manifest source.
type S3Config struct {
	Region       string `json:"region,omitempty" toml:"region,omitempty"`
	Endpoint     string `json:"endpoint,omitempty" toml:"endpoint,omitempty"`
	UsePathStyle bool   `json:"usePathStyle,omitempty" toml:"usePathStyle,omitempty"`

	// MaxElapsed bounds the retries of a manifest fetch.
	MaxElapsed Duration `json:"maxElapsed,omitempty" toml:"maxElapsed,omitempty"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled,omitempty" toml:"enabled,omitempty"`
	Namespace string `json:"namespace,omitempty" toml:"namespace,omitempty"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	Enabled       bool   `json:"enabled,omitempty" toml:"enabled,omitempty"`
	TracerName    string `json:"tracerName,omitempty" toml:"tracerName,omitempty"`
	IncludeSearch bool   `json:"includeSearch,omitempty" toml:"includeSearch,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level,omitempty" toml:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty" toml:"format,omitempty"`
}

// =============================================================================
// Durations
// =============================================================================

// Duration is a time.Duration that decodes from a Go duration string
// ("30s") or a number of milliseconds.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ParseDuration converts a decoded config value to a Duration.
func ParseDuration(v any) (Duration, error) {
	switch x := v.(type) {
	case string:
		if n, err := strconv.ParseInt(x, 10, 64); err == nil {
			return Duration(time.Duration(n) * time.Millisecond), nil
		}
		d, err := cast.ToDurationE(x)
		if err != nil {
			return 0, errors.New(errors.CodeInvalidDuration).Wrap(err)
		}
		return Duration(d), nil
	case time.Duration:
		return Duration(x), nil
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return 0, errors.New(errors.CodeInvalidDuration).Wrap(err)
	}
	return Duration(time.Duration(n) * time.Millisecond), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := ParseDuration(v)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalTOML implements toml.Unmarshaler.
func (d *Duration) UnmarshalTOML(v any) error {
	parsed, err := ParseDuration(v)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// =============================================================================
// Defaults
// =============================================================================

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Manifest: DefaultManifest,
		Cache: CacheConfig{
			PreloadStaleTime: Duration(30 * time.Second),
			GCTime:           Duration(30 * time.Minute),
			PreloadGCTime:    Duration(30 * time.Minute),
			SweepInterval:    Duration(time.Minute),
		},
		Navigation: NavigationConfig{
			MaxRedirects:       8,
			LoaderConcurrency:  16,
			ErrorBoundary:      boolPtr(true),
			PreloadRate:        5,
			PreloadConcurrency: 4,
		},
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		S3: S3Config{
			MaxElapsed: Duration(30 * time.Second),
		},
		Metrics: MetricsConfig{
			Namespace: "waypoint",
		},
		Tracing: TracingConfig{
			TracerName: "waypoint",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func boolPtr(b bool) *bool { return &b }

// applyDefaults fills in default values for zero fields.
func (c *Config) applyDefaults() error {
	if err := mergo.Merge(c, New()); err != nil {
		return errors.New(errors.CodeInvalidConfig).Wrap(err)
	}
	return nil
}

// =============================================================================
// Loading
// =============================================================================

// Load reads configuration from the specified directory. It looks for
// waypoint.json, then waypoint.toml.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if tomlPath := filepath.Join(dir, TOMLConfigFileName); fileExists(tomlPath) {
			path = tomlPath
		}
	}
	return LoadFile(path)
}

// LoadFile reads configuration from the specified file path. The format
// follows the extension.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CodeInvalidConfig).
				WithDetail("No " + filepath.Base(path) + " found in " + filepath.Dir(path)).
				WithSuggestion("Create waypoint.json or pass the manifest with --manifest")
		}
		return nil, errors.New(errors.CodeInvalidConfig).Wrap(err)
	}

	cfg := &Config{}
	if err := decode(path, data, cfg); err != nil {
		return nil, errors.FromError(err, errors.CodeInvalidConfig).
			WithLocationFromError(path, err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	cfg.configPath = path

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return errors.New(errors.CodeInvalidConfig).
				WithDetail(fmt.Sprintf("Unknown keys: %v", undecoded))
		}
		return nil
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(cfg)
	}
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	var buf bytes.Buffer
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return errors.New(errors.CodeInvalidConfig).Wrap(err)
		}
	} else {
		data, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return errors.New(errors.CodeInvalidConfig).Wrap(err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.New(errors.CodeInvalidConfig).Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.New(errors.CodeInvalidAddr).
			WithDetail("Port must be between 0 and 65535")
	}
	if c.Navigation.MaxRedirects < 0 {
		return errors.Newf(errors.CategoryConfig, "navigation.maxRedirects must not be negative")
	}
	if c.Basepath != "" && !strings.HasPrefix(c.Basepath, "/") {
		return errors.Newf(errors.CategoryConfig, "basepath %q must start with /", c.Basepath)
	}
	switch c.Navigation.TrailingSlash {
	case "", "never", "always", "preserve":
	default:
		return errors.Newf(errors.CategoryConfig, "unknown navigation.trailingSlash %q", c.Navigation.TrailingSlash)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.Newf(errors.CategoryConfig, "unknown log format %q", c.Log.Format)
	}
	return nil
}

// Addr returns the inspect server listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, errors.Newf(errors.CategoryConfig, "unknown log level %q", c.Log.Level)
	}
	return level, nil
}

// ManifestPath resolves a relative file manifest against the config
// directory. S3 URLs are returned unchanged.
func (c *Config) ManifestPath() string {
	if strings.HasPrefix(c.Manifest, "s3://") || filepath.IsAbs(c.Manifest) || c.configPath == "" {
		return c.Manifest
	}
	return filepath.Join(c.Dir(), c.Manifest)
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	return fileExists(filepath.Join(dir, ConfigFileName)) || fileExists(filepath.Join(dir, TOMLConfigFileName))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing a config file, or an error if not found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New(errors.CodeInvalidConfig).
				WithDetail("No waypoint.json or waypoint.toml found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the current working directory
// or its closest parent with a config file. Without one, defaults are
// returned.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if err != nil {
		return New(), nil
	}

	return Load(root)
}
