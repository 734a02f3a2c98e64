package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vango-dev/waypoint/internal/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Server.Host != DefaultHost {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, DefaultHost)
	}
	if cfg.Manifest != DefaultManifest {
		t.Errorf("Manifest = %q, want %q", cfg.Manifest, DefaultManifest)
	}
	if cfg.Navigation.MaxRedirects != 8 {
		t.Errorf("Navigation.MaxRedirects = %d, want 8", cfg.Navigation.MaxRedirects)
	}
	if cfg.Cache.GCTime.Std() != 30*time.Minute {
		t.Errorf("Cache.GCTime = %v, want 30m", cfg.Cache.GCTime.Std())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config is invalid: %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(dir); err == nil {
		t.Error("Expected error for missing config")
	}

	writeFile(t, dir, ConfigFileName, `{
  "manifest": "app/routes.toml",
  "basepath": "/app",
  "cache": {
    "staleTime": "5s",
    "gcTime": 60000,
    "maxEntries": 100
  },
  "navigation": {
    "maxRedirects": 3,
    "errorBoundary": false,
    "trailingSlash": "always"
  },
  "server": {
    "port": 8080
  },
  "log": {"level": "debug", "format": "json"}
}
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Basepath != "/app" {
		t.Errorf("Basepath = %q, want /app", cfg.Basepath)
	}
	if cfg.Cache.StaleTime.Std() != 5*time.Second {
		t.Errorf("Cache.StaleTime = %v, want 5s", cfg.Cache.StaleTime.Std())
	}
	if cfg.Cache.GCTime.Std() != time.Minute {
		t.Errorf("Cache.GCTime = %v, want 1m", cfg.Cache.GCTime.Std())
	}
	if cfg.Navigation.MaxRedirects != 3 {
		t.Errorf("Navigation.MaxRedirects = %d, want 3", cfg.Navigation.MaxRedirects)
	}
	if cfg.Navigation.ErrorBoundary == nil || *cfg.Navigation.ErrorBoundary {
		t.Error("Navigation.ErrorBoundary should be false")
	}
	if cfg.Navigation.TrailingSlash != "always" {
		t.Errorf("Navigation.TrailingSlash = %q, want always", cfg.Navigation.TrailingSlash)
	}
	if cfg.Server.Port != 8080 || cfg.Server.Host != DefaultHost {
		t.Errorf("Server = %+v", cfg.Server)
	}
	// defaults fill the rest
	if cfg.Cache.PreloadStaleTime.Std() != 30*time.Second {
		t.Errorf("Cache.PreloadStaleTime = %v, want 30s", cfg.Cache.PreloadStaleTime.Std())
	}
	if cfg.Navigation.LoaderConcurrency != 16 {
		t.Errorf("Navigation.LoaderConcurrency = %d, want 16", cfg.Navigation.LoaderConcurrency)
	}
	if got, want := cfg.ManifestPath(), filepath.Join(dir, "app/routes.toml"); got != want {
		t.Errorf("ManifestPath() = %q, want %q", got, want)
	}
	if cfg.Dir() != dir {
		t.Errorf("Dir() = %q, want %q", cfg.Dir(), dir)
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, TOMLConfigFileName, `
manifest = "s3://routes/prod.yaml"

[cache]
staleTime = "1m"
preloadStaleTime = 500

[s3]
region = "eu-west-1"
usePathStyle = true

[metrics]
enabled = true
namespace = "shop"
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	want := S3Config{Region: "eu-west-1", UsePathStyle: true, MaxElapsed: Duration(30 * time.Second)}
	if diff := cmp.Diff(want, cfg.S3); diff != "" {
		t.Errorf("S3 (-want +got):\n%s", diff)
	}
	if cfg.Cache.StaleTime.Std() != time.Minute || cfg.Cache.PreloadStaleTime.Std() != 500*time.Millisecond {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Namespace != "shop" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
	if cfg.ManifestPath() != "s3://routes/prod.yaml" {
		t.Errorf("ManifestPath() = %q", cfg.ManifestPath())
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name, file, content string
	}{
		{"invalid json", ConfigFileName, `{"server": {`},
		{"unknown json field", ConfigFileName, `{"sever": {"port": 1}}`},
		{"bad duration", ConfigFileName, `{"cache": {"staleTime": "soon"}}`},
		{"unknown toml key", TOMLConfigFileName, "[sever]\nport = 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), tt.file, tt.content)
			_, err := LoadFile(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if e := errors.FromError(err, ""); e.Category != errors.CategoryConfig {
				t.Errorf("category = %q, want config", e.Category)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"out.json", "out.toml"} {
		t.Run(name, func(t *testing.T) {
			cfg := New()
			cfg.Basepath = "/docs"
			cfg.Cache.StaleTime = Duration(90 * time.Second)

			path := filepath.Join(t.TempDir(), name)
			if err := cfg.SaveTo(path); err != nil {
				t.Fatalf("SaveTo: %v", err)
			}
			if cfg.Path() != path {
				t.Errorf("Path() = %q, want %q", cfg.Path(), path)
			}

			loaded, err := LoadFile(path)
			if err != nil {
				t.Fatalf("LoadFile: %v", err)
			}
			loaded.configPath = ""
			cfg.configPath = ""
			if diff := cmp.Diff(cfg, loaded, cmp.AllowUnexported(Config{})); diff != "" {
				t.Errorf("round trip (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSaveWithoutPath(t *testing.T) {
	if err := New().Save(); err == nil {
		t.Error("Save without a path should fail")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      any
		want    time.Duration
		wantErr bool
	}{
		{"30s", 30 * time.Second, false},
		{"1h30m", 90 * time.Minute, false},
		{"250", 250 * time.Millisecond, false},
		{float64(1500), 1500 * time.Millisecond, false},
		{int64(2), 2 * time.Millisecond, false},
		{"later", 0, true},
		{[]int{1}, 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDuration(%v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got.Std() != tt.want {
			t.Errorf("ParseDuration(%v) = %v, want %v", tt.in, got.Std(), tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 70000 }, "Port must be between"},
		{"redirects", func(c *Config) { c.Navigation.MaxRedirects = -1 }, "maxRedirects"},
		{"basepath", func(c *Config) { c.Basepath = "app" }, "must start with /"},
		{"trailing slash", func(c *Config) { c.Navigation.TrailingSlash = "sometimes" }, "trailingSlash"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "unknown log level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "unknown log format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			e := errors.FromError(err, "")
			if !strings.Contains(e.Message+e.Detail, tt.want) {
				t.Errorf("error = %q / %q, want %q", e.Message, e.Detail, tt.want)
			}
		})
	}
}

func TestAddrAndLevel(t *testing.T) {
	cfg := New()
	cfg.Server.Host = "::1"
	if got := cfg.Addr(); got != "[::1]:7070" {
		t.Errorf("Addr() = %q", got)
	}
	cfg.Log.Level = "warn"
	if level, err := cfg.LogLevel(); err != nil || level.String() != "WARN" {
		t.Errorf("LogLevel() = %v, %v", level, err)
	}
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, TOMLConfigFileName, "")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := FindProjectRoot(nested)
	if err != nil {
		t.Fatalf("FindProjectRoot: %v", err)
	}
	if got != root {
		t.Errorf("FindProjectRoot() = %q, want %q", got, root)
	}
	if !Exists(root) || Exists(nested) {
		t.Error("Exists() mismatch")
	}

	if _, err := FindProjectRoot(t.TempDir()); err == nil {
		t.Error("expected error without a config file")
	}
}
