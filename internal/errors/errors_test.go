package errors

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"

	"github.com/vango-dev/waypoint/pkg/manifest"
	"github.com/vango-dev/waypoint/pkg/navigation"
	"github.com/vango-dev/waypoint/pkg/routepath"
	"github.com/vango-dev/waypoint/pkg/router"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{
			name:    "route error",
			code:    CodeInvalidPattern,
			wantMsg: "Invalid path pattern",
			wantCat: CategoryRoute,
		},
		{
			name:    "navigation error",
			code:    CodeRedirectLoop,
			wantMsg: "Too many redirects",
			wantCat: CategoryNavigation,
		},
		{
			name:    "manifest error",
			code:    CodeInvalidManifest,
			wantMsg: "Invalid route manifest",
			wantCat: CategoryManifest,
		},
		{
			name:    "unknown error code",
			code:    "W999",
			wantMsg: "Unknown error",
			wantCat: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CategoryCLI, "file %q not found", "routes.yaml")
	if err.Message != `file "routes.yaml" not found` {
		t.Errorf("Message = %q, want %q", err.Message, `file "routes.yaml" not found`)
	}
	if err.Category != CategoryCLI {
		t.Errorf("Category = %q, want %q", err.Category, CategoryCLI)
	}
}

func TestError_Error(t *testing.T) {
	err := New(CodeRouterClosed)
	if got, want := err.Error(), "W024: Router closed"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	err = New(CodeManifestFetch).Wrap(errors.New("access denied"))
	if got, want := err.Error(), "W062: Manifest fetch failed: access denied"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	plain := &Error{Message: "test error"}
	if plain.Error() != "test error" {
		t.Errorf("Error() = %q, want %q", plain.Error(), "test error")
	}
}

func writeManifest(t *testing.T) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "routes.yaml")
	content := `routes:
  - path: posts
    children:
      - path: "{$id"
      - path: new
`
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return file
}

func TestError_WithLocation(t *testing.T) {
	file := writeManifest(t)

	err := New(CodeInvalidPattern).WithLocation(file, 4, 15)
	if err.Location == nil {
		t.Fatal("Location is nil")
	}
	if err.Location.File != file || err.Location.Line != 4 || err.Location.Column != 15 {
		t.Errorf("Location = %+v", err.Location)
	}
	if len(err.Context) == 0 {
		t.Error("Context should not be empty")
	}
}

func TestError_WithLocationFromError(t *testing.T) {
	file := writeManifest(t)

	tests := []struct {
		name     string
		err      error
		wantFile string
		wantLine int
		wantCol  int
	}{
		{"yaml position", errors.New("[4:15] could not find end character of double-quoted text"), file, 4, 15},
		{"file position", fmt.Errorf("%s:3:5: bad indent", file), file, 3, 5},
		{"no position", errors.New("boom"), "", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(CodeInvalidManifest).WithLocationFromError(file, tt.err)
			if tt.wantLine == 0 {
				if err.Location != nil {
					t.Errorf("Location = %+v, want nil", err.Location)
				}
				return
			}
			if err.Location == nil {
				t.Fatal("Location is nil")
			}
			if err.Location.File != tt.wantFile || err.Location.Line != tt.wantLine || err.Location.Column != tt.wantCol {
				t.Errorf("Location = %+v", err.Location)
			}
		})
	}
}

func TestError_Builders(t *testing.T) {
	err := New(CodeInvalidArgs).
		WithSuggestion("pass a path").
		WithExample("waypoint match /posts/1").
		WithDetail("match needs one argument").
		WithContext([]string{"line"})

	if err.Suggestion != "pass a path" || err.Example != "waypoint match /posts/1" ||
		err.Detail != "match needs one argument" || len(err.Context) != 1 {
		t.Errorf("builders did not apply: %+v", err)
	}
}

func TestError_Wrap(t *testing.T) {
	inner := New(CodeNotFound)
	outer := New(CodeLoaderFailed).Wrap(inner)

	if outer.Wrapped != inner {
		t.Error("Wrapped error mismatch")
	}
	if outer.Unwrap() != inner {
		t.Error("Unwrap() should return wrapped error")
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil, CodeInvalidConfig) != nil {
		t.Error("FromError(nil, ...) should return nil")
	}

	e := New(CodeInvalidConfig)
	if FromError(fmt.Errorf("load: %w", e), CodeInvalidArgs) != e {
		t.Error("FromError should return a wrapped *Error as-is")
	}

	stdErr := errors.New("test error")
	result := FromError(stdErr, CodeInvalidConfig)
	if result.Wrapped != stdErr || result.Code != CodeInvalidConfig {
		t.Error("Standard error should be wrapped")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"duplicate route", multierror.Append(nil, &router.ValidationError{Type: router.ErrorDuplicateRouteID, Message: "dup"}), CodeDuplicateRoute},
		{"invalid pattern", &router.ValidationError{Type: router.ErrorInvalidPattern, Err: routepath.ErrUnbalancedEscape}, CodeInvalidPattern},
		{"cycle", &router.ValidationError{Type: router.ErrorRouteCycle}, CodeInvalidTree},
		{"escapes root", fmt.Errorf("canonicalize: %w", routepath.ErrPathEscapesRoot), CodePathEscapesRoot},
		{"bad escape", routepath.ErrInvalidPercentEscape, CodeInvalidPath},
		{"missing params", &navigation.NavigationError{Err: navigation.ErrMissingParams}, CodeMissingParam},
		{"redirect loop", fmt.Errorf("nav: %w", navigation.ErrRedirectLoop), CodeRedirectLoop},
		{"cancelled", &navigation.CancelledError{Cause: navigation.ErrSuperseded}, CodeCancelled},
		{"closed", navigation.ErrRouterClosed, CodeRouterClosed},
		{"blocked", &navigation.NavigationError{Err: navigation.ErrBlocked}, CodeBlocked},
		{"not found", router.NotFound(""), CodeNotFound},
		{"manifest format", fmt.Errorf("routes.txt: %w", manifest.ErrUnsupportedFormat), CodeUnsupportedManifest},
		{"manifest", fmt.Errorf("%w: version 2", manifest.ErrInvalidManifest), CodeInvalidManifest},
		{"fallback", errors.New("boom"), CodeLoaderFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err, CodeLoaderFailed)
			if got.Code != tt.want {
				t.Errorf("Classify() code = %s, want %s", got.Code, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Error("classified error does not wrap the original")
			}
		})
	}
	if Classify(nil, CodeLoaderFailed) != nil {
		t.Error("Classify(nil) should return nil")
	}
}

func TestLocation_String(t *testing.T) {
	tests := []struct {
		name string
		loc  *Location
		want string
	}{
		{
			name: "nil location",
			loc:  nil,
			want: "",
		},
		{
			name: "with column",
			loc:  &Location{File: "routes.yaml", Line: 10, Column: 5},
			want: "routes.yaml:10:5",
		},
		{
			name: "without column",
			loc:  &Location{File: "routes.yaml", Line: 10, Column: 0},
			want: "routes.yaml:10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.loc.String()
			if got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	file := writeManifest(t)
	err := New(CodeInvalidPattern).
		WithLocation(file, 4, 15).
		WithExample("path: \"{$id}\"")

	formatted := err.Format()
	for _, want := range []string{
		CodeInvalidPattern,
		"Invalid path pattern",
		file,
		`- path: "{$id"`,
		"Hint:",
		"Example:",
	} {
		if !strings.Contains(formatted, want) {
			t.Errorf("Format() missing %q:\n%s", want, formatted)
		}
	}
}

func TestFormatCompact(t *testing.T) {
	err := New(CodeInvalidPattern).WithLocation("routes.yaml", 10, 5)
	want := "routes.yaml:10:5: W001: Invalid path pattern"
	if got := err.FormatCompact(); got != want {
		t.Errorf("FormatCompact() = %q, want %q", got, want)
	}
}

func TestFormatJSON(t *testing.T) {
	err := New(CodeRedirectLoop).WithLocation("routes.yaml", 10, 5).Wrap(errors.New("9 hops"))
	json := err.FormatJSON()

	for _, want := range []string{
		`"code":"W022"`,
		`"category":"navigation"`,
		`"message":"Too many redirects"`,
		`"location":{"file":"routes.yaml","line":10,"column":5}`,
		`"cause":"9 hops"`,
	} {
		if !strings.Contains(json, want) {
			t.Errorf("FormatJSON() missing %s: %s", want, json)
		}
	}
}

func TestFprint(t *testing.T) {
	DisableColors()
	defer EnableColors()

	var merr *multierror.Error
	merr = multierror.Append(merr, New(CodeDuplicateRoute), errors.New("plain failure"))

	var buf bytes.Buffer
	Fprint(&buf, merr)
	out := buf.String()
	if !strings.Contains(out, "ERROR W002: Duplicate route id") {
		t.Errorf("missing coded error:\n%s", out)
	}
	if !strings.Contains(out, "ERROR: plain failure") {
		t.Errorf("missing plain error:\n%s", out)
	}
}

func TestRegistry(t *testing.T) {
	codes := GetAllCodes()
	for _, code := range codes {
		tmpl, _ := GetTemplate(code)
		if tmpl.Category == "" || tmpl.Message == "" {
			t.Errorf("%s: incomplete template %+v", code, tmpl)
		}
	}

	if _, ok := GetTemplate("W999"); ok {
		t.Error("W999 should not exist")
	}

	Register("W999", ErrorTemplate{
		Category: CategoryCLI,
		Message:  "Custom test error",
	})
	defer delete(registry, "W999")
	if err := New("W999"); err.Message != "Custom test error" {
		t.Errorf("Message = %q, want %q", err.Message, "Custom test error")
	}
}

func TestWrapText(t *testing.T) {
	got := wrapText("short text", 100)
	if len(got) != 1 || got[0] != "short text" {
		t.Errorf("wrapText short text: got %v", got)
	}

	got = wrapText("this is a longer text that should be wrapped", 20)
	if len(got) != 3 {
		t.Errorf("wrapText long text: expected 3 lines, got %d: %v", len(got), got)
	}

	if got = wrapText("", 10); len(got) != 0 {
		t.Errorf("wrapText empty: expected empty, got %v", got)
	}
}

func TestColorFunctions(t *testing.T) {
	EnableColors()
	if !strings.Contains(red("test"), "\033[31m") {
		t.Error("red should contain ANSI code when colors enabled")
	}

	DisableColors()
	if strings.Contains(red("test"), "\033[") {
		t.Error("red should not contain ANSI code when colors disabled")
	}
	EnableColors()
}
