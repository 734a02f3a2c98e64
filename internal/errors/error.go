package errors

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/vango-dev/waypoint/pkg/manifest"
	"github.com/vango-dev/waypoint/pkg/navigation"
	"github.com/vango-dev/waypoint/pkg/routepath"
	"github.com/vango-dev/waypoint/pkg/router"
)

// Category represents the type of error.
type Category string

const (
	CategoryRoute      Category = "route"
	CategoryNavigation Category = "navigation"
	CategoryManifest   Category = "manifest"
	CategoryValidation Category = "validation"
	CategoryConfig     Category = "config"
	CategoryCLI        Category = "cli"
)

// Location represents a position in a manifest or config file.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns the location as a formatted string.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Error is a structured error with a code, a file location and a hint.
type Error struct {
	// Code is a unique error identifier (e.g., "W001").
	Code string

	// Category is the error type (route, navigation, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Location is the file position where the error occurred.
	Location *Location

	// Context contains the surrounding file lines.
	Context []string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Example shows the correct form.
	Example string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// WithLocation adds a file position to the error.
func (e *Error) WithLocation(file string, line, column int) *Error {
	e.Location = &Location{File: file, Line: line, Column: column}
	e.Context = readContextLines(file, line, 5)
	return e
}

// WithLocationFromError extracts a position from errors formatted as
// "file:line:column: message", or as "[line:column] message" by the YAML
// decoder, in which case file names the document.
func (e *Error) WithLocationFromError(file string, err error) *Error {
	if err == nil {
		return e
	}
	msg := err.Error()
	var line, col int
	if strings.HasPrefix(msg, "[") {
		fmt.Sscanf(msg, "[%d:%d]", &line, &col)
	} else if parts := strings.SplitN(msg, ":", 4); len(parts) >= 3 {
		fmt.Sscanf(parts[1], "%d", &line)
		fmt.Sscanf(parts[2], "%d", &col)
		file = parts[0]
	}
	if line > 0 && file != "" {
		e.WithLocation(file, line, col)
	}
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// WithExample adds an example to the error.
func (e *Error) WithExample(ex string) *Error {
	e.Example = ex
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *Error) WithDetail(d string) *Error {
	e.Detail = d
	return e
}

// WithContext adds custom context lines to the error.
func (e *Error) WithContext(lines []string) *Error {
	e.Context = lines
	return e
}

// Wrap wraps another error.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// readContextLines reads lines around the specified line number from a file.
func readContextLines(filename string, targetLine, contextSize int) []string {
	file, err := os.Open(filename)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	lineNum := 0
	startLine := targetLine - contextSize/2
	endLine := targetLine + contextSize/2

	for scanner.Scan() {
		lineNum++
		if lineNum >= startLine && lineNum <= endLine {
			lines = append(lines, scanner.Text())
		}
		if lineNum > endLine {
			break
		}
	}

	return lines
}

// New creates an Error from a registered error code.
func New(code string) *Error {
	template, ok := registry[code]
	if !ok {
		return &Error{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &Error{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Detail:     template.Detail,
		Suggestion: template.Suggestion,
	}
}

// Newf creates a new Error with a formatted message (no code).
func Newf(category Category, format string, args ...any) *Error {
	return &Error{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in an Error.
func FromError(err error, code string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return New(code).Wrap(err)
}

// Classify maps errors returned by the routing packages to a registered
// code, falling back to fallback.
func Classify(err error, fallback string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	code := fallback
	if verrs := router.ValidationErrors(err); len(verrs) > 0 {
		code = validationCodes[verrs[0].Type]
		if code == "" {
			code = CodeInvalidTree
		}
		return New(code).Wrap(err)
	}
	switch {
	case errors.Is(err, routepath.ErrPathEscapesRoot):
		code = CodePathEscapesRoot
	case errors.Is(err, routepath.ErrInvalidPath),
		errors.Is(err, routepath.ErrBackslashInPath),
		errors.Is(err, routepath.ErrNullByteInPath),
		errors.Is(err, routepath.ErrInvalidPercentEscape),
		errors.Is(err, routepath.ErrEncodedSlashInSegment):
		code = CodeInvalidPath
	case errors.Is(err, navigation.ErrMissingParams):
		code = CodeMissingParam
	case errors.Is(err, navigation.ErrRedirectLoop):
		code = CodeRedirectLoop
	case errors.Is(err, navigation.ErrRouterClosed):
		code = CodeRouterClosed
	case errors.Is(err, navigation.ErrPreloadDropped):
		code = CodePreloadDropped
	case errors.Is(err, navigation.ErrBlocked):
		code = CodeBlocked
	case navigation.IsCancelled(err):
		code = CodeCancelled
	case errors.Is(err, router.ErrNotFound):
		code = CodeNotFound
	case errors.Is(err, manifest.ErrUnsupportedFormat):
		code = CodeUnsupportedManifest
	case errors.Is(err, manifest.ErrInvalidManifest):
		code = CodeInvalidManifest
	}
	return New(code).Wrap(err)
}

var validationCodes = map[router.ValidationErrorType]string{
	router.ErrorInvalidPattern:   CodeInvalidPattern,
	router.ErrorDuplicateRouteID: CodeDuplicateRoute,
	router.ErrorDuplicateParam:   CodeDuplicateParam,
	router.ErrorRouteCycle:       CodeInvalidTree,
	router.ErrorInvalidRoot:      CodeInvalidTree,
	router.ErrorUnknownRoute:     CodeUnknownRoute,
}
