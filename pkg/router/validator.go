package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// =============================================================================
// Route Tree Validation
// =============================================================================

// ValidationError describes a problem found while freezing a route tree.
// NewTree and AddRoutes aggregate them in a *multierror.Error.
type ValidationError struct {
	// Type is the error category
	Type ValidationErrorType

	// Message is the human-readable error message
	Message string

	// RouteIDs are the routes involved
	RouteIDs []string

	// Path is the offending path pattern
	Path string

	// Details contains additional error-specific information
	Details string

	// Err is the underlying cause, if any
	Err error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ValidationErrorType categorizes validation errors.
type ValidationErrorType string

const (
	// ErrorDuplicateRouteID indicates two routes resolve to the same id, or
	// one route value is attached twice.
	ErrorDuplicateRouteID ValidationErrorType = "DUPLICATE_ROUTE_ID"

	// ErrorInvalidPattern indicates a path pattern failed to parse.
	ErrorInvalidPattern ValidationErrorType = "INVALID_PATTERN"

	// ErrorRouteCycle indicates a route is attached below itself.
	ErrorRouteCycle ValidationErrorType = "ROUTE_CYCLE"

	// ErrorInvalidRoot indicates a missing, nested or removed root route.
	ErrorInvalidRoot ValidationErrorType = "INVALID_ROOT"

	// ErrorDuplicateParam indicates a param name already bound by an ancestor.
	ErrorDuplicateParam ValidationErrorType = "DUPLICATE_PARAM"

	// ErrorUnknownRoute indicates a dynamic change referenced a missing id.
	ErrorUnknownRoute ValidationErrorType = "UNKNOWN_ROUTE"
)

// ValidationErrors flattens err into its validation errors.
func ValidationErrors(err error) []*ValidationError {
	if err == nil {
		return nil
	}
	var out []*ValidationError
	var merr *multierror.Error
	if errors.As(err, &merr) {
		for _, e := range merr.Errors {
			out = append(out, ValidationErrors(e)...)
		}
		return out
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		out = append(out, verr)
	}
	return out
}

// HasValidationError reports whether err contains an error of type typ.
func HasValidationError(err error, typ ValidationErrorType) bool {
	for _, v := range ValidationErrors(err) {
		if v.Type == typ {
			return true
		}
	}
	return false
}

// FormatValidationError formats a validation error for display:
//
//	ERROR: duplicate route id "/posts"
//	  /posts → posts
//	  Details: ...
func FormatValidationError(err *ValidationError) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("ERROR: %s\n", err.Message))

	for _, id := range err.RouteIDs {
		sb.WriteString(fmt.Sprintf("  %s → %s\n", id, err.Path))
	}

	if err.Details != "" {
		sb.WriteString(fmt.Sprintf("  Details: %s\n", err.Details))
	}
	if err.Err != nil {
		sb.WriteString(fmt.Sprintf("  Cause: %s\n", err.Err))
	}

	return sb.String()
}
