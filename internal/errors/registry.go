package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
}

// Registered error codes.
const (
	CodeInvalidPattern  = "W001"
	CodeDuplicateRoute  = "W002"
	CodeDuplicateParam  = "W003"
	CodeUnknownRoute    = "W004"
	CodeInvalidTree     = "W005"
	CodeInvalidPath     = "W006"
	CodePathEscapesRoot = "W007"

	CodeNotFound       = "W020"
	CodeMissingParam   = "W021"
	CodeRedirectLoop   = "W022"
	CodeCancelled      = "W023"
	CodeRouterClosed   = "W024"
	CodePreloadDropped = "W025"
	CodeLoaderFailed   = "W026"
	CodeBlocked        = "W027"

	CodeInvalidSearch = "W040"
	CodeInvalidParams = "W041"

	CodeInvalidManifest     = "W060"
	CodeUnsupportedManifest = "W061"
	CodeManifestFetch       = "W062"
	CodeInvalidSchema       = "W063"

	CodeInvalidConfig   = "W080"
	CodeInvalidDuration = "W081"
	CodeInvalidAddr     = "W082"

	CodeNoManifest  = "W100"
	CodeInvalidArgs = "W101"
	CodeServeFailed = "W102"
)

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Route Errors (W001-W019)
	// ============================================

	CodeInvalidPattern: {
		Category:   CategoryRoute,
		Message:    "Invalid path pattern",
		Detail:     "A route path could not be parsed. Segments are static text, $param, {$param} with optional prefix and suffix, {-$param} for optional params, or a trailing $ catch-all.",
		Suggestion: "Escape literal characters with [ ], e.g. posts[.]json",
	},
	CodeDuplicateRoute: {
		Category: CategoryRoute,
		Message:  "Duplicate route id",
		Detail:   "Two routes resolve to the same id. Route ids are derived from the joined paths unless an explicit id is given.",
	},
	CodeDuplicateParam: {
		Category: CategoryRoute,
		Message:  "Duplicate path param",
		Detail:   "A param name is already bound by an ancestor route.",
	},
	CodeUnknownRoute: {
		Category: CategoryRoute,
		Message:  "Unknown route",
		Detail:   "A route id passed to a tree operation does not exist.",
	},
	CodeInvalidTree: {
		Category: CategoryRoute,
		Message:  "Invalid route tree",
		Detail:   "The route tree has no root, a nested root, or a cycle.",
	},
	CodeInvalidPath: {
		Category: CategoryRoute,
		Message:  "Invalid path",
		Detail:   "The pathname contains a backslash, a null byte, an encoded slash or a malformed percent escape.",
	},
	CodePathEscapesRoot: {
		Category: CategoryRoute,
		Message:  "Path escapes root",
		Detail:   "Resolving .. segments moved above the root.",
	},

	// ============================================
	// Navigation Errors (W020-W039)
	// ============================================

	CodeNotFound: {
		Category: CategoryNavigation,
		Message:  "No route matches",
		Detail:   "The location did not fully match any route. The deepest matched route renders the not-found component.",
	},
	CodeMissingParam: {
		Category:   CategoryNavigation,
		Message:    "Missing route parameter",
		Detail:     "A destination path references a param that was not provided and is not in the current match.",
		Suggestion: "Pass the param in NavigateOptions.Params",
	},
	CodeRedirectLoop: {
		Category:   CategoryNavigation,
		Message:    "Too many redirects",
		Detail:     "A navigation followed more redirects than the configured maximum.",
		Suggestion: "Check that redirect targets do not redirect back",
	},
	CodeCancelled: {
		Category: CategoryNavigation,
		Message:  "Navigation cancelled",
		Detail:   "The navigation was superseded by a newer one or its context ended.",
	},
	CodeRouterClosed: {
		Category: CategoryNavigation,
		Message:  "Router closed",
	},
	CodePreloadDropped: {
		Category: CategoryNavigation,
		Message:  "Preload dropped",
		Detail:   "The preload exceeded the preload rate or concurrency limit.",
	},
	CodeLoaderFailed: {
		Category: CategoryNavigation,
		Message:  "Loader failed",
		Detail:   "A route loader returned an error and no error boundary covered it.",
	},
	CodeBlocked: {
		Category:   CategoryNavigation,
		Message:    "Navigation blocked",
		Detail:     "A navigation blocker rejected the transition before it started.",
		Suggestion: "Pass IgnoreBlocker to navigate past registered blockers",
	},

	// ============================================
	// Validation Errors (W040-W059)
	// ============================================

	CodeInvalidSearch: {
		Category: CategoryValidation,
		Message:  "Invalid search",
		Detail:   "The search params failed the route's validateSearch.",
	},
	CodeInvalidParams: {
		Category: CategoryValidation,
		Message:  "Invalid path params",
		Detail:   "The path params failed the route's params parser, so the branch did not match.",
	},

	// ============================================
	// Manifest Errors (W060-W079)
	// ============================================

	CodeInvalidManifest: {
		Category: CategoryManifest,
		Message:  "Invalid route manifest",
		Detail:   "The route manifest could not be decoded.",
	},
	CodeUnsupportedManifest: {
		Category:   CategoryManifest,
		Message:    "Unsupported manifest format",
		Suggestion: "Use a .yaml, .yml, .toml or .json file",
	},
	CodeManifestFetch: {
		Category: CategoryManifest,
		Message:  "Manifest fetch failed",
		Detail:   "The manifest could not be read from its source after retrying.",
	},
	CodeInvalidSchema: {
		Category: CategoryManifest,
		Message:  "Invalid search schema",
		Detail:   "A route's searchSchema is not a valid JSON Schema.",
	},

	// ============================================
	// Configuration Errors (W080-W099)
	// ============================================

	CodeInvalidConfig: {
		Category: CategoryConfig,
		Message:  "Invalid waypoint config",
		Detail:   "The waypoint.json or waypoint.toml configuration file is malformed.",
	},
	CodeInvalidDuration: {
		Category:   CategoryConfig,
		Message:    "Invalid duration",
		Suggestion: `Use a Go duration such as "30s" or a number of milliseconds`,
	},
	CodeInvalidAddr: {
		Category: CategoryConfig,
		Message:  "Invalid listen address",
	},

	// ============================================
	// CLI Errors (W100-W119)
	// ============================================

	CodeNoManifest: {
		Category:   CategoryCLI,
		Message:    "No route manifest",
		Detail:     "No manifest was given and the config does not name one.",
		Suggestion: "Pass --manifest or set manifest in waypoint.json",
	},
	CodeInvalidArgs: {
		Category: CategoryCLI,
		Message:  "Invalid arguments",
	},
	CodeServeFailed: {
		Category: CategoryCLI,
		Message:  "Inspect server failed",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
