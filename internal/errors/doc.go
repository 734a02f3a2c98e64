// Package errors provides coded, actionable errors for the waypoint CLI and
// inspect server.
//
// # Error Categories
//
//   - route: Tree construction errors (bad patterns, duplicate ids)
//   - navigation: Lifecycle errors (redirect loops, missing params)
//   - validation: Search and param validation failures
//   - manifest: Route manifest decoding and fetching
//   - config: waypoint.json / waypoint.toml problems
//   - cli: Command usage errors
//
// # Error Codes
//
// Each error has a unique code (e.g., "W001") that maps to a short message,
// a detailed explanation and an optional hint. Classify maps the sentinel
// errors of the routing packages onto these codes.
//
// # Usage
//
//	err := errors.New(errors.CodeInvalidManifest).
//	    WithLocation("routes.yaml", 12, 9).
//	    Wrap(decodeErr)
//
//	errors.PrintError(err)
//	// ERROR W060: Invalid route manifest
//	//
//	//   routes.yaml:12:9
//	//
//	//       10 │   - path: posts
//	//       11 │     children:
//	//     → 12 │       - path: {$id
//	//          │         ^
//	//       13 │
package errors
