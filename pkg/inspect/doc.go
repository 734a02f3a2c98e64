// Package inspect serves a navigation router over HTTP for debugging and
// tooling.
//
// Routes:
//
//	GET  /routes        the route tree, depth first
//	GET  /match?href=   the matches an href resolves to, without loading
//	GET  /state         the committed router state
//	POST /navigate      navigate and return the committed state
//	POST /preload       preload a target and return its matches
//	POST /invalidate    invalidate cached matches and reload
//	POST /history/{op}  back or forward
//	GET  /cache         match cache statistics and entries
//	GET  /ws            a WebSocket stream of state snapshots
//	GET  /metrics       Prometheus metrics, when a gatherer is configured
//
// Example:
//
//	srv := inspect.New(r, inspect.WithGatherer(prometheus.DefaultGatherer))
//	err := srv.ListenAndServe(ctx, "localhost:7070")
package inspect
