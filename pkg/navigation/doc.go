// Package navigation schedules navigations over a route tree.
//
// A Router turns a navigation target into a location, matches it against
// the tree and runs the route lifecycle before committing a new State:
//
//	r := navigation.New(tree, navigation.WithLogger(logger))
//	defer r.Close()
//
//	if err := r.Navigate(ctx, navigation.NavigateOptions{
//	    To:     "/posts/$postId",
//	    Params: map[string]string{"postId": "42"},
//	}); err != nil {
//	    // *CancelledError or *NavigationError
//	}
//
// # Lifecycle
//
// Context and beforeLoad hooks run one route at a time from the root down,
// each seeing the context its ancestors produced. Loaders then run
// concurrently for every route above the first failing one. A hook may
// return router.Redirect, which restarts the navigation at the target, or
// router.NotFound, which commits the chain with a not-found outcome at its
// anchor.
//
// # Single flight
//
// Starting a navigation cancels the one in flight. The cancelled
// navigation's hooks see their context end, and it returns a
// *CancelledError without touching the committed state. Redirects stay in
// the same generation and are bounded by WithMaxRedirects.
//
// # Caching
//
// Loader results are stored in a matchcache.Cache keyed by route, params
// and loader deps. Fresh entries are reused; stale ones are served at once
// and refetched in the background; invalidated ones are refetched before
// commit. Preload warms the cache without committing.
package navigation
