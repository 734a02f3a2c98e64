// Package router declares route trees and resolves pathnames against them.
//
// Routes are declared with NewRootRoute and NewRoute, assembled with
// AddChildren and frozen by NewTree into a versioned arena:
//
//	root := router.NewRootRoute(router.RouteOptions{})
//	posts := router.NewRoute(router.RouteOptions{Path: "posts"})
//	posts.AddChildren(
//	    router.NewRoute(router.RouteOptions{Path: "/"}),       // index
//	    router.NewRoute(router.RouteOptions{Path: "$postId"}), // detail
//	)
//	tree, err := router.NewTree(root.AddChildren(posts))
//
// # Matching
//
// Sibling routes are ranked by specificity: static segments, then index
// routes, required params, optional params and catch-alls. Pathless layouts
// are transparent: their children compete with their siblings. Matching
// backtracks, so an optional param that would strand a later segment is
// treated as absent.
//
//	res, _ := tree.Match("/posts/42")
//	res.RouteIDs() // ["__root__", "/posts", "/posts/$postId"]
//	res.Params()   // {"postId": "42"}
//
// A pathname no route consumes yields NotFound with the longest partial
// chain and an anchor for not-found handling.
//
// # Dynamic Trees
//
// AddRoutes and RemoveRoute change a live tree. Only the ranking caches of
// the affected parent are recomputed.
//
// # Control Signals
//
// Lifecycle hooks return Redirect or NotFound to steer a navigation. Both
// are plain errors classified with AsRedirect and AsNotFound.
package router
