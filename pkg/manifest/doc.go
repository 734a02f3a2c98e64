// Package manifest declares route trees in YAML, TOML or JSON.
//
// A manifest mirrors router.RouteOptions. Hooks that would be code are
// synthesized from static declarations: context values, a conditional
// redirect, a not-found signal and a loader returning literal data.
// Hooks that need real code are registered by name with WithLoader and
// WithBeforeLoad.
//
//	version: 1
//	root:
//	  errorBoundary: true
//	routes:
//	  - path: posts
//	    loader:
//	      data: {title: Posts}
//	    children:
//	      - path: $postId
//	        params: {postId: int}
//	        loader:
//	          data: {id: "${postId}"}
//	  - path: search
//	    searchDefaults: {page: 1}
//	    redirect:
//	      search: {sort: relevance}
//	      when: {missingSearch: [sort]}
//
// Durations are Go duration strings or numbers of milliseconds. Manifests
// are read from disk with FileSource or from S3 with S3Source:
//
//	m, err := manifest.Load(ctx, &manifest.FileSource{Path: "routes.yaml"})
//	tree, err := m.Tree()
package manifest
