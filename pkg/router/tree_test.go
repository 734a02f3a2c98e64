package router

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vango-dev/waypoint/pkg/routepath"
)

// postsTree builds root -> posts -> [index, $postId].
func postsTree(t *testing.T) *Tree {
	t.Helper()
	root := NewRootRoute(RouteOptions{})
	posts := NewRoute(RouteOptions{Path: "posts"})
	index := NewRoute(RouteOptions{Path: "/"})
	detail := NewRoute(RouteOptions{Path: "$postId"})
	root.AddChildren(posts.AddChildren(index, detail))

	tree, err := NewTree(root)
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	return tree
}

func TestNewTreeIDsAndPaths(t *testing.T) {
	tree := postsTree(t)

	tests := []struct {
		id       string
		fullPath string
		to       string
	}{
		{RootRouteID, "/", "/"},
		{"/posts", "/posts", "/posts"},
		{"/posts/", "/posts/", "/posts"},
		{"/posts/$postId", "/posts/$postId", "/posts/$postId"},
	}
	for _, tc := range tests {
		n := tree.Node(tc.id)
		if n == nil {
			t.Fatalf("Node(%q) = nil", tc.id)
		}
		if n.FullPath != tc.fullPath {
			t.Errorf("%s FullPath = %q, want %q", tc.id, n.FullPath, tc.fullPath)
		}
		if n.To != tc.to {
			t.Errorf("%s To = %q, want %q", tc.id, n.To, tc.to)
		}
	}

	if tree.Len() != 4 {
		t.Errorf("Len() = %d, want 4", tree.Len())
	}
	if n := tree.NodeByPath("/posts/"); n == nil || n.ID != "/posts/" {
		t.Errorf("NodeByPath(/posts/) = %v, want index route", n)
	}
}

func TestNewTreePathlessLayouts(t *testing.T) {
	root := NewRootRoute(RouteOptions{})
	auth := NewRoute(RouteOptions{Path: "_auth"})
	dashboard := NewRoute(RouteOptions{Path: "dashboard"})
	shell := NewRoute(RouteOptions{ID: "shell"})
	settings := NewRoute(RouteOptions{Path: "settings"})
	root.AddChildren(auth.AddChildren(dashboard), shell.AddChildren(settings))
	tree := MustNewTree(root)

	if n := tree.Node("/_auth"); n == nil || !n.Pathless() || n.FullPath != "/" {
		t.Errorf("Node(/_auth) = %+v", n)
	}
	if n := tree.Node("/_auth/dashboard"); n == nil || n.FullPath != "/dashboard" {
		t.Errorf("Node(/_auth/dashboard) = %+v", n)
	}
	if n := tree.Node("/shell/settings"); n == nil || n.FullPath != "/settings" {
		t.Errorf("Node(/shell/settings) = %+v", n)
	}

	var ids []string
	for _, n := range tree.Ancestors("/_auth/dashboard") {
		ids = append(ids, n.ID)
	}
	if diff := cmp.Diff([]string{RootRouteID, "/_auth", "/_auth/dashboard"}, ids); diff != "" {
		t.Errorf("Ancestors (-want +got):\n%s", diff)
	}
}

func TestNewTreeErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Route
		want  ValidationErrorType
	}{
		{
			name: "duplicate id",
			build: func() *Route {
				return NewRootRoute(RouteOptions{}).AddChildren(
					NewRoute(RouteOptions{Path: "a"}),
					NewRoute(RouteOptions{Path: "/a"}),
				)
			},
			want: ErrorDuplicateRouteID,
		},
		{
			name: "invalid pattern",
			build: func() *Route {
				return NewRootRoute(RouteOptions{}).AddChildren(NewRoute(RouteOptions{Path: "$/x"}))
			},
			want: ErrorInvalidPattern,
		},
		{
			name: "cycle",
			build: func() *Route {
				a := NewRoute(RouteOptions{Path: "a"})
				b := NewRoute(RouteOptions{Path: "b"})
				a.AddChildren(b)
				b.AddChildren(a)
				return NewRootRoute(RouteOptions{}).AddChildren(a)
			},
			want: ErrorRouteCycle,
		},
		{
			name: "nested root",
			build: func() *Route {
				return NewRootRoute(RouteOptions{}).AddChildren(NewRootRoute(RouteOptions{}))
			},
			want: ErrorInvalidRoot,
		},
		{
			name: "shadowed param",
			build: func() *Route {
				return NewRootRoute(RouteOptions{}).AddChildren(
					NewRoute(RouteOptions{Path: "$id"}).AddChildren(NewRoute(RouteOptions{Path: "x/$id"})),
				)
			},
			want: ErrorDuplicateParam,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTree(tc.build())
			if err == nil {
				t.Fatal("expected error")
			}
			if !HasValidationError(err, tc.want) {
				t.Errorf("error = %v, want type %s", err, tc.want)
			}
		})
	}
}

func TestNewTreeAggregatesErrors(t *testing.T) {
	root := NewRootRoute(RouteOptions{}).AddChildren(
		NewRoute(RouteOptions{Path: "$/x"}),
		NewRoute(RouteOptions{Path: "a"}),
		NewRoute(RouteOptions{Path: "a"}),
	)
	_, err := NewTree(root)
	errs := ValidationErrors(err)
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2: %v", len(errs), err)
	}
	if !errors.Is(err, routepath.ErrWildcardNotLast) {
		t.Errorf("errors.Is(err, ErrWildcardNotLast) = false: %v", err)
	}
	if out := FormatValidationError(errs[0]); out == "" {
		t.Error("FormatValidationError returned empty output")
	}
}

func TestNewTreeRequiresRoot(t *testing.T) {
	if _, err := NewTree(NewRoute(RouteOptions{Path: "x"})); !HasValidationError(err, ErrorInvalidRoot) {
		t.Errorf("error = %v, want INVALID_ROOT", err)
	}
}

func TestAddAndRemoveRoutes(t *testing.T) {
	tree := postsTree(t)
	v0 := tree.Version()

	if res, _ := tree.Match("/about"); !res.NotFound {
		t.Fatal("/about matched before it was added")
	}

	if err := tree.AddRoutes(RootRouteID, NewRoute(RouteOptions{Path: "about"})); err != nil {
		t.Fatalf("AddRoutes: %v", err)
	}
	if tree.Version() == v0 {
		t.Error("Version did not change after AddRoutes")
	}
	if res, _ := tree.Match("/about"); res.NotFound {
		t.Error("/about should match after AddRoutes")
	}

	if err := tree.AddRoutes(RootRouteID, NewRoute(RouteOptions{Path: "about"})); !HasValidationError(err, ErrorDuplicateRouteID) {
		t.Errorf("duplicate AddRoutes error = %v", err)
	}
	if err := tree.AddRoutes("/missing", NewRoute(RouteOptions{Path: "x"})); !HasValidationError(err, ErrorUnknownRoute) {
		t.Errorf("AddRoutes to missing parent error = %v", err)
	}

	if err := tree.RemoveRoute("/posts"); err != nil {
		t.Fatalf("RemoveRoute: %v", err)
	}
	if tree.Node("/posts/$postId") != nil {
		t.Error("subtree not removed")
	}
	if res, _ := tree.Match("/posts/1"); !res.NotFound {
		t.Error("/posts/1 should not match after removal")
	}
	if err := tree.RemoveRoute(RootRouteID); !HasValidationError(err, ErrorInvalidRoot) {
		t.Errorf("RemoveRoute(root) error = %v", err)
	}
}

func TestAddRoutesBelowPathlessLayout(t *testing.T) {
	root := NewRootRoute(RouteOptions{})
	layout := NewRoute(RouteOptions{Path: "_app"})
	root.AddChildren(layout, NewRoute(RouteOptions{Path: "$slug"}))
	tree := MustNewTree(root)

	if res, _ := tree.Match("/pricing"); res.Leaf().Node.ID != "/$slug" {
		t.Fatalf("leaf = %s, want /$slug", res.Leaf().Node.ID)
	}

	if err := tree.AddRoutes("/_app", NewRoute(RouteOptions{Path: "pricing"})); err != nil {
		t.Fatal(err)
	}
	res, _ := tree.Match("/pricing")
	if diff := cmp.Diff([]string{RootRouteID, "/_app", "/_app/pricing"}, res.RouteIDs()); diff != "" {
		t.Errorf("chain after adding below layout (-want +got):\n%s", diff)
	}
}

func TestPublishedNodesAreNotMutated(t *testing.T) {
	root := NewRootRoute(RouteOptions{})
	layout := NewRoute(RouteOptions{Path: "_app"})
	root.AddChildren(layout, NewRoute(RouteOptions{Path: "posts"}))
	tree := MustNewTree(root)

	oldRoot, oldLayout := tree.Node(RootRouteID), tree.Node("/_app")
	rootVersion, layoutVersion := oldRoot.version, oldLayout.version
	rootChildren := append([]int(nil), oldRoot.Children...)

	if err := tree.AddRoutes("/_app", NewRoute(RouteOptions{Path: "pricing"})); err != nil {
		t.Fatal(err)
	}

	if oldRoot.version != rootVersion || oldLayout.version != layoutVersion {
		t.Errorf("published versions changed: root %d -> %d, layout %d -> %d",
			rootVersion, oldRoot.version, layoutVersion, oldLayout.version)
	}
	if diff := cmp.Diff(rootChildren, oldRoot.Children); diff != "" {
		t.Errorf("published root children changed (-want +got):\n%s", diff)
	}
	newRoot := tree.Node(RootRouteID)
	if newRoot == oldRoot || newRoot.version != tree.Version() {
		t.Errorf("root was not republished with version %d", tree.Version())
	}
	if len(oldLayout.Children) != 0 || len(tree.Node("/_app").Children) != 1 {
		t.Error("layout children were modified in place")
	}
}

func TestWalk(t *testing.T) {
	tree := postsTree(t)
	var ids []string
	tree.Walk(func(n *Node) bool {
		ids = append(ids, n.ID)
		return true
	})
	want := []string{RootRouteID, "/posts", "/posts/", "/posts/$postId"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("Walk order (-want +got):\n%s", diff)
	}
}
