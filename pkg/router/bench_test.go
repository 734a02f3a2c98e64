package router

import (
	"fmt"
	"testing"
)

func benchTree(b *testing.B, paths ...string) *Tree {
	b.Helper()
	root := NewRootRoute(RouteOptions{})
	for _, p := range paths {
		root.AddChildren(NewRoute(RouteOptions{Path: p}))
	}
	tree, err := NewTree(root)
	if err != nil {
		b.Fatal(err)
	}
	return tree
}

// BenchmarkTreeMatchStatic benchmarks matching a static route.
func BenchmarkTreeMatchStatic(b *testing.B) {
	tree := benchTree(b, "/", "about", "contact", "pricing", "features")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tree.Match("/about")
	}
}

// BenchmarkTreeMatchParam benchmarks matching a parameterized route.
func BenchmarkTreeMatchParam(b *testing.B) {
	tree := benchTree(b, "users/$id")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tree.Match("/users/123")
	}
}

// BenchmarkTreeMatchMultipleParams benchmarks matching multiple parameters.
func BenchmarkTreeMatchMultipleParams(b *testing.B) {
	tree := benchTree(b, "users/$userId/posts/$postId/comments/$commentId")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tree.Match("/users/42/posts/100/comments/999")
	}
}

// BenchmarkTreeMatchCatchAll benchmarks matching a catch-all route.
func BenchmarkTreeMatchCatchAll(b *testing.B) {
	tree := benchTree(b, "files/$")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tree.Match("/files/a/b/c/d/e")
	}
}

// BenchmarkTreeMatchOptional benchmarks backtracking through optional params.
func BenchmarkTreeMatchOptional(b *testing.B) {
	tree := benchTree(b, "{-$lang}/{-$region}/docs/$page")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tree.Match("/docs/intro")
	}
}

// BenchmarkTreeMatchManyRoutes benchmarks matching in a wide tree.
func BenchmarkTreeMatchManyRoutes(b *testing.B) {
	paths := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		paths = append(paths, fmt.Sprintf("section%d/$id", i))
	}
	tree := benchTree(b, paths...)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tree.Match("/section99/42")
	}
}
