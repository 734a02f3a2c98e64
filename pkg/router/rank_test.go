package router

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func rankIDs(t *testing.T, paths ...string) []string {
	t.Helper()
	tree := buildTree(t, paths...)
	var ids []string
	for _, n := range tree.RankedChildren(RootRouteID) {
		ids = append(ids, n.Path)
	}
	return ids
}

func TestRankKindOrder(t *testing.T) {
	got := rankIDs(t, "$", "{-$opt}", "$id", "about", "_layout")
	want := []string{"about", "$id", "{-$opt}", "$", "_layout"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rank (-want +got):\n%s", diff)
	}
}

func TestRankDeterministic(t *testing.T) {
	paths := []string{"a/$b", "$x/c", "a/b", "{-$l}/a", "a", "$", "a/{-$o}", "pre{$p}", "{$q}.json", "a/b/$"}
	first := rankIDs(t, paths...)
	for i := 0; i < 20; i++ {
		if diff := cmp.Diff(first, rankIDs(t, paths...)); diff != "" {
			t.Fatalf("rank changed between runs (-first +now):\n%s", diff)
		}
	}
}

func TestRankRules(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		want  []string
	}{
		{
			name:  "static prefix beats param",
			paths: []string{"$id/edit", "posts/$id"},
			want:  []string{"posts/$id", "$id/edit"},
		},
		{
			name:  "static after param boosts",
			paths: []string{"$id", "$id/edit"},
			want:  []string{"$id/edit", "$id"},
		},
		{
			name:  "longer wins on equal prefix",
			paths: []string{"a", "a/b"},
			want:  []string{"a/b", "a"},
		},
		{
			name:  "fewer optional params wins",
			paths: []string{"a/{-$x}/{-$y}", "a/{-$x}"},
			want:  []string{"a/{-$x}", "a/{-$x}/{-$y}"},
		},
		{
			name:  "affixes rank above bare params",
			paths: []string{"$id", "{$id}.json", "post-{$id}", "post-{$id}.json"},
			want:  []string{"post-{$id}.json", "post-{$id}", "{$id}.json", "$id"},
		},
		{
			name:  "index above param",
			paths: []string{"$id", "/"},
			want:  []string{"/", "$id"},
		},
		{
			name:  "declaration order breaks ties",
			paths: []string{"$b", "$a"},
			want:  []string{"$b", "$a"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, rankIDs(t, tc.paths...)); diff != "" {
				t.Errorf("rank (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRankPairwise(t *testing.T) {
	order := []string{"static", "$param", "{-$optional}", "$"}
	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			got := rankIDs(t, order[j], order[i])
			if got[0] != order[i] {
				t.Errorf("%s should rank above %s, got %v", order[i], order[j], got)
			}
		}
	}
}

func TestRankCacheInvalidation(t *testing.T) {
	tree := buildTree(t, "$slug")
	if res, _ := tree.Match("/new"); res.Leaf().Node.ID != "/$slug" {
		t.Fatal("expected /$slug before AddRoutes")
	}
	if err := tree.AddRoutes(RootRouteID, NewRoute(RouteOptions{Path: "new"})); err != nil {
		t.Fatal(err)
	}
	if res, _ := tree.Match("/new"); res.Leaf().Node.ID != "/new" {
		t.Errorf("leaf = %s, want /new after AddRoutes", res.Leaf().Node.ID)
	}
}
