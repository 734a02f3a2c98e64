package navigation

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMemoryHistory(t *testing.T) {
	h := NewMemoryHistory()
	type change struct {
		Href   string
		Action HistoryAction
	}
	var got []change
	unlisten := h.Listen(func(e HistoryEntry, a HistoryAction) {
		got = append(got, change{e.Href, a})
	})

	h.Push("/a", nil)
	h.Push("/b", map[string]any{"k": 1})
	h.Back()
	h.Replace("/a2", nil)
	h.Push("/c", nil) // drops /b
	h.Go(-10)
	h.Forward()
	h.Forward()
	h.Forward() // at the end: no change

	want := []change{
		{"/a", ActionPush},
		{"/b", ActionPush},
		{"/a", ActionPop},
		{"/a2", ActionReplace},
		{"/c", ActionPush},
		{"/", ActionPop},
		{"/a2", ActionPop},
		{"/c", ActionPop},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("changes (-want +got):\n%s", diff)
	}

	entries, index := h.Entries()
	hrefs := make([]string, len(entries))
	for i, e := range entries {
		hrefs[i] = e.Href
	}
	if diff := cmp.Diff([]string{"/", "/a2", "/c"}, hrefs); diff != "" {
		t.Errorf("entries (-want +got):\n%s", diff)
	}
	if index != 2 || h.Location().Href != "/c" {
		t.Errorf("index = %d location = %s", index, h.Location().Href)
	}

	unlisten()
	h.Back()
	if len(got) != len(want) {
		t.Errorf("listener called after unlisten")
	}
}

func TestMemoryHistoryBlockers(t *testing.T) {
	h := NewMemoryHistory()
	var calls []string
	blocker := func(name string) Blocker {
		return func(context.Context, Transition) bool {
			calls = append(calls, name)
			return false
		}
	}
	unblockA := h.Block(blocker("a"))
	h.Block(blocker("b"))
	unblockA()
	unblockA()
	h.Block(blocker("c"))

	for _, b := range h.Blockers() {
		b(context.Background(), Transition{})
	}
	if diff := cmp.Diff([]string{"b", "c"}, calls); diff != "" {
		t.Errorf("blockers (-want +got):\n%s", diff)
	}
}

func TestPhaseTransitions(t *testing.T) {
	tests := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseIdle, PhasePending, true},
		{PhasePending, PhaseLoading, true},
		{PhaseLoading, PhaseRedirected, true},
		{PhaseLoading, PhaseCommitting, true},
		{PhaseCommitting, PhaseCommitted, true},
		{PhaseCommitting, PhaseCancelled, true},
		{PhaseIdle, PhaseCommitted, false},
		{PhaseCommitted, PhasePending, false},
		{PhaseCancelled, PhaseLoading, false},
		{PhaseRedirected, PhaseLoading, false},
	}
	for _, tc := range tests {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
	for _, p := range []Phase{PhaseCommitted, PhaseCancelled, PhaseErrored, PhaseRedirected} {
		if !p.Terminal() {
			t.Errorf("%s is not terminal", p)
		}
	}
}
