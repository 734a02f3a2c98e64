package navigation

import (
	"context"
	"sync"

	"github.com/vango-dev/waypoint/pkg/router"
)

// HistoryAction describes how the history location changed.
type HistoryAction string

const (
	ActionPush    HistoryAction = "PUSH"
	ActionReplace HistoryAction = "REPLACE"
	ActionPop     HistoryAction = "POP"
)

// HistoryEntry is one history location.
type HistoryEntry struct {
	Href  string
	State map[string]any
}

// Transition is a navigation a Blocker is asked about.
type Transition struct {
	From   router.Location
	To     router.Location
	Action HistoryAction
}

// Blocker reports whether a PUSH or REPLACE navigation must not happen,
// e.g. while a form has unsaved changes. It may block on ctx to ask the
// user.
type Blocker func(ctx context.Context, tx Transition) bool

// History is the location store the router commits to. Push and Replace
// are called by the router on commit; a POP (Back, Forward, Go) notifies
// listeners, and the router loads the new location.
type History interface {
	Location() HistoryEntry
	Push(href string, state map[string]any)
	Replace(href string, state map[string]any)
	Go(delta int)
	Back()
	Forward()

	// Listen registers fn for every location change and returns a function
	// that removes it.
	Listen(fn func(entry HistoryEntry, action HistoryAction)) func()

	// Block registers a blocker and returns a function that removes it.
	// Blockers returns the registered blockers in registration order.
	Block(b Blocker) func()
	Blockers() []Blocker
}

// MemoryHistory is an in-memory History, e.g. for servers and tests.
type MemoryHistory struct {
	mu        sync.Mutex
	entries   []HistoryEntry
	index     int
	nextID    int
	listeners map[int]func(HistoryEntry, HistoryAction)
	blockers  []blockerEntry
}

type blockerEntry struct {
	id int
	fn Blocker
}

// NewMemoryHistory creates a history holding initial entries, positioned at
// the last one. With no entries it starts at "/".
func NewMemoryHistory(initial ...string) *MemoryHistory {
	h := &MemoryHistory{listeners: make(map[int]func(HistoryEntry, HistoryAction))}
	if len(initial) == 0 {
		initial = []string{"/"}
	}
	for _, href := range initial {
		h.entries = append(h.entries, HistoryEntry{Href: href})
	}
	h.index = len(h.entries) - 1
	return h
}

// Location returns the current entry.
func (h *MemoryHistory) Location() HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[h.index]
}

// Push adds an entry after the current one, dropping any forward entries.
func (h *MemoryHistory) Push(href string, state map[string]any) {
	h.mu.Lock()
	h.entries = append(h.entries[:h.index+1], HistoryEntry{Href: href, State: state})
	h.index = len(h.entries) - 1
	entry := h.entries[h.index]
	h.mu.Unlock()
	h.notify(entry, ActionPush)
}

// Replace overwrites the current entry.
func (h *MemoryHistory) Replace(href string, state map[string]any) {
	h.mu.Lock()
	h.entries[h.index] = HistoryEntry{Href: href, State: state}
	entry := h.entries[h.index]
	h.mu.Unlock()
	h.notify(entry, ActionReplace)
}

// Go moves delta entries, clamped to the history bounds.
func (h *MemoryHistory) Go(delta int) {
	h.mu.Lock()
	next := h.index + delta
	if next < 0 {
		next = 0
	}
	if next > len(h.entries)-1 {
		next = len(h.entries) - 1
	}
	if next == h.index {
		h.mu.Unlock()
		return
	}
	h.index = next
	entry := h.entries[h.index]
	h.mu.Unlock()
	h.notify(entry, ActionPop)
}

// Back moves one entry back.
func (h *MemoryHistory) Back() { h.Go(-1) }

// Forward moves one entry forward.
func (h *MemoryHistory) Forward() { h.Go(1) }

// Entries returns a copy of every entry and the current index.
func (h *MemoryHistory) Entries() ([]HistoryEntry, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]HistoryEntry(nil), h.entries...), h.index
}

// Listen implements History.
func (h *MemoryHistory) Listen(fn func(HistoryEntry, HistoryAction)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.listeners[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.listeners, id)
	}
}

// Block implements History.
func (h *MemoryHistory) Block(b Blocker) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.blockers = append(h.blockers, blockerEntry{id: id, fn: b})
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, e := range h.blockers {
			if e.id == id {
				h.blockers = append(h.blockers[:i:i], h.blockers[i+1:]...)
				return
			}
		}
	}
}

// Blockers implements History.
func (h *MemoryHistory) Blockers() []Blocker {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Blocker, len(h.blockers))
	for i, e := range h.blockers {
		out[i] = e.fn
	}
	return out
}

func (h *MemoryHistory) notify(entry HistoryEntry, action HistoryAction) {
	h.mu.Lock()
	fns := make([]func(HistoryEntry, HistoryAction), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(entry, action)
	}
}
