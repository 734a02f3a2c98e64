package navigation

import (
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/vango-dev/waypoint/pkg/router"
)

// EventType names a router event.
type EventType string

const (
	// EventBeforeNavigate fires when an intent starts, including intents
	// started by a redirect.
	EventBeforeNavigate EventType = "beforeNavigate"

	// EventBeforeLoad fires before the lifecycle hooks of an intent run.
	EventBeforeLoad EventType = "beforeLoad"

	// EventLoad fires when an intent's matches are loaded and committed.
	EventLoad EventType = "load"

	// EventResolved fires after a commit, once the new state is visible.
	EventResolved EventType = "resolved"

	// EventRendered is emitted by the view layer through EmitRendered.
	EventRendered EventType = "rendered"

	// EventCancelled fires when an intent stops without committing because
	// it was superseded or its context ended.
	EventCancelled EventType = "cancelled"

	// EventRedirected fires when a lifecycle hook redirects an intent.
	EventRedirected EventType = "redirected"
)

// Event is delivered to subscribers.
type Event struct {
	Type EventType

	IntentID   string
	Generation uint64

	// FromLocation is the committed location when the event was raised.
	FromLocation router.Location
	ToLocation   router.Location

	PathChanged bool
	HrefChanged bool

	// State is the committed state for EventLoad, EventResolved and
	// EventRendered.
	State *State

	// Err is the cancellation cause or the redirect signal.
	Err error
}

type subscriber struct {
	id int
	fn func(Event)
}

type stateSubscriber struct {
	id int
	fn func(*State)
}

// emitter delivers events and state snapshots in the order they were
// enqueued. A subscriber may navigate from its callback; deliveries raised
// meanwhile are queued and run after the callback returns.
type emitter struct {
	logger *slog.Logger

	mu        sync.Mutex
	nextID    int
	subs      map[EventType][]subscriber
	stateSubs []stateSubscriber
	queue     []func()
	draining  bool
}

func newEmitter(logger *slog.Logger) *emitter {
	return &emitter{logger: logger, subs: make(map[EventType][]subscriber)}
}

func (e *emitter) subscribe(t EventType, fn func(Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.subs[t] = append(e.subs[t], subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			list := e.subs[t]
			for i, s := range list {
				if s.id == id {
					e.subs[t] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

func (e *emitter) subscribeState(fn func(*State)) func() {
	return e.subscribeStateFrom(fn, nil)
}

// subscribeStateFrom registers fn and, when current is set, queues it for
// fn alone ahead of any later snapshot.
func (e *emitter) subscribeStateFrom(fn func(*State), current *State) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if current != nil {
		e.queue = append(e.queue, func() { fn(current) })
	}
	e.nextID++
	id := e.nextID
	e.stateSubs = append(e.stateSubs, stateSubscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			for i, s := range e.stateSubs {
				if s.id == id {
					e.stateSubs = append(e.stateSubs[:i:i], e.stateSubs[i+1:]...)
					break
				}
			}
		})
	}
}

// enqueueEvent queues ev for the subscribers registered right now.
func (e *emitter) enqueueEvent(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, s := range e.subs[ev.Type] {
		fn := s.fn
		e.queue = append(e.queue, func() { fn(ev) })
	}
}

// enqueueState queues a state snapshot for the state subscribers.
func (e *emitter) enqueueState(s *State) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, sub := range e.stateSubs {
		fn := sub.fn
		e.queue = append(e.queue, func() { fn(s) })
	}
}

// drain runs queued deliveries unless another call is already draining,
// in which case that call delivers them and drain returns at once.
func (e *emitter) drain() {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return
	}
	e.draining = true
	for len(e.queue) > 0 {
		next := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()
		e.deliver(next)
		e.mu.Lock()
	}
	e.draining = false
	e.mu.Unlock()
}

func (e *emitter) deliver(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("subscriber panic",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}
