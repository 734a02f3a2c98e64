package inspect

import (
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/waypoint/pkg/navigation"
)

// StreamMessageType is the type of a WebSocket message.
type StreamMessageType string

const (
	StreamState StreamMessageType = "state"
	StreamEvent StreamMessageType = "event"
)

// streamMessage is sent to WebSocket clients. The first message of a
// stream is always the current state.
type streamMessage struct {
	Type  StreamMessageType `json:"type"`
	State *StateView        `json:"state,omitempty"`
	Event *EventView        `json:"event,omitempty"`
}

// EventView is a router event forwarded on the stream.
type EventView struct {
	Type       string `json:"type"`
	IntentID   string `json:"intentId,omitempty"`
	Generation uint64 `json:"generation"`
	From       string `json:"from"`
	To         string `json:"to"`
	Error      string `json:"error,omitempty"`
}

// streamEvents are the router events forwarded besides state snapshots.
var streamEvents = []navigation.EventType{
	navigation.EventBeforeNavigate,
	navigation.EventRedirected,
	navigation.EventCancelled,
}

type streamHub struct {
	mu      sync.Mutex
	clients map[*streamClient]struct{}
}

func newStreamHub() *streamHub {
	return &streamHub{clients: make(map[*streamClient]struct{})}
}

func (h *streamHub) add(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *streamHub) remove(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

func (h *streamHub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *streamHub) closeAll() {
	h.mu.Lock()
	clients := make([]*streamClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// streamClient queues encoded messages for one connection. Router
// callbacks never block on a slow client: when the queue is full the
// oldest message is dropped.
type streamClient struct {
	conn  *websocket.Conn
	queue chan []byte
	done  chan struct{}
	once  sync.Once
}

func (c *streamClient) send(data []byte) (dropped bool) {
	for {
		select {
		case <-c.done:
			return false
		case c.queue <- data:
			return dropped
		default:
		}
		select {
		case <-c.queue:
			dropped = true
		default:
		}
	}
}

func (c *streamClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// handleStream upgrades to a WebSocket and streams state snapshots until
// the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &streamClient{
		conn:  conn,
		queue: make(chan []byte, s.config.StreamBuffer),
		done:  make(chan struct{}),
	}
	s.streams.add(c)
	s.logger.Debug("stream opened", "remote", r.RemoteAddr, "clients", s.streams.len())

	push := func(msg streamMessage) {
		data, err := json.Marshal(msg)
		if err != nil {
			s.logger.Warn("encode stream message", "type", msg.Type, "error", err)
			return
		}
		if c.send(data) {
			s.logger.Debug("stream message dropped", "remote", r.RemoteAddr)
		}
	}
	pushState := func(st *navigation.State) {
		v := NewStateView(st)
		push(streamMessage{Type: StreamState, State: &v})
	}

	var unsubs []func()
	for _, t := range streamEvents {
		unsubs = append(unsubs, s.router.Subscribe(t, func(ev navigation.Event) {
			v := &EventView{
				Type:       string(ev.Type),
				IntentID:   ev.IntentID,
				Generation: ev.Generation,
				From:       ev.FromLocation.Href,
				To:         ev.ToLocation.Href,
			}
			if ev.Err != nil {
				v.Error = ev.Err.Error()
			}
			push(streamMessage{Type: StreamEvent, Event: v})
		}))
	}
	// Watched last: the current snapshot is the first state sent and no
	// event raised after it is missed.
	unsubs = append(unsubs, s.router.WatchState(pushState))

	go s.writeStream(c)

	// Keep the connection until the client disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	for _, unsub := range unsubs {
		unsub()
	}
	c.close()
	s.streams.remove(c)
	s.logger.Debug("stream closed", "remote", r.RemoteAddr)
}

func (s *Server) writeStream(c *streamClient) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.queue:
			c.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("stream write error", "error", err)
				c.close()
				return
			}
		}
	}
}
