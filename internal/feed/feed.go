// Package feed implements an ambient, ops-facing websocket broadcast
// server mirroring the observable events in spec.md §6.3
// (StateChanged, RouteForwarded, EntryAdded, Cleared) for external
// consumption, e.g. a future UI. It is the server-side mirror of the
// teacher's internal/coop.Watcher, which dials a `/ws` endpoint and
// decodes StateChangeEvents off a channel; here the same envelope shape
// is broadcast from a `/ws` handler to every connected reader instead of
// consumed from one.
package feed

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/midiflow/router/internal/types"
)

// Event type discriminants, mirrored 1:1 with spec.md §6.3.
const (
	EventStateChanged   = "state_changed"
	EventRouteForwarded = "route_forwarded"
	EventEntryAdded     = "entry_added"
	EventCleared        = "cleared"
)

// Envelope is the wire format for every broadcast event.
type Envelope struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// StateChangedPayload mirrors MidiSession.StateChanged.
type StateChangedPayload struct {
	State  string `json:"state"`
	Detail string `json:"detail,omitempty"`
}

// RouteForwardedPayload mirrors RoutingWorker.RouteForwarded.
type RouteForwardedPayload struct {
	RouteID string `json:"routeId"`
	Source  string `json:"source"`
	Target  string `json:"target"`
}

// EntryAddedPayload mirrors MessageLog.EntryAdded.
type EntryAddedPayload struct {
	EndpointName string `json:"endpointName"`
	Channel      int    `json:"channel"`
	MessageType  string `json:"messageType"`
	Detail       string `json:"detail"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan Envelope
}

// Server accepts websocket connections on Handler and broadcasts every
// event passed to its Broadcast* methods to all currently connected
// clients. A slow client is dropped rather than allowed to block the
// broadcast.
type Server struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	now     func() time.Time
}

// NewServer returns an empty broadcast Server.
func NewServer() *Server {
	return &Server{
		clients: make(map[*client]struct{}),
		now:     time.Now,
	}
}

// Handler upgrades the connection and registers it to receive broadcasts
// until it disconnects or falls behind.
func (s *Server) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("feed: upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan Envelope, 32)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	go s.writeLoop(c)
	go s.readLoop(c)
}

func (s *Server) readLoop(c *client) {
	defer s.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(c *client) {
	defer func() {
		_ = c.conn.Close()
	}()
	for env := range c.send {
		if err := c.conn.WriteJSON(env); err != nil {
			s.drop(c)
			return
		}
	}
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
	s.mu.Unlock()
}

func (s *Server) broadcast(eventType string, payload interface{}) {
	env := Envelope{Type: eventType, Timestamp: s.now().UTC(), Payload: payload}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- env:
		default:
			// client is behind; drop it rather than block the broadcaster.
			delete(s.clients, c)
			close(c.send)
		}
	}
}

// BroadcastStateChanged publishes MidiSession.StateChanged.
func (s *Server) BroadcastStateChanged(state types.SessionState, detail string) {
	s.broadcast(EventStateChanged, StateChangedPayload{State: state.String(), Detail: detail})
}

// BroadcastRouteForwarded publishes RoutingWorker.RouteForwarded.
func (s *Server) BroadcastRouteForwarded(routeID types.RouteId, source, target types.EndpointId) {
	s.broadcast(EventRouteForwarded, RouteForwardedPayload{
		RouteID: string(routeID),
		Source:  string(source),
		Target:  string(target),
	})
}

// BroadcastEntryAdded publishes MessageLog.EntryAdded.
func (s *Server) BroadcastEntryAdded(entry types.LogEntry) {
	s.broadcast(EventEntryAdded, EntryAddedPayload{
		EndpointName: entry.EndpointName,
		Channel:      entry.Channel,
		MessageType:  entry.MessageType.String(),
		Detail:       entry.Detail,
	})
}

// BroadcastCleared publishes MessageLog.Cleared.
func (s *Server) BroadcastCleared() {
	s.broadcast(EventCleared, struct{}{})
}

// ClientCount reports the number of currently connected clients, for
// diagnostics.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
