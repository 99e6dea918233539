package diagnostics

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// websocketClientQueue bounds how many unsent events a slow monitor client
// can accumulate before new events are dropped for it.
const websocketClientQueue = 64

var upgrader = websocket.Upgrader{CheckOrigin: checkOrigin}

// checkOrigin reports whether a WebSocket upgrade request's origin is
// allowed: same-origin, localhost, or private-network monitor clients.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		slog.Warn("rejected diagnostics websocket connection: invalid origin", "origin", origin)
		return false
	}

	host := u.Hostname()
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	requestHost := r.Host
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	if host == requestHost {
		return true
	}

	if ip := net.ParseIP(host); ip != nil && (ip.IsLoopback() || ip.IsPrivate()) {
		return true
	}

	slog.Warn("rejected diagnostics websocket connection", "origin", origin, "host", host)
	return false
}

// WebSocketSink broadcasts diagnostic events to every connected monitor
// client over a gorilla/websocket connection.
type WebSocketSink struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan Event
}

// NewWebSocketSink returns an empty WebSocketSink.
func NewWebSocketSink() *WebSocketSink {
	return &WebSocketSink{clients: make(map[*websocket.Conn]chan Event)}
}

// HandleUpgrade upgrades an HTTP request to a WebSocket connection and
// registers it as a broadcast target.
func (s *WebSocketSink) HandleUpgrade(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	send := make(chan Event, websocketClientQueue)
	s.mu.Lock()
	s.clients[conn] = send
	s.mu.Unlock()

	go s.writePump(conn, send)
	return nil
}

func (s *WebSocketSink) writePump(conn *websocket.Conn, send chan Event) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for e := range send {
		if err := conn.WriteJSON(e); err != nil {
			return
		}
	}
}

// Emit implements Sink: every connected client receives e on its own
// bounded queue; a client that can't keep up has this event dropped
// rather than blocking the emitter.
func (s *WebSocketSink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, ch := range s.clients {
		select {
		case ch <- e:
		default:
			slog.Warn("dropping diagnostic event for slow websocket client", "code", string(e.Code), "remote", conn.RemoteAddr())
		}
	}
}

// ClientCount returns the number of currently connected monitor clients.
func (s *WebSocketSink) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close closes every connected client.
func (s *WebSocketSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, ch := range s.clients {
		close(ch)
		_ = conn.Close()
	}
	s.clients = make(map[*websocket.Conn]chan Event)
	return nil
}
