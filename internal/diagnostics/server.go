// Package diagnostics implements an optional observability channel:
// a WebSocket endpoint that broadcasts a JSON frame per dispatched key
// event to any connected monitor client. Off unless configured with an
// address (SPEC_FULL.md §11.2). Mirrors the teacher's ws_client.go
// keepalive discipline (ping ticker, pong deadline, a single writer
// goroutine per connection) on the server side.
package diagnostics

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"kiri/internal/layer"
)

const (
	pingEvery = 10 * time.Second
	pongWait  = 30 * time.Second
	writeWait = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Event is the wire shape broadcast to connected monitors.
type Event struct {
	Key         string `json:"key"`
	Kind        string `json:"kind"`
	TSUnixMilli int64  `json:"ts_ms"`
}

// Server accepts WebSocket connections and fans Event values out to
// every currently-connected client, dropping events for clients that
// fall behind rather than blocking the pipeline.
type Server struct {
	log logrus.FieldLogger
	srv *http.Server

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan Event
	done chan struct{}
}

// NewServer starts an HTTP server on addr with a single "/" WebSocket
// upgrade endpoint, in the background.
func NewServer(addr string, log logrus.FieldLogger) (*Server, error) {
	s := &Server{log: log, clients: make(map[*client]struct{})}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)
	s.srv = &http.Server{Addr: addr, Handler: mux}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Warnf("diagnostics server exited: %v", err)
		}
	}()
	s.log.Infof("diagnostics server listening on %s", addr)
	return s, nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("diagnostics upgrade failed: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan Event, 64), done: make(chan struct{})}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	conn.SetReadLimit(1 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go s.readLoop(c)
	go s.writeLoop(c)
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
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()
	defer c.conn.Close()
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			b, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	close(c.done)
}

// Broadcast fans ev out to every connected client, non-blocking:
// a client whose send buffer is full is skipped for this event rather
// than stalling the caller (the pipeline's Output Writer).
func (s *Server) Broadcast(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- ev:
		default:
		}
	}
}

// Close shuts the HTTP listener down.
func (s *Server) Close() error {
	return s.srv.Close()
}

// Sink wraps an inner layer.Sink, broadcasting every submitted event
// to connected diagnostics clients before forwarding it downstream.
type Sink struct {
	inner layer.Sink
	srv   *Server
}

// NewSink wraps inner so every Submit is also broadcast via srv.
func NewSink(inner layer.Sink, srv *Server) *Sink {
	return &Sink{inner: inner, srv: srv}
}

func (s *Sink) Submit(input layer.KeyInput, t time.Time) error {
	s.srv.Broadcast(Event{Key: input.Key.String(), Kind: input.Kind.String(), TSUnixMilli: t.UnixMilli()})
	return s.inner.Submit(input, t)
}

// Close closes the inner sink if it is itself closeable.
func (s *Sink) Close() error {
	if cl, ok := s.inner.(interface{ Close() error }); ok {
		return cl.Close()
	}
	return nil
}
