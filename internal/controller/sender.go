package controller

import (
	"sync"

	"github.com/gorilla/websocket"
)

// connSender serializes writes per connection. gorilla/websocket supports a
// single concurrent writer, but broadcasts from different room events can
// target the same member's conn at the same time.
type connSender struct {
	mu      sync.Mutex
	writers map[*websocket.Conn]*connWriter
}

type connWriter struct {
	mu   sync.Mutex
	refs int
}

func newConnSender() *connSender {
	return &connSender{writers: make(map[*websocket.Conn]*connWriter)}
}

// Send writes v as JSON, holding the connection's writer lock for the
// duration. Writer entries live only while sends are in flight, so dead
// connections leave nothing behind.
func (s *connSender) Send(conn *websocket.Conn, v any) error {
	s.mu.Lock()
	w, ok := s.writers[conn]
	if !ok {
		w = &connWriter{}
		s.writers[conn] = w
	}
	w.refs++
	s.mu.Unlock()

	w.mu.Lock()
	err := conn.WriteJSON(v)
	w.mu.Unlock()

	s.mu.Lock()
	w.refs--
	if w.refs == 0 {
		delete(s.writers, conn)
	}
	s.mu.Unlock()

	return err
}
