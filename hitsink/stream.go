package hitsink

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Stream broadcasts hits to attached websocket clients. The control-plane
// API attaches upgraded connections; a slow or dead client is dropped, it
// never blocks delivery to the others.
type Stream struct {
	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	logger *slog.Logger
}

// NewStream creates an empty broadcast sink.
func NewStream(logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{
		conns:  make(map[*websocket.Conn]struct{}),
		logger: logger,
	}
}

// Attach registers an upgraded websocket connection. The stream owns the
// connection from this point and closes it on Detach or Close.
func (s *Stream) Attach(conn *websocket.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	s.logger.Debug("hitsink: stream client attached", "remote", conn.RemoteAddr())
}

// Detach removes a connection and closes it. Safe to call for a connection
// the stream has already dropped.
func (s *Stream) Detach(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[conn]; ok {
		s.detachLocked(conn)
	}
}

// Clients reports the number of attached connections.
func (s *Stream) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Stream) detachLocked(conn *websocket.Conn) {
	delete(s.conns, conn)
	conn.Close()
}

func (s *Stream) Send(_ context.Context, hit Hit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.conns {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(hit); err != nil {
			s.logger.Warn("hitsink: stream write failed, dropping client",
				"remote", conn.RemoteAddr(), "error", err)
			s.detachLocked(conn)
		}
	}
	return nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		s.detachLocked(conn)
	}
	return nil
}
