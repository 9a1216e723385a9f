package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"drawing-board/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

// Conn is the part of *websocket.Conn a session uses.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Session is one authenticated transport connection.
type Session struct {
	ID     string
	UserID string

	conn   Conn
	hub    *Hub
	logger *slog.Logger
	send   chan []byte

	mu     sync.Mutex
	closed bool

	// rooms is guarded by hub.mu.
	rooms map[protocol.RoomID]struct{}
}

// NewSession wraps an upgraded connection for userID. Call Serve to run it.
func NewSession(hub *Hub, conn Conn, userID string) *Session {
	id := uuid.NewString()
	return &Session{
		ID:     id,
		UserID: userID,
		conn:   conn,
		hub:    hub,
		logger: hub.logger.With("session", id, "user", userID),
		send:   make(chan []byte, sendBuffer),
	}
}

// Send queues b for the write pump. It reports false when the session is
// closed or its buffer is full; the message is dropped in that case.
func (s *Session) Send(b []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- b:
		return true
	default:
		s.logger.Warn("send buffer full, dropping message")
		return false
	}
}

// Serve registers the session, runs both pumps and blocks until the
// connection is gone. Cancelling ctx closes the connection.
func (s *Session) Serve(ctx context.Context) {
	s.hub.Register(s)
	s.logger.Info("session connected")
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writePump()
	}()
	s.readPump(ctx)
	<-done
}

func (s *Session) shutdown() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
	s.mu.Unlock()
	s.hub.Unregister(s)
}

func (s *Session) readPump(ctx context.Context) {
	defer func() {
		s.shutdown()
		_ = s.conn.Close()
		s.logger.Info("session disconnected")
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", "err", err)
			}
			return
		}
		msg, err := protocol.Decode(raw)
		if err != nil {
			s.logger.Warn("dropping malformed message", "err", err)
			continue
		}
		if err := s.hub.Dispatch(ctx, s, msg); err != nil {
			if errors.Is(err, ErrMalformed) {
				s.logger.Warn("dropping malformed message", "type", msg.Type, "err", err)
			} else {
				s.logger.Error("failed to relay message", "type", msg.Type, "room", msg.RoomID, "err", err)
			}
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.logger.Warn("websocket write failed", "err", err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
