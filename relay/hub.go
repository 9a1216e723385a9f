// Package relay fans room-scoped drawing events out to connected sessions and
// records committed events in the message log.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"drawing-board/protocol"
)

// DefaultPersistTimeout bounds every message log call.
const DefaultPersistTimeout = 5 * time.Second

// ErrMalformed marks inbound events that are dropped; ErrPersist marks
// events the message log refused.
var (
	ErrMalformed = errors.New("malformed payload")
	ErrPersist   = errors.New("failed to persist event")
)

// MessageLog is the durable side of the relay.
type MessageLog interface {
	Append(ctx context.Context, roomID int64, message, userID string) (int64, error)
	AppendTombstone(ctx context.Context, roomID int64, shapeID, userID string) (int64, error)
	Purge(ctx context.Context, roomID int64) (int64, error)
}

// Options tunes a Hub.
type Options struct {
	PersistTimeout time.Duration
	// TombstoneDeletes appends a delete record for every relayed delete_shape.
	TombstoneDeletes bool
	Logger           *slog.Logger
}

// Hub is the registry of sessions and the rooms they joined.
type Hub struct {
	log    MessageLog
	opts   Options
	logger *slog.Logger

	mu       sync.RWMutex
	rooms    map[protocol.RoomID]map[*Session]struct{}
	sessions map[*Session]struct{}

	locksMu   sync.Mutex
	roomLocks map[protocol.RoomID]*sync.Mutex
}

// NewHub creates an empty hub writing to log.
func NewHub(log MessageLog, opts Options) *Hub {
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = DefaultPersistTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log:       log,
		opts:      opts,
		logger:    logger,
		rooms:     make(map[protocol.RoomID]map[*Session]struct{}),
		sessions:  make(map[*Session]struct{}),
		roomLocks: make(map[protocol.RoomID]*sync.Mutex),
	}
}

// Register adds an authenticated session that has not joined any room yet.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s] = struct{}{}
}

// Unregister drops the session from the registry and from every room.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s)
	for room := range s.rooms {
		h.removeLocked(s, room)
	}
	s.rooms = nil
}

// JoinRoom is idempotent.
func (h *Hub) JoinRoom(s *Session, room protocol.RoomID) {
	room = room.Canonical()
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Session]struct{})
		h.rooms[room] = members
	}
	members[s] = struct{}{}
	if s.rooms == nil {
		s.rooms = make(map[protocol.RoomID]struct{})
	}
	s.rooms[room] = struct{}{}
	h.logger.Info("joined room", "session", s.ID, "user", s.UserID, "room", room)
}

// LeaveRoom is idempotent.
func (h *Hub) LeaveRoom(s *Session, room protocol.RoomID) {
	room = room.Canonical()
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := s.rooms[room]; !ok {
		return
	}
	h.removeLocked(s, room)
	delete(s.rooms, room)
	h.logger.Info("left room", "session", s.ID, "user", s.UserID, "room", room)
}

func (h *Hub) removeLocked(s *Session, room protocol.RoomID) {
	members := h.rooms[room]
	delete(members, s)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Members returns a snapshot of the sessions in room.
func (h *Hub) Members(room protocol.RoomID) []*Session {
	room = room.Canonical()
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, len(h.rooms[room]))
	for s := range h.rooms[room] {
		out = append(out, s)
	}
	return out
}

// Stats reports the number of registered sessions and non-empty rooms.
func (h *Hub) Stats() (sessions, rooms int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions), len(h.rooms)
}

// roomLock serializes persistence and fan-out per room so every member sees
// events in log order.
func (h *Hub) roomLock(room protocol.RoomID) *sync.Mutex {
	h.locksMu.Lock()
	defer h.locksMu.Unlock()
	l, ok := h.roomLocks[room]
	if !ok {
		l = new(sync.Mutex)
		h.roomLocks[room] = l
	}
	return l
}

// RelayChat persists a committed shape and fans it out to the room.
func (h *Hub) RelayChat(ctx context.Context, room protocol.RoomID, payload, senderID string) error {
	room = room.Canonical()
	id, err := room.Int()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if payload == "" {
		return fmt.Errorf("%w: empty chat", ErrMalformed)
	}
	l := h.roomLock(room)
	l.Lock()
	defer l.Unlock()

	pctx, cancel := context.WithTimeout(ctx, h.opts.PersistTimeout)
	defer cancel()
	if _, err := h.log.Append(pctx, id, payload, senderID); err != nil {
		h.fail(room, err)
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	h.broadcast(room, protocol.Chat(room, payload))
	return nil
}

// RelayDelete fans a deletion out to the room, recording a tombstone first
// when configured to.
func (h *Hub) RelayDelete(ctx context.Context, room protocol.RoomID, shapeID, senderID string) error {
	room = room.Canonical()
	if shapeID == "" {
		return fmt.Errorf("%w: empty shape id", ErrMalformed)
	}
	l := h.roomLock(room)
	l.Lock()
	defer l.Unlock()

	if h.opts.TombstoneDeletes {
		id, err := room.Int()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		pctx, cancel := context.WithTimeout(ctx, h.opts.PersistTimeout)
		defer cancel()
		if _, err := h.log.AppendTombstone(pctx, id, shapeID, senderID); err != nil {
			h.fail(room, err)
			return fmt.Errorf("%w: %w", ErrPersist, err)
		}
	}
	h.broadcast(room, protocol.DeleteShape(room, shapeID))
	return nil
}

// RelayClear purges the room's log and tells every member to clear.
func (h *Hub) RelayClear(ctx context.Context, room protocol.RoomID) error {
	room = room.Canonical()
	id, err := room.Int()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	l := h.roomLock(room)
	l.Lock()
	defer l.Unlock()

	pctx, cancel := context.WithTimeout(ctx, h.opts.PersistTimeout)
	defer cancel()
	n, err := h.log.Purge(pctx, id)
	if err != nil {
		h.fail(room, err)
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	h.logger.Info("cleared room", "room", room, "purged", n)
	h.broadcast(room, protocol.ClearCanvas(room))
	return nil
}

// Dispatch routes one decoded inbound message from s.
func (h *Hub) Dispatch(ctx context.Context, s *Session, msg protocol.Message) error {
	switch msg.Type {
	case protocol.TypeJoinRoom:
		h.JoinRoom(s, msg.RoomID)
	case protocol.TypeLeaveRoom:
		h.LeaveRoom(s, msg.RoomID)
	case protocol.TypeChat:
		return h.RelayChat(ctx, msg.RoomID, msg.Message, s.UserID)
	case protocol.TypeDeleteShape:
		return h.RelayDelete(ctx, msg.RoomID, msg.ShapeID, s.UserID)
	case protocol.TypeClearCanvas:
		return h.RelayClear(ctx, msg.RoomID)
	default:
		return fmt.Errorf("%w: clients may not send %q", ErrMalformed, msg.Type)
	}
	return nil
}

func (h *Hub) fail(room protocol.RoomID, err error) {
	h.logger.Error("failed to persist event", "room", room, "err", err)
	h.broadcast(room, protocol.Error(room, "failed to persist event"))
}

// broadcast sends msg to every member whose send buffer has room.
func (h *Hub) broadcast(room protocol.RoomID, msg protocol.Message) {
	b, err := protocol.Encode(msg)
	if err != nil {
		h.logger.Error("failed to encode broadcast", "type", msg.Type, "err", err)
		return
	}
	members := h.Members(room)
	sent := 0
	for _, s := range members {
		if s.Send(b) {
			sent++
		}
	}
	h.logger.Debug("broadcast", "room", room, "type", msg.Type, "members", len(members), "sent", sent)
}
