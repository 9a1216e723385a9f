// Package syncclient keeps a room's shape collection in step with the relay:
// local commits are applied immediately and sent, remote events are merged in
// arrival order.
package syncclient

import (
	"context"
	"log/slog"
	"sync"

	"drawing-board/protocol"
	"drawing-board/shape"
)

// Transport delivers outbound events to the relay.
type Transport interface {
	Send(msg protocol.Message) error
}

// History returns a room's persisted log in insertion order.
type History interface {
	Fetch(ctx context.Context, room protocol.RoomID) ([]Entry, error)
}

// Entry is one persisted log record as served by the history endpoint.
type Entry struct {
	ID      int64  `json:"id"`
	RoomID  int64  `json:"roomId"`
	Type    string `json:"type"`
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

// Options holds the callbacks a Client reports to.
type Options struct {
	Logger *slog.Logger
	// OnRender is called with the full shape list after every mutation.
	OnRender func([]shape.Shape)
	// OnError is called with the reason of every error event from the relay.
	OnError func(reason string)
}

// Client represents one member's view of a room.
type Client struct {
	room      protocol.RoomID
	shapes    *shape.Collection
	transport Transport
	history   History
	logger    *slog.Logger
	onRender  func([]shape.Shape)
	onError   func(string)

	mu sync.Mutex
	// set while a hydration is in flight; records live changes it must not undo
	pending *inflight
}

type inflight struct {
	cleared bool
	deleted map[string]struct{}
	// ids applied after BeginHydrate; only these survive Install
	live map[string]struct{}
}

// New creates a client for room with an empty collection. transport and
// history may be nil.
func New(room protocol.RoomID, transport Transport, history History, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	room = room.Canonical()
	return &Client{
		room:      room,
		shapes:    shape.NewCollection(),
		transport: transport,
		history:   history,
		logger:    logger.With("room", room),
		onRender:  opts.OnRender,
		onError:   opts.OnError,
	}
}

// Room returns the canonical id of the client's room.
func (c *Client) Room() protocol.RoomID { return c.room }

// Shapes returns a copy of the current collection in paint order.
func (c *Client) Shapes() []shape.Shape { return c.shapes.Shapes() }

// Collection exposes the live collection for hit testing.
func (c *Client) Collection() *shape.Collection { return c.shapes }

func (c *Client) render() {
	if c.onRender != nil {
		c.onRender(c.shapes.Shapes())
	}
}

// Hydrate fetches and replays the room's log, then installs the result.
// Failures leave an empty hydrated set.
func (c *Client) Hydrate(ctx context.Context) []shape.Shape {
	c.BeginHydrate()
	return c.Install(c.FetchHistory(ctx))
}

// BeginHydrate marks a hydration as in flight. Call Install with its result.
func (c *Client) BeginHydrate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = &inflight{
		deleted: make(map[string]struct{}),
		live:    make(map[string]struct{}),
	}
}

// FetchHistory loads and replays the log without touching the collection, so
// it may run on another goroutine.
func (c *Client) FetchHistory(ctx context.Context) []shape.Shape {
	if c.history == nil {
		return nil
	}
	entries, err := c.history.Fetch(ctx, c.room)
	if err != nil {
		c.logger.Warn("failed to fetch history, starting empty", "err", err)
		return nil
	}
	return Replay(entries, c.logger)
}

// Install replaces the collection with the hydrated shapes merged with
// whatever arrived live since BeginHydrate: hydrated shapes come first, live
// ones follow, ids are kept unique and live deletes and clears win. Shapes
// that were already present before BeginHydrate are dropped unless the log
// still has them.
func (c *Client) Install(hydrated []shape.Shape) []shape.Shape {
	c.mu.Lock()
	p := c.pending
	c.pending = nil
	c.mu.Unlock()

	live := c.shapes.Shapes()
	if p != nil {
		kept := live[:0]
		for _, s := range live {
			if _, ok := p.live[s.ShapeID()]; ok {
				kept = append(kept, s)
			}
		}
		live = kept
	}
	liveByID := make(map[string]shape.Shape, len(live))
	for _, s := range live {
		liveByID[s.ShapeID()] = s
	}
	merged := make([]shape.Shape, 0, len(hydrated)+len(live))
	seen := make(map[string]struct{})
	if p == nil || !p.cleared {
		for _, s := range hydrated {
			if p != nil {
				if _, gone := p.deleted[s.ShapeID()]; gone {
					continue
				}
			}
			if _, dup := seen[s.ShapeID()]; dup {
				continue
			}
			// a live copy arrived later and wins
			if l, ok := liveByID[s.ShapeID()]; ok {
				s = l
			}
			merged = append(merged, s)
			seen[s.ShapeID()] = struct{}{}
		}
	}
	for _, s := range live {
		if _, dup := seen[s.ShapeID()]; dup {
			continue
		}
		merged = append(merged, s)
	}
	c.shapes.Replace(merged)
	c.logger.Info("hydrated", "shapes", len(hydrated), "live", len(live), "total", c.shapes.Len())
	c.render()
	return c.shapes.Shapes()
}

// Replay applies log entries in order and returns the resulting shapes.
// Malformed entries are skipped.
func Replay(entries []Entry, logger *slog.Logger) []shape.Shape {
	if logger == nil {
		logger = slog.Default()
	}
	col := shape.NewCollection()
	for _, e := range entries {
		switch e.Type {
		case "", protocol.TypeChat:
			s, err := protocol.DecodeChat(e.Message)
			if err != nil {
				logger.Warn("skipping malformed log entry", "id", e.ID, "err", err)
				continue
			}
			if err := s.Validate(); err != nil {
				logger.Warn("skipping invalid shape", "id", e.ID, "err", err)
				continue
			}
			col.Upsert(s)
		case protocol.TypeDeleteShape:
			col.Remove(e.Message)
		case protocol.TypeClearCanvas:
			col.Clear()
		default:
			logger.Warn("skipping log entry of unknown type", "id", e.ID, "type", e.Type)
		}
	}
	return col.Shapes()
}

// CommitLocal applies s and sends it to the room.
func (c *Client) CommitLocal(s shape.Shape) {
	if s == nil {
		return
	}
	if err := s.Validate(); err != nil {
		c.logger.Warn("not committing invalid shape", "err", err)
		return
	}
	c.shapes.Upsert(s)
	c.noteLive(s.ShapeID())
	c.render()
	body, err := protocol.EncodeChat(s)
	if err != nil {
		c.logger.Error("failed to encode shape", "id", s.ShapeID(), "err", err)
		return
	}
	c.send(protocol.Chat(c.room, body))
}

// DeleteLocal removes the shape with id and tells the room. It reports whether
// the shape existed.
func (c *Client) DeleteLocal(id string) bool {
	if !c.shapes.Remove(id) {
		return false
	}
	c.noteDeleted(id)
	c.render()
	c.send(protocol.DeleteShape(c.room, id))
	return true
}

// ClearAll empties the canvas for every member of the room.
func (c *Client) ClearAll() {
	c.shapes.Clear()
	c.noteCleared()
	c.render()
	c.send(protocol.ClearCanvas(c.room))
}

// OnRemoteEvent merges one event received from the relay.
func (c *Client) OnRemoteEvent(msg protocol.Message) {
	if msg.RoomID != c.room {
		c.logger.Debug("ignoring event for another room", "type", msg.Type, "eventRoom", msg.RoomID)
		return
	}
	switch msg.Type {
	case protocol.TypeChat:
		s, err := protocol.DecodeChat(msg.Message)
		if err != nil {
			c.logger.Warn("dropping malformed chat", "err", err)
			return
		}
		if err := s.Validate(); err != nil {
			c.logger.Warn("dropping invalid shape", "err", err)
			return
		}
		if c.shapes.Upsert(s) {
			c.logger.Debug("replaced shape with same id", "id", s.ShapeID())
		}
		c.noteLive(s.ShapeID())
		c.render()
	case protocol.TypeDeleteShape:
		c.shapes.Remove(msg.ShapeID)
		c.noteDeleted(msg.ShapeID)
		c.render()
	case protocol.TypeClearCanvas:
		c.shapes.Clear()
		c.noteCleared()
		c.render()
	case protocol.TypeError:
		c.logger.Warn("relay reported an error", "reason", msg.Message)
		if c.onError != nil {
			c.onError(msg.Message)
		}
	default:
		c.logger.Warn("dropping unexpected event", "type", msg.Type)
	}
}

func (c *Client) noteLive(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		c.pending.live[id] = struct{}{}
	}
}

func (c *Client) noteDeleted(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		c.pending.deleted[id] = struct{}{}
	}
}

func (c *Client) noteCleared() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		c.pending.cleared = true
	}
}

func (c *Client) send(msg protocol.Message) {
	if c.transport == nil {
		return
	}
	if err := c.transport.Send(msg); err != nil {
		c.logger.Warn("failed to send event", "type", msg.Type, "err", err)
	}
}
