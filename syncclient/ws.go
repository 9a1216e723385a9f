package syncclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"drawing-board/protocol"
)

const (
	writeWait      = 10 * time.Second
	sendBuffer     = 64
	maxMessageSize = 1 << 20
)

// readTimeout is how long the relay may stay silent. It pings every 25s, so
// a longer gap means the connection is gone.
var readTimeout = 60 * time.Second

// Send errors.
var (
	ErrClosed     = errors.New("connection closed")
	ErrBufferFull = errors.New("send buffer full")
)

// Conn is a websocket Transport joined to a single room. Decoded inbound
// events are delivered on Events until the connection ends.
type Conn struct {
	conn        *websocket.Conn
	room        protocol.RoomID
	logger      *slog.Logger
	readTimeout time.Duration

	send   chan []byte
	events chan protocol.Message
	done   chan struct{}
	stop   chan struct{}

	mu     sync.Mutex
	closed bool
	err    error
}

// WebsocketURL derives ws://host/ws?token=... from an http(s) base URL.
func WebsocketURL(base *url.URL, token string) *url.URL {
	u := base.JoinPath("ws")
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u
}

// Dial connects to the relay and joins room.
func Dial(ctx context.Context, base *url.URL, token string, room protocol.RoomID, logger *slog.Logger) (*Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	u := WebsocketURL(base, token)
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to dial: %w", err)
	}
	c := &Conn{
		conn:        ws,
		room:        room,
		logger:      logger.With("room", room),
		readTimeout: readTimeout,
		send:        make(chan []byte, sendBuffer),
		events:      make(chan protocol.Message, sendBuffer),
		done:        make(chan struct{}),
		stop:        make(chan struct{}),
	}
	go c.writePump()
	go c.readPump()
	if err := c.Send(protocol.JoinRoom(room)); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to join room: %w", err)
	}
	c.logger.Info("connected to relay", "url", base.String())
	return c, nil
}

// Events is closed when the connection ends.
func (c *Conn) Events() <-chan protocol.Message { return c.events }

// Done is closed once the read side has stopped.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns the error that ended the connection, if any.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Send queues msg without blocking.
func (c *Conn) Send(msg protocol.Message) error {
	b, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case <-c.done:
		return ErrClosed
	case c.send <- b:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close leaves the room and shuts the connection down.
func (c *Conn) Close() error {
	_ = c.Send(protocol.LeaveRoom(c.room))
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
		close(c.stop)
	}
	c.mu.Unlock()
	<-c.done
	return nil
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Conn) readPump() {
	defer func() {
		_ = c.conn.Close()
		close(c.events)
		close(c.done)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	c.conn.SetPingHandler(func(appData string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		err := c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			return err
		}
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			// a timeout or reset is a failure; a close frame from the relay or
			// our own Close is not
			if !c.isClosed() && !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", "err", err)
				c.fail(err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		msg, err := protocol.Decode(raw)
		if err != nil {
			c.logger.Warn("dropping malformed event", "err", err)
			continue
		}
		select {
		case c.events <- msg:
		case <-c.stop:
			return
		}
	}
}

func (c *Conn) writePump() {
	defer func() {
		_ = c.conn.Close()
	}()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.logger.Warn("websocket write failed", "err", err)
			c.fail(err)
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
