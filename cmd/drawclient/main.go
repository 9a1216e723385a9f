// Command drawclient joins a drawing room without a UI: it hydrates the
// canvas, plays an optional script of input events, keeps merging remote
// changes and finally writes the canvas to a PNG file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"drawing-board/auth"
	"drawing-board/canvas"
	"drawing-board/config"
	"drawing-board/input"
	"drawing-board/protocol"
	"drawing-board/render"
	"drawing-board/shape"
	"drawing-board/syncclient"
)

const (
	minBackoff = 250 * time.Millisecond
	maxBackoff = 5 * time.Second
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	addrVar := flag.String("addr", "http://127.0.0.1:8080", "the relay base url")
	tokenVar := flag.String("token", "", "bearer token for the relay")
	userVar := flag.String("user", "", "sign a token for this user with JWT_SECRET instead of -token")
	roomVar := flag.String("room", "", "room id or slug")
	themeVar := flag.String("theme", "light", "light or dark")
	toolVar := flag.String("tool", "pencil", "initial tool")
	scriptVar := flag.String("script", "", "drawing script to play, - for stdin")
	outVar := flag.String("out", "canvas.png", "where to write the final canvas")
	widthVar := flag.Int("width", 1280, "canvas width in pixels")
	heightVar := flag.Int("height", 720, "canvas height in pixels")
	lingerVar := flag.Duration("linger", 2*time.Second, "how long to keep listening once the script is done")
	levelVar := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*levelVar)); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := config.LoadEnvFile(); err != nil {
		return err
	}
	if *roomVar == "" {
		return fmt.Errorf("-room is required")
	}
	base, err := url.Parse(*addrVar)
	if err != nil {
		return fmt.Errorf("invalid -addr: %w", err)
	}
	theme, err := render.ParseTheme(*themeVar)
	if err != nil {
		return err
	}
	tool, err := input.ParseTool(*toolVar)
	if err != nil {
		return err
	}
	token, err := resolveToken(*tokenVar, *userVar, os.Getenv("JWT_SECRET"))
	if err != nil {
		return err
	}
	var steps []step
	if *scriptVar != "" {
		if steps, err = loadScript(*scriptVar); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	history := syncclient.HTTPHistory{BaseURL: base}
	room, err := history.ResolveRoom(ctx, *roomVar)
	if err != nil {
		return fmt.Errorf("failed to resolve room: %w", err)
	}
	logger = logger.With("room", room)

	renderer, err := render.New(logger)
	if err != nil {
		return err
	}
	engine := canvas.New(*widthVar, *heightVar, renderer, canvas.Options{Theme: theme, Tool: tool, Logger: logger})
	link := &relayLink{}
	client := syncclient.New(room, link, history, syncclient.Options{
		Logger:   logger,
		OnRender: engine.Render,
		OnError: func(reason string) {
			logger.Warn("the last change may not have been saved", "reason", reason)
		},
	})
	engine.Attach(client)

	conn, err := dialWithRetry(ctx, base, token, room, logger)
	if err != nil {
		return err
	}
	link.set(conn)
	defer func() {
		if c := link.get(); c != nil {
			_ = c.Close()
		}
	}()

	l := &loop{
		ctx:     ctx,
		logger:  logger,
		engine:  engine,
		client:  client,
		link:    link,
		base:    base,
		token:   token,
		room:    room,
		linger:  *lingerVar,
		hydrate: make(chan []shape.Shape, 1),
		redial:  make(chan *syncclient.Conn, 1),
	}
	l.run(conn, steps)

	f, err := os.Create(*outVar)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer f.Close()
	if err := engine.SavePNG(f); err != nil {
		return err
	}
	logger.Info("wrote canvas", "path", *outVar, "shapes", len(client.Shapes()))
	return nil
}

func resolveToken(token, user, secret string) (string, error) {
	if token != "" {
		return token, nil
	}
	if user == "" {
		return "", fmt.Errorf("either -token or -user is required")
	}
	if secret == "" {
		return "", fmt.Errorf("-user needs JWT_SECRET to sign a token")
	}
	return auth.Issue([]byte(secret), user, 24*time.Hour)
}

func loadScript(path string) ([]step, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open script: %w", err)
		}
		defer f.Close()
		r = f
	}
	return parseScript(r)
}

// relayLink is the client's Transport; the connection behind it is swapped
// on reconnect.
type relayLink struct {
	mu   sync.Mutex
	conn *syncclient.Conn
}

func (l *relayLink) set(c *syncclient.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conn = c
}

func (l *relayLink) get() *syncclient.Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn
}

// Send fails with syncclient.ErrClosed while reconnecting.
func (l *relayLink) Send(msg protocol.Message) error {
	c := l.get()
	if c == nil {
		return syncclient.ErrClosed
	}
	return c.Send(msg)
}

func dialWithRetry(ctx context.Context, base *url.URL, token string, room protocol.RoomID, logger *slog.Logger) (*syncclient.Conn, error) {
	backoff := minBackoff
	for {
		conn, err := syncclient.Dial(ctx, base, token, room, logger)
		if err == nil {
			return conn, nil
		}
		logger.Error("failed to connect", "err", err, "retry", backoff)
		t := time.NewTimer(backoff)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, errors.Join(err, ctx.Err())
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// loop owns the engine and the sync client; everything that touches them
// runs on its goroutine.
type loop struct {
	ctx    context.Context
	logger *slog.Logger
	engine *canvas.Engine
	client *syncclient.Client
	link   *relayLink
	base   *url.URL
	token  string
	room   protocol.RoomID
	linger time.Duration

	hydrate chan []shape.Shape
	redial  chan *syncclient.Conn
}

func (l *loop) startHydrate() {
	l.client.BeginHydrate()
	go func() {
		l.hydrate <- l.client.FetchHistory(l.ctx)
	}()
}

func (l *loop) run(conn *syncclient.Conn, steps []step) {
	l.startHydrate()
	events := conn.Events()

	script := make(chan step)
	go feed(l.ctx, steps, script)

	var lingerC <-chan time.Time
	for {
		select {
		case msg, ok := <-events:
			if !ok {
				events = nil
				l.logger.Warn("lost connection to relay, reconnecting", "err", conn.Err())
				l.link.set(nil)
				_ = conn.Close()
				go func() {
					if c, err := dialWithRetry(l.ctx, l.base, l.token, l.room, l.logger); err == nil {
						l.redial <- c
					}
				}()
				continue
			}
			l.client.OnRemoteEvent(msg)
		case c := <-l.redial:
			conn = c
			l.link.set(c)
			events = c.Events()
			l.startHydrate()
		case shapes := <-l.hydrate:
			l.client.Install(shapes)
		case st, ok := <-script:
			if !ok {
				script = nil
				lingerC = time.After(l.linger)
				continue
			}
			if st.clear {
				l.engine.ClearAll()
			} else {
				l.engine.Handle(st.event)
			}
		case <-lingerC:
			return
		case <-l.ctx.Done():
			return
		}
	}
}

// feed delivers script steps in order, honouring pauses, and closes out.
func feed(ctx context.Context, steps []step, out chan<- step) {
	defer close(out)
	for _, st := range steps {
		if st.pause > 0 {
			t := time.NewTimer(st.pause)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return
			}
			continue
		}
		select {
		case out <- st:
		case <-ctx.Done():
			return
		}
	}
}
