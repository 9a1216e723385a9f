package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"drawing-board/config"
	"drawing-board/relay"
	"drawing-board/store"
)

func main() {
	if err := mainInner(os.Args[1:]); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner(args []string) error {
	if err := config.LoadEnvFile(); err != nil {
		return err
	}
	cfg, err := config.Load(args, os.Getenv)
	if err != nil {
		return err
	}
	logger := cfg.Logger()
	slog.SetDefault(logger)

	logger.Info("Opening database", "path", cfg.DatabasePath)
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, slug := range cfg.SeedRooms {
		room, err := st.EnsureRoom(ctx, slug)
		if err != nil {
			return fmt.Errorf("failed to seed room: %w", err)
		}
		logger.Info("seeded room", "slug", room.Slug, "id", room.ID)
	}

	hub := relay.NewHub(st, relay.Options{
		PersistTimeout:   cfg.PersistTimeout,
		TombstoneDeletes: cfg.TombstoneDeletes,
		Logger:           logger,
	})
	s := &server{ctx: ctx, hub: hub, store: st, secret: []byte(cfg.JWTSecret), logger: logger}
	httpServer := &http.Server{Addr: cfg.Addr, Handler: s.routes(), ReadHeaderTimeout: 10 * time.Second}

	var listenErr error
	wg := new(sync.WaitGroup)
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("Server starting", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr = fmt.Errorf("server listen failed: %w", err)
			cancel()
		}
	}()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-exit:
		logger.Info("Signal caught", "sig", sig)
	case <-ctx.Done():
	}
	// closes hijacked websocket connections too
	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	_ = httpServer.Shutdown(shutdownCtx)

	wg.Wait()
	return listenErr
}
