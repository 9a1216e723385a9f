package main

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"drawing-board/auth"
	"drawing-board/relay"
	"drawing-board/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // token auth, not origin, gates the socket
	},
}

// server holds everything the HTTP handlers need.
type server struct {
	ctx    context.Context
	hub    *relay.Hub
	store  *store.Store
	secret []byte
	logger *slog.Logger
}

func (s *server) routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	// WebSocket endpoint
	r.GET("/ws", s.handleWebSocket)

	r.GET("/chats/:roomId", s.handleChats)
	r.GET("/room/:slug", s.handleRoom)
	r.GET("/healthz", s.handleHealth)

	return logRequests(s.logger, r)
}

func logRequests(logger *slog.Logger, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		m := httpsnoop.CaptureMetrics(handler, writer, request)
		logger.Info("handled", "method", request.Method, "url", request.URL.Path, "duration", m.Duration, "status", m.Code)
	})
}

func (s *server) handleWebSocket(c *gin.Context) {
	userID, err := auth.Verify(s.secret, c.Query("token"))
	if err != nil {
		s.logger.Warn("rejecting websocket connection", "err", err)
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	relay.NewSession(s.hub, conn, userID).Serve(s.ctx)
}

func (s *server) handleChats(c *gin.Context) {
	roomID, err := strconv.ParseInt(c.Param("roomId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid room ID"})
		return
	}
	entries, err := s.store.Fetch(c.Request.Context(), roomID, store.FetchLimit)
	if err != nil {
		s.logger.Error("failed to fetch chats", "room", roomID, "err", err)
		entries = []store.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": entries})
}

func (s *server) handleRoom(c *gin.Context) {
	room, ok, err := s.store.LookupRoom(c.Request.Context(), c.Param("slug"))
	if err != nil {
		s.logger.Error("failed to look up room", "slug", c.Param("slug"), "err", err)
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"room": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}

func (s *server) handleHealth(c *gin.Context) {
	sessions, rooms := s.hub.Stats()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": sessions, "rooms": rooms})
}
