// Package handler is the HTTP surface of the realtime server: token issuing,
// the websocket handshake, health and the recent-messages read.
package handler

import (
	"chatgogo/realtime/internal/cache"
	"chatgogo/realtime/internal/chathub"
	"chatgogo/realtime/internal/dispatch"
	"chatgogo/realtime/internal/storage"
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck pings one dependency.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Hub      *chathub.ManagerService
	Registry *chathub.Registry
	Rooms    *chathub.RoomHandlers
	Store    storage.Storage
	Recent   cache.RecentMessageCache
	Queue    dispatch.Queue
	Auth     *Authenticator
	Checks   map[string]HealthCheck
	Log      *slog.Logger
}

// Handler містить посилання на ChatHub та сервіси ядра
type Handler struct {
	hub      *chathub.ManagerService
	registry *chathub.Registry
	rooms    *chathub.RoomHandlers
	store    storage.Storage
	recent   cache.RecentMessageCache
	queue    dispatch.Queue
	auth     *Authenticator
	checks   map[string]HealthCheck
	now      func() time.Time
	log      *slog.Logger
}

func NewHandler(d Deps) *Handler {
	if d.Recent == nil {
		d.Recent = cache.NoopRecentCache{}
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	return &Handler{
		hub:      d.Hub,
		registry: d.Registry,
		rooms:    d.Rooms,
		store:    d.Store,
		recent:   d.Recent,
		queue:    d.Queue,
		auth:     d.Auth,
		checks:   d.Checks,
		now:      time.Now,
		log:      d.Log.With("component", "http"),
	}
}

// NewRouter registers the routes on a fresh gin engine.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	r.GET("/health", h.Health)
	r.GET("/token", h.IssueToken)
	r.GET("/ws", h.ServeWebSocket)

	rooms := r.Group("/rooms", h.RequireAuth())
	rooms.GET("/:id/messages/recent", h.RecentMessages)

	return r
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.log.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
