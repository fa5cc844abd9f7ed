package handler

import (
	"chatgogo/realtime/internal/chathub"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const restoreTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Дозволяє з'єднання з будь-якого домену. У продакшені налаштувати!
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket оновлює HTTP-з'єднання до WebSocket після перевірки токена
func (h *Handler) ServeWebSocket(c *gin.Context) {
	tokenString := tokenFromRequest(c)
	if tokenString == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
		return
	}
	claims, err := h.auth.Validate(tokenString)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade вже відповів клієнту
		h.log.Warn("websocket upgrade failed", "user_id", claims.Subject, "error", err)
		return
	}

	client := chathub.NewWebSocketClient(conn, claims.Subject, claims.Name, h.rooms, h.log)
	h.hub.Register(client)
	h.registry.Register(client.ID(), client.UserID())

	ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
	h.rooms.Restore(ctx, client)
	cancel()

	client.Run()
	h.log.Info("websocket connected", "socket_id", client.ID(), "user_id", client.UserID())
}
