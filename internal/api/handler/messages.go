package handler

import (
	"chatgogo/realtime/internal/chathub"
	"chatgogo/realtime/internal/models"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type recentResponse struct {
	RoomID   string             `json:"roomId"`
	Messages []models.ChatEvent `json:"messages"`
	HasMore  bool               `json:"hasMore"`
	Source   string             `json:"source"`
}

// RecentMessages returns the tail of a room, from the recent window when it
// is live, otherwise from the store.
func (h *Handler) RecentMessages(c *gin.Context) {
	roomID := c.Param("id")
	limit := chathub.DefaultInitialLoad
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, chathub.MaxPageSize)
	}

	ctx := c.Request.Context()
	if page, ok := h.recent.GetRecentMessages(ctx, roomID, limit); ok {
		c.JSON(http.StatusOK, recentResponse{RoomID: roomID, Messages: page.Messages, HasMore: page.HasMore, Source: "cache"})
		return
	}

	msgs, hasMore, err := h.store.FindMessagesBefore(ctx, roomID, h.now(), limit)
	if err != nil {
		h.log.Error("failed to load recent messages", "room_id", roomID, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, recentResponse{
		RoomID:   roomID,
		Messages: models.EventsFromMessages(msgs),
		HasMore:  hasMore,
		Source:   "store",
	})
}
