package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const healthTimeout = 2 * time.Second

func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn("health check failed", "check", name, "error", err)
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	body := gin.H{
		"status": "ok",
		"checks": checks,
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if h.queue != nil {
		body["queue"] = h.queue.Stats()
	}
	if h.registry != nil {
		body["connections"] = h.registry.Len()
	}
	if h.hub != nil {
		body["clients"] = h.hub.ClientCount()
	}
	c.JSON(status, body)
}
