package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// eventStream sends launch events to the host as server-sent events. An
// attached stream is what makes the host count as foreground.
func (h *handler) eventStream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ch, unsub := h.Stream.Subscribe()
	defer unsub()

	_, _ = c.Writer.Write([]byte(": connected\n\n"))
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	h.Logger.Info("host attached to event stream", zap.String("remote", c.ClientIP()))
	defer h.Logger.Info("host detached from event stream", zap.String("remote", c.ClientIP()))

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			c.SSEvent(string(evt.Type), evt)
			c.Writer.Flush()
		case <-ticker.C:
			_, _ = c.Writer.Write([]byte(": heartbeat\n\n"))
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}
