package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"debugiq.app/backend/internal/notify"
	"debugiq.app/backend/internal/service"
	"debugiq.app/backend/internal/store"
)

const streamPingInterval = 25 * time.Second

// StreamHandler pushes status events to observers. Events are delivered
// at-most-once with no replay, so clients read current state over REST
// before attaching.
type StreamHandler struct {
	notifier     notify.Notifier
	issueService service.IssueService
}

func NewStreamHandler(notifier notify.Notifier, issueService service.IssueService) *StreamHandler {
	return &StreamHandler{
		notifier:     notifier,
		issueService: issueService,
	}
}

// Events streams status changes for one issue as server-sent events.
func (h *StreamHandler) Events(c *gin.Context) {
	ctx := c.Request.Context()
	issueID := c.Param("id")

	if _, err := h.issueService.GetStatus(ctx, issueID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "issue not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read issue"})
		return
	}

	events, cancel := h.notifier.Subscribe(ctx, issueID)
	defer cancel()

	setSSEHeaders(c.Writer)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	sseWrite(c.Writer, "ping", "ready")
	flusher.Flush()

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sseWrite(c.Writer, "ping", time.Now().UTC().Format(time.RFC3339Nano))
			flusher.Flush()
		case event, open := <-events:
			if !open {
				return
			}
			sseWrite(c.Writer, "status", event)
			flusher.Flush()
		}
	}
}

// Watch delivers the same status events over a WebSocket.
func (h *StreamHandler) Watch(c *gin.Context) {
	ctx := c.Request.Context()
	issueID := c.Param("id")

	if _, err := h.issueService.GetStatus(ctx, issueID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "issue not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read issue"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(ctx, "websocket accept failed", "issue_id", issueID, "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	events, cancel := h.notifier.Subscribe(ctx, issueID)
	defer cancel()

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		case event, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				slog.ErrorContext(ctx, "failed to marshal status event", "error", err)
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				return
			}
		}
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
}

func sseWrite(w http.ResponseWriter, event string, data any) {
	payload := marshalPayload(data)
	if event != "" {
		_, _ = fmt.Fprintf(w, "event: %s\n", event)
	}
	for _, line := range strings.Split(payload, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = fmt.Fprint(w, "\n")
}

func marshalPayload(data any) string {
	switch payload := data.(type) {
	case string:
		return payload
	case []byte:
		return string(payload)
	default:
		bytes, err := json.Marshal(payload)
		if err != nil {
			return fmt.Sprintf("%v", data)
		}
		return string(bytes)
	}
}
