package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/chatstream-backend/internal/logger"
	"github.com/yungbote/chatstream-backend/internal/stream"
)

// Sentinel marks end-of-stream on the wire.
const Sentinel = "[DONE]"

// WriteEvent frames one stream event as an SSE data record.
func WriteEvent(w io.Writer, ev stream.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", raw)
	return err
}

func WriteSentinel(w io.Writer) error {
	_, err := fmt.Fprintf(w, "data: %s\n\n", Sentinel)
	return err
}

// Stream drains feed into the response until a terminal event, the channel
// closing, or the client going away. Purely a serialization boundary.
func Stream(c *gin.Context, feed <-chan stream.Event, log *logger.Logger) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		log.Warn("Streaming unsupported by response writer")
		return
	}

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("SSE client context done", "error", ctx.Err())
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(c.Writer, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-feed:
			if !ok {
				_ = WriteSentinel(c.Writer)
				flusher.Flush()
				return
			}
			if err := WriteEvent(c.Writer, ev); err != nil {
				log.Warn("Failed to write SSE event", "error", err)
				return
			}
			flusher.Flush()
			if ev.Terminal() {
				_ = WriteSentinel(c.Writer)
				flusher.Flush()
				return
			}
		}
	}
}
