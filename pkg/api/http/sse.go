package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/metahuman-os/cortex/internal/application/stream"
)

// sseWriter delivers stream frames as server-sent events. Each frame is
// written as one "data:" line and flushed immediately so clients see
// progress as it happens.
type sseWriter struct {
	mu      sync.Mutex
	writer  gin.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(c *gin.Context) (*sseWriter, error) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseWriter{writer: c.Writer, flusher: flusher}, nil
}

// WriteFrame implements stream.FrameWriter.
func (s *sseWriter) WriteFrame(f stream.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.writer, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	s.flusher.Flush()
	return nil
}
