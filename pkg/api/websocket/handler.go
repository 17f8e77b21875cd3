package websocket

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/metahuman-os/cortex/pkg/ports"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler serves run observer WebSocket connections. Observers receive
// the execution events of one run as they happen, mirrored from the
// in-process event bus. A slow observer has events dropped rather than
// slowing the run.
type Handler struct {
	eventBus ports.EventBus
	logger   *zap.Logger
}

// NewHandler creates a WebSocket handler over bus.
func NewHandler(eventBus ports.EventBus, logger *zap.Logger) *Handler {
	return &Handler{
		eventBus: eventBus,
		logger:   logger,
	}
}

// HandleRunStream upgrades the connection and forwards events for the
// run id in the path until the client disconnects.
func (h *Handler) HandleRunStream(c *gin.Context) {
	runID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("WebSocket observer connected",
		zap.String("run_id", runID),
		zap.String("client", c.ClientIP()))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	eventChan := make(chan ports.Event, 32)
	handler := func(ctx context.Context, event ports.Event) error {
		select {
		case eventChan <- event:
		case <-ctx.Done():
			return ctx.Err()
		default:
			h.logger.Warn("observer channel full, dropping event",
				zap.String("run_id", runID),
				zap.String("event_type", event.Type))
		}
		return nil
	}

	if err := h.eventBus.Subscribe(ctx, "runs."+runID, handler); err != nil {
		h.logger.Error("failed to subscribe to run events",
			zap.String("run_id", runID),
			zap.Error(err))
		return
	}

	// reader goroutine detects client disconnect
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eventChan:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal event", zap.Error(err))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("observer write failed, closing",
					zap.String("run_id", runID),
					zap.Error(err))
				return
			}
		}
	}
}
