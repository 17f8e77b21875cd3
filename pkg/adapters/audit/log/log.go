package log

import (
	"go.uber.org/zap"

	"github.com/metahuman-os/cortex/pkg/ports"
)

// Sink writes audit events to the structured log. It is the default
// sink when Redis is not configured.
type Sink struct {
	logger *zap.Logger
}

// NewSink creates a log-backed audit sink.
func NewSink(logger *zap.Logger) *Sink {
	return &Sink{logger: logger.Named("audit")}
}

// Record logs the event.
func (s *Sink) Record(event ports.AuditEvent) {
	s.logger.Info("audit",
		zap.String("kind", event.Kind),
		zap.String("run_id", event.RunID),
		zap.String("workflow", event.Workflow),
		zap.Any("data", event.Data))
}

// Close is a no-op.
func (s *Sink) Close() error { return nil }
