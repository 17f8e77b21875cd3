package redis

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/metahuman-os/cortex/pkg/ports"
)

const (
	streamKey    = "cortex:audit"
	writeTimeout = 5 * time.Second
)

// Sink records audit events to a Redis Stream. Record enqueues onto a
// bounded channel and a background goroutine performs the XAdd; when the
// queue is full the event is dropped and counted, never blocking the
// caller.
type Sink struct {
	client *redis.Client
	logger *zap.Logger
	maxLen int64

	queue   chan ports.AuditEvent
	dropped int64
	mu      sync.Mutex
	wg      sync.WaitGroup
	closed  chan struct{}
	once    sync.Once
}

// NewSink creates a Redis Streams audit sink. queueSize bounds the
// in-flight buffer; maxLen caps the stream length (0 disables capping).
func NewSink(client *redis.Client, queueSize int, maxLen int64, logger *zap.Logger) *Sink {
	if queueSize <= 0 {
		queueSize = 256
	}
	s := &Sink{
		client: client,
		logger: logger,
		maxLen: maxLen,
		queue:  make(chan ports.AuditEvent, queueSize),
		closed: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writer()
	return s
}

// Record enqueues event for background writing.
func (s *Sink) Record(event ports.AuditEvent) {
	select {
	case s.queue <- event:
	case <-s.closed:
	default:
		s.mu.Lock()
		s.dropped++
		n := s.dropped
		s.mu.Unlock()
		if n%100 == 1 {
			s.logger.Warn("audit queue full, dropping events",
				zap.Int64("dropped_total", n))
		}
	}
}

// Close stops the writer after flushing the queue.
func (s *Sink) Close() error {
	s.once.Do(func() { close(s.closed) })
	s.wg.Wait()
	return nil
}

func (s *Sink) writer() {
	defer s.wg.Done()
	for {
		select {
		case ev := <-s.queue:
			s.write(ev)
		case <-s.closed:
			// flush what is left
			for {
				select {
				case ev := <-s.queue:
					s.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) write(ev ports.AuditEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("audit event marshal failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: streamKey,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"kind": ev.Kind,
			"data": string(data),
		},
	}
	if s.maxLen <= 0 {
		args.MaxLen = 0
		args.Approx = false
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		s.logger.Error("audit stream write failed",
			zap.String("kind", ev.Kind),
			zap.String("run_id", ev.RunID),
			zap.Error(err))
	}
}
