package workers

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthMonitor periodically reports worker pool occupancy.
type HealthMonitor struct {
	pool     *Pool
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewHealthMonitor creates a health monitor for pool.
func NewHealthMonitor(pool *Pool, interval time.Duration, logger *zap.Logger) *HealthMonitor {
	return &HealthMonitor{
		pool:     pool,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins periodic health checks.
func (h *HealthMonitor) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running || h.interval <= 0 {
		return
	}
	h.running = true
	go h.run()
}

// Stop ends periodic health checks.
func (h *HealthMonitor) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	close(h.stopCh)
}

func (h *HealthMonitor) run() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.check()
		}
	}
}

func (h *HealthMonitor) check() {
	idle, busy := h.pool.Status()

	h.logger.Debug("worker pool health check",
		zap.Int("idle", idle),
		zap.Int("busy", busy))

	if h.pool.metrics != nil {
		h.pool.metrics.RecordWorkerPoolStatus(idle, busy)
	}

	if idle == 0 {
		h.logger.Warn("all workers are busy - node dispatch is falling back inline",
			zap.Int("total", h.pool.size))
	}
}
