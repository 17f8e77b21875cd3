package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/metahuman-os/cortex/internal/application/boundary"
	"github.com/metahuman-os/cortex/internal/application/engine"
	"github.com/metahuman-os/cortex/internal/application/stream"
	"github.com/metahuman-os/cortex/internal/application/workers"
	"github.com/metahuman-os/cortex/internal/config"
	auditlog "github.com/metahuman-os/cortex/pkg/adapters/audit/log"
	auditredis "github.com/metahuman-os/cortex/pkg/adapters/audit/redis"
	eventsmemory "github.com/metahuman-os/cortex/pkg/adapters/events/memory"
	graphfs "github.com/metahuman-os/cortex/pkg/adapters/graphstore/fs"
	graphredis "github.com/metahuman-os/cortex/pkg/adapters/graphstore/redis"
	"github.com/metahuman-os/cortex/pkg/adapters/llm"
	memmemory "github.com/metahuman-os/cortex/pkg/adapters/memstore/memory"
	memredis "github.com/metahuman-os/cortex/pkg/adapters/memstore/redis"
	"github.com/metahuman-os/cortex/pkg/adapters/metrics/prometheus"
	"github.com/metahuman-os/cortex/pkg/adapters/skills"
	"github.com/metahuman-os/cortex/pkg/api/grpc"
	"github.com/metahuman-os/cortex/pkg/api/http"
	"github.com/metahuman-os/cortex/pkg/api/websocket"
	"github.com/metahuman-os/cortex/pkg/ports"
	"github.com/metahuman-os/cortex/pkg/registry"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting cortex engine",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	// Redis is only dialed when a backend selects it.
	var redisClient *goredis.Client
	if cfg.GraphStore == "redis" || cfg.AuditSink == "redis" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	var graphStore ports.GraphStore
	switch cfg.GraphStore {
	case "redis":
		graphStore = graphredis.NewStore(redisClient, logger)
	default:
		graphStore = graphfs.NewStore(cfg.WorkflowDir, logger)
	}

	var auditSink ports.AuditSink
	switch cfg.AuditSink {
	case "redis":
		auditSink = auditredis.NewSink(redisClient, 256, 100_000, logger)
	default:
		auditSink = auditlog.NewSink(logger)
	}

	modelClient, err := llm.NewClient(llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.DefaultModel,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create model client", zap.Error(err))
	}

	var memoryStore ports.MemoryStore
	if redisClient != nil {
		memoryStore = memredis.NewStore(redisClient, logger)
	} else {
		memoryStore = memmemory.NewStore()
	}

	skillRunner := skills.NewRunner(logger)
	metricsCollector := prometheus.NewCollector()

	reg := registry.New()
	if err := registry.RegisterBuiltins(reg, registry.Deps{
		Model:  modelClient,
		Memory: memoryStore,
		Skills: skillRunner,
		Logger: logger,
	}); err != nil {
		logger.Fatal("failed to register node catalog", zap.Error(err))
	}

	workerPool := workers.NewPool(
		cfg.Workers.PoolSize,
		metricsCollector,
		logger,
		cfg.Workers.HealthCheckInterval,
	)
	if err := workerPool.Start(); err != nil {
		logger.Fatal("failed to start worker pool", zap.Error(err))
	}

	validator := engine.NewValidator(reg)
	executor := engine.NewExecutor(reg, workerPool, metricsCollector, logger, cfg.Timeouts.NodeTimeout)

	guarded := boundary.New(executor, modelClient, auditSink, metricsCollector, logger, boundary.Options{
		MaxRetries:    cfg.Boundary.MaxRetries,
		BaseDelay:     cfg.Boundary.BaseDelay,
		Fallback:      cfg.Boundary.Fallback,
		FallbackModel: cfg.LLM.DefaultModel,
	})

	eventBus := eventsmemory.NewBus()

	streamer := stream.NewStreamer(
		graphStore,
		validator,
		guarded,
		eventBus,
		auditSink,
		metricsCollector,
		logger,
		stream.Options{
			DefaultTimeout:     cfg.Timeouts.RunTimeout,
			ProgressInterval:   cfg.Stream.ProgressInterval,
			CancelPollInterval: cfg.Stream.CancelPollInterval,
		},
	)

	httpServer := http.NewServer(&http.Config{
		Port:      cfg.HTTPPort,
		Streamer:  streamer,
		Validator: validator,
		Store:     graphStore,
		Logger:    logger,
	})

	wsHandler := websocket.NewHandler(eventBus, logger)
	httpServer.SetupWebSocket(wsHandler)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:   cfg.GRPCPort,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("cortex engine started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.String("graph_store", cfg.GraphStore),
		zap.Int("worker_pool_size", cfg.Workers.PoolSize))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	if err := workerPool.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker pool shutdown error", zap.Error(err))
	}

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if err := auditSink.Close(); err != nil {
		logger.Error("audit sink close error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	logger.Info("cortex engine shut down complete")
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
