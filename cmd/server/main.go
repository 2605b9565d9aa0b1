package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rakheshkrishna2005/EchoStream/internal/cleanup"
	"github.com/rakheshkrishna2005/EchoStream/internal/config"
	"github.com/rakheshkrishna2005/EchoStream/internal/dispatch"
	"github.com/rakheshkrishna2005/EchoStream/internal/handlers"
	"github.com/rakheshkrishna2005/EchoStream/internal/insights"
	"github.com/rakheshkrishna2005/EchoStream/internal/metrics"
	"github.com/rakheshkrishna2005/EchoStream/internal/pipeline"
	"github.com/rakheshkrishna2005/EchoStream/internal/queue"
	"github.com/rakheshkrishna2005/EchoStream/internal/session"
	"github.com/rakheshkrishna2005/EchoStream/internal/tempfiles"
	"github.com/rakheshkrishna2005/EchoStream/internal/transcribe"
)

func main() {
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Custom logger setup
	logBuffer := &LogBuffer{
		lines: make([]string, 0, 1000),
	}
	multiWriter := io.MultiWriter(os.Stdout, logBuffer)
	log.SetOutput(multiWriter)

	log.Println("Initializing components...")

	files, err := tempfiles.NewManager(cfg.Storage.TempDir)
	if err != nil {
		log.Fatalf("Failed to create temp directory: %v", err)
	}

	engine := transcribe.NewHTTPEngine(transcribe.EngineConfig{
		Endpoint: cfg.Engine.Endpoint,
		APIKey:   cfg.Engine.APIKey,
		Model:    cfg.Engine.Model,
		Timeout:  cfg.Engine.EngineTimeout(),
	})
	adapter := transcribe.NewAdapter(engine, files)

	model := insights.NewGeminiModel(cfg.Insights.APIKey, cfg.Insights.Model)
	builder := insights.NewBuilder(model)

	processor := pipeline.NewProcessor(adapter, builder, files)
	appMetrics := metrics.NewMetrics()

	var (
		store     *queue.Store
		pool      *queue.Pool
		submitter dispatch.Submitter
	)
	if cfg.Queue.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Queue.Database), 0755); err != nil {
			log.Fatalf("Failed to create database directory: %v", err)
		}
		store, err = queue.NewStore(cfg.Queue.Database, queue.RetentionPolicy{
			CompletedMaxAge:   time.Duration(cfg.Queue.CompletedMaxAge) * time.Second,
			CompletedMaxCount: cfg.Queue.CompletedMaxCount,
			FailedMaxAge:      time.Duration(cfg.Queue.FailedMaxAge) * time.Second,
			SweepInterval:     10 * time.Minute,
		})
		if err != nil {
			log.Fatalf("Failed to open job store: %v", err)
		}
		store.StartRetention()

		pool = queue.NewPool(cfg.Queue.WorkerConcurrency, store, processor, appMetrics)
		pool.Start()

		submitter = dispatch.NewQueued(store, appMetrics)
		log.Printf("Queue mode enabled (%d workers)", cfg.Queue.WorkerConcurrency)
	} else {
		submitter = dispatch.NewInline(processor, appMetrics)
		log.Println("Inline mode enabled")
	}

	cleanupScheduler := cleanup.NewScheduler(
		cfg.Storage.TempDir,
		cfg.Cleanup.IntervalMinutes,
		cfg.Cleanup.MaxAgeHours,
	)
	cleanupScheduler.Start()
	defer cleanupScheduler.Stop()

	registry := session.NewRegistry()

	app := fiber.New(fiber.Config{
		BodyLimit: cfg.Server.BodyLimitMB * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	submitHandler := handlers.NewSubmitHandler(submitter, files)
	jobsHandler := handlers.NewJobsHandler(store)
	liveHandler := handlers.NewLiveHandler(registry, adapter, builder, files, appMetrics)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/", handlers.Bearer(cfg.Auth.BearerToken))
	api.Post("/api/finalize", submitHandler.Finalize)
	api.Post("/upload-audio", submitHandler.Upload)
	api.Get("/jobs/:id", jobsHandler.Get)
	api.Get("/logs", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"logs": logBuffer.GetLogs()})
	})

	// WebSocket auth happens at upgrade time; the result travels to the
	// connection handler through Locals.
	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		presented := strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
		if presented == c.Get("Authorization") {
			presented = c.Query("token")
		}
		c.Locals("authorized", handlers.TokenMatches(cfg.Auth.BearerToken, presented))
		return c.Next()
	})
	app.Get("/ws", websocket.New(liveHandler.Handle))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down gracefully...")
		app.Shutdown()
	}()

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}

	if pool != nil {
		pool.Stop()
	}
	if store != nil {
		store.Close()
	}
}

// LogBuffer captures logs in memory
type LogBuffer struct {
	lines []string
	mu    sync.Mutex
}

func (lb *LogBuffer) Write(p []byte) (n int, err error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.lines = append(lb.lines, string(p))

	// Keep last 1000 lines
	if len(lb.lines) > 1000 {
		lb.lines = lb.lines[len(lb.lines)-1000:]
	}

	return len(p), nil
}

func (lb *LogBuffer) GetLogs() []string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	logs := make([]string, len(lb.lines))
	copy(logs, lb.lines)
	return logs
}
