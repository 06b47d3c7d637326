package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/ericlam1114/datasynthetix-api/internal/auth"
	"github.com/ericlam1114/datasynthetix-api/internal/client"
	"github.com/ericlam1114/datasynthetix-api/internal/config"
	"github.com/ericlam1114/datasynthetix-api/internal/extract"
	"github.com/ericlam1114/datasynthetix-api/internal/handler"
	"github.com/ericlam1114/datasynthetix-api/internal/middleware"
	"github.com/ericlam1114/datasynthetix-api/internal/model"
	"github.com/ericlam1114/datasynthetix-api/internal/pipeline"
	"github.com/ericlam1114/datasynthetix-api/internal/service"
	"github.com/ericlam1114/datasynthetix-api/internal/store"
	"github.com/ericlam1114/datasynthetix-api/internal/worker"
	ws "github.com/ericlam1114/datasynthetix-api/internal/websocket"
)

// @title          Data Synthetix API
// @version        1.0
// @description    Backend API for Data Synthetix — synthetic training data from business documents.
// @host           localhost:8000
// @BasePath       /
// @schemes        http https
// @securityDefinitions.apikey BearerAuth
// @in             header
// @name           Authorization
// @description    Enter your bearer token in the format **Bearer &lt;token&gt;**
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Durable job store plus the short-TTL read cache for status polling
	var durable store.JobStore
	if cfg.Storage.Driver == "file" {
		fileStore, err := store.NewFileStore(filepath.Join(cfg.Storage.DataDir, "store"), cfg.Processing.PruneAge)
		if err != nil {
			log.Fatalf("Failed to open file store: %v", err)
		}
		durable = fileStore
		log.Printf("Info: using file job store at %s", cfg.Storage.DataDir)
	} else {
		durable = store.NewRedisStore(redisClient, cfg.Processing.PruneAge)
	}
	jobStore := store.NewCachedStore(durable, cfg.Processing.CacheTTL)

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	validate := validator.New()

	hub := ws.NewHub()
	go hub.Run()

	// AI client; unconfigured falls back to the deterministic mock pipeline
	aiClient := client.NewAIClient(&cfg.AI)
	if !aiClient.IsConfigured() {
		log.Println("Info: AI endpoint not configured, pipeline runs in mock mode")
	}

	// Object storage (optional - continues with local files if not configured)
	var storageClient client.StorageClient
	if cfg.Storage.AccessKeyID != "" && cfg.Storage.SecretAccessKey != "" {
		s3Client, err := client.NewS3Client(&cfg.Storage)
		if err != nil {
			log.Printf("Warning: object storage not initialized: %v", err)
		} else {
			storageClient = s3Client
		}
	} else {
		log.Println("Info: object storage not configured, using local data directory")
	}

	// OIDC JWKS verifier (optional - falls back to legacy JWT)
	var jwksVerifier *auth.JWKSVerifier
	if cfg.OIDC.Issuer != "" {
		var err error
		jwksVerifier, err = auth.NewJWKSVerifier(&cfg.OIDC)
		if err != nil {
			log.Printf("Warning: JWKS verifier not initialized: %v", err)
		} else {
			defer jwksVerifier.Close()
		}
	}

	// Initialize services
	documentService := service.NewDocumentService(storageClient, cfg.Storage.DataDir)
	processService := service.NewProcessService(jobStore, asynqClient, hub, cfg)
	batchService := service.NewBatchService(jobStore, asynqClient, cfg)

	// Initialize handlers
	processHandler := handler.NewProcessHandler(processService, validate)
	batchHandler := handler.NewBatchHandler(batchService, validate)
	documentHandler := handler.NewDocumentHandler(documentService, validate)

	// Initialize auth handler for ForwardAuth verification
	var tokenVerifier auth.TokenVerifier
	if jwksVerifier != nil {
		tokenVerifier = jwksVerifier
	}
	authHandler := handler.NewAuthHandler(tokenVerifier, cfg.JWT.Secret)

	// Initialize middleware (with fallback support)
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled — using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		var authMiddleware *middleware.AuthMiddleware
		if jwksVerifier != nil && cfg.JWT.Secret != "" {
			authMiddleware = middleware.NewAuthMiddlewareWithFallback(jwksVerifier, cfg.JWT.Secret)
		} else if jwksVerifier != nil {
			authMiddleware = middleware.NewAuthMiddleware(jwksVerifier)
		} else {
			authMiddleware = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret)
		}
		apiAuthMiddleware = authMiddleware.Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    50 * 1024 * 1024, // 50MB
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"ai":      aiClient.IsConfigured(),
				"storage": storageClient != nil,
				"redis":   redisClient.Ping(c.Context()).Err() == nil,
				"auth":    jwksVerifier != nil || cfg.JWT.Secret != "",
			},
		})
	})

	// ForwardAuth verification endpoint (internal, called by Traefik)
	app.Get("/auth/verify", authHandler.Verify)

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	// Process routes
	process := api.Group("/process")
	process.Post("/start", rateLimiter.ProcessLimit(cfg.RateLimit.ProcessPerHour), processHandler.Start)
	process.Get("/status", rateLimiter.StatusLimit(cfg.RateLimit.StatusPerMin), processHandler.Status)
	process.Post("/status", processHandler.UpdateStatus)
	process.Post("/cancel/:jobId", processHandler.Cancel)
	process.Get("/result/:jobId", processHandler.Result)

	// Batch routes
	batch := api.Group("/batch")
	batch.Post("/start", rateLimiter.BatchLimit(cfg.RateLimit.BatchPerHour), batchHandler.Start)
	batch.Get("/status/:batchId", rateLimiter.StatusLimit(cfg.RateLimit.StatusPerMin), batchHandler.Status)

	// Document routes
	documents := api.Group("/documents", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour))
	documents.Post("/upload", documentHandler.Upload)
	documents.Delete("/:documentId", documentHandler.Delete)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, jobStore, documentService, aiClient, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	jobStore store.JobStore,
	documentService *service.DocumentService,
	aiClient *client.AIClient,
	hub *ws.Hub,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"process": 6,
				"batch":   4,
			},
			LogLevel: asynqLogLevel,
		},
	)

	p := pipeline.New(aiClient, cfg.AI)
	extractor := extract.NewDocconvExtractor()
	processWorker := worker.NewProcessWorker(jobStore, documentService, extractor, p, hub, cfg)
	batchWorker := worker.NewBatchWorker(jobStore, processWorker, cfg)

	mux := asynq.NewServeMux()
	mux.HandleFunc(model.TaskTypeProcess, processWorker.ProcessTask)
	mux.HandleFunc(model.TaskTypeBatch, batchWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
