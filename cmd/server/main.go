package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/quizgen/internal/auth"
	"github.com/makeasinger/quizgen/internal/catalog"
	"github.com/makeasinger/quizgen/internal/checkpoint"
	"github.com/makeasinger/quizgen/internal/client"
	"github.com/makeasinger/quizgen/internal/config"
	"github.com/makeasinger/quizgen/internal/generation"
	"github.com/makeasinger/quizgen/internal/handler"
	"github.com/makeasinger/quizgen/internal/middleware"
	"github.com/makeasinger/quizgen/internal/orchestrator"
	"github.com/makeasinger/quizgen/internal/prompt"
	"github.com/makeasinger/quizgen/internal/quiz"
	"github.com/makeasinger/quizgen/internal/service"
	ws "github.com/makeasinger/quizgen/internal/websocket"
	"github.com/makeasinger/quizgen/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	level := parseLevel(cfg.Server.LogLevel)
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    cfg.Server.Env == "production",
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.Warn("Redis not available", "addr", cfg.Redis.Addr, "error", err)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	// Object storage is optional; it backs the object checkpoint backend and exports
	var storage client.ObjectStorage
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			slog.Warn("R2 client not initialized", "error", err)
		} else {
			storage = r2Client
		}
	} else {
		slog.Info("R2 storage not configured, exports disabled")
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		slog.Error("Failed to load catalog", "path", cfg.Catalog.Path, "error", err)
		os.Exit(1)
	}

	backend, err := checkpoint.NewBackend(ctx, cfg.Checkpoint, redisClient, storage)
	if err != nil {
		slog.Error("Failed to open checkpoint backend", "backend", cfg.Checkpoint.Backend, "error", err)
		os.Exit(1)
	}
	defer backend.Close()
	slog.Info("Checkpoint backend ready", "backend", backend.Name())

	var jwksVerifier *auth.JWKSVerifier
	if cfg.Auth.Issuer != "" {
		jwksVerifier, err = auth.NewJWKSVerifier(ctx, &cfg.Auth)
		if err != nil {
			slog.Warn("JWKS verifier not initialized", "issuer", cfg.Auth.Issuer, "error", err)
		} else {
			defer jwksVerifier.Close()
		}
	}

	llmClient := client.NewLLMClient(&cfg.LLM)
	validate := validator.New()

	hub := ws.NewHub()
	go hub.Run()

	jobService := service.NewJobService(service.JobServiceConfig{
		Repo:     service.NewRedisJobRepository(redisClient),
		Enqueuer: asynqClient,
		Catalog:  cat,
		Plan: catalog.PlanConfig{
			ChunkSize:         cfg.Generation.ChunkSize,
			QuestionsPerLevel: cfg.Generation.QuestionsPerLevel,
			SoftSkillsCount:   cfg.Generation.SoftSkillsCount,
		},
		Checkpoint: backend,
		Timeout:    cfg.Generation.JobTimeout,
	})

	jobHandler := handler.NewJobHandler(jobService, validate)
	checkpointHandler := handler.NewCheckpointHandler(jobService)
	catalogHandler := handler.NewCatalogHandler(cat)

	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		slog.Info("Gateway mode enabled, using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		var verifier auth.TokenVerifier
		if jwksVerifier != nil {
			verifier = jwksVerifier
		}
		apiAuthMiddleware = middleware.NewAuthMiddleware(verifier, cfg.JWT.Secret).Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(middleware.NewRedisCounter(redisClient))

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if level == slog.LevelDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"llm":        llmClient.IsConfigured(),
				"r2":         storage != nil,
				"checkpoint": backend.Name(),
				"auth":       jwksVerifier != nil || cfg.JWT.Secret != "",
			},
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api", apiAuthMiddleware)

	jobs := api.Group("/jobs")
	jobs.Post("/start", rateLimiter.JobsLimit(cfg.RateLimit.JobsPerHour), jobHandler.Start)
	jobs.Get("/status/:jobId", jobHandler.Status)
	jobs.Get("/result/:jobId", jobHandler.Result)
	jobs.Post("/cancel/:jobId", jobHandler.Cancel)

	api.Get("/checkpoints/summary", checkpointHandler.Summary)
	api.Get("/catalog", catalogHandler.List)
	api.Get("/catalog/:sector", catalogHandler.Sector)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("jobId"))
	}))

	runner := orchestrator.NewRunner(orchestrator.RunnerConfig{
		Completer:  llmClient,
		Backoff:    generation.NewBackoff(cfg.Backoff, nil),
		Validator:  quiz.NewValidator(cfg.Words),
		Prompts:    prompt.NewBuilder(cfg.Words),
		Catalog:    cat,
		LLM:        cfg.LLM,
		Generation: cfg.Generation,
		Pacing:     cfg.Pacing,
	})

	var exportStorage client.ObjectStorage
	if cfg.Export.Enabled {
		exportStorage = storage
	}
	generationWorker := worker.NewGenerationWorker(worker.GenerationConfig{
		Jobs:         jobService,
		Runner:       runner,
		Checkpoint:   backend,
		Storage:      exportStorage,
		ExportPrefix: cfg.Export.Prefix,
		Notifier:     hub,
		PollInterval: cfg.Generation.CancelPollInterval,
		Logger:       slog.Default(),
	})
	workerServer := newWorkerServer(cfg, redisOpt)
	go func() {
		mux := asynq.NewServeMux()
		mux.HandleFunc(service.TaskTypeGenerate, generationWorker.ProcessTask)
		if err := workerServer.Run(mux); err != nil {
			slog.Error("Asynq worker error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		slog.Info("Shutting down server")
		workerServer.Shutdown()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	slog.Info("Server starting", "addr", addr, "env", cfg.Server.Env)
	if err := app.Listen(addr); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}

func newWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt) *asynq.Server {
	asynqLogLevel := asynq.InfoLevel
	switch strings.ToLower(cfg.Server.LogLevel) {
	case "debug":
		asynqLogLevel = asynq.DebugLevel
	case "warn":
		asynqLogLevel = asynq.WarnLevel
	case "error":
		asynqLogLevel = asynq.ErrorLevel
	}

	concurrency := cfg.Generation.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			service.QueueGeneration: 1,
		},
		LogLevel: asynqLogLevel,
		// runs still in flight after this flush their pool and stay running;
		// the requeued task resumes them from checkpoints
		ShutdownTimeout: 30 * time.Second,
	})
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
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
