package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/listgate/listgate/internal/background"
	"github.com/listgate/listgate/internal/config"
	"github.com/listgate/listgate/internal/cryptox"
	"github.com/listgate/listgate/internal/database"
	"github.com/listgate/listgate/internal/esp"
	"github.com/listgate/listgate/internal/handlers"
	middlewareCustom "github.com/listgate/listgate/internal/middleware"
	"github.com/listgate/listgate/internal/queue"
	"github.com/listgate/listgate/internal/repositories"
	"github.com/listgate/listgate/internal/routes"
	"github.com/listgate/listgate/internal/services"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize redis (check queue backend)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	pingCancel()
	defer redisClient.Close()

	// Email-at-rest codec
	codec, err := cryptox.NewCodec(cfg.Access.EmailMasterKey)
	if err != nil {
		logger.Error("failed to initialize email codec", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize repositories
	tenantRepo := repositories.NewTenantRepository(db)
	contentRepo := repositories.NewContentRepository(db)
	requestRepo := repositories.NewVerificationRequestRepository(db, codec)
	recordRepo := repositories.NewAccessRecordRepository(db, codec)

	// ESP gateways
	registry := esp.NewRegistry(logger)

	// AWS SES email service
	emailService, err := services.NewAWSSESEmailService(
		cfg.Email.AWSRegion,
		cfg.Email.FromAddress,
		cfg.Server.BaseURL,
		logger,
	)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize services
	checkQueue := queue.NewRedisCheckQueue(redisClient, cfg.Redis.QueueKey)

	verificationService := services.NewVerificationService(
		requestRepo, recordRepo, contentRepo, tenantRepo, registry, emailService, logger)
	checkService := services.NewAccessCheckService(
		recordRepo, tenantRepo, registry, checkQueue, logger)
	cacheService := services.NewAccessCacheService(
		recordRepo, contentRepo, tenantRepo, checkService, logger)

	// Background work: check workers and expired-request cleanup
	workerPool := background.NewCheckWorkerPool(checkQueue, checkService, logger, cfg.Access.CheckWorkers)
	cleanupManager := background.NewCleanupManager(verificationService, logger, cfg.Access.CleanupInterval)

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	defer backgroundCancel()

	workerPool.Start(backgroundCtx)
	cleanupManager.Start(backgroundCtx)

	// Initialize handlers
	cookieConfig := handlers.CookieConfig{
		Domain: cfg.Server.CookieDomain,
		Secure: cfg.Server.CookieSecure,
	}
	accessHandler := handlers.NewAccessHandler(
		verificationService, cacheService, checkService, contentRepo, cookieConfig, logger)

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, accessHandler)

	// Health check with database and redis
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")

		if err := db.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","redis":"down"}`))
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up","redis":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	backgroundCancel()
	cleanupManager.Stop()
	workerPool.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
