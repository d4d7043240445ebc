package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"groupbuy-core/config"
	httpHandler "groupbuy-core/internal/adapter/http/handler"
	"groupbuy-core/internal/adapter/line"
	pgStorage "groupbuy-core/internal/adapter/storage/postgres"
	redisStorage "groupbuy-core/internal/adapter/storage/redis"
	"groupbuy-core/internal/core/ports"
	"groupbuy-core/internal/service"
	"groupbuy-core/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Group-Buy Core")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	tenantRepo := pgStorage.NewTenantRepo(pool)
	hostUserRepo := pgStorage.NewHostUserRepo(pool)
	orderRepo := pgStorage.NewOrderRepo(pool)
	customerRepo := pgStorage.NewCustomerRepo(pool)
	productRepo := pgStorage.NewProductRepo(pool)
	paymentRepo := pgStorage.NewPaymentRepo(pool)
	shipmentRepo := pgStorage.NewShipmentRepo(pool)
	idempotencyRepo := pgStorage.NewIdempotencyRepo(pool, cfg.Idempotency.Retention, cfg.Idempotency.StaleLockTimeout)
	notificationRepo := pgStorage.NewNotificationRepo(pool)
	webhookEventRepo := pgStorage.NewWebhookEventRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize core services
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	authzSvc := service.NewAuthzService()

	// Initialize business services
	authSvc := service.NewAuthService(hostUserRepo, hashSvc, tokenSvc, log)
	intakeSvc := service.NewIntakeService(orderRepo, customerRepo, productRepo, idempotencyRepo, notificationRepo, transactor, log)
	lifecycleSvc := service.NewLifecycleService(orderRepo, paymentRepo, shipmentRepo, notificationRepo, transactor, log)
	webhookSvc := service.NewWebhookService(sigSvc, encSvc, customerRepo, notificationRepo, webhookEventRepo, transactor, log)

	// Initialize notification dispatcher
	lineClient := line.NewClient(cfg.Line, &http.Client{Timeout: cfg.Line.Timeout}, log)
	dispatcher := service.NewDispatcher(
		notificationRepo,
		orderRepo,
		customerRepo,
		tenantRepo,
		encSvc,
		lineClient,
		cfg.Dispatcher,
		log,
	)

	dispatcherCtx, stopDispatcher := context.WithCancel(ctx)
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		dispatcher.Run(dispatcherCtx)
	}()

	// Initialize rate limit store
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		IntakeSvc:      intakeSvc,
		LifecycleSvc:   lifecycleSvc,
		WebhookSvc:     webhookSvc,
		AuthSvc:        authSvc,
		Authorizer:     authzSvc,
		TokenSvc:       tokenSvc,
		TenantRepo:     tenantRepo,
		RateLimitStore: rateLimitStore,
		RateLimitRules: cfg.RateLimit,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop the dispatcher after the HTTP surface is drained so in-flight
	// transitions still get their notifications picked up.
	stopDispatcher()
	select {
	case <-dispatcherDone:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Dispatcher did not stop in time")
	}

	log.Info().Msg("Server exited")
}
