package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"tradedesk/configs"
	"tradedesk/internal/adapter"
	deliveryhttp "tradedesk/internal/delivery/http"
	"tradedesk/internal/domain"
	"tradedesk/internal/infra"
	custommiddleware "tradedesk/internal/middleware"
	"tradedesk/internal/repository"
	"tradedesk/internal/service"
	"tradedesk/internal/usecase"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	cfg := configs.Load()
	logger := infra.NewLogger(cfg.Server.LogLevel, cfg.Server.IsProduction())
	if envErr != nil {
		logger.Debug(".env file not found, using environment variables")
	}

	ctx := context.Background()
	var checkers []domain.HealthChecker

	// Credentials come from the Vault when a database is configured, else from the environment
	var credentials domain.CredentialRepository
	if cfg.Database.URL != "" {
		db, err := infra.NewDatabase(ctx, cfg.Database.URL, logger)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to database")
		}
		defer db.Close()

		credentials = repository.NewVaultCredentialRepository(db)
		checkers = append(checkers, infra.NewDatabaseChecker(db))
	} else {
		logger.Warn("DATABASE_URL not set; broker credentials are read from ALPACA_* environment variables")
		credentials = repository.NewEnvCredentialRepository(
			domain.BrokerCredentials{KeyID: cfg.Alpaca.PaperAPIKey, SecretKey: cfg.Alpaca.PaperSecretKey},
			domain.BrokerCredentials{KeyID: cfg.Alpaca.LiveAPIKey, SecretKey: cfg.Alpaca.LiveSecretKey},
		)
	}

	var cache domain.ResponseCache = infra.NoopCache{}
	if cfg.Redis.URL != "" {
		redisCache, err := infra.NewRedisCache(ctx, cfg.Redis.URL, logger)
		if err != nil {
			logger.WithError(err).Warn("redis unavailable; screening responses will not be cached")
		} else {
			defer redisCache.Close()
			cache = redisCache
			checkers = append(checkers, redisCache)
		}
	}

	var events domain.EventPublisher = infra.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := infra.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer publisher.Close()
		events = publisher
	}

	// Adapters
	broker := adapter.NewAlpacaClient(adapter.AlpacaOptions{
		PaperURL:           cfg.Alpaca.PaperURL,
		LiveURL:            cfg.Alpaca.LiveURL,
		RateLimitPerMinute: cfg.Alpaca.RateLimitPerMinute,
		Timeout:            cfg.Alpaca.Timeout,
	}, logger)
	gateway := adapter.NewRestGateway(cfg.Supabase.KongURL, logger)
	chat := adapter.NewChatBridge(cfg.Chat.URL, cfg.Chat.MessageTimeout, logger)
	backend := adapter.NewBackendClient(cfg.Backend.URL, cfg.Backend.Timeout)
	checkers = append(checkers, gateway, chat, backend)

	// Services
	portfolio := usecase.NewPortfolioService(credentials, broker, events, logger)
	screening := usecase.NewScreeningService(gateway, cache, cfg.Supabase.ServiceRoleKey, cfg.Supabase.AnonKey, logger)
	dashboard := usecase.NewDashboardService(portfolio, screening)
	health := service.NewHealthService(cfg.Health.Timeout, logger, checkers...)

	scheduler := infra.NewScheduler(health, cfg.Health.Schedule, cfg.Health.Timeout, logger)
	if err := scheduler.Start(); err != nil {
		logger.WithError(err).Fatal("failed to start health probes")
	}
	defer scheduler.Stop()

	// Session verification
	verifier := custommiddleware.NewSessionVerifier(cfg.Supabase)
	if verifier == nil {
		logger.Warn("SUPABASE_JWT_SECRET or SUPABASE_URL and SUPABASE_ANON_KEY are not set; sessions cannot be verified")
	}
	sessions := custommiddleware.NewSessionResolver(verifier, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	deliveryhttp.SetupRoutes(e, &deliveryhttp.RouterConfig{
		Sessions: sessions,
		Gate: custommiddleware.GateConfig{
			LoginPath:  cfg.Auth.LoginPath,
			SignupPath: cfg.Auth.SignupPath,
			FailOpen:   cfg.Auth.FailOpen,
		},
		AlpacaHandler:    deliveryhttp.NewAlpacaHandler(portfolio, backend, logger),
		AnalyticsHandler: deliveryhttp.NewAnalyticsHandler(portfolio, logger),
		ScreeningHandler: deliveryhttp.NewScreeningHandler(screening, logger),
		ChatHandler:      deliveryhttp.NewChatHandler(chat, logger),
		DashboardHandler: deliveryhttp.NewDashboardHandler(dashboard, logger),
		WebHandler:       deliveryhttp.NewWebHandler(cfg.Server.WebRoot, health),
		Logger:           logger,
	})

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     e,
		ReadTimeout: 15 * time.Second,
		// Chat replies may take up to the message timeout
		WriteTimeout: cfg.Chat.MessageTimeout + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"addr":      addr,
			"env":       cfg.Server.Env,
			"web_root":  cfg.Server.WebRoot,
			"auth":      verifier != nil,
			"fail_open": cfg.Auth.FailOpen,
		}).Info("tradedesk starting")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
		return
	}

	logger.Info("server exited gracefully")
}
