package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/elevenpay/axis-payout-service/internal/adapters/axis"
	"github.com/elevenpay/axis-payout-service/internal/adapters/postgres"
	"github.com/elevenpay/axis-payout-service/internal/adapters/secrets"
	"github.com/elevenpay/axis-payout-service/internal/config"
	"github.com/elevenpay/axis-payout-service/internal/domain/ports"
	callbackHandler "github.com/elevenpay/axis-payout-service/internal/handlers/callback"
	"github.com/elevenpay/axis-payout-service/internal/handlers/payoutapi"
	"github.com/elevenpay/axis-payout-service/internal/middleware"
	"github.com/elevenpay/axis-payout-service/internal/scheduler"
	payoutService "github.com/elevenpay/axis-payout-service/internal/services/payout"
	"github.com/elevenpay/axis-payout-service/pkg/crypto"
	"github.com/elevenpay/axis-payout-service/pkg/observability"
)

func main() {
	// .env is optional, real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logger)
	defer logger.Sync()

	logger.Info("starting axis payout service",
		zap.String("version", "0.1.0"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// database
	dbPool, err := postgres.NewPool(ctx, cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer dbPool.Close()
	logger.Info("database connection established",
		zap.String("database", cfg.Database.Database),
	)

	// secret backend and key material
	secretManager, err := secrets.NewFromConfig(ctx, cfg.Secrets, logger)
	if err != nil {
		logger.Fatal("failed to initialize secret backend", zap.Error(err))
	}
	keys, err := secrets.LoadKeyMaterial(ctx, secretManager, cfg.Secrets)
	if err != nil {
		logger.Fatal("failed to load key material", zap.Error(err))
	}
	envelope, err := crypto.NewEnvelope(keys)
	if err != nil {
		logger.Fatal("failed to build secure envelope", zap.Error(err))
	}

	// counterparty gateway
	gateway := axis.NewClientWithDefaults(axis.Config{
		BaseURL:        cfg.Gateway.BaseURL,
		ChannelID:      cfg.Gateway.ChannelID,
		CorpCode:       cfg.Gateway.CorpCode,
		CorpAccNum:     cfg.Gateway.CorpAccNum,
		ClientID:       cfg.Gateway.ClientID,
		ClientSecret:   cfg.Gateway.ClientSecret,
		ServiceID:      cfg.Gateway.ServiceID,
		ServiceVersion: cfg.Gateway.ServiceVersion,
		Timeout:        cfg.Gateway.Timeout,
	}, envelope, logger)

	statusCodes, err := cfg.Gateway.ParseStatusCodeMap()
	if err != nil {
		logger.Fatal("invalid status code mapping", zap.Error(err))
	}

	repo := postgres.NewPayoutRepository(dbPool, logger)
	service := payoutService.NewService(repo, gateway, statusCodes, logger)

	// background reconciliation
	sched, err := scheduler.New(service, cfg.Scheduler, logger)
	if err != nil {
		logger.Fatal("failed to build scheduler", zap.Error(err))
	}
	sched.Start()
	defer sched.Stop()

	// metrics and health endpoints on their own port
	healthChecker := observability.NewHealthChecker(dbPool)
	healthChecker.AddProbe("secrets", func(ctx context.Context) error {
		_, err := secretManager.GetSecret(ctx, cfg.Secrets.CallbackSecretPath)
		return err
	})
	metricsServer := observability.StartMetricsServer(fmt.Sprintf("%d", cfg.Server.MetricsPort), healthChecker, logger)
	defer func() {
		if err := observability.ShutdownMetricsServer(metricsServer); err != nil {
			logger.Error("metrics server shutdown failed", zap.Error(err))
		}
	}()

	// HTTP surface
	router := buildRouter(cfg, secretManager, service, keys, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// graceful shutdown on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutdown signal received", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	logger.Info("service stopped")
}

func buildRouter(
	cfg *config.Config,
	secretManager ports.SecretManager,
	service *payoutService.Service,
	keys *crypto.KeyMaterial,
	logger *zap.Logger,
) chi.Router {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)

	rateLimiter := middleware.NewRateLimiter(cfg.Server.RateLimitPerSecond, cfg.Server.RateLimitBurst)
	auth := middleware.NewAPIKeyAuth(secretManager, cfg.Secrets.APIKeyTablePath, cfg.Server.APIKeyCacheTTL, logger)

	apiHandler := payoutapi.NewHandler(service, logger)
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimiter.Middleware)
		r.Use(auth.Middleware)
		apiHandler.Routes(r)
	})

	// the counterparty authenticates by payload encryption, not API key
	cbHandler := callbackHandler.NewHandler(crypto.NewCallbackDecryptor(keys), service, logger)
	router.Post("/axis/callback", cbHandler.HandleCallback)

	return router
}

func initLogger(cfg config.LoggerConfig) *zap.Logger {
	level := zapcore.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	var zapCfg zap.Config
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}
