package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/rewardhub/loyalty_services/internal/loyalty_service/adapters/http"
	"github.com/rewardhub/loyalty_services/internal/loyalty_service/adapters/lock"
	"github.com/rewardhub/loyalty_services/internal/loyalty_service/adapters/paymentgateway"
	"github.com/rewardhub/loyalty_services/internal/loyalty_service/app"
	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
	"github.com/rewardhub/loyalty_services/internal/loyalty_service/repository/postgres"
	"github.com/rewardhub/loyalty_services/internal/platform/auth"
	"github.com/rewardhub/loyalty_services/internal/platform/config"
	"github.com/rewardhub/loyalty_services/internal/platform/database"
	"github.com/rewardhub/loyalty_services/internal/platform/logger"
	"github.com/rewardhub/loyalty_services/internal/platform/messagebroker"
)

const (
	serviceName     = "loyalty-service"
	shutdownTimeout = 15 * time.Second
)

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)
	appLogger.Info("Loyalty service starting...",
		"http_port", cfg.ServerPort,
		"metrics_port", cfg.MetricsPort,
		"log_level", cfg.LogLevel,
		"gateway_mock", cfg.PaymentGatewayMock,
	)

	settlementDefaults, err := app.SettlementDefaultsFromConfig(cfg)
	if err != nil {
		appLogger.Error("Invalid settlement configuration", "error", err)
		os.Exit(1)
	}

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Successfully connected to PostgreSQL")

	if cfg.RunMigrations {
		if err := database.Migrate(mainCtx, dbPool, appLogger); err != nil {
			appLogger.Error("Failed to apply migrations", "error", err)
			os.Exit(1)
		}
	}

	natsClient, err := messagebroker.NewNATSClient(mainCtx, cfg.NATSUrl, serviceName, messagebroker.StreamConfig{
		Name:     cfg.NATSStream,
		Subjects: []string{domain.SubjectAllLoyaltyEvents},
		MaxAge:   time.Duration(cfg.NATSStreamMaxAgeHours) * time.Hour,
	}, appLogger)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	appLogger.Info("Successfully connected to NATS")

	// The lock only narrows concurrent reconciliation; settlement stays idempotent without it.
	var locker app.Locker
	var redisClient *goredis.Client
	if cfg.RedisURL != "" {
		redisClient, err = lock.NewClientFromURL(mainCtx, cfg.RedisURL)
		if err != nil {
			appLogger.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient, appLogger)
		appLogger.Info("Redis settlement lock enabled")
	}

	verifier := paymentgateway.WebhookVerifier{
		Username:  cfg.PaymentGatewayWebhookUsername,
		Password:  cfg.PaymentGatewayWebhookPassword,
		SaltKey:   cfg.PaymentGatewaySaltKey,
		SaltIndex: cfg.PaymentGatewaySaltIndex,
	}
	var gateway domain.PaymentGatewayAdapter
	if cfg.PaymentGatewayMock {
		gateway = paymentgateway.NewMockPaymentGatewayAdapter(appLogger, verifier, false, false)
		appLogger.Warn("Using mock payment gateway")
	} else {
		gateway = paymentgateway.NewPhonePeAdapter(paymentgateway.Config{
			BaseURL:      cfg.PaymentGatewayBaseURL,
			ClientID:     cfg.PaymentGatewayClientID,
			ClientSecret: cfg.PaymentGatewayClientSecret,
			Timeout:      time.Duration(cfg.PaymentGatewayTimeoutSeconds) * time.Second,
			Verifier:     verifier,
		}, appLogger)
	}

	repos := app.Repositories{
		Users:         postgres.NewPgUserRepository(appLogger),
		Merchants:     postgres.NewPgMerchantRepository(appLogger),
		Transactions:  postgres.NewPgTransactionRepository(appLogger),
		Referrals:     postgres.NewPgReferralRepository(appLogger),
		Withdrawals:   postgres.NewPgBoostWithdrawalRepository(appLogger),
		BoostLedger:   postgres.NewPgBoostLedgerRepository(appLogger),
		Payouts:       postgres.NewPgPayoutRepository(appLogger),
		Slabs:         postgres.NewPgSlabRepository(appLogger),
		LuckyDraws:    postgres.NewPgLuckyDrawRepository(appLogger),
		Settlements:   postgres.NewPgSettlementRepository(appLogger),
		PaymentOrders: postgres.NewPgPaymentOrderRepository(appLogger),
	}
	uow := postgres.NewPgUnitOfWork(dbPool)
	settings := app.NewSettingsProvider(postgres.NewPgSettingsRepository(appLogger), settlementDefaults, appLogger)

	settlementSvc := app.NewSettlementService(uow, repos, settings, natsClient, appLogger)
	paymentSvc := app.NewPaymentService(uow, repos, gateway, settlementSvc, locker,
		time.Duration(cfg.SettlementLockTTLSecs)*time.Second, appLogger)

	router := httpadapter.NewRouter(httpadapter.RouterConfig{
		Payments:               paymentSvc,
		Referrals:              app.NewReferralService(uow, repos, natsClient, appLogger),
		Boost:                  app.NewBoostWithdrawalService(uow, repos, settings, natsClient, appLogger),
		Payouts:                app.NewPayoutService(uow, repos, settings, natsClient, appLogger),
		Tokens:                 auth.NewTokenManager(cfg.JWTSecret, time.Duration(cfg.JWTAccessExpiryHours)*time.Hour),
		DB:                     dbPool,
		Logger:                 appLogger,
		SignatureFailureStatus: cfg.PaymentGatewaySignatureFailureStatus,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		appLogger.Info("HTTP server starting", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("HTTP server ListenAndServe error", "error", err)
			return err
		}
		appLogger.Info("HTTP server shut down gracefully.")
		return nil
	})

	g.Go(func() error {
		appLogger.Info("Metrics HTTP server starting", "address", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Metrics HTTP server ListenAndServe error", "error", err)
			return err
		}
		appLogger.Info("Metrics HTTP server shut down gracefully.")
		return nil
	})

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)

	g.Go(func() error {
		select {
		case sig := <-stopSignal:
			appLogger.Info("Received termination signal", "signal", sig.String())
			mainCancel()
		case <-groupCtx.Done():
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		appLogger.Info("Initiating graceful shutdown of servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var shutdownErrors error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("HTTP server graceful shutdown failed", "error", err)
			shutdownErrors = errors.Join(shutdownErrors, fmt.Errorf("http shutdown: %w", err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Metrics HTTP server graceful shutdown failed", "error", err)
			shutdownErrors = errors.Join(shutdownErrors, fmt.Errorf("metrics http shutdown: %w", err))
		}
		return shutdownErrors
	})

	appLogger.Info("Loyalty service is ready and running.")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Service group encountered an error during run/shutdown", "error", err)
	}
	appLogger.Info("Loyalty service shut down successfully.")
}
