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
	"golang.org/x/sync/errgroup"

	loyalty "github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
	"github.com/rewardhub/loyalty_services/internal/notification_service/app"
	"github.com/rewardhub/loyalty_services/internal/notification_service/repository/postgres"
	"github.com/rewardhub/loyalty_services/internal/platform/config"
	"github.com/rewardhub/loyalty_services/internal/platform/database"
	"github.com/rewardhub/loyalty_services/internal/platform/logger"
	"github.com/rewardhub/loyalty_services/internal/platform/messagebroker"
)

const (
	serviceName     = "notification-service"
	shutdownTimeout = 15 * time.Second
	// processTimeout mirrors the consumer's per-message budget.
	processTimeout = 10 * time.Second
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
	appLogger.Info("Notification service starting...", "metrics_port", cfg.MetricsPort, "consumer", cfg.NotificationConsumer)

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	natsClient, err := messagebroker.NewNATSClient(mainCtx, cfg.NATSUrl, serviceName, messagebroker.StreamConfig{
		Name:     cfg.NATSStream,
		Subjects: []string{loyalty.SubjectAllLoyaltyEvents},
		MaxAge:   time.Duration(cfg.NATSStreamMaxAgeHours) * time.Hour,
	}, appLogger)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()

	processor := app.NewNotificationProcessor(postgres.NewPgNotificationRepository(dbPool, appLogger), appLogger)
	consumer := app.NewEventConsumer(natsClient, processor, time.Duration(cfg.NotificationRetryDelaySecs)*time.Second, appLogger)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		return consumer.Run(groupCtx, loyalty.SubjectAllLoyaltyEvents, messagebroker.ConsumerOptions{
			Durable:    cfg.NotificationConsumer,
			MaxDeliver: cfg.NotificationMaxDeliver,
			AckWait:    processTimeout + 5*time.Second,
		})
	})

	g.Go(func() error {
		appLogger.Info("Metrics HTTP server starting", "address", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Metrics HTTP server ListenAndServe error", "error", err)
			return err
		}
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics http shutdown: %w", err)
		}
		return nil
	})

	appLogger.Info("Notification service is ready and running.")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Service group encountered an error during run/shutdown", "error", err)
	}
	appLogger.Info("Notification service shut down successfully.")
}
