package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/honeynil/GymMembershipMarket/internal/api"
	"github.com/honeynil/GymMembershipMarket/internal/config"
	"github.com/honeynil/GymMembershipMarket/internal/handler"
	"github.com/honeynil/GymMembershipMarket/internal/infrastructure/auth"
	"github.com/honeynil/GymMembershipMarket/internal/infrastructure/database"
	"github.com/honeynil/GymMembershipMarket/internal/infrastructure/kafka"
	"github.com/honeynil/GymMembershipMarket/internal/infrastructure/payment"
	"github.com/honeynil/GymMembershipMarket/internal/infrastructure/redis"
	"github.com/honeynil/GymMembershipMarket/internal/observability"
	core "github.com/honeynil/GymMembershipMarket/internal/repository/postgres"
	service "github.com/honeynil/GymMembershipMarket/internal/services"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Logs, metrics, traces
	shutdownTracing, metricsHandler, err := observability.Setup(ctx, serviceName, cfg.LogLevel, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to set up observability: %w", err)
	}
	defer shutdownTracing(context.Background())

	db, err := database.Connect(ctx, cfg.PostgresDSN, database.DefaultOptions())
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.MigrateOnStart {
		if err := database.Migrate(db); err != nil {
			return err
		}
	}

	redisClient, err := redis.NewClient(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	if err := kafka.EnsureTopics(ctx, cfg.KafkaBrokers, 3, cfg.KafkaTopic); err != nil {
		slog.Warn("could not ensure kafka topics, relying on broker auto-creation", "error", err)
	}
	producer := kafka.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()

	userRepo := core.NewPostgresUserRepository(db)
	listingRepo := core.NewPostgresListingRepository(db, cfg.KafkaTopic)
	transactionRepo := core.NewPostgresTransactionRepository(db, cfg.KafkaTopic)
	outboxRepo := core.NewPostgresOutboxRepository(db)

	tokens, err := auth.NewJWTService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}
	gateway := payment.NewStripeGateway(payment.StripeConfig{
		SecretKey:         cfg.StripeSecretKey,
		WebhookSecret:     cfg.StripeWebhookSecret,
		MaxNetworkRetries: &cfg.StripeMaxRetries,
	})

	checkoutService := service.NewCheckoutService(listingRepo, transactionRepo, gateway, redisClient, service.CheckoutConfig{
		AppURL:   cfg.AppURL,
		Currency: cfg.Currency,
	})
	h := handler.NewHandler(
		service.NewAuthService(userRepo, redisClient, tokens),
		service.NewListingService(listingRepo, userRepo),
		checkoutService,
		service.NewWebhookService(gateway, transactionRepo),
		service.NewDashboardService(listingRepo, transactionRepo),
	)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		service.NewOutboxRelay(outboxRepo, producer, cfg.OutboxBatchSize).Run(workerCtx, cfg.OutboxPollInterval)
	}()
	go func() {
		defer workers.Done()
		service.RunSweeper(workerCtx, checkoutService, cfg.SweepInterval, cfg.AbandonedCheckoutTTL)
	}()

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.SetupRouter(h, tokens, redisClient, metricsHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	stopWorkers()
	workers.Wait()
	slog.Info("server stopped")
	return nil
}
