package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"slot-shop/internal/cache"
	"slot-shop/internal/catalog"
	"slot-shop/internal/config"
	"slot-shop/internal/convo"
	"slot-shop/internal/gateway"
	"slot-shop/internal/httpserver"
	"slot-shop/internal/inventory"
	"slot-shop/internal/logging"
	"slot-shop/internal/metrics"
	"slot-shop/internal/order"
	"slot-shop/internal/store"
	"slot-shop/migrations"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting slot-shop", "env", cfg.AppEnv, "driver", cfg.DatabaseDriver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	var st store.Store
	switch cfg.DatabaseDriver {
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.DatabaseURL, logger)
	default:
		st, err = store.NewSQLite(ctx, cfg.SQLitePath, logger)
	}
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrated")

	redisClient := cache.New(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		UseTLS:   cfg.RedisTLS,
	}, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("failed closing redis", "error", err)
		}
	}()
	if err := redisClient.Ping(ctx); err != nil {
		logger.Warn("redis ping failed", "error", err)
	}

	gatewayClient := gateway.NewClient(gateway.ClientConfig{
		BaseURL: cfg.GatewayBaseURL,
		Token:   cfg.GatewayToken,
		Timeout: cfg.GatewayTimeout,
	}, logger, metricRegistry)

	publisher := catalog.New(st, gatewayClient, cfg.ChannelID, logger, metricRegistry)
	ledger := inventory.New(st, logger)
	machine := order.New(st, ledger, gatewayClient, publisher, order.Config{
		AdminIDs: cfg.AdminIDs,
	}, logger, metricRegistry)

	states := convo.NewStateStore(redisClient, cfg.ConversationStateTTL)
	engine := convo.NewEngine(st, machine, ledger, publisher, gatewayClient, states, convo.Settings{
		AdminIDs:       cfg.AdminIDs,
		PaymentCard:    cfg.PaymentCard,
		SupportContact: cfg.SupportContact,
		PickupAddress:  cfg.PickupAddress,
		CourierArea:    cfg.CourierArea,
	}, logger)

	webhookHandler := gateway.NewWebhookHandler(logger, metricRegistry, cfg.WebhookSecret, engine)

	httpSrv := httpserver.New(cfg.HTTPListenAddr, httpserver.Dependencies{
		Logger:      logger,
		Store:       st,
		Webhook:     webhookHandler,
		AdminSecret: cfg.WebhookSecret,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}
