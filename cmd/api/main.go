package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/api"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/cache"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/clients"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/config"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/database"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/handlers"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/outbox"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/repository"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/risk"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/service"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/kafka"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.NewLogger(cfg.LogLevel)
	defer logger.Sync(l) //nolint:errcheck

	if err := run(cfg, l); err != nil {
		l.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, l logger.Logger) error {
	l.Info("Starting order service...", "env", cfg.Env)

	db, err := database.New(cfg, l)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	outboxRepo := repository.NewOutboxRepository(db, l)
	dlqRepo := repository.NewDeadLetterRepository(db, outboxRepo, l)

	var orderStore repository.OrderStore = repository.NewOrderRepository(db, outboxRepo, l)
	if cfg.CacheEnabled() {
		redisCache := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer redisCache.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisCache.Ping(ctx); err != nil {
			l.Warn("Redis is not reachable, reads will fall through to the database", "error", err)
		}
		cancel()

		orderStore = repository.NewCachedOrderRepository(orderStore, redisCache, cfg.Redis.TTL, l)
		l.Info("Order cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.TTL)
	}

	orderService := service.NewOrderService(
		orderStore,
		newAssessor(cfg, l),
		clients.NewPaymentClient(cfg.Payment.GatewayURL, cfg.Payment.APIKey, cfg.Payment.Timeout, l),
		l,
	)

	processor := outbox.NewProcessor(outboxRepo, outbox.ProcessorConfig{
		PollingInterval: cfg.Outbox.PollingInterval,
		BatchSize:       cfg.Outbox.BatchSize,
		MaxAttempts:     cfg.Outbox.MaxAttempts,
	}, l)

	brokers := nonEmpty(cfg.Kafka.Brokers)

	var consumer *kafka.Consumer
	if len(brokers) > 0 {
		producer, err := kafka.NewProducer(brokers, l)
		if err != nil {
			return fmt.Errorf("failed to create Kafka producer: %w", err)
		}
		defer producer.Close()

		outbox.RegisterAll(processor, outbox.NewKafkaHandler(producer, cfg.Kafka.OrdersTopic, l))

		consumer, err = kafka.NewConsumer(&kafka.ConsumerConfig{
			Brokers:       brokers,
			Topics:        []string{cfg.Kafka.PaymentsTopic},
			ConsumerGroup: cfg.Kafka.ConsumerGroup,
		}, l)
		if err != nil {
			return fmt.Errorf("failed to create Kafka consumer: %w", err)
		}
		consumer.RegisterHandler(cfg.Kafka.PaymentsTopic, handlers.NewPaymentEventsHandler(orderService, l))
	} else {
		l.Warn("No Kafka brokers configured, order events will only be logged")
		outbox.RegisterAll(processor, outbox.NewLoggingHandler(l))
	}

	processor.Start()
	defer processor.Stop()

	if consumer != nil {
		if err := consumer.Start(); err != nil {
			return fmt.Errorf("failed to start Kafka consumer: %w", err)
		}
		defer func() {
			if err := consumer.Stop(); err != nil {
				l.Error("Error stopping Kafka consumer", "error", err)
			}
		}()
	}

	server := api.NewServer(cfg, api.Dependencies{
		Orders:      orderService,
		DeadLetters: dlqRepo,
		Health:      db,
	}, l)

	serverErr := make(chan error, 1)
	go func() {
		l.Info("Server is starting", "port", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		l.Info("Shutting down server...", "signal", sig.String())
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		l.Error("Server forced to shutdown", "error", err)
		return err
	}

	l.Info("Server exiting")
	return nil
}

func newAssessor(cfg *config.Config, l logger.Logger) risk.Assessor {
	switch {
	case !cfg.Risk.Enabled:
		l.Info("Risk assessment disabled")
		return risk.NoopAssessor{}
	case cfg.Risk.ModelURL != "":
		l.Info("Risk assessment uses hosted model", "url", cfg.Risk.ModelURL)
		return risk.NewModelAssessor(cfg.Risk.ModelURL, cfg.Risk.APIKey, cfg.Risk.Timeout, l)
	default:
		return risk.NewRuleAssessor()
	}
}

func nonEmpty(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
