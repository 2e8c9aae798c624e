// tallyo-watch tails the transaction change feed. It is the consuming half
// of the change-notification protocol: point it at the broker to verify
// publishing, or pipe its output into external cache invalidation.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"tallyo/internal/config"
	"tallyo/internal/events"
	"tallyo/internal/log"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Component: log.ComponentEvents,
	})
	log.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	if !cfg.EventsEnabled() {
		logger.Error("AMQP_URL is required to watch the change feed")
		os.Exit(1)
	}

	client, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to connect to broker", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Watching change feed", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)

	err = client.ConsumeChanges(ctx, func(msg *events.ChangeMessage) error {
		logger.Info("Transaction list changed",
			"kind", msg.Kind,
			log.FieldUserID, msg.UserID,
			log.FieldTransactionID, msg.TransactionID,
			log.FieldRowCount, msg.Count,
			"timestamp", msg.Timestamp)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Change feed consumption failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Change feed watcher stopped")
}
