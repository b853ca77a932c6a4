package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/stuffr/marketplace/internal/config"
	"github.com/stuffr/marketplace/internal/logger"
	"github.com/stuffr/marketplace/internal/mailer"
	"github.com/stuffr/marketplace/internal/queue"
)

func main() {
	cfg := config.MustLoad()
	log := logger.Setup(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := mailer.NewClient(cfg.SMTP)
	if err != nil {
		log.Error("smtp client", slog.Any("err", err))
		os.Exit(1)
	}
	sender := mailer.NewSender(client, cfg.SMTP.From, log)
	consumer := queue.NewConsumer(cfg.Broker.URL, cfg.Broker.MailQueue, sender, log)

	log.Info("mail worker started", slog.String("queue", cfg.Broker.MailQueue))
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("mail worker stopped", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("mail worker stopped")
}
