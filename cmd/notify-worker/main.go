package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"example/portfolio-api/app/config"
	"example/portfolio-api/app/logging"
	"example/portfolio-api/app/notify"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.Logs)

	if cfg.QueueURL == "" {
		logger.Fatal().Msg("QUEUE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := notify.NewSQSClient(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create SQS client")
	}
	mailer := notify.NewMailer(cfg.Mail, logger)
	notify.NewWorker(client, cfg.QueueURL, mailer, cfg.Mail, logger).Run(ctx)
}
