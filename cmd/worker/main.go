package main

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-permata/internal/config"
	"github.com/noah-isme/backend-permata/internal/obs"
	"github.com/noah-isme/backend-permata/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisOpts.Addr,
			Password: redisOpts.Password,
			DB:       redisOpts.DB,
		},
		asynq.Config{
			Concurrency: 5,
			Queues:      map[string]int{"default": 1},
		},
	)

	handler := queue.NotificationHandler{
		Sender: receiptLogger{},
		Logger: logger,
	}

	logger.Info().Msg("worker starting")
	if err := srv.Run(queue.Mux(handler)); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped with error")
	}
}

// receiptLogger acknowledges receipts when no outbound channel is configured.
// An external print or SMS relay can replace it without touching the queue
// plumbing.
type receiptLogger struct{}

func (receiptLogger) Send(context.Context, string, json.RawMessage) error {
	return nil
}
