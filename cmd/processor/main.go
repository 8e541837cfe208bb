package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/nimasrn/train-reservation/internal/config"
	gateway "github.com/nimasrn/train-reservation/internal/gateways"
	"github.com/nimasrn/train-reservation/internal/processor"
	"github.com/nimasrn/train-reservation/pkg/logger"
	"github.com/nimasrn/train-reservation/pkg/prom"
	"github.com/nimasrn/train-reservation/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := config.Load(config.EnvPathFromArgs(os.Args))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()
	logger.Info("starting processor", "version", version, "commit", commit, "date", date, "env", cfg.AppEnv)

	redisAdap, err := redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{cfg.RedisAddr},
		ClientName: cfg.AppName + "-processor",
		DB:         cfg.RedisDatabase,
		Username:   cfg.RedisUsername,
		Password:   cfg.RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	gwConfig := gateway.DefaultConfig(cfg.TicketingEndpoints())
	gwConfig.Timeout = cfg.TicketingTimeout
	client, err := gateway.NewClient(gwConfig)
	if err != nil {
		logger.Error("failed to create ticketing client", "error", err)
		return
	}
	defer client.Close()

	idempotencyService := processor.NewIdempotencyService(redisAdap, processor.DefaultIdempotencyConfig())
	service, err := processor.NewProcessorService(
		redisAdap,
		processor.NewBookingConfirmationProcessor(client, idempotencyService),
		processor.ServiceConfig{
			Queue:            cfg.Queue(),
			Consumers:        cfg.QueueConsumers,
			WorkerCount:      cfg.WorkerCount,
			WorkerBufferSize: cfg.WorkerBufferSize,
		},
	)
	if err != nil {
		logger.Error("failed to create the processor", "error", err)
		return
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err := prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace); err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}
	go prom.ListenAndServer(cfg.AppDebugMetricsAddr, cfg.AppDebugMetricsURI)

	if err := service.Start(); err != nil {
		logger.Error("failed to start processor", "error", err)
		service.Stop()
		return
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	service.Stop()
}
