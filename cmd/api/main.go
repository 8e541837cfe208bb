package main

import (
	"os"

	"github.com/nimasrn/train-reservation/internal/config"
	"github.com/nimasrn/train-reservation/internal/handlers"
	"github.com/nimasrn/train-reservation/internal/queue"
	"github.com/nimasrn/train-reservation/internal/repository"
	"github.com/nimasrn/train-reservation/internal/services"
	xhttp "github.com/nimasrn/train-reservation/pkg/http"
	"github.com/nimasrn/train-reservation/pkg/logger"
	"github.com/nimasrn/train-reservation/pkg/pg"
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
	logger.Info("starting api", "version", version, "commit", commit, "date", date, "env", cfg.AppEnv)

	s := xhttp.NewServer(xhttp.DefaultServerOption)
	if cfg.HttpServerReadBufferSize > 0 {
		s.Server.ReadBufferSize = cfg.HttpServerReadBufferSize
	}
	if cfg.HttpServerWriteBufferSize > 0 {
		s.Server.WriteBufferSize = cfg.HttpServerWriteBufferSize
	}
	s.Server.Logger = logger.GetLogger()
	s.Use(xhttp.RequestIDMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.TimeoutMiddleware(cfg.HttpRequestTimeout))
	s.Use(xhttp.CompressMiddleware(6))

	db, err := pg.CreateReadWrite(cfg.PostgresRead(), cfg.PostgresWrite(), cfg.AppDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{cfg.RedisAddr},
		ClientName: cfg.AppName,
		DB:         cfg.RedisDatabase,
		Username:   cfg.RedisUsername,
		Password:   cfg.RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	// the api only publishes; consuming is left to the processor
	bookingStream, err := queue.NewQueue(redisAdap, cfg.Queue())
	if err != nil {
		logger.Error("failed creating booking stream", "error", err)
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

	trainRepo := repository.NewTrainRepository(db)
	bookingRepo := repository.NewBookingRepository(db)

	retry := services.RetryPolicy{
		MaxRetries: cfg.ReservationMaxRetries,
		BaseDelay:  cfg.ReservationRetryBaseDelay,
	}
	trainService := services.NewTrainService(trainRepo, bookingRepo, retry)
	reservationService := services.NewReservationService(trainRepo, bookingRepo, bookingStream, retry)
	healthService := services.NewHealthService(db)

	g := s.Router.Group(cfg.HttpBaseRequestUrl)
	handlers.RegisterTrainRoutes(g, handlers.NewTrainHandler(trainService, cfg.AdminAPIKey))
	handlers.RegisterBookingRoutes(g, handlers.NewBookingHandler(reservationService))
	handlers.RegisterHealthRoutes(g, handlers.NewHealthHandler(healthService))

	if cfg.AdminAPIKey == "" {
		logger.Warn("ADMIN_API_KEY is empty, admin routes reject every request")
	}

	s.CloseOnSignal()
	if err := s.ListenAndServe(cfg.HttpListenAddr); err != nil {
		logger.Error("error in running http-server", "error", err)
	}

	if err := bookingStream.Stop(xhttp.DefaultServerOption.RequestTimeout); err != nil {
		logger.Warn("booking stream did not stop cleanly", "error", err)
	}
	logger.Info("api stopped")
}
