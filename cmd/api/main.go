package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"memory-filter/internal/config"
	"memory-filter/internal/domain"
	apihttp "memory-filter/internal/http"
	"memory-filter/internal/memoryapi"
	"memory-filter/internal/service"
	"memory-filter/internal/trace"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

// run arma el servicio y bloquea hasta que el servidor termina. Los defers
// (shutdown de tracing) corren antes de volver.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	shutdownTracing, err := trace.Init(ctx, cfg.Tracing(), logger)
	if err != nil {
		logger.Warn("tracing init failed", zap.Error(err))
	}
	defer func() {
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctxShutdown); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	var (
		valvesStore = service.NewMemoryValvesStore(cfg.Valves())
		publisher   *service.RedisStatusPublisher
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			valvesStore = service.NewRedisValvesStore(redisClient, cfg.Valves())
			publisher = service.NewRedisStatusPublisher(redisClient)
		}
		cancel()
	}

	if missing := cfg.Valves().MissingSetting(); missing != "" {
		logger.Warn("memory filter not configured", zap.String("missing", missing))
	}

	filter := service.NewMemoryFilter(logger, valvesStore, func(v domain.Valves) memoryapi.Client {
		return memoryapi.NewHTTPClient(v.APIBaseURL, v.APIKey,
			memoryapi.WithTimeouts(cfg.MemoryFetchTimeout, cfg.MemoryPostTimeout),
			memoryapi.WithLogger(logger),
		)
	})

	jwtSvc := service.NewJWTService(cfg.JWTSecret, 15*time.Minute, cfg.JWTIssuer)
	if !jwtSvc.Enabled() {
		logger.Info("jwt secret not configured, identity comes from request body only")
	}

	filterHandler := apihttp.NewFilterHandler(logger, filter, valvesStore, publisher)
	router := apihttp.NewRouter(logger, filterHandler, jwtSvc)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
