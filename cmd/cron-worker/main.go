package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/voicecommerce-backend/internal/cron"
	"github.com/angelmondragon/voicecommerce-backend/internal/sessions"
	"github.com/angelmondragon/voicecommerce-backend/pkg/config"
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
	"github.com/angelmondragon/voicecommerce-backend/pkg/logger"
	"github.com/angelmondragon/voicecommerce-backend/pkg/metrics"
	"github.com/angelmondragon/voicecommerce-backend/pkg/redis"
)

const lockKeyFormat = "cron-worker:%s"

// The standalone worker sweeps redis-backed conversation sessions. Payment
// sessions are owned by the api process and swept there.
func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if cfg.Session.Store != config.SessionStoreRedis {
		logg.Error(context.Background(), "cron worker needs the redis session store",
			fmt.Errorf("%s is %q", config.EnvSessionStore, cfg.Session.Store))
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	currency, err := enums.ParseCurrency(cfg.App.Currency)
	if err != nil {
		logg.Error(context.Background(), "invalid currency", err)
		os.Exit(1)
	}
	store, err := sessions.NewRedisStore(redisClient, nil)
	if err != nil {
		logg.Error(context.Background(), "failed to create session store", err)
		os.Exit(1)
	}
	sessSvc, err := sessions.NewService(sessions.ServiceParams{
		Store:    store,
		TTL:      cfg.Session.TTL,
		Currency: currency,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create session service", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	sessionJob, err := cron.NewSessionExpiryJob(cron.SessionExpiryJobParams{
		Logger:   logg,
		Sessions: sessSvc,
		Metrics:  metricsCollector,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create session expiry job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockKey(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(sessionJob),
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
