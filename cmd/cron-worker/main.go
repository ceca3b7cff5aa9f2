package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-core/internal/cart"
	"github.com/angelmondragon/storefront-core/internal/catalog"
	"github.com/angelmondragon/storefront-core/internal/cron"
	"github.com/angelmondragon/storefront-core/internal/notifications"
	"github.com/angelmondragon/storefront-core/pkg/config"
	"github.com/angelmondragon/storefront-core/pkg/db"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/metrics"
	"github.com/angelmondragon/storefront-core/pkg/migrate"
	"github.com/angelmondragon/storefront-core/pkg/outbox"
	"github.com/angelmondragon/storefront-core/pkg/outbox/idempotency"
	"github.com/angelmondragon/storefront-core/pkg/redis"
)

// deliveredTTL bounds how long a delivered (consumer, event) pair is remembered.
const deliveredTTL = 7 * 24 * time.Hour

func main() {
	only := flag.String("jobs", "", "comma separated subset of jobs to run (default: all)")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry, err := buildRegistry(cfg, logg, dbClient, redisClient)
	if err == nil {
		registry, err = registry.Only(*only)
	}
	if err != nil {
		logg.Error(ctx, "failed to build cron jobs", err)
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron"), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(ctx, "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(promRegistry),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"jobs": registry.Names(),
	})

	if cfg.Cron.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              cfg.Cron.MetricsAddr,
			Handler:           promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logg.Error(ctx, "metrics server stopped", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*cron.Registry, error) {
	conn := dbClient.DB()
	carts, err := cart.NewService(cart.ServiceParams{
		Repo:    cart.NewRepository(conn),
		Catalog: catalog.NewRepository(conn),
		Tx:      dbClient,
		TTL:     cfg.Cart.TTL,
		Now:     time.Now,
		Logger:  logg,
	})
	if err != nil {
		return nil, err
	}

	expiry, err := cron.NewCartExpiryJob(cron.CartExpiryJobParams{
		Logger: logg,
		Carts:  carts,
		Limit:  cfg.Cron.CartSweepLimit,
		Now:    time.Now,
	})
	if err != nil {
		return nil, err
	}

	notifiers, err := buildNotifiers(cfg.Notify)
	if err != nil {
		return nil, err
	}
	guard, err := idempotency.NewGuard(redisClient, deliveredTTL)
	if err != nil {
		return nil, err
	}
	queue := outbox.NewRepository(conn)
	dispatch, err := cron.NewOutboxDispatchJob(cron.OutboxDispatchJobParams{
		Logger:      logg,
		Queue:       queue,
		Dispatcher:  notifications.NewDispatcher(notifiers, guard, logg),
		BatchSize:   cfg.Outbox.BatchSize,
		MaxAttempts: cfg.Outbox.MaxAttempts,
		Now:         time.Now,
	})
	if err != nil {
		return nil, err
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: queue,
		Retention:  cfg.Outbox.RetentionDays,
		Now:        time.Now,
	})
	if err != nil {
		return nil, err
	}

	return cron.NewRegistry(expiry, dispatch, retention), nil
}

func buildNotifiers(cfg config.NotifyConfig) ([]notifications.Notifier, error) {
	var notifiers []notifications.Notifier
	if cfg.TelegramEnabled() {
		tg, err := notifications.NewTelegram(cfg.TelegramBaseURL, cfg.TelegramBotToken, cfg.TelegramChatID, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, tg)
	}
	if cfg.SendgridEnabled() {
		sg, err := notifications.NewSendgrid(cfg.SendgridAPIKey, cfg.SendgridFrom, cfg.OperatorEmails)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, sg)
	}
	return notifiers, nil
}
