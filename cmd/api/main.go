package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-core/api/controllers"
	"github.com/angelmondragon/storefront-core/api/routes"
	"github.com/angelmondragon/storefront-core/internal/cart"
	"github.com/angelmondragon/storefront-core/internal/catalog"
	"github.com/angelmondragon/storefront-core/internal/checkout"
	"github.com/angelmondragon/storefront-core/internal/orders"
	"github.com/angelmondragon/storefront-core/internal/quote"
	"github.com/angelmondragon/storefront-core/internal/webhooks"
	"github.com/angelmondragon/storefront-core/pkg/config"
	"github.com/angelmondragon/storefront-core/pkg/db"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/metrics"
	"github.com/angelmondragon/storefront-core/pkg/migrate"
	"github.com/angelmondragon/storefront-core/pkg/outbox"
	"github.com/angelmondragon/storefront-core/pkg/payments"
	"github.com/angelmondragon/storefront-core/pkg/ratelimit"
	"github.com/angelmondragon/storefront-core/pkg/redis"
	"github.com/angelmondragon/storefront-core/pkg/shipping"
	"github.com/angelmondragon/storefront-core/pkg/square"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	squareClient, err := square.NewClient(ctx, cfg.Square, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap square client", err)
		os.Exit(1)
	}

	rates, err := shipping.NewClient(cfg.Shipping.BaseURL, cfg.Shipping.APIKey, shipping.WithTimeout(cfg.Shipping.Timeout))
	if err != nil {
		logg.Error(ctx, "failed to bootstrap shipping client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps, err := buildDeps(cfg, logg, dbClient, redisClient, squareClient, rates, registry)
	if err != nil {
		logg.Error(ctx, "failed to wire services", err)
		os.Exit(1)
	}

	port := cfg.App.Port
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":    cfg.App.Env,
		"port":   port,
		"square": squareClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "api server shutdown failed", err)
		os.Exit(1)
	}
	logg.Info(shutdownCtx, "api server shut down gracefully")
}

func buildDeps(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	squareClient *square.Client,
	rates *shipping.Client,
	registry *prometheus.Registry,
) (routes.Deps, error) {
	conn := dbClient.DB()
	cartRepo := cart.NewRepository(conn)
	catalogRepo := catalog.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)
	events := outbox.NewService(outbox.NewRepository(conn), logg)

	carts, err := cart.NewService(cart.ServiceParams{
		Repo:    cartRepo,
		Catalog: catalogRepo,
		Tx:      dbClient,
		TTL:     cfg.Cart.TTL,
		Now:     time.Now,
		Logger:  logg,
	})
	if err != nil {
		return routes.Deps{}, err
	}

	signer, err := quote.NewSigner(cfg.Quote.Secret, cfg.Quote.TTL, time.Now)
	if err != nil {
		return routes.Deps{}, err
	}
	quotes, err := quote.NewService(quote.ServiceParams{
		Carts:            carts,
		Rates:            rates,
		Signer:           signer,
		OriginPostalCode: cfg.Shipping.OriginPostalCode,
		Logger:           logg,
	})
	if err != nil {
		return routes.Deps{}, err
	}

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Carts:    carts,
		Quotes:   signer,
		Orders:   orderRepo,
		Provider: squareClient,
		Logger:   logg,
	})
	if err != nil {
		return routes.Deps{}, err
	}

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:    orderRepo,
		Catalog: catalogRepo,
		Carts:   cartRepo,
		Outbox:  events,
		Tx:      dbClient,
		Now:     time.Now,
		Logger:  logg,
	})
	if err != nil {
		return routes.Deps{}, err
	}

	reconciler, err := webhooks.NewService(webhooks.ServiceParams{
		Ledger:       webhooks.NewLedger(conn),
		Orders:       orderRepo,
		Catalog:      catalogRepo,
		Carts:        cartRepo,
		Outbox:       events,
		Tx:           dbClient,
		Providers:    []payments.Provider{squareClient},
		EpsilonCents: cfg.Payments.AmountEpsilonCents,
		Metrics:      metrics.NewWebhookMetrics(registry),
		Now:          time.Now,
		Logger:       logg,
	})
	if err != nil {
		return routes.Deps{}, err
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimit.UseInMemory {
		limiter = ratelimit.NewMemoryLimiter(time.Now)
	} else {
		redisLimiter, err := ratelimit.NewRedisLimiter(redisClient)
		if err != nil {
			return routes.Deps{}, err
		}
		limiter = redisLimiter
	}

	return routes.Deps{
		Config: cfg,
		Logger: logg,
		Pingers: map[string]controllers.Pinger{
			"db":    dbClient,
			"redis": redisClient,
		},
		Limiter:     limiter,
		Idempotency: redisClient,
		Carts:       carts,
		Quotes:      quotes,
		Checkout:    checkoutSvc,
		Orders:      orderSvc,
		Webhooks:    reconciler,
		Square:      squareClient,
		Metrics:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, nil
}
