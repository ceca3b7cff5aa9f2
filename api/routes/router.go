package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-core/api/controllers"
	webhookcontrollers "github.com/angelmondragon/storefront-core/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-core/api/middleware"
	"github.com/angelmondragon/storefront-core/pkg/config"
	"github.com/angelmondragon/storefront-core/pkg/enums"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/ratelimit"
	"github.com/angelmondragon/storefront-core/pkg/redis"
)

// Deps carries everything the HTTP surface calls into. Limiter and
// Idempotency may be nil to disable those checks.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	Pingers     map[string]controllers.Pinger
	Limiter     ratelimit.Limiter
	Idempotency redis.IdempotencyStore
	Carts       controllers.CartService
	Quotes      controllers.QuoteService
	Checkout    controllers.CheckoutService
	Orders      controllers.OrdersService
	Webhooks    webhookcontrollers.Reconciler
	Square      webhookSigner
	Metrics     http.Handler
}

type webhookSigner interface {
	SigningSecret() string
	NotificationURL() string
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	limiter := deps.Limiter
	if !cfg.RateLimit.Enabled {
		limiter = nil
	}
	policy := func(name string, limit int) func(http.Handler) http.Handler {
		return middleware.RateLimit(limiter, ratelimit.Config{Name: name, Limit: limit, Window: cfg.RateLimit.Window}, logg)
	}
	idempotent := middleware.Idempotency(deps.Idempotency, cfg.Redis.IdempotencyTTL, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.Pingers, logg))
	})

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/square", webhookcontrollers.SquareWebhook(deps.Webhooks, deps.Square, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identify(cfg.JWT, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Use(policy("cart", cfg.RateLimit.CartLimit))
			r.Get("/", controllers.CartGet(deps.Carts, logg))
			r.Delete("/", controllers.CartClear(deps.Carts, logg))
			r.Post("/items", controllers.CartAddItem(deps.Carts, logg))
			r.Patch("/items", controllers.CartUpdateItem(deps.Carts, logg))
			r.Delete("/items", controllers.CartRemoveItem(deps.Carts, logg))
			r.With(middleware.RequireUser(logg)).Post("/migrate", controllers.CartMigrate(deps.Carts, logg))
		})

		r.With(policy("quote", cfg.RateLimit.QuoteLimit)).
			Post("/shipping/quote", controllers.ShippingQuote(deps.Quotes, logg))

		r.With(policy("checkout", cfg.RateLimit.OrderLimit), idempotent).
			Post("/checkout/create-payment", controllers.CheckoutCreatePayment(deps.Checkout, cfg.Square.RedirectURL, logg))

		r.Route("/orders", func(r chi.Router) {
			r.With(policy("orders", cfg.RateLimit.OrderLimit), idempotent).
				Post("/", controllers.OrdersCreate(deps.Orders, logg))
			r.Get("/{orderId}", controllers.OrdersGet(deps.Orders, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
			r.With(idempotent).Post("/orders/{orderId}/mark-paid", controllers.AdminOrdersMarkPaid(deps.Orders, logg))
		})
	})

	return r
}
