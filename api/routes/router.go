package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-orders/api/controllers"
	webhookcontrollers "github.com/angelmondragon/storefront-orders/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-orders/api/middleware"
	"github.com/angelmondragon/storefront-orders/internal/gateway"
	"github.com/angelmondragon/storefront-orders/pkg/config"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
	"github.com/angelmondragon/storefront-orders/pkg/redis"
)

// Engine is everything the HTTP surface needs from the reconciliation engine.
type Engine interface {
	controllers.OrderService
	controllers.PaymentService
	controllers.AdminOrderService
	webhookcontrollers.GatewayEventHandler
}

type adminResolver interface {
	IsAdmin(ctx context.Context, email string) (bool, error)
	controllers.PermissionReloader
}

type squareNormalizer interface {
	Normalize(ctx context.Context, body []byte) (gateway.Event, bool, error)
}

type deliveryGuard interface {
	CheckAndMark(ctx context.Context, deliveryID string) (bool, error)
	Delete(ctx context.Context, deliveryID string) error
}

type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	Engine      Engine
	Orders      controllers.OrderLister
	Audit       controllers.AuditReader
	Bulk        controllers.PickupEnabler
	Permissions adminResolver
	Normalizer  squareNormalizer
	Guard       deliveryGuard
	Idempotency redis.IdempotencyStore
	// Readiness maps dependency names to health probes.
	Readiness map[string]controllers.Pinger
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Readiness))
	})

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/square", webhookcontrollers.SquareWebhook(p.Engine, p.Normalizer, p.Guard, cfg.Square, logg))
	})

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.With(middleware.Idempotency(p.Idempotency, logg)).Post("/", controllers.CreateOrder(p.Engine, logg))
		r.Get("/{ref}", controllers.GetOrder(p.Engine, logg))
		r.Patch("/{ref}/contact", controllers.UpdateContact(p.Engine, logg))
		r.Post("/{ref}/payments/slip", controllers.SubmitSlip(p.Engine, cfg.Verifier.MaxUploadBytes, logg))
	})
	r.Get("/api/v1/customers/orders", controllers.CustomerOrders(p.Engine, logg))

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.JWT, p.Permissions, logg))
		r.Use(middleware.Idempotency(p.Idempotency, logg))

		r.Get("/orders", controllers.AdminListOrders(p.Orders, logg))
		r.Get("/orders/{ref}", controllers.AdminGetOrder(p.Engine, p.Audit, logg))
		r.Post("/orders/{ref}/transitions", controllers.AdminTransition(p.Engine, logg))
		r.Patch("/orders/{ref}/cart", controllers.AdminEditCart(p.Engine, logg))
		r.Patch("/orders/{ref}/contact", controllers.AdminUpdateContact(p.Engine, logg))
		r.Post("/pickups", controllers.AdminEnablePickup(p.Bulk, logg))
		r.Post("/expiry/run", controllers.AdminRunExpiry(p.Engine, logg))
		r.Post("/permissions/reload", controllers.AdminReloadPermissions(p.Permissions, logg))
		r.Post("/customers/index/rebuild", controllers.AdminRebuildCustomerIndex(p.Engine, logg))
	})

	return r
}
