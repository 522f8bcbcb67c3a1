package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/modacart/modacart-backend/api/controllers"
	webhookcontrollers "github.com/modacart/modacart-backend/api/controllers/webhooks"
	"github.com/modacart/modacart-backend/api/middleware"
	checkoutsvc "github.com/modacart/modacart-backend/internal/checkout"
	"github.com/modacart/modacart-backend/internal/orders"
	"github.com/modacart/modacart-backend/internal/payments"
	"github.com/modacart/modacart-backend/internal/returns"
	"github.com/modacart/modacart-backend/pkg/config"
	"github.com/modacart/modacart-backend/pkg/logger"
	"github.com/modacart/modacart-backend/pkg/redis"
	"github.com/modacart/modacart-backend/pkg/square"
)

// NewRouter assembles the HTTP surface: checkout, payments, returns and the
// admin review endpoints, plus the gateway webhook and callback legs.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	redisClient *redis.Client,
	squareClient *square.Client,
	checkoutService checkoutsvc.Service,
	ordersRepo orders.Repository,
	ordersService orders.Service,
	paymentsService payments.Service,
	returnsRepo returns.Repository,
	returnsService returns.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg))
	})

	// Gateway-facing endpoints carry their own authentication: the webhook
	// a signature, the callback a conversation id minted by us.
	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Post("/webhook", webhookcontrollers.SquarePaymentWebhook(paymentsService, squareClient, logg))
		r.Post("/callback", controllers.PaymentCallback(paymentsService, cfg.Checkout, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity())
		r.Use(middleware.RequireUser(logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Post("/checkout", controllers.Checkout(checkoutService, logg))
		r.Post("/payments", controllers.ProcessPayment(paymentsService, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(ordersRepo, logg))
			r.Get("/{orderId}", controllers.OrderDetail(ordersRepo, logg))
			r.Post("/{orderId}/cancel", controllers.CancelOrder(ordersService, logg))
			r.Post("/{orderId}/returns", controllers.CreateReturn(returnsService, logg))
		})
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.Identity())
		r.Use(middleware.RequireUser(logg))
		r.Use(middleware.RequireRole(logg, returns.RoleAdmin, returns.RoleSeller))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/returns", func(r chi.Router) {
			r.Get("/", controllers.AdminListReturns(returnsRepo, logg))
			r.Get("/{returnId}", controllers.AdminReturnDetail(returnsRepo, logg))
			r.Patch("/{returnId}", controllers.AdminReviewReturn(returnsService, logg))
		})
		r.With(middleware.RequireRole(logg, returns.RoleAdmin)).
			Patch("/orders/{orderId}/status", controllers.AdminUpdateOrderStatus(ordersService, logg))
	})

	return r
}
