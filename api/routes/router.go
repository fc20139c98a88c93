package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/beartask/beartask-backend/api/controllers"
	webhookcontrollers "github.com/beartask/beartask-backend/api/controllers/webhooks"
	"github.com/beartask/beartask-backend/api/middleware"
	checkoutsvc "github.com/beartask/beartask-backend/internal/checkout"
	collectionsvc "github.com/beartask/beartask-backend/internal/collections"
	lotterysvc "github.com/beartask/beartask-backend/internal/lottery"
	payoutsvc "github.com/beartask/beartask-backend/internal/payouts"
	"github.com/beartask/beartask-backend/internal/purchases"
	"github.com/beartask/beartask-backend/internal/settlement"
	"github.com/beartask/beartask-backend/pkg/config"
	"github.com/beartask/beartask-backend/pkg/db"
	"github.com/beartask/beartask-backend/pkg/enums"
	"github.com/beartask/beartask-backend/pkg/logger"
	"github.com/beartask/beartask-backend/pkg/redis"
	"github.com/beartask/beartask-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	collectionService collectionsvc.Service,
	checkoutService checkoutsvc.Service,
	purchaseRepo purchases.Repository,
	payoutService payoutsvc.Service,
	lotteryService lotterysvc.Service,
	settlementService *settlement.Service,
	stripeClient *stripe.Client,
	webhookGuard *settlement.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(settlementService, stripeClient, webhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/collections", func(r chi.Router) {
			r.Get("/", controllers.ListCollections(collectionService, logg))
			r.Post("/", controllers.CreateCollection(collectionService, logg))
			r.Get("/{collectionId}", controllers.GetCollection(collectionService, logg))
			r.Post("/{collectionId}/activate", controllers.ActivateCollection(collectionService, logg))
			r.Post("/{collectionId}/support", controllers.SupportCollection(checkoutService, logg))
		})

		r.Route("/purchases", func(r chi.Router) {
			r.Get("/", controllers.ListMyPurchases(purchaseRepo, logg))
			r.Get("/{purchaseId}", controllers.GetPurchase(purchaseRepo, logg))
		})

		r.Route("/payouts", func(r chi.Router) {
			r.Get("/", controllers.ListMyPayouts(payoutService, logg))
			r.Get("/{payoutId}", controllers.GetPayout(payoutService, logg))
			r.Post("/{payoutId}/request", controllers.RequestPayout(payoutService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.MemberRoleAdmin.String(), logg))

		r.Route("/payouts", func(r chi.Router) {
			r.Get("/", controllers.ListPayoutsByStatus(payoutService, logg))
			r.Post("/{payoutId}/approve", controllers.ApprovePayout(payoutService, logg))
			r.Post("/{payoutId}/execute", controllers.ExecutePayout(payoutService, logg))
		})
		r.Post("/collections/{collectionId}/draw", controllers.DrawLottery(lotteryService, logg))
	})

	return r
}
