package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/beartask/beartask-backend/api/routes"
	checkoutsvc "github.com/beartask/beartask-backend/internal/checkout"
	collectionsvc "github.com/beartask/beartask-backend/internal/collections"
	lotterysvc "github.com/beartask/beartask-backend/internal/lottery"
	payoutsvc "github.com/beartask/beartask-backend/internal/payouts"
	"github.com/beartask/beartask-backend/internal/profiles"
	"github.com/beartask/beartask-backend/internal/purchases"
	"github.com/beartask/beartask-backend/internal/settlement"
	"github.com/beartask/beartask-backend/pkg/config"
	"github.com/beartask/beartask-backend/pkg/db"
	"github.com/beartask/beartask-backend/pkg/logger"
	"github.com/beartask/beartask-backend/pkg/metrics"
	"github.com/beartask/beartask-backend/pkg/migrate"
	"github.com/beartask/beartask-backend/pkg/outbox"
	"github.com/beartask/beartask-backend/pkg/redis"
	"github.com/beartask/beartask-backend/pkg/stripe"
)

const webhookDedupScope = "stripe-webhook"

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
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
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

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	gormDB := dbClient.DB()
	profileRepo := profiles.NewRepository(gormDB)
	collectionRepo := collectionsvc.NewRepository(gormDB)
	purchaseRepo := purchases.NewRepository(gormDB)
	payoutRepo := payoutsvc.NewRepository(gormDB)
	ticketRepo := lotterysvc.NewRepository(gormDB)
	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)
	settlementMetrics := metrics.NewSettlementMetrics(prometheus.DefaultRegisterer)

	collectionService, err := collectionsvc.NewService(collectionsvc.ServiceParams{
		Repo:        collectionRepo,
		ProfileRepo: profileRepo,
		Settlement:  cfg.Settlement,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create collection service", err)
		os.Exit(1)
	}

	checkoutService, err := checkoutsvc.NewService(checkoutsvc.ServiceParams{
		Gateway:        stripeClient,
		ProfileRepo:    profileRepo,
		CollectionRepo: collectionRepo,
		PurchaseRepo:   purchaseRepo,
		Settlement:     cfg.Settlement,
		Logger:         logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	lotteryService, err := lotterysvc.NewService(lotterysvc.ServiceParams{
		Tx:             dbClient,
		TicketRepo:     ticketRepo,
		CollectionRepo: collectionRepo,
		PurchaseRepo:   purchaseRepo,
		PayoutRepo:     payoutRepo,
		Outbox:         outboxService,
		Logger:         logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create lottery service", err)
		os.Exit(1)
	}

	payoutService, err := payoutsvc.NewService(payoutsvc.ServiceParams{
		Tx:          dbClient,
		Repo:        payoutRepo,
		ProfileRepo: profileRepo,
		Gateway:     stripeClient,
		Outbox:      outboxService,
		Settlement:  cfg.Settlement,
		Logger:      logg,
		Metrics:     settlementMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payout service", err)
		os.Exit(1)
	}

	settlementService, err := settlement.NewService(settlement.ServiceParams{
		Tx:             dbClient,
		PurchaseRepo:   purchaseRepo,
		CollectionRepo: collectionRepo,
		ProfileRepo:    profileRepo,
		Lottery:        lotteryService,
		Outbox:         outboxService,
		Logger:         logg,
		Metrics:        settlementMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	webhookGuard, err := settlement.NewIdempotencyGuard(redisClient, cfg.Stripe.EventDedupTTL, webhookDedupScope)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			collectionService,
			checkoutService,
			purchaseRepo,
			payoutService,
			lotteryService,
			settlementService,
			stripeClient,
			webhookGuard,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
