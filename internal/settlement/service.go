package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/beartask/beartask-backend/internal/collections"
	"github.com/beartask/beartask-backend/internal/lottery"
	"github.com/beartask/beartask-backend/internal/profiles"
	"github.com/beartask/beartask-backend/internal/purchases"
	"github.com/beartask/beartask-backend/pkg/db/models"
	"github.com/beartask/beartask-backend/pkg/enums"
	pkgerrors "github.com/beartask/beartask-backend/pkg/errors"
	"github.com/beartask/beartask-backend/pkg/logger"
	"github.com/beartask/beartask-backend/pkg/metrics"
	"github.com/beartask/beartask-backend/pkg/outbox"
	"github.com/beartask/beartask-backend/pkg/outbox/payloads"
)

// Outcome labels for settlement metrics.
const (
	OutcomeSettled   = "settled"
	OutcomeDuplicate = "duplicate"
	OutcomeUnmatched = "unmatched"
	OutcomeRecovered = "recovered"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type lotteryService interface {
	EnsureTicket(ctx context.Context, tx *gorm.DB, collectionID, userID uuid.UUID, purchaseID *uuid.UUID) error
	Draw(ctx context.Context, collectionID uuid.UUID) (*lottery.DrawResult, error)
}

// ServiceParams wires the settlement service dependencies.
type ServiceParams struct {
	Tx             txRunner
	PurchaseRepo   purchases.Repository
	CollectionRepo collections.Repository
	ProfileRepo    profiles.Repository
	Lottery        lotteryService
	Outbox         outboxPublisher
	Logger         *logger.Logger
	Metrics        *metrics.SettlementMetrics
}

// Service turns verified gateway events into purchase settlements. A
// settlement run is a sequence of independent sub-steps: the pending->paid
// transition is the only gate, everything after it logs its own failures and
// never unwinds the steps before it.
type Service struct {
	tx             txRunner
	purchaseRepo   purchases.Repository
	collectionRepo collections.Repository
	profileRepo    profiles.Repository
	lotterySvc     lotteryService
	outbox         outboxPublisher
	logg           *logger.Logger
	metrics        *metrics.SettlementMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tx runner required")
	}
	if params.PurchaseRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "purchase repo required")
	}
	if params.CollectionRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "collection repo required")
	}
	if params.ProfileRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "profile repo required")
	}
	if params.Lottery == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "lottery service required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		tx:             params.Tx,
		purchaseRepo:   params.PurchaseRepo,
		collectionRepo: params.CollectionRepo,
		profileRepo:    params.ProfileRepo,
		lotterySvc:     params.Lottery,
		outbox:         params.Outbox,
		logg:           params.Logger,
		metrics:        params.Metrics,
	}, nil
}

// HandleEvent routes a verified webhook event. Unknown event types are
// acknowledged without action.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	s.metrics.IncEvent(string(event.Type))

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
		}
		return s.settle(ctx, &session)
	case stripe.EventTypeCheckoutSessionExpired:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
		}
		return s.cancel(ctx, &session)
	case stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
		}
		return s.cancelFailedPayment(ctx, &intent)
	default:
		return nil
	}
}

func (s *Service) settle(ctx context.Context, session *stripe.CheckoutSession) error {
	purchase, err := s.purchaseRepo.FindBySessionID(ctx, session.ID)
	if err != nil {
		s.metrics.IncOutcome(OutcomeError)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase by session")
	}
	if purchase == nil {
		// A paid session must never be dropped. The session metadata carries
		// enough to rebuild the pending row, so settlement self-heals here.
		purchase = s.recoverPurchase(ctx, session)
		if purchase == nil {
			s.metrics.IncOutcome(OutcomeUnmatched)
			logCtx := s.logg.WithField(ctx, "session_id", session.ID)
			s.logg.Warn(logCtx, "completed session matches no purchase")
			return nil
		}
	}

	logCtx := s.logg.WithPurchaseID(ctx, purchase.ID.String())
	logCtx = s.logg.WithCollectionID(logCtx, purchase.CollectionID.String())

	if purchase.Status == enums.PurchaseStatusPaid {
		s.metrics.IncOutcome(OutcomeDuplicate)
		s.logg.Info(logCtx, "purchase already settled, skipping")
		return nil
	}

	collection, err := s.collectionRepo.FindByID(ctx, purchase.CollectionID)
	if err != nil {
		s.metrics.IncOutcome(OutcomeError)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load collection")
	}
	if collection == nil {
		s.metrics.IncOutcome(OutcomeError)
		s.logg.Error(logCtx, "settlement references a missing collection", nil)
		return nil
	}

	splits := ComputeSplits(purchase.AmountCents, ShareConfig{
		CreatorPct:    collection.CreatorSharePct,
		AmbassadorPct: collection.AmbassadorSharePct,
		LotteryPct:    collection.LotterySharePct,
	})

	var paymentIntent *string
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		pi := session.PaymentIntent.ID
		paymentIntent = &pi
	}

	// Core transition: at most one settlement flips pending->paid and the
	// outbox event rides the same transaction.
	transitioned := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.purchaseRepo.WithTx(tx)
		ok, err := repo.MarkPaid(ctx, purchase.ID, purchases.PaidUpdate{
			StripePaymentIntent:   paymentIntent,
			CreatorAmountCents:    splits.CreatorCents,
			AmbassadorAmountCents: splits.AmbassadorCents,
			LotteryAmountCents:    splits.LotteryCents,
			PaidAt:                time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		transitioned = true
		itemID := purchase.ItemID
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPurchasePaid,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   purchase.ID,
			Data: payloads.PurchasePaidEvent{
				PurchaseID:            purchase.ID,
				CollectionID:          purchase.CollectionID,
				BuyerID:               purchase.BuyerID,
				ItemID:                &itemID,
				AmountCents:           purchase.AmountCents,
				CreatorAmountCents:    splits.CreatorCents,
				AmbassadorAmountCents: splits.AmbassadorCents,
				LotteryAmountCents:    splits.LotteryCents,
			},
			Version: 1,
		})
	})
	if err != nil {
		s.metrics.IncOutcome(OutcomeError)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize purchase")
	}
	if !transitioned {
		s.metrics.IncOutcome(OutcomeDuplicate)
		s.logg.Info(logCtx, "purchase settled concurrently, skipping")
		return nil
	}

	// Enrichment sub-steps. Each failure is logged and the run continues;
	// the reconcile job heals whatever is left behind.
	s.claimItem(logCtx, purchase, collection)
	s.issueTicket(logCtx, purchase)
	s.recomputePot(logCtx, purchase.CollectionID)

	s.metrics.IncOutcome(OutcomeSettled)
	s.logg.Info(logCtx, fmt.Sprintf("purchase settled: %d cents split %d/%d/%d",
		purchase.AmountCents, splits.CreatorCents, splits.AmbassadorCents, splits.LotteryCents))
	return nil
}

// recoverPurchase rebuilds the pending row for a paid session whose purchase
// record is missing, from the ids stamped on the session at checkout. Returns
// nil when the metadata is absent or unusable.
func (s *Service) recoverPurchase(ctx context.Context, session *stripe.CheckoutSession) *models.Purchase {
	logCtx := s.logg.WithField(ctx, "session_id", session.ID)

	purchaseID, okPurchase := metadataID(session.Metadata, "purchase_id")
	collectionID, okCollection := metadataID(session.Metadata, "collection_id")
	buyerID, okBuyer := metadataID(session.Metadata, "buyer_id")
	itemID, okItem := metadataID(session.Metadata, "item_id")
	if !okPurchase || !okCollection || !okBuyer || !okItem {
		s.logg.Warn(logCtx, "session metadata is missing purchase references")
		return nil
	}

	purchase := &models.Purchase{
		ID:              purchaseID,
		BuyerID:         buyerID,
		CollectionID:    collectionID,
		ItemID:          itemID,
		Status:          enums.PurchaseStatusPending,
		AmountCents:     session.AmountTotal,
		StripeSessionID: session.ID,
	}
	if err := s.purchaseRepo.Create(ctx, purchase); err != nil {
		s.logg.Error(logCtx, "recreating missing purchase failed", err)
		return nil
	}
	s.metrics.IncOutcome(OutcomeRecovered)
	s.logg.Warn(logCtx, "recreated missing purchase from session metadata")
	return purchase
}

func metadataID(metadata map[string]string, key string) (uuid.UUID, bool) {
	raw, ok := metadata[key]
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (s *Service) claimItem(ctx context.Context, purchase *models.Purchase, collection *models.Collection) {
	claimed, err := s.collectionRepo.MarkItemSold(ctx, purchase.ItemID, time.Now().UTC())
	if err != nil {
		s.logg.Error(ctx, "marking item sold failed", err)
		return
	}

	if !claimed {
		s.metrics.IncOversold()
		s.logg.Warn(ctx, "item already sold, purchase flagged oversold")
		if err := s.purchaseRepo.MarkOversold(ctx, purchase.ID); err != nil {
			s.logg.Error(ctx, "flagging oversold purchase failed", err)
		}
		emitErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventItemOversold,
				AggregateType: enums.AggregatePurchase,
				AggregateID:   purchase.ID,
				Data: payloads.ItemOversoldEvent{
					PurchaseID:   purchase.ID,
					CollectionID: purchase.CollectionID,
					ItemID:       purchase.ItemID,
				},
				Version: 1,
			})
		})
		if emitErr != nil {
			s.logg.Error(ctx, "emitting oversold event failed", emitErr)
		}
		return
	}

	remaining, err := s.collectionRepo.CountUnsoldItems(ctx, purchase.CollectionID)
	if err != nil {
		s.logg.Error(ctx, "counting unsold items failed", err)
		return
	}
	if remaining > 0 {
		return
	}

	changed, err := s.collectionRepo.UpdateStatusIf(ctx, purchase.CollectionID,
		enums.CollectionStatusActive, enums.CollectionStatusSoldOut)
	if err != nil {
		s.logg.Error(ctx, "marking collection sold out failed", err)
		return
	}
	if !changed {
		return
	}

	s.logg.Info(ctx, "collection sold out")
	emitErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCollectionSoldOut,
			AggregateType: enums.AggregateCollection,
			AggregateID:   purchase.CollectionID,
			Data: payloads.CollectionSoldOutEvent{
				CollectionID: purchase.CollectionID,
				TotalItems:   collection.TotalItems,
			},
			Version: 1,
		})
	})
	if emitErr != nil {
		s.logg.Error(ctx, "emitting sold out event failed", emitErr)
	}

	// Sell-out finalizes the collection. The drawn_at guard inside Draw keeps
	// this exactly-once even when the sold-out condition re-triggers; a failed
	// draw is retried through the admin endpoint.
	if _, err := s.lotterySvc.Draw(ctx, purchase.CollectionID); err != nil {
		s.logg.Error(ctx, "lottery draw at sell-out failed", err)
	}
}

// issueTicket enters the buyer into the drawing. Only verified students hold
// tickets; everyone else's lottery share still feeds the cagnotte.
func (s *Service) issueTicket(ctx context.Context, purchase *models.Purchase) {
	buyer, err := s.profileRepo.FindByID(ctx, purchase.BuyerID)
	if err != nil {
		s.logg.Error(ctx, "loading buyer profile failed", err)
		return
	}
	if buyer == nil || !buyer.IsVerifiedStudent {
		s.logg.Info(ctx, "buyer is not a verified student, no lottery ticket")
		return
	}

	purchaseID := purchase.ID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.lotterySvc.EnsureTicket(ctx, tx, purchase.CollectionID, purchase.BuyerID, &purchaseID)
	})
	if err != nil {
		s.logg.Error(ctx, "issuing lottery ticket failed", err)
	}
}

func (s *Service) recomputePot(ctx context.Context, collectionID uuid.UUID) {
	if _, err := s.collectionRepo.RecomputeCagnotte(ctx, collectionID); err != nil {
		s.logg.Error(ctx, "recomputing cagnotte failed", err)
	}
}

func (s *Service) cancel(ctx context.Context, session *stripe.CheckoutSession) error {
	purchase, err := s.purchaseRepo.FindBySessionID(ctx, session.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase by session")
	}
	if purchase == nil {
		return nil
	}
	return s.cancelPurchase(ctx, purchase, "checkout session expired")
}

// cancelFailedPayment correlates a failed payment intent back to its purchase
// through the metadata stamped at session creation. Intents without a
// purchase_id entry are acknowledged untouched.
func (s *Service) cancelFailedPayment(ctx context.Context, intent *stripe.PaymentIntent) error {
	logCtx := s.logg.WithField(ctx, "payment_intent", intent.ID)
	raw, ok := intent.Metadata["purchase_id"]
	if !ok {
		s.logg.Warn(logCtx, "failed payment carries no purchase reference")
		return nil
	}
	purchaseID, err := uuid.Parse(raw)
	if err != nil {
		s.logg.Warn(logCtx, "failed payment carries a malformed purchase reference")
		return nil
	}
	purchase, err := s.purchaseRepo.FindByID(ctx, purchaseID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase by id")
	}
	if purchase == nil {
		return nil
	}
	return s.cancelPurchase(ctx, purchase, "payment failed")
}

func (s *Service) cancelPurchase(ctx context.Context, purchase *models.Purchase, reason string) error {
	logCtx := s.logg.WithPurchaseID(ctx, purchase.ID.String())
	transitioned := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.purchaseRepo.WithTx(tx)
		ok, err := repo.MarkCancelledIfPending(ctx, purchase.ID, time.Now().UTC())
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		transitioned = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPurchaseCancelled,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   purchase.ID,
			Data: payloads.PurchaseCancelledEvent{
				PurchaseID:   purchase.ID,
				CollectionID: purchase.CollectionID,
				BuyerID:      purchase.BuyerID,
				Reason:       reason,
			},
			Version: 1,
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel purchase")
	}
	if transitioned {
		s.metrics.IncOutcome(OutcomeCancelled)
		s.logg.Info(logCtx, "pending purchase cancelled: "+reason)
	}
	return nil
}
