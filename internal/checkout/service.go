package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/beartask/beartask-backend/internal/collections"
	"github.com/beartask/beartask-backend/internal/profiles"
	"github.com/beartask/beartask-backend/internal/purchases"
	"github.com/beartask/beartask-backend/pkg/config"
	"github.com/beartask/beartask-backend/pkg/db/models"
	"github.com/beartask/beartask-backend/pkg/enums"
	pkgerrors "github.com/beartask/beartask-backend/pkg/errors"
	"github.com/beartask/beartask-backend/pkg/logger"
	"github.com/beartask/beartask-backend/pkg/stripe"
)

type checkoutGateway interface {
	CreateCheckoutSession(ctx context.Context, params stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// Service opens support checkout sessions against active drops.
type Service interface {
	StartSupport(ctx context.Context, input SupportInput) (*SupportResult, error)
}

// SupportInput captures one support attempt.
type SupportInput struct {
	BuyerID      uuid.UUID
	CollectionID uuid.UUID
	AmountCents  int64
}

// SupportResult returns the hosted session the client redirects to.
type SupportResult struct {
	PurchaseID  uuid.UUID `json:"purchase_id"`
	SessionID   string    `json:"session_id"`
	CheckoutURL string    `json:"checkout_url"`
}

// ServiceParams wires the checkout service dependencies.
type ServiceParams struct {
	Gateway        checkoutGateway
	ProfileRepo    profiles.Repository
	CollectionRepo collections.Repository
	PurchaseRepo   purchases.Repository
	Settlement     config.SettlementConfig
	Logger         *logger.Logger
}

type service struct {
	gateway        checkoutGateway
	profileRepo    profiles.Repository
	collectionRepo collections.Repository
	purchaseRepo   purchases.Repository
	settlement     config.SettlementConfig
	logg           *logger.Logger
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.ProfileRepo == nil {
		return nil, fmt.Errorf("profile repository required")
	}
	if params.CollectionRepo == nil {
		return nil, fmt.Errorf("collection repository required")
	}
	if params.PurchaseRepo == nil {
		return nil, fmt.Errorf("purchase repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		gateway:        params.Gateway,
		profileRepo:    params.ProfileRepo,
		collectionRepo: params.CollectionRepo,
		purchaseRepo:   params.PurchaseRepo,
		settlement:     params.Settlement,
		logg:           params.Logger,
	}, nil
}

func (s *service) StartSupport(ctx context.Context, input SupportInput) (*SupportResult, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if input.CollectionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "collection id required")
	}
	if !s.settlement.AllowsTier(input.AmountCents) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("amount %d is not an allowed support tier", input.AmountCents))
	}

	buyer, err := s.profileRepo.FindByID(ctx, input.BuyerID)
	if err != nil {
		return nil, err
	}
	if buyer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "buyer profile not found")
	}
	if buyer.Role == enums.MemberRoleAmbassador {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "ambassadors cannot support drops they promote")
	}

	collection, err := s.collectionRepo.FindByID(ctx, input.CollectionID)
	if err != nil {
		return nil, err
	}
	if collection == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "collection not found")
	}
	if collection.Status != enums.CollectionStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "collection is not open for support")
	}

	existing, err := s.purchaseRepo.FindPendingByBuyerAndCollection(ctx, input.BuyerID, input.CollectionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "a pending purchase already exists for this collection").
			WithDetails(map[string]any{"purchase_id": existing.ID.String()})
	}

	item, err := s.collectionRepo.NextAvailableItem(ctx, input.CollectionID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "collection has no items left")
	}

	purchaseID := uuid.New()
	session, err := s.gateway.CreateCheckoutSession(ctx, stripe.CheckoutSessionParams{
		AmountCents: input.AmountCents,
		Currency:    s.settlement.PayoutTransferCurrency,
		ProductName: fmt.Sprintf("Support: %s", collection.Title),
		CustomerRef: input.BuyerID.String(),
		Metadata: map[string]string{
			"purchase_id":   purchaseID.String(),
			"collection_id": input.CollectionID.String(),
			"buyer_id":      input.BuyerID.String(),
			"item_id":       item.ID.String(),
		},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "opening checkout session")
	}

	purchase := &models.Purchase{
		ID:              purchaseID,
		BuyerID:         input.BuyerID,
		CollectionID:    input.CollectionID,
		ItemID:          item.ID,
		Status:          enums.PurchaseStatusPending,
		AmountCents:     input.AmountCents,
		StripeSessionID: session.ID,
	}
	if err := s.purchaseRepo.Create(ctx, purchase); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording pending purchase")
	}

	logCtx := s.logg.WithPurchaseID(ctx, purchaseID.String())
	logCtx = s.logg.WithCollectionID(logCtx, input.CollectionID.String())
	s.logg.Info(logCtx, fmt.Sprintf("support checkout opened for %d cents", input.AmountCents))

	return &SupportResult{
		PurchaseID:  purchaseID,
		SessionID:   session.ID,
		CheckoutURL: session.URL,
	}, nil
}
