package checkout

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/beartask/beartask-backend/internal/collections"
	"github.com/beartask/beartask-backend/internal/profiles"
	"github.com/beartask/beartask-backend/internal/purchases"
	"github.com/beartask/beartask-backend/pkg/config"
	"github.com/beartask/beartask-backend/pkg/db/models"
	"github.com/beartask/beartask-backend/pkg/enums"
	pkgerrors "github.com/beartask/beartask-backend/pkg/errors"
	"github.com/beartask/beartask-backend/pkg/logger"
	"github.com/beartask/beartask-backend/pkg/pagination"
	"github.com/beartask/beartask-backend/pkg/stripe"
)

type fakeGateway struct {
	session *stripe.CheckoutSession
	params  []stripe.CheckoutSessionParams
}

func (f *fakeGateway) CreateCheckoutSession(ctx context.Context, params stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.params = append(f.params, params)
	return f.session, nil
}

type fakeProfileRepo struct {
	profile *models.Profile
}

func (f *fakeProfileRepo) WithTx(tx *gorm.DB) profiles.Repository { return f }

func (f *fakeProfileRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	return f.profile, nil
}

func (f *fakeProfileRepo) FindByEmail(ctx context.Context, email string) (*models.Profile, error) {
	return nil, nil
}

func (f *fakeProfileRepo) UpdateStripeAccount(ctx context.Context, id uuid.UUID, accountID string) error {
	return nil
}

type fakeCollectionRepo struct {
	collection *models.Collection
	nextItem   *models.Item
}

func (f *fakeCollectionRepo) WithTx(tx *gorm.DB) collections.Repository { return f }

func (f *fakeCollectionRepo) Create(ctx context.Context, collection *models.Collection, items []models.Item) error {
	return nil
}

func (f *fakeCollectionRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Collection, error) {
	return f.collection, nil
}

func (f *fakeCollectionRepo) List(ctx context.Context, params collections.ListQuery) ([]models.Collection, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (f *fakeCollectionRepo) UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to enums.CollectionStatus) (bool, error) {
	return false, nil
}

func (f *fakeCollectionRepo) RecomputeCagnotte(ctx context.Context, id uuid.UUID) (int64, error) {
	return 0, nil
}

func (f *fakeCollectionRepo) SetWinnerIfUndrawn(ctx context.Context, id, winnerUserID, ticketID uuid.UUID, drawnAt time.Time) (bool, error) {
	return false, nil
}

func (f *fakeCollectionRepo) NextAvailableItem(ctx context.Context, collectionID uuid.UUID) (*models.Item, error) {
	return f.nextItem, nil
}

func (f *fakeCollectionRepo) MarkItemSold(ctx context.Context, itemID uuid.UUID, soldAt time.Time) (bool, error) {
	return false, nil
}

func (f *fakeCollectionRepo) CountUnsoldItems(ctx context.Context, collectionID uuid.UUID) (int64, error) {
	return 0, nil
}

func (f *fakeCollectionRepo) ListForReconciliation(ctx context.Context, limit int) ([]models.Collection, error) {
	return nil, nil
}

type fakePurchaseRepo struct {
	pending *models.Purchase
	created []models.Purchase
}

func (f *fakePurchaseRepo) WithTx(tx *gorm.DB) purchases.Repository { return f }

func (f *fakePurchaseRepo) Create(ctx context.Context, purchase *models.Purchase) error {
	f.created = append(f.created, *purchase)
	return nil
}

func (f *fakePurchaseRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Purchase, error) {
	return nil, nil
}

func (f *fakePurchaseRepo) FindBySessionID(ctx context.Context, sessionID string) (*models.Purchase, error) {
	return nil, nil
}

func (f *fakePurchaseRepo) FindPendingByBuyerAndCollection(ctx context.Context, buyerID, collectionID uuid.UUID) (*models.Purchase, error) {
	return f.pending, nil
}

func (f *fakePurchaseRepo) MarkPaid(ctx context.Context, id uuid.UUID, update purchases.PaidUpdate) (bool, error) {
	return false, nil
}

func (f *fakePurchaseRepo) MarkCancelledIfPending(ctx context.Context, id uuid.UUID, cancelledAt time.Time) (bool, error) {
	return false, nil
}

func (f *fakePurchaseRepo) MarkOversold(ctx context.Context, id uuid.UUID) error { return nil }

func (f *fakePurchaseRepo) ListByBuyer(ctx context.Context, buyerID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Purchase, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (f *fakePurchaseRepo) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]models.Purchase, error) {
	return nil, nil
}

func (f *fakePurchaseRepo) SumPaidSplits(ctx context.Context, collectionID uuid.UUID) (*purchases.SplitTotals, error) {
	return &purchases.SplitTotals{}, nil
}

type checkoutFixture struct {
	gateway        *fakeGateway
	profileRepo    *fakeProfileRepo
	collectionRepo *fakeCollectionRepo
	purchaseRepo   *fakePurchaseRepo
	service        Service
	buyerID        uuid.UUID
	collectionID   uuid.UUID
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	buyerID := uuid.New()
	collection := &models.Collection{
		ID:     uuid.New(),
		Title:  "Spring drop",
		Status: enums.CollectionStatusActive,
	}
	fixture := &checkoutFixture{
		gateway: &fakeGateway{
			session: &stripe.CheckoutSession{ID: "cs_test_abc", URL: "https://checkout.example/cs_test_abc"},
		},
		profileRepo:    &fakeProfileRepo{profile: &models.Profile{ID: buyerID, Role: enums.MemberRoleStudent}},
		collectionRepo: &fakeCollectionRepo{collection: collection, nextItem: &models.Item{ID: uuid.New()}},
		purchaseRepo:   &fakePurchaseRepo{},
		buyerID:        buyerID,
		collectionID:   collection.ID,
	}

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	service, err := NewService(ServiceParams{
		Gateway:        fixture.gateway,
		ProfileRepo:    fixture.profileRepo,
		CollectionRepo: fixture.collectionRepo,
		PurchaseRepo:   fixture.purchaseRepo,
		Settlement:     config.SettlementConfig{SupportTiersCents: []int64{500, 1000, 2500}, PayoutTransferCurrency: "usd"},
		Logger:         logg,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	fixture.service = service
	return fixture
}

func supportErrorCode(t *testing.T, err error) pkgerrors.Code {
	t.Helper()
	appErr := pkgerrors.As(err)
	if appErr == nil {
		t.Fatalf("expected application error, got %v", err)
	}
	return appErr.Code()
}

func TestStartSupportOpensSessionAndRecordsPendingPurchase(t *testing.T) {
	fixture := newCheckoutFixture(t)

	result, err := fixture.service.StartSupport(context.Background(), SupportInput{
		BuyerID:      fixture.buyerID,
		CollectionID: fixture.collectionID,
		AmountCents:  1000,
	})
	if err != nil {
		t.Fatalf("start support: %v", err)
	}
	if result.SessionID != "cs_test_abc" {
		t.Fatalf("session id = %q", result.SessionID)
	}
	if result.CheckoutURL != "https://checkout.example/cs_test_abc" {
		t.Fatalf("checkout url = %q", result.CheckoutURL)
	}

	if len(fixture.purchaseRepo.created) != 1 {
		t.Fatalf("expected one pending purchase, got %d", len(fixture.purchaseRepo.created))
	}
	purchase := fixture.purchaseRepo.created[0]
	if purchase.Status != enums.PurchaseStatusPending {
		t.Fatalf("purchase status = %s, want pending", purchase.Status)
	}
	if purchase.AmountCents != 1000 {
		t.Fatalf("purchase amount = %d", purchase.AmountCents)
	}
	if purchase.StripeSessionID != "cs_test_abc" {
		t.Fatalf("session not recorded on purchase")
	}
	if purchase.ID != result.PurchaseID {
		t.Fatalf("result purchase id mismatch")
	}

	if len(fixture.gateway.params) != 1 {
		t.Fatalf("expected one gateway call")
	}
	params := fixture.gateway.params[0]
	if params.Metadata["purchase_id"] != purchase.ID.String() {
		t.Fatalf("session metadata missing purchase id")
	}
	if params.Metadata["item_id"] != purchase.ItemID.String() {
		t.Fatalf("session metadata missing item id")
	}
}

func TestStartSupportRejectsUnknownTier(t *testing.T) {
	fixture := newCheckoutFixture(t)

	_, err := fixture.service.StartSupport(context.Background(), SupportInput{
		BuyerID:      fixture.buyerID,
		CollectionID: fixture.collectionID,
		AmountCents:  1337,
	})
	if code := supportErrorCode(t, err); code != pkgerrors.CodeValidation {
		t.Fatalf("code = %s, want validation", code)
	}
	if len(fixture.gateway.params) != 0 {
		t.Fatalf("gateway must not be called for invalid tier")
	}
}

func TestStartSupportRejectsAmbassador(t *testing.T) {
	fixture := newCheckoutFixture(t)
	fixture.profileRepo.profile.Role = enums.MemberRoleAmbassador

	_, err := fixture.service.StartSupport(context.Background(), SupportInput{
		BuyerID:      fixture.buyerID,
		CollectionID: fixture.collectionID,
		AmountCents:  500,
	})
	if code := supportErrorCode(t, err); code != pkgerrors.CodeForbidden {
		t.Fatalf("code = %s, want forbidden", code)
	}
}

func TestStartSupportRequiresActiveCollection(t *testing.T) {
	fixture := newCheckoutFixture(t)
	fixture.collectionRepo.collection.Status = enums.CollectionStatusDraft

	_, err := fixture.service.StartSupport(context.Background(), SupportInput{
		BuyerID:      fixture.buyerID,
		CollectionID: fixture.collectionID,
		AmountCents:  500,
	})
	if code := supportErrorCode(t, err); code != pkgerrors.CodeStateConflict {
		t.Fatalf("code = %s, want state conflict", code)
	}
}

func TestStartSupportRejectsDuplicatePending(t *testing.T) {
	fixture := newCheckoutFixture(t)
	existing := &models.Purchase{ID: uuid.New(), Status: enums.PurchaseStatusPending}
	fixture.purchaseRepo.pending = existing

	_, err := fixture.service.StartSupport(context.Background(), SupportInput{
		BuyerID:      fixture.buyerID,
		CollectionID: fixture.collectionID,
		AmountCents:  500,
	})
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	details, ok := appErr.Details().(map[string]any)
	if !ok || details["purchase_id"] != existing.ID.String() {
		t.Fatalf("conflict details missing existing purchase id: %v", appErr.Details())
	}
}

func TestStartSupportRequiresAvailableItem(t *testing.T) {
	fixture := newCheckoutFixture(t)
	fixture.collectionRepo.nextItem = nil

	_, err := fixture.service.StartSupport(context.Background(), SupportInput{
		BuyerID:      fixture.buyerID,
		CollectionID: fixture.collectionID,
		AmountCents:  500,
	})
	if code := supportErrorCode(t, err); code != pkgerrors.CodeStateConflict {
		t.Fatalf("code = %s, want state conflict", code)
	}
	if len(fixture.gateway.params) != 0 {
		t.Fatalf("gateway must not be called when no items remain")
	}
}
