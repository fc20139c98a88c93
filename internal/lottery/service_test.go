package lottery

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/beartask/beartask-backend/internal/collections"
	"github.com/beartask/beartask-backend/internal/payouts"
	"github.com/beartask/beartask-backend/internal/purchases"
	"github.com/beartask/beartask-backend/pkg/db/models"
	"github.com/beartask/beartask-backend/pkg/enums"
	pkgerrors "github.com/beartask/beartask-backend/pkg/errors"
	"github.com/beartask/beartask-backend/pkg/logger"
	"github.com/beartask/beartask-backend/pkg/outbox"
	"github.com/beartask/beartask-backend/pkg/pagination"
)

type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeOutbox struct {
	events []outbox.DomainEvent
}

func (f *fakeOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutbox) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fakeTicketRepo struct {
	tickets   []models.LotteryTicket
	insertErr error
	inserted  []models.LotteryTicket
}

func (f *fakeTicketRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeTicketRepo) InsertTicket(ctx context.Context, ticket *models.LotteryTicket) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, *ticket)
	return nil
}

func (f *fakeTicketRepo) CountByCollection(ctx context.Context, collectionID uuid.UUID) (int64, error) {
	return int64(len(f.tickets)), nil
}

func (f *fakeTicketRepo) TicketAt(ctx context.Context, collectionID uuid.UUID, offset int64) (*models.LotteryTicket, error) {
	if offset < 0 || offset >= int64(len(f.tickets)) {
		return nil, nil
	}
	ticket := f.tickets[offset]
	return &ticket, nil
}

type fakeCollectionRepo struct {
	collection *models.Collection
	winnerSet  bool
	claimable  bool
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
	if !f.claimable {
		return false, nil
	}
	f.winnerSet = true
	return true, nil
}

func (f *fakeCollectionRepo) NextAvailableItem(ctx context.Context, collectionID uuid.UUID) (*models.Item, error) {
	return nil, nil
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
	totals purchases.SplitTotals
}

func (f *fakePurchaseRepo) WithTx(tx *gorm.DB) purchases.Repository { return f }

func (f *fakePurchaseRepo) Create(ctx context.Context, purchase *models.Purchase) error { return nil }

func (f *fakePurchaseRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Purchase, error) {
	return nil, nil
}

func (f *fakePurchaseRepo) FindBySessionID(ctx context.Context, sessionID string) (*models.Purchase, error) {
	return nil, nil
}

func (f *fakePurchaseRepo) FindPendingByBuyerAndCollection(ctx context.Context, buyerID, collectionID uuid.UUID) (*models.Purchase, error) {
	return nil, nil
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
	totals := f.totals
	return &totals, nil
}

type fakePayoutRepo struct {
	created []models.Payout
}

func (f *fakePayoutRepo) WithTx(tx *gorm.DB) payouts.Repository { return f }

func (f *fakePayoutRepo) Create(ctx context.Context, payout *models.Payout) error {
	f.created = append(f.created, *payout)
	return nil
}

func (f *fakePayoutRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	return nil, nil
}

func (f *fakePayoutRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Payout, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (f *fakePayoutRepo) ListByStatus(ctx context.Context, status enums.PayoutStatus, limit int, cursor *pagination.Cursor) ([]models.Payout, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (f *fakePayoutRepo) MarkRequested(ctx context.Context, id uuid.UUID, requestedAt time.Time) (bool, error) {
	return false, nil
}

func (f *fakePayoutRepo) MarkApproved(ctx context.Context, id uuid.UUID, approvedAt time.Time) (bool, error) {
	return false, nil
}

func (f *fakePayoutRepo) MarkPaid(ctx context.Context, id uuid.UUID, transferID, transferGroup string, paidAt time.Time) (bool, error) {
	return false, nil
}

func (f *fakePayoutRepo) MarkFailed(ctx context.Context, id uuid.UUID, message string) (bool, error) {
	return false, nil
}

func newTestLotteryService(t *testing.T, tickets *fakeTicketRepo, collectionRepo *fakeCollectionRepo, purchaseRepo *fakePurchaseRepo, payoutRepo *fakePayoutRepo, events *fakeOutbox) Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	service, err := NewService(ServiceParams{
		Tx:             fakeTx{},
		TicketRepo:     tickets,
		CollectionRepo: collectionRepo,
		PurchaseRepo:   purchaseRepo,
		PayoutRepo:     payoutRepo,
		Outbox:         events,
		Logger:         logg,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func soldOutCollection() *models.Collection {
	return &models.Collection{
		ID:                 uuid.New(),
		CreatorID:          uuid.New(),
		Status:             enums.CollectionStatusSoldOut,
		TotalItems:         2,
		CreatorSharePct:    30,
		AmbassadorSharePct: 10,
		LotterySharePct:    60,
	}
}

func ticketFor(collectionID uuid.UUID) models.LotteryTicket {
	return models.LotteryTicket{
		ID:           uuid.New(),
		CollectionID: collectionID,
		UserID:       uuid.New(),
	}
}

func drawErrorCode(t *testing.T, err error) pkgerrors.Code {
	t.Helper()
	appErr := pkgerrors.As(err)
	if appErr == nil {
		t.Fatalf("expected application error, got %v", err)
	}
	return appErr.Code()
}

func TestDrawSelectsWinnerAndCreatesPayouts(t *testing.T) {
	collection := soldOutCollection()
	ambassadorID := uuid.New()
	collection.AmbassadorID = &ambassadorID
	tickets := &fakeTicketRepo{tickets: []models.LotteryTicket{ticketFor(collection.ID), ticketFor(collection.ID)}}
	collectionRepo := &fakeCollectionRepo{collection: collection, claimable: true}
	purchaseRepo := &fakePurchaseRepo{totals: purchases.SplitTotals{CreatorCents: 600, AmbassadorCents: 200, LotteryCents: 1200}}
	payoutRepo := &fakePayoutRepo{}
	events := &fakeOutbox{}
	service := newTestLotteryService(t, tickets, collectionRepo, purchaseRepo, payoutRepo, events)

	result, err := service.Draw(context.Background(), collection.ID)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	if result.PrizeCents != 1200 {
		t.Fatalf("prize = %d, want 1200", result.PrizeCents)
	}
	if result.TicketCount != 2 {
		t.Fatalf("ticket count = %d, want 2", result.TicketCount)
	}
	if !collectionRepo.winnerSet {
		t.Fatalf("winner not recorded on collection")
	}

	// Creator, winner and ambassador shares each open one pending payout.
	if len(payoutRepo.created) != 3 {
		t.Fatalf("payouts created = %d, want 3", len(payoutRepo.created))
	}
	byRole := map[enums.PayoutRole]models.Payout{}
	for _, payout := range payoutRepo.created {
		if payout.Status != enums.PayoutStatusPending {
			t.Fatalf("payout status = %s, want pending", payout.Status)
		}
		byRole[payout.Role] = payout
	}
	if byRole[enums.PayoutRoleCreator].AmountCents != 600 {
		t.Fatalf("creator payout = %d", byRole[enums.PayoutRoleCreator].AmountCents)
	}
	if byRole[enums.PayoutRoleWinner].AmountCents != 1200 {
		t.Fatalf("winner payout = %d", byRole[enums.PayoutRoleWinner].AmountCents)
	}
	if byRole[enums.PayoutRoleAmbassador].UserID != ambassadorID {
		t.Fatalf("ambassador payout owner mismatch")
	}

	if len(events.events) != 1 || events.events[0].EventType != enums.EventLotteryWinnerDrawn {
		t.Fatalf("expected one winner drawn event, got %v", events.events)
	}
}

func TestDrawSkipsZeroAmountShares(t *testing.T) {
	collection := soldOutCollection()
	tickets := &fakeTicketRepo{tickets: []models.LotteryTicket{ticketFor(collection.ID)}}
	collectionRepo := &fakeCollectionRepo{collection: collection, claimable: true}
	purchaseRepo := &fakePurchaseRepo{totals: purchases.SplitTotals{CreatorCents: 400, AmbassadorCents: 0, LotteryCents: 600}}
	payoutRepo := &fakePayoutRepo{}
	service := newTestLotteryService(t, tickets, collectionRepo, purchaseRepo, payoutRepo, &fakeOutbox{})

	if _, err := service.Draw(context.Background(), collection.ID); err != nil {
		t.Fatalf("draw: %v", err)
	}
	if len(payoutRepo.created) != 2 {
		t.Fatalf("payouts created = %d, want 2 (no ambassador share)", len(payoutRepo.created))
	}
}

func TestDrawRejectsAlreadyDrawnCollection(t *testing.T) {
	collection := soldOutCollection()
	drawnAt := time.Now().UTC()
	collection.DrawnAt = &drawnAt
	tickets := &fakeTicketRepo{tickets: []models.LotteryTicket{ticketFor(collection.ID)}}
	service := newTestLotteryService(t, tickets, &fakeCollectionRepo{collection: collection}, &fakePurchaseRepo{}, &fakePayoutRepo{}, &fakeOutbox{})

	_, err := service.Draw(context.Background(), collection.ID)
	if code := drawErrorCode(t, err); code != pkgerrors.CodeStateConflict {
		t.Fatalf("code = %s, want state conflict", code)
	}
}

func TestDrawRequiresSoldOutCollection(t *testing.T) {
	collection := soldOutCollection()
	collection.Status = enums.CollectionStatusActive
	tickets := &fakeTicketRepo{tickets: []models.LotteryTicket{ticketFor(collection.ID)}}
	service := newTestLotteryService(t, tickets, &fakeCollectionRepo{collection: collection}, &fakePurchaseRepo{}, &fakePayoutRepo{}, &fakeOutbox{})

	_, err := service.Draw(context.Background(), collection.ID)
	if code := drawErrorCode(t, err); code != pkgerrors.CodeStateConflict {
		t.Fatalf("code = %s, want state conflict", code)
	}
}

func TestDrawRequiresTickets(t *testing.T) {
	collection := soldOutCollection()
	service := newTestLotteryService(t, &fakeTicketRepo{}, &fakeCollectionRepo{collection: collection}, &fakePurchaseRepo{}, &fakePayoutRepo{}, &fakeOutbox{})

	_, err := service.Draw(context.Background(), collection.ID)
	if code := drawErrorCode(t, err); code != pkgerrors.CodeStateConflict {
		t.Fatalf("code = %s, want state conflict", code)
	}
}

func TestDrawLosesRaceToConcurrentDraw(t *testing.T) {
	collection := soldOutCollection()
	tickets := &fakeTicketRepo{tickets: []models.LotteryTicket{ticketFor(collection.ID)}}
	collectionRepo := &fakeCollectionRepo{collection: collection, claimable: false}
	payoutRepo := &fakePayoutRepo{}
	service := newTestLotteryService(t, tickets, collectionRepo, &fakePurchaseRepo{}, payoutRepo, &fakeOutbox{})

	_, err := service.Draw(context.Background(), collection.ID)
	if code := drawErrorCode(t, err); code != pkgerrors.CodeStateConflict {
		t.Fatalf("code = %s, want state conflict", code)
	}
	if len(payoutRepo.created) != 0 {
		t.Fatalf("losing draw must not create payouts")
	}
}

func TestEnsureTicketSwallowsDuplicate(t *testing.T) {
	tickets := &fakeTicketRepo{
		insertErr: errors.New(`duplicate key value violates unique constraint "ux_lottery_tickets_collection_user"`),
	}
	service := newTestLotteryService(t, tickets, &fakeCollectionRepo{collection: soldOutCollection()}, &fakePurchaseRepo{}, &fakePayoutRepo{}, &fakeOutbox{})

	if err := service.EnsureTicket(context.Background(), nil, uuid.New(), uuid.New(), nil); err != nil {
		t.Fatalf("duplicate ticket should be swallowed: %v", err)
	}
}
