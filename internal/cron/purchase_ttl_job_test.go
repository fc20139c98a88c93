package cron

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/beartask/beartask-backend/internal/purchases"
	"github.com/beartask/beartask-backend/pkg/db/models"
	"github.com/beartask/beartask-backend/pkg/enums"
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

type fakePurchaseRepo struct {
	expired   []models.Purchase
	cancelled []uuid.UUID
	settled   map[uuid.UUID]bool
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
	if f.settled[id] {
		return false, nil
	}
	f.cancelled = append(f.cancelled, id)
	return true, nil
}

func (f *fakePurchaseRepo) MarkOversold(ctx context.Context, id uuid.UUID) error { return nil }

func (f *fakePurchaseRepo) ListByBuyer(ctx context.Context, buyerID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Purchase, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (f *fakePurchaseRepo) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]models.Purchase, error) {
	return f.expired, nil
}

func (f *fakePurchaseRepo) SumPaidSplits(ctx context.Context, collectionID uuid.UUID) (*purchases.SplitTotals, error) {
	return &purchases.SplitTotals{}, nil
}

func testJobLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func expiredPurchase() models.Purchase {
	return models.Purchase{
		ID:           uuid.New(),
		BuyerID:      uuid.New(),
		CollectionID: uuid.New(),
		Status:       enums.PurchaseStatusPending,
	}
}

func TestPurchaseTTLJobCancelsExpiredPurchases(t *testing.T) {
	first := expiredPurchase()
	second := expiredPurchase()
	repo := &fakePurchaseRepo{expired: []models.Purchase{first, second}}
	events := &fakeOutbox{}
	job, err := NewPurchaseTTLJob(fakeTx{}, repo, events, time.Hour, testJobLogger())
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(repo.cancelled) != 2 {
		t.Fatalf("cancelled = %d, want 2", len(repo.cancelled))
	}
	if len(events.events) != 2 {
		t.Fatalf("events = %d, want 2", len(events.events))
	}
	for _, event := range events.events {
		if event.EventType != enums.EventPurchaseCancelled {
			t.Fatalf("unexpected event type %s", event.EventType)
		}
	}
}

func TestPurchaseTTLJobSkipsConcurrentlySettledPurchase(t *testing.T) {
	pending := expiredPurchase()
	settled := expiredPurchase()
	repo := &fakePurchaseRepo{
		expired: []models.Purchase{pending, settled},
		settled: map[uuid.UUID]bool{settled.ID: true},
	}
	events := &fakeOutbox{}
	job, err := NewPurchaseTTLJob(fakeTx{}, repo, events, time.Hour, testJobLogger())
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(repo.cancelled) != 1 || repo.cancelled[0] != pending.ID {
		t.Fatalf("only the still-pending purchase should cancel, got %v", repo.cancelled)
	}
	if len(events.events) != 1 {
		t.Fatalf("a lost cancellation race must not emit, events = %d", len(events.events))
	}
}

func TestPurchaseTTLJobNoExpiredRows(t *testing.T) {
	repo := &fakePurchaseRepo{}
	events := &fakeOutbox{}
	job, err := NewPurchaseTTLJob(fakeTx{}, repo, events, time.Hour, testJobLogger())
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(events.events) != 0 {
		t.Fatalf("no events expected for empty batch")
	}
}
