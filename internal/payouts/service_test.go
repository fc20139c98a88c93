package payouts

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/beartask/beartask-backend/internal/profiles"
	"github.com/beartask/beartask-backend/pkg/config"
	"github.com/beartask/beartask-backend/pkg/db/models"
	"github.com/beartask/beartask-backend/pkg/enums"
	pkgerrors "github.com/beartask/beartask-backend/pkg/errors"
	"github.com/beartask/beartask-backend/pkg/logger"
	"github.com/beartask/beartask-backend/pkg/outbox"
	"github.com/beartask/beartask-backend/pkg/pagination"
	"github.com/beartask/beartask-backend/pkg/stripe"
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

type fakePayoutRepo struct {
	payout *models.Payout
}

func (f *fakePayoutRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakePayoutRepo) Create(ctx context.Context, payout *models.Payout) error { return nil }

func (f *fakePayoutRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	if f.payout == nil || f.payout.ID != id {
		return nil, nil
	}
	copied := *f.payout
	return &copied, nil
}

func (f *fakePayoutRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Payout, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (f *fakePayoutRepo) ListByStatus(ctx context.Context, status enums.PayoutStatus, limit int, cursor *pagination.Cursor) ([]models.Payout, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (f *fakePayoutRepo) MarkRequested(ctx context.Context, id uuid.UUID, requestedAt time.Time) (bool, error) {
	if f.payout.Status != enums.PayoutStatusPending {
		return false, nil
	}
	f.payout.Status = enums.PayoutStatusRequested
	f.payout.RequestedAt = &requestedAt
	return true, nil
}

func (f *fakePayoutRepo) MarkApproved(ctx context.Context, id uuid.UUID, approvedAt time.Time) (bool, error) {
	if f.payout.Status != enums.PayoutStatusRequested {
		return false, nil
	}
	f.payout.Status = enums.PayoutStatusApproved
	f.payout.ApprovedAt = &approvedAt
	return true, nil
}

func (f *fakePayoutRepo) MarkPaid(ctx context.Context, id uuid.UUID, transferID, transferGroup string, paidAt time.Time) (bool, error) {
	if f.payout.Status != enums.PayoutStatusApproved && f.payout.Status != enums.PayoutStatusFailed {
		return false, nil
	}
	f.payout.Status = enums.PayoutStatusPaid
	f.payout.StripeTransferID = &transferID
	f.payout.StripeTransferGroup = &transferGroup
	f.payout.LastError = nil
	f.payout.PaidAt = &paidAt
	return true, nil
}

func (f *fakePayoutRepo) MarkFailed(ctx context.Context, id uuid.UUID, message string) (bool, error) {
	if f.payout.Status != enums.PayoutStatusApproved && f.payout.Status != enums.PayoutStatusFailed {
		return false, nil
	}
	f.payout.Status = enums.PayoutStatusFailed
	f.payout.LastError = &message
	return true, nil
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

type fakeGateway struct {
	ready        bool
	readyErr     error
	transferID   string
	transferErr  error
	transferArgs []stripe.TransferParams
}

func (f *fakeGateway) AccountPayoutReady(ctx context.Context, accountID string) (bool, error) {
	return f.ready, f.readyErr
}

func (f *fakeGateway) CreateTransfer(ctx context.Context, params stripe.TransferParams) (string, error) {
	f.transferArgs = append(f.transferArgs, params)
	if f.transferErr != nil {
		return "", f.transferErr
	}
	return f.transferID, nil
}

func newTestPayoutService(t *testing.T, repo *fakePayoutRepo, profileRepo *fakeProfileRepo, gateway *fakeGateway, events *fakeOutbox) Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	service, err := NewService(ServiceParams{
		Tx:          fakeTx{},
		Repo:        repo,
		ProfileRepo: profileRepo,
		Gateway:     gateway,
		Outbox:      events,
		Settlement:  config.SettlementConfig{PayoutTransferCurrency: "eur"},
		Logger:      logg,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func connectedProfile(userID uuid.UUID) *models.Profile {
	account := "acct_test123"
	return &models.Profile{
		ID:              userID,
		StripeAccountID: &account,
	}
}

func payoutInStatus(status enums.PayoutStatus) *models.Payout {
	return &models.Payout{
		ID:           uuid.New(),
		CollectionID: uuid.New(),
		UserID:       uuid.New(),
		Role:         enums.PayoutRoleCreator,
		Status:       status,
		AmountCents:  4200,
	}
}

func errorCode(t *testing.T, err error) pkgerrors.Code {
	t.Helper()
	appErr := pkgerrors.As(err)
	if appErr == nil {
		t.Fatalf("expected application error, got %v", err)
	}
	return appErr.Code()
}

func TestRequestTransitionsPendingPayout(t *testing.T) {
	payout := payoutInStatus(enums.PayoutStatusPending)
	repo := &fakePayoutRepo{payout: payout}
	events := &fakeOutbox{}
	service := newTestPayoutService(t, repo, &fakeProfileRepo{profile: connectedProfile(payout.UserID)}, &fakeGateway{}, events)

	updated, err := service.Request(context.Background(), payout.ID, payout.UserID)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if updated.Status != enums.PayoutStatusRequested {
		t.Fatalf("status = %s, want requested", updated.Status)
	}
	if updated.RequestedAt == nil {
		t.Fatalf("requested_at not set")
	}
	if len(events.events) != 1 || events.events[0].EventType != enums.EventPayoutStatusChanged {
		t.Fatalf("expected one status change event, got %v", events.events)
	}
}

func TestRequestRejectsNonOwner(t *testing.T) {
	payout := payoutInStatus(enums.PayoutStatusPending)
	repo := &fakePayoutRepo{payout: payout}
	service := newTestPayoutService(t, repo, &fakeProfileRepo{profile: connectedProfile(payout.UserID)}, &fakeGateway{}, &fakeOutbox{})

	_, err := service.Request(context.Background(), payout.ID, uuid.New())
	if code := errorCode(t, err); code != pkgerrors.CodeForbidden {
		t.Fatalf("code = %s, want forbidden", code)
	}
	if payout.Status != enums.PayoutStatusPending {
		t.Fatalf("payout must stay pending")
	}
}

func TestRequestRequiresConnectedAccount(t *testing.T) {
	payout := payoutInStatus(enums.PayoutStatusPending)
	repo := &fakePayoutRepo{payout: payout}
	service := newTestPayoutService(t, repo, &fakeProfileRepo{profile: &models.Profile{ID: payout.UserID}}, &fakeGateway{}, &fakeOutbox{})

	_, err := service.Request(context.Background(), payout.ID, payout.UserID)
	if code := errorCode(t, err); code != pkgerrors.CodeStateConflict {
		t.Fatalf("code = %s, want state conflict", code)
	}
}

func TestRequestRejectsNonPendingPayout(t *testing.T) {
	payout := payoutInStatus(enums.PayoutStatusApproved)
	repo := &fakePayoutRepo{payout: payout}
	service := newTestPayoutService(t, repo, &fakeProfileRepo{profile: connectedProfile(payout.UserID)}, &fakeGateway{}, &fakeOutbox{})

	_, err := service.Request(context.Background(), payout.ID, payout.UserID)
	if code := errorCode(t, err); code != pkgerrors.CodeStateConflict {
		t.Fatalf("code = %s, want state conflict", code)
	}
}

func TestApproveTransitionsRequestedPayout(t *testing.T) {
	payout := payoutInStatus(enums.PayoutStatusRequested)
	repo := &fakePayoutRepo{payout: payout}
	events := &fakeOutbox{}
	service := newTestPayoutService(t, repo, &fakeProfileRepo{}, &fakeGateway{}, events)

	updated, err := service.Approve(context.Background(), payout.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if updated.Status != enums.PayoutStatusApproved {
		t.Fatalf("status = %s, want approved", updated.Status)
	}
	if updated.ApprovedAt == nil {
		t.Fatalf("approved_at not set")
	}
}

func TestExecuteTransfersApprovedPayout(t *testing.T) {
	payout := payoutInStatus(enums.PayoutStatusApproved)
	repo := &fakePayoutRepo{payout: payout}
	gateway := &fakeGateway{ready: true, transferID: "tr_123"}
	events := &fakeOutbox{}
	service := newTestPayoutService(t, repo, &fakeProfileRepo{profile: connectedProfile(payout.UserID)}, gateway, events)

	updated, err := service.Execute(context.Background(), payout.ID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if updated.Status != enums.PayoutStatusPaid {
		t.Fatalf("status = %s, want paid", updated.Status)
	}
	if updated.StripeTransferID == nil || *updated.StripeTransferID != "tr_123" {
		t.Fatalf("transfer id not recorded")
	}

	if len(gateway.transferArgs) != 1 {
		t.Fatalf("expected exactly one transfer, got %d", len(gateway.transferArgs))
	}
	params := gateway.transferArgs[0]
	if params.IdempotencyKey != "payout_"+payout.ID.String() {
		t.Fatalf("idempotency key = %q", params.IdempotencyKey)
	}
	if params.TransferGroup != "collection_"+payout.CollectionID.String() {
		t.Fatalf("transfer group = %q", params.TransferGroup)
	}
	if params.AmountCents != payout.AmountCents || params.Currency != "eur" {
		t.Fatalf("transfer amount/currency = %d/%s", params.AmountCents, params.Currency)
	}
}

func TestExecuteSkipsAlreadyPaidPayout(t *testing.T) {
	payout := payoutInStatus(enums.PayoutStatusPaid)
	transferID := "tr_done"
	payout.StripeTransferID = &transferID
	repo := &fakePayoutRepo{payout: payout}
	gateway := &fakeGateway{ready: true}
	service := newTestPayoutService(t, repo, &fakeProfileRepo{profile: connectedProfile(payout.UserID)}, gateway, &fakeOutbox{})

	updated, err := service.Execute(context.Background(), payout.ID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if updated.Status != enums.PayoutStatusPaid {
		t.Fatalf("status = %s, want paid", updated.Status)
	}
	if len(gateway.transferArgs) != 0 {
		t.Fatalf("no transfer expected for executed payout")
	}
}

func TestExecuteRejectsUnapprovedPayout(t *testing.T) {
	payout := payoutInStatus(enums.PayoutStatusPending)
	repo := &fakePayoutRepo{payout: payout}
	gateway := &fakeGateway{ready: true}
	service := newTestPayoutService(t, repo, &fakeProfileRepo{profile: connectedProfile(payout.UserID)}, gateway, &fakeOutbox{})

	_, err := service.Execute(context.Background(), payout.ID)
	if code := errorCode(t, err); code != pkgerrors.CodeStateConflict {
		t.Fatalf("code = %s, want state conflict", code)
	}
	if len(gateway.transferArgs) != 0 {
		t.Fatalf("no transfer expected before approval")
	}
}

func TestExecuteRecordsTransferFailureAndAllowsRetry(t *testing.T) {
	payout := payoutInStatus(enums.PayoutStatusApproved)
	repo := &fakePayoutRepo{payout: payout}
	gateway := &fakeGateway{ready: true, transferErr: errors.New("insufficient funds")}
	service := newTestPayoutService(t, repo, &fakeProfileRepo{profile: connectedProfile(payout.UserID)}, gateway, &fakeOutbox{})

	_, err := service.Execute(context.Background(), payout.ID)
	if code := errorCode(t, err); code != pkgerrors.CodeStateConflict {
		t.Fatalf("code = %s, want state conflict", code)
	}
	if payout.Status != enums.PayoutStatusFailed {
		t.Fatalf("status = %s, want failed", payout.Status)
	}
	if payout.LastError == nil {
		t.Fatalf("last_error not recorded")
	}

	// Retrying a failed payout issues the transfer again.
	gateway.transferErr = nil
	gateway.transferID = "tr_retry"
	updated, err := service.Execute(context.Background(), payout.ID)
	if err != nil {
		t.Fatalf("retry execute: %v", err)
	}
	if updated.Status != enums.PayoutStatusPaid {
		t.Fatalf("status = %s, want paid after retry", updated.Status)
	}
	if updated.LastError != nil {
		t.Fatalf("last_error should clear on success")
	}
}

func TestExecuteFailsWhenAccountPayoutsDisabled(t *testing.T) {
	payout := payoutInStatus(enums.PayoutStatusApproved)
	repo := &fakePayoutRepo{payout: payout}
	gateway := &fakeGateway{ready: false}
	service := newTestPayoutService(t, repo, &fakeProfileRepo{profile: connectedProfile(payout.UserID)}, gateway, &fakeOutbox{})

	_, err := service.Execute(context.Background(), payout.ID)
	if code := errorCode(t, err); code != pkgerrors.CodeStateConflict {
		t.Fatalf("code = %s, want state conflict", code)
	}
	if payout.Status != enums.PayoutStatusFailed {
		t.Fatalf("status = %s, want failed", payout.Status)
	}
	if len(gateway.transferArgs) != 0 {
		t.Fatalf("no transfer expected for disabled account")
	}
}
