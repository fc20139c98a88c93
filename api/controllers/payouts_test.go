package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/beartask/beartask-backend/api/middleware"
	"github.com/beartask/beartask-backend/pkg/db/models"
	"github.com/beartask/beartask-backend/pkg/enums"
	"github.com/beartask/beartask-backend/pkg/pagination"
)

type stubPayoutService struct {
	payout       *models.Payout
	err          error
	requested    []uuid.UUID
	listStatuses []enums.PayoutStatus
}

func (s *stubPayoutService) Request(ctx context.Context, payoutID, actorID uuid.UUID) (*models.Payout, error) {
	s.requested = append(s.requested, payoutID)
	return s.payout, s.err
}

func (s *stubPayoutService) Approve(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	return s.payout, s.err
}

func (s *stubPayoutService) Execute(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	return s.payout, s.err
}

func (s *stubPayoutService) GetByID(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	return s.payout, s.err
}

func (s *stubPayoutService) ListForUser(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Payout, *pagination.Cursor, error) {
	return nil, nil, s.err
}

func (s *stubPayoutService) ListByStatus(ctx context.Context, status enums.PayoutStatus, limit int, cursor *pagination.Cursor) ([]models.Payout, *pagination.Cursor, error) {
	s.listStatuses = append(s.listStatuses, status)
	return nil, nil, s.err
}

func payoutRequestFor(t *testing.T, method, target string, payoutID uuid.UUID, actorID uuid.UUID, role string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("payoutId", payoutID.String())
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	if actorID != uuid.Nil {
		ctx = middleware.WithUserID(ctx, actorID.String())
	}
	if role != "" {
		ctx = middleware.WithRole(ctx, role)
	}
	return req.WithContext(ctx)
}

func TestGetPayoutOwnerCanRead(t *testing.T) {
	ownerID := uuid.New()
	payout := &models.Payout{
		ID:          uuid.New(),
		UserID:      ownerID,
		Status:      enums.PayoutStatusPending,
		AmountCents: 1500,
	}
	service := &stubPayoutService{payout: payout}
	handler := GetPayout(service, testControllerLogger())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, payoutRequestFor(t, http.MethodGet,
		"/api/v1/payouts/"+payout.ID.String(), payout.ID, ownerID, enums.MemberRoleStudent.String()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestGetPayoutHidesOtherUsersPayouts(t *testing.T) {
	payout := &models.Payout{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		Status:      enums.PayoutStatusPending,
		AmountCents: 1500,
	}
	service := &stubPayoutService{payout: payout}
	handler := GetPayout(service, testControllerLogger())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, payoutRequestFor(t, http.MethodGet,
		"/api/v1/payouts/"+payout.ID.String(), payout.ID, uuid.New(), enums.MemberRoleStudent.String()))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", rec.Code)
	}
}

func TestGetPayoutAdminCanReadAny(t *testing.T) {
	payout := &models.Payout{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		Status:      enums.PayoutStatusApproved,
		AmountCents: 1500,
	}
	service := &stubPayoutService{payout: payout}
	handler := GetPayout(service, testControllerLogger())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, payoutRequestFor(t, http.MethodGet,
		"/api/v1/payouts/"+payout.ID.String(), payout.ID, uuid.New(), enums.MemberRoleAdmin.String()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestRequestPayoutRejectsInvalidID(t *testing.T) {
	service := &stubPayoutService{}
	handler := RequestPayout(service, testControllerLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payouts/nope/request", nil)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("payoutId", "nope")
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	ctx = middleware.WithUserID(ctx, uuid.NewString())
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(service.requested) != 0 {
		t.Fatalf("service must not run for malformed id")
	}
}

func TestListPayoutsByStatusRequiresStatusParam(t *testing.T) {
	service := &stubPayoutService{}
	handler := ListPayoutsByStatus(service, testControllerLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/payouts", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without status, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/admin/v1/payouts?status=requested", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid status, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(service.listStatuses) != 1 || service.listStatuses[0] != enums.PayoutStatusRequested {
		t.Fatalf("unexpected statuses %v", service.listStatuses)
	}
}
