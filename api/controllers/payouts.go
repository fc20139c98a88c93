package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/beartask/beartask-backend/api/responses"
	"github.com/beartask/beartask-backend/api/validators"
	payoutsvc "github.com/beartask/beartask-backend/internal/payouts"
	"github.com/beartask/beartask-backend/pkg/db/models"
	"github.com/beartask/beartask-backend/pkg/enums"
	pkgerrors "github.com/beartask/beartask-backend/pkg/errors"
	"github.com/beartask/beartask-backend/pkg/logger"
	"github.com/beartask/beartask-backend/pkg/pagination"
)

// RequestPayout lets the payout owner ask for their share.
func RequestPayout(svc payoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		actorID, err := actorIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payoutID, err := payoutIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout, err := svc.Request(r.Context(), payoutID, actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newPayoutResponse(payout))
	}
}

// ApprovePayout marks a requested payout as approved. Admin only.
func ApprovePayout(svc payoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		payoutID, err := payoutIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout, err := svc.Approve(r.Context(), payoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newPayoutResponse(payout))
	}
}

// ExecutePayout issues the gateway transfer for an approved payout. Admin
// only; replays return the payout unchanged.
func ExecutePayout(svc payoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		payoutID, err := payoutIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout, err := svc.Execute(r.Context(), payoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newPayoutResponse(payout))
	}
}

// GetPayout returns one payout. Owners see their own; admins see any.
func GetPayout(svc payoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		actorID, err := actorIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payoutID, err := payoutIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout, err := svc.GetByID(r.Context(), payoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payout.UserID != actorID && actorRole(r) != enums.MemberRoleAdmin.String() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "payout belongs to another user"))
			return
		}

		responses.WriteSuccess(w, newPayoutResponse(payout))
	}
}

// ListMyPayouts pages through the caller's payouts.
func ListMyPayouts(svc payoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		actorID, err := actorIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, cursor, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, next, err := svc.ListForUser(r.Context(), actorID, limit, cursor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newPayoutListResponse(rows, next))
	}
}

// ListPayoutsByStatus pages through payouts in one status. Admin only.
func ListPayoutsByStatus(svc payoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		status, err := enums.ParsePayoutStatus(strings.TrimSpace(r.URL.Query().Get("status")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		limit, cursor, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, next, err := svc.ListByStatus(r.Context(), status, limit, cursor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newPayoutListResponse(rows, next))
	}
}

func payoutIDFromPath(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "payoutId"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payout id")
	}
	return id, nil
}

func pageParams(r *http.Request) (int, *pagination.Cursor, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return 0, nil, err
	}
	cursor, err := pagination.ParseCursor(strings.TrimSpace(r.URL.Query().Get("cursor")))
	if err != nil {
		return 0, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return limit, cursor, nil
}

type payoutResponse struct {
	ID           uuid.UUID  `json:"id"`
	CollectionID uuid.UUID  `json:"collection_id"`
	UserID       uuid.UUID  `json:"user_id"`
	Role         string     `json:"role"`
	Status       string     `json:"status"`
	AmountCents  int64      `json:"amount_cents"`
	TransferID   *string    `json:"transfer_id,omitempty"`
	LastError    *string    `json:"last_error,omitempty"`
	RequestedAt  *time.Time `json:"requested_at,omitempty"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type payoutListResponse struct {
	Payouts    []payoutResponse `json:"payouts"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

func newPayoutResponse(p *models.Payout) payoutResponse {
	return payoutResponse{
		ID:           p.ID,
		CollectionID: p.CollectionID,
		UserID:       p.UserID,
		Role:         p.Role.String(),
		Status:       p.Status.String(),
		AmountCents:  p.AmountCents,
		TransferID:   p.StripeTransferID,
		LastError:    p.LastError,
		RequestedAt:  p.RequestedAt,
		ApprovedAt:   p.ApprovedAt,
		PaidAt:       p.PaidAt,
		CreatedAt:    p.CreatedAt,
	}
}

func newPayoutListResponse(rows []models.Payout, next *pagination.Cursor) payoutListResponse {
	out := make([]payoutResponse, 0, len(rows))
	for i := range rows {
		out = append(out, newPayoutResponse(&rows[i]))
	}
	resp := payoutListResponse{Payouts: out}
	if next != nil {
		resp.NextCursor = pagination.EncodeCursor(*next)
	}
	return resp
}
