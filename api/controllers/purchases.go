package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/beartask/beartask-backend/api/responses"
	"github.com/beartask/beartask-backend/internal/purchases"
	"github.com/beartask/beartask-backend/pkg/db/models"
	pkgerrors "github.com/beartask/beartask-backend/pkg/errors"
	"github.com/beartask/beartask-backend/pkg/logger"
	"github.com/beartask/beartask-backend/pkg/pagination"
)

// ListMyPurchases pages through the caller's purchases, newest first.
func ListMyPurchases(repo purchases.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase repository unavailable"))
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

		rows, next, err := repo.ListByBuyer(r.Context(), actorID, limit, cursor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]purchaseResponse, 0, len(rows))
		for i := range rows {
			out = append(out, newPurchaseResponse(&rows[i]))
		}
		resp := purchaseListResponse{Purchases: out}
		if next != nil {
			resp.NextCursor = pagination.EncodeCursor(*next)
		}
		responses.WriteSuccess(w, resp)
	}
}

// GetPurchase returns one purchase belonging to the caller.
func GetPurchase(repo purchases.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase repository unavailable"))
			return
		}

		actorID, err := actorIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		raw := strings.TrimSpace(chi.URLParam(r, "purchaseId"))
		purchaseID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid purchase id"))
			return
		}

		purchase, err := repo.FindByID(r.Context(), purchaseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if purchase == nil || purchase.BuyerID != actorID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found"))
			return
		}

		responses.WriteSuccess(w, newPurchaseResponse(purchase))
	}
}

type purchaseResponse struct {
	ID                    uuid.UUID  `json:"id"`
	CollectionID          uuid.UUID  `json:"collection_id"`
	ItemID                uuid.UUID  `json:"item_id"`
	Status                string     `json:"status"`
	AmountCents           int64      `json:"amount_cents"`
	CreatorAmountCents    int64      `json:"creator_amount_cents"`
	AmbassadorAmountCents int64      `json:"ambassador_amount_cents"`
	LotteryAmountCents    int64      `json:"lottery_amount_cents"`
	Oversold              bool       `json:"oversold"`
	PaidAt                *time.Time `json:"paid_at,omitempty"`
	CancelledAt           *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

type purchaseListResponse struct {
	Purchases  []purchaseResponse `json:"purchases"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

func newPurchaseResponse(p *models.Purchase) purchaseResponse {
	return purchaseResponse{
		ID:                    p.ID,
		CollectionID:          p.CollectionID,
		ItemID:                p.ItemID,
		Status:                p.Status.String(),
		AmountCents:           p.AmountCents,
		CreatorAmountCents:    p.CreatorAmountCents,
		AmbassadorAmountCents: p.AmbassadorAmountCents,
		LotteryAmountCents:    p.LotteryAmountCents,
		Oversold:              p.Oversold,
		PaidAt:                p.PaidAt,
		CancelledAt:           p.CancelledAt,
		CreatedAt:             p.CreatedAt,
	}
}
