package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/beartask/beartask-backend/api/responses"
	lotterysvc "github.com/beartask/beartask-backend/internal/lottery"
	pkgerrors "github.com/beartask/beartask-backend/pkg/errors"
	"github.com/beartask/beartask-backend/pkg/logger"
)

// DrawLottery runs the sell-out drawing for a collection. Admin only; a
// repeat call on a drawn collection is rejected as a state conflict.
func DrawLottery(svc lotterysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lottery service unavailable"))
			return
		}

		collectionID, err := collectionIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Draw(r.Context(), collectionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, drawResponse{
			CollectionID: result.CollectionID,
			WinnerUserID: result.WinnerUserID,
			TicketID:     result.TicketID,
			PrizeCents:   result.PrizeCents,
			TicketCount:  result.TicketCount,
			DrawnAt:      result.DrawnAt,
		})
	}
}

type drawResponse struct {
	CollectionID uuid.UUID `json:"collection_id"`
	WinnerUserID uuid.UUID `json:"winner_user_id"`
	TicketID     uuid.UUID `json:"ticket_id"`
	PrizeCents   int64     `json:"prize_cents"`
	TicketCount  int64     `json:"ticket_count"`
	DrawnAt      time.Time `json:"drawn_at"`
}
