package controllers

import (
	"net/http"

	"github.com/beartask/beartask-backend/api/responses"
	"github.com/beartask/beartask-backend/api/validators"
	checkoutsvc "github.com/beartask/beartask-backend/internal/checkout"
	pkgerrors "github.com/beartask/beartask-backend/pkg/errors"
	"github.com/beartask/beartask-backend/pkg/logger"
)

// SupportCollection opens a hosted checkout session for one support tier.
func SupportCollection(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		actorID, err := actorIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		collectionID, err := collectionIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload supportRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.StartSupport(r.Context(), checkoutsvc.SupportInput{
			BuyerID:      actorID,
			CollectionID: collectionID,
			AmountCents:  payload.AmountCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type supportRequest struct {
	AmountCents int64 `json:"amount_cents" validate:"required,gt=0"`
}
