package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/beartask/beartask-backend/api/responses"
	"github.com/beartask/beartask-backend/api/validators"
	collectionsvc "github.com/beartask/beartask-backend/internal/collections"
	"github.com/beartask/beartask-backend/pkg/db/models"
	"github.com/beartask/beartask-backend/pkg/enums"
	pkgerrors "github.com/beartask/beartask-backend/pkg/errors"
	"github.com/beartask/beartask-backend/pkg/logger"
	"github.com/beartask/beartask-backend/pkg/pagination"
)

// CreateCollection opens a new drop in draft status. The caller becomes the
// creator.
func CreateCollection(svc collectionsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "collection service unavailable"))
			return
		}

		actorID, err := actorIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createCollectionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		collection, err := svc.CreateDrop(r.Context(), collectionsvc.CreateDropInput{
			Title:              payload.Title,
			CreatorID:          actorID,
			AmbassadorID:       payload.AmbassadorID,
			TotalItems:         payload.TotalItems,
			CreatorSharePct:    payload.CreatorSharePct,
			AmbassadorSharePct: payload.AmbassadorSharePct,
			LotterySharePct:    payload.LotterySharePct,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newCollectionResponse(collection))
	}
}

// ActivateCollection moves a draft drop to active so buyers can support it.
func ActivateCollection(svc collectionsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "collection service unavailable"))
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

		collection, err := svc.Activate(r.Context(), collectionID, actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCollectionResponse(collection))
	}
}

// GetCollection returns one drop by id.
func GetCollection(svc collectionsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "collection service unavailable"))
			return
		}

		collectionID, err := collectionIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		collection, err := svc.GetByID(r.Context(), collectionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCollectionResponse(collection))
	}
}

// ListCollections pages through drops, optionally filtered by status or
// creator.
func ListCollections(svc collectionsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "collection service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cursor, err := pagination.ParseCursor(strings.TrimSpace(r.URL.Query().Get("cursor")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor"))
			return
		}

		query := collectionsvc.ListQuery{Limit: limit, Cursor: cursor}

		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseCollectionStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			query.Status = &status
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("creator_id")); raw != "" {
			creatorID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid creator id"))
				return
			}
			query.CreatorID = &creatorID
		}

		rows, next, err := svc.List(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]collectionResponse, 0, len(rows))
		for i := range rows {
			out = append(out, newCollectionResponse(&rows[i]))
		}

		resp := collectionListResponse{Collections: out}
		if next != nil {
			resp.NextCursor = pagination.EncodeCursor(*next)
		}
		responses.WriteSuccess(w, resp)
	}
}

func collectionIDFromPath(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "collectionId"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid collection id")
	}
	return id, nil
}

type createCollectionRequest struct {
	Title              string     `json:"title" validate:"required,max=200"`
	TotalItems         int        `json:"total_items" validate:"required,gt=0"`
	AmbassadorID       *uuid.UUID `json:"ambassador_id" validate:"omitempty,uuid4"`
	CreatorSharePct    int        `json:"creator_share_pct" validate:"omitempty,gte=0,lte=100"`
	AmbassadorSharePct int        `json:"ambassador_share_pct" validate:"omitempty,gte=0,lte=100"`
	LotterySharePct    int        `json:"lottery_share_pct" validate:"omitempty,gte=0,lte=100"`
}

type collectionResponse struct {
	ID                 uuid.UUID  `json:"id"`
	Title              string     `json:"title"`
	CreatorID          uuid.UUID  `json:"creator_id"`
	AmbassadorID       *uuid.UUID `json:"ambassador_id,omitempty"`
	Status             string     `json:"status"`
	TotalItems         int        `json:"total_items"`
	CreatorSharePct    int        `json:"creator_share_pct"`
	AmbassadorSharePct int        `json:"ambassador_share_pct"`
	LotterySharePct    int        `json:"lottery_share_pct"`
	CagnotteTotalCents int64      `json:"cagnotte_total_cents"`
	WinnerUserID       *uuid.UUID `json:"winner_user_id,omitempty"`
	DrawnAt            *time.Time `json:"drawn_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

type collectionListResponse struct {
	Collections []collectionResponse `json:"collections"`
	NextCursor  string               `json:"next_cursor,omitempty"`
}

func newCollectionResponse(c *models.Collection) collectionResponse {
	return collectionResponse{
		ID:                 c.ID,
		Title:              c.Title,
		CreatorID:          c.CreatorID,
		AmbassadorID:       c.AmbassadorID,
		Status:             c.Status.String(),
		TotalItems:         c.TotalItems,
		CreatorSharePct:    c.CreatorSharePct,
		AmbassadorSharePct: c.AmbassadorSharePct,
		LotterySharePct:    c.LotterySharePct,
		CagnotteTotalCents: c.CagnotteTotalCents,
		WinnerUserID:       c.WinnerUserID,
		DrawnAt:            c.DrawnAt,
		CreatedAt:          c.CreatedAt,
	}
}
