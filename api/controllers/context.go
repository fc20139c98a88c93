package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/beartask/beartask-backend/api/middleware"
	pkgerrors "github.com/beartask/beartask-backend/pkg/errors"
)

func actorRole(r *http.Request) string {
	return middleware.RoleFromContext(r.Context())
}

func actorIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}
