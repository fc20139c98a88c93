package collections

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/beartask/beartask-backend/internal/profiles"
	"github.com/beartask/beartask-backend/pkg/config"
	"github.com/beartask/beartask-backend/pkg/db/models"
	"github.com/beartask/beartask-backend/pkg/enums"
	pkgerrors "github.com/beartask/beartask-backend/pkg/errors"
	"github.com/beartask/beartask-backend/pkg/logger"
	"github.com/beartask/beartask-backend/pkg/pagination"
)

const maxItemsPerDrop = 10000

// Service manages collection drops.
type Service interface {
	CreateDrop(ctx context.Context, input CreateDropInput) (*models.Collection, error)
	Activate(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (*models.Collection, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Collection, error)
	List(ctx context.Context, query ListQuery) ([]models.Collection, *pagination.Cursor, error)
	RecomputeCagnotte(ctx context.Context, id uuid.UUID) (int64, error)
}

// CreateDropInput captures everything needed to open a new drop.
type CreateDropInput struct {
	Title              string
	CreatorID          uuid.UUID
	AmbassadorID       *uuid.UUID
	TotalItems         int
	CreatorSharePct    int
	AmbassadorSharePct int
	LotterySharePct    int
}

// ServiceParams wires the collection service dependencies.
type ServiceParams struct {
	Repo        Repository
	ProfileRepo profiles.Repository
	Settlement  config.SettlementConfig
	Logger      *logger.Logger
}

type service struct {
	repo        Repository
	profileRepo profiles.Repository
	settlement  config.SettlementConfig
	logg        *logger.Logger
}

// NewService builds the collection service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("collection repository required")
	}
	if params.ProfileRepo == nil {
		return nil, fmt.Errorf("profile repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:        params.Repo,
		profileRepo: params.ProfileRepo,
		settlement:  params.Settlement,
		logg:        params.Logger,
	}, nil
}

func (s *service) CreateDrop(ctx context.Context, input CreateDropInput) (*models.Collection, error) {
	if input.Title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title required")
	}
	if input.CreatorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "creator id required")
	}
	if input.TotalItems <= 0 || input.TotalItems > maxItemsPerDrop {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("total items must be between 1 and %d", maxItemsPerDrop))
	}

	shares, err := s.resolveShares(input)
	if err != nil {
		return nil, err
	}

	creator, err := s.profileRepo.FindByID(ctx, input.CreatorID)
	if err != nil {
		return nil, err
	}
	if creator == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "creator profile not found")
	}
	if !creator.IsVerifiedStudent {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "creator must be a verified student")
	}

	if input.AmbassadorID != nil {
		ambassador, err := s.profileRepo.FindByID(ctx, *input.AmbassadorID)
		if err != nil {
			return nil, err
		}
		if ambassador == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ambassador profile not found")
		}
		if ambassador.Role != enums.MemberRoleAmbassador {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "ambassador profile does not hold the ambassador role")
		}
	}

	collection := &models.Collection{
		Title:              input.Title,
		CreatorID:          input.CreatorID,
		AmbassadorID:       input.AmbassadorID,
		Status:             enums.CollectionStatusDraft,
		TotalItems:         input.TotalItems,
		CreatorSharePct:    shares.creator,
		AmbassadorSharePct: shares.ambassador,
		LotterySharePct:    shares.lottery,
	}

	items := make([]models.Item, input.TotalItems)
	for i := range items {
		items[i] = models.Item{Position: i}
	}

	if err := s.repo.Create(ctx, collection, items); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating drop")
	}

	logCtx := s.logg.WithCollectionID(ctx, collection.ID.String())
	s.logg.Info(logCtx, fmt.Sprintf("drop created with %d items", input.TotalItems))
	return collection, nil
}

func (s *service) Activate(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (*models.Collection, error) {
	collection, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if collection == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "collection not found")
	}
	if collection.CreatorID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the drop creator can activate it")
	}

	changed, err := s.repo.UpdateStatusIf(ctx, id, enums.CollectionStatusDraft, enums.CollectionStatusActive)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "collection is not in draft status")
	}

	return s.repo.FindByID(ctx, id)
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.Collection, error) {
	collection, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if collection == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "collection not found")
	}
	return collection, nil
}

func (s *service) List(ctx context.Context, query ListQuery) ([]models.Collection, *pagination.Cursor, error) {
	return s.repo.List(ctx, query)
}

func (s *service) RecomputeCagnotte(ctx context.Context, id uuid.UUID) (int64, error) {
	return s.repo.RecomputeCagnotte(ctx, id)
}

type shareSplit struct {
	creator    int
	ambassador int
	lottery    int
}

func (s *service) resolveShares(input CreateDropInput) (shareSplit, error) {
	split := shareSplit{
		creator:    input.CreatorSharePct,
		ambassador: input.AmbassadorSharePct,
		lottery:    input.LotterySharePct,
	}
	if split.creator == 0 && split.ambassador == 0 && split.lottery == 0 {
		split = shareSplit{
			creator:    s.settlement.CreatorSharePct,
			ambassador: s.settlement.AmbassadorSharePct,
			lottery:    s.settlement.LotterySharePct,
		}
	}
	if split.creator < 0 || split.ambassador < 0 || split.lottery < 0 {
		return shareSplit{}, pkgerrors.New(pkgerrors.CodeValidation, "share percentages must be non-negative")
	}
	if split.creator+split.ambassador+split.lottery != 100 {
		return shareSplit{}, pkgerrors.New(pkgerrors.CodeValidation, "share percentages must sum to 100")
	}
	return split, nil
}
