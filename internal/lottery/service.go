package lottery

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/beartask/beartask-backend/internal/collections"
	"github.com/beartask/beartask-backend/internal/payouts"
	"github.com/beartask/beartask-backend/internal/purchases"
	dbpkg "github.com/beartask/beartask-backend/pkg/db"
	"github.com/beartask/beartask-backend/pkg/db/models"
	"github.com/beartask/beartask-backend/pkg/enums"
	pkgerrors "github.com/beartask/beartask-backend/pkg/errors"
	"github.com/beartask/beartask-backend/pkg/logger"
	"github.com/beartask/beartask-backend/pkg/outbox"
	"github.com/beartask/beartask-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service runs the sell-out drawing and issues lottery tickets.
type Service interface {
	EnsureTicket(ctx context.Context, tx *gorm.DB, collectionID, userID uuid.UUID, purchaseID *uuid.UUID) error
	Draw(ctx context.Context, collectionID uuid.UUID) (*DrawResult, error)
}

// DrawResult describes the outcome of a completed drawing.
type DrawResult struct {
	CollectionID uuid.UUID
	WinnerUserID uuid.UUID
	TicketID     uuid.UUID
	PrizeCents   int64
	TicketCount  int64
	DrawnAt      time.Time
}

// ServiceParams wires the lottery service dependencies.
type ServiceParams struct {
	Tx             txRunner
	TicketRepo     Repository
	CollectionRepo collections.Repository
	PurchaseRepo   purchases.Repository
	PayoutRepo     payouts.Repository
	Outbox         outboxPublisher
	Logger         *logger.Logger
}

type service struct {
	tx             txRunner
	ticketRepo     Repository
	collectionRepo collections.Repository
	purchaseRepo   purchases.Repository
	payoutRepo     payouts.Repository
	outbox         outboxPublisher
	logg           *logger.Logger
}

// NewService builds the lottery service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.TicketRepo == nil {
		return nil, fmt.Errorf("ticket repository required")
	}
	if params.CollectionRepo == nil {
		return nil, fmt.Errorf("collection repository required")
	}
	if params.PurchaseRepo == nil {
		return nil, fmt.Errorf("purchase repository required")
	}
	if params.PayoutRepo == nil {
		return nil, fmt.Errorf("payout repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:             params.Tx,
		ticketRepo:     params.TicketRepo,
		collectionRepo: params.CollectionRepo,
		purchaseRepo:   params.PurchaseRepo,
		payoutRepo:     params.PayoutRepo,
		outbox:         params.Outbox,
		logg:           params.Logger,
	}, nil
}

// EnsureTicket inserts a ticket for the buyer, swallowing the unique violation
// when the buyer already holds one for this collection.
func (s *service) EnsureTicket(ctx context.Context, tx *gorm.DB, collectionID, userID uuid.UUID, purchaseID *uuid.UUID) error {
	repo := s.ticketRepo.WithTx(tx)
	ticket := &models.LotteryTicket{
		CollectionID: collectionID,
		UserID:       userID,
		PurchaseID:   purchaseID,
	}
	if err := repo.InsertTicket(ctx, ticket); err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_lottery_tickets_collection_user") {
			return nil
		}
		return err
	}
	return nil
}

// Draw selects a uniformly random ticket and records the winner exactly once.
func (s *service) Draw(ctx context.Context, collectionID uuid.UUID) (*DrawResult, error) {
	if collectionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "collection id required")
	}

	collection, err := s.collectionRepo.FindByID(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if collection == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "collection not found")
	}
	if collection.Drawn() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "winner already drawn")
	}
	if collection.Status != enums.CollectionStatusSoldOut {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "collection is not sold out yet")
	}

	count, err := s.ticketRepo.CountByCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no lottery tickets exist for this collection")
	}

	offset, err := rand.Int(rand.Reader, big.NewInt(count))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "drawing random ticket")
	}

	ticket, err := s.ticketRepo.TicketAt(ctx, collectionID, offset.Int64())
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "drawn ticket offset out of range")
	}

	totals, err := s.purchaseRepo.SumPaidSplits(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	drawnAt := time.Now().UTC()
	result := &DrawResult{
		CollectionID: collectionID,
		WinnerUserID: ticket.UserID,
		TicketID:     ticket.ID,
		PrizeCents:   totals.LotteryCents,
		TicketCount:  count,
		DrawnAt:      drawnAt,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		collectionRepo := s.collectionRepo.WithTx(tx)
		claimed, err := collectionRepo.SetWinnerIfUndrawn(ctx, collectionID, ticket.UserID, ticket.ID, drawnAt)
		if err != nil {
			return err
		}
		if !claimed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "winner already drawn")
		}

		if err := s.createSharePayouts(ctx, tx, collection, totals, ticket.UserID); err != nil {
			return err
		}

		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLotteryWinnerDrawn,
			AggregateType: enums.AggregateCollection,
			AggregateID:   collectionID,
			Data: payloads.LotteryWinnerDrawnEvent{
				CollectionID: collectionID,
				WinnerUserID: ticket.UserID,
				TicketID:     ticket.ID,
				PrizeCents:   totals.LotteryCents,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithCollectionID(ctx, collectionID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"winner_user_id": ticket.UserID.String(),
		"ticket_count":   count,
		"prize_cents":    totals.LotteryCents,
	})
	s.logg.Info(logCtx, "lottery winner drawn")
	return result, nil
}

// createSharePayouts opens one pending payout per recipient. Zero-amount
// shares get no row.
func (s *service) createSharePayouts(ctx context.Context, tx *gorm.DB, collection *models.Collection, totals *purchases.SplitTotals, winnerUserID uuid.UUID) error {
	payoutRepo := s.payoutRepo.WithTx(tx)

	type share struct {
		userID uuid.UUID
		role   enums.PayoutRole
		amount int64
	}
	shares := []share{
		{userID: collection.CreatorID, role: enums.PayoutRoleCreator, amount: totals.CreatorCents},
		{userID: winnerUserID, role: enums.PayoutRoleWinner, amount: totals.LotteryCents},
	}
	if collection.AmbassadorID != nil {
		shares = append(shares, share{
			userID: *collection.AmbassadorID,
			role:   enums.PayoutRoleAmbassador,
			amount: totals.AmbassadorCents,
		})
	}

	for _, sh := range shares {
		if sh.amount <= 0 {
			continue
		}
		payout := &models.Payout{
			CollectionID: collection.ID,
			UserID:       sh.userID,
			Role:         sh.role,
			Status:       enums.PayoutStatusPending,
			AmountCents:  sh.amount,
		}
		if err := payoutRepo.Create(ctx, payout); err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_payouts_collection_user_role") {
				continue
			}
			return err
		}
	}
	return nil
}
