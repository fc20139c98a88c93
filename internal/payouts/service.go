package payouts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/beartask/beartask-backend/internal/profiles"
	"github.com/beartask/beartask-backend/pkg/config"
	"github.com/beartask/beartask-backend/pkg/db/models"
	"github.com/beartask/beartask-backend/pkg/enums"
	pkgerrors "github.com/beartask/beartask-backend/pkg/errors"
	"github.com/beartask/beartask-backend/pkg/logger"
	"github.com/beartask/beartask-backend/pkg/metrics"
	"github.com/beartask/beartask-backend/pkg/outbox"
	"github.com/beartask/beartask-backend/pkg/outbox/payloads"
	"github.com/beartask/beartask-backend/pkg/pagination"
	"github.com/beartask/beartask-backend/pkg/stripe"
)

type payoutGateway interface {
	AccountPayoutReady(ctx context.Context, accountID string) (bool, error)
	CreateTransfer(ctx context.Context, params stripe.TransferParams) (string, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service advances payouts through pending -> requested -> approved -> paid.
// Every transition is a guarded UPDATE; a lost race surfaces as a state
// conflict instead of a double-move.
type Service interface {
	Request(ctx context.Context, payoutID, actorID uuid.UUID) (*models.Payout, error)
	Approve(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	Execute(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	GetByID(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Payout, *pagination.Cursor, error)
	ListByStatus(ctx context.Context, status enums.PayoutStatus, limit int, cursor *pagination.Cursor) ([]models.Payout, *pagination.Cursor, error)
}

// ServiceParams wires the payout service dependencies.
type ServiceParams struct {
	Tx          txRunner
	Repo        Repository
	ProfileRepo profiles.Repository
	Gateway     payoutGateway
	Outbox      outboxPublisher
	Settlement  config.SettlementConfig
	Logger      *logger.Logger
	Metrics     *metrics.SettlementMetrics
}

type service struct {
	tx          txRunner
	repo        Repository
	profileRepo profiles.Repository
	gateway     payoutGateway
	outbox      outboxPublisher
	settlement  config.SettlementConfig
	logg        *logger.Logger
	metrics     *metrics.SettlementMetrics
}

// NewService builds the payout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("payout repository required")
	}
	if params.ProfileRepo == nil {
		return nil, fmt.Errorf("profile repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:          params.Tx,
		repo:        params.Repo,
		profileRepo: params.ProfileRepo,
		gateway:     params.Gateway,
		outbox:      params.Outbox,
		settlement:  params.Settlement,
		logg:        params.Logger,
		metrics:     params.Metrics,
	}, nil
}

// Request moves a pending payout to requested. Only the payout owner can ask,
// and they need a connected gateway account first.
func (s *service) Request(ctx context.Context, payoutID, actorID uuid.UUID) (*models.Payout, error) {
	payout, err := s.loadPayout(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.UserID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payout belongs to another user")
	}

	profile, err := s.profileRepo.FindByID(ctx, payout.UserID)
	if err != nil {
		return nil, err
	}
	if profile == nil || profile.StripeAccountID == nil || *profile.StripeAccountID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "a connected payout account is required before requesting")
	}

	ok, err := s.repo.MarkRequested(ctx, payoutID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payout is not pending")
	}

	s.emitStatusChange(ctx, payout, enums.PayoutStatusPending, enums.PayoutStatusRequested, "")
	s.logTransition(ctx, payout, "payout requested")
	return s.repo.FindByID(ctx, payoutID)
}

// Approve moves a requested payout to approved. Admin only; the controller
// enforces the role.
func (s *service) Approve(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	payout, err := s.loadPayout(ctx, payoutID)
	if err != nil {
		return nil, err
	}

	ok, err := s.repo.MarkApproved(ctx, payoutID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payout is not requested")
	}

	s.emitStatusChange(ctx, payout, enums.PayoutStatusRequested, enums.PayoutStatusApproved, "")
	s.logTransition(ctx, payout, "payout approved")
	return s.repo.FindByID(ctx, payoutID)
}

// Execute issues the gateway transfer for an approved payout. Replays are
// no-ops: a payout that is already paid, or that carries a transfer id, is
// returned unchanged.
func (s *service) Execute(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	payout, err := s.loadPayout(ctx, payoutID)
	if err != nil {
		return nil, err
	}

	if payout.Status == enums.PayoutStatusPaid || payout.Transferred() {
		s.logTransition(ctx, payout, "payout already executed, skipping")
		return payout, nil
	}
	if payout.Status != enums.PayoutStatusApproved && payout.Status != enums.PayoutStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payout is not approved")
	}

	profile, err := s.profileRepo.FindByID(ctx, payout.UserID)
	if err != nil {
		return nil, err
	}
	if profile == nil || profile.StripeAccountID == nil || *profile.StripeAccountID == "" {
		return nil, s.failExecution(ctx, payout, "recipient has no connected payout account")
	}

	ready, err := s.gateway.AccountPayoutReady(ctx, *profile.StripeAccountID)
	if err != nil {
		return nil, s.failExecution(ctx, payout, fmt.Sprintf("checking payout account: %v", err))
	}
	if !ready {
		return nil, s.failExecution(ctx, payout, "payout account has payouts disabled")
	}

	transferGroup := fmt.Sprintf("collection_%s", payout.CollectionID)
	transferID, err := s.gateway.CreateTransfer(ctx, stripe.TransferParams{
		DestinationAccount: *profile.StripeAccountID,
		AmountCents:        payout.AmountCents,
		Currency:           s.settlement.PayoutTransferCurrency,
		IdempotencyKey:     fmt.Sprintf("payout_%s", payout.ID),
		TransferGroup:      transferGroup,
		Metadata: map[string]string{
			"payout_id":     payout.ID.String(),
			"collection_id": payout.CollectionID.String(),
			"role":          payout.Role.String(),
		},
	})
	if err != nil {
		s.metrics.IncTransfer("failure")
		return nil, s.failExecution(ctx, payout, fmt.Sprintf("transfer failed: %v", err))
	}

	fromStatus := payout.Status
	ok, err := s.repo.MarkPaid(ctx, payoutID, transferID, transferGroup, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !ok {
		// Transfer went out but a concurrent execute won the row; the
		// idempotency key guarantees the gateway only moved money once.
		s.logTransition(ctx, payout, "payout paid by concurrent execute")
		return s.repo.FindByID(ctx, payoutID)
	}

	s.metrics.IncTransfer("success")
	s.emitStatusChange(ctx, payout, fromStatus, enums.PayoutStatusPaid, transferID)
	s.logTransition(ctx, payout, fmt.Sprintf("payout executed: transfer %s for %d cents", transferID, payout.AmountCents))
	return s.repo.FindByID(ctx, payoutID)
}

func (s *service) GetByID(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	return s.loadPayout(ctx, payoutID)
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Payout, *pagination.Cursor, error) {
	return s.repo.ListByUser(ctx, userID, limit, cursor)
}

func (s *service) ListByStatus(ctx context.Context, status enums.PayoutStatus, limit int, cursor *pagination.Cursor) ([]models.Payout, *pagination.Cursor, error) {
	return s.repo.ListByStatus(ctx, status, limit, cursor)
}

func (s *service) loadPayout(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	if payoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id required")
	}
	payout, err := s.repo.FindByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
	}
	return payout, nil
}

func (s *service) failExecution(ctx context.Context, payout *models.Payout, message string) error {
	if _, err := s.repo.MarkFailed(ctx, payout.ID, message); err != nil {
		s.logg.Error(ctx, "recording payout failure", err)
	}
	s.emitStatusChange(ctx, payout, payout.Status, enums.PayoutStatusFailed, "")
	logCtx := s.logg.WithPayoutID(ctx, payout.ID.String())
	s.logg.Warn(logCtx, fmt.Sprintf("payout execution failed: %s", message))
	return pkgerrors.New(pkgerrors.CodeStateConflict, message)
}

func (s *service) emitStatusChange(ctx context.Context, payout *models.Payout, from, to enums.PayoutStatus, transferID string) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutStatusChanged,
			AggregateType: enums.AggregatePayout,
			AggregateID:   payout.ID,
			Data: payloads.PayoutStatusChangedEvent{
				PayoutID:     payout.ID,
				CollectionID: payout.CollectionID,
				UserID:       payout.UserID,
				Role:         payout.Role.String(),
				FromStatus:   from.String(),
				ToStatus:     to.String(),
				AmountCents:  payout.AmountCents,
				TransferID:   transferID,
			},
			Version: 1,
		})
	})
	if err != nil {
		s.logg.Error(ctx, "emitting payout status event", err)
	}
}

func (s *service) logTransition(ctx context.Context, payout *models.Payout, msg string) {
	logCtx := s.logg.WithPayoutID(ctx, payout.ID.String())
	logCtx = s.logg.WithCollectionID(logCtx, payout.CollectionID.String())
	s.logg.Info(logCtx, msg)
}
