package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/beartask/beartask-backend/internal/purchases"
	"github.com/beartask/beartask-backend/pkg/enums"
	"github.com/beartask/beartask-backend/pkg/logger"
	"github.com/beartask/beartask-backend/pkg/outbox"
	"github.com/beartask/beartask-backend/pkg/outbox/payloads"
)

const purchaseTTLBatch = 250

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// PurchaseTTLJob cancels pending purchases whose checkout session was never
// completed within the configured window.
type PurchaseTTLJob struct {
	tx     txRunner
	repo   purchases.Repository
	outbox outboxPublisher
	ttl    time.Duration
	logg   *logger.Logger
}

// NewPurchaseTTLJob builds the expiry job.
func NewPurchaseTTLJob(tx txRunner, repo purchases.Repository, publisher outboxPublisher, ttl time.Duration, logg *logger.Logger) (*PurchaseTTLJob, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("purchase repository required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &PurchaseTTLJob{tx: tx, repo: repo, outbox: publisher, ttl: ttl, logg: logg}, nil
}

// Name identifies the job in logs and metrics.
func (j *PurchaseTTLJob) Name() string {
	return "purchase-ttl"
}

// Run cancels each expired pending purchase. The status guard keeps the job
// safe against a settlement landing mid-run.
func (j *PurchaseTTLJob) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-j.ttl)
	rows, err := j.repo.ListExpiredPending(ctx, cutoff, purchaseTTLBatch)
	if err != nil {
		return fmt.Errorf("list expired purchases: %w", err)
	}

	var cancelled, failures int
	for _, purchase := range rows {
		logCtx := j.logg.WithPurchaseID(ctx, purchase.ID.String())
		purchase := purchase
		err := j.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := j.repo.WithTx(tx)
			ok, err := repo.MarkCancelledIfPending(ctx, purchase.ID, time.Now().UTC())
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			cancelled++
			return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPurchaseCancelled,
				AggregateType: enums.AggregatePurchase,
				AggregateID:   purchase.ID,
				Data: payloads.PurchaseCancelledEvent{
					PurchaseID:   purchase.ID,
					CollectionID: purchase.CollectionID,
					BuyerID:      purchase.BuyerID,
					Reason:       "pending purchase expired",
				},
				Version: 1,
			})
		})
		if err != nil {
			failures++
			j.logg.Error(logCtx, "expiring purchase failed", err)
		}
	}

	if cancelled > 0 {
		j.logg.Info(ctx, fmt.Sprintf("cancelled %d expired pending purchases", cancelled))
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d expired purchases failed to cancel", failures, len(rows))
	}
	return nil
}
