package purchases

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/beartask/beartask-backend/pkg/db/models"
	"github.com/beartask/beartask-backend/pkg/enums"
	"github.com/beartask/beartask-backend/pkg/pagination"
)

// Repository handles purchase persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, purchase *models.Purchase) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Purchase, error)
	FindBySessionID(ctx context.Context, sessionID string) (*models.Purchase, error)
	FindPendingByBuyerAndCollection(ctx context.Context, buyerID, collectionID uuid.UUID) (*models.Purchase, error)
	MarkPaid(ctx context.Context, id uuid.UUID, update PaidUpdate) (bool, error)
	MarkCancelledIfPending(ctx context.Context, id uuid.UUID, cancelledAt time.Time) (bool, error)
	MarkOversold(ctx context.Context, id uuid.UUID) error
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Purchase, *pagination.Cursor, error)
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]models.Purchase, error)
	SumPaidSplits(ctx context.Context, collectionID uuid.UUID) (*SplitTotals, error)
}

// SplitTotals aggregates the per-share cents across all paid purchases of a drop.
type SplitTotals struct {
	CreatorCents    int64
	AmbassadorCents int64
	LotteryCents    int64
}

// PaidUpdate carries the settlement outcome applied to a pending purchase.
// The item stays as designated at checkout; oversold flagging happens through
// MarkOversold after the claim attempt.
type PaidUpdate struct {
	StripePaymentIntent   *string
	CreatorAmountCents    int64
	AmbassadorAmountCents int64
	LotteryAmountCents    int64
	PaidAt                time.Time
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a purchase repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, purchase *models.Purchase) error {
	return r.db.WithContext(ctx).Create(purchase).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&purchase).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &purchase, nil
}

func (r *repository) FindBySessionID(ctx context.Context, sessionID string) (*models.Purchase, error) {
	if sessionID == "" {
		return nil, nil
	}
	var purchase models.Purchase
	if err := r.db.WithContext(ctx).
		Where("stripe_session_id = ?", sessionID).
		First(&purchase).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &purchase, nil
}

func (r *repository) FindPendingByBuyerAndCollection(ctx context.Context, buyerID, collectionID uuid.UUID) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := r.db.WithContext(ctx).
		Where("buyer_id = ? AND collection_id = ? AND status = ?", buyerID, collectionID, enums.PurchaseStatusPending).
		Order("created_at DESC").
		First(&purchase).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &purchase, nil
}

// MarkPaid finalizes a pending purchase. The status guard makes settlement
// replays a no-op at the row level.
func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, update PaidUpdate) (bool, error) {
	values := map[string]any{
		"status":                  enums.PurchaseStatusPaid,
		"creator_amount_cents":    update.CreatorAmountCents,
		"ambassador_amount_cents": update.AmbassadorAmountCents,
		"lottery_amount_cents":    update.LotteryAmountCents,
		"paid_at":                 update.PaidAt,
	}
	if update.StripePaymentIntent != nil {
		values["stripe_payment_intent"] = *update.StripePaymentIntent
	}

	res := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND status = ?", id, enums.PurchaseStatusPending).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkCancelledIfPending(ctx context.Context, id uuid.UUID, cancelledAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND status = ?", id, enums.PurchaseStatusPending).
		Updates(map[string]any{
			"status":       enums.PurchaseStatusCancelled,
			"cancelled_at": cancelledAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkOversold(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ?", id).
		Update("oversold", true).Error
}

func (r *repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Purchase, *pagination.Cursor, error) {
	normalized := pagination.NormalizeLimit(limit)
	query := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("buyer_id = ?", buyerID)
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Purchase
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(normalized)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	if len(rows) > normalized {
		next := rows[normalized]
		rows = rows[:normalized]
		return rows, &pagination.Cursor{
			CreatedAt: next.CreatedAt,
			ID:        next.ID,
		}, nil
	}

	return rows, nil, nil
}

func (r *repository) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]models.Purchase, error) {
	if limit <= 0 {
		limit = 250
	}
	var rows []models.Purchase
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.PurchaseStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) SumPaidSplits(ctx context.Context, collectionID uuid.UUID) (*SplitTotals, error) {
	var totals SplitTotals
	err := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Select(
			"COALESCE(SUM(creator_amount_cents), 0) AS creator_cents",
			"COALESCE(SUM(ambassador_amount_cents), 0) AS ambassador_cents",
			"COALESCE(SUM(lottery_amount_cents), 0) AS lottery_cents",
		).
		Where("collection_id = ? AND status = ?", collectionID, enums.PurchaseStatusPaid).
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	return &totals, nil
}
