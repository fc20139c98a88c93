package payouts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/beartask/beartask-backend/pkg/db/models"
	"github.com/beartask/beartask-backend/pkg/enums"
	"github.com/beartask/beartask-backend/pkg/pagination"
)

// Repository handles payout persistence. Every transition is guarded by the
// current status so concurrent admins cannot skip states.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payout *models.Payout) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Payout, *pagination.Cursor, error)
	ListByStatus(ctx context.Context, status enums.PayoutStatus, limit int, cursor *pagination.Cursor) ([]models.Payout, *pagination.Cursor, error)
	MarkRequested(ctx context.Context, id uuid.UUID, requestedAt time.Time) (bool, error)
	MarkApproved(ctx context.Context, id uuid.UUID, approvedAt time.Time) (bool, error)
	MarkPaid(ctx context.Context, id uuid.UUID, transferID, transferGroup string, paidAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, message string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payout repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&payout).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Payout, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("user_id = ?", userID)
	return r.paginate(query, limit, cursor)
}

func (r *repository) ListByStatus(ctx context.Context, status enums.PayoutStatus, limit int, cursor *pagination.Cursor) ([]models.Payout, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("status = ?", status)
	return r.paginate(query, limit, cursor)
}

func (r *repository) paginate(query *gorm.DB, limit int, cursor *pagination.Cursor) ([]models.Payout, *pagination.Cursor, error) {
	normalized := pagination.NormalizeLimit(limit)
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Payout
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

func (r *repository) MarkRequested(ctx context.Context, id uuid.UUID, requestedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND status = ?", id, enums.PayoutStatusPending).
		Updates(map[string]any{
			"status":       enums.PayoutStatusRequested,
			"requested_at": requestedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkApproved(ctx context.Context, id uuid.UUID, approvedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND status = ?", id, enums.PayoutStatusRequested).
		Updates(map[string]any{
			"status":      enums.PayoutStatusApproved,
			"approved_at": approvedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkPaid also accepts the failed state so an execute retry can recover a
// payout whose previous transfer attempt errored.
func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, transferID, transferGroup string, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND status IN ?", id, []enums.PayoutStatus{enums.PayoutStatusApproved, enums.PayoutStatusFailed}).
		Updates(map[string]any{
			"status":                enums.PayoutStatusPaid,
			"stripe_transfer_id":    transferID,
			"stripe_transfer_group": transferGroup,
			"last_error":            nil,
			"paid_at":               paidAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, message string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND status IN ?", id, []enums.PayoutStatus{enums.PayoutStatusApproved, enums.PayoutStatusFailed}).
		Updates(map[string]any{
			"status":     enums.PayoutStatusFailed,
			"last_error": message,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
