package collections

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/beartask/beartask-backend/pkg/db/models"
	"github.com/beartask/beartask-backend/pkg/enums"
	"github.com/beartask/beartask-backend/pkg/pagination"
)

// Repository handles collection and item persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, collection *models.Collection, items []models.Item) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Collection, error)
	List(ctx context.Context, params ListQuery) ([]models.Collection, *pagination.Cursor, error)
	UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to enums.CollectionStatus) (bool, error)
	RecomputeCagnotte(ctx context.Context, id uuid.UUID) (int64, error)
	SetWinnerIfUndrawn(ctx context.Context, id, winnerUserID, ticketID uuid.UUID, drawnAt time.Time) (bool, error)
	NextAvailableItem(ctx context.Context, collectionID uuid.UUID) (*models.Item, error)
	MarkItemSold(ctx context.Context, itemID uuid.UUID, soldAt time.Time) (bool, error)
	CountUnsoldItems(ctx context.Context, collectionID uuid.UUID) (int64, error)
	ListForReconciliation(ctx context.Context, limit int) ([]models.Collection, error)
}

// ListQuery configures collection list queries.
type ListQuery struct {
	Status    *enums.CollectionStatus
	CreatorID *uuid.UUID
	Limit     int
	Cursor    *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a collection repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, collection *models.Collection, items []models.Item) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(collection).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		for i := range items {
			items[i].CollectionID = collection.ID
		}
		return tx.CreateInBatches(items, 500).Error
	})
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Collection, error) {
	var collection models.Collection
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&collection).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &collection, nil
}

func (r *repository) List(ctx context.Context, params ListQuery) ([]models.Collection, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.Collection{})
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.CreatorID != nil {
		query = query.Where("creator_id = ?", *params.CreatorID)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var rows []models.Collection
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	if len(rows) > limit {
		next := rows[limit]
		rows = rows[:limit]
		return rows, &pagination.Cursor{
			CreatedAt: next.CreatedAt,
			ID:        next.ID,
		}, nil
	}

	return rows, nil, nil
}

// UpdateStatusIf transitions the collection status only when it currently holds
// the expected value. Reports whether a row changed.
func (r *repository) UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to enums.CollectionStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Collection{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RecomputeCagnotte rewrites the pot total from the paid purchase aggregate so
// drift from partial settlements heals on the next run.
func (r *repository) RecomputeCagnotte(ctx context.Context, id uuid.UUID) (int64, error) {
	db := r.db.WithContext(ctx)
	var total int64
	err := db.Model(&models.Purchase{}).
		Select("COALESCE(SUM(lottery_amount_cents), 0)").
		Where("collection_id = ? AND status = ?", id, enums.PurchaseStatusPaid).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	err = db.Model(&models.Collection{}).
		Where("id = ?", id).
		Update("cagnotte_total_cents", total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// SetWinnerIfUndrawn records the draw result only when no winner exists yet.
func (r *repository) SetWinnerIfUndrawn(ctx context.Context, id, winnerUserID, ticketID uuid.UUID, drawnAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Collection{}).
		Where("id = ? AND drawn_at IS NULL", id).
		Updates(map[string]any{
			"drawn_at":         drawnAt,
			"winner_user_id":   winnerUserID,
			"winner_ticket_id": ticketID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) NextAvailableItem(ctx context.Context, collectionID uuid.UUID) (*models.Item, error) {
	var item models.Item
	if err := r.db.WithContext(ctx).
		Where("collection_id = ? AND is_sold = ?", collectionID, false).
		Order("position ASC").
		First(&item).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// MarkItemSold flips is_sold with a compare-and-set so at most one settlement
// claims an item.
func (r *repository) MarkItemSold(ctx context.Context, itemID uuid.UUID, soldAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Item{}).
		Where("id = ? AND is_sold = ?", itemID, false).
		Updates(map[string]any{
			"is_sold": true,
			"sold_at": soldAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListForReconciliation returns drops whose pot can still move: anything
// active, plus sold-out drops that have not drawn a winner yet.
func (r *repository) ListForReconciliation(ctx context.Context, limit int) ([]models.Collection, error) {
	if limit <= 0 {
		limit = 250
	}
	var rows []models.Collection
	err := r.db.WithContext(ctx).
		Where("status = ? OR (status = ? AND drawn_at IS NULL)",
			enums.CollectionStatusActive, enums.CollectionStatusSoldOut).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) CountUnsoldItems(ctx context.Context, collectionID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Item{}).
		Where("collection_id = ? AND is_sold = ?", collectionID, false).
		Count(&count).Error
	return count, err
}
