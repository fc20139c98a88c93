package lottery

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/beartask/beartask-backend/pkg/db/models"
)

// Repository handles lottery ticket persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	InsertTicket(ctx context.Context, ticket *models.LotteryTicket) error
	CountByCollection(ctx context.Context, collectionID uuid.UUID) (int64, error)
	TicketAt(ctx context.Context, collectionID uuid.UUID, offset int64) (*models.LotteryTicket, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a lottery ticket repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) InsertTicket(ctx context.Context, ticket *models.LotteryTicket) error {
	return r.db.WithContext(ctx).Create(ticket).Error
}

func (r *repository) CountByCollection(ctx context.Context, collectionID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LotteryTicket{}).
		Where("collection_id = ?", collectionID).
		Count(&count).Error
	return count, err
}

// TicketAt returns the ticket at the given offset in stable creation order.
// The draw picks a uniform offset in [0, count) against this ordering.
func (r *repository) TicketAt(ctx context.Context, collectionID uuid.UUID, offset int64) (*models.LotteryTicket, error) {
	var ticket models.LotteryTicket
	if err := r.db.WithContext(ctx).
		Where("collection_id = ?", collectionID).
		Order("created_at ASC, id ASC").
		Offset(int(offset)).
		First(&ticket).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &ticket, nil
}
