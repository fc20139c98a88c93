package profiles

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/beartask/beartask-backend/pkg/db/models"
)

// Repository handles profile persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	FindByEmail(ctx context.Context, email string) (*models.Profile, error)
	UpdateStripeAccount(ctx context.Context, id uuid.UUID, accountID string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a profile repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&profile).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*models.Profile, error) {
	if email == "" {
		return nil, nil
	}
	var profile models.Profile
	if err := r.db.WithContext(ctx).
		Where("email = ?", email).
		First(&profile).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

func (r *repository) UpdateStripeAccount(ctx context.Context, id uuid.UUID, accountID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ?", id).
		Update("stripe_account_id", accountID).Error
}
