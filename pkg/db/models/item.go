package models

import (
	"time"

	"github.com/google/uuid"
)

// Item is one unit of a collection. IsSold flips unsold->sold exactly once;
// the flip is guarded by a compare-and-set in the repository.
type Item struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CollectionID uuid.UUID  `gorm:"column:collection_id;type:uuid;not null;index"`
	Position     int        `gorm:"column:position;not null"`
	IsSold       bool       `gorm:"column:is_sold;not null;default:false"`
	SoldAt       *time.Time `gorm:"column:sold_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
