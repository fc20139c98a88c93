package models

import (
	"time"

	"github.com/google/uuid"
)

// LotteryTicket grants one drawing entry per student per collection. The
// unique (collection_id, user_id) constraint makes the upsert idempotent and
// keeps odds independent of purchase count.
type LotteryTicket struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CollectionID uuid.UUID  `gorm:"column:collection_id;type:uuid;not null;uniqueIndex:ux_lottery_tickets_collection_user"`
	UserID       uuid.UUID  `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_lottery_tickets_collection_user"`
	PurchaseID   *uuid.UUID `gorm:"column:purchase_id;type:uuid"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
