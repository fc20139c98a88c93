package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/beartask/beartask-backend/pkg/enums"
)

// Collection is a limited drop of items. The share percentages must sum to
// 100; CagnotteTotalCents is always recomputed from paid purchases, never
// trusted incrementally.
type Collection struct {
	ID           uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Title        string                 `gorm:"column:title;not null"`
	CreatorID    uuid.UUID              `gorm:"column:creator_id;type:uuid;not null;index"`
	AmbassadorID *uuid.UUID             `gorm:"column:ambassador_id;type:uuid;index"`
	Status       enums.CollectionStatus `gorm:"column:status;type:collection_status;not null;default:'draft'"`
	TotalItems   int                    `gorm:"column:total_items;not null"`

	CreatorSharePct    int `gorm:"column:creator_share_pct;not null;default:30"`
	AmbassadorSharePct int `gorm:"column:ambassador_share_pct;not null;default:10"`
	LotterySharePct    int `gorm:"column:lottery_share_pct;not null;default:60"`

	CagnotteTotalCents int64 `gorm:"column:cagnotte_total_cents;not null;default:0"`

	DrawnAt        *time.Time `gorm:"column:drawn_at"`
	WinnerUserID   *uuid.UUID `gorm:"column:winner_user_id;type:uuid"`
	WinnerTicketID *uuid.UUID `gorm:"column:winner_ticket_id;type:uuid"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Drawn reports whether the sell-out drawing already happened.
func (c *Collection) Drawn() bool {
	return c != nil && c.DrawnAt != nil
}
