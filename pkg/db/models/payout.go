package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/beartask/beartask-backend/pkg/enums"
)

// Payout is one revenue share owed to one recipient role for one collection.
// StripeTransferID doubles as the executed marker; a payout carrying one is
// never transferred again.
type Payout struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CollectionID uuid.UUID          `gorm:"column:collection_id;type:uuid;not null;index"`
	UserID       uuid.UUID          `gorm:"column:user_id;type:uuid;not null;index"`
	Role         enums.PayoutRole   `gorm:"column:role;type:payout_role;not null"`
	Status       enums.PayoutStatus `gorm:"column:status;type:payout_status;not null;default:'pending'"`
	AmountCents  int64              `gorm:"column:amount_cents;not null"`

	StripeTransferID    *string `gorm:"column:stripe_transfer_id"`
	StripeTransferGroup *string `gorm:"column:stripe_transfer_group"`
	LastError           *string `gorm:"column:last_error"`

	RequestedAt *time.Time `gorm:"column:requested_at"`
	ApprovedAt  *time.Time `gorm:"column:approved_at"`
	PaidAt      *time.Time `gorm:"column:paid_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// Transferred reports whether an external transfer was already issued.
func (p *Payout) Transferred() bool {
	return p != nil && p.StripeTransferID != nil && *p.StripeTransferID != ""
}
