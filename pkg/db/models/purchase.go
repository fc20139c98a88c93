package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/beartask/beartask-backend/pkg/enums"
)

// Purchase is one checkout attempt. StripeSessionID is the idempotency key
// correlating webhook deliveries with the pending row; the pending->paid
// transition happens at most once per session id.
type Purchase struct {
	ID           uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID      uuid.UUID            `gorm:"column:buyer_id;type:uuid;not null;index"`
	CollectionID uuid.UUID            `gorm:"column:collection_id;type:uuid;not null;index"`
	ItemID       uuid.UUID            `gorm:"column:item_id;type:uuid;not null;index"`
	Status       enums.PurchaseStatus `gorm:"column:status;type:purchase_status;not null;default:'pending'"`

	AmountCents           int64 `gorm:"column:amount_cents;not null"`
	CreatorAmountCents    int64 `gorm:"column:creator_amount_cents;not null;default:0"`
	AmbassadorAmountCents int64 `gorm:"column:ambassador_amount_cents;not null;default:0"`
	LotteryAmountCents    int64 `gorm:"column:lottery_amount_cents;not null;default:0"`

	StripeSessionID     string  `gorm:"column:stripe_session_id;not null;unique"`
	StripePaymentIntent *string `gorm:"column:stripe_payment_intent"`

	// Oversold marks purchases finalized against an item that had already
	// been sold by a concurrent settlement; flagged for operator review.
	Oversold bool `gorm:"column:oversold;not null;default:false"`

	PaidAt      *time.Time `gorm:"column:paid_at"`
	CancelledAt *time.Time `gorm:"column:cancelled_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
