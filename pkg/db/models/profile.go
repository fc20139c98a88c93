package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/beartask/beartask-backend/pkg/enums"
)

// Profile mirrors the identity provider's user record with the marketplace
// fields settlement and payouts care about.
type Profile struct {
	ID                uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Email             string           `gorm:"column:email;not null;unique"`
	DisplayName       string           `gorm:"column:display_name"`
	Role              enums.MemberRole `gorm:"column:role;type:member_role;not null;default:'student'"`
	IsAdmin           bool             `gorm:"column:is_admin;not null;default:false"`
	IsVerifiedStudent bool             `gorm:"column:is_verified_student;not null;default:false"`
	StripeAccountID   *string          `gorm:"column:stripe_account_id"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
