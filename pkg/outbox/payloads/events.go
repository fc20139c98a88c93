package payloads

import (
	"github.com/google/uuid"
)

// PurchasePaidEvent is emitted when a settlement finalizes a purchase.
type PurchasePaidEvent struct {
	PurchaseID            uuid.UUID  `json:"purchaseId"`
	CollectionID          uuid.UUID  `json:"collectionId"`
	BuyerID               uuid.UUID  `json:"buyerId"`
	ItemID                *uuid.UUID `json:"itemId,omitempty"`
	AmountCents           int64      `json:"amountCents"`
	CreatorAmountCents    int64      `json:"creatorAmountCents"`
	AmbassadorAmountCents int64      `json:"ambassadorAmountCents"`
	LotteryAmountCents    int64      `json:"lotteryAmountCents"`
	Oversold              bool       `json:"oversold"`
}

// PurchaseCancelledEvent is emitted when a pending purchase expires or the
// checkout session is abandoned.
type PurchaseCancelledEvent struct {
	PurchaseID   uuid.UUID `json:"purchaseId"`
	CollectionID uuid.UUID `json:"collectionId"`
	BuyerID      uuid.UUID `json:"buyerId"`
	Reason       string    `json:"reason,omitempty"`
}

// ItemOversoldEvent records a settlement that matched an already-sold item.
type ItemOversoldEvent struct {
	PurchaseID   uuid.UUID `json:"purchaseId"`
	CollectionID uuid.UUID `json:"collectionId"`
	ItemID       uuid.UUID `json:"itemId"`
}

// CollectionSoldOutEvent is emitted once when the last item of a drop sells.
type CollectionSoldOutEvent struct {
	CollectionID uuid.UUID `json:"collectionId"`
	TotalItems   int       `json:"totalItems"`
}

// LotteryWinnerDrawnEvent is emitted once per collection when a winner is drawn.
type LotteryWinnerDrawnEvent struct {
	CollectionID uuid.UUID `json:"collectionId"`
	WinnerUserID uuid.UUID `json:"winnerUserId"`
	TicketID     uuid.UUID `json:"ticketId"`
	PrizeCents   int64     `json:"prizeCents"`
}

// PayoutStatusChangedEvent tracks payout state machine transitions.
type PayoutStatusChangedEvent struct {
	PayoutID     uuid.UUID `json:"payoutId"`
	CollectionID uuid.UUID `json:"collectionId"`
	UserID       uuid.UUID `json:"userId"`
	Role         string    `json:"role"`
	FromStatus   string    `json:"fromStatus"`
	ToStatus     string    `json:"toStatus"`
	AmountCents  int64     `json:"amountCents"`
	TransferID   string    `json:"transferId,omitempty"`
}
