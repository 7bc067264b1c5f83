package ledger

import (
	"time"

	"gorm.io/gorm"
)

const (
	ReservationHeld     = "HELD"
	ReservationReleased = "RELEASED"
)

// Account is a bidder's or seller's cash account. AvailableCents is
// derived: balance minus the sum of held reservations.
type Account struct {
	gorm.Model   `json:"-"`
	AccountID    string    `gorm:"uniqueIndex" json:"account_id"`
	BalanceCents int64     `json:"balance_cents"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CashReservation is one hold placed against an account. Reference ties
// the hold back to the bid that owns it; releases are idempotent per
// reference.
type CashReservation struct {
	gorm.Model    `json:"-"`
	ReservationID string    `gorm:"uniqueIndex" json:"reservation_id"`
	AccountID     string    `gorm:"index" json:"account_id"`
	AmountCents   int64     `json:"amount_cents"`
	Status        string    `json:"status"` // HELD, RELEASED
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// FundsTransfer records one settled movement of cash between accounts.
// The unique reference makes transfers idempotent: settlement retries find
// the existing row and skip the balance movement.
type FundsTransfer struct {
	gorm.Model    `json:"-"`
	Reference     string    `gorm:"uniqueIndex" json:"reference"`
	FromAccountID string    `json:"from_account_id"`
	ToAccountID   string    `json:"to_account_id"`
	AmountCents   int64     `json:"amount_cents"`
	CreatedAt     time.Time `json:"created_at"`
}

// AccountSummary is the read projection returned to callers.
type AccountSummary struct {
	AccountID      string `json:"account_id"`
	BalanceCents   int64  `json:"balance_cents"`
	HeldCents      int64  `json:"held_cents"`
	AvailableCents int64  `json:"available_cents"`
}
