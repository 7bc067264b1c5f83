package transfer

import (
	"time"

	"gorm.io/gorm"
)

// Trade is the record of one completed ownership change. Exactly one trade
// exists per completed auction.
type Trade struct {
	gorm.Model `json:"-"`
	TradeID    string    `gorm:"uniqueIndex" json:"trade_id"`
	OfferingID string    `gorm:"index" json:"offering_id"`
	SellerID   string    `json:"seller_id"`
	BuyerID    string    `json:"buyer_id"`
	Quantity   int64     `json:"quantity"`
	PriceCents int64     `json:"price_cents"`
	CreatedAt  time.Time `json:"created_at"`
}

// Position is an account's share holding in one offering.
type Position struct {
	gorm.Model `json:"-"`
	AccountID  string    `gorm:"index:idx_positions_account_offering" json:"account_id"`
	OfferingID string    `gorm:"index:idx_positions_account_offering" json:"offering_id"`
	Shares     int64     `json:"shares"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
