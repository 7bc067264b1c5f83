package settlement

import (
	"errors"
	"time"
)

var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrNotSettleable   = errors.New("auction is not ready for settlement")
)

// Settlement outcomes.
const (
	ResultCompleted = "COMPLETED"
	ResultNoSale    = "NO_SALE"
)

// SettlementResult is the outcome of a settle call. For an auction that is
// already settled it is rebuilt from the cached fields, so repeated calls
// return the same trade.
type SettlementResult struct {
	AuctionID       string     `json:"auction_id"`
	Result          string     `json:"result"`
	WinnerID        string     `json:"winner_id,omitempty"`
	WinningBidID    string     `json:"winning_bid_id,omitempty"`
	FinalPriceCents int64      `json:"final_price_cents,omitempty"`
	Quantity        int64      `json:"quantity,omitempty"`
	TradeID         string     `json:"trade_id,omitempty"`
	SettledAt       *time.Time `json:"settled_at,omitempty"`
}
