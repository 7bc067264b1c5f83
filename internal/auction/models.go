package auction

import (
	"errors"
	"time"
)

// Typed rejection reasons, per the error taxonomy: validation and resource
// errors mutate nothing and are returned synchronously.
var (
	ErrAuctionNotFound         = errors.New("auction not found")
	ErrAuctionNotAcceptingBids = errors.New("auction is not accepting bids")
	ErrBidTooLow               = errors.New("bid must exceed the current high bid and meet the starting price")
	ErrInsufficientFunds       = errors.New("insufficient available funds for bid commitment")
	ErrUnsupportedKind         = errors.New("auction kind not supported")
	ErrInvalidSchedule         = errors.New("auction schedule is invalid")
	ErrInvalidQuantity         = errors.New("quantity must be positive and within the offered amount")
	ErrBidNotFound             = errors.New("bid not found")
	ErrNotBidOwner             = errors.New("only the bidder may cancel their bid")
	ErrBidNotCancellable       = errors.New("bid can no longer be cancelled")
	ErrCannotCancelWinning     = errors.New("winning bid cannot be cancelled inside the final hour")
	ErrNotSeller               = errors.New("only the seller may modify the auction")
)

// CreateAuctionRequest is the payload for creating a draft auction.
type CreateAuctionRequest struct {
	OfferingID         string `json:"offering_id" binding:"required"`
	Kind               string `json:"kind" binding:"required"`
	StartingPriceCents int64  `json:"starting_price_cents" binding:"required"`
	ReservePriceCents  *int64 `json:"reserve_price_cents"`
	BuyNowPriceCents   *int64 `json:"buy_now_price_cents"`
	QuantityOffered    int64  `json:"quantity_offered" binding:"required"`

	VisibleFrom    time.Time `json:"visible_from" binding:"required"`
	BiddingOpensAt time.Time `json:"bidding_opens_at" binding:"required"`
	ScheduledEnd   time.Time `json:"scheduled_end" binding:"required"`

	ExtensionEnabled       bool `json:"extension_enabled"`
	ExtensionThresholdSecs int  `json:"extension_threshold_secs"`
	ExtensionDurationSecs  int  `json:"extension_duration_secs"`
	MaxExtensions          int  `json:"max_extensions"`
}

// PlaceBidRequest is the payload for placing or replacing a bid.
type PlaceBidRequest struct {
	AmountCents       int64  `json:"amount_cents" binding:"required"`
	Quantity          int64  `json:"quantity" binding:"required"`
	ProxyCeilingCents *int64 `json:"proxy_ceiling_cents"`
	Visible           *bool  `json:"visible"`
}

// PlaceBidResult is returned to the bidder after an accepted bid.
type PlaceBidResult struct {
	BidID             string `json:"bid_id"`
	IsHighBid         bool   `json:"is_high_bid"`
	CashReservedCents int64  `json:"cash_reserved_cents"`
}

// StackBid is one visible entry of the public bid stack. The display label
// is pseudonymous and stable per (auction, bidder); hidden bids contribute
// to the aggregates only.
type StackBid struct {
	DisplayLabel string    `json:"display_label"`
	AmountCents  int64     `json:"amount_cents"`
	Quantity     int64     `json:"quantity"`
	Status       string    `json:"status"`
	PlacedAt     time.Time `json:"placed_at"`
}

// BidStack is the read-only public projection of an auction's committed
// offers: "N committed offers totaling $X".
type BidStack struct {
	AuctionID           string     `json:"auction_id"`
	Count               int64      `json:"count"`
	TotalCommittedCents int64      `json:"total_committed_cents"`
	HighBidCents        int64      `json:"high_bid_cents"`
	ReserveMet          bool       `json:"reserve_met"`
	VisibleBids         []StackBid `json:"visible_bids"`
}
