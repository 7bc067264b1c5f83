package types

import (
	"time"

	"gorm.io/gorm"
)

// AuctionKind distinguishes the sale formats. Only committed-offers
// auctions are implemented; the remaining kinds are reserved and rejected
// at creation time.
type AuctionKind string

const (
	KindCommittedOffers AuctionKind = "COMMITTED_OFFERS"
	KindSealedBid       AuctionKind = "SEALED_BID"
	KindEnglish         AuctionKind = "ENGLISH"
	KindDutch           AuctionKind = "DUTCH"
)

// Auction is one scheduled sale of a fixed quantity of offering shares.
type Auction struct {
	gorm.Model `json:"-"`
	AuctionID  string        `gorm:"uniqueIndex" json:"auction_id"`
	SellerID   string        `json:"seller_id"`
	OfferingID string        `json:"offering_id"`
	Kind       AuctionKind   `json:"kind"`
	Status     AuctionStatus `json:"status"`

	StartingPriceCents int64  `json:"starting_price_cents"`
	ReservePriceCents  *int64 `json:"reserve_price_cents,omitempty"`
	BuyNowPriceCents   *int64 `json:"buy_now_price_cents,omitempty"`
	QuantityOffered    int64  `json:"quantity_offered"`

	VisibleFrom    time.Time  `json:"visible_from"`
	BiddingOpensAt time.Time  `json:"bidding_opens_at"`
	ScheduledEnd   time.Time  `json:"scheduled_end"`
	ActualEnd      *time.Time `json:"actual_end,omitempty"`

	// Anti-sniping policy: a qualifying bid inside the trailing threshold
	// window pushes ScheduledEnd out by ExtensionDurationSecs, at most
	// MaxExtensions times.
	ExtensionEnabled       bool `json:"extension_enabled"`
	ExtensionThresholdSecs int  `json:"extension_threshold_secs"`
	ExtensionDurationSecs  int  `json:"extension_duration_secs"`
	MaxExtensions          int  `json:"max_extensions"`
	ExtensionsUsed         int  `json:"extensions_used"`

	// Denormalized off the live bid set; recomputed inside the per-auction
	// critical section on every accepted bid and cancellation.
	CurrentHighBidCents int64 `json:"current_high_bid_cents"`
	BidCount            int64 `json:"bid_count"`
	TotalCommittedCents int64 `json:"total_committed_cents"`
	UniqueBidders       int64 `json:"unique_bidders"`
	ReserveMet          bool  `json:"reserve_met"`

	// BidSequence is the per-auction arrival counter; it gives bids a
	// stable, deterministic ordering key for ties in arrival time.
	BidSequence int64 `json:"-"`

	// Settlement outcome, cached so repeated settle calls are no-ops.
	WinningBidID    *string `json:"winning_bid_id,omitempty"`
	WinnerID        *string `json:"winner_id,omitempty"`
	FinalPriceCents *int64  `json:"final_price_cents,omitempty"`
	TradeID         *string `json:"trade_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Bid is one bidder's standing commitment against one auction. At most one
// non-terminal bid exists per (auction, bidder); a new bid from the same
// bidder replaces the prior one.
type Bid struct {
	gorm.Model        `json:"-"`
	BidID             string    `gorm:"uniqueIndex" json:"bid_id"`
	AuctionID         string    `gorm:"index" json:"auction_id"`
	BidderID          string    `gorm:"index" json:"bidder_id"`
	Status            BidStatus `json:"status"`
	AmountCents       int64     `json:"amount_cents"`
	Quantity          int64     `json:"quantity"`
	ProxyCeilingCents *int64    `json:"proxy_ceiling_cents,omitempty"`
	IsVisible         bool      `json:"is_visible"`

	// Cash held against this bid and the reference under which the cash
	// ledger holds it. The reservation never outlives the bid: it is
	// released on replace, cancel, loss or settlement, exactly once.
	CashReservedCents int64  `json:"cash_reserved_cents"`
	ReservationID     string `json:"reservation_id"`

	// Sequence is the per-auction arrival order, assigned under the
	// auction lock. Amount descending then sequence ascending is the total
	// ranking order.
	Sequence int64 `json:"sequence"`

	OutbidAt  *time.Time `json:"outbid_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
