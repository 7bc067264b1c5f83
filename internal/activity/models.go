package activity

import (
	"time"

	"gorm.io/gorm"
)

// Event types, one per auction state transition or bid event.
const (
	EventAuctionCreated      = "auction_created"
	EventAuctionPublished    = "auction_published"
	EventAuctionPreview      = "auction_preview"
	EventAuctionActivated    = "auction_activated"
	EventBidPlaced           = "bid_placed"
	EventBidUpdated          = "bid_updated"
	EventBidCancelled        = "bid_cancelled"
	EventBidOutbid           = "bid_outbid"
	EventAuctionExtended     = "auction_extended"
	EventReserveMet          = "reserve_met"
	EventAuctionEnded        = "auction_ended"
	EventReserveNotMet       = "reserve_not_met"
	EventSettlementCompleted = "settlement_completed"
	EventAuctionCancelled    = "auction_cancelled"
)

// Entry is one append-only activity fact. Entries are never updated or
// deleted; the table is the source of record for dispute resolution.
type Entry struct {
	gorm.Model `json:"-"`
	EntryID    string    `gorm:"uniqueIndex" json:"entry_id"`
	AuctionID  string    `gorm:"index" json:"auction_id"`
	BidID      string    `json:"bid_id,omitempty"`
	EventType  string    `json:"event_type"`
	ActorID    string    `json:"actor_id"`
	Detail     string    `json:"detail,omitempty"` // JSON before/after values
	CreatedAt  time.Time `json:"created_at"`
}
