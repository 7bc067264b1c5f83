package types

import (
	"errors"
	"fmt"
)

// AuctionStatus is the lifecycle state of an auction. Transitions are
// validated against the table below; anything else is rejected.
type AuctionStatus string

const (
	AuctionDraft     AuctionStatus = "DRAFT"
	AuctionScheduled AuctionStatus = "SCHEDULED"
	AuctionPreview   AuctionStatus = "PREVIEW"
	AuctionActive    AuctionStatus = "ACTIVE"
	AuctionExtended  AuctionStatus = "EXTENDED"
	AuctionEnded     AuctionStatus = "ENDED"
	AuctionSettling  AuctionStatus = "SETTLING"
	AuctionCompleted AuctionStatus = "COMPLETED"
	AuctionNoSale    AuctionStatus = "NO_SALE"
	AuctionCancelled AuctionStatus = "CANCELLED"
)

// BidStatus is the lifecycle state of a bid. WON, LOST, CANCELLED and
// REJECTED are terminal; a bid row is never deleted, only moved there.
type BidStatus string

const (
	BidPending   BidStatus = "PENDING"
	BidActive    BidStatus = "ACTIVE"
	BidWinning   BidStatus = "WINNING"
	BidOutbid    BidStatus = "OUTBID"
	BidWon       BidStatus = "WON"
	BidLost      BidStatus = "LOST"
	BidCancelled BidStatus = "CANCELLED"
	BidRejected  BidStatus = "REJECTED"
)

var ErrIllegalTransition = errors.New("illegal status transition")

// auctionTransitions encodes the auction state machine:
// DRAFT -> SCHEDULED -> PREVIEW -> ACTIVE <-> EXTENDED -> ENDED -> SETTLING
// -> {COMPLETED | NO_SALE}, with CANCELLED reachable from any non-terminal
// state by seller action.
var auctionTransitions = map[AuctionStatus][]AuctionStatus{
	AuctionDraft:     {AuctionScheduled, AuctionCancelled},
	AuctionScheduled: {AuctionPreview, AuctionActive, AuctionCancelled},
	AuctionPreview:   {AuctionActive, AuctionCancelled},
	AuctionActive:    {AuctionExtended, AuctionEnded, AuctionCancelled},
	AuctionExtended:  {AuctionActive, AuctionEnded, AuctionCancelled},
	AuctionEnded:     {AuctionSettling, AuctionNoSale, AuctionCancelled},
	AuctionSettling:  {AuctionCompleted, AuctionNoSale, AuctionCancelled},
	AuctionCompleted: nil,
	AuctionNoSale:    nil,
	AuctionCancelled: nil,
}

var bidTransitions = map[BidStatus][]BidStatus{
	BidPending:   {BidActive, BidWinning, BidRejected},
	BidActive:    {BidWinning, BidOutbid, BidCancelled, BidLost},
	BidWinning:   {BidOutbid, BidWon, BidLost, BidCancelled},
	BidOutbid:    {BidActive, BidWinning, BidCancelled, BidLost},
	BidWon:       nil,
	BidLost:      nil,
	BidCancelled: nil,
	BidRejected:  nil,
}

// IsTerminal reports whether no further transition is possible.
func (s AuctionStatus) IsTerminal() bool {
	return len(auctionTransitions[s]) == 0
}

// CanTransitionTo reports whether the state machine allows moving to next.
func (s AuctionStatus) CanTransitionTo(next AuctionStatus) bool {
	for _, allowed := range auctionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the bid can no longer change state.
func (s BidStatus) IsTerminal() bool {
	return len(bidTransitions[s]) == 0
}

// CanTransitionTo reports whether the bid state machine allows moving to next.
func (s BidStatus) CanTransitionTo(next BidStatus) bool {
	for _, allowed := range bidTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AcceptsBids reports whether bids may be placed or cancelled in this state.
func (s AuctionStatus) AcceptsBids() bool {
	return s == AuctionActive || s == AuctionExtended
}

// Transition moves the auction to next, rejecting anything the transition
// table does not allow.
func (a *Auction) Transition(next AuctionStatus) error {
	if !a.Status.CanTransitionTo(next) {
		return fmt.Errorf("auction %s: %s -> %s: %w", a.AuctionID, a.Status, next, ErrIllegalTransition)
	}
	a.Status = next
	return nil
}

// Transition moves the bid to next, rejecting anything the transition
// table does not allow.
func (b *Bid) Transition(next BidStatus) error {
	if !b.Status.CanTransitionTo(next) {
		return fmt.Errorf("bid %s: %s -> %s: %w", b.BidID, b.Status, next, ErrIllegalTransition)
	}
	b.Status = next
	return nil
}

// NonTerminalBidStatuses is the set used for ranking, aggregates and the
// reservation-conservation property: every bid in one of these states holds
// exactly its CashReservedCents in the cash ledger.
func NonTerminalBidStatuses() []BidStatus {
	return []BidStatus{BidPending, BidActive, BidWinning, BidOutbid}
}
