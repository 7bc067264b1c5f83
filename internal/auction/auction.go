package auction

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/motorline/auction-api/internal/activity"
	"github.com/motorline/auction-api/internal/ledger"
	"github.com/motorline/auction-api/internal/types"
	"github.com/motorline/auction-api/pkg/response"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// cancelCutoff is how close to the scheduled end a winning bid may no
// longer be withdrawn.
const cancelCutoff = time.Hour

// Service is the bid ledger: it owns the set of committed bids per auction
// and serializes, per auction, the reserve -> upsert -> re-rank ->
// aggregates -> extension sequence.
type Service struct {
	db         *Database
	cash       ledger.CashLedger
	activity   *activity.Service
	locks      *LockTable
	commission decimal.Decimal
}

// NewService creates the bid ledger. commissionRate is the marketplace fee
// fraction added on top of every cash commitment (e.g. 0.05 for 5%).
func NewService(gormDB *gorm.DB, cash ledger.CashLedger, activitySvc *activity.Service, locks *LockTable, commissionRate float64) *Service {
	return &Service{
		db:         NewDatabase(gormDB),
		cash:       cash,
		activity:   activitySvc,
		locks:      locks,
		commission: decimal.NewFromFloat(commissionRate),
	}
}

// DB exposes the auction database to the settlement engine.
func (s *Service) DB() *Database {
	return s.db
}

// reservedAmount is the cash committed for a bid: amount x quantity x
// (1 + commission), rounded half-up to the cent.
func (s *Service) reservedAmount(amountCents, quantity int64) int64 {
	gross := decimal.NewFromInt(amountCents).
		Mul(decimal.NewFromInt(quantity)).
		Mul(decimal.NewFromInt(1).Add(s.commission))
	return gross.Round(0).IntPart()
}

// CreateAuction creates a draft auction owned by the seller. Only
// committed-offers auctions are supported; the other kinds are reserved.
func (s *Service) CreateAuction(req *CreateAuctionRequest, sellerID string) (*types.Auction, error) {
	kind := types.AuctionKind(strings.ToUpper(req.Kind))
	switch kind {
	case types.KindCommittedOffers:
	case types.KindSealedBid, types.KindEnglish, types.KindDutch:
		return nil, fmt.Errorf("%s: %w", kind, ErrUnsupportedKind)
	default:
		return nil, fmt.Errorf("%q: %w", req.Kind, ErrUnsupportedKind)
	}

	if req.QuantityOffered <= 0 {
		return nil, ErrInvalidQuantity
	}
	if req.StartingPriceCents <= 0 {
		return nil, fmt.Errorf("starting price must be positive: %w", ErrInvalidSchedule)
	}
	if !req.VisibleFrom.Before(req.ScheduledEnd) || !req.BiddingOpensAt.Before(req.ScheduledEnd) {
		return nil, fmt.Errorf("bidding window must close after it opens: %w", ErrInvalidSchedule)
	}
	if req.BiddingOpensAt.Before(req.VisibleFrom) {
		return nil, fmt.Errorf("bidding cannot open before the auction is visible: %w", ErrInvalidSchedule)
	}

	auction := &types.Auction{
		AuctionID:          "AUC_" + uuid.New().String(),
		SellerID:           sellerID,
		OfferingID:         req.OfferingID,
		Kind:               kind,
		Status:             types.AuctionDraft,
		StartingPriceCents: req.StartingPriceCents,
		ReservePriceCents:  req.ReservePriceCents,
		BuyNowPriceCents:   req.BuyNowPriceCents,
		QuantityOffered:    req.QuantityOffered,
		VisibleFrom:        req.VisibleFrom,
		BiddingOpensAt:     req.BiddingOpensAt,
		ScheduledEnd:       req.ScheduledEnd,

		ExtensionEnabled:       req.ExtensionEnabled,
		ExtensionThresholdSecs: req.ExtensionThresholdSecs,
		ExtensionDurationSecs:  req.ExtensionDurationSecs,
		MaxExtensions:          req.MaxExtensions,

		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := s.db.CreateAuction(auction); err != nil {
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}

	s.activity.Record(auction.AuctionID, "", activity.EventAuctionCreated, sellerID, gin.H{
		"offering_id":          auction.OfferingID,
		"starting_price_cents": auction.StartingPriceCents,
		"quantity_offered":     auction.QuantityOffered,
	})

	log.Info().
		Str("auction_id", auction.AuctionID).
		Str("seller_id", sellerID).
		Str("offering_id", auction.OfferingID).
		Str("service", "auction").
		Msg("auction created")

	return auction, nil
}

// PublishAuction moves a draft onto the schedule. From here the lifecycle
// is time-driven: the processor opens the preview and bidding windows.
func (s *Service) PublishAuction(auctionID, sellerID string) (*types.Auction, error) {
	s.locks.Lock(auctionID)
	defer s.locks.Unlock(auctionID)

	auction, err := s.db.GetAuction(auctionID)
	if err != nil {
		return nil, err
	}
	if auction == nil {
		return nil, ErrAuctionNotFound
	}
	if auction.SellerID != sellerID {
		return nil, ErrNotSeller
	}

	if err := auction.Transition(types.AuctionScheduled); err != nil {
		return nil, err
	}
	auction.UpdatedAt = time.Now()
	if err := s.db.UpdateAuction(auction); err != nil {
		return nil, fmt.Errorf("failed to publish auction: %w", err)
	}

	s.activity.Record(auctionID, "", activity.EventAuctionPublished, sellerID, nil)
	return auction, nil
}

// GetAuction retrieves an auction by ID.
func (s *Service) GetAuction(auctionID string) (*types.Auction, error) {
	auction, err := s.db.GetAuction(auctionID)
	if err != nil {
		return nil, err
	}
	if auction == nil {
		return nil, ErrAuctionNotFound
	}
	return auction, nil
}

// AuctionActivity returns the auction's audit timeline, oldest first.
func (s *Service) AuctionActivity(auctionID string) ([]activity.Entry, error) {
	return s.activity.ListForAuction(auctionID)
}

// PlaceBid places or replaces a committed bid. The whole sequence runs
// under the auction's lock: release the prior reservation on replace,
// reserve the new commitment, upsert the bid, re-rank, recompute the
// auction aggregates, then evaluate the anti-sniping extension.
func (s *Service) PlaceBid(auctionID, bidderID string, req *PlaceBidRequest) (*PlaceBidResult, error) {
	s.locks.Lock(auctionID)
	defer s.locks.Unlock(auctionID)

	now := time.Now()
	logger := log.With().
		Str("auction_id", auctionID).
		Str("bidder_id", bidderID).
		Int64("amount_cents", req.AmountCents).
		Str("service", "auction").
		Logger()

	auction, err := s.db.GetAuction(auctionID)
	if err != nil {
		return nil, err
	}
	if auction == nil {
		return nil, ErrAuctionNotFound
	}
	if !auction.Status.AcceptsBids() {
		return nil, fmt.Errorf("auction is %s: %w", auction.Status, ErrAuctionNotAcceptingBids)
	}
	if req.Quantity <= 0 || req.Quantity > auction.QuantityOffered {
		return nil, ErrInvalidQuantity
	}
	if req.AmountCents < auction.StartingPriceCents {
		return nil, fmt.Errorf("amount below starting price %d: %w", auction.StartingPriceCents, ErrBidTooLow)
	}
	// Ties do not qualify: the increase over the standing high bid is strict.
	if req.AmountCents <= auction.CurrentHighBidCents {
		return nil, fmt.Errorf("amount does not exceed current high bid %d: %w", auction.CurrentHighBidCents, ErrBidTooLow)
	}

	existing, err := s.db.GetOpenBid(auctionID, bidderID)
	if err != nil {
		return nil, err
	}
	if existing != nil && req.AmountCents <= existing.AmountCents {
		return nil, fmt.Errorf("replacement must exceed own standing bid %d: %w", existing.AmountCents, ErrBidTooLow)
	}

	// Release the prior commitment before reserving the new one, so the
	// bidder's funds are never double-held across a replacement.
	if existing != nil {
		if err := s.cash.Release(bidderID, existing.CashReservedCents, existing.ReservationID); err != nil {
			return nil, fmt.Errorf("failed to release prior reservation: %w", err)
		}
	}

	reserved := s.reservedAmount(req.AmountCents, req.Quantity)
	reservationID := "RSV_" + uuid.New().String()
	ok, err := s.cash.Reserve(bidderID, reserved, reservationID)
	if err != nil {
		s.restorePriorReservation(auction, existing, logger)
		return nil, fmt.Errorf("cash reservation failed: %w", err)
	}
	if !ok {
		s.restorePriorReservation(auction, existing, logger)
		logger.Warn().Int64("reserved_cents", reserved).Msg("bid rejected, insufficient funds")
		return nil, ErrInsufficientFunds
	}

	// From here the new reservation exists; any failure must release it so
	// no hold ever outlives its bid row.
	abort := func(cause error) (*PlaceBidResult, error) {
		if relErr := s.cash.Release(bidderID, reserved, reservationID); relErr != nil {
			logger.Error().Err(relErr).Str("reservation_id", reservationID).
				Msg("failed to release reservation while aborting bid")
		}
		s.restorePriorReservation(auction, existing, logger)
		return nil, cause
	}

	auction.BidSequence++

	isUpdate := existing != nil
	var bid *types.Bid
	if isUpdate {
		bid = existing
		bid.AmountCents = req.AmountCents
		bid.Quantity = req.Quantity
		bid.ProxyCeilingCents = req.ProxyCeilingCents
		bid.CashReservedCents = reserved
		bid.ReservationID = reservationID
		bid.Sequence = auction.BidSequence
		bid.OutbidAt = nil
		bid.UpdatedAt = now
		if req.Visible != nil {
			bid.IsVisible = *req.Visible
		}
	} else {
		visible := true
		if req.Visible != nil {
			visible = *req.Visible
		}
		bid = &types.Bid{
			BidID:             "BID_" + uuid.New().String(),
			AuctionID:         auctionID,
			BidderID:          bidderID,
			Status:            types.BidPending,
			AmountCents:       req.AmountCents,
			Quantity:          req.Quantity,
			ProxyCeilingCents: req.ProxyCeilingCents,
			IsVisible:         visible,
			CashReservedCents: reserved,
			ReservationID:     reservationID,
			Sequence:          auction.BidSequence,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
	}

	others, err := s.db.GetOpenBids(auctionID)
	if err != nil {
		return abort(err)
	}
	// Replace the bidder's stale row with the in-memory bid for ranking.
	ranked := make([]*types.Bid, 0, len(others)+1)
	for i := range others {
		if others[i].BidID == bid.BidID {
			continue
		}
		ranked = append(ranked, &others[i])
	}
	ranked = append(ranked, bid)

	outbidden, err := rerank(ranked, now)
	if err != nil {
		return abort(err)
	}
	recomputeAggregates(auction, ranked)

	reserveJustMet := false
	if auction.ReservePriceCents != nil && !auction.ReserveMet &&
		auction.CurrentHighBidCents >= *auction.ReservePriceCents {
		auction.ReserveMet = true
		reserveJustMet = true
	}

	// Buy-now short-circuits the schedule: the window closes immediately
	// with this bid winning, ready for settlement.
	boughtNow := auction.BuyNowPriceCents != nil && req.AmountCents >= *auction.BuyNowPriceCents
	extension := ExtensionDecision{}
	if boughtNow {
		auction.ScheduledEnd = now
		auction.ActualEnd = &now
		if err := auction.Transition(types.AuctionEnded); err != nil {
			return abort(err)
		}
	} else {
		extension = EvaluateExtension(auction, now)
		if extension.Extend {
			auction.ScheduledEnd = extension.NewEnd
			auction.ExtensionsUsed = extension.ExtensionsUsed
			if auction.Status == types.AuctionActive {
				if err := auction.Transition(types.AuctionExtended); err != nil {
					return abort(err)
				}
			}
		}
	}

	auction.UpdatedAt = now
	changed := make([]types.Bid, 0, len(ranked)-1)
	for _, other := range ranked {
		if other.BidID == bid.BidID {
			continue
		}
		changed = append(changed, *other)
	}
	if err := s.db.SaveBidAndAuction(bid, auction, changed); err != nil {
		return abort(fmt.Errorf("failed to persist bid: %w", err))
	}

	// Audit facts sit outside the transactional boundary: downstream
	// notification feeds consume them, and a failed append never unwinds
	// the accepted bid.
	eventType := activity.EventBidPlaced
	if isUpdate {
		eventType = activity.EventBidUpdated
	}
	s.activity.Record(auctionID, bid.BidID, eventType, bidderID, gin.H{
		"amount_cents":        bid.AmountCents,
		"quantity":            bid.Quantity,
		"cash_reserved_cents": bid.CashReservedCents,
	})
	for _, outbid := range outbidden {
		s.activity.Record(auctionID, outbid.BidID, activity.EventBidOutbid, bidderID, gin.H{
			"outbid_by_cents": bid.AmountCents,
			"bidder_id":       outbid.BidderID,
		})
	}
	if reserveJustMet {
		s.activity.Record(auctionID, bid.BidID, activity.EventReserveMet, bidderID, gin.H{
			"reserve_price_cents": *auction.ReservePriceCents,
			"high_bid_cents":      auction.CurrentHighBidCents,
		})
	}
	if extension.Extend {
		s.activity.Record(auctionID, bid.BidID, activity.EventAuctionExtended, bidderID, gin.H{
			"new_end":         auction.ScheduledEnd,
			"extensions_used": auction.ExtensionsUsed,
		})
	}
	if boughtNow {
		s.activity.Record(auctionID, bid.BidID, activity.EventAuctionEnded, bidderID, gin.H{
			"reason": "buy_now",
		})
	}

	logger.Info().
		Str("bid_id", bid.BidID).
		Int64("reserved_cents", reserved).
		Bool("extended", extension.Extend).
		Msg("bid accepted")

	return &PlaceBidResult{
		BidID:             bid.BidID,
		IsHighBid:         bid.Status == types.BidWinning,
		CashReservedCents: reserved,
	}, nil
}

// restorePriorReservation re-establishes the reservation released at the
// start of a replacement whose new reservation never materialized, keeping
// "no bid without backing cash" true on the abort path. If the funds were
// taken in the meantime by activity on another auction, the stale bid is
// withdrawn instead.
func (s *Service) restorePriorReservation(auction *types.Auction, existing *types.Bid, logger zerolog.Logger) {
	if existing == nil {
		return
	}
	ok, err := s.cash.Reserve(existing.BidderID, existing.CashReservedCents, existing.ReservationID)
	if err == nil && ok {
		return
	}
	logger.Warn().Err(err).
		Str("bid_id", existing.BidID).
		Msg("could not restore prior reservation, withdrawing stale bid")

	if terr := existing.Transition(types.BidCancelled); terr != nil {
		logger.Error().Err(terr).Str("bid_id", existing.BidID).Msg("failed to withdraw stale bid")
		return
	}
	existing.UpdatedAt = time.Now()
	others, err := s.db.GetOpenBids(auction.AuctionID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to re-rank after stale bid withdrawal")
		return
	}
	ranked := make([]*types.Bid, 0, len(others))
	for i := range others {
		if others[i].BidID == existing.BidID {
			continue
		}
		ranked = append(ranked, &others[i])
	}
	if _, err := rerank(ranked, time.Now()); err != nil {
		logger.Error().Err(err).Msg("failed to re-rank after stale bid withdrawal")
		return
	}
	recomputeAggregates(auction, ranked)
	changed := make([]types.Bid, 0, len(ranked))
	for _, b := range ranked {
		changed = append(changed, *b)
	}
	if err := s.db.SaveBidAndAuction(existing, auction, changed); err != nil {
		logger.Error().Err(err).Msg("failed to persist stale bid withdrawal")
	}
}

// outbidBid identifies a bid knocked off the top by a re-rank.
type outbidBid struct {
	BidID    string
	BidderID string
}

// rerank assigns the single WINNING slot to the ranking maximum and stamps
// any displaced winner OUTBID. ranked must already be ordered amount
// descending, sequence ascending.
func rerank(ranked []*types.Bid, now time.Time) ([]outbidBid, error) {
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].AmountCents != ranked[j].AmountCents {
			return ranked[i].AmountCents > ranked[j].AmountCents
		}
		return ranked[i].Sequence < ranked[j].Sequence
	})

	var outbid []outbidBid
	for i, bid := range ranked {
		if i == 0 {
			if bid.Status != types.BidWinning {
				if err := bid.Transition(types.BidWinning); err != nil {
					return nil, err
				}
				bid.UpdatedAt = now
			}
			continue
		}
		switch bid.Status {
		case types.BidWinning:
			if err := bid.Transition(types.BidOutbid); err != nil {
				return nil, err
			}
			stamp := now
			bid.OutbidAt = &stamp
			bid.UpdatedAt = now
			outbid = append(outbid, outbidBid{BidID: bid.BidID, BidderID: bid.BidderID})
		case types.BidPending:
			if err := bid.Transition(types.BidActive); err != nil {
				return nil, err
			}
			bid.UpdatedAt = now
		}
	}
	return outbid, nil
}

// recomputeAggregates refreshes the auction's denormalized stats from the
// live bid set.
func recomputeAggregates(auction *types.Auction, ranked []*types.Bid) {
	auction.BidCount = int64(len(ranked))
	auction.TotalCommittedCents = 0
	auction.CurrentHighBidCents = 0
	bidders := make(map[string]struct{}, len(ranked))
	for i, bid := range ranked {
		if i == 0 {
			auction.CurrentHighBidCents = bid.AmountCents
		}
		auction.TotalCommittedCents += bid.AmountCents * bid.Quantity
		bidders[bid.BidderID] = struct{}{}
	}
	auction.UniqueBidders = int64(len(bidders))
}

// CancelBid withdraws the requester's own non-terminal bid. A winning bid
// cannot be pulled inside the final hour of the auction, which keeps
// consequence-free high-bid withdrawal off the table.
func (s *Service) CancelBid(bidID, requesterID string) error {
	bid, err := s.db.GetBid(bidID)
	if err != nil {
		return err
	}
	if bid == nil {
		return ErrBidNotFound
	}

	s.locks.Lock(bid.AuctionID)
	defer s.locks.Unlock(bid.AuctionID)

	// Re-read under the lock; status may have moved.
	bid, err = s.db.GetBid(bidID)
	if err != nil {
		return err
	}
	if bid == nil {
		return ErrBidNotFound
	}
	if bid.BidderID != requesterID {
		return ErrNotBidOwner
	}
	if bid.Status.IsTerminal() {
		return ErrBidNotCancellable
	}

	auction, err := s.db.GetAuction(bid.AuctionID)
	if err != nil {
		return err
	}
	if auction == nil {
		return ErrAuctionNotFound
	}
	if !auction.Status.AcceptsBids() {
		return fmt.Errorf("auction is %s: %w", auction.Status, ErrBidNotCancellable)
	}

	now := time.Now()
	if bid.Status == types.BidWinning && now.After(auction.ScheduledEnd.Add(-cancelCutoff)) {
		return ErrCannotCancelWinning
	}

	if err := s.cash.Release(bid.BidderID, bid.CashReservedCents, bid.ReservationID); err != nil {
		return fmt.Errorf("failed to release reservation: %w", err)
	}

	if err := bid.Transition(types.BidCancelled); err != nil {
		return err
	}
	bid.UpdatedAt = now

	others, err := s.db.GetOpenBids(bid.AuctionID)
	if err != nil {
		return err
	}
	ranked := make([]*types.Bid, 0, len(others))
	for i := range others {
		if others[i].BidID == bid.BidID {
			continue
		}
		ranked = append(ranked, &others[i])
	}
	if _, err := rerank(ranked, now); err != nil {
		return err
	}
	recomputeAggregates(auction, ranked)
	auction.UpdatedAt = now

	changed := make([]types.Bid, 0, len(ranked))
	for _, other := range ranked {
		changed = append(changed, *other)
	}
	if err := s.db.SaveBidAndAuction(bid, auction, changed); err != nil {
		return fmt.Errorf("failed to persist bid cancellation: %w", err)
	}

	s.activity.Record(bid.AuctionID, bid.BidID, activity.EventBidCancelled, requesterID, gin.H{
		"amount_cents": bid.AmountCents,
	})

	log.Info().
		Str("auction_id", bid.AuctionID).
		Str("bid_id", bid.BidID).
		Str("bidder_id", requesterID).
		Str("service", "auction").
		Msg("bid cancelled")
	return nil
}

// CancelAuction is the seller's withdrawal of a sale that has not ended.
// Every live commitment is released.
func (s *Service) CancelAuction(auctionID, sellerID string) error {
	s.locks.Lock(auctionID)
	defer s.locks.Unlock(auctionID)

	auction, err := s.db.GetAuction(auctionID)
	if err != nil {
		return err
	}
	if auction == nil {
		return ErrAuctionNotFound
	}
	if auction.SellerID != sellerID {
		return ErrNotSeller
	}
	switch auction.Status {
	case types.AuctionEnded, types.AuctionSettling:
		// Settlement owns the auction from here.
		return fmt.Errorf("auction is %s: %w", auction.Status, types.ErrIllegalTransition)
	}
	if err := auction.Transition(types.AuctionCancelled); err != nil {
		return err
	}

	now := time.Now()
	bids, err := s.db.GetOpenBids(auctionID)
	if err != nil {
		return err
	}
	for i := range bids {
		bid := &bids[i]
		if err := s.cash.Release(bid.BidderID, bid.CashReservedCents, bid.ReservationID); err != nil {
			return fmt.Errorf("failed to release reservation for bid %s: %w", bid.BidID, err)
		}
		if err := bid.Transition(types.BidCancelled); err != nil {
			return err
		}
		bid.UpdatedAt = now
	}

	auction.CurrentHighBidCents = 0
	auction.BidCount = 0
	auction.TotalCommittedCents = 0
	auction.UniqueBidders = 0
	auction.UpdatedAt = now

	if err := s.db.SaveBidAndAuction(nil, auction, bids); err != nil {
		return fmt.Errorf("failed to persist auction cancellation: %w", err)
	}

	s.activity.Record(auctionID, "", activity.EventAuctionCancelled, sellerID, gin.H{
		"released_bids": len(bids),
	})
	return nil
}

// GetBidStack is the public projection of an auction's committed offers.
// Aggregates cover every live bid; the listing shows only visible ones,
// highest first, under pseudonymous labels.
func (s *Service) GetBidStack(auctionID string) (*BidStack, error) {
	auction, err := s.db.GetAuction(auctionID)
	if err != nil {
		return nil, err
	}
	if auction == nil {
		return nil, ErrAuctionNotFound
	}

	bids, err := s.db.GetOpenBids(auctionID)
	if err != nil {
		return nil, err
	}

	stack := &BidStack{
		AuctionID:           auctionID,
		Count:               auction.BidCount,
		TotalCommittedCents: auction.TotalCommittedCents,
		HighBidCents:        auction.CurrentHighBidCents,
		ReserveMet:          auction.ReserveMet,
		VisibleBids:         make([]StackBid, 0, len(bids)),
	}
	for _, bid := range bids {
		if !bid.IsVisible {
			continue
		}
		stack.VisibleBids = append(stack.VisibleBids, StackBid{
			DisplayLabel: displayLabel(auctionID, bid.BidderID),
			AmountCents:  bid.AmountCents,
			Quantity:     bid.Quantity,
			Status:       string(bid.Status),
			PlacedAt:     bid.UpdatedAt,
		})
	}
	return stack, nil
}

// displayLabel pseudonymizes a bidder within one auction; it is stable so
// repeated stack reads attribute bids consistently without leaking the
// account identity.
func displayLabel(auctionID, bidderID string) string {
	sum := sha256.Sum256([]byte(auctionID + ":" + bidderID))
	return "Bidder-" + strings.ToUpper(hex.EncodeToString(sum[:4]))
}

// SweepWindows applies the time-driven lifecycle transitions: scheduled
// auctions become visible, visible auctions open for bidding, and open
// auctions past their (possibly extended) end close with ActualEnd set
// exactly once.
func (s *Service) SweepWindows(now time.Time) error {
	auctions, err := s.db.ListAuctionsByStatus(
		types.AuctionScheduled, types.AuctionPreview,
		types.AuctionActive, types.AuctionExtended,
	)
	if err != nil {
		return err
	}

	for i := range auctions {
		if err := s.sweepOne(auctions[i].AuctionID, now); err != nil {
			log.Error().Err(err).
				Str("auction_id", auctions[i].AuctionID).
				Str("service", "auction").
				Msg("window sweep failed for auction")
		}
	}
	return nil
}

func (s *Service) sweepOne(auctionID string, now time.Time) error {
	s.locks.Lock(auctionID)
	defer s.locks.Unlock(auctionID)

	auction, err := s.db.GetAuction(auctionID)
	if err != nil || auction == nil {
		return err
	}

	changedEvent := ""
	switch auction.Status {
	case types.AuctionScheduled:
		if !now.Before(auction.BiddingOpensAt) {
			if err := auction.Transition(types.AuctionActive); err != nil {
				return err
			}
			changedEvent = activity.EventAuctionActivated
		} else if !now.Before(auction.VisibleFrom) {
			if err := auction.Transition(types.AuctionPreview); err != nil {
				return err
			}
			changedEvent = activity.EventAuctionPreview
		}
	case types.AuctionPreview:
		if !now.Before(auction.BiddingOpensAt) {
			if err := auction.Transition(types.AuctionActive); err != nil {
				return err
			}
			changedEvent = activity.EventAuctionActivated
		}
	case types.AuctionActive, types.AuctionExtended:
		if !now.Before(auction.ScheduledEnd) {
			if err := auction.Transition(types.AuctionEnded); err != nil {
				return err
			}
			if auction.ActualEnd == nil {
				end := now
				auction.ActualEnd = &end
			}
			changedEvent = activity.EventAuctionEnded
		}
	}

	if changedEvent == "" {
		return nil
	}

	auction.UpdatedAt = now
	if err := s.db.UpdateAuction(auction); err != nil {
		return err
	}
	s.activity.Record(auctionID, "", changedEvent, "system", nil)
	return nil
}

// GinHandlers contains HTTP handlers for auction and bidding endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for auction endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// clientID pulls the authenticated caller out of the request context.
func clientID(c *gin.Context) string {
	return c.GetString("clientID")
}

// CreateAuctionHandler handles POST requests to create draft auctions
// The authenticated client becomes the seller
func (h *GinHandlers) CreateAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sellerID := clientID(c)
		if sellerID == "" {
			response.Unauthorized(c, "Missing client identity")
			return
		}

		var req CreateAuctionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		auction, err := h.service.CreateAuction(&req, sellerID)
		switch {
		case errors.Is(err, ErrUnsupportedKind),
			errors.Is(err, ErrInvalidSchedule),
			errors.Is(err, ErrInvalidQuantity):
			response.BadRequest(c, err.Error())
		default:
			response.Handle(c, auction, err)
		}
	}
}

// PublishAuctionHandler handles POST requests to put a draft on the schedule
// URL parameter: auction_id
func (h *GinHandlers) PublishAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		auctionID := c.Param("auction_id")

		auction, err := h.service.PublishAuction(auctionID, clientID(c))
		switch {
		case errors.Is(err, ErrAuctionNotFound):
			response.NotFound(c, err.Error())
		case errors.Is(err, ErrNotSeller):
			response.Forbidden(c, err.Error())
		case errors.Is(err, types.ErrIllegalTransition):
			response.Conflict(c, err.Error())
		default:
			response.Handle(c, auction, err)
		}
	}
}

// CancelAuctionHandler handles POST requests for seller withdrawal
// URL parameter: auction_id
func (h *GinHandlers) CancelAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		auctionID := c.Param("auction_id")

		err := h.service.CancelAuction(auctionID, clientID(c))
		switch {
		case errors.Is(err, ErrAuctionNotFound):
			response.NotFound(c, err.Error())
		case errors.Is(err, ErrNotSeller):
			response.Forbidden(c, err.Error())
		case errors.Is(err, types.ErrIllegalTransition):
			response.Conflict(c, err.Error())
		default:
			response.Handle(c, gin.H{"auction_id": auctionID, "status": "CANCELLED"}, err)
		}
	}
}

// GetAuctionHandler handles GET requests for auction detail
// URL parameter: auction_id
func (h *GinHandlers) GetAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		auction, err := h.service.GetAuction(c.Param("auction_id"))
		if errors.Is(err, ErrAuctionNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.Handle(c, auction, err)
	}
}

// PlaceBidHandler handles POST requests to place or replace a committed bid
// URL parameter: auction_id
func (h *GinHandlers) PlaceBidHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		bidderID := clientID(c)
		if bidderID == "" {
			response.Unauthorized(c, "Missing client identity")
			return
		}

		var req PlaceBidRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		result, err := h.service.PlaceBid(c.Param("auction_id"), bidderID, &req)
		switch {
		case errors.Is(err, ErrAuctionNotFound):
			response.NotFound(c, err.Error())
		case errors.Is(err, ErrAuctionNotAcceptingBids):
			response.Conflict(c, err.Error())
		case errors.Is(err, ErrBidTooLow), errors.Is(err, ErrInvalidQuantity):
			response.BadRequest(c, err.Error())
		case errors.Is(err, ErrInsufficientFunds):
			response.PaymentRequired(c, err.Error())
		default:
			response.Handle(c, result, err)
		}
	}
}

// CancelBidHandler handles POST requests for a bidder to withdraw their bid
// URL parameters: auction_id, bid_id
func (h *GinHandlers) CancelBidHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		requesterID := clientID(c)
		if requesterID == "" {
			response.Unauthorized(c, "Missing client identity")
			return
		}

		err := h.service.CancelBid(c.Param("bid_id"), requesterID)
		switch {
		case errors.Is(err, ErrBidNotFound):
			response.NotFound(c, err.Error())
		case errors.Is(err, ErrNotBidOwner):
			response.Forbidden(c, err.Error())
		case errors.Is(err, ErrCannotCancelWinning), errors.Is(err, ErrBidNotCancellable):
			response.Conflict(c, err.Error())
		default:
			response.Handle(c, gin.H{"bid_id": c.Param("bid_id"), "status": "CANCELLED"}, err)
		}
	}
}

// GetBidStackHandler handles GET requests for the public bid stack
// URL parameter: auction_id
func (h *GinHandlers) GetBidStackHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stack, err := h.service.GetBidStack(c.Param("auction_id"))
		if errors.Is(err, ErrAuctionNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.Handle(c, stack, err)
	}
}

// GetActivityHandler handles GET requests for the auction's audit timeline
// URL parameter: auction_id
func (h *GinHandlers) GetActivityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := h.service.AuctionActivity(c.Param("auction_id"))
		response.Handle(c, entries, err)
	}
}
