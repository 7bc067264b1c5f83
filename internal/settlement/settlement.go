package settlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/motorline/auction-api/internal/activity"
	"github.com/motorline/auction-api/internal/auction"
	"github.com/motorline/auction-api/internal/ledger"
	"github.com/motorline/auction-api/internal/transfer"
	"github.com/motorline/auction-api/internal/types"
	"github.com/motorline/auction-api/pkg/response"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service is the settlement engine: it confirms the winner, executes the
// single share transfer, releases every loser's cash and drives the
// auction into its terminal state. It shares the per-auction lock table
// with the bid ledger so settlement and late bids on one auction
// serialize.
type Service struct {
	db       *Database
	cash     ledger.CashLedger
	shares   transfer.ShareTransfer
	activity *activity.Service
	locks    *auction.LockTable
}

func NewService(gormDB *gorm.DB, cash ledger.CashLedger, shares transfer.ShareTransfer, activitySvc *activity.Service, locks *auction.LockTable) *Service {
	return &Service{
		db:       NewDatabase(gormDB),
		cash:     cash,
		shares:   shares,
		activity: activitySvc,
		locks:    locks,
	}
}

// DB exposes the settlement database to the processor.
func (s *Service) DB() *Database {
	return s.db
}

// Settle finalizes an ended auction. It is idempotent: an auction that is
// already COMPLETED or NO_SALE returns its cached result, and a run that
// failed mid-settlement leaves the auction in SETTLING where the next call
// picks it up without repeating the share transfer.
func (s *Service) Settle(auctionID string) (*SettlementResult, error) {
	s.locks.Lock(auctionID)
	defer s.locks.Unlock(auctionID)

	logger := log.With().
		Str("auction_id", auctionID).
		Str("service", "settlement").
		Logger()

	a, err := s.db.GetAuction(auctionID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrAuctionNotFound
	}

	switch a.Status {
	case types.AuctionCompleted, types.AuctionNoSale:
		return cachedResult(a), nil
	case types.AuctionEnded, types.AuctionSettling:
		// Proceed.
	default:
		return nil, fmt.Errorf("auction is %s: %w", a.Status, ErrNotSettleable)
	}

	logger.Info().Str("status", string(a.Status)).Msg("starting settlement")

	bids, err := s.db.GetOpenBids(auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bids: %w", err)
	}

	// The ranking invariant guarantees at most one WINNING bid; it is the
	// ranking maximum.
	var winning *types.Bid
	for i := range bids {
		if bids[i].Status == types.BidWinning {
			winning = &bids[i]
			break
		}
	}

	reserveMet := winning != nil &&
		(a.ReservePriceCents == nil || winning.AmountCents >= *a.ReservePriceCents)
	if !reserveMet {
		return s.settleNoSale(a, bids, winning, logger)
	}

	// Gate the share transfer on winning the ENDED -> SETTLING transition;
	// only one caller ever reaches the collaborator.
	if a.Status == types.AuctionEnded {
		won, err := s.db.MarkSettling(auctionID)
		if err != nil {
			return nil, fmt.Errorf("failed to mark auction settling: %w", err)
		}
		if !won {
			return nil, fmt.Errorf("auction left %s concurrently: %w", types.AuctionEnded, ErrNotSettleable)
		}
		a.Status = types.AuctionSettling
	}

	// Execute the transfer exactly once: the trade ID is persisted while
	// still SETTLING, so a retry after a later failure reuses it instead
	// of transferring again.
	var tradeID string
	if a.TradeID != nil {
		tradeID = *a.TradeID
	} else {
		tradeID, err = s.shares.Execute(a.OfferingID, a.SellerID, winning.BidderID, winning.Quantity, winning.AmountCents)
		if err != nil {
			logger.Error().Err(err).Msg("share transfer failed, auction stays settling for retry")
			return nil, fmt.Errorf("share transfer failed: %w", err)
		}
		a.TradeID = &tradeID
		a.UpdatedAt = time.Now()
		if err := s.db.UpdateAuction(a); err != nil {
			return nil, fmt.Errorf("failed to record trade id: %w", err)
		}
	}

	// The winner's hold is released and the sale price moves to the
	// seller; both calls are idempotent per reference, so a retry after a
	// partial failure is safe.
	if err := s.cash.Release(winning.BidderID, winning.CashReservedCents, winning.ReservationID); err != nil {
		return nil, fmt.Errorf("failed to release winner reservation: %w", err)
	}
	salePrice := winning.AmountCents * winning.Quantity
	if err := s.cash.Transfer(winning.BidderID, a.SellerID, salePrice, tradeID); err != nil {
		return nil, fmt.Errorf("failed to move sale proceeds: %w", err)
	}

	now := time.Now()
	if err := winning.Transition(types.BidWon); err != nil {
		return nil, err
	}
	winning.UpdatedAt = now

	for i := range bids {
		bid := &bids[i]
		if bid.BidID == winning.BidID {
			continue
		}
		if err := s.cash.Release(bid.BidderID, bid.CashReservedCents, bid.ReservationID); err != nil {
			return nil, fmt.Errorf("failed to release reservation for bid %s: %w", bid.BidID, err)
		}
		if err := bid.Transition(types.BidLost); err != nil {
			return nil, err
		}
		bid.UpdatedAt = now
	}

	if err := a.Transition(types.AuctionCompleted); err != nil {
		return nil, err
	}
	if a.ActualEnd == nil {
		end := now
		a.ActualEnd = &end
	}
	a.WinningBidID = &winning.BidID
	a.WinnerID = &winning.BidderID
	a.FinalPriceCents = &winning.AmountCents
	a.UpdatedAt = now

	if err := s.db.SaveOutcome(a, bids); err != nil {
		return nil, fmt.Errorf("failed to persist settlement outcome: %w", err)
	}

	s.activity.Record(auctionID, winning.BidID, activity.EventSettlementCompleted, "system", gin.H{
		"winner_id":         winning.BidderID,
		"final_price_cents": winning.AmountCents,
		"quantity":          winning.Quantity,
		"trade_id":          tradeID,
	})

	logger.Info().
		Str("winner_id", winning.BidderID).
		Str("trade_id", tradeID).
		Int64("final_price_cents", winning.AmountCents).
		Msg("settlement completed")

	return cachedResult(a), nil
}

// settleNoSale terminates an auction whose reserve was not met or that
// closed without a winner: every live bid is marked lost and its cash
// released, and no transfer is made.
func (s *Service) settleNoSale(a *types.Auction, bids []types.Bid, winning *types.Bid, logger zerolog.Logger) (*SettlementResult, error) {
	now := time.Now()
	for i := range bids {
		bid := &bids[i]
		if err := s.cash.Release(bid.BidderID, bid.CashReservedCents, bid.ReservationID); err != nil {
			return nil, fmt.Errorf("failed to release reservation for bid %s: %w", bid.BidID, err)
		}
		if err := bid.Transition(types.BidLost); err != nil {
			return nil, err
		}
		bid.UpdatedAt = now
	}

	if err := a.Transition(types.AuctionNoSale); err != nil {
		return nil, err
	}
	if a.ActualEnd == nil {
		end := now
		a.ActualEnd = &end
	}
	a.UpdatedAt = now

	if err := s.db.SaveOutcome(a, bids); err != nil {
		return nil, fmt.Errorf("failed to persist no-sale outcome: %w", err)
	}

	detail := gin.H{"reason": "no_winning_bid"}
	if winning != nil && a.ReservePriceCents != nil {
		detail = gin.H{
			"reason":              "reserve_not_met",
			"reserve_price_cents": *a.ReservePriceCents,
			"high_bid_cents":      winning.AmountCents,
		}
	}
	s.activity.Record(a.AuctionID, "", activity.EventReserveNotMet, "system", detail)

	logger.Info().Int("released_bids", len(bids)).Msg("auction settled as no sale")
	return cachedResult(a), nil
}

// cachedResult rebuilds the settlement result from the auction's terminal
// fields.
func cachedResult(a *types.Auction) *SettlementResult {
	result := &SettlementResult{
		AuctionID: a.AuctionID,
		Result:    ResultNoSale,
		SettledAt: a.ActualEnd,
	}
	if a.Status == types.AuctionCompleted {
		result.Result = ResultCompleted
		if a.WinnerID != nil {
			result.WinnerID = *a.WinnerID
		}
		if a.WinningBidID != nil {
			result.WinningBidID = *a.WinningBidID
		}
		if a.FinalPriceCents != nil {
			result.FinalPriceCents = *a.FinalPriceCents
		}
		if a.TradeID != nil {
			result.TradeID = *a.TradeID
		}
		result.Quantity = a.QuantityOffered
	}
	return result
}

// GinHandlers contains HTTP handlers for settlement endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// SettleAuctionHandler handles POST requests to settle an ended auction
// Requires internal authentication
// URL parameter: auction_id
func (h *GinHandlers) SettleAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		auctionID := c.Param("auction_id")

		result, err := h.service.Settle(auctionID)
		switch {
		case errors.Is(err, ErrAuctionNotFound):
			response.NotFound(c, err.Error())
		case errors.Is(err, ErrNotSettleable):
			response.Conflict(c, err.Error())
		default:
			response.Handle(c, result, err)
		}
	}
}
