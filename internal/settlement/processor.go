package settlement

import (
	"context"
	"time"

	"github.com/motorline/auction-api/internal/auction"
	"github.com/rs/zerolog/log"
)

// Processor is the time driver for the auction lifecycle: it opens
// preview and bidding windows, closes auctions past their end, and
// settles whatever is waiting. Settle itself is idempotent, so a sweep
// that overlaps a manual settle call is harmless.
type Processor struct {
	auctions   *auction.Service
	settlement *Service
	interval   time.Duration
}

func NewProcessor(auctions *auction.Service, settlement *Service, interval time.Duration) *Processor {
	return &Processor{
		auctions:   auctions,
		settlement: settlement,
		interval:   interval,
	}
}

// Start begins the processing loop and blocks until the context is done.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "auction_processor").Logger()
	logger.Info().Dur("interval", p.interval).Msg("starting auction processor")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down auction processor")
			return
		case <-ticker.C:
			p.Sweep(time.Now())
		}
	}
}

// Sweep runs one processing pass. Exposed so tests and the simulation can
// drive time explicitly.
func (p *Processor) Sweep(now time.Time) {
	logger := log.With().Str("component", "auction_processor").Logger()

	if err := p.auctions.SweepWindows(now); err != nil {
		logger.Error().Err(err).Msg("window sweep failed")
	}

	settleable, err := p.settlement.DB().ListSettleable()
	if err != nil {
		logger.Error().Err(err).Msg("failed to list settleable auctions")
		return
	}

	for i := range settleable {
		auctionID := settleable[i].AuctionID
		if _, err := p.settlement.Settle(auctionID); err != nil {
			// Collaborator failures leave the auction in SETTLING; the
			// next sweep retries it.
			logger.Error().Err(err).
				Str("auction_id", auctionID).
				Msg("settlement attempt failed")
		}
	}
}
