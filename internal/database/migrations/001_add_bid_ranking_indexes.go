package migrations

import (
	"github.com/motorline/auction-api/internal/types"
	"gorm.io/gorm"
)

// AddBidRankingIndexes creates the auction and bid tables and the indexes
// the ranking and sweep queries lean on
func AddBidRankingIndexes(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.Auction{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&types.Bid{}); err != nil {
		return err
	}

	// Add indexes for better query performance
	// Using raw SQL for index creation to have more control over index types
	indexes := []string{
		// Ranking query: non-terminal bids per auction, amount descending
		`CREATE INDEX IF NOT EXISTS idx_bids_auction_status_amount
		 ON bids(auction_id, status, amount_cents DESC)`,

		// Single-open-bid lookup per (auction, bidder)
		`CREATE INDEX IF NOT EXISTS idx_bids_auction_bidder
		 ON bids(auction_id, bidder_id)`,

		// Processor sweep: auctions by status and close time
		`CREATE INDEX IF NOT EXISTS idx_auctions_status_end
		 ON auctions(status, scheduled_end)`,
	}

	// Execute each index creation
	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
