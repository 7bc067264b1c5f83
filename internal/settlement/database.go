package settlement

import (
	"errors"

	"github.com/motorline/auction-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetAuction(auctionID string) (*types.Auction, error) {
	var auction types.Auction
	if err := d.db.Where("auction_id = ?", auctionID).First(&auction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &auction, nil
}

func (d *Database) UpdateAuction(auction *types.Auction) error {
	return d.db.Save(auction).Error
}

// GetOpenBids returns the auction's non-terminal bids in ranking order.
func (d *Database) GetOpenBids(auctionID string) ([]types.Bid, error) {
	var bids []types.Bid
	err := d.db.Where("auction_id = ? AND status IN ?",
		auctionID, types.NonTerminalBidStatuses()).
		Order("amount_cents DESC, sequence ASC").
		Find(&bids).Error
	return bids, err
}

// MarkSettling is the gate in front of the share transfer: a conditional
// update that only one caller can win. Returns false when the auction was
// no longer ENDED.
func (d *Database) MarkSettling(auctionID string) (bool, error) {
	result := d.db.Model(&types.Auction{}).
		Where("auction_id = ? AND status = ?", auctionID, types.AuctionEnded).
		Update("status", types.AuctionSettling)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// SaveOutcome persists the settled auction and its bids in one transaction.
func (d *Database) SaveOutcome(auction *types.Auction, bids []types.Bid) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	for i := range bids {
		if err := tx.Save(&bids[i]).Error; err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Save(auction).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// ListSettleable returns auctions waiting on settlement.
func (d *Database) ListSettleable() ([]types.Auction, error) {
	var auctions []types.Auction
	err := d.db.Where("status IN ?", []types.AuctionStatus{
		types.AuctionEnded, types.AuctionSettling,
	}).Order("scheduled_end ASC").Find(&auctions).Error
	return auctions, err
}
