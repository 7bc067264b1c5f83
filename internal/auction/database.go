package auction

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

func (d *Database) CreateAuction(auction *types.Auction) error {
	return d.db.Create(auction).Error
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

func (d *Database) GetBid(bidID string) (*types.Bid, error) {
	var bid types.Bid
	if err := d.db.Where("bid_id = ?", bidID).First(&bid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bid, nil
}

// GetOpenBid returns the bidder's single non-terminal bid on the auction,
// if any.
func (d *Database) GetOpenBid(auctionID, bidderID string) (*types.Bid, error) {
	var bid types.Bid
	err := d.db.Where("auction_id = ? AND bidder_id = ? AND status IN ?",
		auctionID, bidderID, types.NonTerminalBidStatuses()).
		First(&bid).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bid, nil
}

// GetOpenBids returns the auction's non-terminal bids in ranking order:
// amount descending, arrival sequence ascending.
func (d *Database) GetOpenBids(auctionID string) ([]types.Bid, error) {
	var bids []types.Bid
	err := d.db.Where("auction_id = ? AND status IN ?",
		auctionID, types.NonTerminalBidStatuses()).
		Order("amount_cents DESC, sequence ASC").
		Find(&bids).Error
	return bids, err
}

// SaveBidAndAuction persists the bid mutation and the auction's recomputed
// denormalized fields in one transaction.
func (d *Database) SaveBidAndAuction(bid *types.Bid, auction *types.Auction, others []types.Bid) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if bid != nil {
		if err := tx.Save(bid).Error; err != nil {
			tx.Rollback()
			return err
		}
	}

	for i := range others {
		if err := tx.Save(&others[i]).Error; err != nil {
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

// ListAuctionsByStatus returns auctions currently in any of the states.
func (d *Database) ListAuctionsByStatus(statuses ...types.AuctionStatus) ([]types.Auction, error) {
	var auctions []types.Auction
	err := d.db.Where("status IN ?", statuses).
		Order("scheduled_end ASC").
		Find(&auctions).Error
	return auctions, err
}
