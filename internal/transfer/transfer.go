package transfer

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var ErrInsufficientShares = errors.New("seller holds insufficient shares")

// ShareTransfer is the only ownership-mutating contract in the system. The
// settlement engine must call Execute at most once per completed auction.
type ShareTransfer interface {
	Execute(offeringID, sellerID, buyerID string, quantity, priceCents int64) (string, error)
}

// Registry keeps share positions per (account, offering) and records one
// Trade row per executed transfer.
type Registry struct {
	db *gorm.DB
}

func NewRegistry(gormDB *gorm.DB) *Registry {
	return &Registry{db: gormDB}
}

// Grant sets up or tops up a holding. Used when an offering is listed and
// by the simulation.
func (r *Registry) Grant(accountID, offeringID string, shares int64) error {
	position, err := r.getPosition(accountID, offeringID)
	if err != nil {
		return err
	}
	if position == nil {
		return r.db.Create(&Position{
			AccountID:  accountID,
			OfferingID: offeringID,
			Shares:     shares,
			CreatedAt:  time.Now(),
			UpdatedAt:  time.Now(),
		}).Error
	}
	position.Shares += shares
	position.UpdatedAt = time.Now()
	return r.db.Save(position).Error
}

// Shares returns the account's holding in the offering.
func (r *Registry) Shares(accountID, offeringID string) (int64, error) {
	position, err := r.getPosition(accountID, offeringID)
	if err != nil {
		return 0, err
	}
	if position == nil {
		return 0, nil
	}
	return position.Shares, nil
}

// Execute moves quantity shares of the offering from seller to buyer and
// records the trade, all in one transaction. Returns the trade ID.
func (r *Registry) Execute(offeringID, sellerID, buyerID string, quantity, priceCents int64) (string, error) {
	logger := log.With().
		Str("offering_id", offeringID).
		Str("seller_id", sellerID).
		Str("buyer_id", buyerID).
		Int64("quantity", quantity).
		Int64("price_cents", priceCents).
		Str("service", "transfer").
		Logger()

	logger.Info().Msg("executing share transfer")

	tradeID := "TRD_" + uuid.New().String()

	tx := r.db.Begin()
	if err := tx.Error; err != nil {
		return "", err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var sellerPosition Position
	err := tx.Where("account_id = ? AND offering_id = ?", sellerID, offeringID).
		First(&sellerPosition).Error
	if err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("seller %s in offering %s: %w", sellerID, offeringID, ErrInsufficientShares)
		}
		return "", err
	}
	if sellerPosition.Shares < quantity {
		tx.Rollback()
		logger.Error().
			Int64("seller_shares", sellerPosition.Shares).
			Msg("transfer rejected, seller position too small")
		return "", fmt.Errorf("seller holds %d of %d shares: %w",
			sellerPosition.Shares, quantity, ErrInsufficientShares)
	}

	sellerPosition.Shares -= quantity
	sellerPosition.UpdatedAt = time.Now()
	if err := tx.Save(&sellerPosition).Error; err != nil {
		tx.Rollback()
		return "", err
	}

	var buyerPosition Position
	err = tx.Where("account_id = ? AND offering_id = ?", buyerID, offeringID).
		First(&buyerPosition).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		buyerPosition = Position{
			AccountID:  buyerID,
			OfferingID: offeringID,
			Shares:     quantity,
			CreatedAt:  time.Now(),
			UpdatedAt:  time.Now(),
		}
		if err := tx.Create(&buyerPosition).Error; err != nil {
			tx.Rollback()
			return "", err
		}
	case err != nil:
		tx.Rollback()
		return "", err
	default:
		buyerPosition.Shares += quantity
		buyerPosition.UpdatedAt = time.Now()
		if err := tx.Save(&buyerPosition).Error; err != nil {
			tx.Rollback()
			return "", err
		}
	}

	trade := &Trade{
		TradeID:    tradeID,
		OfferingID: offeringID,
		SellerID:   sellerID,
		BuyerID:    buyerID,
		Quantity:   quantity,
		PriceCents: priceCents,
		CreatedAt:  time.Now(),
	}
	if err := tx.Create(trade).Error; err != nil {
		tx.Rollback()
		return "", err
	}

	if err := tx.Commit().Error; err != nil {
		return "", err
	}

	logger.Info().Str("trade_id", tradeID).Msg("share transfer executed")
	return tradeID, nil
}

// GetTrade retrieves a trade by its ID.
func (r *Registry) GetTrade(tradeID string) (*Trade, error) {
	var trade Trade
	if err := r.db.Where("trade_id = ?", tradeID).First(&trade).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trade, nil
}

func (r *Registry) getPosition(accountID, offeringID string) (*Position, error) {
	var position Position
	err := r.db.Where("account_id = ? AND offering_id = ?", accountID, offeringID).
		First(&position).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &position, nil
}
