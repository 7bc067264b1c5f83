package database

import (
	"fmt"

	"github.com/motorline/auction-api/internal/activity"
	"github.com/motorline/auction-api/internal/database/migrations"
	"github.com/motorline/auction-api/internal/ledger"
	"github.com/motorline/auction-api/internal/transfer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := migrations.AddBidRankingIndexes(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Auto-migrate other schemas
	err = db.AutoMigrate(
		&ledger.Account{},
		&ledger.CashReservation{},
		&ledger.FundsTransfer{},
		&transfer.Trade{},
		&transfer.Position{},
		&activity.Entry{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
