package activity

import (
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// Append inserts one entry. There is deliberately no update or delete.
func (d *Database) Append(entry *Entry) error {
	return d.db.Create(entry).Error
}

func (d *Database) ListForAuction(auctionID string) ([]Entry, error) {
	var entries []Entry
	err := d.db.Where("auction_id = ?", auctionID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}
