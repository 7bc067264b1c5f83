package ledger

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateAccount(account *Account) error {
	return d.db.Create(account).Error
}

func (d *Database) GetAccount(accountID string) (*Account, error) {
	var account Account
	if err := d.db.Where("account_id = ?", accountID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (d *Database) UpdateAccount(account *Account) error {
	return d.db.Save(account).Error
}

func (d *Database) GetReservation(reservationID string) (*CashReservation, error) {
	var reservation CashReservation
	if err := d.db.Where("reservation_id = ?", reservationID).First(&reservation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reservation, nil
}

// HeldTotal sums the account's live reservations.
func (d *Database) HeldTotal(accountID string) (int64, error) {
	var total int64
	err := d.db.Model(&CashReservation{}).
		Where("account_id = ? AND status = ?", accountID, ReservationHeld).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&total).Error
	return total, err
}

// CreateReservation persists a new hold.
func (d *Database) CreateReservation(reservation *CashReservation) error {
	return d.db.Create(reservation).Error
}

// ReactivateReservation flips a RELEASED hold back to HELD under its
// original reservation ID. Returns false when no released row exists.
func (d *Database) ReactivateReservation(reservationID string, amountCents int64) (bool, error) {
	result := d.db.Model(&CashReservation{}).
		Where("reservation_id = ? AND status = ?", reservationID, ReservationReleased).
		Updates(map[string]interface{}{
			"status":       ReservationHeld,
			"amount_cents": amountCents,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ReleaseReservation flips a hold to RELEASED. The conditional update makes
// release idempotent per reservation: a second call affects zero rows.
func (d *Database) ReleaseReservation(reservationID string) (bool, error) {
	result := d.db.Model(&CashReservation{}).
		Where("reservation_id = ? AND status = ?", reservationID, ReservationHeld).
		Update("status", ReservationReleased)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetTransfer looks up a settled movement by its reference.
func (d *Database) GetTransfer(reference string) (*FundsTransfer, error) {
	var transfer FundsTransfer
	if err := d.db.Where("reference = ?", reference).First(&transfer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &transfer, nil
}

// TransferBalance moves settled funds between two accounts and records the
// movement, all in one transaction. The unique reference index rejects a
// concurrent duplicate.
func (d *Database) TransferBalance(fromID, toID string, amountCents int64, reference string) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	record := FundsTransfer{
		Reference:     reference,
		FromAccountID: fromID,
		ToAccountID:   toID,
		AmountCents:   amountCents,
	}
	if err := tx.Create(&record).Error; err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Model(&Account{}).
		Where("account_id = ?", fromID).
		Update("balance_cents", gorm.Expr("balance_cents - ?", amountCents)).Error; err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Model(&Account{}).
		Where("account_id = ?", toID).
		Update("balance_cents", gorm.Expr("balance_cents + ?", amountCents)).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
