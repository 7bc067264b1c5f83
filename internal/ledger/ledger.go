package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/motorline/auction-api/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrReservationMismatch = errors.New("reservation does not match account and amount")
)

// CashLedger is the contract the auction engine depends on. Reserve
// returns false, not an error, when the account lacks available funds.
// Release is idempotent per reference. Transfer moves settled funds.
type CashLedger interface {
	Reserve(accountID string, amountCents int64, reference string) (bool, error)
	Release(accountID string, amountCents int64, reference string) error
	Transfer(fromID, toID string, amountCents int64, reference string) error
}

// Service is the platform's cash ledger. Reserve/release/transfer are
// serialized with a single mutex so available-balance checks never race;
// the auction engine's per-auction locks do not cover cross-auction
// activity on one account.
type Service struct {
	db *Database
	mu sync.Mutex
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// OpenAccount creates an account with an opening balance.
func (s *Service) OpenAccount(accountID string, openingBalanceCents int64) (*Account, error) {
	if openingBalanceCents < 0 {
		return nil, ErrInvalidAmount
	}

	account := &Account{
		AccountID:    accountID,
		BalanceCents: openingBalanceCents,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if account.AccountID == "" {
		account.AccountID = "ACC_" + uuid.New().String()
	}

	if err := s.db.CreateAccount(account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

// Deposit credits an account.
func (s *Service) Deposit(accountID string, amountCents int64) error {
	if amountCents <= 0 {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.db.GetAccount(accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return ErrAccountNotFound
	}

	account.BalanceCents += amountCents
	account.UpdatedAt = time.Now()
	return s.db.UpdateAccount(account)
}

// Reserve places a hold against the account's available balance. A false
// return means insufficient funds; nothing is recorded. Re-reserving a
// reference whose hold was released re-activates the same reservation, so
// callers can reinstate a hold they gave up mid-operation.
func (s *Service) Reserve(accountID string, amountCents int64, reference string) (bool, error) {
	if amountCents <= 0 {
		return false, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	logger := log.With().
		Str("account_id", accountID).
		Str("reference", reference).
		Int64("amount_cents", amountCents).
		Str("service", "ledger").
		Logger()

	account, err := s.db.GetAccount(accountID)
	if err != nil {
		return false, err
	}
	if account == nil {
		return false, ErrAccountNotFound
	}

	existing, err := s.db.GetReservation(reference)
	if err != nil {
		return false, err
	}
	if existing != nil {
		if existing.AccountID != accountID {
			return false, fmt.Errorf("reservation %s: %w", reference, ErrReservationMismatch)
		}
		if existing.Status == ReservationHeld {
			if existing.AmountCents != amountCents {
				return false, fmt.Errorf("reservation %s: %w", reference, ErrReservationMismatch)
			}
			return true, nil
		}
	}

	held, err := s.db.HeldTotal(accountID)
	if err != nil {
		return false, err
	}

	available := account.BalanceCents - held
	if available < amountCents {
		logger.Warn().
			Int64("available_cents", available).
			Msg("reservation declined, insufficient available balance")
		return false, nil
	}

	if existing != nil {
		reactivated, err := s.db.ReactivateReservation(reference, amountCents)
		if err != nil {
			return false, fmt.Errorf("failed to re-activate reservation: %w", err)
		}
		if !reactivated {
			return false, fmt.Errorf("reservation %s: %w", reference, ErrReservationMismatch)
		}
		logger.Debug().Msg("cash re-reserved")
		return true, nil
	}

	reservation := &CashReservation{
		ReservationID: reference,
		AccountID:     accountID,
		AmountCents:   amountCents,
		Status:        ReservationHeld,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if err := s.db.CreateReservation(reservation); err != nil {
		return false, fmt.Errorf("failed to record reservation: %w", err)
	}

	logger.Debug().Msg("cash reserved")
	return true, nil
}

// Release frees a hold. Calling it again for the same reference is a no-op.
// The caller's account and amount must match the recorded reservation; a
// mismatch is a wiring bug, not a release.
func (s *Service) Release(accountID string, amountCents int64, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reservation, err := s.db.GetReservation(reference)
	if err != nil {
		return fmt.Errorf("failed to look up reservation: %w", err)
	}
	if reservation == nil {
		return nil
	}
	if reservation.AccountID != accountID || reservation.AmountCents != amountCents {
		return fmt.Errorf("reservation %s: %w", reference, ErrReservationMismatch)
	}

	released, err := s.db.ReleaseReservation(reference)
	if err != nil {
		return fmt.Errorf("failed to release reservation: %w", err)
	}
	if released {
		log.Debug().
			Str("account_id", accountID).
			Str("reference", reference).
			Int64("amount_cents", amountCents).
			Str("service", "ledger").
			Msg("reservation released")
	}
	return nil
}

// Transfer moves settled funds from one account to another.
func (s *Service) Transfer(fromID, toID string, amountCents int64, reference string) error {
	if amountCents <= 0 {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	from, err := s.db.GetAccount(fromID)
	if err != nil {
		return err
	}
	if from == nil {
		return fmt.Errorf("payer %s: %w", fromID, ErrAccountNotFound)
	}
	to, err := s.db.GetAccount(toID)
	if err != nil {
		return err
	}
	if to == nil {
		return fmt.Errorf("payee %s: %w", toID, ErrAccountNotFound)
	}

	// Idempotent per reference: a settlement retry finds the recorded
	// movement and does not move the funds twice.
	existing, err := s.db.GetTransfer(reference)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	if err := s.db.TransferBalance(fromID, toID, amountCents, reference); err != nil {
		return fmt.Errorf("failed to transfer funds: %w", err)
	}

	log.Info().
		Str("from_account", fromID).
		Str("to_account", toID).
		Str("reference", reference).
		Int64("amount_cents", amountCents).
		Str("service", "ledger").
		Msg("funds transferred")
	return nil
}

// GetSummary returns the account's balance and live holds.
func (s *Service) GetSummary(accountID string) (*AccountSummary, error) {
	account, err := s.db.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	held, err := s.db.HeldTotal(accountID)
	if err != nil {
		return nil, err
	}

	return &AccountSummary{
		AccountID:      account.AccountID,
		BalanceCents:   account.BalanceCents,
		HeldCents:      held,
		AvailableCents: account.BalanceCents - held,
	}, nil
}

// GinHandlers contains HTTP handlers for ledger account endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateAccountHandler handles POST requests to open cash accounts
// Requires internal authentication
func (h *GinHandlers) CreateAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			AccountID           string `json:"account_id"`
			OpeningBalanceCents int64  `json:"opening_balance_cents"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		account, err := h.service.OpenAccount(request.AccountID, request.OpeningBalanceCents)
		if errors.Is(err, ErrInvalidAmount) {
			response.BadRequest(c, err.Error())
			return
		}
		response.Handle(c, account, err)
	}
}

// GetAccountHandler handles GET requests for account summaries
// URL parameter: account_id
func (h *GinHandlers) GetAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.Param("account_id")

		summary, err := h.service.GetSummary(accountID)
		if errors.Is(err, ErrAccountNotFound) {
			response.NotFound(c, "Account not found")
			return
		}
		response.Handle(c, summary, err)
	}
}
