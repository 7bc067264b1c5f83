package activity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service is the append-only activity sink. Recording sits outside the
// bidding transaction boundary: downstream notification feeds read from
// here, and a failed append never aborts the bid or settlement that
// produced it.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// Record appends one fact. Detail is marshalled to JSON; a nil detail is
// stored empty. Failures are logged, not returned.
func (s *Service) Record(auctionID, bidID, eventType, actorID string, detail interface{}) {
	entry := &Entry{
		EntryID:   "ACT_" + uuid.New().String(),
		AuctionID: auctionID,
		BidID:     bidID,
		EventType: eventType,
		ActorID:   actorID,
		CreatedAt: time.Now(),
	}

	if detail != nil {
		payload, err := json.Marshal(detail)
		if err != nil {
			log.Error().Err(err).
				Str("auction_id", auctionID).
				Str("event_type", eventType).
				Str("service", "activity").
				Msg("failed to marshal activity detail")
		} else {
			entry.Detail = string(payload)
		}
	}

	if err := s.db.Append(entry); err != nil {
		log.Error().Err(err).
			Str("auction_id", auctionID).
			Str("event_type", eventType).
			Str("service", "activity").
			Msg("failed to append activity entry")
		return
	}

	log.Debug().
		Str("auction_id", auctionID).
		Str("bid_id", bidID).
		Str("event_type", eventType).
		Str("actor_id", actorID).
		Str("service", "activity").
		Msg("activity recorded")
}

// ListForAuction returns the auction's history oldest first.
func (s *Service) ListForAuction(auctionID string) ([]Entry, error) {
	return s.db.ListForAuction(auctionID)
}
