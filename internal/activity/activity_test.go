package activity

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "activity.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Entry{}))

	return NewService(db)
}

func TestRecordAndList(t *testing.T) {
	svc := newTestService(t)

	svc.Record("AUC_1", "", EventAuctionCreated, "SELLER_1", map[string]interface{}{
		"offering_id": "OFFER_1",
	})
	svc.Record("AUC_1", "BID_1", EventBidPlaced, "BUYER_1", map[string]interface{}{
		"amount_cents": 150_000,
	})
	svc.Record("AUC_2", "", EventAuctionCreated, "SELLER_2", nil)

	entries, err := svc.ListForAuction("AUC_1")
	require.NoError(t, err)
	require.Len(t, entries, 2, "entries from other auctions must not leak in")

	// Oldest first.
	assert.Equal(t, EventAuctionCreated, entries[0].EventType)
	assert.Equal(t, EventBidPlaced, entries[1].EventType)
	assert.Equal(t, "BUYER_1", entries[1].ActorID)
	assert.Equal(t, "BID_1", entries[1].BidID)
	assert.Contains(t, entries[0].EntryID, "ACT_")

	var detail map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(entries[1].Detail), &detail))
	assert.Equal(t, float64(150_000), detail["amount_cents"])
}

func TestRecordNilDetail(t *testing.T) {
	svc := newTestService(t)

	svc.Record("AUC_1", "", EventAuctionPublished, "SELLER_1", nil)

	entries, err := svc.ListForAuction("AUC_1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].Detail)
}

func TestRecordNeverFails(t *testing.T) {
	svc := newTestService(t)

	// An unmarshalable detail is logged and dropped, not propagated.
	svc.Record("AUC_1", "", EventBidPlaced, "BUYER_1", map[string]interface{}{
		"bad": make(chan int),
	})

	entries, err := svc.ListForAuction("AUC_1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].Detail)
}

func TestListEmptyAuction(t *testing.T) {
	svc := newTestService(t)

	entries, err := svc.ListForAuction("AUC_nothing")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
