package auction

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/motorline/auction-api/internal/activity"
	"github.com/motorline/auction-api/internal/database"
	"github.com/motorline/auction-api/internal/ledger"
	"github.com/motorline/auction-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCommission = 0.05

type testStack struct {
	auctions *Service
	cash     *ledger.Service
	activity *activity.Service
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "auction.db"))
	require.NoError(t, err)

	cash := ledger.NewService(db)
	activitySvc := activity.NewService(db)
	svc := NewService(db, cash, activitySvc, NewLockTable(), testCommission)

	return &testStack{
		auctions: svc,
		cash:     cash,
		activity: activitySvc,
	}
}

func (ts *testStack) fund(t *testing.T, accountID string, cents int64) {
	t.Helper()
	_, err := ts.cash.OpenAccount(accountID, cents)
	require.NoError(t, err)
}

func (ts *testStack) held(t *testing.T, accountID string) int64 {
	t.Helper()
	summary, err := ts.cash.GetSummary(accountID)
	require.NoError(t, err)
	return summary.HeldCents
}

func baseRequest(end time.Time) *CreateAuctionRequest {
	start := end.Add(-2 * time.Hour)
	return &CreateAuctionRequest{
		OfferingID:         "OFFER_1",
		Kind:               "COMMITTED_OFFERS",
		StartingPriceCents: 100_000,
		QuantityOffered:    1,
		VisibleFrom:        start,
		BiddingOpensAt:     start,
		ScheduledEnd:       end,
	}
}

// newActiveAuction creates, publishes and opens an auction ending at end.
func (ts *testStack) newActiveAuction(t *testing.T, req *CreateAuctionRequest) *types.Auction {
	t.Helper()

	a, err := ts.auctions.CreateAuction(req, "SELLER_1")
	require.NoError(t, err)
	_, err = ts.auctions.PublishAuction(a.AuctionID, "SELLER_1")
	require.NoError(t, err)
	require.NoError(t, ts.auctions.SweepWindows(time.Now()))

	a, err = ts.auctions.GetAuction(a.AuctionID)
	require.NoError(t, err)
	require.Equal(t, types.AuctionActive, a.Status)
	return a
}

func bidReq(amountCents int64) *PlaceBidRequest {
	return &PlaceBidRequest{AmountCents: amountCents, Quantity: 1}
}

func TestCreateAuctionValidation(t *testing.T) {
	ts := newTestStack(t)
	end := time.Now().Add(2 * time.Hour)

	tests := []struct {
		name   string
		mutate func(*CreateAuctionRequest)
		want   error
	}{
		{"sealed bid is reserved", func(r *CreateAuctionRequest) { r.Kind = "SEALED_BID" }, ErrUnsupportedKind},
		{"english is reserved", func(r *CreateAuctionRequest) { r.Kind = "ENGLISH" }, ErrUnsupportedKind},
		{"dutch is reserved", func(r *CreateAuctionRequest) { r.Kind = "DUTCH" }, ErrUnsupportedKind},
		{"unknown kind", func(r *CreateAuctionRequest) { r.Kind = "RAFFLE" }, ErrUnsupportedKind},
		{"zero quantity", func(r *CreateAuctionRequest) { r.QuantityOffered = 0 }, ErrInvalidQuantity},
		{"zero starting price", func(r *CreateAuctionRequest) { r.StartingPriceCents = 0 }, ErrInvalidSchedule},
		{"end before open", func(r *CreateAuctionRequest) { r.ScheduledEnd = r.BiddingOpensAt.Add(-time.Minute) }, ErrInvalidSchedule},
		{"bidding before visibility", func(r *CreateAuctionRequest) { r.BiddingOpensAt = r.VisibleFrom.Add(-time.Minute) }, ErrInvalidSchedule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest(end)
			tt.mutate(req)
			_, err := ts.auctions.CreateAuction(req, "SELLER_1")
			assert.ErrorIs(t, err, tt.want)
		})
	}

	a, err := ts.auctions.CreateAuction(baseRequest(end), "SELLER_1")
	require.NoError(t, err)
	assert.Contains(t, a.AuctionID, "AUC_")
	assert.Equal(t, types.AuctionDraft, a.Status)
	assert.Equal(t, types.KindCommittedOffers, a.Kind)
}

func TestPublishAndWindowLifecycle(t *testing.T) {
	ts := newTestStack(t)
	now := time.Now()

	req := baseRequest(now.Add(3 * time.Hour))
	req.VisibleFrom = now.Add(-time.Minute)
	req.BiddingOpensAt = now.Add(time.Hour)

	a, err := ts.auctions.CreateAuction(req, "SELLER_1")
	require.NoError(t, err)

	// Only the seller may publish.
	_, err = ts.auctions.PublishAuction(a.AuctionID, "SOMEONE_ELSE")
	assert.ErrorIs(t, err, ErrNotSeller)

	_, err = ts.auctions.PublishAuction(a.AuctionID, "SELLER_1")
	require.NoError(t, err)

	// Republishing is an illegal transition.
	_, err = ts.auctions.PublishAuction(a.AuctionID, "SELLER_1")
	assert.ErrorIs(t, err, types.ErrIllegalTransition)

	// Visible but bidding not yet open: preview.
	require.NoError(t, ts.auctions.SweepWindows(now))
	a, err = ts.auctions.GetAuction(a.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, types.AuctionPreview, a.Status)

	// Bidding window reached: active.
	require.NoError(t, ts.auctions.SweepWindows(now.Add(time.Hour)))
	a, err = ts.auctions.GetAuction(a.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, types.AuctionActive, a.Status)

	// Past the end: closed, with the close stamped.
	require.NoError(t, ts.auctions.SweepWindows(now.Add(4*time.Hour)))
	a, err = ts.auctions.GetAuction(a.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, types.AuctionEnded, a.Status)
	require.NotNil(t, a.ActualEnd)
	assert.False(t, a.ActualEnd.Before(a.ScheduledEnd))
}

func TestPlaceBidReservesWithCommission(t *testing.T) {
	ts := newTestStack(t)
	ts.fund(t, "BUYER_1", 1_000_000)
	a := ts.newActiveAuction(t, baseRequest(time.Now().Add(2*time.Hour)))

	result, err := ts.auctions.PlaceBid(a.AuctionID, "BUYER_1", bidReq(100_000))
	require.NoError(t, err)
	assert.Contains(t, result.BidID, "BID_")
	assert.True(t, result.IsHighBid)
	assert.Equal(t, int64(105_000), result.CashReservedCents, "5%% commission on top of the offer")
	assert.Equal(t, int64(105_000), ts.held(t, "BUYER_1"))
}

func TestPlaceBidRejections(t *testing.T) {
	ts := newTestStack(t)
	ts.fund(t, "BUYER_1", 10_000_000)
	ts.fund(t, "BUYER_2", 10_000_000)
	a := ts.newActiveAuction(t, baseRequest(time.Now().Add(2*time.Hour)))

	_, err := ts.auctions.PlaceBid("AUC_missing", "BUYER_1", bidReq(100_000))
	assert.ErrorIs(t, err, ErrAuctionNotFound)

	_, err = ts.auctions.PlaceBid(a.AuctionID, "BUYER_1", bidReq(99_999))
	assert.ErrorIs(t, err, ErrBidTooLow, "below the starting price")

	_, err = ts.auctions.PlaceBid(a.AuctionID, "BUYER_1", &PlaceBidRequest{AmountCents: 100_000, Quantity: 0})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = ts.auctions.PlaceBid(a.AuctionID, "BUYER_1", &PlaceBidRequest{AmountCents: 100_000, Quantity: 2})
	assert.ErrorIs(t, err, ErrInvalidQuantity, "more than offered")

	_, err = ts.auctions.PlaceBid(a.AuctionID, "BUYER_1", bidReq(100_000))
	require.NoError(t, err)

	// Matching the standing high bid is not an increase.
	_, err = ts.auctions.PlaceBid(a.AuctionID, "BUYER_2", bidReq(100_000))
	assert.ErrorIs(t, err, ErrBidTooLow)

	// No failed attempt left a hold behind.
	assert.Equal(t, int64(0), ts.held(t, "BUYER_2"))
}

func TestBidOnClosedAuction(t *testing.T) {
	ts := newTestStack(t)
	ts.fund(t, "BUYER_1", 1_000_000)

	a, err := ts.auctions.CreateAuction(baseRequest(time.Now().Add(2*time.Hour)), "SELLER_1")
	require.NoError(t, err)

	// Draft auctions do not accept bids.
	_, err = ts.auctions.PlaceBid(a.AuctionID, "BUYER_1", bidReq(100_000))
	assert.ErrorIs(t, err, ErrAuctionNotAcceptingBids)
}

func TestOutbidFlow(t *testing.T) {
	ts := newTestStack(t)
	ts.fund(t, "BUYER_1", 1_000_000)
	ts.fund(t, "BUYER_2", 1_000_000)
	a := ts.newActiveAuction(t, baseRequest(time.Now().Add(2*time.Hour)))

	first, err := ts.auctions.PlaceBid(a.AuctionID, "BUYER_1", bidReq(100_000))
	require.NoError(t, err)
	second, err := ts.auctions.PlaceBid(a.AuctionID, "BUYER_2", bidReq(110_000))
	require.NoError(t, err)
	assert.True(t, second.IsHighBid)

	firstBid, err := ts.auctions.db.GetBid(first.BidID)
	require.NoError(t, err)
	assert.Equal(t, types.BidOutbid, firstBid.Status)
	assert.NotNil(t, firstBid.OutbidAt)

	secondBid, err := ts.auctions.db.GetBid(second.BidID)
	require.NoError(t, err)
	assert.Equal(t, types.BidWinning, secondBid.Status)

	// An outbid commitment stays funded until settlement.
	assert.Equal(t, int64(105_000), ts.held(t, "BUYER_1"))
	assert.Equal(t, int64(115_500), ts.held(t, "BUYER_2"))

	a, err = ts.auctions.GetAuction(a.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, int64(110_000), a.CurrentHighBidCents)
	assert.Equal(t, int64(2), a.BidCount)
	assert.Equal(t, int64(2), a.UniqueBidders)
	assert.Equal(t, int64(210_000), a.TotalCommittedCents)

	entries, err := ts.activity.ListForAuction(a.AuctionID)
	require.NoError(t, err)
	eventTypes := make([]string, 0, len(entries))
	for _, e := range entries {
		eventTypes = append(eventTypes, e.EventType)
	}
	assert.Contains(t, eventTypes, activity.EventBidOutbid)
}

func TestReplaceBidReleasesPriorHold(t *testing.T) {
	ts := newTestStack(t)
	ts.fund(t, "BUYER_1", 1_000_000)
	a := ts.newActiveAuction(t, baseRequest(time.Now().Add(2*time.Hour)))

	first, err := ts.auctions.PlaceBid(a.AuctionID, "BUYER_1", bidReq(100_000))
	require.NoError(t, err)
	second, err := ts.auctions.PlaceBid(a.AuctionID, "BUYER_1", bidReq(120_000))
	require.NoError(t, err)

	// The bid row is replaced in place, not duplicated.
	assert.Equal(t, first.BidID, second.BidID)

	a, err = ts.auctions.GetAuction(a.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.BidCount)
	assert.Equal(t, int64(120_000), a.CurrentHighBidCents)

	// Only the new commitment is held.
	assert.Equal(t, int64(126_000), ts.held(t, "BUYER_1"))
}

func TestOwnBidMustStrictlyIncrease(t *testing.T) {
	ts := newTestStack(t)
	ts.fund(t, "BUYER_1", 1_000_000)
	a := ts.newActiveAuction(t, baseRequest(time.Now().Add(2*time.Hour)))

	_, err := ts.auctions.PlaceBid(a.AuctionID, "BUYER_1", bidReq(100_000))
	require.NoError(t, err)
	_, err = ts.auctions.PlaceBid(a.AuctionID, "BUYER_1", bidReq(100_000))
	assert.ErrorIs(t, err, ErrBidTooLow)
}

func TestInsufficientFundsKeepsPriorBid(t *testing.T) {
	ts := newTestStack(t)
	ts.fund(t, "BUYER_1", 110_000)
	a := ts.newActiveAuction(t, baseRequest(time.Now().Add(2*time.Hour)))

	first, err := ts.auctions.PlaceBid(a.AuctionID, "BUYER_1", bidReq(100_000))
	require.NoError(t, err)
	require.Equal(t, int64(105_000), ts.held(t, "BUYER_1"))

	// The raise needs a 210_000 hold the account cannot cover.
	_, err = ts.auctions.PlaceBid(a.AuctionID, "BUYER_1", bidReq(200_000))
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// The prior bid and its hold survive the failed replacement.
	bid, err := ts.auctions.db.GetBid(first.BidID)
	require.NoError(t, err)
	assert.Equal(t, types.BidWinning, bid.Status)
	assert.Equal(t, int64(100_000), bid.AmountCents)
	assert.Equal(t, int64(105_000), ts.held(t, "BUYER_1"))

	a, err = ts.auctions.GetAuction(a.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, int64(100_000), a.CurrentHighBidCents)

	// The restored hold behaves like any other: an affordable raise
	// afterwards releases it and takes a fresh one.
	require.NoError(t, ts.cash.Deposit("BUYER_1", 100_000))
	_, err = ts.auctions.PlaceBid(a.AuctionID, "BUYER_1", bidReq(200_000))
	require.NoError(t, err)
	assert.Equal(t, int64(210_000), ts.held(t, "BUYER_1"))
}

func TestInsufficientFundsOnFirstBid(t *testing.T) {
	ts := newTestStack(t)
	ts.fund(t, "BUYER_1", 50_000)
	a := ts.newActiveAuction(t, baseRequest(time.Now().Add(2*time.Hour)))

	_, err := ts.auctions.PlaceBid(a.AuctionID, "BUYER_1", bidReq(100_000))
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(0), ts.held(t, "BUYER_1"))

	a, err = ts.auctions.GetAuction(a.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), a.BidCount)
}

func TestReserveMetOnce(t *testing.T) {
	ts := newTestStack(t)
	ts.fund(t, "BUYER_1", 1_000_000)
	ts.fund(t, "BUYER_2", 1_000_000)

	reserve := int64(150_000)
	req := baseRequest(time.Now().Add(2 * time.Hour))
	req.ReservePriceCents = &reserve
	a := ts.newActiveAuction(t, req)

	_, err := ts.auctions.PlaceBid(a.AuctionID, "BUYER_1", bidReq(120_000))
	require.NoError(t, err)
	a, err = ts.auctions.GetAuction(a.AuctionID)
	require.NoError(t, err)
	assert.False(t, a.ReserveMet)

	_, err = ts.auctions.PlaceBid(a.AuctionID, "BUYER_2", bidReq(150_000))
	require.NoError(t, err)
	a, err = ts.auctions.GetAuction(a.AuctionID)
	require.NoError(t, err)
	assert.True(t, a.ReserveMet)

	_, err = ts.auctions.PlaceBid(a.AuctionID, "BUYER_1", bidReq(160_000))
	require.NoError(t, err)

	entries, err := ts.activity.ListForAuction(a.AuctionID)
	require.NoError(t, err)
	met := 0
	for _, e := range entries {
		if e.EventType == activity.EventReserveMet {
			met++
		}
	}
	assert.Equal(t, 1, met, "the reserve-met fact is recorded exactly once")
}

func TestAntiSnipingExtension(t *testing.T) {
	ts := newTestStack(t)
	ts.fund(t, "BUYER_1", 1_000_000)
	ts.fund(t, "BUYER_2", 1_000_000)

	end := time.Now().Add(30 * time.Second)
	req := baseRequest(end)
	req.ExtensionEnabled = true
	req.ExtensionThresholdSecs = 120
	req.ExtensionDurationSecs = 180
	req.MaxExtensions = 1
	a := ts.newActiveAuction(t, req)

	// The bid lands inside the trailing threshold window.
	_, err := ts.auctions.PlaceBid(a.AuctionID, "BUYER_1", bidReq(100_000))
	require.NoError(t, err)

	a, err = ts.auctions.GetAuction(a.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, types.AuctionExtended, a.Status)
	assert.Equal(t, 1, a.ExtensionsUsed)
	assert.WithinDuration(t, end.Add(180*time.Second), a.ScheduledEnd, time.Second)

	// The cap is spent; a further qualifying bid does not extend again.
	_, err = ts.auctions.PlaceBid(a.AuctionID, "BUYER_2", bidReq(110_000))
	require.NoError(t, err)
	a, err = ts.auctions.GetAuction(a.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, 1, a.ExtensionsUsed)
	assert.WithinDuration(t, end.Add(180*time.Second), a.ScheduledEnd, time.Second)
}

func TestBuyNowEndsAuction(t *testing.T) {
	ts := newTestStack(t)
	ts.fund(t, "BUYER_1", 1_000_000)

	buyNow := int64(200_000)
	req := baseRequest(time.Now().Add(2 * time.Hour))
	req.BuyNowPriceCents = &buyNow
	a := ts.newActiveAuction(t, req)

	result, err := ts.auctions.PlaceBid(a.AuctionID, "BUYER_1", bidReq(200_000))
	require.NoError(t, err)
	assert.True(t, result.IsHighBid)

	a, err = ts.auctions.GetAuction(a.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, types.AuctionEnded, a.Status)
	require.NotNil(t, a.ActualEnd)
	assert.False(t, a.ActualEnd.Before(a.ScheduledEnd))

	// The window is closed; no further bids.
	_, err = ts.auctions.PlaceBid(a.AuctionID, "BUYER_1", bidReq(210_000))
	assert.ErrorIs(t, err, ErrAuctionNotAcceptingBids)
}

func TestCancelBidPromotesRunnerUp(t *testing.T) {
	ts := newTestStack(t)
	ts.fund(t, "BUYER_1", 1_000_000)
	ts.fund(t, "BUYER_2", 1_000_000)
	a := ts.newActiveAuction(t, baseRequest(time.Now().Add(2*time.Hour)))

	first, err := ts.auctions.PlaceBid(a.AuctionID, "BUYER_1", bidReq(100_000))
	require.NoError(t, err)
	second, err := ts.auctions.PlaceBid(a.AuctionID, "BUYER_2", bidReq(110_000))
	require.NoError(t, err)

	// Only the owner may cancel.
	assert.ErrorIs(t, ts.auctions.CancelBid(second.BidID, "BUYER_1"), ErrNotBidOwner)

	require.NoError(t, ts.auctions.CancelBid(second.BidID, "BUYER_2"))

	secondBid, err := ts.auctions.db.GetBid(second.BidID)
	require.NoError(t, err)
	assert.Equal(t, types.BidCancelled, secondBid.Status)
	assert.Equal(t, int64(0), ts.held(t, "BUYER_2"))

	// The outbid runner-up takes the lead back.
	firstBid, err := ts.auctions.db.GetBid(first.BidID)
	require.NoError(t, err)
	assert.Equal(t, types.BidWinning, firstBid.Status)

	a, err = ts.auctions.GetAuction(a.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, int64(100_000), a.CurrentHighBidCents)
	assert.Equal(t, int64(1), a.BidCount)

	// A terminal bid cannot be cancelled again.
	assert.ErrorIs(t, ts.auctions.CancelBid(second.BidID, "BUYER_2"), ErrBidNotCancellable)
}

func TestCannotCancelWinningNearClose(t *testing.T) {
	ts := newTestStack(t)
	ts.fund(t, "BUYER_1", 1_000_000)
	ts.fund(t, "BUYER_2", 1_000_000)
	a := ts.newActiveAuction(t, baseRequest(time.Now().Add(30*time.Minute)))

	first, err := ts.auctions.PlaceBid(a.AuctionID, "BUYER_1", bidReq(100_000))
	require.NoError(t, err)
	second, err := ts.auctions.PlaceBid(a.AuctionID, "BUYER_2", bidReq(110_000))
	require.NoError(t, err)

	// The high bid is locked in for the final hour.
	assert.ErrorIs(t, ts.auctions.CancelBid(second.BidID, "BUYER_2"), ErrCannotCancelWinning)

	// A losing bid can still be pulled.
	require.NoError(t, ts.auctions.CancelBid(first.BidID, "BUYER_1"))
}

func TestCancelAuctionReleasesEverything(t *testing.T) {
	ts := newTestStack(t)
	ts.fund(t, "BUYER_1", 1_000_000)
	ts.fund(t, "BUYER_2", 1_000_000)
	a := ts.newActiveAuction(t, baseRequest(time.Now().Add(2*time.Hour)))

	_, err := ts.auctions.PlaceBid(a.AuctionID, "BUYER_1", bidReq(100_000))
	require.NoError(t, err)
	_, err = ts.auctions.PlaceBid(a.AuctionID, "BUYER_2", bidReq(110_000))
	require.NoError(t, err)

	assert.ErrorIs(t, ts.auctions.CancelAuction(a.AuctionID, "SOMEONE_ELSE"), ErrNotSeller)
	require.NoError(t, ts.auctions.CancelAuction(a.AuctionID, "SELLER_1"))

	a, err = ts.auctions.GetAuction(a.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, types.AuctionCancelled, a.Status)
	assert.Equal(t, int64(0), a.BidCount)
	assert.Equal(t, int64(0), a.CurrentHighBidCents)

	assert.Equal(t, int64(0), ts.held(t, "BUYER_1"))
	assert.Equal(t, int64(0), ts.held(t, "BUYER_2"))

	bids, err := ts.auctions.db.GetOpenBids(a.AuctionID)
	require.NoError(t, err)
	assert.Empty(t, bids)
}

func TestCancelEndedAuctionRejected(t *testing.T) {
	ts := newTestStack(t)
	now := time.Now()
	a := ts.newActiveAuction(t, baseRequest(now.Add(time.Hour)))

	require.NoError(t, ts.auctions.SweepWindows(now.Add(2*time.Hour)))
	err := ts.auctions.CancelAuction(a.AuctionID, "SELLER_1")
	assert.ErrorIs(t, err, types.ErrIllegalTransition, "settlement owns an ended auction")
}

func TestBidStackVisibilityAndPseudonyms(t *testing.T) {
	ts := newTestStack(t)
	ts.fund(t, "BUYER_1", 1_000_000)
	ts.fund(t, "BUYER_2", 1_000_000)
	a := ts.newActiveAuction(t, baseRequest(time.Now().Add(2*time.Hour)))

	_, err := ts.auctions.PlaceBid(a.AuctionID, "BUYER_1", bidReq(100_000))
	require.NoError(t, err)

	hidden := false
	_, err = ts.auctions.PlaceBid(a.AuctionID, "BUYER_2", &PlaceBidRequest{
		AmountCents: 110_000,
		Quantity:    1,
		Visible:     &hidden,
	})
	require.NoError(t, err)

	stack, err := ts.auctions.GetBidStack(a.AuctionID)
	require.NoError(t, err)

	// Aggregates cover every live bid; the listing shows only visible ones.
	assert.Equal(t, int64(2), stack.Count)
	assert.Equal(t, int64(110_000), stack.HighBidCents)
	assert.Equal(t, int64(210_000), stack.TotalCommittedCents)
	require.Len(t, stack.VisibleBids, 1)

	entry := stack.VisibleBids[0]
	assert.Contains(t, entry.DisplayLabel, "Bidder-")
	assert.NotContains(t, entry.DisplayLabel, "BUYER_1")
	assert.Equal(t, int64(100_000), entry.AmountCents)

	// The pseudonym is stable across reads.
	again, err := ts.auctions.GetBidStack(a.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, entry.DisplayLabel, again.VisibleBids[0].DisplayLabel)
}

func TestDisplayLabelScopedPerAuction(t *testing.T) {
	a := displayLabel("AUC_1", "BUYER_1")
	b := displayLabel("AUC_2", "BUYER_1")
	assert.NotEqual(t, a, b, "the same bidder gets a fresh pseudonym per auction")
	assert.Equal(t, a, displayLabel("AUC_1", "BUYER_1"))
}

func TestConcurrentBiddingInvariants(t *testing.T) {
	ts := newTestStack(t)
	a := ts.newActiveAuction(t, baseRequest(time.Now().Add(2*time.Hour)))

	const bidders = 4
	const rounds = 5
	for i := 0; i < bidders; i++ {
		ts.fund(t, fmt.Sprintf("BUYER_%d", i), 10_000_000)
	}

	var wg sync.WaitGroup
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			bidderID := fmt.Sprintf("BUYER_%d", n)
			for j := 0; j < rounds; j++ {
				// Distinct amounts per bidder and round; many lose the
				// strict-increase race, which is the point.
				amount := 100_000 + int64(j)*10_000 + int64(n)*1_000
				_, err := ts.auctions.PlaceBid(a.AuctionID, bidderID, bidReq(amount))
				if err != nil {
					assert.ErrorIs(t, err, ErrBidTooLow)
				}
			}
		}(i)
	}
	wg.Wait()

	bids, err := ts.auctions.db.GetOpenBids(a.AuctionID)
	require.NoError(t, err)
	require.NotEmpty(t, bids)

	// Exactly one winner, and it is the ranking maximum.
	winners := 0
	var maxAmount int64
	for _, bid := range bids {
		if bid.AmountCents > maxAmount {
			maxAmount = bid.AmountCents
		}
		if bid.Status == types.BidWinning {
			winners++
			assert.Equal(t, bid.AmountCents, bids[0].AmountCents)
		}
	}
	assert.Equal(t, 1, winners)

	a, err = ts.auctions.GetAuction(a.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, maxAmount, a.CurrentHighBidCents)
	assert.Equal(t, int64(len(bids)), a.BidCount)

	// Reservation conservation: each bidder's held cash is exactly the
	// commitment of their single open bid.
	for _, bid := range bids {
		assert.Equal(t, bid.CashReservedCents, ts.held(t, bid.BidderID),
			"bidder %s", bid.BidderID)
	}
}
