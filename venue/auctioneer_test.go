package venue

import (
	"context"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/unimarket/callmarket/internal/test"
	"github.com/unimarket/callmarket/marketdb"
	"github.com/unimarket/callmarket/order"
	"github.com/unimarket/callmarket/venue/matching"
)

func testNonce(i byte) order.Nonce {
	var nonce order.Nonce
	nonce[0] = i

	return nonce
}

func testAsk(i byte, price int64, volume uint64) *order.Ask {
	return &order.Ask{
		Kit: order.NewKit(
			testNonce(i), decimal.New(price, 0), volume,
		),
	}
}

func testBid(i byte, price int64, volume uint64) *order.Bid {
	return &order.Bid{
		Kit: order.NewKit(
			testNonce(i), decimal.New(price, 0), volume,
		),
	}
}

// auctioneerHarness bundles an auctioneer with all its mocked out
// dependencies.
type auctioneerHarness struct {
	store       *marketdb.StoreMock
	market      *matching.UniformPriceCallMarket
	batchTicker *ticker.Force
	auctioneer  *Auctioneer
}

func newAuctioneerHarness(t *testing.T) *auctioneerHarness {
	t.Helper()

	store := marketdb.NewStoreMock()
	require.NoError(t, store.Init(context.Background()))

	market := matching.NewUniformPriceCallMarket(
		test.NewMockFeeSchedule(1),
	)
	batchTicker := ticker.NewForce(time.Hour)

	return &auctioneerHarness{
		store:       store,
		market:      market,
		batchTicker: batchTicker,
		auctioneer: NewAuctioneer(&AuctioneerConfig{
			Market:      market,
			Store:       store,
			BatchTicker: batchTicker,
		}),
	}
}

// tick force feeds a batch tick into the auction loop.
func (h *auctioneerHarness) tick(t *testing.T) {
	t.Helper()

	select {
	case h.batchTicker.Force <- time.Now():
	case <-time.After(5 * time.Second):
		t.Fatalf("unable to deliver batch tick")
	}
}

// TestAuctioneerBatchLifecycle drives the auctioneer through a full batch:
// orders are staged at startup, a tick clears them, the outcome is
// persisted and the staged books are updated.
func TestAuctioneerBatchLifecycle(t *testing.T) {
	defer leaktest.Check(t)()

	ctx := context.Background()
	h := newAuctioneerHarness(t)

	// Two fully crossing orders are already in the store before the
	// auctioneer starts.
	ask := testAsk(1, 50, 100)
	bid := testBid(2, 90, 100)
	require.NoError(t, h.store.SubmitOrder(ctx, ask))
	require.NoError(t, h.store.SubmitOrder(ctx, bid))

	require.NoError(t, h.auctioneer.Start(ctx))
	defer func() {
		require.NoError(t, h.auctioneer.Stop())
	}()

	numAsks, numBids := h.market.NumStagedOrders()
	require.Equal(t, 1, numAsks)
	require.Equal(t, 1, numBids)

	// The first tick should clear the batch and persist it as sequence
	// number one.
	h.tick(t)
	require.Eventually(t, func() bool {
		seq, err := h.store.LatestBatchSeq(ctx)
		return err == nil && seq == 1
	}, 5*time.Second, 10*time.Millisecond)

	snapshot, err := h.store.GetBatchSnapshot(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 100, snapshot.Batch.Volume)
	require.True(t, snapshot.Batch.ClearingPrice.Equal(
		decimal.New(50, 0)),
	)
	require.Len(t, snapshot.Batch.Orders, 1)

	// Both orders are fully matched: they're archived in the store and
	// no longer staged in the market.
	require.Eventually(t, func() bool {
		numAsks, numBids := h.market.NumStagedOrders()
		return numAsks == 0 && numBids == 0
	}, 5*time.Second, 10*time.Millisecond)

	storedAsk, err := h.store.GetOrder(ctx, ask.Nonce())
	require.NoError(t, err)
	require.Equal(t, order.StateExecuted, storedAsk.Details().State)

	storedBid, err := h.store.GetOrder(ctx, bid.Nonce())
	require.NoError(t, err)
	require.Equal(t, order.StateExecuted, storedBid.Details().State)

	// A second tick has nothing left to match, the batch sequence stays
	// unchanged.
	h.tick(t)
	require.Never(t, func() bool {
		seq, err := h.store.LatestBatchSeq(ctx)
		return err != nil || seq != 1
	}, 250*time.Millisecond, 25*time.Millisecond)
}

// TestAuctioneerConsiderForget tests that orders submitted and cancelled at
// runtime flow into and out of the staged books.
func TestAuctioneerConsiderForget(t *testing.T) {
	defer leaktest.Check(t)()

	ctx := context.Background()
	h := newAuctioneerHarness(t)

	require.NoError(t, h.auctioneer.Start(ctx))
	defer func() {
		require.NoError(t, h.auctioneer.Stop())
	}()

	ask := testAsk(7, 100, 25)
	require.NoError(t, h.auctioneer.ConsiderOrder(ask))

	bid := testBid(8, 90, 25)
	require.NoError(t, h.auctioneer.ConsiderOrder(bid))

	numAsks, numBids := h.market.NumStagedOrders()
	require.Equal(t, 1, numAsks)
	require.Equal(t, 1, numBids)

	// Forgetting the bid leaves only the ask staged. The books don't
	// cross, so a tick must not produce a batch.
	require.NoError(t, h.auctioneer.ForgetOrder(bid.Nonce()))

	numAsks, numBids = h.market.NumStagedOrders()
	require.Equal(t, 1, numAsks)
	require.Equal(t, 0, numBids)

	h.tick(t)
	require.Never(t, func() bool {
		seq, err := h.store.LatestBatchSeq(ctx)
		return err != nil || seq != 0
	}, 250*time.Millisecond, 25*time.Millisecond)
}
