package marketdb

import (
	"bytes"
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
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

// TestOrderCodecRoundTrip makes sure an order survives a trip through the
// store codec, including its concrete side.
func TestOrderCodecRoundTrip(t *testing.T) {
	t.Parallel()

	ask := testAsk(1, 42, 100)
	ask.Price = decimal.RequireFromString("42.1337")
	ask.UnitsFulfilled(25)

	var buf bytes.Buffer
	require.NoError(t, serializeOrder(&buf, ask))

	decoded, err := deserializeOrder(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	decodedAsk, ok := decoded.(*order.Ask)
	require.True(t, ok)

	require.Equal(t, ask.Nonce(), decodedAsk.Nonce())
	require.True(t, ask.Price.Equal(decodedAsk.Price))
	require.Equal(t, ask.Volume, decodedAsk.Volume)
	require.Equal(t, ask.UnitsUnfulfilled, decodedAsk.UnitsUnfulfilled)
	require.Equal(t, order.StatePartiallyFilled, decodedAsk.State)
	require.Equal(t, ask.Created.UnixNano(),
		decodedAsk.Created.UnixNano())
}

// TestBatchSnapshotCodecRoundTrip makes sure a full batch snapshot survives
// a trip through the store codec.
func TestBatchSnapshotCodecRoundTrip(t *testing.T) {
	t.Parallel()

	ask := testAsk(1, 50, 100)
	bid := testBid(2, 90, 100)

	fee := decimal.RequireFromString("12.5")
	snapshot := &BatchSnapshot{
		Seq: 7,
		Batch: &matching.OrderBatch{
			Orders: []matching.MatchedOrder{{
				Ask:          ask,
				Bid:          bid,
				UnitsMatched: 100,
			}},
			Volume:        100,
			ClearingPrice: decimal.New(70, 0),
			ClearingRange: matching.PriceRange[decimal.Decimal]{
				Low:  decimal.New(50, 0),
				High: decimal.New(90, 0),
			},
			FeeReport: matching.TradingFeeReport{
				OrderFees: map[order.Nonce]decimal.Decimal{
					ask.Nonce(): fee,
					bid.Nonce(): fee,
				},
				AuctioneerFeesAccrued: fee.Add(fee),
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, serializeBatchSnapshot(&buf, snapshot))

	decoded, err := deserializeBatchSnapshot(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	require.Equal(t, snapshot.Seq, decoded.Seq)
	require.EqualValues(t, 100, decoded.Batch.Volume)
	require.True(t, decoded.Batch.ClearingPrice.Equal(
		snapshot.Batch.ClearingPrice,
	))
	require.True(t, decoded.Batch.ClearingRange.Low.Equal(
		snapshot.Batch.ClearingRange.Low,
	))
	require.True(t, decoded.Batch.ClearingRange.High.Equal(
		snapshot.Batch.ClearingRange.High,
	))

	require.Len(t, decoded.Batch.Orders, 1)
	match := decoded.Batch.Orders[0]
	require.Equal(t, ask.Nonce(), match.Ask.Nonce())
	require.Equal(t, bid.Nonce(), match.Bid.Nonce())
	require.EqualValues(t, 100, match.UnitsMatched)

	require.Len(t, decoded.Batch.FeeReport.OrderFees, 2)
	require.True(t, decoded.Batch.FeeReport.AuctioneerFeesAccrued.Equal(
		decimal.New(25, 0),
	))
}

// TestStoreMockOrderLifecycle exercises the full order lifecycle against
// the mock store: submit, duplicate rejection, update, archival.
func TestStoreMockOrderLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStoreMock()

	// Submitting an order should be refused before initialization.
	require.Error(t, store.SubmitOrder(ctx, testAsk(1, 10, 10)))

	require.NoError(t, store.Init(ctx))
	require.Error(t, store.Init(ctx))

	ask := testAsk(1, 10, 10)
	require.NoError(t, store.SubmitOrder(ctx, ask))
	require.ErrorIs(
		t, store.SubmitOrder(ctx, testAsk(1, 20, 20)),
		ErrOrderExists,
	)

	orders, err := store.GetOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	// Canceling the order archives it: it is no longer listed but can
	// still be fetched by nonce.
	require.NoError(t, store.UpdateOrder(
		ctx, ask.Nonce(), order.StateModifier(order.StateCanceled),
	))

	orders, err = store.GetOrders(ctx)
	require.NoError(t, err)
	require.Empty(t, orders)

	archived, err := store.GetOrder(ctx, ask.Nonce())
	require.NoError(t, err)
	require.Equal(t, order.StateCanceled, archived.Details().State)

	require.ErrorIs(
		t, store.UpdateOrder(
			ctx, ask.Nonce(),
			order.StateModifier(order.StateSubmitted),
		),
		ErrNoOrder,
	)
}

// TestStoreMockPersistBatchResult asserts that persisting a batch bumps the
// sequence, applies the order modifiers and stores a fetchable snapshot.
func TestStoreMockPersistBatchResult(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStoreMock()
	require.NoError(t, store.Init(ctx))

	ask := testAsk(1, 50, 100)
	bid := testBid(2, 90, 150)
	require.NoError(t, store.SubmitOrder(ctx, ask))
	require.NoError(t, store.SubmitOrder(ctx, bid))

	batch := &matching.OrderBatch{
		Orders: []matching.MatchedOrder{{
			Ask:          ask,
			Bid:          bid,
			UnitsMatched: 100,
		}},
		Volume:        100,
		ClearingPrice: decimal.New(90, 0),
	}

	err := store.PersistBatchResult(
		ctx,
		[]order.Nonce{ask.Nonce(), bid.Nonce()},
		[][]order.Modifier{
			{order.UnitsFulfilledModifier(100)},
			{order.UnitsFulfilledModifier(100)},
		},
		batch,
	)
	require.NoError(t, err)

	seq, err := store.LatestBatchSeq(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, seq)

	snapshot, err := store.GetBatchSnapshot(ctx, seq)
	require.NoError(t, err)
	require.EqualValues(t, 100, snapshot.Batch.Volume)

	_, err = store.GetBatchSnapshot(ctx, seq+1)
	require.ErrorIs(t, err, ErrNoBatch)

	// The fully matched ask is archived, the partially matched bid
	// stays active with its remaining volume.
	orders, err := store.GetOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, bid.Nonce(), orders[0].Nonce())
	require.EqualValues(t, 50, orders[0].Details().UnitsUnfulfilled)
}
