package matching

import (
	"math"
	"math/rand"
	"reflect"
	"sort"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/require"
)

var (
	posInf = math.Inf(1)
	negInf = math.Inf(-1)
)

func lessFloat(a, b float64) bool {
	return a < b
}

// o is a tiny helper to cut down on literal noise in the scenario tables.
func o(price float64, volume uint64) Order[float64] {
	return Order[float64]{Price: price, Volume: volume}
}

// TestClearScenarios runs both entry points through a set of end-to-end
// clearing scenarios covering partial fills of the marginal order, books
// without overlap, zero volume orders and infinite prices.
func TestClearScenarios(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		asks []Order[float64]
		bids []Order[float64]

		expectMatch bool
		fill        Fill[float64]
		rangeFill   RangeFill[float64]
	}{{
		name: "single ask partial marginal bid",
		asks: []Order[float64]{o(20, 100)},
		bids: []Order[float64]{
			o(100, 20), o(90, 20), o(80, 20), o(70, 20),
			o(60, 20), o(50, 20), o(40, 20),
		},
		expectMatch: true,
		fill:        Fill[float64]{Price: 50, Volume: 100},
		rangeFill: RangeFill[float64]{
			Range:  PriceRange[float64]{Low: 20, High: 60},
			Volume: 100,
		},
	}, {
		name: "bid side overshoots single ask",
		asks: []Order[float64]{o(50, 100)},
		bids: []Order[float64]{o(100, 60), o(90, 60), o(80, 60)},

		expectMatch: true,
		fill:        Fill[float64]{Price: 90, Volume: 100},
		rangeFill: RangeFill[float64]{
			Range:  PriceRange[float64]{Low: 50, High: 90},
			Volume: 100,
		},
	}, {
		name: "balanced book clears fully",
		asks: []Order[float64]{o(50, 100), o(60, 100), o(70, 100)},
		bids: []Order[float64]{o(100, 100), o(90, 100), o(80, 100)},

		expectMatch: true,
		fill:        Fill[float64]{Price: 70, Volume: 300},
		rangeFill: RangeFill[float64]{
			Range:  PriceRange[float64]{Low: 70, High: 80},
			Volume: 300,
		},
	}, {
		name: "no overlap no market",
		asks: []Order[float64]{o(80, 100), o(90, 100), o(100, 100)},
		bids: []Order[float64]{o(70, 100), o(60, 100), o(50, 100)},

		expectMatch: false,
	}, {
		name: "price break inside inner loop",
		asks: []Order[float64]{o(5, 10), o(15, 10), o(25, 10)},
		bids: []Order[float64]{o(30, 15), o(20, 10), o(10, 10)},

		expectMatch: true,
		fill:        Fill[float64]{Price: 20, Volume: 20},
		rangeFill: RangeFill[float64]{
			Range:  PriceRange[float64]{Low: 15, High: 20},
			Volume: 20,
		},
	}, {
		name: "infinite prices",
		asks: []Order[float64]{o(negInf, 10), o(-20, 10), o(posInf, 10)},
		bids: []Order[float64]{o(posInf, 10), o(-20, 10), o(negInf, 10)},

		expectMatch: true,
		fill:        Fill[float64]{Price: -20, Volume: 20},
		rangeFill: RangeFill[float64]{
			Range:  PriceRange[float64]{Low: -20, High: -20},
			Volume: 20,
		},
	}, {
		name: "zero volume ask never pulled",
		asks: []Order[float64]{o(10, 5), o(15, 0)},
		bids: []Order[float64]{o(20, 5)},

		expectMatch: true,
		fill:        Fill[float64]{Price: 10, Volume: 5},
		rangeFill: RangeFill[float64]{
			Range:  PriceRange[float64]{Low: 10, High: 20},
			Volume: 5,
		},
	}, {
		name: "zero volume ask admitted",
		asks: []Order[float64]{o(10, 10), o(10, 0)},
		bids: []Order[float64]{o(30, 10), o(25, 10)},

		expectMatch: true,
		fill:        Fill[float64]{Price: 25, Volume: 10},
		rangeFill: RangeFill[float64]{
			Range:  PriceRange[float64]{Low: 10, High: 30},
			Volume: 10,
		},
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fill, ok := Clear[float64](
				NewSliceSource(tc.asks),
				NewSliceSource(tc.bids), lessFloat,
			)
			require.Equal(t, tc.expectMatch, ok, "clear match")
			if tc.expectMatch {
				require.Equal(t, tc.fill, fill)
			}

			rangeFill, ok := ClearRange[float64](
				NewSliceSource(tc.asks),
				NewSliceSource(tc.bids), lessFloat,
			)
			require.Equal(t, tc.expectMatch, ok, "range match")
			if tc.expectMatch {
				require.Equal(t, tc.rangeFill, rangeFill)
			}
		})
	}
}

// TestClearEmptySides asserts that empty streams on either side yield a
// no-match on both entry points.
func TestClearEmptySides(t *testing.T) {
	t.Parallel()

	asks := []Order[float64]{o(10, 10)}
	bids := []Order[float64]{o(20, 10)}

	_, ok := Clear[float64](
		NewSliceSource[float64](nil), NewSliceSource(bids), lessFloat,
	)
	require.False(t, ok)

	_, ok = Clear[float64](
		NewSliceSource(asks), NewSliceSource[float64](nil), lessFloat,
	)
	require.False(t, ok)

	_, ok = ClearRange[float64](
		NewSliceSource[float64](nil), NewSliceSource[float64](nil),
		lessFloat,
	)
	require.False(t, ok)
}

// TestClearIntegerPrices asserts that a non floating point price domain is
// handled exactly the same way, given a matching comparator.
func TestClearIntegerPrices(t *testing.T) {
	t.Parallel()

	asks := []Order[uint32]{
		{Price: 5, Volume: 10}, {Price: 15, Volume: 10},
	}
	bids := []Order[uint32]{
		{Price: 20, Volume: 15}, {Price: 10, Volume: 10},
	}
	less := func(a, b uint32) bool { return a < b }

	fill, ok := Clear[uint32](NewSliceSource(asks), NewSliceSource(bids), less)
	require.True(t, ok)
	require.Equal(t, Fill[uint32]{Price: 15, Volume: 15}, fill)

	rangeFill, ok := ClearRange[uint32](
		NewSliceSource(asks), NewSliceSource(bids), less,
	)
	require.True(t, ok)
	require.Equal(t, RangeFill[uint32]{
		Range:  PriceRange[uint32]{Low: 15, High: 20},
		Volume: 15,
	}, rangeFill)
}

// testBook is a randomly generated, properly sorted pair of order streams.
type testBook struct {
	Asks []Order[float64]
	Bids []Order[float64]
}

// genRandBook generates a random order book with clustered prices so that
// equal price levels, zero volumes and crossings all occur regularly.
func genRandBook(r *rand.Rand, maxOrders int) testBook {
	numAsks := r.Intn(maxOrders)
	numBids := r.Intn(maxOrders)

	randOrder := func() Order[float64] {
		// A coarse price grid makes equal prices likely.
		price := float64(r.Intn(20))

		// Roughly one in five orders carries no volume at all.
		var volume uint64
		if r.Intn(5) > 0 {
			volume = uint64(r.Intn(10) + 1)
		}

		return Order[float64]{Price: price, Volume: volume}
	}

	book := testBook{
		Asks: make([]Order[float64], numAsks),
		Bids: make([]Order[float64], numBids),
	}
	for i := range book.Asks {
		book.Asks[i] = randOrder()
	}
	for i := range book.Bids {
		book.Bids[i] = randOrder()
	}

	sort.SliceStable(book.Asks, func(i, j int) bool {
		return book.Asks[i].Price < book.Asks[j].Price
	})
	sort.SliceStable(book.Bids, func(i, j int) bool {
		return book.Bids[i].Price > book.Bids[j].Price
	})

	return book
}

// cumulativeVolumes returns the cumulative ask volume at prices <= p and the
// cumulative bid volume at prices >= p for the full book.
func cumulativeVolumes(book testBook, p float64) (uint64, uint64) {
	var askVolume, bidVolume uint64
	for _, ask := range book.Asks {
		if ask.Price <= p {
			askVolume += ask.Volume
		}
	}
	for _, bid := range book.Bids {
		if bid.Price >= p {
			bidVolume += bid.Volume
		}
	}

	return askVolume, bidVolume
}

// maxClearableVolume is the brute force oracle: the maximum over all
// candidate prices of the volume that could clear at that price. Only order
// prices need to be considered, any price between two levels is dominated by
// one of them.
func maxClearableVolume(book testBook) uint64 {
	var max uint64
	check := func(p float64) {
		askVolume, bidVolume := cumulativeVolumes(book, p)
		volume := askVolume
		if bidVolume < volume {
			volume = bidVolume
		}
		if volume > max {
			max = volume
		}
	}
	for _, ask := range book.Asks {
		check(ask.Price)
	}
	for _, bid := range book.Bids {
		check(bid.Price)
	}

	return max
}

// quickBooks returns a quick.Config generating random sorted books.
func quickBooks(maxOrders int) quick.Config {
	return quick.Config{
		Values: func(v []reflect.Value, r *rand.Rand) {
			v[0] = reflect.ValueOf(genRandBook(r, maxOrders))
		},
	}
}

// TestClearVolumeMaximality asserts that for random books the cleared
// volume equals the brute force maximum, and that a no-match is reported
// exactly when that maximum is zero.
func TestClearVolumeMaximality(t *testing.T) {
	t.Parallel()

	scenario := func(book testBook) bool {
		oracle := maxClearableVolume(book)

		fill, ok := Clear[float64](
			NewSliceSource(book.Asks), NewSliceSource(book.Bids),
			lessFloat,
		)
		if !ok {
			return oracle == 0
		}

		return fill.Volume == oracle
	}

	quickCfg := quickBooks(25)
	require.NoError(t, quick.Check(scenario, &quickCfg))
}

// TestClearPriceFeasibility asserts that the full returned range, its
// endpoints and the single clearing price all actually support the maximum
// volume on the underlying book.
func TestClearPriceFeasibility(t *testing.T) {
	t.Parallel()

	scenario := func(book testBook) bool {
		fill, ok := Clear[float64](
			NewSliceSource(book.Asks), NewSliceSource(book.Bids),
			lessFloat,
		)
		rangeFill, rangeOK := ClearRange[float64](
			NewSliceSource(book.Asks), NewSliceSource(book.Bids),
			lessFloat,
		)

		// Both entry points must agree on whether a market can be
		// made at all.
		if ok != rangeOK {
			return false
		}
		if !ok {
			return true
		}

		// The volumes must agree and the single price must lie within
		// the range.
		low, high := rangeFill.Range.Low, rangeFill.Range.High
		switch {
		case fill.Volume != rangeFill.Volume:
			return false

		case lessFloat(high, low):
			return false

		case lessFloat(fill.Price, low) || lessFloat(high, fill.Price):
			return false
		}

		// Every candidate price within the range must support the
		// full volume, including both endpoints and the selected
		// price.
		feasible := func(p float64) bool {
			askVolume, bidVolume := cumulativeVolumes(book, p)
			volume := askVolume
			if bidVolume < volume {
				volume = bidVolume
			}
			return volume == fill.Volume
		}
		if !feasible(low) || !feasible(high) || !feasible(fill.Price) {
			return false
		}
		for _, ask := range book.Asks {
			p := ask.Price
			if p >= low && p <= high && !feasible(p) {
				return false
			}
		}
		for _, bid := range book.Bids {
			p := bid.Price
			if p >= low && p <= high && !feasible(p) {
				return false
			}
		}

		return true
	}

	quickCfg := quickBooks(25)
	require.NoError(t, quick.Check(scenario, &quickCfg))
}

// TestClearZeroVolumeIdempotence asserts that sprinkling zero volume orders
// into either side never changes the cleared volume.
func TestClearZeroVolumeIdempotence(t *testing.T) {
	t.Parallel()

	scenario := func(book testBook) bool {
		baseVolume := uint64(0)
		fill, ok := Clear[float64](
			NewSliceSource(book.Asks), NewSliceSource(book.Bids),
			lessFloat,
		)
		if ok {
			baseVolume = fill.Volume
		}

		// Duplicate every order as a zero volume twin right next to
		// it. This keeps both sort contracts intact.
		zeroPad := func(orders []Order[float64]) []Order[float64] {
			padded := make([]Order[float64], 0, len(orders)*2)
			for _, order := range orders {
				padded = append(padded, order, Order[float64]{
					Price: order.Price,
				})
			}
			return padded
		}

		paddedVolume := uint64(0)
		fill, ok = Clear[float64](
			NewSliceSource(zeroPad(book.Asks)),
			NewSliceSource(zeroPad(book.Bids)), lessFloat,
		)
		if ok {
			paddedVolume = fill.Volume
		}

		return baseVolume == paddedVolume
	}

	quickCfg := quickBooks(20)
	require.NoError(t, quick.Check(scenario, &quickCfg))
}

// countingSource wraps an OrderSource and counts how many elements were
// actually consumed from it.
type countingSource struct {
	wrapped  OrderSource[float64]
	consumed int
}

func (c *countingSource) Next() (Order[float64], bool) {
	order, ok := c.wrapped.Next()
	if ok {
		c.consumed++
	}

	return order, ok
}

// TestClearIteratorThrift asserts that the walk consumes each input element
// at most once on both sides.
func TestClearIteratorThrift(t *testing.T) {
	t.Parallel()

	scenario := func(book testBook) bool {
		asks := &countingSource{
			wrapped: NewSliceSource(book.Asks),
		}
		bids := &countingSource{
			wrapped: NewSliceSource(book.Bids),
		}

		Clear[float64](asks, bids, lessFloat)

		return asks.consumed <= len(book.Asks) &&
			bids.consumed <= len(book.Bids)
	}

	quickCfg := quickBooks(25)
	require.NoError(t, quick.Check(scenario, &quickCfg))
}
