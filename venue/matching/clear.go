package matching

// walkState is the terminal state of the clearing walk over the two order
// streams. Both result forms of the engine are derived from it.
type walkState[P any] struct {
	// askPrice is the price of the most recently admitted ask, the
	// current ask frontier.
	askPrice P

	// lastBidPrice is the price of the most recently admitted bid,
	// regardless of whether the walk managed to cover it with ask supply
	// afterwards. The single-price selector reads this field, and it is
	// only ever read when bidVolume > askVolume, which implies at least
	// one bid was admitted.
	lastBidPrice P

	// rangeBidPrice is the upper endpoint candidate for the optimal
	// price range. Unlike lastBidPrice it is only advanced to a bid that
	// provably carries the maximum volume: immediately when the bid was
	// admitted while ask volume strictly exceeded bid volume, or
	// otherwise once the inner loop admits an ask with positive volume
	// on the bid's behalf.
	rangeBidPrice P

	// haveRangeBid is true once rangeBidPrice has been written.
	haveRangeBid bool

	// askVolume and bidVolume are the cumulative volumes admitted on
	// each side. At every outer loop head askVolume >= bidVolume holds.
	askVolume uint64
	bidVolume uint64
}

// matchedVolume is the total volume that clears given the terminal walk
// state.
func (s *walkState[P]) matchedVolume() uint64 {
	if s.askVolume < s.bidVolume {
		return s.askVolume
	}

	return s.bidVolume
}

// runWalk performs the coordinated two-pointer advance over the ask and bid
// streams. Bids are admitted first, then asks are pulled until the
// cumulative ask volume covers the cumulative bid volume again. The walk
// terminates when either stream is exhausted or when the next element on
// either side can no longer trade against the opposing frontier.
//
// The boolean return is false if the ask stream was empty, in which case
// the state carries no information.
//
// Each element of either stream is pulled at most once and the walk uses
// constant additional memory.
func runWalk[P any](asks, bids OrderSource[P], less Less[P]) (walkState[P],
	bool) {

	var state walkState[P]

	// Prime the ask frontier with the first (lowest priced) ask. Without
	// at least one ask no market can be made.
	firstAsk, ok := asks.Next()
	if !ok {
		return state, false
	}
	state.askPrice = firstAsk.Price
	state.askVolume = firstAsk.Volume

	for {
		// Pull the next best bid. Once the bid side runs dry the walk
		// is complete.
		bid, ok := bids.Next()
		if !ok {
			return state, true
		}

		// An incoming bid strictly below the ask frontier cannot
		// trade, and since bids only descend from here, neither can
		// any later one. The bid is not admitted.
		if less(bid.Price, state.askPrice) {
			return state, true
		}

		// Admit the bid. Whether its price becomes the range endpoint
		// right away depends on the invariant before admission: if
		// ask volume strictly exceeded bid volume, the bid is covered
		// by supply that is already admitted and extends the optimal
		// range on its own. If the two volumes were exactly tight,
		// the bid only carries the maximum volume if the inner loop
		// below manages to admit fresh (positive) ask supply for it.
		tight := state.askVolume == state.bidVolume
		state.bidVolume += bid.Volume
		state.lastBidPrice = bid.Price
		if !tight {
			state.rangeBidPrice, state.haveRangeBid = bid.Price, true
		}

		// Restore the invariant: admit asks until the cumulative ask
		// volume covers the bid side again.
		for state.askVolume < state.bidVolume {
			ask, ok := asks.Next()
			if !ok {
				return state, true
			}

			// An ask priced above the admitting bid cannot trade
			// with it, and no later bid will reach higher. The
			// ask is not admitted.
			if less(bid.Price, ask.Price) {
				return state, true
			}

			if tight && ask.Volume > 0 {
				state.rangeBidPrice = bid.Price
				state.haveRangeBid = true
			}

			state.askPrice = ask.Price
			state.askVolume += ask.Volume
		}
	}
}

// Clear runs the uniform price clearing walk over the given ask and bid
// streams and selects a single clearing price. Asks must be sorted
// non-descending and bids non-ascending under the given strict less
// predicate, the engine trusts this contract.
//
// The returned boolean is false if no positive volume can clear, which
// covers empty streams and books without price overlap. On success the
// returned fill carries the clearing price and the maximum matchable
// volume.
//
// The price is selected from the side that overshot at termination: if the
// walk ended with the bid side overshooting the admitted ask supply, the
// last admitted bid was only partially covered, making the ask side the
// binding constraint, and that bid's price clears the market. Otherwise the
// last admitted ask is binding and its price is used. Either way the price
// lies within the interval reported by ClearRange.
//
// Cumulative volumes are tracked in uint64, the caller must keep the sum of
// volumes on each side below 2^64 - 1.
func Clear[P any](asks, bids OrderSource[P], less Less[P]) (Fill[P], bool) {
	state, ok := runWalk(asks, bids, less)
	volume := state.matchedVolume()
	if !ok || volume == 0 {
		return Fill[P]{}, false
	}

	price := state.askPrice
	if state.bidVolume > state.askVolume {
		price = state.lastBidPrice
	}

	return Fill[P]{
		Price:  price,
		Volume: volume,
	}, true
}

// ClearRange runs the uniform price clearing walk over the given ask and
// bid streams and reports the full closed price interval in which the
// maximum volume is achievable. The ordering contract of Clear applies.
//
// The returned boolean is false if no positive volume can clear. On success
// the interval satisfies !less(High, Low) and both endpoints are prices of
// orders admitted by the walk: the low endpoint is the terminal ask
// frontier, the high endpoint the outermost admitted bid that still carries
// the full volume.
func ClearRange[P any](asks, bids OrderSource[P], less Less[P]) (RangeFill[P],
	bool) {

	state, ok := runWalk(asks, bids, less)
	volume := state.matchedVolume()
	if !ok || volume == 0 || !state.haveRangeBid {
		return RangeFill[P]{}, false
	}

	return RangeFill[P]{
		Range: PriceRange[P]{
			Low:  state.askPrice,
			High: state.rangeBidPrice,
		},
		Volume: volume,
	}, true
}
