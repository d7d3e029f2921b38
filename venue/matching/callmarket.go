package matching

import (
	"container/list"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/unimarket/callmarket/order"
	"github.com/unimarket/callmarket/terms"
)

// UniformPriceCallMarket is a discrete-batch auction that clears all staged
// orders at a single uniform price chosen to maximise the matched volume.
// This struct is used by the auctioneer to clear batches every period T, or
// as frequently as is needed.
//
// NOTE: This is an implementation of the BatchAuctioneer interface.
type UniformPriceCallMarket struct {
	// bids is a linked list of all staged bids.
	bids *list.List

	// bidIndex is an index into the above linked list so we can easily
	// remove bids that are cancelled or matched.
	bidIndex map[order.Nonce]*list.Element

	// asks is a linked list of all staged asks.
	asks *list.List

	// askIndex is an index into the above linked list so we can easily
	// remove asks that are cancelled or matched.
	askIndex map[order.Nonce]*list.Element

	// feeSchedule is the current fee schedule of the auctioneer. This
	// will be used to determine how much to charge traders in execution
	// fees for each batch.
	feeSchedule terms.FeeSchedule

	sync.Mutex
}

// NewUniformPriceCallMarket returns a new instance of the
// UniformPriceCallMarket struct given the fee schedule for this batch
// epoch.
func NewUniformPriceCallMarket(
	feeSchedule terms.FeeSchedule) *UniformPriceCallMarket {

	u := &UniformPriceCallMarket{
		feeSchedule: feeSchedule,
	}

	u.Lock()
	defer u.Unlock()

	u.resetOrderState()

	return u
}

// resetOrderState resets the order state to blank.
//
// NOTE: The mutex MUST be held when calling this method.
func (u *UniformPriceCallMarket) resetOrderState() {
	u.bids = list.New()
	u.bidIndex = make(map[order.Nonce]*list.Element)
	u.asks = list.New()
	u.askIndex = make(map[order.Nonce]*list.Element)
}

// ConsiderBids adds a set of bids to the staging arena for match making.
//
// NOTE: This method is part of the BatchAuctioneer interface.
func (u *UniformPriceCallMarket) ConsiderBids(bids ...*order.Bid) error {
	u.Lock()
	defer u.Unlock()

	for _, bid := range bids {
		// If the bid is already staged we don't want to double count
		// it.
		if _, ok := u.bidIndex[bid.Nonce()]; ok {
			continue
		}

		element := u.bids.PushBack(bid)
		u.bidIndex[bid.Nonce()] = element
	}

	return nil
}

// ForgetBids removes a set of bids from the staging arena. Unknown nonces
// are ignored.
//
// NOTE: This method is part of the BatchAuctioneer interface.
func (u *UniformPriceCallMarket) ForgetBids(nonces ...order.Nonce) error {
	u.Lock()
	defer u.Unlock()

	for _, nonce := range nonces {
		element, ok := u.bidIndex[nonce]
		if !ok {
			continue
		}

		u.bids.Remove(element)
		delete(u.bidIndex, nonce)
	}

	return nil
}

// ConsiderAsks adds a set of asks to the staging arena for match making.
//
// NOTE: This method is part of the BatchAuctioneer interface.
func (u *UniformPriceCallMarket) ConsiderAsks(asks ...*order.Ask) error {
	u.Lock()
	defer u.Unlock()

	for _, ask := range asks {
		if _, ok := u.askIndex[ask.Nonce()]; ok {
			continue
		}

		element := u.asks.PushBack(ask)
		u.askIndex[ask.Nonce()] = element
	}

	return nil
}

// ForgetAsks removes a set of asks from the staging arena. Unknown nonces
// are ignored.
//
// NOTE: This method is part of the BatchAuctioneer interface.
func (u *UniformPriceCallMarket) ForgetAsks(nonces ...order.Nonce) error {
	u.Lock()
	defer u.Unlock()

	for _, nonce := range nonces {
		element, ok := u.askIndex[nonce]
		if !ok {
			continue
		}

		u.asks.Remove(element)
		delete(u.askIndex, nonce)
	}

	return nil
}

// snapshotOrders returns the staged asks sorted non-descending and the
// staged bids sorted non-ascending by price. The sorts are stable so that
// the order in which orders were staged acts as the tie breaker between
// equally priced orders.
//
// NOTE: The mutex MUST be held when calling this method.
func (u *UniformPriceCallMarket) snapshotOrders() ([]*order.Ask,
	[]*order.Bid) {

	asks := make([]*order.Ask, 0, u.asks.Len())
	for e := u.asks.Front(); e != nil; e = e.Next() {
		asks = append(asks, e.Value.(*order.Ask))
	}
	bids := make([]*order.Bid, 0, u.bids.Len())
	for e := u.bids.Front(); e != nil; e = e.Next() {
		bids = append(bids, e.Value.(*order.Bid))
	}

	sort.SliceStable(asks, func(i, j int) bool {
		return order.PriceLess(asks[i].Price, asks[j].Price)
	})
	sort.SliceStable(bids, func(i, j int) bool {
		return order.PriceLess(bids[j].Price, bids[i].Price)
	})

	return asks, bids
}

// orderFill is a single order's share of a batch's matched volume.
type orderFill struct {
	order order.ServerOrder
	units uint64
}

// allocateVolume distributes the batch volume over the given orders in
// their priority order. Orders are filled to their unfulfilled volume until
// the batch volume is exhausted, the last order to receive units may end up
// partially filled.
func allocateVolume(orders []order.ServerOrder, volume uint64) []orderFill {
	fills := make([]orderFill, 0, len(orders))
	for _, o := range orders {
		if volume == 0 {
			break
		}

		units := o.Details().UnitsUnfulfilled
		if units > volume {
			units = volume
		}
		if units == 0 {
			continue
		}

		fills = append(fills, orderFill{order: o, units: units})
		volume -= units
	}

	return fills
}

// pairFills zips the per-side fills into matched order pairs. Both sides
// carry the same total volume, so the two pointer pass below consumes both
// slices fully.
func pairFills(askFills, bidFills []orderFill) []MatchedOrder {
	var matches []MatchedOrder

	i, j := 0, 0
	for i < len(askFills) && j < len(bidFills) {
		askFill, bidFill := &askFills[i], &bidFills[j]

		units := askFill.units
		if bidFill.units < units {
			units = bidFill.units
		}

		matches = append(matches, MatchedOrder{
			Ask:          askFill.order.(*order.Ask),
			Bid:          bidFill.order.(*order.Bid),
			UnitsMatched: units,
		})

		askFill.units -= units
		bidFill.units -= units
		if askFill.units == 0 {
			i++
		}
		if bidFill.units == 0 {
			j++
		}
	}

	return matches
}

// MaybeClear attempts to clear a batch from the set of staged orders. The
// staged books are handed to the clearing engine, and on success the
// engine's matched volume is allocated back to the individual orders in
// price-time priority.
//
// NOTE: This method is part of the BatchAuctioneer interface.
func (u *UniformPriceCallMarket) MaybeClear() (*OrderBatch, error) {
	u.Lock()
	defer u.Unlock()

	asks, bids := u.snapshotOrders()

	// Hand both books to the clearing engine. Each staged order
	// participates with its currently unfulfilled volume.
	askOrders := make([]Order[decimal.Decimal], len(asks))
	for i, ask := range asks {
		askOrders[i] = Order[decimal.Decimal]{
			Price:  ask.Price,
			Volume: ask.UnitsUnfulfilled,
		}
	}
	bidOrders := make([]Order[decimal.Decimal], len(bids))
	for i, bid := range bids {
		bidOrders[i] = Order[decimal.Decimal]{
			Price:  bid.Price,
			Volume: bid.UnitsUnfulfilled,
		}
	}

	fill, ok := Clear[decimal.Decimal](
		NewSliceSource(askOrders), NewSliceSource(bidOrders),
		order.PriceLess,
	)
	if !ok {
		return nil, ErrNoMarketPossible
	}

	// The range form agrees with the single price form on whether a
	// market can be made at all, so a failure here is a hard error.
	rangeFill, ok := ClearRange[decimal.Decimal](
		NewSliceSource(askOrders), NewSliceSource(bidOrders),
		order.PriceLess,
	)
	if !ok {
		return nil, fmt.Errorf("single price cleared but range " +
			"form reported no market")
	}

	// Allocate the matched volume back to the individual orders. Since
	// the engine's price is feasible for the full volume, the
	// allocation below never reaches an order whose limit price is
	// inconsistent with the clearing price.
	askFills := allocateVolume(asServerOrders(asks), fill.Volume)
	bidFills := allocateVolume(asServerOrders(bids), fill.Volume)
	matches := pairFills(askFills, bidFills)

	feeReport := NewTradingFeeReport(matches, u.feeSchedule, fill.Price)

	return NewBatch(
		matches, fill.Volume, fill.Price, rangeFill.Range, feeReport,
	), nil
}

// asServerOrders maps a typed order slice onto the ServerOrder interface.
func asServerOrders[T order.ServerOrder](orders []T) []order.ServerOrder {
	serverOrders := make([]order.ServerOrder, len(orders))
	for i, o := range orders {
		serverOrders[i] = o
	}

	return serverOrders
}

// RemoveMatches updates the staged order set by subtracting the given
// matches' filled volume. Fully filled orders are removed from the staging
// arena, partially filled ones remain staged with their remaining volume.
//
// NOTE: This method is part of the BatchAuctioneer interface.
func (u *UniformPriceCallMarket) RemoveMatches(
	matches ...MatchedOrder) error {

	u.Lock()
	defer u.Unlock()

	for _, match := range matches {
		match.Ask.UnitsFulfilled(match.UnitsMatched)
		match.Bid.UnitsFulfilled(match.UnitsMatched)

		if match.Ask.UnitsUnfulfilled == 0 {
			if element, ok := u.askIndex[match.Ask.Nonce()]; ok {
				u.asks.Remove(element)
				delete(u.askIndex, match.Ask.Nonce())
			}
		}
		if match.Bid.UnitsUnfulfilled == 0 {
			if element, ok := u.bidIndex[match.Bid.Nonce()]; ok {
				u.bids.Remove(element)
				delete(u.bidIndex, match.Bid.Nonce())
			}
		}
	}

	return nil
}

// NumStagedOrders returns the number of currently staged asks and bids.
func (u *UniformPriceCallMarket) NumStagedOrders() (int, int) {
	u.Lock()
	defer u.Unlock()

	return u.asks.Len(), u.bids.Len()
}

// A compile-time assertion to ensure that the UniformPriceCallMarket meets
// the BatchAuctioneer interface.
var _ BatchAuctioneer = (*UniformPriceCallMarket)(nil)
