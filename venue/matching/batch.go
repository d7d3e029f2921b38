package matching

import (
	"github.com/shopspring/decimal"
	"github.com/unimarket/callmarket/order"
)

// MatchedOrder groups together two matched orders (the ask and the bid),
// along with the number of units the pair exchanges at the uniform clearing
// price.
type MatchedOrder struct {
	// Ask is the ask that has been fully or partially matched.
	Ask *order.Ask

	// Bid is the bid that has been fully or partially matched.
	Bid *order.Bid

	// UnitsMatched is the number of units exchanged between the two
	// orders.
	UnitsMatched uint64
}

// OrderBatch is a final matched and cleared auction batch. This batch
// contains everything needed to move onto the settlement phase. The
// included TradingFeeReport is an accounting report detailing the fees
// every matched order owes the auctioneer.
type OrderBatch struct {
	// Orders is the set of matched order pairs in this batch. An order
	// may appear in multiple pairs if it was matched against several
	// counterparties.
	Orders []MatchedOrder

	// Volume is the total number of units exchanged in this batch.
	Volume uint64

	// ClearingPrice is the single price every matched order in the
	// batch settles at.
	ClearingPrice decimal.Decimal

	// ClearingRange is the full closed price interval within which the
	// batch volume would have been achievable. ClearingPrice always
	// lies within it.
	ClearingRange PriceRange[decimal.Decimal]

	// FeeReport is a report describing all trading fees owed in the
	// batch.
	FeeReport TradingFeeReport
}

// NewBatch returns a new batch with the given match data.
func NewBatch(orders []MatchedOrder, volume uint64,
	clearingPrice decimal.Decimal,
	clearingRange PriceRange[decimal.Decimal],
	feeReport TradingFeeReport) *OrderBatch {

	return &OrderBatch{
		Orders:        orders,
		Volume:        volume,
		ClearingPrice: clearingPrice,
		ClearingRange: clearingRange,
		FeeReport:     feeReport,
	}
}

// Copy performs a deep copy of the passed OrderBatch instance.
func (o *OrderBatch) Copy() OrderBatch {
	orders := make([]MatchedOrder, 0, len(o.Orders))
	for _, matchedOrder := range o.Orders {
		ask := *matchedOrder.Ask
		bid := *matchedOrder.Bid

		orders = append(orders, MatchedOrder{
			Ask:          &ask,
			Bid:          &bid,
			UnitsMatched: matchedOrder.UnitsMatched,
		})
	}

	feeReport := TradingFeeReport{
		OrderFees:             make(map[order.Nonce]decimal.Decimal),
		AuctioneerFeesAccrued: o.FeeReport.AuctioneerFeesAccrued,
	}
	for nonce, fee := range o.FeeReport.OrderFees {
		feeReport.OrderFees[nonce] = fee
	}

	return OrderBatch{
		Orders:        orders,
		Volume:        o.Volume,
		ClearingPrice: o.ClearingPrice,
		ClearingRange: o.ClearingRange,
		FeeReport:     feeReport,
	}
}

// BatchAuctioneer is the top level interface of this package as seen from
// the venue. The BatchAuctioneer implements a variant of a frequent batched
// auction: orders are staged with the Consider methods, and each batch
// interval the venue attempts to clear all staged orders at a single
// uniform price.
type BatchAuctioneer interface {
	// MaybeClear attempts to clear a batch from the set of staged
	// orders. If no market can be made ErrNoMarketPossible is returned.
	MaybeClear() (*OrderBatch, error)

	// RemoveMatches updates the staged order set by subtracting the
	// given matches' filled volume.
	RemoveMatches(...MatchedOrder) error

	// ConsiderBids adds a set of bids to the staging arena for match
	// making. Only once a bid has been considered will it be eligible
	// to be included in an OrderBatch.
	ConsiderBids(...*order.Bid) error

	// ForgetBids removes a set of bids from the staging arena.
	ForgetBids(...order.Nonce) error

	// ConsiderAsks adds a set of asks to the staging arena for match
	// making. Only once an ask has been considered will it be eligible
	// to be included in an OrderBatch.
	ConsiderAsks(...*order.Ask) error

	// ForgetAsks removes a set of asks from the staging arena.
	ForgetAsks(...order.Nonce) error
}
