package matching

import (
	"github.com/shopspring/decimal"
	"github.com/unimarket/callmarket/order"
	"github.com/unimarket/callmarket/terms"
)

// TradingFeeReport is the breakdown of the trading fees accrued by the
// auctioneer during a batch.
type TradingFeeReport struct {
	// OrderFees maps an order's nonce to the total fee the order owes
	// for its participation in the batch.
	OrderFees map[order.Nonce]decimal.Decimal

	// AuctioneerFeesAccrued is the total amount the auctioneer gained in
	// this batch. This is the sum of all entries in the OrderFees map.
	AuctioneerFeesAccrued decimal.Decimal
}

// NewTradingFeeReport creates a new trading fee report given a set of
// matched orders, the clearing price for the batch, and the fee schedule of
// the auctioneer. Each side of a match pays the base fee once per batch,
// plus the execution fee on every unit of notional it trades.
func NewTradingFeeReport(matches []MatchedOrder,
	feeSchedule terms.FeeSchedule,
	clearingPrice decimal.Decimal) TradingFeeReport {

	orderFees := make(map[order.Nonce]decimal.Decimal)
	var totalFeesAccrued decimal.Decimal

	charge := func(nonce order.Nonce, unitsMatched uint64) {
		notional := clearingPrice.Mul(
			decimal.New(int64(unitsMatched), 0),
		)
		fee := feeSchedule.ExecutionFee(notional)

		// The base fee is only charged once per order and batch, no
		// matter how many pairs the order was split across.
		if _, ok := orderFees[nonce]; !ok {
			fee = fee.Add(feeSchedule.BaseFee())
		}

		orderFees[nonce] = orderFees[nonce].Add(fee)
		totalFeesAccrued = totalFeesAccrued.Add(fee)
	}

	for _, match := range matches {
		charge(match.Ask.Nonce(), match.UnitsMatched)
		charge(match.Bid.Nonce(), match.UnitsMatched)
	}

	return TradingFeeReport{
		OrderFees:             orderFees,
		AuctioneerFeesAccrued: totalFeesAccrued,
	}
}
