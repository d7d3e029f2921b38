package terms

import (
	"github.com/shopspring/decimal"
)

// FeeRateTotalParts defines the granularity of the execution fee rate: a
// rate of one corresponds to one millionth of the traded notional.
const FeeRateTotalParts = 1_000_000

// FeeSchedule is an interface that represents the configuration source that
// the auctioneer will use to determine how much to charge in fees for each
// trader in a batch.
type FeeSchedule interface {
	// BaseFee is the base fee the auctioneer charges each side of a
	// match, independent of the matched volume.
	BaseFee() decimal.Decimal

	// ExecutionFee computes the execution fee for the given traded
	// notional value.
	ExecutionFee(notional decimal.Decimal) decimal.Decimal
}

// LinearFeeSchedule is a fee schedule that calculates the execution fee as
// a fixed rate of the traded notional, in parts per million.
type LinearFeeSchedule struct {
	baseFee decimal.Decimal
	feeRate uint32
}

// NewLinearFeeSchedule creates a new linear fee schedule from the given
// base fee and fee rate in parts per million.
func NewLinearFeeSchedule(baseFee decimal.Decimal,
	feeRatePPM uint32) *LinearFeeSchedule {

	return &LinearFeeSchedule{
		baseFee: baseFee,
		feeRate: feeRatePPM,
	}
}

// BaseFee is the base fee charged independent of the matched volume.
//
// NOTE: This is part of the FeeSchedule interface.
func (l *LinearFeeSchedule) BaseFee() decimal.Decimal {
	return l.baseFee
}

// FeeRate is the execution fee rate in parts per million.
func (l *LinearFeeSchedule) FeeRate() uint32 {
	return l.feeRate
}

// ExecutionFee computes the execution fee on the given notional value by
// applying the schedule's linear rate.
//
// NOTE: This is part of the FeeSchedule interface.
func (l *LinearFeeSchedule) ExecutionFee(
	notional decimal.Decimal) decimal.Decimal {

	rate := decimal.New(int64(l.feeRate), 0)
	total := decimal.New(FeeRateTotalParts, 0)

	return notional.Mul(rate).Div(total)
}

// A compile-time assertion to ensure LinearFeeSchedule meets the
// FeeSchedule interface.
var _ FeeSchedule = (*LinearFeeSchedule)(nil)
