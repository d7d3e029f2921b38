package test

import (
	"github.com/shopspring/decimal"
	"github.com/unimarket/callmarket/terms"
)

// MockFeeSchedule is a fee schedule that charges a flat fee per matched
// order, independent of the matched notional.
type MockFeeSchedule struct {
	baseFee decimal.Decimal
}

// NewMockFeeSchedule returns a fee schedule charging only the given flat
// base fee.
func NewMockFeeSchedule(baseFee int64) *MockFeeSchedule {
	return &MockFeeSchedule{
		baseFee: decimal.New(baseFee, 0),
	}
}

// BaseFee is the flat fee charged per matched order.
//
// NOTE: This is part of the FeeSchedule interface.
func (m *MockFeeSchedule) BaseFee() decimal.Decimal {
	return m.baseFee
}

// ExecutionFee is always zero for the mock schedule.
//
// NOTE: This is part of the FeeSchedule interface.
func (m *MockFeeSchedule) ExecutionFee(_ decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}

// A compile-time assertion to ensure MockFeeSchedule meets the FeeSchedule
// interface.
var _ terms.FeeSchedule = (*MockFeeSchedule)(nil)
