package terms

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// TestLinearFeeSchedule makes sure the execution fee is a linear function
// of the notional at the configured ppm rate.
func TestLinearFeeSchedule(t *testing.T) {
	t.Parallel()

	// 1% execution fee on top of a base fee of 5.
	schedule := NewLinearFeeSchedule(decimal.New(5, 0), 10_000)

	require.True(t, schedule.BaseFee().Equal(decimal.New(5, 0)))
	require.EqualValues(t, 10_000, schedule.FeeRate())

	fee := schedule.ExecutionFee(decimal.New(1000, 0))
	require.True(t, fee.Equal(decimal.New(10, 0)))

	// Fractional notionals keep their precision.
	fee = schedule.ExecutionFee(decimal.RequireFromString("12.5"))
	require.True(t, fee.Equal(decimal.RequireFromString("0.125")))

	// A zero rate charges nothing beyond the base fee.
	free := NewLinearFeeSchedule(decimal.Zero, 0)
	require.True(t, free.ExecutionFee(
		decimal.New(1000, 0)).Equal(decimal.Zero),
	)
}
