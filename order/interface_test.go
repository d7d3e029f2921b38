package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// TestKitUnitsFulfilled exercises the order state transitions driven by
// partial and full fills.
func TestKitUnitsFulfilled(t *testing.T) {
	t.Parallel()

	nonce, err := NewNonce()
	require.NoError(t, err)

	kit := NewKit(nonce, decimal.New(10, 0), 100)
	require.Equal(t, StateSubmitted, kit.State)
	require.EqualValues(t, 100, kit.UnitsUnfulfilled)

	kit.UnitsFulfilled(40)
	require.Equal(t, StatePartiallyFilled, kit.State)
	require.EqualValues(t, 60, kit.UnitsUnfulfilled)
	require.False(t, kit.State.Archived())

	kit.UnitsFulfilled(60)
	require.Equal(t, StateExecuted, kit.State)
	require.EqualValues(t, 0, kit.UnitsUnfulfilled)
	require.True(t, kit.State.Archived())
}

// TestPriceLess makes sure the decimal comparator behaves as a strict less
// predicate, including for equal values with different representations.
func TestPriceLess(t *testing.T) {
	t.Parallel()

	require.True(t, PriceLess(decimal.New(1, 0), decimal.New(2, 0)))
	require.False(t, PriceLess(decimal.New(2, 0), decimal.New(1, 0)))

	// 1.10 and 1.1 are the same price in different representations, so
	// neither sorts before the other.
	a := decimal.RequireFromString("1.10")
	b := decimal.RequireFromString("1.1")
	require.False(t, PriceLess(a, b))
	require.False(t, PriceLess(b, a))

	// Negative prices are ordinary values.
	require.True(t, PriceLess(
		decimal.New(-10, 0), decimal.New(-5, 0),
	))
}

// TestNewNonce makes sure freshly generated nonces are unique and non-zero.
func TestNewNonce(t *testing.T) {
	t.Parallel()

	seen := make(map[Nonce]struct{})
	for i := 0; i < 100; i++ {
		nonce, err := NewNonce()
		require.NoError(t, err)
		require.NotEqual(t, ZeroNonce, nonce)

		_, ok := seen[nonce]
		require.False(t, ok)
		seen[nonce] = struct{}{}
	}
}
