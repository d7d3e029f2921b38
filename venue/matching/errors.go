package matching

import "fmt"

var (
	// ErrNoMarketPossible is returned by the venue if it isn't possible
	// to make a market based on the current set of pending orders.
	ErrNoMarketPossible = fmt.Errorf("a market cannot be made")
)
