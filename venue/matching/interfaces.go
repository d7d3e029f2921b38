package matching

// Order is a single limit order as seen by the clearing engine: a limit
// price paired with the volume tendered at that price. The price domain P is
// fully opaque to the engine, the only operation ever performed on it is the
// caller supplied Less predicate.
type Order[P any] struct {
	// Price is the limit price of the order.
	Price P

	// Volume is the number of units tendered at the limit price. A zero
	// volume order is valid and is admitted by the clearing walk like any
	// other order, it just doesn't contribute any units.
	Volume uint64
}

// Less is a strict comparison on the price domain P. Less(a, b) reports
// whether a sorts strictly before b. The predicate must be pure and must
// define a strict weak order consistent with the sort order of the input
// streams.
type Less[P any] func(a, b P) bool

// OrderSource is a single-pass, pull-style source of orders. The clearing
// engine pulls each element at most once and never retains a reference to a
// source beyond the duration of a single call.
//
// The engine relies on two ordering contracts that the caller is trusted to
// uphold: an ask source yields orders in non-descending price order, a bid
// source yields orders in non-ascending price order. Violating either
// contract yields an undefined (but terminating) clearing result.
type OrderSource[P any] interface {
	// Next returns the next order in the stream. The boolean is false
	// once the stream is exhausted.
	Next() (Order[P], bool)
}

// SliceSource is an OrderSource backed by an in-memory slice. It iterates
// the slice front to back without copying it.
type SliceSource[P any] struct {
	orders []Order[P]
	next   int
}

// NewSliceSource creates a new source that yields the given orders in slice
// order. The slice is not copied, the caller must not mutate it while the
// source is in use.
func NewSliceSource[P any](orders []Order[P]) *SliceSource[P] {
	return &SliceSource[P]{orders: orders}
}

// Next returns the next order of the backing slice.
//
// NOTE: This is part of the OrderSource interface.
func (s *SliceSource[P]) Next() (Order[P], bool) {
	if s.next >= len(s.orders) {
		return Order[P]{}, false
	}

	order := s.orders[s.next]
	s.next++

	return order, true
}

// A compile-time assertion to ensure that the SliceSource meets the
// OrderSource interface.
var _ OrderSource[uint64] = (*SliceSource[uint64])(nil)

// Fill is the result of a successful single-price clearing attempt: the
// uniform price every matched order settles at, and the total volume matched
// at that price.
type Fill[P any] struct {
	// Price is the uniform clearing price.
	Price P

	// Volume is the total matched volume. This is always positive, a
	// zero volume outcome is reported as no-match instead.
	Volume uint64
}

// PriceRange is a closed interval of prices. Under the caller's Less
// predicate the invariant !Less(High, Low) holds.
type PriceRange[P any] struct {
	// Low is the lower endpoint of the interval. It is always the price
	// of an ask that was admitted by the clearing walk.
	Low P

	// High is the upper endpoint of the interval. It is always the price
	// of a bid that was admitted by the clearing walk.
	High P
}

// RangeFill is the result of a successful range clearing attempt: the full
// closed price interval within which the maximum volume is achievable,
// along with that volume.
type RangeFill[P any] struct {
	// Range is the closed interval of clearing prices that all achieve
	// Volume.
	Range PriceRange[P]

	// Volume is the maximum matched volume. Always positive.
	Volume uint64
}
