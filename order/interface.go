package order

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/shopspring/decimal"
)

// Nonce is a 32-byte identifier that uniquely identifies an order within the
// market.
type Nonce [32]byte

// String returns the hex encoded nonce.
func (n Nonce) String() string {
	return hex.EncodeToString(n[:])
}

// ZeroNonce is the empty nonce, used to signal an unset order identifier.
var ZeroNonce Nonce

// NewNonce generates a fresh random order nonce.
func NewNonce() (Nonce, error) {
	var nonce Nonce
	if _, err := rand.Read(nonce[:]); err != nil {
		return nonce, err
	}

	return nonce, nil
}

// PriceLess is the strict comparison on decimal limit prices that the
// clearing engine is driven with for this market.
func PriceLess(a, b decimal.Decimal) bool {
	return a.Cmp(b) < 0
}

// State describes the lifecycle state of an order on the server side.
type State uint8

const (
	// StateSubmitted is the state an order is in after it has been
	// accepted into the order book and before it participated in any
	// batch.
	StateSubmitted State = 0

	// StatePartiallyFilled is the state of an order that was matched in
	// a batch but still has unfulfilled volume staged for future
	// batches.
	StatePartiallyFilled State = 1

	// StateExecuted is the state of an order whose volume has been fully
	// matched. Executed orders are archived.
	StateExecuted State = 2

	// StateCanceled is the state of an order that was removed from the
	// book before being fully matched. Canceled orders are archived.
	StateCanceled State = 3
)

// String returns a human readable representation of an order state.
func (s State) String() string {
	switch s {
	case StateSubmitted:
		return "submitted"
	case StatePartiallyFilled:
		return "partially_filled"
	case StateExecuted:
		return "executed"
	case StateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Archived returns true if the state is a terminal one.
func (s State) Archived() bool {
	return s == StateExecuted || s == StateCanceled
}

// Kit bundles the fields common to both sides of the market. Both Ask and
// Bid embed it.
type Kit struct {
	nonce Nonce

	// Price is the limit price of the order, denominated in the quote
	// asset per unit of the base asset.
	Price decimal.Decimal

	// Volume is the total number of units originally tendered.
	Volume uint64

	// UnitsUnfulfilled is the number of units that have not been matched
	// yet. This is the volume the order participates with in the next
	// batch.
	UnitsUnfulfilled uint64

	// State is the current lifecycle state of the order.
	State State

	// Created is the time the order was accepted into the book.
	Created time.Time
}

// NewKit creates a fresh order kit for the given nonce, price and volume.
func NewKit(nonce Nonce, price decimal.Decimal, volume uint64) Kit {
	return Kit{
		nonce:            nonce,
		Price:            price,
		Volume:           volume,
		UnitsUnfulfilled: volume,
		State:            StateSubmitted,
		Created:          time.Now(),
	}
}

// Nonce returns the order's unique identifier.
func (k *Kit) Nonce() Nonce {
	return k.nonce
}

// SetNonce overwrites the order's identifier. This is only meant to be used
// when deserializing orders from persistent storage.
func (k *Kit) SetNonce(nonce Nonce) {
	k.nonce = nonce
}

// Ask is an offer to sell a volume of units at or above a limit price.
type Ask struct {
	Kit
}

// Bid is an offer to buy a volume of units at or below a limit price.
type Bid struct {
	Kit
}

// ServerOrder is the common interface of asks and bids as handled by the
// auctioneer.
type ServerOrder interface {
	// Nonce returns the order's unique identifier.
	Nonce() Nonce

	// Details returns the common order fields.
	Details() *Kit

	// IsAsk returns true for asks and false for bids.
	IsAsk() bool
}

// Details returns the common order fields.
//
// NOTE: This is part of the ServerOrder interface.
func (a *Ask) Details() *Kit {
	return &a.Kit
}

// IsAsk returns true.
//
// NOTE: This is part of the ServerOrder interface.
func (a *Ask) IsAsk() bool {
	return true
}

// Details returns the common order fields.
//
// NOTE: This is part of the ServerOrder interface.
func (b *Bid) Details() *Kit {
	return &b.Kit
}

// IsAsk returns false.
//
// NOTE: This is part of the ServerOrder interface.
func (b *Bid) IsAsk() bool {
	return false
}

// Compile-time assertions that both order types implement ServerOrder.
var _ ServerOrder = (*Ask)(nil)
var _ ServerOrder = (*Bid)(nil)

// Modifier is a closure that mutates an order kit. Modifiers are applied
// atomically by the store when updating persisted orders.
type Modifier func(*Kit)

// StateModifier returns a modifier that sets the order's state.
func StateModifier(state State) Modifier {
	return func(kit *Kit) {
		kit.State = state
	}
}

// UnitsFulfilled marks the given number of matched units as filled,
// reducing the unfulfilled volume and transitioning the order state
// accordingly.
func (k *Kit) UnitsFulfilled(unitsMatched uint64) {
	if unitsMatched >= k.UnitsUnfulfilled {
		k.UnitsUnfulfilled = 0
		k.State = StateExecuted
		return
	}

	k.UnitsUnfulfilled -= unitsMatched
	k.State = StatePartiallyFilled
}

// UnitsFulfilledModifier returns a modifier that reduces the order's
// unfulfilled volume by the given number of matched units and transitions
// the state accordingly.
func UnitsFulfilledModifier(unitsMatched uint64) Modifier {
	return func(kit *Kit) {
		kit.UnitsFulfilled(unitsMatched)
	}
}

// Store is the interface a persistent backend must implement to be usable
// as an order store by the book and the auctioneer.
type Store interface {
	// SubmitOrder stores a new order. ErrOrderExists is returned if an
	// order with the same nonce already exists.
	SubmitOrder(context.Context, ServerOrder) error

	// UpdateOrder applies the given modifiers to the order with the
	// given nonce. Orders that end up in a terminal state are moved to
	// the archive.
	UpdateOrder(context.Context, Nonce, ...Modifier) error

	// GetOrder returns the order with the given nonce, active or
	// archived. ErrNoOrder is returned if the nonce is unknown.
	GetOrder(context.Context, Nonce) (ServerOrder, error)

	// GetOrders returns all non-archived orders.
	GetOrders(context.Context) ([]ServerOrder, error)
}
