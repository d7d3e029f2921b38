package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrInvalidVolume is returned if an order is submitted with zero
	// volume.
	ErrInvalidVolume = errors.New("order volume must be positive")

	// ErrVolumeTooLarge is returned if an order is submitted whose
	// volume exceeds the per-order cap of the market.
	ErrVolumeTooLarge = errors.New("order volume exceeds market maximum")

	// ErrInvalidNonce is returned if an order is submitted with an unset
	// nonce.
	ErrInvalidNonce = errors.New("order nonce is not set")
)

// BookConfig contains all of the required dependencies for the Book to
// carry out its duties.
type BookConfig struct {
	// Store is responsible for storing and retrieving order information.
	Store Store

	// MaxOrderVolume is the maximum volume a single order may tender.
	// This keeps the cumulative volume sums of a clearing attempt far
	// away from the accumulator width.
	MaxOrderVolume uint64
}

// Book is the representation of the auctioneer's order book. It accepts and
// cancels orders on behalf of traders and hands the staged order set to the
// venue at each batch tick.
type Book struct {
	started sync.Once
	stopped sync.Once

	cfg BookConfig

	quit chan struct{}
}

// NewBook instantiates a new book backed by the given store.
func NewBook(cfg *BookConfig) *Book {
	return &Book{
		cfg:  *cfg,
		quit: make(chan struct{}),
	}
}

// Start makes sure the book is ready to accept orders.
func (b *Book) Start(ctx context.Context) error {
	var startErr error
	b.started.Do(func() {
		log.Infof("Starting order book")

		orders, err := b.cfg.Store.GetOrders(ctx)
		if err != nil {
			startErr = fmt.Errorf("unable to load active "+
				"orders: %v", err)
			return
		}

		log.Infof("Order book started with %v active orders",
			len(orders))
	})

	return startErr
}

// Stop shuts the book down.
func (b *Book) Stop() {
	b.stopped.Do(func() {
		log.Infof("Stopping order book")

		close(b.quit)
	})
}

// validate enforces the market's intake rules on a new order. The clearing
// engine itself is total over zero volumes and arbitrary prices, but orders
// accepted from traders must carry actual volume.
func (b *Book) validate(o ServerOrder) error {
	kit := o.Details()

	switch {
	case kit.Nonce() == ZeroNonce:
		return ErrInvalidNonce

	case kit.Volume == 0:
		return ErrInvalidVolume

	case b.cfg.MaxOrderVolume != 0 &&
		kit.Volume > b.cfg.MaxOrderVolume:

		return ErrVolumeTooLarge
	}

	return nil
}

// SubmitOrder validates and stores a new order, making it eligible for the
// next batch.
func (b *Book) SubmitOrder(ctx context.Context, o ServerOrder) error {
	if err := b.validate(o); err != nil {
		return err
	}

	if err := b.cfg.Store.SubmitOrder(ctx, o); err != nil {
		return err
	}

	kit := o.Details()
	log.Infof("New order submitted: nonce=%v, ask=%v, price=%v, "+
		"volume=%v", kit.Nonce(), o.IsAsk(), kit.Price, kit.Volume)

	return nil
}

// CancelOrder removes an order from the book. Already matched volume is
// unaffected, the remaining unfulfilled volume is withdrawn from future
// batches.
func (b *Book) CancelOrder(ctx context.Context, nonce Nonce) error {
	err := b.cfg.Store.UpdateOrder(
		ctx, nonce, StateModifier(StateCanceled),
	)
	if err != nil {
		return err
	}

	log.Infof("Order canceled: nonce=%v", nonce)

	return nil
}

// ActiveOrders returns the set of all non-archived orders, split into asks
// and bids.
func (b *Book) ActiveOrders(ctx context.Context) ([]*Ask, []*Bid, error) {
	dbOrders, err := b.cfg.Store.GetOrders(ctx)
	if err != nil {
		return nil, nil, err
	}

	var (
		asks []*Ask
		bids []*Bid
	)
	for _, o := range dbOrders {
		switch typedOrder := o.(type) {
		case *Ask:
			asks = append(asks, typedOrder)

		case *Bid:
			bids = append(bids, typedOrder)

		default:
			return nil, nil, fmt.Errorf("unknown order type %T",
				o)
		}
	}

	return asks, bids, nil
}
