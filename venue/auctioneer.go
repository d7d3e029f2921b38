package venue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/unimarket/callmarket/marketdb"
	"github.com/unimarket/callmarket/monitoring"
	"github.com/unimarket/callmarket/order"
	"github.com/unimarket/callmarket/venue/matching"
)

const (
	// dbTimeout is the maximum time we allow a single batch persist
	// operation to take.
	dbTimeout = 30 * time.Second
)

// AuctioneerConfig contains all of the required dependencies for the
// Auctioneer to carry out its duties.
type AuctioneerConfig struct {
	// Market is the call market that stages orders and clears batches.
	Market matching.BatchAuctioneer

	// Store is the market's persistent state.
	Store marketdb.Store

	// BatchTicker fires each time a new batch clearing attempt should
	// be made.
	BatchTicker ticker.Ticker
}

// Auctioneer is the main event loop of the venue. Each batch interval it
// takes the staged order set, attempts to clear it at a single uniform
// price, and persists the outcome.
type Auctioneer struct {
	started sync.Once
	stopped sync.Once

	cfg AuctioneerConfig

	wg   sync.WaitGroup
	quit chan struct{}
}

// NewAuctioneer returns a new Auctioneer instance given its config.
func NewAuctioneer(cfg *AuctioneerConfig) *Auctioneer {
	return &Auctioneer{
		cfg:  *cfg,
		quit: make(chan struct{}),
	}
}

// Start stages all active orders from the store and launches the batch
// loop.
func (a *Auctioneer) Start(ctx context.Context) error {
	var startErr error
	a.started.Do(func() {
		log.Infof("Auctioneer starting...")

		// Stage all orders that survived the last shutdown so they
		// participate in the next batch again.
		activeOrders, err := a.cfg.Store.GetOrders(ctx)
		if err != nil {
			startErr = fmt.Errorf("unable to load active "+
				"orders: %v", err)
			return
		}
		for _, activeOrder := range activeOrders {
			if err := a.ConsiderOrder(activeOrder); err != nil {
				startErr = err
				return
			}
		}

		log.Infof("Staged %v active orders for the next batch",
			len(activeOrders))

		a.cfg.BatchTicker.Resume()

		a.wg.Add(1)
		go a.auctionLoop()
	})

	return startErr
}

// Stop shuts down the batch loop.
func (a *Auctioneer) Stop() error {
	a.stopped.Do(func() {
		log.Infof("Auctioneer stopping...")

		a.cfg.BatchTicker.Stop()

		close(a.quit)
		a.wg.Wait()
	})

	return nil
}

// ConsiderOrder stages a new order for the coming batches.
func (a *Auctioneer) ConsiderOrder(o order.ServerOrder) error {
	switch typedOrder := o.(type) {
	case *order.Ask:
		return a.cfg.Market.ConsiderAsks(typedOrder)

	case *order.Bid:
		return a.cfg.Market.ConsiderBids(typedOrder)

	default:
		return fmt.Errorf("unknown order type %T", o)
	}
}

// ForgetOrder removes an order from the staging arena, for example after it
// has been cancelled. Unknown nonces are ignored.
func (a *Auctioneer) ForgetOrder(nonce order.Nonce) error {
	if err := a.cfg.Market.ForgetAsks(nonce); err != nil {
		return err
	}

	return a.cfg.Market.ForgetBids(nonce)
}

// auctionLoop is the main event loop of the auctioneer. It runs a clearing
// attempt for each batch tick until shutdown.
func (a *Auctioneer) auctionLoop() {
	defer a.wg.Done()

	for {
		select {
		case <-a.cfg.BatchTicker.Ticks():
			if err := a.clearBatch(); err != nil {
				log.Errorf("Unable to clear batch: %v", err)
			}

		case <-a.quit:
			return
		}
	}
}

// clearBatch performs a single batch clearing attempt: match the staged
// orders, persist the resulting batch and apply the fills to the staged
// books.
func (a *Auctioneer) clearBatch() error {
	monitoring.ObserveBatchMatchAttempt()

	matchStart := time.Now()
	batch, err := a.cfg.Market.MaybeClear()
	switch {
	// No overlap between the staged asks and bids, nothing to do until
	// the books change.
	case err == matching.ErrNoMarketPossible:
		log.Debugf("No market possible for the current batch")
		monitoring.ObserveNoMarketPossible()
		return nil

	case err != nil:
		return err
	}
	matchLatency := time.Since(matchStart)

	// Persist the batch and all order state transitions atomically
	// before touching the staged books. If the persist fails, the next
	// tick retries with unchanged state.
	nonces, modifiers := batchModifiers(batch)

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	err = a.cfg.Store.PersistBatchResult(ctx, nonces, modifiers, batch)
	if err != nil {
		return fmt.Errorf("unable to persist batch: %v", err)
	}

	if err := a.cfg.Market.RemoveMatches(batch.Orders...); err != nil {
		return fmt.Errorf("unable to remove matches: %v", err)
	}

	monitoring.ObserveBatch(batch, matchLatency)

	log.Infof("Cleared batch: %v matches, volume=%v, "+
		"clearing_price=%v, range=[%v, %v]", len(batch.Orders),
		batch.Volume, batch.ClearingPrice, batch.ClearingRange.Low,
		batch.ClearingRange.High)
	log.Tracef("Batch details: %v", spew.Sdump(batch))

	return nil
}

// batchModifiers derives the per-order store modifiers from a cleared
// batch: every order's total matched units across all its pairs are applied
// as a single fill.
func batchModifiers(batch *matching.OrderBatch) ([]order.Nonce,
	[][]order.Modifier) {

	unitsFilled := make(map[order.Nonce]uint64)
	var nonces []order.Nonce
	addUnits := func(nonce order.Nonce, units uint64) {
		if _, ok := unitsFilled[nonce]; !ok {
			nonces = append(nonces, nonce)
		}
		unitsFilled[nonce] += units
	}

	for _, match := range batch.Orders {
		addUnits(match.Ask.Nonce(), match.UnitsMatched)
		addUnits(match.Bid.Nonce(), match.UnitsMatched)
	}

	modifiers := make([][]order.Modifier, len(nonces))
	for idx, nonce := range nonces {
		modifiers[idx] = []order.Modifier{
			order.UnitsFulfilledModifier(unitsFilled[nonce]),
		}
	}

	return nonces, modifiers
}
