package callmarket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/ticker"
	"github.com/shopspring/decimal"
	"github.com/unimarket/callmarket/marketdb"
	"github.com/unimarket/callmarket/monitoring"
	"github.com/unimarket/callmarket/order"
	"github.com/unimarket/callmarket/terms"
	"github.com/unimarket/callmarket/venue"
	"github.com/unimarket/callmarket/venue/matching"
)

const (
	// initTimeout is the maximum time we allow for the store
	// initialization at startup.
	initTimeout = 30 * time.Second
)

// Server is the main callmarket server that glues together the order book,
// the call market venue and the persistent store.
type Server struct {
	started sync.Once
	stopped sync.Once

	cfg *Config

	store *marketdb.EtcdStore

	orderBook *order.Book

	callMarket *matching.UniformPriceCallMarket

	auctioneer *venue.Auctioneer

	metricsExporter *monitoring.PrometheusExporter

	quit chan struct{}
}

// NewServer creates a new server instance from the given config.
func NewServer(cfg *Config) (*Server, error) {
	store, err := marketdb.NewEtcdStore(
		cfg.Network, cfg.Etcd.Host, cfg.Etcd.User, cfg.Etcd.Password,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to etcd: %v", err)
	}

	feeSchedule := terms.NewLinearFeeSchedule(
		decimal.New(cfg.ExecFeeBase, 0), cfg.ExecFeeRate,
	)
	callMarket := matching.NewUniformPriceCallMarket(feeSchedule)

	orderBook := order.NewBook(&order.BookConfig{
		Store:          store,
		MaxOrderVolume: cfg.MaxOrderVolume,
	})

	auctioneer := venue.NewAuctioneer(&venue.AuctioneerConfig{
		Market:      callMarket,
		Store:       store,
		BatchTicker: ticker.New(cfg.BatchInterval),
	})

	cfg.Prometheus.Store = store
	cfg.Prometheus.ActiveOrderSource = store.GetOrders

	return &Server{
		cfg:             cfg,
		store:           store,
		orderBook:       orderBook,
		callMarket:      callMarket,
		auctioneer:      auctioneer,
		metricsExporter: monitoring.NewPrometheusExporter(cfg.Prometheus),
		quit:            make(chan struct{}),
	}, nil
}

// Start attempts to start the server and all its subsystems.
func (s *Server) Start() error {
	var startErr error
	s.started.Do(func() {
		log.Infof("Starting callmarket server, version=%v",
			Version())

		ctx, cancel := context.WithTimeout(
			context.Background(), initTimeout,
		)
		defer cancel()

		if err := s.store.Init(ctx); err != nil {
			startErr = fmt.Errorf("unable to initialize store: "+
				"%v", err)
			return
		}

		if err := s.orderBook.Start(ctx); err != nil {
			startErr = err
			return
		}

		if err := s.auctioneer.Start(ctx); err != nil {
			startErr = err
			return
		}

		if err := s.metricsExporter.Start(); err != nil {
			startErr = fmt.Errorf("unable to start metrics "+
				"exporter: %v", err)
			return
		}

		log.Infof("Callmarket server is now active, "+
			"batch_interval=%v", s.cfg.BatchInterval)
	})

	return startErr
}

// Stop shuts down the server and all its subsystems.
func (s *Server) Stop() error {
	var stopErr error
	s.stopped.Do(func() {
		log.Infof("Stopping callmarket server")

		close(s.quit)

		if err := s.auctioneer.Stop(); err != nil {
			stopErr = err
		}

		s.orderBook.Stop()

		if err := s.store.Close(); err != nil && stopErr == nil {
			stopErr = err
		}

		log.Info("Callmarket server stopped")
	})

	return stopErr
}

// SubmitOrder accepts a new order into the book and stages it for the next
// batch.
func (s *Server) SubmitOrder(ctx context.Context,
	o order.ServerOrder) error {

	if err := s.orderBook.SubmitOrder(ctx, o); err != nil {
		return err
	}

	return s.auctioneer.ConsiderOrder(o)
}

// CancelOrder removes an order from the book and withdraws it from future
// batches.
func (s *Server) CancelOrder(ctx context.Context, nonce order.Nonce) error {
	if err := s.orderBook.CancelOrder(ctx, nonce); err != nil {
		return err
	}

	return s.auctioneer.ForgetOrder(nonce)
}
