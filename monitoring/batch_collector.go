package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/unimarket/callmarket/venue/matching"
)

const (
	// batchCollectorName is the name of the MetricGroup for the
	// batchCollector.
	batchCollectorName = "batch"

	// batchCount is the number of batches that cleared up to this point
	// in time.
	batchCount = "batch_count"

	// batchNumMatchedOrders is the number of order pairs matched in the
	// most recent batch.
	batchNumMatchedOrders = "batch_num_matched_orders"

	// batchVolume is the matched volume of the most recent batch.
	batchVolume = "batch_volume"

	// batchClearingPrice is the clearing price of the most recent
	// batch.
	batchClearingPrice = "batch_clearing_price"

	// batchAuctionFees is the amount of trading fees the auctioneer
	// accrued in the most recent batch.
	batchAuctionFees = "batch_auction_fees"

	// batchMatchAttempts is a counter that is incremented with each
	// attempt at clearing a new batch.
	batchMatchAttempts = "batch_match_attempts"

	// batchNoMarket is a counter that is incremented each time a
	// clearing attempt ends without a possible market.
	batchNoMarket = "batch_no_market"

	// batchMatchTime is the amount of time it took to match the most
	// recent batch.
	batchMatchTime = "batch_match_latency_ms"
)

// batchCollector is a collector that keeps track of the outcomes of the
// periodic batch clearing attempts.
type batchCollector struct {
	cfg *PrometheusConfig

	g gauges

	// batchMatchCounter is incremented each time we attempt to clear a
	// new batch.
	batchMatchCounter prometheus.Counter

	// noMarketCounter is incremented each time a clearing attempt finds
	// no possible market.
	noMarketCounter prometheus.Counter

	sync.Mutex
}

// newBatchCollector returns a new instance of the batchCollector.
func newBatchCollector(cfg *PrometheusConfig) *batchCollector {
	g := make(gauges)
	g.addGauge(batchCount, "total number of cleared batches", nil)
	g.addGauge(
		batchNumMatchedOrders,
		"number of matched order pairs in the last batch", nil,
	)
	g.addGauge(batchVolume, "matched volume of the last batch", nil)
	g.addGauge(
		batchClearingPrice, "clearing price of the last batch", nil,
	)
	g.addGauge(
		batchAuctionFees, "fees accrued in the last batch", nil,
	)
	g.addGauge(
		batchMatchTime, "time in ms it took to match the last batch",
		nil,
	)

	return &batchCollector{
		cfg: cfg,
		g:   g,
		batchMatchCounter: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: batchMatchAttempts,
				Help: "incremented with each clearing attempt",
			},
		),
		noMarketCounter: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: batchNoMarket,
				Help: "incremented for each attempt without " +
					"a possible market",
			},
		),
	}
}

// Name is the name of the metric group.
//
// NOTE: Part of the MetricGroup interface.
func (b *batchCollector) Name() string {
	return batchCollectorName
}

// RegisterMetricFuncs registers all metrics of this group with the global
// Prometheus registry.
//
// NOTE: Part of the MetricGroup interface.
func (b *batchCollector) RegisterMetricFuncs() error {
	if err := prometheus.Register(b.batchMatchCounter); err != nil {
		return err
	}
	if err := prometheus.Register(b.noMarketCounter); err != nil {
		return err
	}

	return prometheus.Register(b)
}

// Describe sends the super-set of all possible descriptors of metrics
// collected by this Collector to the provided channel.
//
// NOTE: Part of the prometheus.Collector interface.
func (b *batchCollector) Describe(ch chan<- *prometheus.Desc) {
	b.Lock()
	defer b.Unlock()

	b.g.describe(ch)
}

// Collect is called by the Prometheus registry when collecting metrics.
//
// NOTE: Part of the prometheus.Collector interface.
func (b *batchCollector) Collect(ch chan<- prometheus.Metric) {
	b.Lock()
	defer b.Unlock()

	// The total number of batches comes straight from the store, the
	// per-batch gauges are updated through ObserveBatch below.
	ctx, cancel := context.WithTimeout(
		context.Background(), dbTimeout,
	)
	defer cancel()

	seq, err := b.cfg.Store.LatestBatchSeq(ctx)
	if err != nil {
		log.Errorf("Unable to fetch latest batch sequence: %v", err)
		return
	}
	b.g[batchCount].WithLabelValues().Set(float64(seq))

	b.g.collect(ch)
}

// observeAttempt increments the match attempt counter.
func (b *batchCollector) observeAttempt() {
	b.batchMatchCounter.Inc()
}

// observeNoMarket increments the no-market counter.
func (b *batchCollector) observeNoMarket() {
	b.noMarketCounter.Inc()
}

// observeBatch records the outcome of a successfully cleared batch.
func (b *batchCollector) observeBatch(batch *matching.OrderBatch,
	matchLatency time.Duration) {

	b.Lock()
	defer b.Unlock()

	price, _ := batch.ClearingPrice.Float64()
	fees, _ := batch.FeeReport.AuctioneerFeesAccrued.Float64()

	b.g[batchNumMatchedOrders].WithLabelValues().Set(
		float64(len(batch.Orders)),
	)
	b.g[batchVolume].WithLabelValues().Set(float64(batch.Volume))
	b.g[batchClearingPrice].WithLabelValues().Set(price)
	b.g[batchAuctionFees].WithLabelValues().Set(fees)
	b.g[batchMatchTime].WithLabelValues().Set(
		float64(matchLatency.Milliseconds()),
	)
}

// fetchBatchCollector retrieves the active batch collector, or nil if
// metrics aren't active.
func fetchBatchCollector() *batchCollector {
	metricsMtx.Lock()
	defer metricsMtx.Unlock()

	group, ok := activeGroups[batchCollectorName]
	if !ok {
		return nil
	}

	return group.(*batchCollector)
}

// ObserveBatchMatchAttempt records an attempt at clearing a new batch.
func ObserveBatchMatchAttempt() {
	collector := fetchBatchCollector()
	if collector == nil {
		return
	}

	collector.observeAttempt()
}

// ObserveNoMarketPossible records a clearing attempt that ended without a
// possible market.
func ObserveNoMarketPossible() {
	collector := fetchBatchCollector()
	if collector == nil {
		return
	}

	collector.observeNoMarket()
}

// ObserveBatch records the outcome of a successfully cleared batch along
// with the time it took to match it.
func ObserveBatch(batch *matching.OrderBatch, matchLatency time.Duration) {
	collector := fetchBatchCollector()
	if collector == nil {
		return
	}

	collector.observeBatch(batch, matchLatency)
}

func init() {
	metricsMtx.Lock()
	defer metricsMtx.Unlock()

	metricGroups[batchCollectorName] = func(cfg *PrometheusConfig) (
		MetricGroup, error) {

		return newBatchCollector(cfg), nil
	}
}
