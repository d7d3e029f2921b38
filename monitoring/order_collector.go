package monitoring

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// orderCollectorName is the name of the MetricGroup for the
	// orderCollector.
	orderCollectorName = "order"

	// orderCount is a gauge that keeps track of the total number of
	// staged orders there are, per side.
	orderCount = "order_count"

	// orderUnitsUnfulfilled is a gauge that keeps track of the number
	// of unfulfilled order units of all staged orders, per side.
	orderUnitsUnfulfilled = "order_units_unfulfilled"

	labelOrderType = "order_type"

	orderTypeAsk = "ask"
	orderTypeBid = "bid"
)

// orderCollector is a collector that keeps track of the live order book.
type orderCollector struct {
	collectMtx sync.Mutex

	cfg *PrometheusConfig

	g gauges
}

// newOrderCollector returns a new instance of the orderCollector.
func newOrderCollector(cfg *PrometheusConfig) *orderCollector {
	baseLabels := []string{labelOrderType}

	g := make(gauges)
	g.addGauge(
		orderCount, "number of staged orders per side", baseLabels,
	)
	g.addGauge(
		orderUnitsUnfulfilled,
		"unfulfilled order units per side", baseLabels,
	)

	return &orderCollector{
		cfg: cfg,
		g:   g,
	}
}

// Name is the name of the metric group.
//
// NOTE: Part of the MetricGroup interface.
func (o *orderCollector) Name() string {
	return orderCollectorName
}

// RegisterMetricFuncs registers all metrics of this group with the global
// Prometheus registry.
//
// NOTE: Part of the MetricGroup interface.
func (o *orderCollector) RegisterMetricFuncs() error {
	return prometheus.Register(o)
}

// Describe sends the super-set of all possible descriptors of metrics
// collected by this Collector to the provided channel.
//
// NOTE: Part of the prometheus.Collector interface.
func (o *orderCollector) Describe(ch chan<- *prometheus.Desc) {
	o.collectMtx.Lock()
	defer o.collectMtx.Unlock()

	o.g.describe(ch)
}

// Collect is called by the Prometheus registry when collecting metrics.
// The live book is read at scrape time so that depth gauges are always
// current.
//
// NOTE: Part of the prometheus.Collector interface.
func (o *orderCollector) Collect(ch chan<- prometheus.Metric) {
	o.collectMtx.Lock()
	defer o.collectMtx.Unlock()

	ctx, cancel := context.WithTimeout(
		context.Background(), dbTimeout,
	)
	defer cancel()

	orders, err := o.cfg.ActiveOrderSource(ctx)
	if err != nil {
		log.Errorf("Unable to fetch active orders: %v", err)
		return
	}

	o.g.reset()

	var (
		numAsks, numBids   float64
		askUnits, bidUnits float64
	)
	for _, activeOrder := range orders {
		units := float64(activeOrder.Details().UnitsUnfulfilled)
		if activeOrder.IsAsk() {
			numAsks++
			askUnits += units
		} else {
			numBids++
			bidUnits += units
		}
	}

	o.g[orderCount].WithLabelValues(orderTypeAsk).Set(numAsks)
	o.g[orderCount].WithLabelValues(orderTypeBid).Set(numBids)
	o.g[orderUnitsUnfulfilled].WithLabelValues(orderTypeAsk).Set(askUnits)
	o.g[orderUnitsUnfulfilled].WithLabelValues(orderTypeBid).Set(bidUnits)

	o.g.collect(ch)
}

func init() {
	metricsMtx.Lock()
	defer metricsMtx.Unlock()

	metricGroups[orderCollectorName] = func(cfg *PrometheusConfig) (
		MetricGroup, error) {

		return newOrderCollector(cfg), nil
	}
}
