package marketdb

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/unimarket/callmarket/order"
	"github.com/unimarket/callmarket/venue/matching"
	clientv3 "go.etcd.io/etcd/client/v3"
	conc "go.etcd.io/etcd/client/v3/concurrency"
)

const (
	// etcdTimeout is the default timeout for all etcd operations.
	etcdTimeout = 10 * time.Second

	// currentDbVersion is the version of the key space layout this
	// package writes and expects to find.
	currentDbVersion = uint32(0)

	// topLevelDir is the top level directory that we'll use to store
	// all the market data.
	topLevelDir = "callmarket"

	// versionKey is the key that we'll use to store the current version
	// of the market data for the target network.
	versionKey = "version"

	// keyDelimiter is the special token that we'll use to delimit
	// entries in a key's path.
	keyDelimiter = "/"

	// orderPrefix is the prefix that we'll use to store all order
	// specific data. From the top level directory, active orders live
	// under callmarket/<network>/order/active/<nonce>, archived ones
	// under callmarket/<network>/order/archive/<nonce>.
	orderPrefix = "order"

	activeOrderDir   = "active"
	archivedOrderDir = "archive"

	// batchPrefix is the prefix for all batch related keys. The latest
	// sequence number is stored under callmarket/<network>/batch/seq,
	// snapshots under callmarket/<network>/batch/snapshot/<seq>.
	batchPrefix    = "batch"
	batchSeqKey    = "seq"
	batchSnapshots = "snapshot"
)

// stmDefaultIsolation is the default isolation level we use for STM
// transactions that manipulate orders and batches. This is also the default
// as declared in the concurrency package and offers the most strict
// isolation.
var stmDefaultIsolation = conc.SerializableSnapshot

// EtcdStore is a Store implementation backed by an etcd cluster. All
// mutations run as STM transactions so that concurrent writers cannot
// corrupt the order or batch state.
type EtcdStore struct {
	client      *clientv3.Client
	networkID   string
	initialized bool

	// activeOrdersCache is a cache of all the currently non-archived
	// orders, warmed at Init and kept in sync with every mutation.
	activeOrdersCache    map[order.Nonce]order.ServerOrder
	activeOrdersCacheMtx sync.RWMutex
}

// NewEtcdStore creates a new etcd store instance for the given network,
// connecting to the given host.
func NewEtcdStore(activeNetwork, host, user, password string) (*EtcdStore,
	error) {

	cfg := clientv3.Config{
		Endpoints:   []string{host},
		Username:    user,
		Password:    password,
		DialTimeout: etcdTimeout,
	}

	client, err := clientv3.New(cfg)
	if err != nil {
		return nil, err
	}

	return &EtcdStore{
		client:            client,
		networkID:         activeNetwork,
		activeOrdersCache: make(map[order.Nonce]order.ServerOrder),
	}, nil
}

// defaultSTM executes the given apply function in an isolated STM
// transaction.
func (s *EtcdStore) defaultSTM(ctx context.Context,
	apply func(conc.STM) error) (*clientv3.TxnResponse, error) {

	return conc.NewSTM(
		s.client, apply, conc.WithAbortContext(ctx),
		conc.WithIsolation(stmDefaultIsolation),
	)
}

// getKeyPrefix returns the key prefix path for the given prefix.
func (s *EtcdStore) getKeyPrefix(prefix string) string {
	// callmarket/<network>/<prefix>.
	return strings.Join(
		[]string{topLevelDir, s.networkID, prefix}, keyDelimiter,
	) + keyDelimiter
}

// getOrderKey returns the key an order is stored under, depending on
// whether it is archived or not.
func (s *EtcdStore) getOrderKey(nonce order.Nonce, archived bool) string {
	dir := activeOrderDir
	if archived {
		dir = archivedOrderDir
	}

	// callmarket/<network>/order/<active|archive>/<nonce>.
	return s.getKeyPrefix(orderPrefix) + dir + keyDelimiter +
		nonce.String()
}

// getBatchSeqKey returns the key the latest batch sequence number is stored
// under.
func (s *EtcdStore) getBatchSeqKey() string {
	return s.getKeyPrefix(batchPrefix) + batchSeqKey
}

// getBatchSnapshotKey returns the key the snapshot of the batch with the
// given sequence number is stored under. The sequence is zero padded so
// that range queries return snapshots in clearing order.
func (s *EtcdStore) getBatchSnapshotKey(seq uint64) string {
	return s.getKeyPrefix(batchPrefix) + batchSnapshots + keyDelimiter +
		fmt.Sprintf("%020d", seq)
}

// getVersionKey returns the key the db version is stored under.
func (s *EtcdStore) getVersionKey() string {
	return strings.Join(
		[]string{topLevelDir, s.networkID, versionKey}, keyDelimiter,
	)
}

// Init initializes the store and makes sure the backing etcd key space is
// of the expected version. A fresh key space is stamped with the current
// version, an existing one is verified.
//
// NOTE: This is part of the Store interface.
func (s *EtcdStore) Init(ctx context.Context) error {
	if s.initialized {
		return errAlreadyInitialized
	}

	_, err := s.defaultSTM(ctx, func(stm conc.STM) error {
		key := s.getVersionKey()
		rawVersion := stm.Get(key)

		// No version yet, this is a fresh key space.
		if rawVersion == "" {
			log.Infof("Initializing fresh database, version=%v",
				currentDbVersion)

			stm.Put(key, strconv.FormatUint(
				uint64(currentDbVersion), 10,
			))
			stm.Put(s.getBatchSeqKey(), "0")
			return nil
		}

		version, err := strconv.ParseUint(rawVersion, 10, 32)
		if err != nil {
			return err
		}
		if uint32(version) != currentDbVersion {
			return fmt.Errorf("%w: db version %v, expected %v",
				errDbVersionMismatch, version,
				currentDbVersion)
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.initialized = true

	// Warm the active order cache so order book reads don't hit the
	// database.
	return s.fillActiveOrdersCache(ctx)
}

// fillActiveOrdersCache loads all non-archived orders into the memory
// cache.
func (s *EtcdStore) fillActiveOrdersCache(ctx context.Context) error {
	activePrefix := s.getKeyPrefix(orderPrefix) + activeOrderDir +
		keyDelimiter

	resp, err := s.client.Get(
		ctx, activePrefix, clientv3.WithPrefix(),
	)
	if err != nil {
		return err
	}

	s.activeOrdersCacheMtx.Lock()
	defer s.activeOrdersCacheMtx.Unlock()

	for _, kv := range resp.Kvs {
		o, err := deserializeOrder(bytes.NewReader(kv.Value))
		if err != nil {
			return err
		}
		s.activeOrdersCache[o.Nonce()] = o
	}

	log.Debugf("Loaded %v active orders into cache",
		len(s.activeOrdersCache))

	return nil
}

// SubmitOrder stores a new order. ErrOrderExists is returned if an order
// with the same nonce already exists, whether active or archived.
//
// NOTE: This is part of the Store interface.
func (s *EtcdStore) SubmitOrder(ctx context.Context,
	o order.ServerOrder) error {

	if !s.initialized {
		return errNotInitialized
	}

	_, err := s.defaultSTM(ctx, func(stm conc.STM) error {
		// First, we need to make sure no order exists for the given
		// nonce. In STM this is signaled by an empty string being
		// returned.
		activeKey := s.getOrderKey(o.Nonce(), false)
		archiveKey := s.getOrderKey(o.Nonce(), true)
		if stm.Get(activeKey) != "" || stm.Get(archiveKey) != "" {
			return ErrOrderExists
		}

		var buf bytes.Buffer
		if err := serializeOrder(&buf, o); err != nil {
			return err
		}
		stm.Put(activeKey, buf.String())
		return nil
	})
	if err != nil {
		return err
	}

	// Order was successfully submitted, update cache.
	s.activeOrdersCacheMtx.Lock()
	s.activeOrdersCache[o.Nonce()] = o
	s.activeOrdersCacheMtx.Unlock()

	return nil
}

// updateOrderSTM applies the given modifiers to the order with the given
// nonce within the supplied STM transaction and returns the resulting
// order.
func (s *EtcdStore) updateOrderSTM(stm conc.STM, nonce order.Nonce,
	modifiers ...order.Modifier) (order.ServerOrder, error) {

	activeKey := s.getOrderKey(nonce, false)
	rawOrder := stm.Get(activeKey)
	if rawOrder == "" {
		return nil, ErrNoOrder
	}

	dbOrder, err := deserializeOrder(strings.NewReader(rawOrder))
	if err != nil {
		return nil, err
	}

	for _, modifier := range modifiers {
		modifier(dbOrder.Details())
	}

	var buf bytes.Buffer
	if err := serializeOrder(&buf, dbOrder); err != nil {
		return nil, err
	}

	// An order that reached a terminal state moves from the active
	// bucket to the archive.
	if dbOrder.Details().State.Archived() {
		stm.Del(activeKey)
		stm.Put(s.getOrderKey(nonce, true), buf.String())
	} else {
		stm.Put(activeKey, buf.String())
	}

	return dbOrder, nil
}

// updateOrderCache reflects the outcome of an order update in the active
// order cache.
func (s *EtcdStore) updateOrderCache(dbOrder order.ServerOrder) {
	s.activeOrdersCacheMtx.Lock()
	defer s.activeOrdersCacheMtx.Unlock()

	if dbOrder.Details().State.Archived() {
		delete(s.activeOrdersCache, dbOrder.Nonce())
	} else {
		s.activeOrdersCache[dbOrder.Nonce()] = dbOrder
	}
}

// UpdateOrder applies the given modifiers to the order with the given
// nonce.
//
// NOTE: This is part of the Store interface.
func (s *EtcdStore) UpdateOrder(ctx context.Context, nonce order.Nonce,
	modifiers ...order.Modifier) error {

	if !s.initialized {
		return errNotInitialized
	}

	var dbOrder order.ServerOrder
	_, err := s.defaultSTM(ctx, func(stm conc.STM) error {
		var err error
		dbOrder, err = s.updateOrderSTM(stm, nonce, modifiers...)
		return err
	})
	if err != nil {
		return err
	}

	s.updateOrderCache(dbOrder)

	return nil
}

// GetOrder returns the order with the given nonce, active or archived.
//
// NOTE: This is part of the Store interface.
func (s *EtcdStore) GetOrder(ctx context.Context, nonce order.Nonce) (
	order.ServerOrder, error) {

	if !s.initialized {
		return nil, errNotInitialized
	}

	s.activeOrdersCacheMtx.RLock()
	cached, ok := s.activeOrdersCache[nonce]
	s.activeOrdersCacheMtx.RUnlock()
	if ok {
		return cached, nil
	}

	resp, err := s.client.Get(ctx, s.getOrderKey(nonce, true))
	if err != nil {
		return nil, err
	}
	if len(resp.Kvs) == 0 {
		return nil, ErrNoOrder
	}

	return deserializeOrder(bytes.NewReader(resp.Kvs[0].Value))
}

// GetOrders returns all non-archived orders.
//
// NOTE: This is part of the Store interface.
func (s *EtcdStore) GetOrders(_ context.Context) ([]order.ServerOrder,
	error) {

	if !s.initialized {
		return nil, errNotInitialized
	}

	s.activeOrdersCacheMtx.RLock()
	defer s.activeOrdersCacheMtx.RUnlock()

	orders := make([]order.ServerOrder, 0, len(s.activeOrdersCache))
	for _, o := range s.activeOrdersCache {
		orders = append(orders, o)
	}

	return orders, nil
}

// PersistBatchResult atomically updates all modified orders and persists a
// snapshot of the batch under the next batch sequence number.
//
// NOTE: This is part of the Store interface.
func (s *EtcdStore) PersistBatchResult(ctx context.Context,
	nonces []order.Nonce, modifiers [][]order.Modifier,
	batch *matching.OrderBatch) error {

	if !s.initialized {
		return errNotInitialized
	}
	if len(nonces) != len(modifiers) {
		return fmt.Errorf("invalid number of modifiers")
	}

	var (
		updatedOrders = make([]order.ServerOrder, len(nonces))
		batchSeq      uint64
	)
	_, err := s.defaultSTM(ctx, func(stm conc.STM) error {
		// Update all orders that were touched by the batch.
		for idx, nonce := range nonces {
			dbOrder, err := s.updateOrderSTM(
				stm, nonce, modifiers[idx]...,
			)
			if err != nil {
				return err
			}
			updatedOrders[idx] = dbOrder
		}

		// Bump the batch sequence and store the snapshot under the
		// new number.
		rawSeq := stm.Get(s.getBatchSeqKey())
		if rawSeq == "" {
			return errNotInitialized
		}
		seq, err := strconv.ParseUint(rawSeq, 10, 64)
		if err != nil {
			return err
		}
		batchSeq = seq + 1

		snapshot := &BatchSnapshot{
			Seq:       batchSeq,
			Batch:     batch,
			Timestamp: time.Now(),
		}
		var buf bytes.Buffer
		if err := serializeBatchSnapshot(&buf, snapshot); err != nil {
			return err
		}

		stm.Put(s.getBatchSnapshotKey(batchSeq), buf.String())
		stm.Put(s.getBatchSeqKey(), strconv.FormatUint(batchSeq, 10))

		return nil
	})
	if err != nil {
		return err
	}

	for _, dbOrder := range updatedOrders {
		s.updateOrderCache(dbOrder)
	}

	log.Infof("Persisted batch %v: %v matches, volume=%v, price=%v",
		batchSeq, len(batch.Orders), batch.Volume,
		batch.ClearingPrice)

	return nil
}

// GetBatchSnapshot returns the snapshot of the batch with the given
// sequence number.
//
// NOTE: This is part of the Store interface.
func (s *EtcdStore) GetBatchSnapshot(ctx context.Context, seq uint64) (
	*BatchSnapshot, error) {

	if !s.initialized {
		return nil, errNotInitialized
	}

	resp, err := s.client.Get(ctx, s.getBatchSnapshotKey(seq))
	if err != nil {
		return nil, err
	}
	if len(resp.Kvs) == 0 {
		return nil, ErrNoBatch
	}

	return deserializeBatchSnapshot(bytes.NewReader(resp.Kvs[0].Value))
}

// LatestBatchSeq returns the sequence number of the most recently persisted
// batch.
//
// NOTE: This is part of the Store interface.
func (s *EtcdStore) LatestBatchSeq(ctx context.Context) (uint64, error) {
	if !s.initialized {
		return 0, errNotInitialized
	}

	resp, err := s.client.Get(ctx, s.getBatchSeqKey())
	if err != nil {
		return 0, err
	}
	if len(resp.Kvs) == 0 {
		return 0, nil
	}

	return strconv.ParseUint(string(resp.Kvs[0].Value), 10, 64)
}

// Close shuts down the connection to the etcd cluster.
func (s *EtcdStore) Close() error {
	return s.client.Close()
}

// A compile-time assertion to ensure the EtcdStore meets the Store
// interface.
var _ Store = (*EtcdStore)(nil)
