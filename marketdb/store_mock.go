package marketdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/unimarket/callmarket/order"
	"github.com/unimarket/callmarket/venue/matching"
)

// StoreMock is a mock implementation of the Store interface that stores
// everything in memory. It is used for tests and offline tooling.
type StoreMock struct {
	Orders    map[order.Nonce]order.ServerOrder
	Archive   map[order.Nonce]order.ServerOrder
	Snapshots map[uint64]*BatchSnapshot
	BatchSeq  uint64

	initialized bool

	mtx sync.Mutex
}

// NewStoreMock creates a new mock store.
func NewStoreMock() *StoreMock {
	return &StoreMock{
		Orders:    make(map[order.Nonce]order.ServerOrder),
		Archive:   make(map[order.Nonce]order.ServerOrder),
		Snapshots: make(map[uint64]*BatchSnapshot),
	}
}

// copyOrder returns an independent copy of the given order, mirroring the
// behavior of a real database backend that never hands out live pointers.
func copyOrder(o order.ServerOrder) (order.ServerOrder, error) {
	switch typedOrder := o.(type) {
	case *order.Ask:
		ask := *typedOrder
		return &ask, nil

	case *order.Bid:
		bid := *typedOrder
		return &bid, nil

	default:
		return nil, fmt.Errorf("unknown order type %T", o)
	}
}

// Init initializes the store.
//
// NOTE: This is part of the Store interface.
func (s *StoreMock) Init(_ context.Context) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.initialized {
		return errAlreadyInitialized
	}
	s.initialized = true

	return nil
}

// SubmitOrder stores a new order.
//
// NOTE: This is part of the Store interface.
func (s *StoreMock) SubmitOrder(_ context.Context,
	o order.ServerOrder) error {

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if !s.initialized {
		return errNotInitialized
	}

	nonce := o.Nonce()
	if _, ok := s.Orders[nonce]; ok {
		return ErrOrderExists
	}
	if _, ok := s.Archive[nonce]; ok {
		return ErrOrderExists
	}

	dbOrder, err := copyOrder(o)
	if err != nil {
		return err
	}
	s.Orders[nonce] = dbOrder

	return nil
}

// updateOrderLocked applies the modifiers to the order with the given
// nonce. The mutex must be held.
func (s *StoreMock) updateOrderLocked(nonce order.Nonce,
	modifiers ...order.Modifier) error {

	o, ok := s.Orders[nonce]
	if !ok {
		return ErrNoOrder
	}

	for _, modifier := range modifiers {
		modifier(o.Details())
	}

	if o.Details().State.Archived() {
		delete(s.Orders, nonce)
		s.Archive[nonce] = o
	}

	return nil
}

// UpdateOrder applies the given modifiers to the order with the given
// nonce.
//
// NOTE: This is part of the Store interface.
func (s *StoreMock) UpdateOrder(_ context.Context, nonce order.Nonce,
	modifiers ...order.Modifier) error {

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if !s.initialized {
		return errNotInitialized
	}

	return s.updateOrderLocked(nonce, modifiers...)
}

// GetOrder returns the order with the given nonce, active or archived.
//
// NOTE: This is part of the Store interface.
func (s *StoreMock) GetOrder(_ context.Context, nonce order.Nonce) (
	order.ServerOrder, error) {

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if o, ok := s.Orders[nonce]; ok {
		return copyOrder(o)
	}
	if o, ok := s.Archive[nonce]; ok {
		return copyOrder(o)
	}

	return nil, ErrNoOrder
}

// GetOrders returns all non-archived orders.
//
// NOTE: This is part of the Store interface.
func (s *StoreMock) GetOrders(_ context.Context) ([]order.ServerOrder,
	error) {

	s.mtx.Lock()
	defer s.mtx.Unlock()

	orders := make([]order.ServerOrder, 0, len(s.Orders))
	for _, o := range s.Orders {
		dbOrder, err := copyOrder(o)
		if err != nil {
			return nil, err
		}
		orders = append(orders, dbOrder)
	}

	return orders, nil
}

// PersistBatchResult atomically updates all modified orders and persists a
// snapshot of the batch.
//
// NOTE: This is part of the Store interface.
func (s *StoreMock) PersistBatchResult(_ context.Context,
	nonces []order.Nonce, modifiers [][]order.Modifier,
	batch *matching.OrderBatch) error {

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	if len(nonces) != len(modifiers) {
		return fmt.Errorf("invalid number of modifiers")
	}

	// Make sure every order exists before touching any of them, so that
	// an unknown nonce leaves all orders unchanged.
	for _, nonce := range nonces {
		if _, ok := s.Orders[nonce]; !ok {
			return ErrNoOrder
		}
	}

	for idx, nonce := range nonces {
		err := s.updateOrderLocked(nonce, modifiers[idx]...)
		if err != nil {
			return err
		}
	}

	s.BatchSeq++
	s.Snapshots[s.BatchSeq] = &BatchSnapshot{
		Seq:       s.BatchSeq,
		Batch:     batch,
		Timestamp: time.Now(),
	}

	return nil
}

// GetBatchSnapshot returns the snapshot of the batch with the given
// sequence number.
//
// NOTE: This is part of the Store interface.
func (s *StoreMock) GetBatchSnapshot(_ context.Context, seq uint64) (
	*BatchSnapshot, error) {

	s.mtx.Lock()
	defer s.mtx.Unlock()

	snapshot, ok := s.Snapshots[seq]
	if !ok {
		return nil, ErrNoBatch
	}

	return snapshot, nil
}

// LatestBatchSeq returns the sequence number of the most recently persisted
// batch.
//
// NOTE: This is part of the Store interface.
func (s *StoreMock) LatestBatchSeq(_ context.Context) (uint64, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.BatchSeq, nil
}

// A compile-time assertion to ensure the StoreMock meets the Store
// interface.
var _ Store = (*StoreMock)(nil)
