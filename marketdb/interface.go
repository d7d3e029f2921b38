package marketdb

import (
	"context"
	"time"

	"github.com/unimarket/callmarket/order"
	"github.com/unimarket/callmarket/venue/matching"
)

// BatchSnapshot is a self-contained record of a cleared batch as it was
// persisted.
type BatchSnapshot struct {
	// Seq is the monotonically increasing sequence number of the batch.
	Seq uint64

	// Batch holds the full matched and cleared batch.
	Batch *matching.OrderBatch

	// Timestamp is the time the batch was persisted.
	Timestamp time.Time
}

// Store is the interface of the market's persistent state: the order book
// contents and the history of cleared batches.
type Store interface {
	// Init initializes the store and makes sure the backing database is
	// of the expected version. Must be called exactly once before any
	// other method.
	Init(ctx context.Context) error

	order.Store

	// PersistBatchResult atomically updates all modified orders and
	// persists a snapshot of the batch under the next batch sequence
	// number. If any single operation fails, the whole set of changes
	// is rolled back.
	PersistBatchResult(ctx context.Context, nonces []order.Nonce,
		modifiers [][]order.Modifier,
		batch *matching.OrderBatch) error

	// GetBatchSnapshot returns the snapshot of the batch with the given
	// sequence number, or ErrNoBatch if no such batch exists.
	GetBatchSnapshot(ctx context.Context, seq uint64) (*BatchSnapshot,
		error)

	// LatestBatchSeq returns the sequence number of the most recently
	// persisted batch. A return value of zero means no batch has been
	// cleared yet.
	LatestBatchSeq(ctx context.Context) (uint64, error)
}
