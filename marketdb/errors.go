package marketdb

import "errors"

var (
	// ErrNoOrder is the error returned if no order with the given nonce
	// exists in the store.
	ErrNoOrder = errors.New("no order found")

	// ErrOrderExists is returned if an order is submitted that is
	// already known to the store.
	ErrOrderExists = errors.New("order with this nonce already exists")

	// ErrNoBatch is returned if no batch snapshot exists for the given
	// sequence number.
	ErrNoBatch = errors.New("no batch snapshot found")

	errNotInitialized     = errors.New("db not initialized")
	errAlreadyInitialized = errors.New("db already initialized")
	errDbVersionMismatch  = errors.New("wrong db version")
)
