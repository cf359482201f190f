package storage

import (
	"context"
	"errors"

	"github.com/OKaluzny/healthchain-wallet/pkg/models"
)

// ErrNotFound is returned by KV.Get for missing keys.
var ErrNotFound = errors.New("storage: key not found")

// KV is a small durable key/value store. Values are opaque bytes.
type KV interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases the underlying resources.
	Close() error
}

// TxStore keeps signed transactions so duplicate requests return the same
// transaction and failed broadcasts can be resubmitted.
type TxStore interface {
	// Get returns a previously stored transaction by key, or nil if not found.
	Get(ctx context.Context, key string) (*models.SignedTransaction, error)
	// Put stores a transaction under key.
	Put(ctx context.Context, key string, tx *models.SignedTransaction) error
}

// WatchStore manages the set of addresses whose balances are refreshed.
type WatchStore interface {
	// Add adds an address to the watch set.
	Add(ctx context.Context, address string) error
	// Remove removes an address from the watch set.
	Remove(ctx context.Context, address string) error
	// List returns all currently watched addresses.
	List(ctx context.Context) ([]string, error)
	// Contains checks if an address is in the watch set.
	Contains(ctx context.Context, address string) (bool, error)
}
