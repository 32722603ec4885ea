package cache

import (
	"context"

	"github.com/creastat/descriptorstore/model"
	"github.com/google/uuid"
)

// Store caches bare retrievables (id and type) in front of a remote backend.
type Store interface {
	// Get returns the cached retrievables among ids, keyed by id.
	// Missing entries are simply absent (not an error).
	Get(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*model.Retrievable, error)

	// Set caches the bare form of the given retrievables.
	Set(ctx context.Context, retrievables ...*model.Retrievable) error

	// Delete evicts the given ids.
	Delete(ctx context.Context, ids ...uuid.UUID) error

	// Clear evicts every entry of the store.
	Clear(ctx context.Context) error

	// Close closes the store and releases any resources.
	Close() error
}
