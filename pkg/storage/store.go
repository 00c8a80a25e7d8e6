package storage

import (
	"context"
	"errors"
)

// Store is a durable key/value backend.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value stored under key.
	// Returns (nil, nil) if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores data under key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte) error

	// Close releases resources held by the store.
	Close() error
}

// ErrStoreClosed is returned when operations are attempted on a closed store.
var ErrStoreClosed = errors.New("storage: store is closed")

// Prefixed namespaces every key of an underlying store.
type Prefixed struct {
	store  Store
	prefix string
}

// WithPrefix returns a Store that prepends prefix to every key.
// Closing it does not close the underlying store.
func WithPrefix(store Store, prefix string) *Prefixed {
	if p, ok := store.(*Prefixed); ok {
		return &Prefixed{store: p.store, prefix: p.prefix + prefix}
	}
	return &Prefixed{store: store, prefix: prefix}
}

// Get reads prefix+key.
func (p *Prefixed) Get(ctx context.Context, key string) ([]byte, error) {
	return p.store.Get(ctx, p.prefix+key)
}

// Put writes prefix+key.
func (p *Prefixed) Put(ctx context.Context, key string, data []byte) error {
	return p.store.Put(ctx, p.prefix+key, data)
}

// Close is a no-op; the underlying store is shared.
func (p *Prefixed) Close() error { return nil }

// Prefix returns the key prefix.
func (p *Prefixed) Prefix() string { return p.prefix }
