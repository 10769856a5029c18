// Package storage persists the chat turns relayed by the proxy.
package storage

import (
	"context"
)

// Driver defines the interface for persisting and retrieving turns in a
// storage backend.
type Driver interface {
	// Put stores a turn. Returns true if the turn was newly inserted, false if
	// a turn with the same ID already exists, in which case Put is a no-op.
	Put(ctx context.Context, turn *Turn) (bool, error)

	// Get retrieves a turn by its ID. Returns NotFoundError when absent.
	Get(ctx context.Context, id string) (*Turn, error)

	// List returns turns newest first, filtered and bounded by opts.
	List(ctx context.Context, opts ListOptions) ([]*Turn, error)

	// Close closes the store and releases any resources.
	Close() error
}

// ListOptions narrows List. Zero values mean no filter and no limit.
type ListOptions struct {
	Model string
	Limit int
}
