// Package inmemory provides a map-backed storage driver. Turns are lost when
// the process exits.
package inmemory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/papercomputeco/veneer/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu is a read write sync mutex for locking the mapping of turns
	mu sync.RWMutex

	// turns is the in memory map of turns keyed by turn ID
	turns map[string]*storage.Turn
}

// NewDriver creates a new in-memory storer.
func NewDriver() *Driver {
	return &Driver{
		turns: make(map[string]*storage.Turn),
	}
}

// Put stores a copy of turn. Returns false if the ID already exists.
func (s *Driver) Put(_ context.Context, turn *storage.Turn) (bool, error) {
	if err := turn.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.turns[turn.ID]; ok {
		return false, nil
	}

	stored := *turn
	s.turns[turn.ID] = &stored
	return true, nil
}

// Get retrieves a turn by its ID.
func (s *Driver) Get(_ context.Context, id string) (*storage.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turn, ok := s.turns[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}

	out := *turn
	return &out, nil
}

// List returns turns newest first.
func (s *Driver) List(_ context.Context, opts storage.ListOptions) ([]*storage.Turn, error) {
	s.mu.RLock()
	result := make([]*storage.Turn, 0, len(s.turns))
	for _, turn := range s.turns {
		if opts.Model != "" && turn.Model != opts.Model {
			continue
		}
		out := *turn
		result = append(result, &out)
	}
	s.mu.RUnlock()

	slices.SortFunc(result, func(a, b *storage.Turn) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// Close is a no-op for the in-memory driver.
func (s *Driver) Close() error {
	return nil
}
