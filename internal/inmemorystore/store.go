// Package inmemorystore provides an ephemeral, thread-safe, in-memory
// implementation of the jobstore.Store interface.
//
// # Concurrency Model
//
// Records are kept in a sync.Map keyed by job ID. Each job is written by the
// single goroutine that sequences it, while the status server may read any
// job at any time, so keys are independent and reads never block writers.
//
// Records are cloned on the way in and on the way out; callers can keep
// mutating their own copy without racing readers.
package inmemorystore

import (
	"context"
	"fmt"
	"sync"

	"github.com/specialistvlad/dungeonjob/internal/jobstore"
)

// Store is an in-memory implementation of jobstore.Store.
type Store struct {
	records sync.Map // Key: job ID string, Value: *jobstore.Record
}

// New creates a new, empty in-memory job store.
func New() *Store {
	return &Store{}
}

var _ jobstore.Store = (*Store)(nil)

// Save inserts or replaces the record.
func (s *Store) Save(ctx context.Context, r *jobstore.Record) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("cannot save a job record without an id")
	}
	s.records.Store(r.ID, r.Clone())
	return nil
}

// Get returns a copy of the record for id.
func (s *Store) Get(ctx context.Context, id string) (*jobstore.Record, error) {
	v, ok := s.records.Load(id)
	if !ok {
		return nil, fmt.Errorf("job '%s': %w", id, jobstore.ErrNotFound)
	}
	return v.(*jobstore.Record).Clone(), nil
}
