// Package memory provides a concurrent in-memory Store, used by tests and
// single-process deployments.
package memory

import (
	"context"
	"sync"

	"progresskit/core"
)

// Store keeps one versioned record per user. Compare-and-swap is enforced
// under a per-record mutex, mirroring the contract of the durable adapters.
type Store struct {
	users sync.Map // map[core.UserID]*userRecord
}

type userRecord struct {
	mu    sync.Mutex
	state core.ProgressionState
}

func New() *Store { return &Store{} }

func (s *Store) Create(_ context.Context, user core.UserID) error {
	rec := &userRecord{state: core.NewState(user)}
	if _, loaded := s.users.LoadOrStore(user, rec); loaded {
		return core.ErrAlreadyExists
	}
	return nil
}

func (s *Store) Load(_ context.Context, user core.UserID) (core.ProgressionState, error) {
	v, ok := s.users.Load(user)
	if !ok {
		return core.ProgressionState{}, core.ErrNotFound
	}
	rec := v.(*userRecord)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state.Clone(), nil
}

func (s *Store) CompareAndSwap(_ context.Context, user core.UserID, expectedVersion int64, next core.ProgressionState) error {
	v, ok := s.users.Load(user)
	if !ok {
		return core.ErrNotFound
	}
	rec := v.(*userRecord)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.state.Version != expectedVersion {
		return core.ErrVersionConflict
	}
	rec.state = next.Clone()
	return nil
}

func (s *Store) Delete(_ context.Context, user core.UserID) error {
	if _, ok := s.users.LoadAndDelete(user); !ok {
		return core.ErrNotFound
	}
	return nil
}
