package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"progresskit/core"
)

// Store persists all progression records to a single JSON file.
// Suitable for demos and small deployments. Compare-and-swap is serialized
// under the store mutex; the file is replaced atomically via rename.
type Store struct {
	path string
	mu   sync.Mutex
	// in-memory cache for speed
	data map[core.UserID]core.ProgressionState
}

func New(path string) (*Store, error) {
	s := &Store{path: path, data: map[core.UserID]core.ProgressionState{}}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var raw map[string]core.ProgressionState
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		s.data[core.UserID(k)] = v
	}
	return nil
}

func (s *Store) persist() error {
	tmp := s.path + ".tmp"
	raw := make(map[string]core.ProgressionState, len(s.data))
	for k, v := range s.data {
		raw[string(k)] = v
	}
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) Create(_ context.Context, user core.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[user]; ok {
		return core.ErrAlreadyExists
	}
	s.data[user] = core.NewState(user)
	return s.persist()
}

func (s *Store) Load(_ context.Context, user core.UserID) (core.ProgressionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.data[user]
	if !ok {
		return core.ProgressionState{}, core.ErrNotFound
	}
	return st.Clone(), nil
}

func (s *Store) CompareAndSwap(_ context.Context, user core.UserID, expectedVersion int64, next core.ProgressionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.data[user]
	if !ok {
		return core.ErrNotFound
	}
	if st.Version != expectedVersion {
		return core.ErrVersionConflict
	}
	s.data[user] = next.Clone()
	return s.persist()
}

func (s *Store) Delete(_ context.Context, user core.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[user]; !ok {
		return core.ErrNotFound
	}
	delete(s.data, user)
	return s.persist()
}
