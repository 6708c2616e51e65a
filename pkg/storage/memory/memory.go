// Package memory provides an in-process Store used as the default backend and
// as a test fake.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-formflow/pkg/storage"
)

// Store keeps payloads in a map guarded by a RWMutex.
type Store struct {
	mu    sync.RWMutex
	items map[string][]byte

	failMu   sync.Mutex
	failSave error
	saves    int
}

// New returns an empty Store.
func New() *Store {
	return &Store{items: make(map[string][]byte)}
}

// Save stores a copy of data under key.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	s.failMu.Lock()
	s.saves++
	fail := s.failSave
	s.failMu.Unlock()
	if fail != nil {
		return fail
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = append([]byte(nil), data...)
	return nil
}

// Load returns a copy of the payload stored under key.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.items[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Keys lists stored keys with the given prefix, sorted.
func (s *Store) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.items))
	for key := range s.items {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// FailSaves makes subsequent Save calls return err; nil restores normal
// behaviour.
func (s *Store) FailSaves(err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failSave = err
}

// SaveCalls reports how many times Save has been called, including failures.
func (s *Store) SaveCalls() int {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	return s.saves
}
