// Package status persists module status variables between activations.
package status

import (
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/skekre98/modrig/module"
)

var ErrCorrupt = errors.New("corrupt status file")

// Key identifies the persisted status of one configured module.
type Key struct {
	Name  string
	Base  module.Kind
	Class string
}

func (k Key) String() string {
	return fmt.Sprintf("%s_%s_%s", k.Name, k.Base, k.Class)
}

// Store loads and saves status variable values. A key that was never saved
// loads as an empty map.
type Store interface {
	Load(key Key) (map[string]any, error)
	Save(key Key, data map[string]any) error
	Exists(key Key) bool
	Remove(key Key) error
}

// MemoryStore keeps status in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[Key]map[string]any
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[Key]map[string]any)}
}

func (s *MemoryStore) Load(key Key) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[string]any{}
	maps.Copy(out, s.data[key])
	return out, nil
}

func (s *MemoryStore) Save(key Key, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = maps.Clone(data)
	return nil
}

func (s *MemoryStore) Exists(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok
}

func (s *MemoryStore) Remove(key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}
