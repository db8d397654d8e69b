package store

import (
	"encoding/json"
	"sync"
)

// Collection names used by the services.
const (
	CollectionUsers       = "users"
	CollectionSurveys     = "surveys"
	CollectionAssignments = "assignments"
	CollectionHistory     = "assignment_history"
)

// RecordStore persists named collections of keyed records. Reading an
// unknown collection yields an empty map, never an error. A write replaces
// the whole collection atomically relative to concurrent reads. Returned
// maps are copies; mutating them does not affect store state.
type RecordStore interface {
	Read(collection string) (map[string]json.RawMessage, error)
	Write(collection string, records map[string]json.RawMessage) error
}

// MemoryStore keeps collections in process memory. Suitable for tests and
// single-node deployments without durability requirements.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]json.RawMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]map[string]json.RawMessage{}}
}

func (s *MemoryStore) Read(collection string) (map[string]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(s.data[collection]))
	for k, v := range s.data[collection] {
		cp := make(json.RawMessage, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out, nil
}

func (s *MemoryStore) Write(collection string, records map[string]json.RawMessage) error {
	cp := make(map[string]json.RawMessage, len(records))
	for k, v := range records {
		b := make(json.RawMessage, len(v))
		copy(b, v)
		cp[k] = b
	}
	s.mu.Lock()
	s.data[collection] = cp
	s.mu.Unlock()
	return nil
}
