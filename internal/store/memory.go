package store

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps records in process. It backs tests and single-process deployments.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]Record)}
}

func (s *MemoryStore) Get(_ context.Context, collection, key string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.collections[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(rec), nil
}

func (s *MemoryStore) Set(_ context.Context, collection, key string, rec Record, mode Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.collection(collection)
	if existing, ok := records[key]; ok && mode == ModeMerge {
		records[key] = merge(existing, clone(rec))
		return nil
	}
	records[key] = clone(rec)
	return nil
}

func (s *MemoryStore) Create(_ context.Context, collection, key string, rec Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.collection(collection)
	if _, ok := records[key]; ok {
		return false, nil
	}
	records[key] = clone(rec)
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], key)
	return nil
}

func (s *MemoryStore) List(_ context.Context, collection string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.collections[collection]
	keys := make([]string, 0, len(records))
	for key := range records {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	out := make([]Record, 0, len(keys))
	for _, key := range keys {
		out = append(out, clone(records[key]))
	}
	return out, nil
}

func (s *MemoryStore) collection(name string) map[string]Record {
	records, ok := s.collections[name]
	if !ok {
		records = make(map[string]Record)
		s.collections[name] = records
	}
	return records
}
