package store

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu     sync.Mutex
	values map[string]map[string]string
}

func NewMemory() *MemoryStore {
	return &MemoryStore{values: map[string]map[string]string{}}
}

func (s *MemoryStore) Get(ctx context.Context, browserID, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[browserID][key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) GetAll(ctx context.Context, browserID string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.values[browserID]))
	for k, v := range s.values[browserID] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) SetMany(ctx context.Context, browserID string, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.values[browserID]
	if !ok {
		m = map[string]string{}
		s.values[browserID] = m
	}
	for k, v := range values {
		m[k] = v
	}
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, browserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, browserID)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }
