package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps settings in memory.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string][]byte
	closed bool
	opts   options
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		values: make(map[string][]byte),
		opts:   buildOptions(opts),
	}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string, dst any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	data, ok := s.values[key]
	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, key string, value any) error {
	if err := checkKey(key); err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	old := decodeAny(s.values[key])
	s.values[key] = data
	s.mu.Unlock()

	s.opts.announce(key, old, value, false)
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	data, ok := s.values[key]
	delete(s.values, key)
	s.mu.Unlock()

	if ok {
		s.opts.announce(key, decodeAny(data), nil, true)
	}
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func decodeAny(data []byte) any {
	if data == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	return v
}
