package memory

import (
	"sync"
)

// BlobStore is an in-memory domain.BlobStore.
type BlobStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewBlobStore() *BlobStore {
	return &BlobStore{
		values: make(map[string]string),
	}
}

func (s *BlobStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	return v, ok, nil
}

func (s *BlobStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return nil
}

func (s *BlobStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}
