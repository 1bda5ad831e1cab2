package memory

import (
	"errors"
	"sync"
)

// ErrQuotaExceeded mirrors the browser's storage quota error.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Store is an in-process string key-value store.
type Store struct {
	mu    sync.RWMutex
	data  map[string]string
	quota int
	used  int
}

type StoreOption func(*Store)

// WithQuota caps the total size of keys plus values in bytes. Zero means unlimited.
func WithQuota(bytes int) StoreOption {
	return func(s *Store) { s.quota = bytes }
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{data: make(map[string]string)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(key, value)
}

func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.data[key]; ok {
		s.used -= len(key) + len(v)
		delete(s.data, key)
	}
	return nil
}

// Update runs fn and stores its result while holding the write lock.
func (s *Store) Update(key string, fn func(current string, ok bool) (string, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.data[key]
	next, err := fn(current, ok)
	if err != nil {
		return err
	}
	return s.setLocked(key, next)
}

func (s *Store) setLocked(key, value string) error {
	delta := len(key) + len(value)
	if prev, ok := s.data[key]; ok {
		delta -= len(key) + len(prev)
	}
	if s.quota > 0 && s.used+delta > s.quota {
		return ErrQuotaExceeded
	}
	s.data[key] = value
	s.used += delta
	return nil
}
