package storage

import (
	"sync"
)

type memoryStorage struct {
	mu   sync.RWMutex
	data map[string]Record
}

// NewMemoryStorage returns a Storage that forgets everything on restart.
func NewMemoryStorage() Storage {
	return &memoryStorage{
		data: make(map[string]Record),
	}
}

func (m *memoryStorage) Load(key string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.data[key]
	if !ok {
		return Record{}, ErrNoRecord
	}
	return rec, nil
}

func (m *memoryStorage) Save(key string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = rec
	return nil
}

func (m *memoryStorage) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

func (m *memoryStorage) Close() error {
	return nil
}
