package safe

import (
	"sync"
)

// Map is a concurrency & type safe map
type Map[T any] struct {
	mu   sync.RWMutex
	data map[string]T
}

func NewMap[T any](data map[string]T) *Map[T] {
	return &Map[T]{
		data: data,
	}
}

func (m *Map[T]) Get(key string) T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data[key]
}

func (m *Map[T]) Exists(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok
}

func (m *Map[T]) Set(key string, value T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]T{}
	}
	m.data[key] = value
}

// GetOrCompute returns the cached value for key, computing and storing it on a miss.
// Errors are returned and never cached.
func (m *Map[T]) GetOrCompute(key string, compute func() (T, error)) (T, error) {
	m.mu.RLock()
	value, ok := m.data[key]
	m.mu.RUnlock()
	if ok {
		return value, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if value, ok := m.data[key]; ok {
		return value, nil
	}
	value, err := compute()
	if err != nil {
		var zero T
		return zero, err
	}
	if m.data == nil {
		m.data = map[string]T{}
	}
	m.data[key] = value
	return value, nil
}

func (m *Map[T]) Del(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

func (m *Map[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
