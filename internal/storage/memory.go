package storage

import (
	"context"
	"fmt"
	"sync"
)

// Memory keeps blobs in process memory. It backs STORAGE_BACKENDS=memory
// for local development and is the storage double in tests.
type Memory struct {
	name string

	mu    sync.Mutex
	blobs map[string][]byte
	fail  error
}

func NewMemory(name string) *Memory {
	if name == "" {
		name = "memory"
	}
	return &Memory{name: name, blobs: map[string][]byte{}}
}

func (m *Memory) Name() string { return m.name }

// SetFailure makes every subsequent operation return err. Pass nil to
// recover.
func (m *Memory) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Len returns the number of stored blobs.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}

func (m *Memory) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.blobs[key] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	data, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", m.name, key, ErrBlobNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	delete(m.blobs, key)
	return nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return false, m.fail
	}
	_, ok := m.blobs[key]
	return ok, nil
}
