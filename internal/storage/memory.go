package storage

import (
	"context"
	"slices"
	"sync"

	"github.com/giselles-ai/giselle-sub007/internal/giselle"
)

// MemoryDriver keeps objects in a map. Used for tests and ephemeral servers.
type MemoryDriver struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{objects: make(map[string][]byte)}
}

func (m *MemoryDriver) Get(_ context.Context, path string, r *Range) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[path]
	if !ok {
		return nil, giselle.NotFound("object", path)
	}
	return slices.Clone(slice(data, r)), nil
}

func (m *MemoryDriver) Put(_ context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = slices.Clone(data)
	return nil
}

func (m *MemoryDriver) Append(_ context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = append(m.objects[path], data...)
	return nil
}

func (m *MemoryDriver) Exists(_ context.Context, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[path]
	return ok, nil
}

func (m *MemoryDriver) Size(_ context.Context, path string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[path]
	if !ok {
		return 0, giselle.NotFound("object", path)
	}
	return int64(len(data)), nil
}

func (m *MemoryDriver) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	return nil
}
