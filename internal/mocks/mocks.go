package mocks

import (
	"context"
	"fmt"
	"path"
	"sync"

	"github.com/tabstash-sync/internal/adapter"
	"github.com/tabstash-sync/internal/settings"
	"github.com/tabstash-sync/internal/tags"
)

// MockRemoteStore is an in-memory remote store. Func fields override the
// default behavior of the matching method.
type MockRemoteStore struct {
	DirectoryExistsFunc func(ctx context.Context, p string) (bool, error)
	EnsureDirectoryFunc func(ctx context.Context, p string) error
	FileExistsFunc      func(ctx context.Context, p string) (bool, error)
	ReadFileFunc        func(ctx context.Context, p string) ([]byte, error)
	WriteFileFunc       func(ctx context.Context, p string, data []byte) error

	mu     sync.Mutex
	Dirs   map[string]bool
	Files  map[string][]byte
	Writes []string
}

// NewMockRemoteStore creates an empty remote store
func NewMockRemoteStore() *MockRemoteStore {
	return &MockRemoteStore{
		Dirs:  map[string]bool{"/": true},
		Files: map[string][]byte{},
	}
}

// DirectoryExists mocks the DirectoryExists method
func (m *MockRemoteStore) DirectoryExists(ctx context.Context, p string) (bool, error) {
	if m.DirectoryExistsFunc != nil {
		return m.DirectoryExistsFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Dirs[path.Clean(p)], nil
}

// EnsureDirectory mocks the EnsureDirectory method
func (m *MockRemoteStore) EnsureDirectory(ctx context.Context, p string) error {
	if m.EnsureDirectoryFunc != nil {
		return m.EnsureDirectoryFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for dir := path.Clean(p); dir != "/" && dir != "."; dir = path.Dir(dir) {
		m.Dirs[dir] = true
	}
	return nil
}

// FileExists mocks the FileExists method
func (m *MockRemoteStore) FileExists(ctx context.Context, p string) (bool, error) {
	if m.FileExistsFunc != nil {
		return m.FileExistsFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Files[path.Clean(p)]
	return ok, nil
}

// ReadFile mocks the ReadFile method
func (m *MockRemoteStore) ReadFile(ctx context.Context, p string) ([]byte, error) {
	if m.ReadFileFunc != nil {
		return m.ReadFileFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.Files[path.Clean(p)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, adapter.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// WriteFile mocks the WriteFile method
func (m *MockRemoteStore) WriteFile(ctx context.Context, p string, data []byte) error {
	if m.WriteFileFunc != nil {
		return m.WriteFileFunc(ctx, p, data)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p = path.Clean(p)
	if !m.Dirs[path.Dir(p)] {
		return fmt.Errorf("409 Conflict: parent of %s does not exist", p)
	}
	m.Files[p] = append([]byte(nil), data...)
	m.Writes = append(m.Writes, p)
	return nil
}

// File returns the stored content of p
func (m *MockRemoteStore) File(p string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.Files[path.Clean(p)]
	return string(data), ok
}

// MockTagStore is a mock implementation of tags.Store
type MockTagStore struct {
	ExportFunc   func(ctx context.Context) (tags.TagList, error)
	ImportFunc   func(ctx context.Context, list tags.TagList, mode tags.ImportMode) error
	ClearAllFunc func(ctx context.Context) error

	Cleared int
}

// Export mocks the Export method
func (m *MockTagStore) Export(ctx context.Context) (tags.TagList, error) {
	if m.ExportFunc != nil {
		return m.ExportFunc(ctx)
	}
	return tags.TagList{}, nil
}

// Import mocks the Import method
func (m *MockTagStore) Import(ctx context.Context, list tags.TagList, mode tags.ImportMode) error {
	if m.ImportFunc != nil {
		return m.ImportFunc(ctx, list, mode)
	}
	return nil
}

// ClearAll mocks the ClearAll method
func (m *MockTagStore) ClearAll(ctx context.Context) error {
	m.Cleared++
	if m.ClearAllFunc != nil {
		return m.ClearAllFunc(ctx)
	}
	return nil
}

// MockSettingsStore is a mock implementation of settings.Store
type MockSettingsStore struct {
	GetFunc func(ctx context.Context) (settings.Snapshot, error)
	SetFunc func(ctx context.Context, snapshot settings.Snapshot) error
}

// Get mocks the Get method
func (m *MockSettingsStore) Get(ctx context.Context) (settings.Snapshot, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx)
	}
	return settings.Defaults.Clone(), nil
}

// Set mocks the Set method
func (m *MockSettingsStore) Set(ctx context.Context, snapshot settings.Snapshot) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, snapshot)
	}
	return nil
}
