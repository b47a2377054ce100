// Package storage provides durable key/value persistence for local state:
// the sync configuration, the tag list and the settings document. Values are
// opaque byte slices; callers own the encoding.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when no value is stored under a name.
var ErrNotFound = errors.New("storage: not found")

// Backend persists named documents.
type Backend interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, data []byte) error
	Close() error
}

// Open creates the backend selected by driver ("file" or "sqlite") rooted at path.
func Open(driver, path string) (Backend, error) {
	switch driver {
	case "file":
		return NewFileBackend(path)
	case "sqlite":
		return NewSQLiteBackend(path)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
}

// LoadJSON decodes the document stored under name into v. It reports false
// without error when nothing is stored yet.
func LoadJSON(ctx context.Context, b Backend, name string, v any) (bool, error) {
	data, err := b.Get(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", name, err)
	}
	return true, nil
}

// SaveJSON encodes v and stores it under name.
func SaveJSON(ctx context.Context, b Backend, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	return b.Put(ctx, name, data)
}
