// Package settings holds the application settings document. The sync engine
// treats it as an opaque bag except for a few well-known fields.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tabstash-sync/internal/storage"
)

// Well-known fields
const (
	KeyAutoSync     = "autoSync"
	KeyAutoSyncType = "autoSyncType"
	KeyLanguage     = "language"
)

const documentName = "settings"

// Snapshot is a full copy of the settings document
type Snapshot map[string]any

// Clone returns a shallow copy; values are JSON scalars or replaced wholesale
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// AutoSync reports whether automatic sync is switched on
func (s Snapshot) AutoSync() bool {
	v, _ := s[KeyAutoSync].(bool)
	return v
}

// String returns a string field or "" if missing or not a string
func (s Snapshot) String(key string) string {
	v, _ := s[key].(string)
	return v
}

// Parse decodes a settings document
func Parse(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if s == nil {
		return nil, fmt.Errorf("failed to parse settings: document is not an object")
	}
	return s, nil
}

// Encode serializes a settings document
func Encode(s Snapshot) ([]byte, error) {
	if s == nil {
		s = Snapshot{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settings: %w", err)
	}
	return data, nil
}

// Merge overlays remote on local. Remote wins on every field except autoSync,
// which always keeps the local value (absent locally means absent).
func Merge(local, remote Snapshot) Snapshot {
	out := local.Clone()
	for k, v := range remote {
		out[k] = v
	}
	return keepLocalAutoSync(out, local)
}

// Replace adopts remote wholesale except autoSync, which keeps the local value
func Replace(local, remote Snapshot) Snapshot {
	return keepLocalAutoSync(remote.Clone(), local)
}

func keepLocalAutoSync(out, local Snapshot) Snapshot {
	if v, ok := local[KeyAutoSync]; ok {
		out[KeyAutoSync] = v
	} else {
		delete(out, KeyAutoSync)
	}
	return out
}

// Store is the local settings store the sync engine works against
type Store interface {
	Get(ctx context.Context) (Snapshot, error)
	Set(ctx context.Context, s Snapshot) error
}

// Defaults are applied under whatever is stored
var Defaults = Snapshot{
	KeyAutoSync:     false,
	KeyAutoSyncType: "auto-push-merge",
	KeyLanguage:     "en",
}

// LocalStore persists settings in a storage backend
type LocalStore struct {
	backend  storage.Backend
	defaults Snapshot
	mu       sync.Mutex
}

// NewLocalStore creates a settings store over backend
func NewLocalStore(backend storage.Backend) *LocalStore {
	return &LocalStore{backend: backend, defaults: Defaults.Clone()}
}

// SetDefault changes the value reported for key while nothing is stored
func (s *LocalStore) SetDefault(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults[key] = value
}

// Get returns the stored settings layered over Defaults
func (s *LocalStore) Get(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored Snapshot
	if _, err := storage.LoadJSON(ctx, s.backend, documentName, &stored); err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	out := s.defaults.Clone()
	for k, v := range stored {
		out[k] = v
	}
	return out, nil
}

// Set replaces the stored settings
func (s *LocalStore) Set(ctx context.Context, snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return storage.SaveJSON(ctx, s.backend, documentName, snapshot)
}
