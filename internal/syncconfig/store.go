// Package syncconfig owns the list of backend configurations, their advisory
// sync status and their rolling result history.
package syncconfig

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tabstash-sync/internal/events"
	"github.com/tabstash-sync/internal/storage"
)

const documentName = "sync-config"

// ErrNotFound is returned for unknown configuration keys
var ErrNotFound = errors.New("sync configuration not found")

// Store persists the sync configuration. Every mutation reloads the
// persisted config, applies one change and saves it under the store mutex.
type Store struct {
	backend storage.Backend
	bus     events.Publisher
	mu      sync.Mutex
}

// NewStore creates a configuration store
func NewStore(backend storage.Backend, bus events.Publisher) *Store {
	return &Store{backend: backend, bus: bus}
}

func (s *Store) load(ctx context.Context) (*Config, error) {
	cfg := &Config{}
	if _, err := storage.LoadJSON(ctx, s.backend, documentName, cfg); err != nil {
		return nil, fmt.Errorf("failed to load sync config: %w", err)
	}
	if cfg.ConfigList == nil {
		cfg.ConfigList = []Item{}
	}
	return cfg, nil
}

func (s *Store) save(ctx context.Context, cfg *Config) error {
	if err := storage.SaveJSON(ctx, s.backend, documentName, cfg); err != nil {
		return fmt.Errorf("failed to save sync config: %w", err)
	}
	return nil
}

func (s *Store) mutate(ctx context.Context, fn func(cfg *Config) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(cfg); err != nil {
		return err
	}
	return s.save(ctx, cfg)
}

func (s *Store) mutateItem(ctx context.Context, key string, fn func(item *Item)) error {
	return s.mutate(ctx, func(cfg *Config) error {
		idx := cfg.index(key)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		fn(&cfg.ConfigList[idx])
		return nil
	})
}

// Config returns the persisted configuration
func (s *Store) Config(ctx context.Context) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// SetConfig persists a full configuration
func (s *Store) SetConfig(ctx context.Context, cfg *Config) error {
	keys := make(map[string]bool, len(cfg.ConfigList))
	for _, item := range cfg.ConfigList {
		if keys[item.Key] {
			return fmt.Errorf("duplicate sync configuration key: %s", item.Key)
		}
		keys[item.Key] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, cfg)
}

// Item returns the item stored under key
func (s *Store) Item(ctx context.Context, key string) (*Item, error) {
	cfg, err := s.Config(ctx)
	if err != nil {
		return nil, err
	}
	idx := cfg.index(key)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	item := cfg.ConfigList[idx]
	return &item, nil
}

// CreateItem fills in a fresh key, idle status and empty history
func CreateItem(item Item) Item {
	kind := item.Kind
	if kind == "" {
		kind = "webdav"
	}
	item.Kind = kind
	item.Key = fmt.Sprintf("%s_%s", kind, uuid.NewString())
	item.SyncStatus = StatusIdle
	item.SyncResult = []ResultItem{}
	return item
}

// AddItem creates and persists a new item
func (s *Store) AddItem(ctx context.Context, item Item) (Item, error) {
	created := CreateItem(item)
	err := s.mutate(ctx, func(cfg *Config) error {
		cfg.ConfigList = append(cfg.ConfigList, created)
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	logrus.Infof("Added sync configuration %s (%s)", created.Key, created.Kind)
	return created, nil
}

// Upsert stores item under its own key, keeping status and history of an
// existing item. Used to seed items from the configuration file.
func (s *Store) Upsert(ctx context.Context, item Item) error {
	return s.mutate(ctx, func(cfg *Config) error {
		idx := cfg.index(item.Key)
		if idx < 0 {
			item.SyncStatus = StatusIdle
			item.SyncResult = []ResultItem{}
			cfg.ConfigList = append(cfg.ConfigList, item)
			return nil
		}
		existing := &cfg.ConfigList[idx]
		existing.Label = item.Label
		existing.Kind = item.Kind
		existing.Target = item.Target
		existing.Username = item.Username
		existing.Password = item.Password
		return nil
	})
}

// Edit holds the user-editable fields of an item; nil fields are unchanged
type Edit struct {
	Label    *string `json:"label,omitempty"`
	Target   *string `json:"target,omitempty"`
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
}

// UpdateItem applies an explicit edit
func (s *Store) UpdateItem(ctx context.Context, key string, edit Edit) error {
	return s.mutateItem(ctx, key, func(item *Item) {
		if edit.Label != nil {
			item.Label = *edit.Label
		}
		if edit.Target != nil {
			item.Target = *edit.Target
		}
		if edit.Username != nil {
			item.Username = *edit.Username
		}
		if edit.Password != nil {
			item.Password = *edit.Password
		}
	})
}

// RemoveItem deletes an item
func (s *Store) RemoveItem(ctx context.Context, key string) error {
	return s.mutate(ctx, func(cfg *Config) error {
		idx := cfg.index(key)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		cfg.ConfigList = append(cfg.ConfigList[:idx], cfg.ConfigList[idx+1:]...)
		return nil
	})
}

// SetStatus persists a status and then publishes a status-change event
func (s *Store) SetStatus(ctx context.Context, key string, status Status) error {
	err := s.mutateItem(ctx, key, func(item *Item) {
		item.SyncStatus = status
	})
	if err != nil {
		return err
	}
	s.bus.Publish(events.Event{Type: events.StatusChanged, Key: key, Status: string(status)})
	return nil
}

// AddResult prepends a result, keeping at most MaxResults entries
func (s *Store) AddResult(ctx context.Context, key string, result ResultItem) error {
	return s.mutateItem(ctx, key, func(item *Item) {
		item.SyncResult = prependResult(item.SyncResult, result)
	})
}

// ClearResults empties an item's history
func (s *Store) ClearResults(ctx context.Context, key string) error {
	return s.mutateItem(ctx, key, func(item *Item) {
		item.SyncResult = []ResultItem{}
	})
}

// ResetStatuses sets every item left in "syncing" by a previous process back
// to idle
func (s *Store) ResetStatuses(ctx context.Context) error {
	var reset []string
	err := s.mutate(ctx, func(cfg *Config) error {
		for i := range cfg.ConfigList {
			if cfg.ConfigList[i].SyncStatus == StatusSyncing {
				cfg.ConfigList[i].SyncStatus = StatusIdle
				reset = append(reset, cfg.ConfigList[i].Key)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, key := range reset {
		logrus.Warnf("Reset stale syncing status of %s", key)
		s.bus.Publish(events.Event{Type: events.StatusChanged, Key: key, Status: string(StatusIdle)})
	}
	return nil
}
