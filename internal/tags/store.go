package tags

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tabstash-sync/internal/storage"
)

const documentName = "tag-list"

// Store is the local tag store the sync engine works against
type Store interface {
	Export(ctx context.Context) (TagList, error)
	Import(ctx context.Context, list TagList, mode ImportMode) error
	ClearAll(ctx context.Context) error
}

// LocalStore persists the tag list in a storage backend
type LocalStore struct {
	backend storage.Backend
	mu      sync.Mutex
}

// NewLocalStore creates a tag store over backend
func NewLocalStore(backend storage.Backend) *LocalStore {
	return &LocalStore{backend: backend}
}

func (s *LocalStore) load(ctx context.Context) (TagList, error) {
	var list TagList
	if _, err := storage.LoadJSON(ctx, s.backend, documentName, &list); err != nil {
		return nil, fmt.Errorf("failed to load tag list: %w", err)
	}
	if list == nil {
		list = TagList{}
	}
	return list, nil
}

// Export returns a copy of the stored tag list
func (s *LocalStore) Export(ctx context.Context) (TagList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Import combines list with the stored tag list according to mode
func (s *LocalStore) Import(ctx context.Context, list TagList, mode ImportMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result TagList
	switch mode {
	case ImportReplace:
		result = list.Clone()
		if result == nil {
			result = TagList{}
		}
	case ImportMerge:
		local, err := s.load(ctx)
		if err != nil {
			return err
		}
		result = Merge(local, list)
	default:
		return fmt.Errorf("unknown import mode: %s", mode)
	}

	logrus.Debugf("Importing %d tags (mode=%s), result has %d tags", len(list), mode, len(result))
	return storage.SaveJSON(ctx, s.backend, documentName, result)
}

// ClearAll removes every tag
func (s *LocalStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return storage.SaveJSON(ctx, s.backend, documentName, TagList{})
}
