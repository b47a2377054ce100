package adapter

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/studio-b12/gowebdav"
	"github.com/tabstash-sync/internal/utils"
)

// WebDAVStore implements RemoteStore against a WebDAV server
type WebDAVStore struct {
	client *gowebdav.Client
	retry  utils.RetryConfig
}

// NewWebDAVStore creates a WebDAV store for target
func NewWebDAVStore(target, username, password string) (*WebDAVStore, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid WebDAV target: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid WebDAV target %q: scheme must be http or https", target)
	}

	client := gowebdav.NewClient(target, username, password)
	client.SetTimeout(30 * time.Second)

	return &WebDAVStore{
		client: client,
		retry: utils.RetryConfig{
			MaxRetries: 2,
			BaseDelay:  500 * time.Millisecond,
			MaxDelay:   5 * time.Second,
			Multiplier: 2.0,
		},
	}, nil
}

func (w *WebDAVStore) do(ctx context.Context, op func() error) error {
	return utils.RetryWithBackoff(ctx, w.retry, op)
}

func (w *WebDAVStore) listDirectory(ctx context.Context, dir string) ([]entry, error) {
	var entries []entry
	err := w.do(ctx, func() error {
		infos, err := w.client.ReadDir(dir)
		if err != nil {
			if gowebdav.IsErrNotFound(err) {
				return fmt.Errorf("%w: %s", ErrNotFound, dir)
			}
			return err
		}
		entries = make([]entry, 0, len(infos))
		for _, info := range infos {
			entries = append(entries, entry{Name: info.Name(), Dir: info.IsDir()})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	return entries, nil
}

func (w *WebDAVStore) makeDirectory(ctx context.Context, dir string) error {
	return w.do(ctx, func() error {
		return w.client.Mkdir(dir, 0755)
	})
}

// DirectoryExists reports whether p is a collection
func (w *WebDAVStore) DirectoryExists(ctx context.Context, p string) (bool, error) {
	return directoryExists(ctx, w, p)
}

// EnsureDirectory creates each missing collection of p
func (w *WebDAVStore) EnsureDirectory(ctx context.Context, p string) error {
	return walkDirectory(ctx, w, p)
}

// FileExists reports whether p is listed in its parent collection
func (w *WebDAVStore) FileExists(ctx context.Context, p string) (bool, error) {
	return fileExists(ctx, w, p)
}

// ReadFile downloads p
func (w *WebDAVStore) ReadFile(ctx context.Context, p string) ([]byte, error) {
	var data []byte
	err := w.do(ctx, func() error {
		var err error
		data, err = w.client.Read(cleanPath(p))
		if gowebdav.IsErrNotFound(err) {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	logrus.Debugf("Read %d bytes from %s", len(data), p)
	return data, nil
}

// WriteFile uploads data to p
func (w *WebDAVStore) WriteFile(ctx context.Context, p string, data []byte) error {
	err := w.do(ctx, func() error {
		return w.client.Write(cleanPath(p), data, 0644)
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	logrus.Debugf("Wrote %d bytes to %s", len(data), p)
	return nil
}
