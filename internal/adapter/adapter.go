package adapter

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/sirupsen/logrus"
)

// Backend kinds
const (
	KindWebDAV = "webdav"
	KindGist   = "gist"
	KindS3     = "s3"
	KindFolder = "folder"
)

// ErrNotFound is returned by ReadFile when the file does not exist
var ErrNotFound = errors.New("remote file not found")

// RemoteStore is a hierarchical remote file store used as a sync target
type RemoteStore interface {
	// DirectoryExists reports whether path is an existing directory
	DirectoryExists(ctx context.Context, path string) (bool, error)

	// EnsureDirectory creates every missing segment of path, root first
	EnsureDirectory(ctx context.Context, path string) error

	// FileExists reports whether path is listed in its parent directory
	FileExists(ctx context.Context, path string) (bool, error)

	// ReadFile returns the file contents or ErrNotFound
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// WriteFile creates or replaces the file at path
	WriteFile(ctx context.Context, path string, data []byte) error
}

// Backend describes how to reach a remote store
type Backend struct {
	Kind     string
	Target   string
	Username string
	Password string
}

// New creates the remote store for b
func New(b Backend) (RemoteStore, error) {
	if strings.TrimSpace(b.Target) == "" && b.Kind != KindGist {
		return nil, fmt.Errorf("%s backend requires a target", b.Kind)
	}

	switch b.Kind {
	case KindWebDAV, "":
		return NewWebDAVStore(b.Target, b.Username, b.Password)
	case KindGist:
		return NewGistStore(b.Target, b.Password)
	case KindS3:
		return NewS3Store(b.Target, b.Username, b.Password)
	case KindFolder:
		return NewFolderStore(b.Target)
	default:
		return nil, fmt.Errorf("unsupported backend kind: %s", b.Kind)
	}
}

// entry is one child of a listed directory
type entry struct {
	Name string
	Dir  bool
}

// directoryLister is the minimal surface every backend provides. Listing a
// missing directory must return an error wrapping ErrNotFound.
type directoryLister interface {
	listDirectory(ctx context.Context, dir string) ([]entry, error)
	makeDirectory(ctx context.Context, dir string) error
}

// cleanPath normalizes a remote path to an absolute slash path
func cleanPath(p string) string {
	return path.Clean("/" + p)
}

// splitPath returns the non-empty segments of p
func splitPath(p string) []string {
	var segments []string
	for _, s := range strings.Split(cleanPath(p), "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

func lookup(ctx context.Context, l directoryLister, p string) (*entry, error) {
	p = cleanPath(p)
	parent, name := path.Split(p)
	entries, err := l.listDirectory(ctx, cleanPath(parent))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	for _, e := range entries {
		if e.Name == name {
			return &e, nil
		}
	}
	return nil, nil
}

func directoryExists(ctx context.Context, l directoryLister, p string) (bool, error) {
	if cleanPath(p) == "/" {
		return true, nil
	}
	e, err := lookup(ctx, l, p)
	if err != nil {
		return false, err
	}
	return e != nil && e.Dir, nil
}

func fileExists(ctx context.Context, l directoryLister, p string) (bool, error) {
	e, err := lookup(ctx, l, p)
	if err != nil {
		return false, err
	}
	return e != nil && !e.Dir, nil
}

// walkDirectory creates each missing segment of p in order. A failed parent
// listing does not stop the walk; the segment is created anyway.
func walkDirectory(ctx context.Context, l directoryLister, p string) error {
	current := "/"
	for _, segment := range splitPath(p) {
		if err := ctx.Err(); err != nil {
			return err
		}

		next := path.Join(current, segment)
		entries, err := l.listDirectory(ctx, current)
		if err != nil && !errors.Is(err, ErrNotFound) {
			logrus.Debugf("Failed to list %s, creating %s anyway: %v", current, next, err)
		}

		exists := false
		for _, e := range entries {
			if e.Name == segment && e.Dir {
				exists = true
				break
			}
		}

		if !exists {
			logrus.Debugf("Creating remote directory %s", next)
			if err := l.makeDirectory(ctx, next); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", next, err)
			}
		}
		current = next
	}
	return nil
}
