// tabstash sync
// Copyright (C) 2025  tabstash sync contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/sirupsen/logrus"
)

// FolderStore implements RemoteStore on a local or mounted folder
type FolderStore struct {
	fs billy.Filesystem
}

// NewFolderStore creates a folder store rooted at target, which is either a
// file:// URL or a plain path
func NewFolderStore(target string) (*FolderStore, error) {
	root := target
	if strings.HasPrefix(target, "file://") {
		u, err := url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("invalid folder target: %w", err)
		}
		root = u.Path
	}
	if root == "" {
		return nil, fmt.Errorf("folder target is empty")
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("folder does not exist: %s", root)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("folder target is not a directory: %s", root)
	}

	return NewFolderStoreFS(osfs.New(root)), nil
}

// NewFolderStoreFS creates a folder store on an existing filesystem
func NewFolderStoreFS(fs billy.Filesystem) *FolderStore {
	return &FolderStore{fs: fs}
}

func (f *FolderStore) listDirectory(ctx context.Context, dir string) ([]entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := f.fs.ReadDir(cleanPath(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	entries := make([]entry, 0, len(infos))
	for _, info := range infos {
		// Skip hidden files
		if strings.HasPrefix(info.Name(), ".") {
			continue
		}
		entries = append(entries, entry{Name: info.Name(), Dir: info.IsDir()})
	}
	return entries, nil
}

func (f *FolderStore) makeDirectory(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.fs.MkdirAll(cleanPath(dir), 0755)
}

// DirectoryExists reports whether p is a directory
func (f *FolderStore) DirectoryExists(ctx context.Context, p string) (bool, error) {
	return directoryExists(ctx, f, p)
}

// EnsureDirectory creates each missing directory of p
func (f *FolderStore) EnsureDirectory(ctx context.Context, p string) error {
	return walkDirectory(ctx, f, p)
}

// FileExists reports whether p is a regular file
func (f *FolderStore) FileExists(ctx context.Context, p string) (bool, error) {
	return fileExists(ctx, f, p)
}

// ReadFile reads p
func (f *FolderStore) ReadFile(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := util.ReadFile(f.fs, cleanPath(p))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", p, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return data, nil
}

// WriteFile creates or truncates p
func (f *FolderStore) WriteFile(ctx context.Context, p string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := util.WriteFile(f.fs, cleanPath(p), data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	logrus.Debugf("Wrote %d bytes to %s", len(data), p)
	return nil
}
