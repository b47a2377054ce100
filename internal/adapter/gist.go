package adapter

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/go-github/v56/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const gistPlaceholder = ".keep"

// GistStore implements RemoteStore on top of GitHub gists. A directory is a
// gist whose description equals the directory name and files are gist files,
// so only a single directory level is available.
type GistStore struct {
	client *github.Client

	mu  sync.Mutex
	ids map[string]string // description -> gist ID
}

// NewGistStore creates a gist store. An empty target uses api.github.com,
// otherwise target is the API base URL of a compatible server.
func NewGistStore(target, token string) (*GistStore, error) {
	if token == "" {
		return nil, fmt.Errorf("gist token is required")
	}

	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)

	return newGistStore(tc, target)
}

func newGistStore(httpClient *http.Client, target string) (*GistStore, error) {
	client := github.NewClient(httpClient)
	if target != "" {
		base, err := url.Parse(strings.TrimSuffix(target, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid gist API URL: %w", err)
		}
		client.BaseURL = base
	}
	return &GistStore{client: client, ids: make(map[string]string)}, nil
}

// splitGistPath maps a remote path to (gist description, file name)
func splitGistPath(p string) (string, string, error) {
	segments := splitPath(p)
	switch len(segments) {
	case 0:
		return "", "", nil
	case 1:
		return segments[0], "", nil
	case 2:
		return segments[0], segments[1], nil
	default:
		return "", "", fmt.Errorf("gist backend supports a single directory level, got %s", p)
	}
}

func (g *GistStore) listGists(ctx context.Context) ([]*github.Gist, error) {
	var all []*github.Gist
	opts := &github.GistListOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		gists, resp, err := g.client.Gists.List(ctx, "", opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list gists: %w", err)
		}
		all = append(all, gists...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	g.mu.Lock()
	for _, gist := range all {
		if desc := gist.GetDescription(); desc != "" {
			if _, seen := g.ids[desc]; !seen {
				g.ids[desc] = gist.GetID()
			}
		}
	}
	g.mu.Unlock()

	return all, nil
}

// gistID resolves the gist backing a directory, or "" when there is none
func (g *GistStore) gistID(ctx context.Context, dir string) (string, error) {
	g.mu.Lock()
	id, ok := g.ids[dir]
	g.mu.Unlock()
	if ok {
		return id, nil
	}

	if _, err := g.listGists(ctx); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ids[dir], nil
}

func (g *GistStore) getGist(ctx context.Context, dir string) (*github.Gist, error) {
	id, err := g.gistID(ctx, dir)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
	}

	gist, resp, err := g.client.Gists.Get(ctx, id)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			g.mu.Lock()
			delete(g.ids, dir)
			g.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
		}
		return nil, fmt.Errorf("failed to get gist %s: %w", id, err)
	}
	return gist, nil
}

func (g *GistStore) listDirectory(ctx context.Context, dir string) ([]entry, error) {
	desc, _, err := splitGistPath(dir)
	if err != nil {
		return nil, err
	}

	if desc == "" {
		gists, err := g.listGists(ctx)
		if err != nil {
			return nil, err
		}
		entries := make([]entry, 0, len(gists))
		for _, gist := range gists {
			if d := gist.GetDescription(); d != "" {
				entries = append(entries, entry{Name: d, Dir: true})
			}
		}
		return entries, nil
	}

	gist, err := g.getGist(ctx, desc)
	if err != nil {
		return nil, err
	}
	entries := make([]entry, 0, len(gist.Files))
	for name := range gist.Files {
		if string(name) == gistPlaceholder {
			continue
		}
		entries = append(entries, entry{Name: string(name)})
	}
	return entries, nil
}

func (g *GistStore) makeDirectory(ctx context.Context, dir string) error {
	desc, file, err := splitGistPath(dir)
	if err != nil {
		return err
	}
	if file != "" {
		return fmt.Errorf("gist backend supports a single directory level, got %s", dir)
	}

	gist, _, err := g.client.Gists.Create(ctx, &github.Gist{
		Description: github.String(desc),
		Public:      github.Bool(false),
		Files: map[github.GistFilename]github.GistFile{
			gistPlaceholder: {Content: github.String(desc)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create gist %s: %w", desc, err)
	}

	g.mu.Lock()
	g.ids[desc] = gist.GetID()
	g.mu.Unlock()

	logrus.Infof("Created gist %s for directory %s", gist.GetID(), desc)
	return nil
}

// DirectoryExists reports whether a gist with description p exists
func (g *GistStore) DirectoryExists(ctx context.Context, p string) (bool, error) {
	return directoryExists(ctx, g, p)
}

// EnsureDirectory creates the gist backing p when missing
func (g *GistStore) EnsureDirectory(ctx context.Context, p string) error {
	if len(splitPath(p)) > 1 {
		return fmt.Errorf("gist backend supports a single directory level, got %s", p)
	}
	return walkDirectory(ctx, g, p)
}

// FileExists reports whether the gist for p's directory holds p's file
func (g *GistStore) FileExists(ctx context.Context, p string) (bool, error) {
	if _, _, err := splitGistPath(p); err != nil {
		return false, err
	}
	return fileExists(ctx, g, p)
}

// ReadFile returns the content of a gist file
func (g *GistStore) ReadFile(ctx context.Context, p string) ([]byte, error) {
	desc, name, err := splitGistPath(p)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%s is not a file", p)
	}

	gist, err := g.getGist(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	file, ok := gist.Files[github.GistFilename(name)]
	if !ok {
		return nil, fmt.Errorf("failed to read %s: %w", p, ErrNotFound)
	}
	if file.GetSize() <= len(file.GetContent()) {
		return []byte(file.GetContent()), nil
	}

	// The API cuts content off for large files; the raw URL has all of it
	data, err := g.downloadRaw(ctx, file.GetRawURL())
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	logrus.Debugf("Fetched truncated gist file %s (%d bytes) from raw URL", name, len(data))
	return data, nil
}

func (g *GistStore) downloadRaw(ctx context.Context, rawURL string) ([]byte, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("truncated gist file has no raw URL")
	}
	req, err := g.client.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid raw URL %s: %w", rawURL, err)
	}
	var buf bytes.Buffer
	if _, err := g.client.Do(ctx, req, &buf); err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	return buf.Bytes(), nil
}

// WriteFile sets the content of a gist file
func (g *GistStore) WriteFile(ctx context.Context, p string, data []byte) error {
	desc, name, err := splitGistPath(p)
	if err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("%s is not a file", p)
	}

	id, err := g.gistID(ctx, desc)
	if err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("failed to write %s: directory %s does not exist", p, desc)
	}

	_, _, err = g.client.Gists.Edit(ctx, id, &github.Gist{
		Files: map[github.GistFilename]github.GistFile{
			github.GistFilename(name): {Content: github.String(string(data))},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	logrus.Debugf("Wrote %d bytes to gist %s file %s", len(data), id, name)
	return nil
}
