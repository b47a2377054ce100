package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/tabstash-sync/internal/adapter"
	"github.com/tabstash-sync/internal/events"
	"github.com/tabstash-sync/internal/settings"
	"github.com/tabstash-sync/internal/syncconfig"
	"github.com/tabstash-sync/internal/tags"
)

// Remote layout shared by every backend
const (
	RootDir      = "/__tabstash__"
	TagsFile     = RootDir + "/__tabstash_tags__.json"
	SettingsFile = RootDir + "/__tabstash_settings__.json"
)

// Resolver reconciles the local tag and settings stores with a remote store
type Resolver struct {
	tags     tags.Store
	settings settings.Store
	bus      events.Publisher
}

// NewResolver creates a resolver over the local stores
func NewResolver(tagStore tags.Store, settingsStore settings.Store, bus events.Publisher) *Resolver {
	return &Resolver{tags: tagStore, settings: settingsStore, bus: bus}
}

// Resolve runs one reconciliation of the given type against store. The
// remote root directory must already exist.
func (r *Resolver) Resolve(ctx context.Context, store adapter.RemoteStore, syncType syncconfig.SyncType) error {
	switch syncType.Mode() {
	case syncconfig.PushForce:
		return r.pushForce(ctx, store)
	case syncconfig.PullForce:
		return r.pullForce(ctx, store)
	case syncconfig.PushMerge, syncconfig.PullMerge:
		return r.merge(ctx, store, syncType.IsPush())
	default:
		return fmt.Errorf("unknown sync type: %s", syncType)
	}
}

// readRemote returns the content of p and whether it is present. Missing and
// blank documents are both reported as absent.
func readRemote(ctx context.Context, store adapter.RemoteStore, p string) ([]byte, bool, error) {
	exists, err := store.FileExists(ctx, p)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check %s: %w", p, err)
	}
	if !exists {
		return nil, false, nil
	}

	data, err := store.ReadFile(ctx, p)
	if err != nil {
		if errors.Is(err, adapter.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, false, nil
	}
	return data, true, nil
}

func (r *Resolver) pushTags(ctx context.Context, store adapter.RemoteStore) error {
	list, err := r.tags.Export(ctx)
	if err != nil {
		return fmt.Errorf("failed to export local tags: %w", err)
	}
	data, err := tags.Encode(list)
	if err != nil {
		return err
	}
	logrus.Debugf("Pushing %d tags", len(list))
	return store.WriteFile(ctx, TagsFile, tags.StripEmoji(data))
}

func (r *Resolver) pushSettings(ctx context.Context, store adapter.RemoteStore, snapshot settings.Snapshot) error {
	if snapshot == nil {
		var err error
		if snapshot, err = r.settings.Get(ctx); err != nil {
			return fmt.Errorf("failed to read local settings: %w", err)
		}
	}
	data, err := settings.Encode(snapshot)
	if err != nil {
		return err
	}
	return store.WriteFile(ctx, SettingsFile, data)
}

// remoteTags parses the remote tag document, returning nil when absent
func (r *Resolver) remoteTags(ctx context.Context, store adapter.RemoteStore) (tags.TagList, error) {
	data, ok, err := readRemote(ctx, store, TagsFile)
	if err != nil {
		return nil, err
	}
	if !ok {
		logrus.Debugf("No remote tag document")
		return nil, nil
	}
	list, err := tags.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid remote tag document: %w", err)
	}
	return list, nil
}

// applyRemoteSettings combines remote settings into the local store. Any
// failure is logged and leaves local settings untouched. It returns the
// applied snapshot or nil.
func (r *Resolver) applyRemoteSettings(ctx context.Context, store adapter.RemoteStore, combine func(local, remote settings.Snapshot) settings.Snapshot) settings.Snapshot {
	data, ok, err := readRemote(ctx, store, SettingsFile)
	if err != nil {
		logrus.Warnf("Failed to read remote settings: %v", err)
		return nil
	}
	if !ok {
		logrus.Debugf("No remote settings document")
		return nil
	}

	remote, err := settings.Parse(data)
	if err != nil {
		logrus.Warnf("Ignoring remote settings: %v", err)
		return nil
	}

	local, err := r.settings.Get(ctx)
	if err != nil {
		logrus.Warnf("Failed to read local settings: %v", err)
		return nil
	}

	applied := combine(local, remote)
	if err := r.settings.Set(ctx, applied); err != nil {
		logrus.Warnf("Failed to save settings: %v", err)
		return nil
	}

	if lang := applied.String(settings.KeyLanguage); lang != "" {
		r.bus.Publish(events.Event{Type: events.LocaleChanged, Language: lang})
	}
	return applied
}

func (r *Resolver) pushForce(ctx context.Context, store adapter.RemoteStore) error {
	if err := r.pushTags(ctx, store); err != nil {
		return err
	}
	return r.pushSettings(ctx, store, nil)
}

func (r *Resolver) pullForce(ctx context.Context, store adapter.RemoteStore) error {
	list, err := r.remoteTags(ctx, store)
	if err != nil {
		return err
	}
	if list != nil {
		if err := r.tags.ClearAll(ctx); err != nil {
			return fmt.Errorf("failed to clear local tags: %w", err)
		}
		if err := r.tags.Import(ctx, list, tags.ImportReplace); err != nil {
			return fmt.Errorf("failed to import remote tags: %w", err)
		}
		logrus.Debugf("Replaced local tags with %d remote tags", len(list))
	}

	r.applyRemoteSettings(ctx, store, settings.Replace)
	return nil
}

func (r *Resolver) merge(ctx context.Context, store adapter.RemoteStore, push bool) error {
	merged := r.applyRemoteSettings(ctx, store, settings.Merge)

	list, err := r.remoteTags(ctx, store)
	if err != nil {
		return err
	}
	if list != nil {
		if err := r.tags.Import(ctx, list, tags.ImportMerge); err != nil {
			return fmt.Errorf("failed to import remote tags: %w", err)
		}
		logrus.Debugf("Merged %d remote tags", len(list))
	}

	if !push {
		return nil
	}
	if err := r.pushTags(ctx, store); err != nil {
		return err
	}
	return r.pushSettings(ctx, store, merged)
}
