package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	gosync "sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tabstash-sync/internal/adapter"
	"github.com/tabstash-sync/internal/events"
	"github.com/tabstash-sync/internal/locale"
	"github.com/tabstash-sync/internal/settings"
	"github.com/tabstash-sync/internal/syncconfig"
	"github.com/tabstash-sync/internal/utils"
)

// StoreFactory builds the remote store for a configuration item
type StoreFactory func(item syncconfig.Item) (adapter.RemoteStore, error)

// DefaultStoreFactory maps an item onto adapter.New
func DefaultStoreFactory(item syncconfig.Item) (adapter.RemoteStore, error) {
	return adapter.New(adapter.Backend{
		Kind:     item.Kind,
		Target:   item.Target,
		Username: item.Username,
		Password: item.Password,
	})
}

// Manager runs sync jobs for configuration items. At most one run per key is
// active at a time; concurrent triggers for a busy key are dropped.
type Manager struct {
	configs  *syncconfig.Store
	resolver *Resolver
	settings settings.Store
	bus      events.Publisher
	stores   StoreFactory
	locks    *utils.KeyedMutex
	localize locale.Localizer
	now      func() time.Time
	runs     gosync.WaitGroup

	// RunTimeout bounds a single run when positive
	RunTimeout time.Duration
}

// NewManager creates a sync manager. A nil factory uses DefaultStoreFactory.
func NewManager(configs *syncconfig.Store, resolver *Resolver, bus events.Publisher, stores StoreFactory) *Manager {
	if stores == nil {
		stores = DefaultStoreFactory
	}
	return &Manager{
		configs:  configs,
		resolver: resolver,
		settings: resolver.settings,
		bus:      bus,
		stores:   stores,
		locks:    utils.NewKeyedMutex(),
		localize: locale.New,
		now:      time.Now,
	}
}

// SyncStart runs one sync of the given type for key and returns when it is
// finished. Unknown or unconfigured items and keys that are already syncing
// are ignored. The run is not canceled when ctx is.
func (m *Manager) SyncStart(ctx context.Context, key string, syncType syncconfig.SyncType) {
	m.runs.Add(1)
	defer m.runs.Done()

	ctx = context.WithoutCancel(ctx)

	item, err := m.configs.Item(ctx, key)
	if err != nil {
		if errors.Is(err, syncconfig.ErrNotFound) {
			logrus.Debugf("Ignoring sync for unknown configuration %s", key)
		} else {
			logrus.Errorf("Failed to load configuration %s: %v", key, err)
		}
		return
	}
	if !item.Configured() {
		logrus.Debugf("Ignoring sync for %s: no target configured", key)
		return
	}

	if !m.locks.TryLock(key) {
		logrus.Debugf("Sync already running for %s, dropping %s", key, syncType)
		return
	}
	defer m.locks.Unlock(key)

	if m.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.RunTimeout)
		defer cancel()
	}

	logrus.Infof("Starting %s sync for %s (%s)", syncType, key, item.Target)
	if err := m.configs.SetStatus(ctx, key, syncconfig.StatusSyncing); err != nil {
		logrus.Errorf("Failed to set syncing status for %s: %v", key, err)
	}

	started := m.now()
	runErr := m.run(ctx, *item, syncType)

	result := syncconfig.ResultItem{
		SyncType: syncType,
		SyncTime: m.now(),
		Outcome:  syncconfig.Success,
	}
	if runErr != nil {
		result.Outcome = syncconfig.Failed
		result.Reason = m.failureReason(ctx, runErr)
		logrus.Errorf("Sync %s for %s failed: %v", syncType, key, runErr)
	} else {
		logrus.Infof("Sync %s for %s completed in %v", syncType, key, m.now().Sub(started))
	}

	if err := m.configs.AddResult(ctx, key, result); err != nil {
		logrus.Errorf("Failed to record sync result for %s: %v", key, err)
	}
	if err := m.configs.SetStatus(ctx, key, syncconfig.StatusIdle); err != nil {
		logrus.Errorf("Failed to set idle status for %s: %v", key, err)
	}
	m.bus.Publish(events.Event{Type: events.Reload})
}

func (m *Manager) run(ctx context.Context, item syncconfig.Item, syncType syncconfig.SyncType) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("Recovered from panic during sync of %s: %v", item.Key, r)
			err = fmt.Errorf("%v", r)
		}
	}()

	store, err := m.stores(item)
	if err != nil {
		return err
	}
	if err := store.EnsureDirectory(ctx, RootDir); err != nil {
		return err
	}
	return m.resolver.Resolve(ctx, store, syncType)
}

// failureReason is the error text, or the localized generic failure message
// when the error has none
func (m *Manager) failureReason(ctx context.Context, err error) string {
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	lang := locale.DefaultLanguage
	if s, serr := m.settings.Get(ctx); serr == nil && s.String(settings.KeyLanguage) != "" {
		lang = s.String(settings.KeyLanguage)
	}
	return locale.SyncFailed(m.localize(lang))
}

// SyncAll starts a run for every configured item without waiting for them.
// The returned channel is closed once all runs have finished.
func (m *Manager) SyncAll(ctx context.Context, syncType syncconfig.SyncType) <-chan struct{} {
	done := make(chan struct{})

	cfg, err := m.configs.Config(ctx)
	if err != nil {
		logrus.Errorf("Failed to load sync configuration: %v", err)
		close(done)
		return done
	}

	var wg gosync.WaitGroup
	for _, item := range cfg.ConfigList {
		if !item.Configured() {
			continue
		}
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			m.SyncStart(ctx, key, syncType)
		}(item.Key)
	}
	logrus.Debugf("Started %s sync for configured items", syncType)

	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// Syncing reports whether a run for key is in progress in this process
func (m *Manager) Syncing(key string) bool {
	return m.locks.Locked(key)
}

// Wait blocks until every started run has finished
func (m *Manager) Wait() {
	m.runs.Wait()
}
