package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/tabstash-sync/internal/settings"
	"github.com/tabstash-sync/internal/syncconfig"
)

// Runner fans a sync out over every configured item
type Runner interface {
	SyncAll(ctx context.Context, syncType syncconfig.SyncType) <-chan struct{}
}

// Scheduler triggers automatic sync periodically while autoSync is on
type Scheduler struct {
	cron     *cron.Cron
	interval time.Duration
	timeout  time.Duration
	settings settings.Store
	runner   Runner
}

// DefaultTimeout bounds one scheduled cycle when no timeout is configured
const DefaultTimeout = 30 * time.Minute

// New creates a new scheduler
func New(interval, timeout time.Duration, settingsStore settings.Store, runner Runner) *Scheduler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		interval: interval,
		timeout:  timeout,
		settings: settingsStore,
		runner:   runner,
	}
}

// Start starts the scheduler and blocks until ctx is done
func (s *Scheduler) Start(ctx context.Context) {
	logrus.Infof("Starting scheduler with interval: %v", s.interval)

	cronSpec := fmt.Sprintf("@every %v", s.interval)
	_, err := s.cron.AddFunc(cronSpec, func() {
		logrus.Debug("Running scheduled sync check")
		if err := s.RunSync(ctx); err != nil {
			logrus.Errorf("Scheduled sync failed: %v", err)
		}
	})
	if err != nil {
		logrus.Errorf("Failed to schedule sync job: %v", err)
		return
	}

	s.cron.Start()

	<-ctx.Done()
	logrus.Info("Stopping scheduler...")
	<-s.cron.Stop().Done()
}

// autoSyncType returns the automatic variant of the configured sync type
func autoSyncType(snapshot settings.Snapshot) syncconfig.SyncType {
	t := syncconfig.SyncType(snapshot.String(settings.KeyAutoSyncType))
	if !t.Valid() {
		if t != "" {
			logrus.Warnf("Unknown autoSyncType %q, using %s", t, syncconfig.AutoPushMerge)
		}
		return syncconfig.AutoPushMerge
	}
	return t.Auto()
}

// RunSync runs one automatic sync cycle if autoSync is enabled and waits
// for it to finish or for the timeout
func (s *Scheduler) RunSync(ctx context.Context) error {
	snapshot, err := s.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}
	if !snapshot.AutoSync() {
		logrus.Debug("Automatic sync is disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	syncType := autoSyncType(snapshot)
	logrus.Infof("Running scheduled %s sync", syncType)

	select {
	case <-s.runner.SyncAll(ctx, syncType):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduled sync did not finish: %w", ctx.Err())
	}
}
