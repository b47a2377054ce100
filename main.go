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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tabstash-sync/internal/config"
	"github.com/tabstash-sync/internal/events"
	"github.com/tabstash-sync/internal/scheduler"
	"github.com/tabstash-sync/internal/server"
	"github.com/tabstash-sync/internal/settings"
	"github.com/tabstash-sync/internal/storage"
	"github.com/tabstash-sync/internal/sync"
	"github.com/tabstash-sync/internal/syncconfig"
	"github.com/tabstash-sync/internal/tags"
)

// app holds the wired services
type app struct {
	backend  storage.Backend
	bus      *events.Bus
	configs  *syncconfig.Store
	settings *settings.LocalStore
	tags     *tags.LocalStore
	manager  *sync.Manager
	server   *server.Server
	sched    *scheduler.Scheduler
}

// newApp opens local storage and wires every service
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	backend, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	a := &app{
		backend:  backend,
		bus:      events.NewBus(),
		settings: settings.NewLocalStore(backend),
		tags:     tags.NewLocalStore(backend),
	}
	a.configs = syncconfig.NewStore(backend, a.bus)
	if cfg.Language != "" {
		a.settings.SetDefault(settings.KeyLanguage, cfg.Language)
	}

	// Runs interrupted by a previous shutdown or crash left their status behind
	if err := a.configs.ResetStatuses(ctx); err != nil {
		backend.Close()
		return nil, fmt.Errorf("failed to reset sync statuses: %w", err)
	}

	for _, b := range cfg.Backends {
		item := syncconfig.Item{
			Key:      b.Key,
			Label:    b.Label,
			Kind:     b.Kind,
			Target:   b.Target,
			Username: b.Username,
			Password: b.Password,
		}
		if err := a.configs.Upsert(ctx, item); err != nil {
			backend.Close()
			return nil, fmt.Errorf("failed to seed backend %s: %w", b.Key, err)
		}
		logrus.Infof("Configured %s backend %s", b.Kind, b.Key)
	}

	resolver := sync.NewResolver(a.tags, a.settings, a.bus)
	a.manager = sync.NewManager(a.configs, resolver, a.bus, nil)
	a.manager.RunTimeout = cfg.Schedule.Timeout

	a.server = server.NewServer(server.Options{
		Port:      cfg.Server.Port,
		RateLimit: cfg.Server.RateLimit,
		Burst:     cfg.Server.Burst,
	}, server.Dependencies{
		Configs:  a.configs,
		Settings: a.settings,
		Tags:     a.tags,
		Sync:     a.manager,
		Bus:      a.bus,
	})

	if cfg.Schedule.Enabled {
		a.sched = scheduler.New(cfg.Schedule.Interval, cfg.Schedule.Timeout, a.settings, a.manager)
	}

	return a, nil
}

func main() {
	var configPath = flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	// Set log level
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)

	logrus.Info("Starting tabstash sync service")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize: %v", err)
	}
	defer a.backend.Close()

	// Start API server
	go func() {
		logrus.Infof("Listening on :%d", cfg.Server.Port)
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("Server error: %v", err)
		}
	}()

	// Start scheduler
	if a.sched != nil {
		go a.sched.Start(ctx)
	} else {
		logrus.Info("Automatic sync schedule is disabled")
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logrus.Info("Shutting down...")
	cancel()

	// Stop server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		logrus.Warnf("Failed to stop server: %v", err)
	}

	// Let started runs record their result
	done := make(chan struct{})
	go func() {
		a.manager.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logrus.Warn("Timed out waiting for running syncs")
	}
}
