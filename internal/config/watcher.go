// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// WatcherConfig controls reloading of the configuration file in listener
// mode.
type WatcherConfig struct {
	Enabled      bool          `yaml:"enabled"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DefaultWatcherConfig returns default watcher configuration
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{PollInterval: 30 * time.Second}
}

// ChangeHandler receives a loaded and validated configuration.
type ChangeHandler func(*Config) error

// Watcher polls a configuration file and notifies handlers when its
// content changes. Files that fail to load or validate are logged and
// skipped; the previous configuration stays in effect.
type Watcher struct {
	path     string
	interval time.Duration
	log      *slog.Logger

	mu           sync.Mutex
	handlers     []ChangeHandler
	currentHash  [32]byte
	lastModified time.Time
}

// NewWatcher creates a watcher for path. The current content becomes the
// baseline and does not trigger handlers.
func NewWatcher(path string, cfg WatcherConfig, log *slog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultWatcherConfig().PollInterval
	}
	if log == nil {
		log = slog.Default()
	}
	w := &Watcher{
		path:     absPath,
		interval: cfg.PollInterval,
		log:      log.With("component", "config_watcher"),
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read initial config: %w", err)
	}
	hash, err := hashFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read initial config: %w", err)
	}
	w.currentHash = hash
	w.lastModified = info.ModTime()
	return w, nil
}

// OnChange registers a handler to be called when config changes
func (w *Watcher) OnChange(handler ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Path returns the watched config file path
func (w *Watcher) Path() string {
	return w.path
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	w.log.Info("starting config watcher", "path", w.path, "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Check(); err != nil {
				w.log.Warn("config reload failed", "error", err)
			}
		}
	}
}

// Check compares the file with the last seen content and, if it changed,
// loads it and runs the handlers. It reports whether handlers ran.
func (w *Watcher) Check() (bool, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return false, fmt.Errorf("failed to stat config file: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if info.ModTime().Equal(w.lastModified) {
		return false, nil
	}
	hash, err := hashFile(w.path)
	if err != nil {
		return false, fmt.Errorf("failed to calculate config hash: %w", err)
	}
	w.lastModified = info.ModTime()
	if hash == w.currentHash {
		return false, nil
	}
	w.currentHash = hash

	cfg, err := Load(w.path)
	if err != nil {
		return false, err
	}
	if err := cfg.Validate(); err != nil {
		return false, fmt.Errorf("invalid config: %w", err)
	}

	w.log.Info("config file changed, reloading")
	for _, handler := range w.handlers {
		if err := handler(cfg); err != nil {
			w.log.Warn("config change handler failed", "error", err)
		}
	}
	return true, nil
}

func hashFile(path string) ([32]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}
