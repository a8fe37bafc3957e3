// Package watch hot-reloads the configuration document. It polls the file
// on a fixed interval rather than using inotify, so it behaves the same on
// bind mounts and network filesystems that swallow change notifications.
package watch

import (
	"crypto/sha256"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"icalmerge/internal/config"
	appLog "icalmerge/internal/log"
)

// Watcher re-reads the configuration file on an interval and swaps the
// store's live config when the file contents change. A change that fails
// validation is logged and dropped; the previous configuration stays live.
type Watcher struct {
	store    *config.Store
	interval time.Duration
	cron     *cron.Cron

	mu       sync.Mutex
	lastHash [sha256.Size]byte
}

// New builds a watcher over the store's document path. The current file
// contents seed the change detector so startup does not count as a change.
func New(store *config.Store, interval time.Duration) *Watcher {
	w := &Watcher{
		store:    store,
		interval: interval,
		cron:     cron.New(),
	}
	if data, err := os.ReadFile(store.Path()); err == nil {
		w.lastHash = sha256.Sum256(data)
	}
	return w
}

// Start schedules the poll job and begins watching.
func (w *Watcher) Start() error {
	spec := fmt.Sprintf("@every %s", w.interval)
	if _, err := w.cron.AddFunc(spec, w.poll); err != nil {
		return fmt.Errorf("schedule config poll: %w", err)
	}
	w.cron.Start()
	appLog.Info("config watcher started", "path", w.store.Path(), "interval", w.interval.String())
	return nil
}

// Stop halts polling and waits for an in-flight poll to finish.
func (w *Watcher) Stop() {
	ctx := w.cron.Stop()
	<-ctx.Done()
	appLog.Info("config watcher stopped")
}

// poll runs one read-compare-reload cycle. It is the cron job body; tests
// call it directly to avoid timing dependencies.
func (w *Watcher) poll() {
	path := w.store.Path()
	data, err := os.ReadFile(path)
	if err != nil {
		appLog.Warn("config poll: read failed", err, "path", path)
		return
	}

	sum := sha256.Sum256(data)
	w.mu.Lock()
	changed := sum != w.lastHash
	w.lastHash = sum
	w.mu.Unlock()
	if !changed {
		return
	}

	if err := w.store.TryReload(data, config.FormatFromPath(path)); err != nil {
		// The hash is already updated, so a broken file is reported once
		// per edit instead of once per tick.
		appLog.Error("config reload failed, continuing with previous configuration", err, "path", path)
		return
	}

	cfg := w.store.Snapshot()
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	appLog.Info("configuration reloaded", "path", path, "calendars", len(cfg.Calendars))
}
