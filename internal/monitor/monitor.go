// Package monitor watches the save directory and drives automatic backups.
//
// Two independent mechanisms feed the store: filesystem events debounced per
// file trigger threshold backups, and a periodic sweep backs up every save
// file on a timer. Both are gated by the store's cooldown.
package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"d2r-save-guard/internal/config"
	"d2r-save-guard/internal/logging"
	"d2r-save-guard/internal/store"
)

// backupStore is the slice of the store the monitor drives
type backupStore interface {
	CanCreate(targetPath string, trigger store.Trigger) bool
	Create(ctx context.Context, sourcePath string, trigger store.Trigger) store.Result
}

// Monitor watches a save directory and triggers automatic backups
type Monitor struct {
	saveDir         string
	debounce        time.Duration
	periodicEvery   time.Duration
	dangerThreshold int64
	workers         int

	store  backupStore
	logger *logging.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New creates a monitor over cfg.SaveDir driving st
func New(cfg *config.Config, st backupStore, logger *logging.Logger) *Monitor {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Monitor{
		saveDir:         cfg.SaveDir,
		debounce:        cfg.Debounce(),
		periodicEvery:   cfg.PeriodicInterval(),
		dangerThreshold: cfg.Watch.DangerThresholdBytes,
		workers:         cfg.Watch.Workers,
		store:           st,
		logger:          logger,
		timers:          make(map[string]*time.Timer),
	}
}

// Run watches until ctx is canceled. The filesystem watcher and the periodic
// sweep run concurrently; either failing terminally stops the monitor.
func (m *Monitor) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return store.NewIOError("failed to create filesystem watcher", err)
	}
	defer watcher.Close()
	defer m.stopTimers()

	if err := watcher.Add(m.saveDir); err != nil {
		return store.NewIOError("failed to watch save directory "+m.saveDir, err)
	}

	m.logger.WithFields(map[string]interface{}{
		"dir":      m.saveDir,
		"debounce": m.debounce.String(),
	}).Info("Watching save directory")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return m.watchLoop(ctx, watcher)
	})

	if m.periodicEvery > 0 {
		g.Go(func() error {
			return m.periodicLoop(ctx)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (m *Monitor) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isSaveFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			m.logger.LogWatcherEvent(event.Name, event.Op.String())
			m.scheduleEvaluation(ctx, event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Warnf("Filesystem watcher error: %v", err)
		}
	}
}

// scheduleEvaluation resets the file's debounce timer. Save writes arrive in
// bursts; only the quiet period after the last write triggers an evaluation.
func (m *Monitor) scheduleEvaluation(ctx context.Context, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if timer, ok := m.timers[path]; ok {
		timer.Reset(m.debounce)
		return
	}

	m.timers[path] = time.AfterFunc(m.debounce, func() {
		m.mu.Lock()
		delete(m.timers, path)
		m.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		m.evaluate(ctx, path)
	})
}

// evaluate decides whether a settled save file warrants a threshold backup
func (m *Monitor) evaluate(ctx context.Context, path string) {
	if m.dangerThreshold <= 0 {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		// The file can disappear between the event and the evaluation.
		return
	}
	if info.Size() < m.dangerThreshold {
		return
	}

	if !m.store.CanCreate(path, store.TriggerDangerThreshold) {
		m.logger.WithField("file", filepath.Base(path)).Debug("Threshold backup skipped, cooldown active")
		return
	}

	m.store.Create(ctx, path, store.TriggerDangerThreshold)
}

func (m *Monitor) periodicLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.periodicEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

// sweep backs up every save file in the directory, a bounded number at a
// time. Cooldown-gated and failed files are skipped; a sweep never fails.
func (m *Monitor) sweep(ctx context.Context) {
	paths, err := m.listSaveFiles()
	if err != nil {
		m.logger.Warnf("Periodic sweep could not read save directory: %v", err)
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		if !m.store.CanCreate(path, store.TriggerPeriodic) {
			continue
		}
		path := path
		g.Go(func() error {
			m.store.Create(ctx, path, store.TriggerPeriodic)
			return nil
		})
	}

	g.Wait()
}

func (m *Monitor) listSaveFiles() ([]string, error) {
	entries, err := os.ReadDir(m.saveDir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !isSaveFile(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(m.saveDir, entry.Name()))
	}
	return paths, nil
}

func (m *Monitor) stopTimers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for path, timer := range m.timers {
		timer.Stop()
		delete(m.timers, path)
	}
}

func isSaveFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), store.SaveExt)
}
