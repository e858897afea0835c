package tidy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher observes the configured directories and files a pending plan
// for every new file once it stops changing. Nothing is executed here;
// plans wait for operator approval.
type Watcher struct {
	mu       sync.Mutex
	fw       *fsnotify.Watcher
	store    *Store
	classify *Classifier
	dirs     []string
	ignore   []string
	pending  map[string]time.Time
	settle   time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
	logger   *log.Logger

	stats WatcherStats
}

// WatcherStats counts what the watcher has seen since it started.
type WatcherStats struct {
	Queued   int
	Planned  int
	Ignored  int
	Errors   int
	LastPath string
}

// NewWatcher builds a watcher from the config. The watched directories
// must exist.
func NewWatcher(cfg Config, store *Store, logger *log.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	for _, dir := range cfg.WatchDirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	return &Watcher{
		fw:       fw,
		store:    store,
		classify: NewClassifier(cfg.OrganizedDir, store),
		dirs:     cfg.WatchDirs,
		ignore:   cfg.IgnorePatterns,
		pending:  make(map[string]time.Time),
		settle:   cfg.Debounce(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger,
	}, nil
}

// Start begins watching in a background goroutine. It is an error to
// start a watcher twice.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	w.logger.WithField("dirs", strings.Join(w.dirs, ", ")).Info("watching for new files")
	go w.run(ctx)
	return nil
}

// Stop halts the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.fw.Close()
}

// Stats returns a snapshot of the watcher's counters.
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
			w.logger.WithError(err).Warn("watcher error")
		case <-ticker.C:
			w.drainSettled()
		}
	}
}

// handleEvent queues created and written files for classification. A
// write refreshes the settle clock so files still downloading are not
// classified half-finished.
func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return
	}
	name := filepath.Base(ev.Name)
	if ignoredName(name, w.ignore) {
		w.mu.Lock()
		w.stats.Ignored++
		w.mu.Unlock()
		return
	}
	w.mu.Lock()
	w.pending[ev.Name] = time.Now()
	w.stats.Queued++
	w.stats.LastPath = ev.Name
	w.mu.Unlock()
}

// drainSettled classifies every queued file whose settle window has
// elapsed. Collection happens under the lock, classification outside it.
func (w *Watcher) drainSettled() {
	now := time.Now()
	var ready []string
	w.mu.Lock()
	for path, queued := range w.pending {
		if now.Sub(queued) >= w.settle {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		w.plan(path)
	}
}

func (w *Watcher) plan(path string) {
	info, err := os.Stat(path)
	if err != nil {
		// Gone before the settle window elapsed.
		return
	}
	if info.IsDir() {
		return
	}
	existing, err := w.store.PlanBySource(path)
	if err != nil {
		w.logger.WithError(err).Warn("failed to look up existing plan")
		return
	}
	if existing != nil && (existing.Status == StatusPending || existing.Status == StatusApproved) {
		return
	}

	plan := w.classify.Classify(path, info.Size())
	if err := w.store.SavePlan(plan); err != nil {
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		w.logger.WithError(err).Error("failed to save plan")
		return
	}
	w.mu.Lock()
	w.stats.Planned++
	w.mu.Unlock()
	w.logger.WithFields(log.Fields{
		"plan":       plan.ID,
		"file":       plan.Filename(),
		"action":     plan.Action,
		"confidence": fmt.Sprintf("%.0f%%", plan.Confidence*100),
	}).Info("classified file")
}

// ignoredName reports whether a file name matches the ignore patterns.
// Hidden files are always ignored; a leading * in a pattern matches any
// suffix.
func ignoredName(name string, patterns []string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, p := range patterns {
		if strings.HasPrefix(p, "*") {
			if strings.HasSuffix(name, p[1:]) {
				return true
			}
			continue
		}
		if name == p {
			return true
		}
	}
	return false
}
