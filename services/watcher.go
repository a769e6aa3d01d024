package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tapedeck/types"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// EventPublisher receives project change events
type EventPublisher interface {
	Publish(event types.ProjectEvent)
}

// StorageWatcher reports changes made to the data directory outside the API,
// such as audio files copied straight into a project folder
type StorageWatcher struct {
	root      string
	debounce  time.Duration
	publisher EventPublisher
	writes    *WriteLog
	logger    *zap.Logger
	watcher   *fsnotify.Watcher

	started  atomic.Bool
	stopOnce sync.Once
	done     chan struct{}
}

// NewStorageWatcher creates a watcher over root. Events for the same project
// inside one debounce window are coalesced into a single storage.changed event.
// Paths covered by writes were changed through the API and are not reported.
func NewStorageWatcher(root string, debounce time.Duration, publisher EventPublisher, writes *WriteLog, logger *zap.Logger) (*StorageWatcher, error) {
	if publisher == nil {
		return nil, errors.New("storage watcher requires a publisher")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &StorageWatcher{
		root:      root,
		debounce:  debounce,
		publisher: publisher,
		writes:    writes,
		logger:    logger,
		watcher:   fsw,
		done:      make(chan struct{}),
	}, nil
}

// Start adds watches for the root, every project and every audio folder, then
// processes events until ctx is cancelled or Stop is called
func (w *StorageWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.root); err != nil {
		return err
	}

	entries, err := os.ReadDir(w.root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			w.watchProject(filepath.Join(w.root, entry.Name()))
		}
	}

	w.started.Store(true)
	go w.processEvents(ctx)

	w.logger.Info("storage watcher started",
		zap.String("root", w.root),
		zap.Duration("debounce", w.debounce))
	return nil
}

// Stop closes the underlying watcher and waits for the event loop to exit
func (w *StorageWatcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		err = w.watcher.Close()
		if w.started.Load() {
			<-w.done
		}
	})
	return err
}

// Watching reports whether dir is in the watch set
func (w *StorageWatcher) Watching(dir string) bool {
	dir = filepath.Clean(dir)
	for _, p := range w.watcher.WatchList() {
		if p == dir {
			return true
		}
	}
	return false
}

func (w *StorageWatcher) watchProject(dir string) {
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Warn("failed to watch project", zap.String("dir", dir), zap.Error(err))
		return
	}
	audio := filepath.Join(dir, audioDirName)
	if info, err := os.Stat(audio); err == nil && info.IsDir() {
		if err := w.watcher.Add(audio); err != nil {
			w.logger.Warn("failed to watch audio folder", zap.String("dir", audio), zap.Error(err))
		}
	}
}

func (w *StorageWatcher) processEvents(ctx context.Context) {
	defer close(w.done)

	pending := make(map[string]struct{})
	var timer *time.Timer
	var flush <-chan time.Time

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			project := w.handleEvent(event)
			if project == "" {
				continue
			}
			pending[project] = struct{}{}
			if flush == nil {
				timer = time.NewTimer(w.debounce)
				flush = timer.C
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("storage watcher error", zap.Error(err))

		case <-flush:
			flush = nil
			timer = nil
			w.publishPending(pending)
			pending = make(map[string]struct{})
		}
	}
}

// handleEvent extends the watch set for new folders and returns the project
// the event belongs to, or "" when it should be ignored
func (w *StorageWatcher) handleEvent(event fsnotify.Event) string {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	project := parts[0]
	if strings.HasPrefix(project, ".") || strings.HasPrefix(filepath.Base(event.Name), ".") {
		return ""
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			switch {
			case len(parts) == 1:
				w.watchProject(event.Name)
			case len(parts) == 2 && parts[1] == audioDirName:
				if err := w.watcher.Add(event.Name); err != nil {
					w.logger.Warn("failed to watch audio folder", zap.String("dir", event.Name), zap.Error(err))
				}
			}
		}
	}

	if w.writes.Covers(event.Name) {
		return ""
	}
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return ""
	}
	return project
}

func (w *StorageWatcher) publishPending(pending map[string]struct{}) {
	projects := make([]string, 0, len(pending))
	for p := range pending {
		projects = append(projects, p)
	}
	sort.Strings(projects)

	for _, project := range projects {
		w.logger.Debug("storage changed", zap.String("project", project))
		w.publisher.Publish(types.ProjectEvent{
			Type:      types.EventStorageChanged,
			Project:   project,
			Timestamp: time.Now().UTC(),
		})
	}
}
