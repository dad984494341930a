package schema

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/seanankenbruck/analytics-sql-ai/internal/observability"
)

const defaultDebounce = 100 * time.Millisecond

// Watcher reloads a registry whenever its schema file changes on disk
type Watcher struct {
	watcher  *fsnotify.Watcher
	filePath string
	registry *Registry
	debounce time.Duration
	logger   *observability.Logger
	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher for a schema file. The containing directory is
// watched, since editors often replace the file rather than write in place.
func NewWatcher(filePath string, registry *Registry) (*Watcher, error) {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", filePath, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	dir := filepath.Dir(abs)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	return &Watcher{
		watcher:  fw,
		filePath: abs,
		registry: registry,
		debounce: defaultDebounce,
		logger:   observability.NewLogger("schema_watcher"),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching in the background
func (w *Watcher) Start() {
	go w.watch()
}

// Stop ends the watch loop; it is safe to call more than once
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

func (w *Watcher) watch() {
	var timer *time.Timer
	ctx := context.Background()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.filePath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				// Reload logs its own outcome
				_, _ = w.registry.Reload(ctx)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error(ctx, "Schema watcher error", err, map[string]interface{}{
				"file": w.filePath,
			})

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}
