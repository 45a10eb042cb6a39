package policy

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads the config file into a Policy while the server runs.
// Editors typically replace files via rename, so the parent directory is
// watched rather than the file itself, and events are debounced.
type Watcher struct {
	path   string
	pol    *Policy
	logger *log.Logger

	// debounceWindow collapses the burst of events an editor save produces.
	debounceWindow time.Duration
}

// NewWatcher creates a Watcher for the config file at path.
func NewWatcher(path string, pol *Policy, logger *log.Logger) *Watcher {
	return &Watcher{
		path:           path,
		pol:            pol,
		logger:         logger,
		debounceWindow: 500 * time.Millisecond,
	}
}

// Start watches the config file until ctx is cancelled. A failed reload
// (unreadable or invalid file) keeps the current settings and logs a warning.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return err
	}
	w.logger.Printf("Config watcher: watching %s", w.path)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(w.debounceWindow)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Printf("Config watcher: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.logger.Printf("Config watcher: reload failed, keeping current settings: %v", err)
		return
	}
	w.pol.Update(cfg)
	up := w.pol.Upstream()
	w.logger.Printf("Config watcher: reloaded (search=%s, content=%s, timeout=%ds)",
		up.SearchBaseURL, up.ContentBaseURL, up.TimeoutSeconds)
}
