package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"k8s.io/utils/clock"

	"github.com/grovetools/rulesync/pkg/models"
)

// watcher reports file changes under the root as ConfigChange events.
// fsnotify is not recursive, so every directory gets its own watch and
// directories created later are added as they appear.
type watcher struct {
	b       *Backend
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending string
	timer   clock.Timer
	stop    chan struct{}
}

func newWatcher(b *Backend) (*watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &watcher{b: b, watcher: fw}
	if err := w.addTree(b.root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// addTree watches dir and every directory below it except .git.
func (w *watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// Directories may vanish while walking
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			if path == dir {
				return err
			}
			w.b.logger.WithError(err).Warnf("Failed to watch %s", path)
		}
		return nil
	})
}

// run blocks until ctx is cancelled.
func (w *watcher) run(ctx context.Context) {
	defer w.watcher.Close()
	defer w.cancelTimer()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.b.logger.Debugf("fsnotify event: %s op=%v", event.Name, event.Op)
			if w.skip(event.Name) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.b.logger.WithError(err).Warnf("Failed to watch %s", event.Name)
					}
				}
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.handleChange(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.b.logger.Errorf("Watcher error: %v", err)
		case <-ctx.Done():
			return
		}
	}
}

// skip filters git internals and the temp files of atomic writes.
func (w *watcher) skip(path string) bool {
	rel, err := filepath.Rel(w.b.root, path)
	if err != nil {
		return true
	}
	first := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
	if first == ".git" {
		return true
	}
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != IgnoreFileName
}

// handleChange restarts the debounce window. One event is published per
// burst, naming the last path that changed.
func (w *watcher) handleChange(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = path
	w.stopTimerLocked()

	t := w.b.clock.NewTimer(w.b.debounce)
	stop := make(chan struct{})
	w.timer, w.stop = t, stop
	go func() {
		select {
		case <-t.C():
			w.flush(stop)
		case <-stop:
		}
	}()
}

func (w *watcher) flush(stop chan struct{}) {
	w.mu.Lock()
	if w.stop != stop {
		w.mu.Unlock()
		return
	}
	path := w.pending
	w.pending = ""
	w.timer, w.stop = nil, nil
	w.mu.Unlock()

	w.b.logger.Infof("Config changed: %s", path)
	w.b.configEvents.Publish(models.ConfigChange{Path: path, Timestamp: w.b.clock.Now()})
}

func (w *watcher) stopTimerLocked() {
	if w.timer != nil {
		w.timer.Stop()
		close(w.stop)
		w.timer, w.stop = nil, nil
	}
}

func (w *watcher) cancelTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopTimerLocked()
}
