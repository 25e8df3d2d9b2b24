package serve

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// sourceWatcher watches the book directory tree for changes. fsnotify does
// not recurse, so every subdirectory is registered individually and new ones
// are added as they appear.
type sourceWatcher struct {
	*fsnotify.Watcher
}

func newSourceWatcher(root string) (*sourceWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create source watcher: %w", err)
	}
	w := &sourceWatcher{Watcher: fsw}
	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", root, err)
	}
	return w, nil
}

func (w *sourceWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

// watchCreated registers a freshly created directory, including anything
// already inside it by the time the event arrives.
func (w *sourceWatcher) watchCreated(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create == 0 {
		return
	}
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return
	}
	if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
		_ = w.addTree(ev.Name)
	}
}

// shouldIgnoreEvent filters out files editors churn through while saving:
// hidden files, vim swap files, emacs autosave files and backup copies.
func shouldIgnoreEvent(path string) bool {
	base := filepath.Base(path)
	switch {
	case strings.HasPrefix(base, "."):
		return true
	case strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"):
		return true
	case strings.HasSuffix(base, ".swp") || strings.HasSuffix(base, ".swx"):
		return true
	case strings.HasSuffix(base, "~"):
		return true
	}
	return false
}
