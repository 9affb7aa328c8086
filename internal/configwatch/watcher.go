package configwatch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a static config file on disk and reloads it whenever it
// changes, handing the freshly parsed Document to OnChange: an
// event-loop-plus-callback bridge between an external change source and
// the proxy's own mutable state.
type Watcher struct {
	path string
	fsw  *fsnotify.Watcher
	log  *slog.Logger

	onChange func(*Document)
}

// NewWatcher creates a Watcher for the config file at path. The watcher
// subscribes to the file's containing directory rather than the file
// itself, since editors commonly replace a file (rename + create) instead
// of writing it in place, which would otherwise orphan an inode-based
// watch.
func NewWatcher(path string, log *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("configwatch: creating fsnotify watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("configwatch: watching %s: %w", dir, err)
	}
	return &Watcher{path: path, fsw: fsw, log: log}, nil
}

// OnChange registers the function to be called with every successfully
// parsed Document, including the very first load performed by Run.
func (w *Watcher) OnChange(fn func(*Document)) {
	w.onChange = fn
}

// Run performs the initial load, then watches for filesystem events on the
// config file's directory until ctx is canceled. Parse errors on reload are
// logged and skipped — the proxy keeps serving the last good config rather
// than tearing down on a bad edit.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	if err := w.reload(); err != nil {
		return fmt.Errorf("configwatch: initial load: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Info("config watcher stopped")
			return nil
		case err, ok := <-w.fsw.Errors:
			if !ok || ctx.Err() != nil {
				return nil
			}
			w.log.Warn("config watcher error", "error", err)
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !(event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0) {
				continue
			}
			if err := w.reload(); err != nil {
				w.log.Warn("config reload failed, keeping previous config", "error", err)
			}
		}
	}
}

func (w *Watcher) reload() error {
	doc, err := Load(w.path)
	if err != nil {
		return err
	}
	w.log.Info("config loaded", "path", w.path, "clusters", len(doc.Clusters), "virtual_hosts", len(doc.Routes.VirtualHosts))
	if w.onChange != nil {
		w.onChange(doc)
	}
	return nil
}
