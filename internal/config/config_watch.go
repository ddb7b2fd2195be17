package config

import (
	"log/slog"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads the config document on write, swapping an
// atomic.Pointer[Config] so readers never observe a half-applied config
// (grounded on the fsnotify hot-load pattern used for plugin reloading
// across the retrieved pack).
type Watcher struct {
	path    string
	current atomic.Pointer[Config]
	fsw     *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher loads path once and starts watching it for writes. If path
// does not exist, the watcher still runs (a later file creation at that
// path triggers the first reload).
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the parent directory: editors often replace the file via
	// rename rather than in-place write, which fsnotify only reports on
	// the containing directory.
	_ = fsw.Add(dirOf(path))

	w := &Watcher{path: path, fsw: fsw, done: make(chan struct{})}
	w.current.Store(cfg)
	go w.loop()
	return w, nil
}

// Current returns the most recently loaded Config.
func (w *Watcher) Current() *Config { return w.current.Load() }

// Close stops the reload loop.
func (w *Watcher) Close() {
	close(w.done)
	_ = w.fsw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Name != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				slog.Warn("config: reload failed, keeping previous config", "error", err)
				continue
			}
			w.current.Store(cfg)
			slog.Info("config: reloaded", "path", w.path)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("config: watcher error", "error", err)
		}
	}
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
