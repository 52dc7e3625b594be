package config

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/semihalev/zlog/v2"
)

// Watcher reloads the config file on change and hands the fresh
// config to a callback. Only settings the callback chooses to apply
// take effect at runtime, everything else needs a restart.
type Watcher struct {
	path    string
	version string

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// NewWatcher watches cfgfile and invokes apply with each successfully
// reloaded config.
func NewWatcher(cfgfile, version string, apply func(*Config)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory, not the file: editors and config managers
	// replace the file via rename.
	if err := watcher.Add(filepath.Dir(cfgfile)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &Watcher{
		path:    cfgfile,
		version: version,
		watcher: watcher,
		stopCh:  make(chan struct{}),
	}

	go w.watch(apply)

	return w, nil
}

func (w *Watcher) watch(apply func(*Config)) {
	defer w.watcher.Close()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(w.path, w.version)
			if err != nil {
				zlog.Error("Config reload failed", "path", w.path, "error", err.Error())
				continue
			}

			zlog.Info("Config file changed, reloading", "path", w.path)
			apply(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			zlog.Error("Config watcher error", "error", err.Error())
		case <-w.stopCh:
			return
		}
	}
}

// Stop stops watching.
func (w *Watcher) Stop() {
	close(w.stopCh)
}
