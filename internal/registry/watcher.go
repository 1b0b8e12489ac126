package registry

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// watcher marks roles dirty when their profile files change in any tier
// directory. Marking is best-effort: a lost event only means the next
// resolution serves a stale profile until an explicit invalidation.
type watcher struct {
	fw     *fsnotify.Watcher
	reg    *Registry
	logger *slog.Logger
	done   chan struct{}
}

func newWatcher(reg *Registry, logger *slog.Logger) (*watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	watched := 0
	for tier, dir := range reg.tierDirs {
		if dir == "" {
			continue
		}
		if err := fw.Add(dir); err != nil {
			logger.Debug("skipping unwatchable tier dir", "tier", tier, "dir", dir, "error", err)
			continue
		}
		watched++
	}

	w := &watcher{fw: fw, reg: reg, logger: logger, done: make(chan struct{})}
	go w.run()
	logger.Info("profile watcher started", "dirs", watched)
	return w, nil
}

func (w *watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if !strings.HasSuffix(name, ".md") {
				continue
			}
			role := strings.ToLower(strings.TrimSuffix(name, ".md"))
			w.reg.markDirty(role)
			w.logger.Debug("profile source changed", "role", role, "op", ev.Op.String())
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("profile watcher error", "error", err)
		}
	}
}

func (w *watcher) stop() {
	close(w.done)
	_ = w.fw.Close()
}
