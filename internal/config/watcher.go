package config

import (
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher publishes Config snapshots through an atomic pointer, reloading on
// SIGHUP, on fsnotify write events to the config file, and as a fallback on
// platforms without either, by polling the file's mtime (§6, §9).
type Watcher struct {
	path    string
	current atomic.Pointer[Config]
	logger  *logrus.Logger

	fsWatcher *fsnotify.Watcher
	lastMtime time.Time

	done chan struct{}
}

// NewWatcher loads the initial config and prepares (but does not start) the
// reload watcher.
func NewWatcher(path string, logger *logrus.Logger) (*Watcher, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:   path,
		logger: logger,
		done:   make(chan struct{}),
	}
	w.current.Store(cfg)

	if info, statErr := os.Stat(path); statErr == nil {
		w.lastMtime = info.ModTime()
	}

	return w, nil
}

// Current returns the most recently published Config. Safe for concurrent
// use without locks — the Config itself is never mutated after publish.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// Run starts the reload loop: SIGHUP, fsnotify, and a poll-based fallback
// ticking every Reload.FileWatchPollMs. It blocks until ctx-like done is
// closed via Stop.
func (w *Watcher) Run() {
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	defer signal.Stop(sighup)

	if fw, err := fsnotify.NewWatcher(); err == nil {
		w.fsWatcher = fw
		if err := fw.Add(filepath.Dir(w.path)); err != nil {
			w.logger.WithError(err).Warn("config watcher: failed to watch config directory")
		}
	} else {
		w.logger.WithError(err).Warn("config watcher: fsnotify unavailable, relying on poll fallback")
	}

	pollInterval := time.Duration(w.Current().Reload.FileWatchPollMs) * time.Millisecond
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			if w.fsWatcher != nil {
				w.fsWatcher.Close()
			}
			return

		case <-sighup:
			w.logger.Info("config watcher: SIGHUP received, reloading")
			w.reload()

		case event, ok := <-w.fsEvents():
			if !ok {
				continue
			}
			if event.Has(fsnotify.Write) && filepath.Clean(event.Name) == filepath.Clean(w.path) {
				w.logger.WithField("path", event.Name).Info("config watcher: file changed, reloading")
				w.reload()
			}

		case err, ok := <-w.fsErrors():
			if !ok {
				continue
			}
			w.logger.WithError(err).Warn("config watcher: fsnotify error")

		case <-ticker.C:
			w.pollMtime()
		}
	}
}

// Stop terminates the watcher's Run loop.
func (w *Watcher) Stop() {
	close(w.done)
}

func (w *Watcher) fsEvents() chan fsnotify.Event {
	if w.fsWatcher == nil {
		return nil
	}
	return w.fsWatcher.Events
}

func (w *Watcher) fsErrors() chan error {
	if w.fsWatcher == nil {
		return nil
	}
	return w.fsWatcher.Errors
}

func (w *Watcher) pollMtime() {
	info, err := os.Stat(w.path)
	if err != nil {
		return
	}
	if info.ModTime().After(w.lastMtime) {
		w.lastMtime = info.ModTime()
		w.logger.Info("config watcher: mtime poll detected change, reloading")
		w.reload()
	}
}

// reload re-reads the config file. On failure it logs and keeps serving the
// previous config, matching §7's "fatal at startup, non-fatal on reload".
func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.logger.WithError(err).Error("config watcher: reload failed, keeping previous configuration")
		return
	}
	if info, statErr := os.Stat(w.path); statErr == nil {
		w.lastMtime = info.ModTime()
	}
	w.current.Store(cfg)
}
