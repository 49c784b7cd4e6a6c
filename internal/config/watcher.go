package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher hot-reloads the config file on write, matching the teacher's
// internal/watcher.Watcher config-file half (the auth-directory half of
// the teacher's watcher has no counterpart here since OAuth credentials
// live in internal/storage, not loose token files).
type Watcher struct {
	path     string
	fsw      *fsnotify.Watcher
	lastHash string
	reload   func(*Config)
}

// NewWatcher creates a watcher for path, invoking reload with the newly
// parsed Config whenever its content hash changes.
func NewWatcher(path string, reload func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{path: path, fsw: fsw, reload: reload}, nil
}

// Start runs the event loop until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.fsw.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				w.handleChange()
			case err, ok := <-w.fsw.Errors:
				if !ok {
					return
				}
				log.Errorf("config watcher error: %v", err)
			}
		}
	}()
}

func (w *Watcher) handleChange() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		log.Errorf("config watcher: read %s: %v", w.path, err)
		return
	}
	if len(data) == 0 {
		return
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	if hash == w.lastHash {
		return
	}
	w.lastHash = hash

	cfg, err := Load(w.path)
	if err != nil {
		log.Errorf("config watcher: reload %s: %v", w.path, err)
		return
	}
	log.Infof("config file changed, reloading: %s", w.path)
	if w.reload != nil {
		w.reload(cfg)
	}
}

// Stop closes the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	return w.fsw.Close()
}
