// Package identityfile feeds a session store from a YAML file on disk, the
// way an agent host hands sessions to sidecar daemons: the file appears on
// sign-in, changes on account switch, and is removed on sign-out. The
// watcher keeps the store current without restarts.
package identityfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/latticenet/livewire/internal/session"
)

// debounce absorbs editor write bursts and tmp+rename dances into one
// reload.
const debounce = 150 * time.Millisecond

type identityFile struct {
	UserID        string `yaml:"user_id"`
	Authenticated bool   `yaml:"authenticated"`
}

// Load reads the identity file at path. A missing file is a signed-out
// identity, not an error.
func Load(path string) (session.Identity, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return session.Identity{}, nil
	}
	if err != nil {
		return session.Identity{}, fmt.Errorf("identityfile: read %s: %w", path, err)
	}
	var f identityFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return session.Identity{}, fmt.Errorf("identityfile: parse %s: %w", path, err)
	}
	return session.Identity{UserID: f.UserID, Authenticated: f.Authenticated}, nil
}

// Watcher mirrors the identity file into a session.Store.
type Watcher struct {
	path  string
	store *session.Store
	fsw   *fsnotify.Watcher
	log   zerolog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// New loads the file once into store and returns a watcher ready to Start.
func New(path string, store *session.Store, log zerolog.Logger) (*Watcher, error) {
	id, err := Load(path)
	if err != nil {
		return nil, err
	}
	store.Set(id)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("identityfile: watcher: %w", err)
	}
	// Watch the directory, not the file: sign-out removes the file and
	// most writers replace it via rename, both of which would silently
	// detach a file-level watch.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("identityfile: watch %s: %w", filepath.Dir(path), err)
	}
	return &Watcher{
		path:  path,
		store: store,
		fsw:   fsw,
		log:   log,
		done:  make(chan struct{}),
	}, nil
}

// Start begins mirroring file changes into the store.
func (w *Watcher) Start() {
	go w.loop()
}

// Reload re-reads the file immediately. SIGHUP handlers call this.
func (w *Watcher) Reload() {
	id, err := Load(w.path)
	if err != nil {
		// Keep the previous identity: a torn write must not sign the
		// user out.
		w.log.Warn().Err(err).Msg("identity reload failed, keeping previous")
		return
	}
	w.log.Debug().Str("user", id.UserID).Bool("authenticated", id.Authenticated).Msg("identity loaded")
	w.store.Set(id)
}

// Close stops watching. The store keeps its last value.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() { close(w.done) })
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			w.Reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("identity watch error")
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}
